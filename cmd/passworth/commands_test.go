// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRevSplitsTrailingNumber(t *testing.T) {
	at, rest, err := parseRev([]string{"/db/password", "42"})
	require.NoError(t, err)
	require.NotNil(t, at)
	require.Equal(t, int64(42), *at)
	require.Equal(t, []string{"/db/password"}, rest)
}

func TestParseRevLeavesNonNumericTrailingArg(t *testing.T) {
	at, rest, err := parseRev([]string{"/db/password"})
	require.NoError(t, err)
	require.Nil(t, at)
	require.Equal(t, []string{"/db/password"}, rest)
}

func TestEncodeWriteValueDefaultsToPlainString(t *testing.T) {
	v, err := encodeWriteValue([]byte("hunter2"), false, false)
	require.NoError(t, err)
	require.JSONEq(t, `"hunter2"`, string(v))
}

func TestEncodeWriteValueJSONPassesThroughValidJSON(t *testing.T) {
	v, err := encodeWriteValue([]byte(`{"a":1}`), true, false)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(v))
}

func TestEncodeWriteValueJSONRejectsInvalidJSON(t *testing.T) {
	_, err := encodeWriteValue([]byte("not json"), true, false)
	require.Error(t, err)
}

func TestEncodeWriteValueBinaryBase64Encodes(t *testing.T) {
	v, err := encodeWriteValue([]byte{0x00, 0xff, 0x10}, false, true)
	require.NoError(t, err)
	require.JSONEq(t, `"AP8Q"`, string(v))
}
