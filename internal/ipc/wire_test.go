// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	env := Envelope{Kind: KindRead, Paths: []string{"/a"}}
	require.NoError(t, WriteMessage(&buf, env))

	raw, err := ReadMessage(&buf)
	require.NoError(t, err)

	got, err := ParseEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, KindRead, got.Kind)
	require.Equal(t, []string{"/a"}, got.Paths)
}

func TestPathsForPermissionWriteMove(t *testing.T) {
	env := Envelope{Kind: KindWriteMove, From: "/a", To: "/b"}
	require.Equal(t, []string{"/a", "/b"}, env.PathsForPermission())
}

func TestParseEnvelopeRejectsMissingKind(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"paths":["/a"]}`))
	require.Error(t, err)
}
