// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package otp

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestCurrentCodeMatchesDirectGeneration(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "passworth", AccountName: "test"})
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	want, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)

	got, err := CurrentCode(key.URL(), now)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCurrentCodeRejectsNonTotpURL(t *testing.T) {
	_, err := CurrentCode("otpauth://hotp/test?secret=JBSWY3DPEHPK3PXP", time.Now())
	require.Error(t, err)
}
