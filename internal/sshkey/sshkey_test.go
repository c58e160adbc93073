// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sshkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateRoundTripsPublicKey(t *testing.T) {
	priv, pub, err := Generate()
	require.NoError(t, err)
	require.NotEmpty(t, priv)
	require.NotEmpty(t, pub)

	fromPriv, err := PublicKeyFromPEM([]byte(priv))
	require.NoError(t, err)
	require.Equal(t, pub, fromPriv)
}
