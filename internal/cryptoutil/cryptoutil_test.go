// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	nodeToken, err := RandomToken()
	require.NoError(t, err)

	plaintext := []byte("child token bytes")
	sealed, err := Encrypt(nodeToken, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := Decrypt(nodeToken, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	nodeToken, err := RandomToken()
	require.NoError(t, err)
	other, err := RandomToken()
	require.NoError(t, err)

	sealed, err := Encrypt(nodeToken, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(other, sealed)
	assert.Error(t, err)
}

func TestZBase32RootKeyDeterministic(t *testing.T) {
	tok := []byte("0123456789abcdef0123456789abcdef")
	a := ZBase32RootKey(tok)
	b := ZBase32RootKey(tok)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestRandomTokenIsUnpredictable(t *testing.T) {
	a, err := RandomToken()
	require.NoError(t, err)
	b, err := RandomToken()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
