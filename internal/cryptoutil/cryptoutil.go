// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cryptoutil holds the small, domain-specific cryptographic
// plumbing the factor engine and revision store need: zbase32 encoding of
// the root token (spec §3 "Token"), and AES-256-GCM encrypt/decrypt of
// per-node factor state (spec §4.3). The OpenPGP and BIP-39 primitives
// themselves live in internal/pgp and internal/bip39x respectively, and are
// explicitly out of scope for this package per spec §1.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/tv42/zbase32"

	"github.com/passworth/passworthd/internal/errs"
)

// RandomToken returns 32 cryptographically random bytes, the size spec §3
// specifies for derived (non-leaf, non-password) factor tokens.
func RandomToken() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "generate random token", err)
	}
	return b, nil
}

// ZBase32RootKey renders a root token through zbase32, per spec §3: "the
// root token, after transit through zbase32, is the encryption key of the
// revision store".
func ZBase32RootKey(rootToken []byte) string {
	return zbase32.EncodeToString(rootToken)
}

// deriveAESKey stretches an arbitrary-length token into a fixed 32-byte
// AES-256 key via SHA-256. Node tokens are already uniformly random (or,
// for Password/RecoveryPhrase leaves, user-entered material of varying
// length), so a single hash pass is enough to produce a fixed-size key;
// this is not a password KDF and is not meant to resist brute force on its
// own — the token material itself carries the entropy.
func deriveAESKey(token []byte) [32]byte {
	return sha256.Sum256(token)
}

// Encrypt seals plaintext under nodeToken using AES-256-GCM, returning
// nonce||ciphertext. Used for Or-node state, where the Or node's own token
// is sealed under each child's token.
func Encrypt(nodeToken, plaintext []byte) ([]byte, error) {
	key := deriveAESKey(nodeToken)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "init gcm", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "generate nonce", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure (wrong key,
// corrupt data) is reported as KindFactorMismatch: from the caller's
// perspective wrong-key and corruption are indistinguishable and both mean
// "this token does not open this state".
func Decrypt(nodeToken, sealed []byte) ([]byte, error) {
	key := deriveAESKey(nodeToken)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "init cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "init gcm", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errs.New(errs.KindFactorMismatch, "state too short to decrypt")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindFactorMismatch, "decrypt factor state", err)
	}
	return pt, nil
}
