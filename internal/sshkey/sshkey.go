// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sshkey wraps golang.org/x/crypto/ssh for WriteGenerate's "Ssh"
// variant (spec §4.5: "generate a default-algorithm OpenSSH key, return
// OpenSSH PEM") and for MetaSshPubkey.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"

	"golang.org/x/crypto/ssh"

	"github.com/passworth/passworthd/internal/errs"
)

// Generate creates a fresh Ed25519 OpenSSH keypair (the modern default
// algorithm) and returns the private key in OpenSSH PEM form.
func Generate() (privatePEM string, publicAuthorizedKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", errs.Wrap(errs.KindInternal, "generate ed25519 key", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return "", "", errs.Wrap(errs.KindInternal, "marshal openssh private key", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", errs.Wrap(errs.KindInternal, "derive ssh public key", err)
	}
	return string(pem.EncodeToMemory(block)), string(ssh.MarshalAuthorizedKey(sshPub)), nil
}

// PublicKeyFromPEM extracts the authorized_keys line from an OpenSSH PEM
// private key, used to answer MetaSshPubkey without exposing the secret.
func PublicKeyFromPEM(privatePEM []byte) (string, error) {
	signer, err := ssh.ParsePrivateKey(privatePEM)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "parse openssh private key", err)
	}
	return string(ssh.MarshalAuthorizedKey(signer.PublicKey())), nil
}
