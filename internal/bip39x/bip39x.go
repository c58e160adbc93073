// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bip39x wraps github.com/tyler-smith/go-bip39 to generate and
// recover the recovery-phrase factor variant's token, spec §3
// "RecoveryPhrase(n)".
package bip39x

import (
	"crypto/sha256"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/passworth/passworthd/internal/errs"
)

// entropyBits is fixed at 128 bits of entropy (a 12-word phrase), matching the
// phrase length quoted in spec §4.3's initialize-walk description.
const entropyBits = 128

// Generate produces a fresh recovery phrase and its derived token. The
// token is stable for a given phrase, so a later Recover call on the
// same words reproduces it exactly.
func Generate() (token []byte, words []string, err error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindInternal, "generate recovery phrase entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindInternal, "generate recovery phrase", err)
	}
	return tokenFromMnemonic(mnemonic), strings.Fields(mnemonic), nil
}

// Recover validates a user-retyped phrase and, on success, returns the
// same token Generate would have produced for it. Returns
// errs.KindFactorMismatch if the phrase fails the BIP-39 checksum (a
// typo), which callers should treat as retryable.
func Recover(words []string) ([]byte, error) {
	mnemonic := strings.Join(words, " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errs.New(errs.KindFactorMismatch, "recovery phrase is not valid")
	}
	return tokenFromMnemonic(mnemonic), nil
}

func tokenFromMnemonic(mnemonic string) []byte {
	seed := bip39.NewSeed(mnemonic, "")
	sum := sha256.Sum256(seed)
	return sum[:]
}
