// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package otp wraps github.com/pquerna/otp for the DeriveOtp request kind
// (spec §4.5): "parses the stored value as an otpauth:// URL and returns
// the current TOTP code."
package otp

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/passworth/passworthd/internal/errs"
)

// CurrentCode parses an otpauth:// URL (as written to the store by a
// client; WriteGenerate has no OTP variant) and returns the TOTP code
// valid at now.
func CurrentCode(otpauthURL string, now time.Time) (string, error) {
	key, err := otp.NewKeyFromURL(otpauthURL)
	if err != nil {
		return "", errs.Wrap(errs.KindConfigInvalid, "parse otpauth url", err)
	}
	if key.Type() != "totp" {
		return "", errs.New(errs.KindConfigInvalid, "only totp otpauth urls are supported")
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), now, totp.ValidateOpts{
		Period:    uint(key.Period()),
		Digits:    key.Digits(),
		Algorithm: key.Algorithm(),
	})
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "generate totp code", err)
	}
	return code, nil
}
