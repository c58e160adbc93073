// Copyright 2026 passworth authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pgp wraps github.com/ProtonMail/go-crypto/openpgp for the three
// OpenPGP operations the daemon needs: generating a Curve25519 identity for
// WriteGenerate's "Pgp" variant, and the DerivePgpSign/DerivePgpDecrypt
// request kinds (spec §4.5). The cryptographic primitives themselves are
// out of scope per spec §1 ("OpenPGP cryptographic primitives themselves");
// this package only selects keys by capability and shuttles bytes.
package pgp

import (
	"bytes"
	"crypto"
	"io"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/passworth/passworthd/internal/errs"
)

// newKeyConfig fixes the algorithm for freshly generated keys at Curve25519,
// spec §4.5 "WriteGenerate ... Pgp (generate a Curve25519 cert with signing
// subkey and a storage+transport encryption subkey...)".
func newKeyConfig() *packet.Config {
	return &packet.Config{
		Algorithm:              packet.PubKeyAlgoEdDSA,
		DefaultHash:             crypto.SHA256,
		Time:                    time.Now,
	}
}

// GenerateIdentity creates a fresh Curve25519 OpenPGP entity with a signing
// primary key and an encryption subkey, and returns the ASCII-armored
// secret key.
func GenerateIdentity(name, email string) (armored string, fingerprint string, err error) {
	cfg := newKeyConfig()
	entity, err := openpgp.NewEntity(name, "passworth generated key", email, cfg)
	if err != nil {
		return "", "", errs.Wrap(errs.KindInternal, "generate pgp identity", err)
	}
	for _, id := range entity.Identities {
		if err := id.SelfSignature.SignUserId(id.UserId.Id, entity.PrimaryKey, entity.PrivateKey, cfg); err != nil {
			return "", "", errs.Wrap(errs.KindInternal, "self-sign pgp identity", err)
		}
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return "", "", errs.Wrap(errs.KindInternal, "armor encode pgp key", err)
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		return "", "", errs.Wrap(errs.KindInternal, "serialize pgp private key", err)
	}
	if err := w.Close(); err != nil {
		return "", "", errs.Wrap(errs.KindInternal, "close pgp armor writer", err)
	}

	return buf.String(), fingerprintHex(entity), nil
}

func fingerprintHex(e *openpgp.Entity) string {
	const hexDigits = "0123456789abcdef"
	fp := e.PrimaryKey.Fingerprint
	out := make([]byte, 0, len(fp)*2)
	for _, b := range fp {
		out = append(out, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(out)
}

// loadSecretKeyring parses an ASCII-armored secret key(ring), spec §4.5
// "DerivePgpSign loads the armored PGP secret at key".
func loadSecretKeyring(armored []byte) (openpgp.EntityList, error) {
	el, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "parse armored pgp secret key", err)
	}
	return el, nil
}

// selectSigning picks the first signing-capable secret key under the
// library's standard self-signature policy.
func selectSigning(el openpgp.EntityList) (*openpgp.Entity, error) {
	for _, e := range el {
		if e.PrivateKey == nil || e.PrivateKey.Encrypted {
			continue
		}
		if sign, _ := e.SigningKey(time.Now()); sign.Entity != nil {
			return e, nil
		}
	}
	return nil, errs.New(errs.KindInternal, "no signing-capable secret key found")
}

// selectEncryption picks the first storage-encryption-capable secret key.
func selectEncryption(el openpgp.EntityList) (*openpgp.Entity, error) {
	for _, e := range el {
		if e.PrivateKey == nil {
			continue
		}
		if enc, ok := e.EncryptionKey(time.Now()); ok && enc.PrivateKey != nil && !enc.PrivateKey.Encrypted {
			return e, nil
		}
	}
	return nil, errs.New(errs.KindInternal, "no encryption-capable secret key found")
}

// Sign produces a detached, ASCII-armored text signature over data using
// the first signing-capable key in armoredSecretKey.
func Sign(armoredSecretKey, data []byte) (string, error) {
	el, err := loadSecretKeyring(armoredSecretKey)
	if err != nil {
		return "", err
	}
	signer, err := selectSigning(el)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSignText(&buf, signer, bytes.NewReader(data), nil); err != nil {
		return "", errs.Wrap(errs.KindInternal, "sign data", err)
	}
	return buf.String(), nil
}

// Decrypt decrypts an OpenPGP message using the first storage-encryption
// capable key in armoredSecretKey.
func Decrypt(armoredSecretKey, message []byte) ([]byte, error) {
	el, err := loadSecretKeyring(armoredSecretKey)
	if err != nil {
		return nil, err
	}
	if _, err := selectEncryption(el); err != nil {
		return nil, err
	}

	md, err := openpgp.ReadMessage(bytes.NewReader(message), el, nil, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindFactorMismatch, "decrypt pgp message", err)
	}
	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, errs.Wrap(errs.KindFactorMismatch, "read decrypted pgp body", err)
	}
	return plaintext, nil
}

// EncryptTo encrypts plaintext to the public key(s) in armoredPublicKey.
// Nothing else in this repository calls it: WriteGenerate has no
// card-export path, and the factor engine's Smartcards step encrypts
// through factor.UI.EncryptToCard instead.
func EncryptTo(armoredPublicKey, plaintext []byte) ([]byte, error) {
	el, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armoredPublicKey))
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "parse armored pgp public key", err)
	}

	var buf bytes.Buffer
	w, err := openpgp.Encrypt(&buf, el, nil, nil, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "open pgp encrypt stream", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "write pgp plaintext", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "close pgp encrypt stream", err)
	}
	return buf.Bytes(), nil
}

// PublicArmor extracts the ASCII-armored public key from an armored secret
// key, spec §4.5 MetaPgpPubkey.
func PublicArmor(armoredSecretKey []byte) (string, error) {
	el, err := loadSecretKeyring(armoredSecretKey)
	if err != nil {
		return "", err
	}
	if len(el) == 0 {
		return "", errs.New(errs.KindInternal, "no keys found in armored secret input")
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "armor encode pgp public key", err)
	}
	if err := el[0].Serialize(w); err != nil {
		return "", errs.Wrap(errs.KindInternal, "serialize pgp public key", err)
	}
	if err := w.Close(); err != nil {
		return "", errs.Wrap(errs.KindInternal, "close pgp armor writer", err)
	}
	return buf.String(), nil
}

// Fingerprint parses an armored key and returns its hex fingerprint.
func Fingerprint(armoredKey []byte) (string, error) {
	el, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armoredKey))
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "parse armored pgp key", err)
	}
	if len(el) == 0 {
		return "", errs.New(errs.KindInternal, "no keys found in armored input")
	}
	return fingerprintHex(el[0]), nil
}
