// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package factor

import (
	"encoding/base64"
	"encoding/json"

	"github.com/passworth/passworthd/internal/errs"
)

// Or/Smartcards state is a JSON map of key -> base64(ciphertext), spec §3:
// `Or(n)` stores `{child_id -> encrypt(child_token, node_token)}` and
// `Smartcards(n)` stores `{fingerprint -> pgp_encrypt_to_card(node_token)}`.

func decodeOrState(has bool, raw []byte) (map[string][]byte, error) {
	return decodeB64Map(has, raw)
}

func decodeCardState(has bool, raw []byte) (map[string][]byte, error) {
	return decodeB64Map(has, raw)
}

func decodeB64Map(has bool, raw []byte) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if !has || len(raw) == 0 {
		return out, nil
	}
	var encoded map[string]string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "decode factor state", err)
	}
	for k, v := range encoded {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "decode factor state entry", err)
		}
		out[k] = b
	}
	return out, nil
}

func encodeB64Map(m map[string][]byte) ([]byte, error) {
	encoded := make(map[string]string, len(m))
	for k, v := range m {
		encoded[k] = base64.StdEncoding.EncodeToString(v)
	}
	out, err := json.Marshal(encoded)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "encode factor state", err)
	}
	return out, nil
}
