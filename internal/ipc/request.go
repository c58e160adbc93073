// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ipc

import (
	"encoding/json"

	"github.com/passworth/passworthd/internal/errs"
)

// Kind discriminates the request tagged union, spec §4.5's request kinds
// table.
type Kind string

const (
	KindLock             Kind = "lock"
	KindUnlock           Kind = "unlock"
	KindMetaKeys         Kind = "meta_keys"
	KindMetaRevisions    Kind = "meta_revisions"
	KindMetaPgpPubkey    Kind = "meta_pgp_pubkey"
	KindMetaSshPubkey    Kind = "meta_ssh_pubkey"
	KindRead             Kind = "read"
	KindWrite            Kind = "write"
	KindWriteMove        Kind = "write_move"
	KindWriteGenerate    Kind = "write_generate"
	KindWriteRevert      Kind = "write_revert"
	KindDerivePgpSign    Kind = "derive_pgp_sign"
	KindDerivePgpDecrypt Kind = "derive_pgp_decrypt"
	KindDeriveOtp        Kind = "derive_otp"
	KindTag              Kind = "tag"
)

// Envelope is the outermost shape of every request object: a "kind" tag
// plus kind-specific fields folded into the same JSON object (rather than
// a nested payload field), matching how the CLI/browser bridges construct
// these objects.
type Envelope struct {
	Kind Kind `json:"kind"`

	Paths []string `json:"paths,omitempty"`
	At    *int64   `json:"at,omitempty"`

	Path  string `json:"path,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Value string `json:"value,omitempty"` // raw JSON text for Write's single pair

	Pairs []WritePair `json:"pairs,omitempty"`

	Overwrite bool   `json:"overwrite,omitempty"`
	Variant   string `json:"variant,omitempty"`

	Key  string `json:"key,omitempty"`
	Data string `json:"data,omitempty"` // base64

	Tags []string `json:"tags,omitempty"`
}

// WritePair is one (path, value) entry of a Write request.
type WritePair struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// ParseEnvelope decodes one request object from raw JSON.
func ParseEnvelope(raw json.RawMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errs.Wrap(errs.KindInternal, "parse ipc request", err)
	}
	if env.Kind == "" {
		return Envelope{}, errs.New(errs.KindInternal, "ipc request missing kind")
	}
	return env, nil
}

// PathsForPermission returns the path set the dispatcher should pass to the
// permission evaluator for this request kind, spec §4.5's table.
func (e Envelope) PathsForPermission() []string {
	switch e.Kind {
	case KindLock, KindUnlock:
		return []string{"/"}
	case KindMetaKeys, KindMetaRevisions, KindRead, KindWrite, KindWriteRevert:
		return e.Paths
	case KindMetaPgpPubkey, KindMetaSshPubkey, KindWriteGenerate:
		return []string{e.Path}
	case KindWriteMove:
		return []string{e.From, e.To}
	case KindDerivePgpSign, KindDerivePgpDecrypt, KindDeriveOtp:
		return []string{e.Key}
	default:
		return nil
	}
}
