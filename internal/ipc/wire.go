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

// Package ipc implements the daemon's wire protocol over the UNIX socket
// (spec §6 "IPC socket"): length-prefixed JSON messages, request objects as
// a tagged union matching the dispatcher's request kinds, and
// `{"ok": ...} | {"err": ...}` responses.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/passworth/passworthd/internal/errs"
)

const maxMessageBytes = 16 << 20

// WriteMessage writes v as length-prefixed JSON: a native-endian u32 byte
// count followed by that many bytes of JSON.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "marshal ipc message", err)
	}
	var lenBuf [4]byte
	binary.NativeEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errs.Wrap(errs.KindTransient, "write ipc length prefix", err)
	}
	if _, err := w.Write(body); err != nil {
		return errs.Wrap(errs.KindTransient, "write ipc message body", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed JSON message.
func ReadMessage(r io.Reader) (json.RawMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errs.Wrap(errs.KindTransient, "read ipc length prefix", err)
	}
	n := binary.NativeEndian.Uint32(lenBuf[:])
	if n > maxMessageBytes {
		return nil, errs.New(errs.KindTransient, "ipc message exceeds maximum size")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errs.Wrap(errs.KindTransient, "read ipc message body", err)
	}
	return json.RawMessage(body), nil
}

// Response is the envelope every reply is wrapped in, spec §6: "Response
// objects are {"ok": <value>} | {"err": <string>}."
type Response struct {
	OK  json.RawMessage `json:"ok,omitempty"`
	Err string          `json:"err,omitempty"`
}

// OKResponse marshals value as the ok payload of a Response.
func OKResponse(value any) (Response, error) {
	if value == nil {
		return Response{OK: json.RawMessage(`null`)}, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return Response{}, errs.Wrap(errs.KindInternal, "marshal response value", err)
	}
	return Response{OK: raw}, nil
}

// ErrResponse builds an error Response from err, using the client-safe
// message errs.ClientMessage produces.
func ErrResponse(err error) Response {
	return Response{Err: errs.ClientMessage(err)}
}
