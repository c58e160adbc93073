// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secretmem holds the memory-hygiene primitives named in spec §5:
// best-effort process-wide mlock at startup, and zeroizing byte buffers for
// tokens and decrypted secrets.
package secretmem

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// LockAddressSpace requests that the process's address space be
// memory-locked so secrets are never paged to swap. Failure (most commonly
// a missing CAP_IPC_LOCK or an over-tight RLIMIT_MEMLOCK) is logged and
// non-fatal: the daemon still runs, just without the swap guarantee.
func LockAddressSpace(log *slog.Logger) {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		log.Warn("mlockall failed; secrets may be swappable", "error", err)
	}
}

// Bytes is a secret buffer that is zeroed on Close. The zero value is an
// empty, already-closed buffer.
type Bytes struct {
	b []byte
}

// New wraps an existing slice as a secret buffer. The caller must not
// retain other references to b.
func New(b []byte) *Bytes {
	return &Bytes{b: b}
}

// NewCopy copies src into a new secret buffer, leaving src untouched.
func NewCopy(src []byte) *Bytes {
	b := make([]byte, len(src))
	copy(b, src)
	return &Bytes{b: b}
}

// Bytes returns the underlying slice. The returned slice aliases the
// buffer's storage and becomes invalid after Close.
func (s *Bytes) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Close zeroes the buffer in place. Safe to call multiple times.
func (s *Bytes) Close() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}
