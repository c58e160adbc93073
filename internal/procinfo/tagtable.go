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

package procinfo

import "sync"

// tagEntry is one registered process-tag association.
type tagEntry struct {
	tags     []string
	ownerUID int
}

// TagTable maps a pidfd inode to the tags the `passworth-tag` helper (§6)
// registered for that process. Keying by pidfd inode rather than PID means
// a recycled PID belonging to an unrelated later process never inherits a
// stale tag: Lookup re-derives the current pidfd inode for the PID being
// checked and only returns a hit if it still matches the one recorded at
// Register time.
type TagTable struct {
	mu      sync.RWMutex
	entries map[uint64]tagEntry
}

// NewTagTable returns an empty tag table.
func NewTagTable() *TagTable {
	return &TagTable{entries: make(map[uint64]tagEntry)}
}

// Register associates tags with the process currently identified by pid,
// under the owning UID (the UID of the `passworth-tag` invocation itself,
// per spec §4.4's match_tag predicate: "its effective UID equals the tag's
// owner UID").
func (t *TagTable) Register(pid int, ownerUID int, tags []string) error {
	inode, err := pidfdInode(pid)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[inode] = tagEntry{tags: append([]string(nil), tags...), ownerUID: ownerUID}
	return nil
}

// Lookup returns the tags and owner UID registered for pid, but only if
// the process's current pidfd inode still matches what was recorded at
// Register time (i.e. it is still the same process, not a PID reused by
// something else).
func (t *TagTable) Lookup(pid int) (tags []string, ownerUID int, ok bool) {
	inode, err := pidfdInode(pid)
	if err != nil {
		return nil, 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, found := t.entries[inode]
	if !found {
		return nil, 0, false
	}
	return e.tags, e.ownerUID, true
}

// Forget removes any association for the process currently identified by
// pid. It resolves pid's pidfd inode first, so it does nothing once that
// process has exited; the daemon itself never calls it, and entries
// otherwise stay in the table.
func (t *TagTable) Forget(pid int) {
	inode, err := pidfdInode(pid)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, inode)
}
