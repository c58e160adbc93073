// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"strconv"

	"github.com/passworth/passworthd/internal/procinfo"
)

// UserLookup resolves the config file's "user"/"group" strings (either a
// numeric id or a name) to a numeric id. Implementations typically wrap
// os/user; kept as an interface so tests can supply a fixed table.
type UserLookup interface {
	UID(name string) (int, bool)
	GID(name string) (int, bool)
}

// TagLookup resolves a process's registered tags, spec §4.4 "Process tag
// set". Implemented by *procinfo.TagTable in the daemon.
type TagLookup interface {
	Lookup(pid int) (tags []string, ownerUID int, ok bool)
}

// ruleMatches implements spec §4.4 step 2: "If the rule has multiple
// predicates, all must hold on the same process (not AND-across-processes)."
// Each configured predicate may additionally retry at depth 0..WalkAncestors
// if it fails at depth 0; a single depth must satisfy every predicate the
// rule declares.
func ruleMatches(r *Rule, chain []procinfo.Process, users UserLookup, tags TagLookup) bool {
	maxDepth := 0
	if r.MatchUser != nil && r.MatchUser.WalkAncestors > maxDepth {
		maxDepth = r.MatchUser.WalkAncestors
	}
	if r.MatchBinary != nil && r.MatchBinary.WalkAncestors > maxDepth {
		maxDepth = r.MatchBinary.WalkAncestors
	}
	if r.MatchTag != nil && r.MatchTag.WalkAncestors > maxDepth {
		maxDepth = r.MatchTag.WalkAncestors
	}
	if maxDepth >= len(chain) {
		maxDepth = len(chain) - 1
	}

	for d := 0; d <= maxDepth; d++ {
		if d >= len(chain) {
			break
		}
		if predicatesHoldAtDepth(r, chain[d], d, users, tags) {
			return true
		}
	}
	return false
}

func predicatesHoldAtDepth(r *Rule, p procinfo.Process, depth int, users UserLookup, tags TagLookup) bool {
	if r.MatchUser != nil {
		if depth != 0 && depth > r.MatchUser.WalkAncestors {
			return false
		}
		if !matchUser(r.MatchUser, p, users) {
			return false
		}
	}
	if r.MatchBinary != nil {
		if depth != 0 && depth > r.MatchBinary.WalkAncestors {
			return false
		}
		if !matchBinary(r.MatchBinary, p) {
			return false
		}
	}
	if r.MatchTag != nil {
		if depth != 0 && depth > r.MatchTag.WalkAncestors {
			return false
		}
		if !matchTag(r.MatchTag, p, users, tags) {
			return false
		}
	}
	return r.MatchUser != nil || r.MatchBinary != nil || r.MatchTag != nil
}

func matchUser(m *UserMatch, p procinfo.Process, users UserLookup) bool {
	if m.User != nil {
		uid, ok := resolveID(*m.User, users.UID)
		if !ok || uid != p.EffectiveUID {
			return false
		}
	}
	if m.Group != nil {
		gid, ok := resolveID(*m.Group, users.GID)
		if !ok || gid != p.EffectiveGID {
			return false
		}
	}
	return m.User != nil || m.Group != nil
}

func matchBinary(m *BinaryMatch, p procinfo.Process) bool {
	if p.ResolvedBinary == "" || p.ResolvedBinary != m.Path {
		return false
	}
	if m.FirstArgPath != nil {
		if p.FirstCmdlineArg == "" || p.FirstCmdlineArg != *m.FirstArgPath {
			return false
		}
	}
	return true
}

func matchTag(m *TagMatch, p procinfo.Process, users UserLookup, tags TagLookup) bool {
	ownerUID, ok := resolveID(m.User, users.UID)
	if !ok {
		return false
	}
	procTags, procOwner, found := tags.Lookup(p.PID)
	if !found || procOwner != ownerUID || p.EffectiveUID != ownerUID {
		return false
	}
	for _, t := range procTags {
		if t == m.Tag {
			return true
		}
	}
	return false
}

func resolveID(s string, lookup func(string) (int, bool)) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	return lookup(s)
}
