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

// Package permission implements the glob-tree permission evaluator: rules
// matched against a requester's process ancestry, unioned per query path and
// intersected across paths, gated by cached user prompts (spec §4.4).
package permission

import (
	"github.com/passworth/passworthd/internal/pathcodec"
)

// Level is one of the five ordered permission bits, spec §3 "permit_level
// is an ordered enum Lock < Meta < Derive < Read < Write; each higher level
// implies all lower permissions."
type Level int

const (
	Lock Level = iota
	Meta
	Derive
	Read
	Write
)

func (l Level) String() string {
	switch l {
	case Lock:
		return "lock"
	case Meta:
		return "meta"
	case Derive:
		return "derive"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// ParseLevel parses the config file's permit strings (spec §6).
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "lock":
		return Lock, true
	case "meta":
		return Meta, true
	case "derive":
		return Derive, true
	case "read":
		return Read, true
	case "write":
		return Write, true
	default:
		return 0, false
	}
}

// Bits is a bitset over the five Level values; bit i set means level i is
// granted. Because higher levels imply all lower ones, a single granted
// Level expands to every bit from Lock up to and including itself.
type Bits uint8

// LevelBits expands a single granted level into its implied bitset.
func LevelBits(l Level) Bits {
	return Bits(1<<(uint(l)+1) - 1)
}

// Has reports whether every bit required is present in b.
func (b Bits) Has(required Level) bool {
	return b&(1<<uint(required)) != 0
}

// Union is the per-path accumulation rule (spec §4.4 step 3).
func (b Bits) Union(other Bits) Bits { return b | other }

// Intersect is the cross-path accumulation rule (spec §4.4 step 4): the
// most restrictive path wins.
func (b Bits) Intersect(other Bits) Bits { return b & other }

// UserMatch is the match_user predicate, spec §6.
type UserMatch struct {
	User          *string
	Group         *string
	WalkAncestors int
}

// BinaryMatch is the match_binary predicate, spec §6.
type BinaryMatch struct {
	Path          string
	FirstArgPath  *string
	WalkAncestors int
}

// TagMatch is the match_tag predicate, spec §6.
type TagMatch struct {
	Tag           string
	User          string
	WalkAncestors int
}

// PromptSpec gates a rule behind a confirmed foreground dialog, spec §6.
type PromptSpec struct {
	Description     string
	RememberSeconds int
}

// Rule is one permission rule, spec §3 "Permission rule".
type Rule struct {
	ID          string
	Paths       []pathcodec.GlobSegments
	MatchTag    *TagMatch
	MatchUser   *UserMatch
	MatchBinary *BinaryMatch
	Permit      Level
	Prompt      *PromptSpec
}
