// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pathcodec converts between the canonical hierarchical path string
// and an ordered sequence of segments, per spec §4.1.
package pathcodec

import (
	"strings"

	"github.com/passworth/passworthd/internal/errs"
)

// Segments is an ordered sequence of non-empty UTF-8 path segments.
type Segments []string

// Parse converts a canonical path string into its segment sequence. A
// non-empty input must begin with "/"; within a segment, "\/" and "\\" are
// unescaped. The empty string yields the empty sequence.
//
// Segments are delimited by unescaped "/" bytes; a leading "/" begins the
// first segment rather than producing a leading empty one, so the
// remainder of the string is split on every subsequent unescaped "/".
func Parse(canonical string) (Segments, error) {
	if canonical == "" {
		return Segments{}, nil
	}
	if canonical[0] != '/' {
		return nil, errs.New(errs.KindInternal, "path must start with '/'")
	}

	var segs Segments
	var cur strings.Builder
	escaping := false

	for i := 1; i < len(canonical); i++ {
		c := canonical[i]
		if escaping {
			if c != '/' && c != '\\' {
				return nil, errs.New(errs.KindInternal, "invalid escape sequence in path")
			}
			cur.WriteByte(c)
			escaping = false
			continue
		}
		switch c {
		case '\\':
			escaping = true
		case '/':
			if cur.Len() == 0 {
				return nil, errs.New(errs.KindInternal, "path segment must not be empty")
			}
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escaping {
		return nil, errs.New(errs.KindInternal, "dangling escape at end of path")
	}
	if cur.Len() == 0 {
		return nil, errs.New(errs.KindInternal, "path segment must not be empty")
	}
	segs = append(segs, cur.String())
	return segs, nil
}

// Render converts a segment sequence into its canonical path string,
// escaping "\" and "/" within each segment and prepending "/" to each.
func Render(segs Segments) string {
	if len(segs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		for i := 0; i < len(s); i++ {
			c := s[i]
			if c == '\\' || c == '/' {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsPrefixOf reports whether p is a (possibly non-strict) ancestor path of
// other: p == other, or other's canonical string starts with p's canonical
// string followed by "/".
func IsPrefixOf(p, other Segments) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsStrictPrefixOf reports whether p is a strict ancestor of other.
func IsStrictPrefixOf(p, other Segments) bool {
	return len(p) < len(other) && IsPrefixOf(p, other)
}

// Join appends child segments to a parent path, returning a new sequence.
func Join(parent Segments, child ...string) Segments {
	out := make(Segments, 0, len(parent)+len(child))
	out = append(out, parent...)
	out = append(out, child...)
	return out
}

// GlobSegment is one element of a glob path: either a literal string or the
// wildcard token.
type GlobSegment struct {
	Wildcard bool
	Literal  string
}

// GlobSegments is an ordered sequence of glob segments.
type GlobSegments []GlobSegment

// ParseGlob extends Parse: a segment that is exactly the single character
// "*" (after unescaping) becomes a Wildcard; any other segment is a
// Literal.
func ParseGlob(canonical string) (GlobSegments, error) {
	segs, err := Parse(canonical)
	if err != nil {
		return nil, err
	}
	out := make(GlobSegments, len(segs))
	for i, s := range segs {
		if s == "*" {
			out[i] = GlobSegment{Wildcard: true}
		} else {
			out[i] = GlobSegment{Literal: s}
		}
	}
	return out, nil
}

// Matches reports whether a concrete segment sequence matches this glob:
// equal length, with each glob segment either Wildcard or equal to the
// corresponding literal segment.
func (g GlobSegments) Matches(segs Segments) bool {
	if len(g) != len(segs) {
		return false
	}
	for i, gs := range g {
		if !gs.Wildcard && gs.Literal != segs[i] {
			return false
		}
	}
	return true
}
