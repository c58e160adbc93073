// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pathcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmpty(t *testing.T) {
	segs, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestParseRenderRoundTrip(t *testing.T) {
	cases := []string{
		"/a",
		"/a/b/c",
		`/a\/b`,
		`/a\\b`,
		"/foo/bar/baz",
	}
	for _, c := range cases {
		segs, err := Parse(c)
		require.NoError(t, err, c)
		assert.Equal(t, c, Render(segs), c)
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	cases := []Segments{
		{"a"},
		{"a", "b"},
		{"a/b"},
		{`a\b`},
		{"a", "b/c", `d\e`},
	}
	for _, segs := range cases {
		rendered := Render(segs)
		back, err := Parse(rendered)
		require.NoError(t, err)
		assert.Equal(t, segs, back)
	}
}

func TestParseRejectsMissingLeadingSlash(t *testing.T) {
	_, err := Parse("a/b")
	assert.Error(t, err)
}

func TestParseRejectsEmptySegment(t *testing.T) {
	_, err := Parse("/a//b")
	assert.Error(t, err)

	_, err = Parse("/a/")
	assert.Error(t, err)
}

func TestParseGlobWildcard(t *testing.T) {
	g, err := ParseGlob("/a/*/c")
	require.NoError(t, err)
	require.Len(t, g, 3)
	assert.False(t, g[0].Wildcard)
	assert.Equal(t, "a", g[0].Literal)
	assert.True(t, g[1].Wildcard)
	assert.False(t, g[2].Wildcard)
	assert.Equal(t, "c", g[2].Literal)
}

func TestGlobMatches(t *testing.T) {
	g, err := ParseGlob("/a/*/c")
	require.NoError(t, err)

	assert.True(t, g.Matches(Segments{"a", "x", "c"}))
	assert.False(t, g.Matches(Segments{"a", "x", "d"}))
	assert.False(t, g.Matches(Segments{"a", "x"}))
}

func TestIsPrefixOf(t *testing.T) {
	assert.True(t, IsPrefixOf(Segments{"a"}, Segments{"a", "b"}))
	assert.True(t, IsPrefixOf(Segments{"a", "b"}, Segments{"a", "b"}))
	assert.False(t, IsPrefixOf(Segments{"a", "b"}, Segments{"a"}))
	assert.True(t, IsStrictPrefixOf(Segments{"a"}, Segments{"a", "b"}))
	assert.False(t, IsStrictPrefixOf(Segments{"a"}, Segments{"a"}))
}

func TestParseTreatsStarAsLiteralSegment(t *testing.T) {
	// Parse has no wildcard notion: "*" is an ordinary literal segment.
	// Only ParseGlob turns it into a Wildcard, and "\*" is not a valid
	// escape, so a glob cannot spell a literal "*" segment.
	segs, err := Parse("/*")
	require.NoError(t, err)
	assert.Equal(t, Segments{"*"}, segs)
}
