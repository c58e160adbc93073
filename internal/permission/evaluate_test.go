// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/procinfo"
)

type fixedUsers struct{}

func (fixedUsers) UID(name string) (int, bool) {
	if name == "alice" {
		return 1000, true
	}
	return 0, false
}
func (fixedUsers) GID(name string) (int, bool) { return 0, false }

type noTags struct{}

func (noTags) Lookup(pid int) ([]string, int, bool) { return nil, 0, false }

type alwaysConfirm struct{ called int }

func (a *alwaysConfirm) Confirm(_ context.Context, _ []string) (bool, error) {
	a.called++
	return true, nil
}

type alwaysDeny struct{}

func (alwaysDeny) Confirm(_ context.Context, _ []string) (bool, error) { return false, nil }

func mustGlob(t *testing.T, s string) pathcodec.GlobSegments {
	t.Helper()
	g, err := pathcodec.ParseGlob(s)
	require.NoError(t, err)
	return g
}

func mustPath(t *testing.T, s string) pathcodec.Segments {
	t.Helper()
	p, err := pathcodec.Parse(s)
	require.NoError(t, err)
	return p
}

func aliceChain() []procinfo.Process {
	return []procinfo.Process{{PID: 1, EffectiveUID: 1000, EffectiveGID: 1000}}
}

// TestAddingReadRuleOnlyIncreasesPermission covers spec §8 "Adding a rule
// with permit=Read that matches a path only increases the permission bits
// for that path."
func TestAddingReadRuleOnlyIncreasesPermission(t *testing.T) {
	before := Build(nil)
	err := Evaluate(context.Background(), before, aliceChain(), []pathcodec.Segments{mustPath(t, "/a")}, Read, fixedUsers{}, noTags{}, NewMemory(), nil, time.Now())
	require.Error(t, err)

	user := "alice"
	after := Build([]Rule{{
		ID:        "r1",
		Paths:     []pathcodec.GlobSegments{mustGlob(t, "/a")},
		MatchUser: &UserMatch{User: &user},
		Permit:    Read,
	}})
	err = Evaluate(context.Background(), after, aliceChain(), []pathcodec.Segments{mustPath(t, "/a")}, Read, fixedUsers{}, noTags{}, NewMemory(), nil, time.Now())
	require.NoError(t, err)
}

// TestCrossPathIntersection covers spec §8 scenario 6.
func TestCrossPathIntersection(t *testing.T) {
	user := "alice"
	tree := Build([]Rule{
		{ID: "read-a", Paths: []pathcodec.GlobSegments{mustGlob(t, "/a/*")}, MatchUser: &UserMatch{User: &user}, Permit: Read},
		{ID: "write-b", Paths: []pathcodec.GlobSegments{mustGlob(t, "/b/*")}, MatchUser: &UserMatch{User: &user}, Permit: Write},
	})

	err := Evaluate(context.Background(), tree, aliceChain(),
		[]pathcodec.Segments{mustPath(t, "/a/x"), mustPath(t, "/b/y")}, Read,
		fixedUsers{}, noTags{}, NewMemory(), nil, time.Now())
	require.Error(t, err)
	require.True(t, errs.IsAborted(err) == false)
}

func TestMatchBinaryRequiresResolvedPath(t *testing.T) {
	tree := Build([]Rule{{
		ID:          "bin",
		Paths:       []pathcodec.GlobSegments{mustGlob(t, "/a")},
		MatchBinary: &BinaryMatch{Path: "/usr/bin/firefox"},
		Permit:      Read,
	}})
	chain := []procinfo.Process{{PID: 1, ResolvedBinary: ""}} // unresolved due to namespace mismatch
	err := Evaluate(context.Background(), tree, chain, []pathcodec.Segments{mustPath(t, "/a")}, Read, fixedUsers{}, noTags{}, NewMemory(), nil, time.Now())
	require.Error(t, err)
}

func TestPromptRememberWindowSuppressesReprompt(t *testing.T) {
	user := "alice"
	tree := Build([]Rule{{
		ID:        "r1",
		Paths:     []pathcodec.GlobSegments{mustGlob(t, "/a")},
		MatchUser: &UserMatch{User: &user},
		Permit:    Read,
		Prompt:    &PromptSpec{Description: "read /a", RememberSeconds: 60},
	}})
	mem := NewMemory()
	confirm := &alwaysConfirm{}
	now := time.Now()

	err := Evaluate(context.Background(), tree, aliceChain(), []pathcodec.Segments{mustPath(t, "/a")}, Read, fixedUsers{}, noTags{}, mem, confirm, now)
	require.NoError(t, err)
	require.Equal(t, 1, confirm.called)

	err = Evaluate(context.Background(), tree, aliceChain(), []pathcodec.Segments{mustPath(t, "/a")}, Read, fixedUsers{}, noTags{}, mem, confirm, now.Add(5*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, confirm.called, "still within remember window")

	err = Evaluate(context.Background(), tree, aliceChain(), []pathcodec.Segments{mustPath(t, "/a")}, Read, fixedUsers{}, noTags{}, mem, confirm, now.Add(61*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, confirm.called, "remember window elapsed")
}

func TestPromptDenyAborts(t *testing.T) {
	user := "alice"
	tree := Build([]Rule{{
		ID:        "r1",
		Paths:     []pathcodec.GlobSegments{mustGlob(t, "/a")},
		MatchUser: &UserMatch{User: &user},
		Permit:    Read,
		Prompt:    &PromptSpec{Description: "read /a", RememberSeconds: 60},
	}})
	err := Evaluate(context.Background(), tree, aliceChain(), []pathcodec.Segments{mustPath(t, "/a")}, Read, fixedUsers{}, noTags{}, NewMemory(), alwaysDeny{}, time.Now())
	require.Error(t, err)
	require.True(t, errs.IsAborted(err))
}
