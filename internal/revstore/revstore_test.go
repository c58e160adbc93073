// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package revstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/sqlitekv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlitekv.Open(filepath.Join(dir, "priv.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := Open(context.Background(), db, []byte("test-root-token-32-bytes-long!!"))
	require.NoError(t, err)
	return s
}

func mustSegs(t *testing.T, s string) pathcodec.Segments {
	t.Helper()
	segs, err := pathcodec.Parse(s)
	require.NoError(t, err)
	return segs
}

// TestWriteReadRoundTrip is scenario 1 from spec §8.
func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Write(ctx, time.Now(), []WritePair{
		{Path: mustSegs(t, "/a/b"), Value: json.RawMessage(`"hello"`)},
	})
	require.NoError(t, err)

	got, exists, err := s.ReadPrefix(ctx, mustSegs(t, "/a"), nil)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `{"b":"hello"}`, string(got))
}

// TestSubtreeShadowing is scenario 2 from spec §8.
func TestSubtreeShadowing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	revs1, err := s.Write(ctx, time.Now(), []WritePair{
		{Path: mustSegs(t, "/a/b"), Value: json.RawMessage(`"hello"`)},
	})
	require.NoError(t, err)
	r1 := revs1[len(revs1)-1]

	_, err = s.Write(ctx, time.Now(), []WritePair{
		{Path: mustSegs(t, "/a"), Value: json.RawMessage(`"scalar"`)},
	})
	require.NoError(t, err)

	_, exists, err := s.ReadExact(ctx, mustSegs(t, "/a/b"), nil)
	require.NoError(t, err)
	require.False(t, exists)

	got, exists, err := s.ReadExact(ctx, mustSegs(t, "/a"), nil)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `"scalar"`, string(got))

	// TestHistoricalRead: scenario 3.
	hist, exists, err := s.ReadExact(ctx, mustSegs(t, "/a/b"), &r1)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `"hello"`, string(hist))
}

// TestRevert is scenario 4 from spec §8.
func TestRevert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	revs1, err := s.Write(ctx, time.Now(), []WritePair{
		{Path: mustSegs(t, "/a/b"), Value: json.RawMessage(`"hello"`)},
	})
	require.NoError(t, err)
	r1 := revs1[len(revs1)-1]

	revs2, err := s.Write(ctx, time.Now(), []WritePair{
		{Path: mustSegs(t, "/a"), Value: json.RawMessage(`"scalar"`)},
	})
	require.NoError(t, err)
	r2 := revs2[len(revs2)-1]

	require.NoError(t, s.Revert(ctx, time.Now(), mustSegs(t, "/a"), r1))

	got, exists, err := s.ReadPrefix(ctx, mustSegs(t, "/a"), nil)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `{"b":"hello"}`, string(got))

	// The historical read at r2 is untouched by the revert.
	histGot, exists, err := s.ReadExact(ctx, mustSegs(t, "/a"), &r2)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `"scalar"`, string(histGot))
}

func TestWriteMoveRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Write(ctx, time.Now(), []WritePair{
		{Path: mustSegs(t, "/a"), Value: json.RawMessage(`"one"`)},
		{Path: mustSegs(t, "/b"), Value: json.RawMessage(`"two"`)},
	})
	require.NoError(t, err)

	err = s.Move(ctx, time.Now(), mustSegs(t, "/a"), mustSegs(t, "/b"), false)
	require.Error(t, err)

	require.NoError(t, s.Move(ctx, time.Now(), mustSegs(t, "/a"), mustSegs(t, "/b"), true))

	got, exists, err := s.ReadExact(ctx, mustSegs(t, "/b"), nil)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `"one"`, string(got))

	_, exists, err = s.ReadExact(ctx, mustSegs(t, "/a"), nil)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestWriteObjectRecursion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Write(ctx, time.Now(), []WritePair{
		{Path: mustSegs(t, "/creds"), Value: json.RawMessage(`{"user":"alice","pass":"hunter2"}`)},
	})
	require.NoError(t, err)

	got, exists, err := s.ReadPrefix(ctx, mustSegs(t, "/creds"), nil)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `{"user":"alice","pass":"hunter2"}`, string(got))

	userOnly, exists, err := s.ReadExact(ctx, mustSegs(t, "/creds/user"), nil)
	require.NoError(t, err)
	require.True(t, exists)
	require.JSONEq(t, `"alice"`, string(userOnly))
}
