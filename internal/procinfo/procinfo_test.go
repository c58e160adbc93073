// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package procinfo

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadProcessSelf(t *testing.T) {
	p, err := ReadProcess(os.Getpid())
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), p.PID)
	require.Equal(t, os.Getppid(), p.ParentPID)
	require.Equal(t, os.Geteuid(), p.EffectiveUID)
}

func TestAncestorsStopsAtPidZeroOrDepthCap(t *testing.T) {
	chain, err := Ancestors(os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, chain)
	require.LessOrEqual(t, len(chain), MaxAncestorDepth)
	require.Equal(t, os.Getpid(), chain[0].PID)
}

func TestTagTableRegisterLookupForget(t *testing.T) {
	tbl := NewTagTable()
	require.NoError(t, tbl.Register(os.Getpid(), os.Geteuid(), []string{"browser-fill"}))

	tags, owner, ok := tbl.Lookup(os.Getpid())
	require.True(t, ok)
	require.Equal(t, []string{"browser-fill"}, tags)
	require.Equal(t, os.Geteuid(), owner)

	tbl.Forget(os.Getpid())
	_, _, ok = tbl.Lookup(os.Getpid())
	require.False(t, ok)
}
