// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package foreground

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/passworth/passworthd/internal/factor"
)

type memState struct{ m map[string][]byte }

func newMemState() *memState { return &memState{m: make(map[string][]byte)} }

func (s *memState) Get(_ context.Context, id string) ([]byte, bool, error) {
	v, ok := s.m[id]
	return v, ok, nil
}
func (s *memState) Set(_ context.Context, id string, data []byte) error {
	s.m[id] = data
	return nil
}
func (s *memState) Delete(_ context.Context, id string) error {
	delete(s.m, id)
	return nil
}

// scriptedUI answers a fixed password for every node and always confirms
// permission prompts, recording how many times each dialog fired.
type scriptedUI struct {
	password     []byte
	confirmCalls int
}

func (u *scriptedUI) PromptPassword(context.Context, string, *factor.Node) ([]byte, error) {
	return u.password, nil
}
func (u *scriptedUI) ChooseOrChild(context.Context, string, *factor.Node, []factor.ChildOption) (string, error) {
	return "", nil
}
func (u *scriptedUI) DecryptWithCard(context.Context, string, string, []byte) ([]byte, error) {
	return nil, nil
}
func (u *scriptedUI) NewPassword(context.Context, string, *factor.Node) ([]byte, error) {
	return u.password, nil
}
func (u *scriptedUI) AcquireCard(context.Context, string, *factor.Node, []string) (string, error) {
	return "", nil
}
func (u *scriptedUI) EncryptToCard(context.Context, string, []byte) ([]byte, error) {
	return nil, nil
}
func (u *scriptedUI) NewRecoveryPhrase(context.Context, string, *factor.Node, []string) error {
	return nil
}
func (u *scriptedUI) Confirm(context.Context, []string) (bool, error) {
	u.confirmCalls++
	return true, nil
}

func passwordTree(t *testing.T) *factor.Tree {
	t.Helper()
	tree, err := factor.BuildTree([]factor.Node{
		{ID: "root", Description: "unlock", Variant: factor.VariantPassword},
	}, "root")
	require.NoError(t, err)
	return tree
}

func TestChannelInitializeThenUnlockRoundTrip(t *testing.T) {
	ui := &scriptedUI{password: []byte("hunter2")}
	ch := NewChannel(4, ui)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	tree := passwordTree(t)
	state := newMemState()

	initRes, err := ch.Initialize(ctx, tree, nil, nil, state)
	require.NoError(t, err)
	require.NotEmpty(t, initRes.RootToken)
	for id, data := range initRes.StoreState {
		require.NoError(t, state.Set(ctx, id, data))
	}

	root, _, err := ch.Unlock(ctx, tree, state)
	require.NoError(t, err)
	require.Equal(t, initRes.RootToken, root)
}

func TestChannelConfirmServesPromptRequests(t *testing.T) {
	ui := &scriptedUI{password: []byte("hunter2")}
	ch := NewChannel(4, ui)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	ok, err := ch.Confirm(ctx, []string{"read /secrets/db"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, ui.confirmCalls)
}

func TestChannelUnlockRespectsContextCancellation(t *testing.T) {
	ui := &scriptedUI{password: []byte("hunter2")}
	ch := NewChannel(0, ui) // unbuffered with no Run loop draining it

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := ch.Unlock(ctx, passwordTree(t), newMemState())
	require.Error(t, err)
}
