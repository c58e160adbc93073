// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package factor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/passworth/passworthd/internal/cryptoutil"
	"github.com/passworth/passworthd/internal/errs"
)

type memState struct {
	m map[string][]byte
}

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

// fakeUI answers scripted responses and records which methods were called,
// so tests can assert a reused token never re-prompted.
type fakeUI struct {
	passwords   map[string][]byte // node id -> token to return from PromptPassword/NewPassword
	chooseChild map[string]string // node id -> child id to return from ChooseOrChild
	calls       map[string]int
}

func newFakeUI() *fakeUI {
	return &fakeUI{
		passwords:   map[string][]byte{},
		chooseChild: map[string]string{},
		calls:       map[string]int{},
	}
}

func (f *fakeUI) PromptPassword(_ context.Context, _ string, node *Node) ([]byte, error) {
	f.calls["PromptPassword:"+node.ID]++
	return f.passwords[node.ID], nil
}

func (f *fakeUI) ChooseOrChild(_ context.Context, _ string, node *Node, _ []ChildOption) (string, error) {
	f.calls["ChooseOrChild:"+node.ID]++
	return f.chooseChild[node.ID], nil
}

func (f *fakeUI) DecryptWithCard(_ context.Context, _ string, fingerprint string, sealed []byte) ([]byte, error) {
	f.calls["DecryptWithCard:"+fingerprint]++
	return nil, errs.New(errs.KindFactorMismatch, "no card")
}

func (f *fakeUI) NewPassword(_ context.Context, _ string, node *Node) ([]byte, error) {
	f.calls["NewPassword:"+node.ID]++
	return f.passwords[node.ID], nil
}

func (f *fakeUI) AcquireCard(_ context.Context, _ string, _ *Node, wanted []string) (string, error) {
	f.calls["AcquireCard"]++
	return wanted[0], nil
}

func (f *fakeUI) EncryptToCard(_ context.Context, _ string, token []byte) ([]byte, error) {
	f.calls["EncryptToCard"]++
	return append([]byte("card:"), token...), nil
}

func (f *fakeUI) NewRecoveryPhrase(_ context.Context, _ string, node *Node, _ []string) error {
	f.calls["NewRecoveryPhrase:"+node.ID]++
	return nil
}

func orTree(t *testing.T) (*Tree, []byte, []byte) {
	t.Helper()
	pwA := []byte("password-token-for-child-a-32by")
	pwB := []byte("password-token-for-child-b-32by")
	tree, err := BuildTree([]Node{
		{ID: "or1", Variant: VariantOr, Children: []string{"a", "b"}},
		{ID: "a", Variant: VariantPassword},
		{ID: "b", Variant: VariantPassword},
	}, "or1")
	require.NoError(t, err)
	return tree, pwA, pwB
}

func TestUnlockOrChoosesChildAndDecryptsSharedToken(t *testing.T) {
	ctx := context.Background()
	tree, pwA, pwB := orTree(t)
	orToken, err := cryptoutil.RandomToken()
	require.NoError(t, err)

	sealedA, err := cryptoutil.Encrypt(pwA, orToken)
	require.NoError(t, err)
	sealedB, err := cryptoutil.Encrypt(pwB, orToken)
	require.NoError(t, err)

	state := newMemState()
	encoded, err := encodeB64Map(map[string][]byte{"a": sealedA, "b": sealedB})
	require.NoError(t, err)
	require.NoError(t, state.Set(ctx, "or1", encoded))

	ui := newFakeUI()
	ui.passwords["a"] = pwA
	ui.chooseChild["or1"] = "a"

	e := NewEngine(ui)
	root, prevTokens, err := e.Unlock(ctx, tree, state)
	require.NoError(t, err)
	require.Equal(t, orToken, root)
	require.Equal(t, orToken, prevTokens["or1"])
	require.Equal(t, pwA, prevTokens["a"])
	require.Equal(t, 0, ui.calls["PromptPassword:b"])
}

func TestInitializeReusesUnchangedPasswordToken(t *testing.T) {
	ctx := context.Background()
	tree, err := BuildTree([]Node{{ID: "pw", Variant: VariantPassword}}, "pw")
	require.NoError(t, err)

	prevTokens := map[string][]byte{"pw": []byte("already-unlocked-token-32-bytes!")}
	ui := newFakeUI()
	e := NewEngine(ui)

	res, err := e.Initialize(ctx, tree, tree, prevTokens, newMemState())
	require.NoError(t, err)
	require.Equal(t, prevTokens["pw"], res.RootToken)
	require.Equal(t, 0, ui.calls["NewPassword:pw"])
}

func TestInitializeOrAddingChildPreservesRootToken(t *testing.T) {
	ctx := context.Background()
	oldTree, err := BuildTree([]Node{
		{ID: "or1", Variant: VariantOr, Children: []string{"a"}},
		{ID: "a", Variant: VariantPassword},
	}, "or1")
	require.NoError(t, err)

	pwA := []byte("password-token-for-child-a-32by")
	orToken, err := cryptoutil.RandomToken()
	require.NoError(t, err)
	sealedA, err := cryptoutil.Encrypt(pwA, orToken)
	require.NoError(t, err)

	state := newMemState()
	encodedOld, err := encodeB64Map(map[string][]byte{"a": sealedA})
	require.NoError(t, err)
	require.NoError(t, state.Set(ctx, "or1", encodedOld))

	newTree, err := BuildTree([]Node{
		{ID: "or1", Variant: VariantOr, Children: []string{"a", "b"}},
		{ID: "a", Variant: VariantPassword},
		{ID: "b", Variant: VariantPassword},
	}, "or1")
	require.NoError(t, err)

	pwB := []byte("password-token-for-child-b-32by")
	ui := newFakeUI()
	ui.passwords["b"] = pwB
	e := NewEngine(ui)

	prevTokens := map[string][]byte{"or1": orToken, "a": pwA}
	res, err := e.Initialize(ctx, newTree, oldTree, prevTokens, state)
	require.NoError(t, err)
	require.Equal(t, orToken, res.RootToken)
	require.Contains(t, res.StoreState, "or1")

	entries, err := decodeOrState(true, res.StoreState["or1"])
	require.NoError(t, err)
	require.Equal(t, sealedA, entries["a"])

	recoveredB, err := cryptoutil.Decrypt(pwB, entries["b"])
	require.NoError(t, err)
	require.Equal(t, orToken, recoveredB)
}

func TestInitializeRemovedNodesReportedForCleanup(t *testing.T) {
	ctx := context.Background()
	oldTree, err := BuildTree([]Node{
		{ID: "or1", Variant: VariantOr, Children: []string{"a", "b"}},
		{ID: "a", Variant: VariantPassword},
		{ID: "b", Variant: VariantPassword},
	}, "or1")
	require.NoError(t, err)

	newTree, err := BuildTree([]Node{
		{ID: "or1", Variant: VariantOr, Children: []string{"a"}},
		{ID: "a", Variant: VariantPassword},
	}, "or1")
	require.NoError(t, err)

	ui := newFakeUI()
	ui.passwords["a"] = []byte("password-token-for-child-a-32by")
	e := NewEngine(ui)

	res, err := e.Initialize(ctx, newTree, oldTree, nil, newMemState())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b"}, res.RemoveState)
}
