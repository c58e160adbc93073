// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/passworth/passworthd/internal/config"
	"github.com/passworth/passworthd/internal/factor"
	"github.com/passworth/passworthd/internal/foreground"
	"github.com/passworth/passworthd/internal/ipc"
	"github.com/passworth/passworthd/internal/procinfo"
	"github.com/passworth/passworthd/internal/sqlitekv"
)

type fixedPasswordUI struct{ password []byte }

func (u *fixedPasswordUI) PromptPassword(context.Context, string, *factor.Node) ([]byte, error) {
	return u.password, nil
}
func (u *fixedPasswordUI) ChooseOrChild(context.Context, string, *factor.Node, []factor.ChildOption) (string, error) {
	return "", nil
}
func (u *fixedPasswordUI) DecryptWithCard(context.Context, string, string, []byte) ([]byte, error) {
	return nil, nil
}
func (u *fixedPasswordUI) NewPassword(context.Context, string, *factor.Node) ([]byte, error) {
	return u.password, nil
}
func (u *fixedPasswordUI) AcquireCard(context.Context, string, *factor.Node, []string) (string, error) {
	return "", nil
}
func (u *fixedPasswordUI) EncryptToCard(context.Context, string, []byte) ([]byte, error) {
	return nil, nil
}
func (u *fixedPasswordUI) NewRecoveryPhrase(context.Context, string, *factor.Node, []string) error {
	return nil
}
func (u *fixedPasswordUI) Confirm(context.Context, []string) (bool, error) { return true, nil }

func newTestDispatcher(t *testing.T) (*Dispatcher, context.Context) {
	t.Helper()
	dir := t.TempDir()

	cfgJSON := fmt.Sprintf(`{
		"data_path": %q,
		"auth_factors": [
			{"id": "pw", "description": "master password", "variant": "password"}
		],
		"root_factor": "pw",
		"lock_timeout": 3600,
		"access": [
			{"id": "owner-all", "paths": ["/*"], "match_user": {"user": %q}, "permit": "write"}
		]
	}`, dir, fmt.Sprint(os.Getuid()))

	cfg, err := config.Parse([]byte(cfgJSON))
	require.NoError(t, err)

	pubDB, err := sqlitekv.Open(filepath.Join(dir, "pub.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pubDB.Close() })

	ctx := context.Background()
	pubStore, err := config.OpenPubStore(ctx, pubDB)
	require.NoError(t, err)

	ui := &fixedPasswordUI{password: []byte("correct horse battery staple")}
	channel := foreground.NewChannel(4, ui)
	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go channel.Run(runCtx)

	initRes, err := channel.Initialize(ctx, cfg.FactorTree, nil, nil, pubStore)
	require.NoError(t, err)
	for id, data := range initRes.StoreState {
		require.NoError(t, pubStore.Set(ctx, id, data))
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := NewMetrics(prometheus.NewRegistry())
	d := New(cfg, pubDB, pubStore, channel, metrics, log)
	t.Cleanup(d.Close)

	return d, ctx
}

func selfChain(t *testing.T) []procinfo.Process {
	t.Helper()
	chain, err := procinfo.Ancestors(os.Getpid())
	require.NoError(t, err)
	return chain
}

func TestDispatcherWriteThenReadRoundTrip(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	chain := selfChain(t)

	_, err := d.Handle(ctx, ipc.Envelope{
		Kind: ipc.KindWrite,
		Pairs: []ipc.WritePair{
			{Path: "/db/password", Value: json.RawMessage(`"hunter2"`)},
		},
	}, chain)
	require.NoError(t, err)

	got, err := d.Handle(ctx, ipc.Envelope{Kind: ipc.KindRead, Paths: []string{"/db/password"}}, chain)
	require.NoError(t, err)
	m, ok := got.(map[string]json.RawMessage)
	require.True(t, ok)
	require.JSONEq(t, `"hunter2"`, string(m["/db/password"]))
}

func TestDispatcherLockClearsRootToken(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	chain := selfChain(t)

	_, err := d.Handle(ctx, ipc.Envelope{
		Kind:  ipc.KindWrite,
		Pairs: []ipc.WritePair{{Path: "/a", Value: json.RawMessage(`"v"`)}},
	}, chain)
	require.NoError(t, err)
	require.NotNil(t, d.storeHandle())

	_, err = d.Handle(ctx, ipc.Envelope{Kind: ipc.KindLock}, chain)
	require.NoError(t, err)
	require.Nil(t, d.storeHandle())
}

func TestDispatcherMetaKeysReturnsNullSkeleton(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	chain := selfChain(t)

	_, err := d.Handle(ctx, ipc.Envelope{
		Kind:  ipc.KindWrite,
		Pairs: []ipc.WritePair{{Path: "/db/user", Value: json.RawMessage(`"alice"`)}},
	}, chain)
	require.NoError(t, err)

	got, err := d.Handle(ctx, ipc.Envelope{Kind: ipc.KindMetaKeys, Paths: []string{"/db"}}, chain)
	require.NoError(t, err)
	m := got.(map[string]json.RawMessage)
	require.JSONEq(t, `{"user":null}`, string(m["/db"]))
}

func TestDispatcherIdleWatcherLocksAfterTimeout(t *testing.T) {
	d, ctx := newTestDispatcher(t)
	chain := selfChain(t)
	d.cfg.LockTimeout = 50 * time.Millisecond

	_, err := d.Handle(ctx, ipc.Envelope{
		Kind:  ipc.KindWrite,
		Pairs: []ipc.WritePair{{Path: "/a", Value: json.RawMessage(`"v"`)}},
	}, chain)
	require.NoError(t, err)
	require.NotNil(t, d.storeHandle())

	require.Eventually(t, func() bool {
		return d.storeHandle() == nil
	}, 3*time.Second, 20*time.Millisecond)
}
