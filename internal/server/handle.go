// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/ipc"
	"github.com/passworth/passworthd/internal/otp"
	"github.com/passworth/passworthd/internal/permission"
	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/pgp"
	"github.com/passworth/passworthd/internal/procinfo"
	"github.com/passworth/passworthd/internal/revstore"
	"github.com/passworth/passworthd/internal/sshkey"
)

// HandleTag implements spec §6 "Tag command": the helper sends Tag(tags[])
// over the same socket the daemon accepted the connection on, and the
// daemon records the association against the connecting process's pidfd
// inode (resolved by the caller from the socket's peer credentials); a
// lookup only honours it while that PID still resolves to the same inode,
// i.e. while the same process is alive. This sits outside the §4.5 permission table: tagging
// a process one already owns requires no extra grant.
func (d *Dispatcher) HandleTag(pid, ownerUID int, tags []string) error {
	return d.tags.Register(pid, ownerUID, tags)
}

// requiredLevel maps a request kind to the permission level spec §4.5's
// table requires.
func requiredLevel(kind ipc.Kind) (permission.Level, bool) {
	switch kind {
	case ipc.KindLock, ipc.KindUnlock:
		return permission.Lock, true
	case ipc.KindMetaKeys, ipc.KindMetaRevisions, ipc.KindMetaPgpPubkey, ipc.KindMetaSshPubkey:
		return permission.Meta, true
	case ipc.KindRead:
		return permission.Read, true
	case ipc.KindWrite, ipc.KindWriteMove, ipc.KindWriteGenerate, ipc.KindWriteRevert:
		return permission.Write, true
	case ipc.KindDerivePgpSign, ipc.KindDerivePgpDecrypt, ipc.KindDeriveOtp:
		return permission.Derive, true
	default:
		return 0, false
	}
}

// Handle routes one parsed request through the permission check and then
// to its kind-specific implementation, returning the value to marshal as
// the response's "ok" payload.
func (d *Dispatcher) Handle(ctx context.Context, env ipc.Envelope, chain []procinfo.Process) (result any, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		d.metrics.requestsTotal.WithLabelValues(string(env.Kind), outcome).Inc()
		d.metrics.requestDuration.WithLabelValues(string(env.Kind)).Observe(time.Since(start).Seconds())
	}()

	level, ok := requiredLevel(env.Kind)
	if !ok {
		return nil, errs.New(errs.KindInternal, "unrecognized request kind")
	}

	paths, err := parsePermissionPaths(env.PathsForPermission())
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := permission.Evaluate(ctx, d.cfg.AccessTree, chain, paths, level, d.users, d.tags, d.prompts, d.channel, now); err != nil {
		d.metrics.permissionDenied.WithLabelValues(level.String()).Inc()
		d.log.Debug("permission denied", "kind", env.Kind, "level", level.String(), "error", err)
		return nil, err
	}

	if env.Kind == ipc.KindLock {
		d.Lock()
		return nil, nil
	}

	if err := d.ensureUnlocked(ctx); err != nil {
		return nil, err
	}
	d.touch()

	if env.Kind == ipc.KindUnlock {
		return nil, nil
	}

	store := d.storeHandle()
	switch env.Kind {
	case ipc.KindMetaKeys:
		return d.handleMetaKeys(ctx, store, paths, env.At)
	case ipc.KindMetaRevisions:
		return d.handleMetaRevisions(ctx, store, paths, env.At)
	case ipc.KindMetaPgpPubkey:
		return d.handleMetaPgpPubkey(ctx, store, paths[0], env.At)
	case ipc.KindMetaSshPubkey:
		return d.handleMetaSshPubkey(ctx, store, paths[0], env.At)
	case ipc.KindRead:
		return d.handleRead(ctx, store, paths, env.At)
	case ipc.KindWrite:
		return d.handleWrite(ctx, store, now, env)
	case ipc.KindWriteMove:
		return nil, d.handleWriteMove(ctx, store, now, env)
	case ipc.KindWriteGenerate:
		return d.handleWriteGenerate(ctx, store, now, env)
	case ipc.KindWriteRevert:
		return nil, d.handleWriteRevert(ctx, store, now, paths, env.At)
	case ipc.KindDerivePgpSign:
		return d.handleDerivePgpSign(ctx, store, env)
	case ipc.KindDerivePgpDecrypt:
		return d.handleDerivePgpDecrypt(ctx, store, env)
	case ipc.KindDeriveOtp:
		return d.handleDeriveOtp(ctx, store, paths[0], now)
	default:
		return nil, errs.New(errs.KindInternal, "unhandled request kind")
	}
}

func parsePermissionPaths(raw []string) ([]pathcodec.Segments, error) {
	out := make([]pathcodec.Segments, 0, len(raw))
	for _, p := range raw {
		segs, err := pathcodec.Parse(p)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "parse request path", err)
		}
		out = append(out, segs)
	}
	return out, nil
}

func (d *Dispatcher) handleMetaKeys(ctx context.Context, store *revstore.Store, paths []pathcodec.Segments, at *int64) (any, error) {
	out := make(map[string]json.RawMessage, len(paths))
	for _, p := range paths {
		tree, exists, err := store.ReadPrefix(ctx, p, at)
		if err != nil {
			return nil, err
		}
		if !exists {
			out[pathcodec.Render(p)] = json.RawMessage("null")
			continue
		}
		nulled, err := nullLeaves(tree)
		if err != nil {
			return nil, err
		}
		out[pathcodec.Render(p)] = nulled
	}
	return out, nil
}

func (d *Dispatcher) handleMetaRevisions(ctx context.Context, store *revstore.Store, paths []pathcodec.Segments, at *int64) (any, error) {
	out := make(map[string]*revisionTreeNode, len(paths))
	for _, p := range paths {
		entries, err := store.RevisionsPrefix(ctx, p, at)
		if err != nil {
			return nil, err
		}
		tree, err := buildRevisionTree(p, entries)
		if err != nil {
			return nil, err
		}
		out[pathcodec.Render(p)] = tree
	}
	return out, nil
}

func (d *Dispatcher) handleMetaPgpPubkey(ctx context.Context, store *revstore.Store, path pathcodec.Segments, at *int64) (any, error) {
	secret, ok, err := readSecretString(ctx, store, path, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "no secret stored at path")
	}
	return pgp.PublicArmor([]byte(secret))
}

func (d *Dispatcher) handleMetaSshPubkey(ctx context.Context, store *revstore.Store, path pathcodec.Segments, at *int64) (any, error) {
	secret, ok, err := readSecretString(ctx, store, path, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "no secret stored at path")
	}
	return sshkey.PublicKeyFromPEM([]byte(secret))
}

func (d *Dispatcher) handleRead(ctx context.Context, store *revstore.Store, paths []pathcodec.Segments, at *int64) (any, error) {
	out := make(map[string]json.RawMessage, len(paths))
	for _, p := range paths {
		v, ok, err := store.ReadPrefix(ctx, p, at)
		if err != nil {
			return nil, err
		}
		if !ok {
			out[pathcodec.Render(p)] = json.RawMessage("null")
			continue
		}
		out[pathcodec.Render(p)] = v
	}
	return out, nil
}

func (d *Dispatcher) handleWrite(ctx context.Context, store *revstore.Store, now time.Time, env ipc.Envelope) (any, error) {
	pairs := env.Pairs
	if len(pairs) == 0 && env.Path != "" {
		pairs = []ipc.WritePair{{Path: env.Path, Value: json.RawMessage(env.Value)}}
	}
	writes := make([]revstore.WritePair, 0, len(pairs))
	for _, p := range pairs {
		segs, err := pathcodec.Parse(p.Path)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "parse write path", err)
		}
		writes = append(writes, revstore.WritePair{Path: segs, Value: p.Value})
	}
	return store.Write(ctx, now, writes)
}

func (d *Dispatcher) handleWriteMove(ctx context.Context, store *revstore.Store, now time.Time, env ipc.Envelope) error {
	from, err := pathcodec.Parse(env.From)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "parse move from path", err)
	}
	to, err := pathcodec.Parse(env.To)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "parse move to path", err)
	}
	return store.Move(ctx, now, from, to, env.Overwrite)
}

func (d *Dispatcher) handleWriteRevert(ctx context.Context, store *revstore.Store, now time.Time, paths []pathcodec.Segments, at *int64) error {
	if len(paths) != 1 || at == nil {
		return errs.New(errs.KindInternal, "write_revert requires exactly one path and an at revision")
	}
	return store.Revert(ctx, now, paths[0], *at)
}

func (d *Dispatcher) handleWriteGenerate(ctx context.Context, store *revstore.Store, now time.Time, env ipc.Envelope) (any, error) {
	path, err := pathcodec.Parse(env.Path)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "parse write_generate path", err)
	}
	if !env.Overwrite {
		if _, ok, err := store.ReadExact(ctx, path, nil); err != nil {
			return nil, err
		} else if ok {
			return nil, errs.New(errs.KindUnauthorized, "refusing to overwrite existing secret")
		}
	}

	value, err := generateValue(env.Variant)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "marshal generated value", err)
	}
	if _, err := store.Write(ctx, now, []revstore.WritePair{{Path: path, Value: encoded}}); err != nil {
		return nil, err
	}
	return value, nil
}

func (d *Dispatcher) handleDerivePgpSign(ctx context.Context, store *revstore.Store, env ipc.Envelope) (any, error) {
	path, err := pathcodec.Parse(env.Key)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "parse derive_pgp_sign key path", err)
	}
	secret, ok, err := readSecretString(ctx, store, path, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "no secret stored at path")
	}
	data, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "decode derive_pgp_sign data", err)
	}
	return pgp.Sign([]byte(secret), data)
}

func (d *Dispatcher) handleDerivePgpDecrypt(ctx context.Context, store *revstore.Store, env ipc.Envelope) (any, error) {
	path, err := pathcodec.Parse(env.Key)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "parse derive_pgp_decrypt key path", err)
	}
	secret, ok, err := readSecretString(ctx, store, path, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "no secret stored at path")
	}
	message, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "decode derive_pgp_decrypt data", err)
	}
	plaintext, err := pgp.Decrypt([]byte(secret), message)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString(plaintext), nil
}

func (d *Dispatcher) handleDeriveOtp(ctx context.Context, store *revstore.Store, path pathcodec.Segments, now time.Time) (any, error) {
	secret, ok, err := readSecretString(ctx, store, path, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.KindUnauthorized, "no secret stored at path")
	}
	return otp.CurrentCode(secret, now)
}

// readSecretString reads a stored value expected to be a JSON string
// (an armored key, an otpauth:// URL) and unwraps it.
func readSecretString(ctx context.Context, store *revstore.Store, path pathcodec.Segments, at *int64) (string, bool, error) {
	raw, ok, err := store.ReadExact(ctx, path, at)
	if err != nil || !ok {
		return "", ok, err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, errs.Wrap(errs.KindInternal, "stored secret is not a string", err)
	}
	return s, true, nil
}
