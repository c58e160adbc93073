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

// Package server implements the request dispatcher of spec §4.5: the
// unlock singleton, idle-lock timer, and routing of each ipc.Envelope kind
// to the revision store, factor engine, and permission evaluator.
package server

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/passworth/passworthd/internal/config"
	"github.com/passworth/passworthd/internal/cryptoutil"
	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/foreground"
	"github.com/passworth/passworthd/internal/permission"
	"github.com/passworth/passworthd/internal/procinfo"
	"github.com/passworth/passworthd/internal/revstore"
	"github.com/passworth/passworthd/internal/sqlitekv"
)

// Dispatcher owns the unlock singleton, idle timer, and the opened
// revision store, and is the single entry point request handling goes
// through (spec §4.5, §5 "Shared-resource policy").
type Dispatcher struct {
	cfg      *config.Config
	pubDB    *sqlitekv.DB
	pubStore *config.PubStore
	channel  *foreground.Channel
	tags     *procinfo.TagTable
	prompts  *permission.Memory
	users    osUserLookup
	metrics  *Metrics
	log      *slog.Logger

	mu        sync.Mutex
	rootToken []byte
	privDB    *sqlitekv.DB
	store     *revstore.Store
	waiters   []chan error
	unlocking bool

	activityMu sync.Mutex
	deadline   time.Time
	stopIdle   chan struct{}
}

// New builds a Dispatcher against an already-loaded configuration and an
// open pub database handle.
func New(cfg *config.Config, pubDB *sqlitekv.DB, pubStore *config.PubStore, channel *foreground.Channel, metrics *Metrics, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		pubDB:    pubDB,
		pubStore: pubStore,
		channel:  channel,
		tags:     procinfo.NewTagTable(),
		prompts:  permission.NewMemory(),
		metrics:  metrics,
		log:      log,
		stopIdle: make(chan struct{}),
	}
	go d.runIdleWatcher()
	return d
}

// TagTable exposes the process-tag table for the Tag command handler.
func (d *Dispatcher) TagTable() *procinfo.TagTable { return d.tags }

// Close stops the idle watcher and locks the database.
func (d *Dispatcher) Close() {
	close(d.stopIdle)
	d.Lock()
}

// Lock implements spec §4.5 "A Lock.Lock request clears the token
// immediately."
func (d *Dispatcher) Lock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rootToken = nil
	d.store = nil
	if d.privDB != nil {
		_ = d.privDB.Close()
		d.privDB = nil
	}
}

func (d *Dispatcher) touch() {
	d.activityMu.Lock()
	d.deadline = time.Now().Add(d.cfg.LockTimeout)
	d.activityMu.Unlock()
}

func (d *Dispatcher) runIdleWatcher() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopIdle:
			return
		case now := <-ticker.C:
			d.activityMu.Lock()
			deadline := d.deadline
			d.activityMu.Unlock()
			if !deadline.IsZero() && now.After(deadline) {
				d.log.Info("auto-locking after idle timeout")
				d.Lock()
				d.activityMu.Lock()
				d.deadline = time.Time{}
				d.activityMu.Unlock()
			}
		}
	}
}

// ensureUnlocked implements the unlock singleton of spec §4.5: the first
// caller to find no token and no in-flight unlock becomes the leader and
// drives the factor engine; everyone else subscribes to its outcome.
func (d *Dispatcher) ensureUnlocked(ctx context.Context) error {
	d.mu.Lock()
	if d.rootToken != nil {
		d.mu.Unlock()
		return nil
	}
	if d.unlocking {
		wait := make(chan error, 1)
		d.waiters = append(d.waiters, wait)
		d.mu.Unlock()
		select {
		case err := <-wait:
			return err
		case <-ctx.Done():
			return errs.Wrap(errs.KindTransient, "unlock wait cancelled", ctx.Err())
		}
	}
	d.unlocking = true
	d.mu.Unlock()

	d.metrics.unlockAttempts.Inc()
	token, _, err := d.channel.Unlock(ctx, d.cfg.FactorTree, d.pubStore)
	if err == nil {
		err = d.openPrivStore(ctx, token)
	}

	d.mu.Lock()
	waiters := d.waiters
	d.waiters = nil
	d.unlocking = false
	if err == nil {
		d.rootToken = token
	} else {
		d.metrics.unlockFailures.Inc()
	}
	d.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}
	return err
}

func (d *Dispatcher) openPrivStore(ctx context.Context, rootToken []byte) error {
	path := filepath.Join(d.cfg.DataPath, "priv.sqlcipher")
	db, err := sqlitekv.Open(path)
	if err != nil {
		return err
	}
	store, err := revstore.Open(ctx, db, rootToken)
	if err != nil {
		_ = db.Close()
		return err
	}
	d.mu.Lock()
	d.privDB = db
	d.store = store
	d.mu.Unlock()
	return nil
}

// storeHandle returns the currently-open revision store, which must be
// called only after ensureUnlocked has succeeded.
func (d *Dispatcher) storeHandle() *revstore.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store
}

// rootTokenKey exposes the zbase32-encoded root token, e.g. for a future
// SQLCipher-compatible on-disk adapter; see internal/sqlitekv's doc
// comment on why the current store seals rows individually instead.
func (d *Dispatcher) rootTokenKey() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cryptoutil.ZBase32RootKey(d.rootToken)
}
