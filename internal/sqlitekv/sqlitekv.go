// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sqlitekv is the thin shared wrapper around modernc.org/sqlite
// that both halves of the persistent state (spec §6: pub.sqlite and the
// row store backing priv.sqlcipher) are built on. It owns the single
// *sql.DB handle, a mutex serializing writer transactions (this is a
// single-writer daemon per spec §1 Non-goals), and a small RunInTx helper
// so callers never hand-roll BEGIN/COMMIT/ROLLBACK.
//
// The encrypted-SQLite-adapter specifics spec §1 calls out of scope are
// deliberately not implemented here: rather than linking a cgo SQLCipher
// build, internal/revstore layers AES-256-GCM encryption (internal/cryptoutil)
// over individual rows stored in an otherwise-ordinary modernc.org/sqlite
// database file. See DESIGN.md for the reasoning.
package sqlitekv

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/passworth/passworthd/internal/errs"
)

// DB wraps a single sqlite file handle with a writer mutex.
type DB struct {
	sql *sql.DB
	mu  sync.Mutex
}

// Open opens (creating if absent) the sqlite database file at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "open sqlite database", err)
	}
	conn.SetMaxOpenConns(1) // single-writer file, per spec §1 Non-goals
	return &DB{sql: conn}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Exec runs schema DDL / one-off statements outside a transaction.
func (d *DB) Exec(ctx context.Context, query string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.KindInternal, fmt.Sprintf("exec %q", query), err)
	}
	return nil
}

// RawQuerier exposes the underlying handle for read-only queries that a
// caller wants to run outside an explicit transaction (e.g. point-in-time
// reads, which never mutate state and so need no transactional isolation
// beyond SQLite's own). Safe to use concurrently with RunInTx: readers do
// not take the writer mutex.
func (d *DB) RawQuerier() *sql.DB {
	return d.sql
}

// Query runs a read query outside a transaction.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, fmt.Sprintf("query %q", query), err)
	}
	return rows, nil
}

// RunInTx serializes fn inside a single transaction, guaranteeing the "all
// appends made inside one write share a single transaction" ordering
// guarantee from spec §4.2: on any error the transaction rolls back and the
// store is left untouched (spec §7 Integrity).
func (d *DB) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindInternal, "commit transaction", err)
	}
	return nil
}
