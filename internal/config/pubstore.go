// Copyright 2026 passworth authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"

	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/sqlitekv"
)

// PubStore wraps the unencrypted pub.sqlite database (spec §6 "Persistent
// state"): a single-row current-config table and the factor state table,
// `(id, state_bytes)`. It satisfies factor.StateStore directly.
type PubStore struct {
	db *sqlitekv.DB
}

// OpenPubStore opens (creating if absent) the pub database's schema.
func OpenPubStore(ctx context.Context, db *sqlitekv.DB) (*PubStore, error) {
	s := &PubStore{db: db}
	if err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS config (id INTEGER PRIMARY KEY, data TEXT NOT NULL)`); err != nil {
		return nil, err
	}
	if err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS factor_state (id TEXT PRIMARY KEY, state_bytes BLOB NOT NULL)`); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implements factor.StateStore.
func (s *PubStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	rows, err := s.db.RawQuerier().QueryContext(ctx, `SELECT state_bytes FROM factor_state WHERE id = ?`, id)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindInternal, "query factor state", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, nil
	}
	var data []byte
	if err := rows.Scan(&data); err != nil {
		return nil, false, errs.Wrap(errs.KindInternal, "scan factor state", err)
	}
	return data, true, nil
}

// Set implements factor.StateStore.
func (s *PubStore) Set(ctx context.Context, id string, data []byte) error {
	return s.db.Exec(ctx, `INSERT INTO factor_state(id, state_bytes) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET state_bytes = excluded.state_bytes`, id, data)
}

// Delete implements factor.StateStore.
func (s *PubStore) Delete(ctx context.Context, id string) error {
	return s.db.Exec(ctx, `DELETE FROM factor_state WHERE id = ?`, id)
}

// LoadConfigJSON returns the current config row (keyed by 0), if any.
func (s *PubStore) LoadConfigJSON(ctx context.Context) ([]byte, bool, error) {
	rows, err := s.db.RawQuerier().QueryContext(ctx, `SELECT data FROM config WHERE id = 0`)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindInternal, "query config row", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, nil
	}
	var data string
	if err := rows.Scan(&data); err != nil {
		return nil, false, errs.Wrap(errs.KindInternal, "scan config row", err)
	}
	return []byte(data), true, nil
}

// SaveConfigJSON replaces the single config row.
func (s *PubStore) SaveConfigJSON(ctx context.Context, data []byte) error {
	return s.db.Exec(ctx, `INSERT INTO config(id, data) VALUES (0, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
}
