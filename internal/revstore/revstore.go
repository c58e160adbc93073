// Copyright 2026 the passworthd authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package revstore implements the append-only revision log over escaped
// hierarchical paths described in spec §4.2: point and prefix queries,
// sub-tree shadowing on write, and historical revert, all bounded by a
// revision ceiling.
//
// Rows are persisted through internal/sqlitekv, with each row's JSON
// payload sealed under the root token via internal/cryptoutil.Encrypt
// before it reaches the database file — see internal/sqlitekv's doc comment
// for why this replaces a cgo SQLCipher build.
package revstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/passworth/passworthd/internal/cryptoutil"
	"github.com/passworth/passworthd/internal/errs"
	"github.com/passworth/passworthd/internal/pathcodec"
	"github.com/passworth/passworthd/internal/sqlitekv"
)

// Store is the encrypted revision log backing a single priv database file.
type Store struct {
	db        *sqlitekv.DB
	rootToken []byte
}

// Open prepares the `values_` table (creating it if absent) and returns a
// Store keyed by rootToken. rootToken is the plaintext root token (spec
// §3); it is used directly (via internal/cryptoutil's key derivation) to
// seal and open row payloads — it is never itself persisted.
func Open(ctx context.Context, db *sqlitekv.DB, rootToken []byte) (*Store, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS values_ (
	rev_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	rev_stamp INTEGER NOT NULL,
	path      TEXT NOT NULL,
	data      BLOB
);
CREATE INDEX IF NOT EXISTS values_path_idx ON values_(path);
`
	if err := db.Exec(ctx, schema); err != nil {
		return nil, err
	}
	return &Store{db: db, rootToken: rootToken}, nil
}

// WritePair is one (path, value) input to Write. Value nil (or the JSON
// literal null) tombstones the path.
type WritePair struct {
	Path  pathcodec.Segments
	Value json.RawMessage
}

type row struct {
	Path     string
	RevID    int64
	RevStamp int64
	Data     *[]byte // nil => tombstone
}

// Write performs the atomic ancestor-shadowing, descendant-shadowing, and
// object-recursing append described in spec §4.2. All inserts made across
// all pairs share one transaction (spec §4.2 "Ordering guarantee").
func (s *Store) Write(ctx context.Context, now time.Time, pairs []WritePair) ([]int64, error) {
	var revIDs []int64
	err := s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		for _, p := range pairs {
			ids, err := s.writeOne(ctx, tx, now, p.Path, p.Value)
			if err != nil {
				return err
			}
			revIDs = append(revIDs, ids...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revIDs, nil
}

func (s *Store) writeOne(ctx context.Context, tx *sql.Tx, now time.Time, path pathcodec.Segments, value json.RawMessage) ([]int64, error) {
	var revIDs []int64
	stamp := now.UnixMilli()

	// (a) shadow live ancestors.
	for i := 0; i < len(path); i++ {
		ancestor := path[:i]
		live, err := s.latestAtOrBefore(ctx, tx, pathcodec.Render(ancestor), maxRevID)
		if err != nil {
			return nil, err
		}
		if live != nil && live.Data != nil {
			id, err := s.insert(ctx, tx, stamp, pathcodec.Render(ancestor), nil)
			if err != nil {
				return nil, err
			}
			revIDs = append(revIDs, id)
		}
	}

	// (b) shadow live descendants.
	pathStr := pathcodec.Render(path)
	descendants, err := s.liveDescendants(ctx, tx, pathStr, maxRevID)
	if err != nil {
		return nil, err
	}
	for _, d := range descendants {
		id, err := s.insert(ctx, tx, stamp, d, nil)
		if err != nil {
			return nil, err
		}
		revIDs = append(revIDs, id)
	}

	// (c) write the value itself, recursing through objects.
	if isJSONNull(value) {
		id, err := s.insert(ctx, tx, stamp, pathStr, nil)
		if err != nil {
			return nil, err
		}
		return append(revIDs, id), nil
	}

	if obj, ok := asObject(value); ok {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ids, err := s.writeOne(ctx, tx, now, pathcodec.Join(path, k), obj[k])
			if err != nil {
				return nil, err
			}
			revIDs = append(revIDs, ids...)
		}
		return revIDs, nil
	}

	id, err := s.insert(ctx, tx, stamp, pathStr, []byte(value))
	if err != nil {
		return nil, err
	}
	return append(revIDs, id), nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, stamp int64, pathStr string, plaintext []byte) (int64, error) {
	var sealed any
	if plaintext != nil {
		ct, err := cryptoutil.Encrypt(s.rootToken, plaintext)
		if err != nil {
			return 0, err
		}
		sealed = ct
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO values_(rev_stamp, path, data) VALUES (?, ?, ?)`,
		stamp, pathStr, sealed)
	if err != nil {
		return 0, errs.Wrap(errs.KindInternal, "insert revision row", err)
	}
	return res.LastInsertId()
}

const maxRevID = int64(1<<63 - 1)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) latestAtOrBefore(ctx context.Context, q queryer, pathStr string, ceiling int64) (*row, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT rev_id, rev_stamp, data FROM values_ WHERE path = ? AND rev_id <= ? ORDER BY rev_id DESC LIMIT 1`,
		pathStr, ceiling)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "query latest revision", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	var r row
	var data []byte
	if err := rows.Scan(&r.RevID, &r.RevStamp, &data); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "scan revision row", err)
	}
	r.Path = pathStr
	if data != nil {
		r.Data = &data
	}
	return &r, nil
}

// groupedAtOrBefore returns, for every distinct path equal to pathStr or
// strictly beneath it (path starting with pathStr+"/"), the single latest
// row with rev_id <= ceiling.
func (s *Store) groupedAtOrBefore(ctx context.Context, q queryer, pathStr string, ceiling int64) (map[string]row, error) {
	prefix := pathStr + "/"
	rows, err := q.QueryContext(ctx,
		`SELECT path, rev_id, rev_stamp, data FROM values_
		 WHERE (path = ? OR substr(path, 1, ?) = ?) AND rev_id <= ?
		 ORDER BY path ASC, rev_id ASC`,
		pathStr, len(prefix), prefix, ceiling)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "query grouped revisions", err)
	}
	defer rows.Close()

	out := make(map[string]row)
	for rows.Next() {
		var r row
		var data []byte
		if err := rows.Scan(&r.Path, &r.RevID, &r.RevStamp, &data); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "scan grouped revision row", err)
		}
		if data != nil {
			r.Data = &data
		}
		out[r.Path] = r // later rows (higher rev_id) overwrite earlier ones
	}
	return out, rows.Err()
}

func (s *Store) liveDescendants(ctx context.Context, q queryer, pathStr string, ceiling int64) ([]string, error) {
	grouped, err := s.groupedAtOrBefore(ctx, q, pathStr, ceiling)
	if err != nil {
		return nil, err
	}
	var out []string
	for p, r := range grouped {
		if p == pathStr {
			continue
		}
		if r.Data != nil {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ReadExact implements spec §4.2 read_exact: the live value at path for
// the given ceiling, or (nil, false) if absent or tombstoned.
func (s *Store) ReadExact(ctx context.Context, path pathcodec.Segments, at *int64) (json.RawMessage, bool, error) {
	ceiling := ceilingOf(at)
	r, err := s.latestAtOrBefore(ctx, s.db.RawQuerier(), pathcodec.Render(path), ceiling)
	if err != nil {
		return nil, false, err
	}
	if r == nil || r.Data == nil {
		return nil, false, nil
	}
	pt, err := cryptoutil.Decrypt(s.rootToken, *r.Data)
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(pt), true, nil
}

// ReadPrefix implements spec §4.2 read_prefix merged into a single JSON
// tree (spec: "callers merge prefix-read results into a single JSON tree
// by removing the query prefix from each result path and burying the
// row's JSON at the remaining segments"). Returns (nil, false) if the path
// has no live value anywhere in its subtree.
func (s *Store) ReadPrefix(ctx context.Context, path pathcodec.Segments, at *int64) (json.RawMessage, bool, error) {
	ceiling := ceilingOf(at)
	grouped, err := s.groupedAtOrBefore(ctx, s.db.RawQuerier(), pathcodec.Render(path), ceiling)
	if err != nil {
		return nil, false, err
	}

	type leaf struct {
		rel  pathcodec.Segments
		data []byte
	}
	var leaves []leaf
	for p, r := range grouped {
		if r.Data == nil {
			continue
		}
		segs, err := pathcodec.Parse(p)
		if err != nil {
			return nil, false, errs.Wrap(errs.KindInternal, "parse stored path", err)
		}
		pt, err := cryptoutil.Decrypt(s.rootToken, *r.Data)
		if err != nil {
			return nil, false, err
		}
		leaves = append(leaves, leaf{rel: segs[len(path):], data: pt})
	}
	if len(leaves) == 0 {
		return nil, false, nil
	}
	if len(leaves) == 1 && len(leaves[0].rel) == 0 {
		return json.RawMessage(leaves[0].data), true, nil
	}

	tree := map[string]any{}
	for _, l := range leaves {
		if len(l.rel) == 0 {
			// A scalar directly at the prefix root coexisting with deeper
			// leaves cannot happen under the shadowing invariant, but
			// guard defensively rather than silently dropping data.
			return nil, false, errs.New(errs.KindInternal, "conflicting scalar and subtree at prefix root")
		}
		bury(tree, l.rel, l.data)
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindInternal, "marshal reconstructed tree", err)
	}
	return out, true, nil
}

func bury(tree map[string]any, rel pathcodec.Segments, rawData []byte) {
	cur := tree
	for i := 0; i < len(rel)-1; i++ {
		next, ok := cur[rel[i]].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[rel[i]] = next
		}
		cur = next
	}
	var v any
	_ = json.Unmarshal(rawData, &v)
	cur[rel[len(rel)-1]] = v
}

// RevisionEntry is one node of a revisions_prefix result, spec §4.2: "like
// read_prefix but including tombstone rows and returning (rev_id,
// rev_stamp, exists)".
type RevisionEntry struct {
	RevID    int64
	RevStamp time.Time
	Exists   bool
}

// RevisionsPrefix returns, for every path equal to or beneath the query
// path that has at least one row at-or-before the ceiling, its latest
// entry (including tombstones).
func (s *Store) RevisionsPrefix(ctx context.Context, path pathcodec.Segments, at *int64) (map[string]RevisionEntry, error) {
	ceiling := ceilingOf(at)
	grouped, err := s.groupedAtOrBefore(ctx, s.db.RawQuerier(), pathcodec.Render(path), ceiling)
	if err != nil {
		return nil, err
	}
	out := make(map[string]RevisionEntry, len(grouped))
	for p, r := range grouped {
		out[p] = RevisionEntry{
			RevID:    r.RevID,
			RevStamp: time.UnixMilli(r.RevStamp).UTC(),
			Exists:   r.Data != nil,
		}
	}
	return out, nil
}

// Revert implements spec §4.2/§9 WriteRevert: restores path's subtree to
// the state observable under ReadPrefix(path, at) as of now.
func (s *Store) Revert(ctx context.Context, now time.Time, path pathcodec.Segments, at int64) error {
	tree, exists, err := s.ReadPrefix(ctx, path, &at)
	if err != nil {
		return err
	}
	var value json.RawMessage
	if exists {
		value = tree
	} else {
		value = json.RawMessage("null")
	}
	_, err = s.Write(ctx, now, []WritePair{{Path: path, Value: value}})
	return err
}

// Move implements spec §4.5 WriteMove: copies the subtree at from to to
// (refusing if to is live and overwrite is false), then tombstones from,
// all in one transaction.
func (s *Store) Move(ctx context.Context, now time.Time, from, to pathcodec.Segments, overwrite bool) error {
	return s.db.RunInTx(ctx, func(tx *sql.Tx) error {
		if !overwrite {
			toLive, err := s.latestAtOrBefore(ctx, tx, pathcodec.Render(to), maxRevID)
			if err != nil {
				return err
			}
			if toLive != nil && toLive.Data != nil {
				return errs.New(errs.KindTransient, "destination already has a value; use --overwrite")
			}
			toDescendants, err := s.liveDescendants(ctx, tx, pathcodec.Render(to), maxRevID)
			if err != nil {
				return err
			}
			if len(toDescendants) > 0 {
				return errs.New(errs.KindTransient, "destination subtree is not empty; use --overwrite")
			}
		}

		tree, exists, err := s.readPrefixTx(ctx, tx, from, maxRevID)
		if err != nil {
			return err
		}
		if exists {
			if _, err := s.writeOne(ctx, tx, now, to, tree); err != nil {
				return err
			}
		}
		// Tombstone the source. Per spec §9 this deliberately preserves
		// history rather than erasing it: a null row is appended, not a
		// delete of prior rows.
		if _, err := s.writeOne(ctx, tx, now, from, json.RawMessage("null")); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) readPrefixTx(ctx context.Context, tx *sql.Tx, path pathcodec.Segments, ceiling int64) (json.RawMessage, bool, error) {
	grouped, err := s.groupedAtOrBefore(ctx, tx, pathcodec.Render(path), ceiling)
	if err != nil {
		return nil, false, err
	}
	type leaf struct {
		rel  pathcodec.Segments
		data []byte
	}
	var leaves []leaf
	for p, r := range grouped {
		if r.Data == nil {
			continue
		}
		segs, err := pathcodec.Parse(p)
		if err != nil {
			return nil, false, err
		}
		pt, err := cryptoutil.Decrypt(s.rootToken, *r.Data)
		if err != nil {
			return nil, false, err
		}
		leaves = append(leaves, leaf{rel: segs[len(path):], data: pt})
	}
	if len(leaves) == 0 {
		return nil, false, nil
	}
	if len(leaves) == 1 && len(leaves[0].rel) == 0 {
		return json.RawMessage(leaves[0].data), true, nil
	}
	tree := map[string]any{}
	for _, l := range leaves {
		bury(tree, l.rel, l.data)
	}
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func ceilingOf(at *int64) int64 {
	if at == nil {
		return maxRevID
	}
	return *at
}

func isJSONNull(v json.RawMessage) bool {
	if v == nil {
		return true
	}
	trimmed := trimSpace(v)
	return string(trimmed) == "null"
}

func trimSpace(v json.RawMessage) json.RawMessage {
	i, j := 0, len(v)
	for i < j && isSpaceByte(v[i]) {
		i++
	}
	for j > i && isSpaceByte(v[j-1]) {
		j--
	}
	return v[i:j]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func asObject(v json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := trimSpace(v)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	return obj, true
}
