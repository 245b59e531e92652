// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store implements the durable, bootstrap-node-only mirror of DHT
// values: a SQLite-backed table of (original key, value, type, created,
// expires) rows, with an iterator for the periodic republish task.
//
// Historical key-format bug: an earlier version of this overlay stored the
// derived Kademlia infohash (20 raw bytes / 40 hex chars, or a 40-byte /
// 80 hex char variant) instead of the application's original key. Because
// republishing re-hashes whatever key it is given, doing so relocated data
// to the wrong infohash on every restart. RestoreActive therefore SKIPS any
// row whose stored key has one of those legacy lengths; see ShouldSkipLegacyKey.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/btcsuite/btclog"
	_ "modernc.org/sqlite"
)

var log btclog.Logger

func init() { UseLogger(btclog.Disabled) }

// UseLogger sets the package-wide logger used by Store.
func UseLogger(logger btclog.Logger) { log = logger }

// legacyKeyHexLengths are the hex-string lengths of keys produced by the
// historical infohash-keyed bug: 20 raw bytes (SHA-1-sized Kademlia
// infohash, 40 hex chars) or 40 raw bytes (80 hex chars).
var legacyKeyHexLengths = map[int]bool{40: true, 80: true}

// ShouldSkipLegacyKey reports whether a stored key (hex-encoded) has one
// of the legacy infohash-derived lengths and must not be republished.
func ShouldSkipLegacyKey(keyHex string) bool {
	return legacyKeyHexLengths[len(keyHex)]
}

// ValueMetadata is one row: the original application key the value is
// addressed at, its payload, its type tag, its assigned value-id, and its
// lifecycle timestamps. ExpiresAt == 0 means permanent.
type ValueMetadata struct {
	KeyHash   []byte
	ValueData []byte
	ValueType uint32
	ValueID   uint64
	CreatedAt uint64
	ExpiresAt uint64
}

// Store is a durable table of ValueMetadata rows backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer policy per §5

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS dht_values (
	key_hash    BLOB PRIMARY KEY,
	value_data  BLOB NOT NULL,
	value_type  INTEGER NOT NULL,
	value_id    INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// ShouldPersist reports whether a value of the given type, expiring at
// expiresAt (0 = permanent), is worth mirroring into the durable store.
// Ephemeral values — non 7-day/365-day types, or 7/365-day values about to
// expire within the hour — may be skipped.
func ShouldPersist(valueType uint32, expiresAt, now uint64, persistableTypes map[uint32]bool) bool {
	if !persistableTypes[valueType] {
		return false
	}
	if expiresAt == 0 {
		return true
	}
	const floor = 3600 // one hour
	return expiresAt > now+floor
}

// Put upserts a row by KeyHash. Callers are expected to have already
// applied ShouldPersist.
func (s *Store) Put(ctx context.Context, md ValueMetadata) error {
	const q = `
INSERT INTO dht_values (key_hash, value_data, value_type, value_id, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(key_hash) DO UPDATE SET
	value_data = excluded.value_data,
	value_type = excluded.value_type,
	value_id   = excluded.value_id,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at;
`
	_, err := s.db.ExecContext(ctx, q, md.KeyHash, md.ValueData, md.ValueType, md.ValueID, md.CreatedAt, md.ExpiresAt)
	if err != nil {
		return fmt.Errorf("store: put: %w", err)
	}
	return nil
}

// IterateActive calls fn for every row with expires_at = 0 OR
// expires_at > now, in key_hash order. Errors from fn are logged and do
// not abort the remaining rows, per §7 ("one bad row never blocks the
// queue").
func (s *Store) IterateActive(ctx context.Context, now uint64, fn func(ValueMetadata) error) error {
	const q = `
SELECT key_hash, value_data, value_type, value_id, created_at, expires_at
FROM dht_values
WHERE expires_at = 0 OR expires_at > ?
ORDER BY key_hash;
`
	rows, err := s.db.QueryContext(ctx, q, now)
	if err != nil {
		return fmt.Errorf("store: iterate active: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var md ValueMetadata
		if err := rows.Scan(&md.KeyHash, &md.ValueData, &md.ValueType, &md.ValueID, &md.CreatedAt, &md.ExpiresAt); err != nil {
			log.Warnf("store: skipping unreadable row: %v", err)
			continue
		}
		if err := fn(md); err != nil {
			log.Warnf("store: callback error for key %x: %v", md.KeyHash, err)
		}
	}
	return rows.Err()
}

// PurgeExpired deletes rows with 0 < expires_at <= now, returning the
// number of rows removed.
func (s *Store) PurgeExpired(ctx context.Context, now uint64) (int64, error) {
	const q = `DELETE FROM dht_values WHERE expires_at > 0 AND expires_at <= ?;`
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("store: purge expired: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the total number of rows currently stored, active or not.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dht_values;`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// RepublishFunc republishes a value to the DHT substrate at its original
// key, preserving type, value-id, and remaining TTL. Implemented by the
// dht package to avoid a store -> dht import cycle.
type RepublishFunc func(ctx context.Context, md ValueMetadata) error

// RestoreActive walks every active row and republishes it via republish,
// skipping rows whose key has a legacy infohash-length (40 or 80 hex
// chars / 20 or 40 raw bytes) to avoid the historical relocation bug.
func (s *Store) RestoreActive(ctx context.Context, now uint64, republish RepublishFunc) error {
	skipped := 0
	restored := 0
	err := s.IterateActive(ctx, now, func(md ValueMetadata) error {
		if ShouldSkipLegacyKey(fmt.Sprintf("%x", md.KeyHash)) {
			skipped++
			log.Infof("store: skipping legacy-format entry (key len %d bytes)", len(md.KeyHash))
			return nil
		}
		if err := republish(ctx, md); err != nil {
			return fmt.Errorf("republish %x: %w", md.KeyHash, err)
		}
		restored++
		return nil
	})
	log.Infof("store: restore complete: %d restored, %d legacy skipped", restored, skipped)
	return err
}
