// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndIterateActive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	permanent := ValueMetadata{
		KeyHash:   []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"),
		ValueData: []byte("permanent payload"),
		ValueType: 0x1002,
		ValueID:   1,
		CreatedAt: 1000,
		ExpiresAt: 0,
	}
	expiring := ValueMetadata{
		KeyHash:   []byte("fedcba9876543210fedcba9876543210fedcba9876543210fedcba987654321"),
		ValueData: []byte("expiring payload"),
		ValueType: 0x1001,
		ValueID:   1,
		CreatedAt: 1000,
		ExpiresAt: 2000,
	}
	require.NoError(t, s.Put(ctx, permanent))
	require.NoError(t, s.Put(ctx, expiring))

	var seen [][]byte
	require.NoError(t, s.IterateActive(ctx, 1500, func(md ValueMetadata) error {
		seen = append(seen, md.KeyHash)
		return nil
	}))
	require.Len(t, seen, 2)

	seen = nil
	require.NoError(t, s.IterateActive(ctx, 2500, func(md ValueMetadata) error {
		seen = append(seen, md.KeyHash)
		return nil
	}))
	require.Len(t, seen, 1)
	require.Equal(t, permanent.KeyHash, seen[0])
}

func TestPurgeExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, ValueMetadata{
		KeyHash: []byte("key-a"), ValueData: []byte("x"), ValueType: 0x1001,
		ValueID: 1, CreatedAt: 0, ExpiresAt: 100,
	}))
	n, err := s.PurgeExpired(ctx, 200)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestShouldPersist(t *testing.T) {
	persistable := map[uint32]bool{0x1001: true, 0x1002: true}

	require.True(t, ShouldPersist(0x1002, 0, 1000, persistable))       // permanent
	require.False(t, ShouldPersist(0x9999, 0, 1000, persistable))      // unknown type
	require.True(t, ShouldPersist(0x1001, 100000, 1000, persistable))  // far from expiry
	require.False(t, ShouldPersist(0x1001, 1030, 1000, persistable))   // within the hour floor
}

func TestShouldSkipLegacyKey(t *testing.T) {
	require.True(t, ShouldSkipLegacyKey("0123456789012345678901234567890123456789"))           // 40 hex chars
	require.True(t, ShouldSkipLegacyKey("01234567890123456789012345678901234567890123456789012345678901234567890123456789")) // 80 hex chars
	require.False(t, ShouldSkipLegacyKey("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd")) // 62 hex chars, neither legacy length
}

func TestRestoreActiveSkipsLegacyKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	legacyKey := make([]byte, 20) // 20 raw bytes -> 40 hex chars
	for i := range legacyKey {
		legacyKey[i] = byte(i)
	}
	require.NoError(t, s.Put(ctx, ValueMetadata{
		KeyHash: legacyKey, ValueData: []byte("legacy"), ValueType: 0x1002,
		ValueID: 1, CreatedAt: 0, ExpiresAt: 0,
	}))

	goodKey := []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd")
	require.NoError(t, s.Put(ctx, ValueMetadata{
		KeyHash: goodKey, ValueData: []byte("good"), ValueType: 0x1002,
		ValueID: 1, CreatedAt: 0, ExpiresAt: 0,
	}))

	var republished [][]byte
	err := s.RestoreActive(ctx, 1000, func(_ context.Context, md ValueMetadata) error {
		republished = append(republished, md.KeyHash)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, republished, 1)
	require.Equal(t, goodKey, republished[0])

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count, "legacy row remains in the store, just unrepublished")
}
