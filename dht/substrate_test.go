// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dht

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/toole-brendan/qio/qerr"
	"github.com/toole-brendan/qio/store"
)

func testKey(s string) [64]byte {
	var k [64]byte
	copy(k[:], s)
	return k
}

func TestPutAccumulatesUnsigned(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx := context.Background()
	key := testKey("unsigned-key")

	require.NoError(t, sub.Put(ctx, key, []byte("v1")))
	require.NoError(t, sub.Put(ctx, key, []byte("v2")))

	all := sub.GetAll(key)
	require.Len(t, all, 2)
}

// TestPutSignedReplaces exercises P6: for a given (key, value_id), the
// latest signed put wins and GetAll shows at most one value at that id.
func TestPutSignedReplaces(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx := context.Background()
	key := testKey("signed-key")

	require.NoError(t, sub.PutSigned(ctx, key, []byte("v1"), 1, SevenDayTTL))
	require.NoError(t, sub.PutSigned(ctx, key, []byte("v2"), 1, SevenDayTTL))

	all := sub.GetAll(key)
	require.Len(t, all, 1)
	require.Equal(t, "v2", string(all[0].Payload))
	require.Equal(t, uint64(2), all[0].Seq)
}

func TestPutSignedDistinctValueIDsCoexist(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx := context.Background()
	key := testKey("multi-id-key")

	require.NoError(t, sub.PutSigned(ctx, key, []byte("a"), 1, SevenDayTTL))
	require.NoError(t, sub.PutSigned(ctx, key, []byte("b"), 2, SevenDayTTL))

	require.Len(t, sub.GetAll(key), 2)
}

func TestPutSignedPermanentConfirms(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	key := testKey("permanent-key")

	err := sub.PutSignedPermanent(ctx, key, []byte("canonical"), 1)
	require.NoError(t, err)

	v, ok := sub.Get(key)
	require.True(t, ok)
	require.True(t, v.Permanent)
	require.Equal(t, Type365Day, v.Type)
}

// TestPutSignedPermanentVersionedRejectsStaleWrite exercises the
// timestamp-aware half of reconciling put_signed's replace-at-write
// semantics with a newest-timestamp-wins read rule: a write carrying an
// earlier application timestamp than the value already at (key, valueID)
// is rejected rather than silently downgrading it.
func TestPutSignedPermanentVersionedRejectsStaleWrite(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx := context.Background()
	key := testKey("versioned-key")

	require.NoError(t, sub.PutSignedPermanentVersioned(ctx, key, []byte("newer"), 1, 2000))

	err := sub.PutSignedPermanentVersioned(ctx, key, []byte("older"), 1, 1000)
	require.ErrorIs(t, err, qerr.ErrConflict)

	v, ok := sub.Get(key)
	require.True(t, ok)
	require.Equal(t, "newer", string(v.Payload))
}

// TestSetPersistOutboxGatesTypeOutboxPersistence exercises config.PersistOutbox's
// wiring: a TypeOutbox value is mirrored into the bound store only once
// SetPersistOutbox(true) has been called, while ordinary Type7Day/Type365Day
// values persist unconditionally either way.
func TestSetPersistOutboxGatesTypeOutboxPersistence(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sub := New(RandomNodeID(), LocalNetwork{})
	sub.SetPersistentStore(st)
	ctx := context.Background()

	require.NoError(t, sub.PutSignedTyped(ctx, testKey("outbox-off"), []byte("x"), 1, SevenDayTTL, TypeOutbox))
	count, err := st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	sub.SetPersistOutbox(true)
	require.NoError(t, sub.PutSignedTyped(ctx, testKey("outbox-on"), []byte("y"), 1, SevenDayTTL, TypeOutbox))
	count, err = st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.NoError(t, sub.PutSigned(ctx, testKey("alias"), []byte("z"), 1, SevenDayTTL))
	count, err = st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}

func TestGetAsyncDeliversAllThenDone(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx := context.Background()
	key := testKey("async-key")
	require.NoError(t, sub.Put(ctx, key, []byte("only-value")))

	done := make(chan struct{})
	var observed []string
	sub.GetAsync(key, func(v *Value, ok bool) {
		if !ok {
			close(done)
			return
		}
		observed = append(observed, string(v.Payload))
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never signaled completion")
	}
	require.Equal(t, []string{"only-value"}, observed)
}

func TestDeleteIsLocalBestEffort(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx := context.Background()
	key := testKey("deletable")
	require.NoError(t, sub.Put(ctx, key, []byte("x")))
	sub.Delete(key)
	require.Empty(t, sub.GetAll(key))
}

func TestGetStatsCountsStoredValues(t *testing.T) {
	sub := New(RandomNodeID(), LocalNetwork{})
	ctx := context.Background()
	require.NoError(t, sub.Put(ctx, testKey("k1"), []byte("a")))
	require.NoError(t, sub.Put(ctx, testKey("k2"), []byte("b")))

	stats := sub.GetStats()
	require.Equal(t, 2, stats.StoredValues)
}

func TestReadyStateRequiresAtLeastOneGoodNode(t *testing.T) {
	rt := NewRoutingTable(RandomNodeID())
	rs := NewReadyState(rt)
	require.False(t, rs.Ready())

	rt.Add(&Node{ID: RandomNodeID(), LastSeen: time.Now()})
	require.True(t, rs.Ready())
}
