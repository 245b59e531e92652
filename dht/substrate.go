// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dht

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/toole-brendan/qio/qerr"
	"github.com/toole-brendan/qio/store"
)

var log btclog.Logger

func init() { UseLogger(btclog.Disabled) }

// UseLogger sets the package-wide logger used by Substrate.
func UseLogger(logger btclog.Logger) { log = logger }

const (
	// permanentWriteTimeout is the write-acknowledgement deadline of the
	// PutTTL(Permanent) confirmation handshake.
	permanentWriteTimeout = 30 * time.Second

	// permanentVerifyDelay is the settle time between the write
	// acknowledgement and the confirming re-read.
	permanentVerifyDelay = 5 * time.Second

	// permanentReadTimeout bounds the confirming re-read.
	permanentReadTimeout = 10 * time.Second
)

// Network performs the actual peer I/O a Substrate needs: propagating a
// newly stored value to remote nodes, and fetching a key's value from the
// network when it is not (or might not be) held locally. The overlay does
// not mandate a wire protocol (§6); Network is the seam a concrete
// transport plugs into.
type Network interface {
	// Propagate asks the nodes closest to key to store v. If ack is
	// non-nil, implementations send true on it the first time a remote
	// node acknowledges the write.
	Propagate(ctx context.Context, key [64]byte, v *Value, ack chan<- bool)

	// Fetch performs a network round-trip read for key, returning the
	// freshest value observed remotely, if any.
	Fetch(ctx context.Context, key [64]byte) (*Value, bool)
}

// LocalNetwork is the degenerate single-node Network used by tests and
// standalone operation: every put is immediately "acknowledged" by the
// local store itself, and Fetch never finds anything beyond local storage
// (the Substrate already checks local storage before calling Fetch).
type LocalNetwork struct{}

// Propagate implements Network by immediately acknowledging locally.
func (LocalNetwork) Propagate(_ context.Context, _ [64]byte, _ *Value, ack chan<- bool) {
	if ack != nil {
		ack <- true
	}
}

// Fetch implements Network; LocalNetwork has no peers to fetch from.
func (LocalNetwork) Fetch(_ context.Context, _ [64]byte) (*Value, bool) { return nil, false }

// entry is the internal bookkeeping around a stored Value.
type entry struct {
	value *Value
}

// Substrate is the DHT substrate described by §4.3: typed values with
// per-type TTL, signed puts with stable, replacing value-ids, and
// (on bootstrap nodes) durable storage with republish.
type Substrate struct {
	mu           sync.RWMutex
	routingTable *RoutingTable
	localID      NodeID
	network      Network
	values       map[[64]byte][]*entry

	persistMu     sync.RWMutex
	persist       *store.Store // nil unless running as a bootstrap node
	persistOutbox bool         // gates persistence of TypeOutbox values; see SetPersistOutbox
}

// New creates a Substrate rooted at localID, using network for peer I/O.
// Pass LocalNetwork{} for standalone/testing use.
func New(localID NodeID, network Network) *Substrate {
	if network == nil {
		network = LocalNetwork{}
	}
	return &Substrate{
		routingTable: NewRoutingTable(localID),
		localID:      localID,
		network:      network,
		values:       make(map[[64]byte][]*entry),
	}
}

// RoutingTable exposes the underlying routing table, e.g. for Add
// during bootstrap-list rotation.
func (s *Substrate) RoutingTable() *RoutingTable { return s.routingTable }

// SetPersistentStore binds a persistent store this Substrate mirrors
// accepted values into, per the store-hook described in §4.3/§9. Passing
// nil clears the binding (shutdown). The Substrate holds the handle behind
// a mutex rather than a package-global, per §9 "Global mutable state".
func (s *Substrate) SetPersistentStore(st *store.Store) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.persist = st
}

// SetPersistOutbox toggles whether TypeOutbox values are mirrored into the
// bound persistent store, per config.PersistOutbox (§4.6 Open Question 2,
// default: yes). It has no effect on Type7Day/Type365Day values, which are
// always subject to PersistableTypes.
func (s *Substrate) SetPersistOutbox(enabled bool) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.persistOutbox = enabled
}

func (s *Substrate) storeHook(ctx context.Context, key [64]byte, v *Value) {
	s.persistMu.RLock()
	st := s.persist
	persistOutbox := s.persistOutbox
	s.persistMu.RUnlock()
	if st == nil {
		return
	}
	persistableTypes := PersistableTypes
	if v.Type == TypeOutbox {
		if !persistOutbox {
			return
		}
		persistableTypes = OutboxPersistableTypes
	}
	var expiresAt uint64
	if !v.ExpiresAt.IsZero() {
		expiresAt = uint64(v.ExpiresAt.Unix())
	}
	if !store.ShouldPersist(uint32(v.Type), expiresAt, uint64(time.Now().Unix()), persistableTypes) {
		return
	}
	md := store.ValueMetadata{
		KeyHash:   append([]byte(nil), key[:]...),
		ValueData: v.Payload,
		ValueType: uint32(v.Type),
		ValueID:   v.ValueID,
		CreatedAt: uint64(v.StoredAt.Unix()),
		ExpiresAt: expiresAt,
	}
	if err := st.Put(ctx, md); err != nil {
		log.Warnf("dht: store hook: persist %x: %v", key, err)
	}
}

// Put performs an unsigned put: a fresh, un-replacing entry with the
// default 7-day TTL and TYPE_7DAY. Multiple calls accumulate.
func (s *Substrate) Put(ctx context.Context, key [64]byte, payload []byte) error {
	now := time.Now()
	v := &Value{
		Type:     Type7Day,
		Payload:  payload,
		StoredAt: now,
		ExpiresAt: now.Add(SevenDayTTL),
	}
	s.insert(key, v)
	s.propagateBestEffort(ctx, key, v)
	s.storeHook(ctx, key, v)
	return nil
}

// PutTTL performs an unsigned put with an explicit TTL. ttl == Permanent
// marks the value permanent (stored as Type365Day) and runs the
// synchronous confirmation handshake described in §4.3: wait up to 30s
// for a remote write acknowledgement, settle 5s, then re-read with a 10s
// timeout, succeeding only if the round trip observes the value.
func (s *Substrate) PutTTL(ctx context.Context, key [64]byte, payload []byte, ttl time.Duration) error {
	now := time.Now()
	v := &Value{
		Type:      typeForTTL(ttl),
		Payload:   payload,
		StoredAt:  now,
		Permanent: ttl == Permanent,
	}
	if ttl != Permanent {
		v.ExpiresAt = now.Add(ttl)
	}
	s.insert(key, v)
	s.storeHook(ctx, key, v)

	if ttl != Permanent {
		s.propagateBestEffort(ctx, key, v)
		return nil
	}
	return s.confirmPermanentPut(ctx, key, v)
}

func (s *Substrate) confirmPermanentPut(ctx context.Context, key [64]byte, v *Value) error {
	ack := make(chan bool, 1)
	propagateCtx, cancel := context.WithTimeout(ctx, permanentWriteTimeout)
	defer cancel()
	go s.network.Propagate(propagateCtx, key, v, ack)

	select {
	case <-ack:
	case <-propagateCtx.Done():
		return fmt.Errorf("dht: permanent put write ack: %w", qerr.ErrTimeout)
	}

	select {
	case <-time.After(permanentVerifyDelay):
	case <-ctx.Done():
		return fmt.Errorf("dht: permanent put settle wait: %w", qerr.ErrTimeout)
	}

	readCtx, cancelRead := context.WithTimeout(ctx, permanentReadTimeout)
	defer cancelRead()
	if got, ok := s.Get(key); ok && string(got.Payload) == string(v.Payload) {
		return nil
	}
	if _, ok := s.network.Fetch(readCtx, key); ok {
		return nil
	}
	return fmt.Errorf("dht: permanent put confirmation read: %w", qerr.ErrTimeout)
}

// PutSigned performs a signed put at (key, valueID): subsequent signed
// puts with the same (key, valueID) REPLACE the previous value rather than
// accumulating, with auto-incrementing sequence numbers.
func (s *Substrate) PutSigned(ctx context.Context, key [64]byte, payload []byte, valueID uint64, ttl time.Duration) error {
	return s.PutSignedTyped(ctx, key, payload, valueID, ttl, typeForTTL(ttl))
}

// PutSignedTyped is PutSigned but lets the caller pin the stored Type tag
// directly instead of deriving it from ttl, for services (outbox) whose
// persistence policy is gated by type rather than TTL class.
func (s *Substrate) PutSignedTyped(ctx context.Context, key [64]byte, payload []byte, valueID uint64, ttl time.Duration, typ TypeID) error {
	now := time.Now()
	v := &Value{
		Type:      typ,
		Payload:   payload,
		ValueID:   valueID,
		Permanent: ttl == Permanent,
		StoredAt:  now,
	}
	if ttl != Permanent {
		v.ExpiresAt = now.Add(ttl)
	}
	if err := s.replaceSigned(key, v); err != nil {
		return err
	}
	s.propagateBestEffort(ctx, key, v)
	s.storeHook(ctx, key, v)
	return nil
}

// PutSignedPermanent is PutSigned with TTL = Permanent: the sole
// replacement primitive for a permanent record. Overlay services use
// valueID = 1 as the convention for a key's first/canonical record.
func (s *Substrate) PutSignedPermanent(ctx context.Context, key [64]byte, payload []byte, valueID uint64) error {
	return s.putSignedPermanent(ctx, key, payload, valueID, 0)
}

// PutSignedPermanentVersioned is PutSignedPermanent with an explicit
// application-level ordering timestamp: a write whose timestamp is
// strictly less than the timestamp of the value already stored at (key,
// valueID) is rejected with qerr.ErrConflict instead of silently
// downgrading the record, reconciling put_signed's replace-at-write
// semantics with a newest-timestamp-wins read rule (§4.5 profile records).
func (s *Substrate) PutSignedPermanentVersioned(ctx context.Context, key [64]byte, payload []byte, valueID uint64, timestamp uint64) error {
	return s.putSignedPermanent(ctx, key, payload, valueID, timestamp)
}

func (s *Substrate) putSignedPermanent(ctx context.Context, key [64]byte, payload []byte, valueID uint64, timestamp uint64) error {
	now := time.Now()
	v := &Value{
		Type:      Type365Day,
		Payload:   payload,
		ValueID:   valueID,
		Timestamp: timestamp,
		Permanent: true,
		StoredAt:  now,
	}
	if err := s.replaceSigned(key, v); err != nil {
		return err
	}
	s.storeHook(ctx, key, v)
	return s.confirmPermanentPut(ctx, key, v)
}

// Get returns the first value observed at key: the local copy if present,
// otherwise a best-effort network fetch.
func (s *Substrate) Get(key [64]byte) (*Value, bool) {
	s.mu.RLock()
	entries := s.values[key]
	s.mu.RUnlock()
	if len(entries) > 0 {
		return entries[0].value, true
	}
	return s.network.Fetch(context.Background(), key)
}

// GetAll returns every value currently held locally at key. Append-only
// semantics mean this may contain multiple accumulated unsigned puts or
// multiple distinct value-ids.
func (s *Substrate) GetAll(key [64]byte) []*Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.values[key]
	out := make([]*Value, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

// GetAsync invokes cb once per value currently held at key, then once more
// with ok=false to signal completion. cb runs on a separate goroutine from
// the caller.
func (s *Substrate) GetAsync(key [64]byte, cb AsyncCallback) {
	go func() {
		values := s.GetAll(key)
		for _, v := range values {
			cb(v, true)
		}
		cb(nil, false)
	}()
}

// Delete removes key from local storage. Best-effort: the DHT provides no
// guarantee of global deletion; values otherwise expire naturally.
func (s *Substrate) Delete(key [64]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// GetStats reports known-node and stored-value counts.
func (s *Substrate) GetStats() Stats {
	s.mu.RLock()
	stored := 0
	for _, entries := range s.values {
		stored += len(entries)
	}
	s.mu.RUnlock()
	return Stats{
		KnownNodes:   s.routingTable.Size(),
		StoredValues: stored,
	}
}

func (s *Substrate) insert(key [64]byte, v *Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append(s.values[key], &entry{value: v})
}

// replaceSigned implements the "higher sequence number wins, never
// downgrade" rule of §5 for a given (key, valueID). When v.Timestamp is
// nonzero and a value already sits at (key, valueID) with its own nonzero
// Timestamp, a write whose timestamp is strictly less than the stored
// value's is rejected outright rather than silently replacing it — this is
// what keeps identity's versioned writes (which collide only when the same
// Version is re-published) from contradicting the newest-timestamp-wins
// read rule.
func (s *Substrate) replaceSigned(key [64]byte, v *Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.values[key]
	for i, e := range entries {
		if e.value.ValueID != v.ValueID {
			continue
		}
		if v.Timestamp != 0 && e.value.Timestamp != 0 && v.Timestamp < e.value.Timestamp {
			return fmt.Errorf("dht: stale signed write at value_id %d (timestamp %d < %d): %w", v.ValueID, v.Timestamp, e.value.Timestamp, qerr.ErrConflict)
		}
		v.Seq = e.value.Seq + 1
		entries[i] = &entry{value: v}
		s.values[key] = entries
		return nil
	}
	v.Seq = 1
	s.values[key] = append(entries, &entry{value: v})
	return nil
}

func (s *Substrate) propagateBestEffort(ctx context.Context, key [64]byte, v *Value) {
	go s.network.Propagate(ctx, key, v, nil)
}

// Republish re-puts a persisted row back into this substrate at its
// original key, preserving type/value-id/TTL. It satisfies
// store.RepublishFunc and is what RestoreActive calls at startup.
func (s *Substrate) Republish(ctx context.Context, md store.ValueMetadata) error {
	var key [64]byte
	copy(key[:], md.KeyHash)

	var ttl time.Duration
	isPermanent := md.ExpiresAt == 0
	if !isPermanent {
		ttl = time.Until(time.Unix(int64(md.ExpiresAt), 0))
		if ttl <= 0 {
			return nil // expired between read and republish; let GC reap it
		}
	} else {
		ttl = Permanent
	}

	switch {
	case md.ValueID != 0 && isPermanent:
		return s.PutSignedPermanent(ctx, key, md.ValueData, md.ValueID)
	case md.ValueID != 0:
		return s.PutSignedTyped(ctx, key, md.ValueData, md.ValueID, ttl, TypeID(md.ValueType))
	case isPermanent:
		return s.PutTTL(ctx, key, md.ValueData, ttl)
	default:
		now := time.Now()
		v := &Value{
			Type:      TypeID(md.ValueType),
			Payload:   md.ValueData,
			StoredAt:  now,
			ExpiresAt: now.Add(ttl),
		}
		s.insert(key, v)
		s.propagateBestEffort(ctx, key, v)
		s.storeHook(ctx, key, v)
		return nil
	}
}
