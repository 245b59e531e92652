// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dht wraps a Kademlia-style overlay with the three features the
// identity/naming/outbox services depend on beyond bare key/value storage:
// typed values with per-type TTL, signed puts with a stable, caller-chosen
// value-id that replace rather than accumulate, and durable local storage
// with periodic republish (§4.3).
//
// The routing layer here is a self-contained 160-bit-ID Kademlia engine,
// the same ID width BitTorrent's mainline DHT uses; §4.2's "historical bug" is the
// direct consequence of conflating that 20-byte routing ID with the
// 64-byte SHA3-512 application key; see store.ShouldSkipLegacyKey.
package dht

import (
	"time"
)

// TypeID tags a stored value with the TTL class storage nodes must honor.
type TypeID uint32

const (
	// Type7Day values expire after 7 days unless refreshed.
	Type7Day TypeID = 0x1001

	// Type365Day values expire after 365 days, OR are permanent when the
	// Value's Permanent flag is set (permanent values are always tagged
	// Type365Day and republished indefinitely by bootstrap nodes).
	Type365Day TypeID = 0x1002

	// TypeOutbox tags offline-message rollup entries (§4.6). Unlike
	// Type7Day/Type365Day, whether a TypeOutbox value is ever mirrored into
	// the persistent store is conditional on config.PersistOutbox rather
	// than unconditional: an operator may choose not to retain message
	// ciphertext across a bootstrap node restart. See Substrate.SetPersistOutbox.
	TypeOutbox TypeID = 0x1003
)

const (
	// SevenDayTTL is the default TTL for unsigned puts.
	SevenDayTTL = 7 * 24 * time.Hour

	// ThreeSixtyFiveDayTTL is the TTL for name aliases and identity
	// reverse mappings.
	ThreeSixtyFiveDayTTL = 365 * 24 * time.Hour

	// Permanent is the sentinel TTL meaning "never expires". It is the
	// only TTL value that triggers the synchronous confirmation
	// handshake in PutTTL.
	Permanent time.Duration = -1
)

// PersistableTypes is the set of TypeIDs store.ShouldPersist will consider
// mirroring into the durable store; unknown/future types are never
// persisted automatically, per §4.9 "Polymorphism".
var PersistableTypes = map[uint32]bool{
	uint32(Type7Day):   true,
	uint32(Type365Day): true,
}

// OutboxPersistableTypes is the PersistableTypes equivalent consulted for
// TypeOutbox values once an operator has opted into outbox persistence via
// Substrate.SetPersistOutbox.
var OutboxPersistableTypes = map[uint32]bool{
	uint32(TypeOutbox): true,
}

// typeForTTL selects the storage type for a requested TTL, per §4.3:
// "ttl ≥ 365d → TYPE_365DAY, else TYPE_7DAY"; Permanent also maps to
// TYPE_365DAY (the only type permanent values are ever tagged with).
func typeForTTL(ttl time.Duration) TypeID {
	if ttl == Permanent || ttl >= ThreeSixtyFiveDayTTL {
		return Type365Day
	}
	return Type7Day
}

// Value is one observed entry at a DHT key.
type Value struct {
	Type      TypeID
	Payload   []byte
	ValueID   uint64 // 0 for unsigned puts that never carry a value-id
	Seq       uint64 // sequence number; higher always wins for a given ValueID
	Timestamp uint64 // optional app-level ordering key for signed puts; 0 = unordered, always replace
	Permanent bool
	StoredAt  time.Time
	ExpiresAt time.Time // zero value means permanent
}

// Stats summarizes substrate health, per §4.3 get_stats().
type Stats struct {
	KnownNodes   int
	StoredValues int
}

// AsyncCallback is invoked once per observed value during GetAsync, and
// once more with ok=false when iteration completes. Implementations MUST
// treat this as running on a different goroutine than the call site.
type AsyncCallback func(v *Value, ok bool)
