// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package outbox implements the sender-owned offline message outbox of
// §4.6: each sender maintains one append log per recipient on the DHT,
// rolled up and rewritten as a single put_signed(value_id=1) record so
// repeated writes replace rather than accumulate whole logs.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/toole-brendan/qio/codec"
	"github.com/toole-brendan/qio/dht"
	"github.com/toole-brendan/qio/qerr"
)

var log btclog.Logger

func init() { UseLogger(btclog.Disabled) }

// UseLogger sets the package-wide logger used by Outbox.
func UseLogger(logger btclog.Logger) { log = logger }

// outboxMagic tags every entry in a serialized log, per §4.6's
// "[u32 magic=0xDEADBEEF-class]".
const outboxMagic uint32 = 0xDEADBEEF

// wireVersion is the only entry format this package writes or accepts.
const wireVersion uint8 = 1

// DefaultTTL is the default expiry an entry receives when the caller does
// not request one explicitly.
const DefaultTTL = 7 * 24 * time.Hour

const rollupValueID = 1

// Entry is one queued ciphertext.
type Entry struct {
	Timestamp  uint64
	Expiry     uint64
	Sender     string
	Recipient  string
	Ciphertext []byte
}

// Expired reports whether the entry has passed its expiry as of now.
func (e Entry) Expired(now time.Time) bool { return uint64(now.Unix()) >= e.Expiry }

// Key derives the 64-byte DHT key a sender's outbox to recipient lives at:
// SHA3-512(sender_fp || ":outbox:" || recipient_fp).
func Key(senderFP, recipientFP string) [64]byte {
	return codec.DHTKey(senderFP, ":outbox:", recipientFP)
}

// Encode serializes entries per §4.6's binary framing: a u32 count
// followed by that many big-endian-framed entries.
func Encode(entries []Entry) []byte {
	buf := codec.PutUint32(nil, uint32(len(entries)))
	for _, e := range entries {
		buf = codec.PutUint32(buf, outboxMagic)
		buf = append(buf, byte(wireVersion))
		buf = codec.PutUint64(buf, e.Timestamp)
		buf = codec.PutUint64(buf, e.Expiry)
		buf = codec.PutUint16(buf, uint16(len(e.Sender)))
		buf = codec.PutUint16(buf, uint16(len(e.Recipient)))
		buf = codec.PutUint32(buf, uint32(len(e.Ciphertext)))
		buf = append(buf, []byte(e.Sender)...)
		buf = append(buf, []byte(e.Recipient)...)
		buf = append(buf, e.Ciphertext...)
	}
	return buf
}

// Decode parses the framing Encode produces, rejecting any entry whose
// magic or version does not match and refusing truncated frames.
func Decode(data []byte) ([]Entry, error) {
	r := codec.NewReader(data)
	count, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("outbox: decode count: %w", err)
	}
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		magic, err := r.Uint32()
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d magic: %w", i, err)
		}
		if magic != outboxMagic {
			return nil, fmt.Errorf("outbox: entry %d: %w", i, qerr.ErrInvalidArgument)
		}
		versionByte, err := r.Bytes(1)
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d version: %w", i, err)
		}
		if versionByte[0] != wireVersion {
			return nil, fmt.Errorf("outbox: entry %d: unsupported version %d: %w", i, versionByte[0], qerr.ErrInvalidArgument)
		}
		timestamp, err := r.Uint64()
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d timestamp: %w", i, err)
		}
		expiry, err := r.Uint64()
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d expiry: %w", i, err)
		}
		senderLen, err := r.Uint16()
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d sender length: %w", i, err)
		}
		recipientLen, err := r.Uint16()
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d recipient length: %w", i, err)
		}
		ciphertextLen, err := r.Uint32()
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d ciphertext length: %w", i, err)
		}
		sender, err := r.Bytes(int(senderLen))
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d sender: %w", i, err)
		}
		recipient, err := r.Bytes(int(recipientLen))
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d recipient: %w", i, err)
		}
		ciphertext, err := r.Bytes(int(ciphertextLen))
		if err != nil {
			return nil, fmt.Errorf("outbox: decode entry %d ciphertext: %w", i, err)
		}
		entries = append(entries, Entry{
			Timestamp:  timestamp,
			Expiry:     expiry,
			Sender:     string(sender),
			Recipient:  string(recipient),
			Ciphertext: ciphertext,
		})
	}
	return entries, nil
}

// Outbox queues and retrieves offline messages over a Substrate.
type Outbox struct {
	sub *dht.Substrate
}

// New returns an Outbox backed by sub.
func New(sub *dht.Substrate) *Outbox { return &Outbox{sub: sub} }

// Queue implements queue(sender, recipient, ciphertext, ttl): it loads the
// sender's existing rollup (selecting the largest of any accumulated
// versions as the most recent, per §4.6), appends a new entry expiring at
// now+ttl, and rewrites the whole log as one put_signed(value_id=1) at a
// TTL matching the new entry's expiry.
func (o *Outbox) Queue(ctx context.Context, senderFP, recipientFP string, ciphertext []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	key := Key(senderFP, recipientFP)
	entries, err := o.loadRollup(key)
	if err != nil {
		return err
	}

	now := time.Now()
	entries = append(entries, Entry{
		Timestamp:  uint64(now.Unix()),
		Expiry:     uint64(now.Add(ttl).Unix()),
		Sender:     senderFP,
		Recipient:  recipientFP,
		Ciphertext: ciphertext,
	})

	data := Encode(entries)
	if err := o.sub.PutSignedTyped(ctx, key, data, rollupValueID, ttl, dht.TypeOutbox); err != nil {
		return fmt.Errorf("outbox: queue: %w", err)
	}
	return nil
}

// loadRollup fetches every accumulated version at key and returns the
// entries of the largest (byte count), per §4.6's "select the LARGEST as
// the most recent rollup". An empty or absent key yields no entries.
func (o *Outbox) loadRollup(key [64]byte) ([]Entry, error) {
	values := o.sub.GetAll(key)
	if len(values) == 0 {
		return nil, nil
	}
	largest := values[0]
	for _, v := range values[1:] {
		if len(v.Payload) > len(largest.Payload) {
			largest = v
		}
	}
	entries, err := Decode(largest.Payload)
	if err != nil {
		log.Warnf("outbox: discarding unparseable rollup at key: %v", err)
		return nil, nil
	}
	return entries, nil
}

// Retrieve implements retrieve(recipient, sender_list): for each sender in
// senderFPs, fetches that sender's outbox to recipient, drops any entry
// already expired, and merges surviving entries across all senders.
func (o *Outbox) Retrieve(recipientFP string, senderFPs []string) []Entry {
	now := time.Now()
	var merged []Entry
	for _, senderFP := range senderFPs {
		key := Key(senderFP, recipientFP)
		v, ok := o.sub.Get(key)
		if !ok {
			continue
		}
		entries, err := Decode(v.Payload)
		if err != nil {
			log.Warnf("outbox: discarding unparseable outbox from %s: %v", senderFP, err)
			continue
		}
		for _, e := range entries {
			if e.Expired(now) {
				continue
			}
			merged = append(merged, e)
		}
	}
	return merged
}
