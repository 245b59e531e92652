// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package outbox

import (
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/toole-brendan/qio/codec"
)

// Dedupe is the recipient-local "responsible for de-duplication by
// ciphertext content" component §4.6 leaves to the caller: a small
// goleveldb-backed set of ciphertext hashes already delivered to the
// application, so repeated Retrieve calls (which may observe the same
// still-unexpired entry across polls) surface each message once.
type Dedupe struct {
	db *leveldb.DB
}

// OpenDedupe opens (creating if necessary) a dedupe database at path.
func OpenDedupe(path string) (*Dedupe, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("outbox: open dedupe store at %s: %w", path, err)
	}
	return &Dedupe{db: db}, nil
}

// Close releases the underlying database handle.
func (d *Dedupe) Close() error { return d.db.Close() }

func dedupeKey(e Entry) []byte {
	sum := codec.SHA3_512(e.Ciphertext, []byte(e.Sender), []byte(e.Recipient))
	return sum[:]
}

// Seen reports whether e has already been recorded as delivered, and (if
// not) records it now so a subsequent call returns true.
func (d *Dedupe) Seen(e Entry) (bool, error) {
	key := dedupeKey(e)
	ok, err := d.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("outbox: dedupe lookup: %w", err)
	}
	if ok {
		return true, nil
	}
	if err := d.db.Put(key, codec.BE64(uint64(time.Now().Unix())), nil); err != nil {
		return false, fmt.Errorf("outbox: dedupe record: %w", err)
	}
	return false, nil
}

// Filter returns the subset of entries not yet seen, recording each as
// seen in the process.
func (d *Dedupe) Filter(entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		seen, err := d.Seen(e)
		if err != nil {
			return nil, err
		}
		if !seen {
			out = append(out, e)
		}
	}
	return out, nil
}
