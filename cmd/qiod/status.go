// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/toole-brendan/qio/config"
	"github.com/toole-brendan/qio/dht"
	"github.com/toole-brendan/qio/store"
)

// runStatus implements the "qiod status" subcommand: a lightweight,
// operator-facing view of get_stats() plus the persistent store's row
// count, in the teacher's btcjson-flavored "print a small RPC-shaped
// result" style. It opens the substrate and (if configured) the store
// fresh rather than attaching to a running daemon, since this overlay has
// no RPC server of its own (§1 scopes the end-user GUI/CLI out).
func runStatus(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	sub := dht.New(dht.RandomNodeID(), dht.LocalNetwork{})
	stats := sub.GetStats()

	fmt.Printf("known_nodes:   %d\n", stats.KnownNodes)
	fmt.Printf("stored_values: %d\n", stats.StoredValues)

	if !cfg.Bootstrap {
		return nil
	}

	st, err := store.Open(cfg.PersistencePath)
	if err != nil {
		return fmt.Errorf("status: open persistent store: %w", err)
	}
	defer st.Close()

	count, err := st.Count(context.Background())
	if err != nil {
		return fmt.Errorf("status: count persistent rows: %w", err)
	}
	fmt.Printf("persisted_rows: %d\n", count)
	return nil
}
