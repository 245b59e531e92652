// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// qiod runs a node of the quantum identity overlay: a DHT substrate
// carrying the keyserver, unified identity/profile, and offline-outbox
// protocols, optionally acting as a public bootstrap node with durable
// storage and periodic republish.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/toole-brendan/qio/chainverify"
	"github.com/toole-brendan/qio/config"
	"github.com/toole-brendan/qio/dht"
	"github.com/toole-brendan/qio/identity"
	"github.com/toole-brendan/qio/keyserver"
	"github.com/toole-brendan/qio/outbox"
	"github.com/toole-brendan/qio/store"
)

// node bundles together everything a running qiod process holds onto.
type node struct {
	cfg       *config.Config
	substrate *dht.Substrate
	persist   *store.Store // nil on a non-bootstrap node
	keys      *keyserver.Keyserver
	ids       *identity.Registry
	outbox    *outbox.Outbox
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "status" {
		return runStatus(args[1:])
	}

	cfg, err := config.Load(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.LogDir != "" {
		if err := initLogRotator(filepath.Join(cfg.LogDir, "qiod.log")); err != nil {
			return err
		}
	}
	setLogLevels(cfg.LogLevel)
	useLoggers()

	n, err := newNode(cfg)
	if err != nil {
		return err
	}
	defer n.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if n.persist != nil {
		if err := n.persist.RestoreActive(ctx, uint64(time.Now().Unix()), n.substrate.Republish); err != nil {
			mainLog.Warnf("restore active rows: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	mainLog.Infof("qiod listening on port %d (bootstrap=%v)", cfg.Port, cfg.Bootstrap)
	<-sigCh
	mainLog.Infof("shutdown signal received, exiting")
	return nil
}

// newNode wires a Substrate, optional persistent Store, bootstrap node
// identity, and the three overlay services (keyserver, identity registry,
// outbox) from cfg, mirroring the teacher's "assemble the daemon's
// subsystems, then run" main-package shape.
func newNode(cfg *config.Config) (*node, error) {
	if cfg.Bootstrap {
		// Bootstrap nodes load/persist their own X.509 identity (§4.3); the
		// routing-table NodeID remains a separate, ephemeral 160-bit value
		// the way a DHT session key is independent of its TLS identity.
		if _, err := dht.LoadOrCreateIdentity(cfg.IdentityPath); err != nil {
			return nil, fmt.Errorf("main: load bootstrap identity: %w", err)
		}
	}

	sub := dht.New(dht.RandomNodeID(), dht.LocalNetwork{})
	sub.SetPersistOutbox(cfg.PersistOutbox)
	mainLog.Infof("configured with %d bootstrap node(s)", len(cfg.BootstrapNodes))

	n := &node{
		cfg:       cfg,
		substrate: sub,
		keys:      keyserver.New(sub),
		outbox:    outbox.New(sub),
	}

	if cfg.Bootstrap {
		st, err := store.Open(cfg.PersistencePath)
		if err != nil {
			return nil, fmt.Errorf("main: open persistent store: %w", err)
		}
		n.persist = st
		sub.SetPersistentStore(st)
	}

	var verifier chainverify.Verifier = chainverify.NewStaticVerifier()
	n.ids = identity.New(sub, verifier)

	return n, nil
}

func (n *node) close() {
	if n.persist != nil {
		if err := n.persist.Close(); err != nil {
			mainLog.Warnf("close persistent store: %v", err)
		}
	}
}
