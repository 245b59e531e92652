// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config defines qiod's on-disk/CLI configuration, following the
// option-struct-with-tags idiom used throughout the btcsuite ecosystem.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultPort            = 21337
	defaultPersistencePath = "qio.sqlite"
	defaultIdentityPath    = "bootstrap-identity"
	defaultLogLevel        = "info"
	defaultLogDir          = "logs"
	defaultOutboxTTL       = 7 * 24 * time.Hour
	defaultNameTTL         = 365 * 24 * time.Hour
)

// DefaultBootstrapNodes is the small ordered default bootstrap list of §6.
// qiod only reports how many entries are configured; no package here dials
// or rotates through them.
var DefaultBootstrapNodes = []string{
	"bootstrap1.qio.example:21337",
	"bootstrap2.qio.example:21337",
	"bootstrap3.qio.example:21337",
}

// Config is the full set of knobs a qio node accepts, whether running as a
// bootstrap node or an ordinary user node.
type Config struct {
	Port              int      `short:"p" long:"port" description:"UDP/TCP port to listen on" default:"21337"`
	Bootstrap         bool     `long:"bootstrap" description:"run as a public, persistent bootstrap node"`
	PersistencePath   string   `long:"dbpath" description:"path to the persistent value store (sqlite file)"`
	IdentityPath      string   `long:"identity" description:"path prefix for the bootstrap node's on-disk identity (<path>.crt/<path>.pem)"`
	BootstrapNodes    []string `long:"bootstrapnode" description:"ip:port of a bootstrap node to rotate through; may be given multiple times"`
	LogLevel          string   `long:"loglevel" description:"debug|info|warn|error" default:"info"`
	LogDir            string   `long:"logdir" description:"directory for rotated log files"`
	PersistOutbox     bool     `long:"persistoutbox" description:"mirror outbox writes into the persistent store on bootstrap nodes"`
	OutboxDefaultTTL  time.Duration
	NameRegistrarTTL  time.Duration
}

// Default returns a Config with every field at its documented default,
// matching how btcsuite daemons seed a config before flag/INI parsing.
func Default() *Config {
	return &Config{
		Port:             defaultPort,
		PersistencePath:  defaultPersistencePath,
		IdentityPath:     defaultIdentityPath,
		BootstrapNodes:   append([]string(nil), DefaultBootstrapNodes...),
		LogLevel:         defaultLogLevel,
		LogDir:           defaultLogDir,
		PersistOutbox:    true,
		OutboxDefaultTTL: defaultOutboxTTL,
		NameRegistrarTTL: defaultNameTTL,
	}
}

// Load parses CLI arguments into a Config seeded with defaults. No INI
// config file is read.
func Load(args []string) (*Config, error) {
	cfg := Default()
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// normalize expands home directories and fills in bootstrap-node defaults,
// mirroring the normalization pass of a typical btcsuite config loader.
func (c *Config) normalize() {
	if c.PersistencePath == "" {
		c.PersistencePath = defaultPersistencePath
	}
	if c.IdentityPath == "" {
		c.IdentityPath = defaultIdentityPath
	}
	if len(c.BootstrapNodes) == 0 {
		c.BootstrapNodes = append([]string(nil), DefaultBootstrapNodes...)
	}
	if c.OutboxDefaultTTL == 0 {
		c.OutboxDefaultTTL = defaultOutboxTTL
	}
	if c.NameRegistrarTTL == 0 {
		c.NameRegistrarTTL = defaultNameTTL
	}
	c.PersistencePath = expandHome(c.PersistencePath)
	c.IdentityPath = expandHome(c.IdentityPath)
	if c.LogDir != "" {
		c.LogDir = expandHome(c.LogDir)
	}
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Validate reports a descriptive error for configuration combinations the
// overlay cannot operate with, e.g. a bootstrap node lacking an identity
// path.
func (c *Config) Validate() error {
	if c.Bootstrap && c.IdentityPath == "" {
		return fmt.Errorf("config: --bootstrap requires --identity")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}
