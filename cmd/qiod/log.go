// Copyright (c) 2025 Shell Reserve developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
	"github.com/toole-brendan/qio/dht"
	"github.com/toole-brendan/qio/identity"
	"github.com/toole-brendan/qio/keyserver"
	"github.com/toole-brendan/qio/outbox"
	"github.com/toole-brendan/qio/store"
)

// logRotator writes rotated log files in addition to stdout, the standard
// btcsuite daemon pattern.
var logRotator *rotator.Rotator

// logWriter implements io.Writer so btclog's backend can write to both
// stdout and the rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var backendLog = btclog.NewBackend(logWriter{})

var (
	mainLog      = backendLog.Logger("MAIN")
	dhtLog       = backendLog.Logger("DHT ")
	storeLog     = backendLog.Logger("STOR")
	keyserverLog = backendLog.Logger("KEYS")
	identityLog  = backendLog.Logger("IDNT")
	outboxLog    = backendLog.Logger("OBOX")
)

func useLoggers() {
	dht.UseLogger(dhtLog)
	store.UseLogger(storeLog)
	keyserver.UseLogger(keyserverLog)
	identity.UseLogger(identityLog)
	outbox.UseLogger(outboxLog)
}

// initLogRotator opens (creating parent directories as needed) the rotated
// log file at logFile and installs it as logRotator.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o700); err != nil {
			return fmt.Errorf("main: create log directory %s: %w", logDir, err)
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("main: create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

func setLogLevels(levelStr string) {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		level = btclog.LevelInfo
	}
	for _, l := range []btclog.Logger{mainLog, dhtLog, storeLog, keyserverLog, identityLog, outboxLog} {
		l.SetLevel(level)
	}
}
