// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger wires the subsystem-tagged loggers used throughout the
// core: one backend, one rotator, one btclog.Logger per subsystem tag.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	if initiated {
		os.Stdout.Write(p)
		LogRotator.Write(p)
	}
	return len(p), nil
}

// Tag identifies a logging subsystem. Subsystems are looked up by tag so
// each component gets its own level, independently adjustable.
type Tag string

// SubsystemTags enumerates every subsystem that owns a logger.
var SubsystemTags = struct {
	Chain    Tag // chain engine
	Pool     Tag // transaction pool
	Script   Tag // script VM
	Verifier Tag // transaction verifier
	Sync     Tag // sync protocol
	NetGlue  Tag // network glue / peer registry
	Store    Tag // persistence layer
	MMR      Tag // MMR over headers
	CellIdx  Tag // cell index
	Node     Tag // boundary binary
}{
	Chain:    "CHAN",
	Pool:     "POOL",
	Script:   "SCRT",
	Verifier: "VRFY",
	Sync:     "SYNC",
	NetGlue:  "NETG",
	Store:    "STOR",
	MMR:      "MMRH",
	CellIdx:  "CIDX",
	Node:     "NODE",
}

var (
	backendLog = btclog.NewBackend(logWriter{})

	// LogRotator is the rotating file writer. It must be initialized with
	// InitLogRotator before any subsystem logger is used for file output.
	LogRotator *rotator.Rotator

	initiated bool

	loggers   = make(map[Tag]btclog.Logger)
	loggersMu []Tag // registered tags, listed by SupportedSubsystems
)

// Get returns (creating if necessary) the logger registered for tag.
func Get(tag Tag) (btclog.Logger, error) {
	if tag == "" {
		return nil, fmt.Errorf("logger: empty subsystem tag")
	}
	if l, ok := loggers[tag]; ok {
		return l, nil
	}
	l := backendLog.Logger(string(tag))
	l.SetLevel(btclog.LevelInfo)
	loggers[tag] = l
	loggersMu = append(loggersMu, tag)
	return l, nil
}

// InitLogRotator initializes the logging rotator to write logs to logFile
// and creates the directory if it doesn't already exist.
func InitLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("logger: failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("logger: failed to create file rotator: %w", err)
	}
	LogRotator = r
	initiated = true
	return nil
}

// SetLogLevel sets the logging level for the given subsystem tag,
// registering a logger for a non-empty tag that has none yet. An empty tag
// or an unrecognized level string leaves every level unchanged.
func SetLogLevel(tag Tag, levelString string) {
	l, err := Get(tag)
	if err != nil {
		return
	}
	level, ok := btclog.LevelFromString(levelString)
	if !ok {
		return
	}
	l.SetLevel(level)
}

// SetLogLevels parses a "TAG=level,TAG=level" string and sets the level of
// each subsystem it names; pieces without '=' are skipped, and subsystems
// the string does not name keep their level.
func SetLogLevels(spec string) {
	for _, piece := range strings.Split(spec, ",") {
		kv := strings.SplitN(piece, "=", 2)
		if len(kv) != 2 {
			continue
		}
		SetLogLevel(Tag(strings.ToUpper(kv[0])), kv[1])
	}
}

// SupportedSubsystems returns a sorted slice of the registered subsystem
// tags, used by the node binary to apply --debuglevel to every subsystem.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(loggers))
	for _, t := range loggersMu {
		tags = append(tags, string(t))
	}
	sort.Strings(tags)
	return tags
}
