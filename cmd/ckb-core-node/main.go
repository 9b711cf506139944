package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nervosnetwork/ckb-sub009/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.Node)

// nowMs is the wall-clock source the pool uses to time-stamp entries and
// expire the reject cache; a func value rather than a direct time.Now
// call so tests elsewhere in this module can substitute a fake clock.
func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing command-line arguments: %s\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogRotator(cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing log rotator: %s\n", err)
		os.Exit(1)
	}
	for _, tag := range logger.SupportedSubsystems() {
		logger.SetLogLevel(logger.Tag(tag), cfg.DebugLevel)
	}

	n, err := newNode(cfg)
	if err != nil {
		log.Errorf("error constructing node: %s", err)
		os.Exit(1)
	}

	if err := n.start(); err != nil {
		log.Errorf("error starting node: %s", err)
		os.Exit(1)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	if err := n.stop(); err != nil {
		log.Errorf("error stopping node: %s", err)
		os.Exit(1)
	}
}
