package main

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultDataDirname  = "data"
	defaultLogFilename  = "ckb-core-node.log"
	defaultListenAddr   = ":8115"
	defaultNetwork      = "mainnet"
	defaultRejectSweep  = 10 * 60 // seconds
	defaultDebugLevel   = "info"
)

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".ckb-core-node")
}

// config mirrors cmd/txgen/config.go's flat, required-field-checked
// go-flags struct, generalized from a traffic-generator's RPC-client
// knobs to a full node's storage/network/logging knobs.
type config struct {
	DataDir    string `long:"datadir" description:"Directory to store block and pool data"`
	LogFile    string `long:"logfile" description:"Path to the node's log file"`
	Network    string `long:"network" description:"Network to connect to: mainnet or dev"`
	ListenAddr string `long:"listen" description:"Address to listen for peer connections on"`
	ConnectTo  []string `long:"connect" description:"Address of a peer to dial on startup; may be given multiple times"`
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical}"`
	RejectSweepSeconds uint64 `long:"reject-sweep" description:"How often, in seconds, to sweep the pool's reject cache of expired entries"`
}

func parseConfig() (*config, error) {
	cfg := &config{
		DataDir:            filepath.Join(defaultHomeDir(), defaultDataDirname),
		LogFile:            filepath.Join(defaultHomeDir(), defaultLogFilename),
		Network:            defaultNetwork,
		ListenAddr:         defaultListenAddr,
		DebugLevel:         defaultDebugLevel,
		RejectSweepSeconds: defaultRejectSweep,
	}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	_, err := parser.Parse()
	if err != nil {
		return nil, err
	}

	if cfg.Network != "mainnet" && cfg.Network != "dev" {
		return nil, errors.Errorf("--network must be mainnet or dev, got %q", cfg.Network)
	}
	if cfg.RejectSweepSeconds == 0 {
		return nil, errors.New("--reject-sweep must be positive")
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}

	return cfg, nil
}
