// Package netsync is the headers-first synchronization state machine:
// per-peer best-header tracking, windowed block download with in-flight
// timeouts, compact-block relay and reconstruction, transaction relay,
// and the status-code/ban-score plumbing spec.md §4.9 describes.
//
// Grounded on protocol/manager.go's Manager (netAdapter/txPool/dag/
// addressManager wiring, rebroadcast bookkeeping) and protocol/protocol.go
// /handshake.go's per-connection flow goroutines (one goroutine per named
// flow, each blocked reading its own Route), generalized from kaspad's
// DAG-IBD flow (protocol/flowcontext/ibd.go) to CKB's linear
// greatest-total-difficulty headers-first flow, and from
// protocol/peer/peer.go's Peer struct to the richer {known_headers_tip,
// in_flight_blocks, last_request_time, misbehavior_score, sync_started_at}
// shape spec.md §4.9 names.
package netsync

import (
	"time"

	"github.com/nervosnetwork/ckb-sub009/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.Sync)

// Protocol constants. spec.md §4.9 names these knobs without fixing
// values; the numbers below are this reference implementation's choice,
// recorded in DESIGN.md rather than re-derived from any pack source.
const (
	MaxHeadersLen               = 2000
	InitBlocksInTransitPerPeer  = 16
	MaxRelayTxsNumPerBatch      = 100
	MaxRelayPeers               = 4
	ProtectedPeerCount          = 8
	BlockRequestTimeout         = 30 * time.Second
)
