package netsync

import (
	"sort"
	"time"

	"github.com/nervosnetwork/ckb-sub009/p2pwire"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// BlockRequest pairs a wanted block's hash with its height, so batches can
// be sorted descending by height per spec.md §4.9's GetBlocks contract.
type BlockRequest struct {
	Hash   types.Hash32
	Number types.Number
}

// NextBlockBatch fills peer's remaining InitBlocksInTransitPerPeer window
// from pending (assumed already in the order the caller wants blocks
// fetched), sorts the chosen batch descending by height, and returns it.
// An empty result means the peer's window is already full.
func NextBlockBatch(state *PeerState, pending []BlockRequest) []BlockRequest {
	available := InitBlocksInTransitPerPeer - len(state.InFlightBlocks)
	if available <= 0 || len(pending) == 0 {
		return nil
	}
	if available > len(pending) {
		available = len(pending)
	}
	batch := make([]BlockRequest, available)
	copy(batch, pending[:available])
	sort.Slice(batch, func(i, j int) bool { return batch[i].Number > batch[j].Number })
	return batch
}

// ValidateGetBlocks checks an incoming GetBlocks request against spec.md
// §4.9's rejection rules: too many hashes, duplicates, or a request for
// the genesis block. Returns StatusOK if the request is well formed.
func ValidateGetBlocks(hashes []types.Hash32, genesisHash types.Hash32) p2pwire.StatusCode {
	if len(hashes) > MaxHeadersLen {
		return p2pwire.StatusTooManyHashes
	}
	seen := make(map[types.Hash32]struct{}, len(hashes))
	for _, h := range hashes {
		if h == genesisHash {
			return p2pwire.StatusRequestedGenesis
		}
		if _, dup := seen[h]; dup {
			return p2pwire.StatusDuplicateRequest
		}
		seen[h] = struct{}{}
	}
	return p2pwire.StatusOK
}

// ReapTimedOutRequests finds every in-flight block request older than
// BlockRequestTimeout, clears it from its original peer (who gets a score
// penalty) and returns the set of hashes that need re-dispatch to a
// different peer, per spec.md §4.9's "in-flight timeout triggers
// re-request from another peer and score decrement on the original".
func ReapTimedOutRequests(reg *Registry, now time.Time) []types.Hash32 {
	timedOut := reg.TimedOutRequests(now)
	redispatch := make([]types.Hash32, 0, len(timedOut))
	for _, t := range timedOut {
		reg.MarkDelivered(t.Peer, t.Hash)
		reg.Penalize(t.Peer, ScoreBlockTimeout)
		redispatch = append(redispatch, t.Hash)
	}
	return redispatch
}

// ScoreBlockTimeout is the misbehavior penalty for letting a requested
// block time out, distinct from an outright malformed-message penalty
// since a timeout may simply mean the peer is slow or disconnected.
const ScoreBlockTimeout = 5
