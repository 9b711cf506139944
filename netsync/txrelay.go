package netsync

import (
	"github.com/nervosnetwork/ckb-sub009/types"
)

// SelectRelayPeers picks up to limit connected peers that aren't already
// known to have txHash, per spec.md §4.9's transaction relay fan-out.
func SelectRelayPeers(reg *Registry, txHash types.Hash32, limit int) []PeerID {
	var selected []PeerID
	for _, p := range reg.All() {
		if len(selected) >= limit {
			break
		}
		if _, known := p.KnownTxs[txHash]; known {
			continue
		}
		selected = append(selected, p.ID)
	}
	return selected
}

// MarkTxKnown records that peer id has seen txHash, whether because this
// node announced it or because the peer sent it, so it's never relayed to
// that peer twice.
func (r *Registry) MarkTxKnown(id PeerID, txHash types.Hash32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.KnownTxs[txHash] = struct{}{}
	}
}

// ValidateDeclaredCycles reports whether a relayed transaction's
// sender-declared cycle count matches what this node's own verifier
// measured; a mismatch is treated as malformed per spec.md §4.9/§7 and the
// sender's score should be docked.
func ValidateDeclaredCycles(declared, actual types.Cycle) bool {
	return declared == actual
}

// ScoreDeclaredWrongCycles is netglue.ScoreDeclaredWrongCycles's
// sync-domain counterpart; kept here so txrelay.go doesn't need to import
// netglue just for one constant. Values intentionally match.
const ScoreDeclaredWrongCycles = 50
