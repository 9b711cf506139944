package netsync

import (
	"sort"
	"sync"
	"time"

	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// PeerState is the per-peer bookkeeping spec.md §4.9 names verbatim. A
// peer is Protected while it's among the ProtectedPeerCount peers with
// the earliest SyncStartedAt; timeouts and misbehavior do not enter that
// choice, and this package evicts no peer for being slow to sync.
type PeerState struct {
	ID PeerID

	KnownHeadersTip    types.Hash32
	KnownHeadersNumber types.Number

	InFlightBlocks  map[types.Hash32]time.Time
	LastRequestTime time.Time

	MisbehaviorScore int
	SyncStartedAt    time.Time

	Protected bool

	// KnownTxs is what spec.md §4.9's tx relay calls "peers not known to
	// have the tx" — the set of transaction hashes already announced to
	// or received from this peer, so the same hash is never relayed to
	// it twice.
	KnownTxs map[types.Hash32]struct{}

	// PendingHeaders holds headers this peer has announced past our
	// local tip but whose block body hasn't been downloaded yet, keyed
	// by height so the download scheduler can walk them in order.
	PendingHeaders map[types.Number]types.Hash32
}

// PeerID is an alias kept local so this package's call sites read as
// sync-domain code rather than reaching into netglue everywhere.
type PeerID = netglue.PeerID

func newPeerState(id PeerID) *PeerState {
	return &PeerState{
		ID:              id,
		InFlightBlocks:  make(map[types.Hash32]time.Time),
		SyncStartedAt:   time.Now(),
		KnownTxs:        make(map[types.Hash32]struct{}),
		PendingHeaders:  make(map[types.Number]types.Hash32),
	}
}

// Registry tracks every connected peer's PeerState behind a single
// reader-writer mutex. Readers take the shared read lock: they run
// concurrently with one another but wait while a writer holds the lock.
type Registry struct {
	mu    sync.RWMutex
	peers map[PeerID]*PeerState
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[PeerID]*PeerState)}
}

func (r *Registry) Add(id PeerID) *PeerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := newPeerState(id)
	r.peers[id] = state
	r.recomputeProtectedLocked()
	return state
}

func (r *Registry) Remove(id PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
	r.recomputeProtectedLocked()
}

func (r *Registry) Get(id PeerID) (*PeerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// All returns every currently tracked peer state.
func (r *Registry) All() []*PeerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PeerState, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// peerIDsExcept returns every tracked peer other than exclude, for
// fan-out relay that shouldn't echo back to the block/tx's origin.
func (r *Registry) peerIDsExcept(exclude PeerID) []PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]PeerID, 0, len(r.peers))
	for id := range r.peers {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	return ids
}

// recomputeProtectedLocked marks the ProtectedPeerCount peers with the
// earliest SyncStartedAt as protected and every other peer as not; a
// peer's misbehavior score or timeouts do not affect the choice.
func (r *Registry) recomputeProtectedLocked() {
	peers := make([]*PeerState, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].SyncStartedAt.Before(peers[j].SyncStartedAt)
	})
	for i, p := range peers {
		p.Protected = i < ProtectedPeerCount
	}
}

// AdvanceKnownHeaders updates a peer's best known header after it sends a
// validated header extending its own chain.
func (r *Registry) AdvanceKnownHeaders(id PeerID, hash types.Hash32, number types.Number) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.KnownHeadersTip = hash
		p.KnownHeadersNumber = number
	}
}

// RecordHeaders remembers every header in a validated SendHeaders reply
// by height, so the block-download scheduler can later request exactly
// the blocks this peer announced, in order.
func (r *Registry) RecordHeaders(id PeerID, headers []types.Header, hasher types.Hasher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return
	}
	for _, h := range headers {
		p.PendingHeaders[h.Number] = h.Hash(hasher)
	}
}

// PendingBlocks returns, in ascending height order, every header this
// peer announced at or above fromNumber that hasn't been consumed yet.
func (r *Registry) PendingBlocks(id PeerID, fromNumber types.Number) []BlockRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return nil
	}
	var out []BlockRequest
	for number, hash := range p.PendingHeaders {
		if number >= fromNumber {
			out = append(out, BlockRequest{Hash: hash, Number: number})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// ConsumePendingHeader removes a header from PendingHeaders once its
// block has been delivered (or the block is already known some other
// way), so it isn't requested again.
func (r *Registry) ConsumePendingHeader(id PeerID, number types.Number) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		delete(p.PendingHeaders, number)
	}
}

// MarkRequested records blockHash as in flight from peer id.
func (r *Registry) MarkRequested(id PeerID, blockHash types.Hash32, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.InFlightBlocks[blockHash] = at
		p.LastRequestTime = at
	}
}

// MarkDelivered clears blockHash from peer id's in-flight set.
func (r *Registry) MarkDelivered(id PeerID, blockHash types.Hash32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		delete(p.InFlightBlocks, blockHash)
	}
}

// Penalize adds to a peer's misbehavior score and returns the new total.
func (r *Registry) Penalize(id PeerID, amount int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return 0
	}
	p.MisbehaviorScore += amount
	return p.MisbehaviorScore
}

// TimedOutRequests returns every (peer, blockHash) pair whose request has
// been outstanding longer than BlockRequestTimeout as of now, for the
// download scheduler's timeout sweep.
func (r *Registry) TimedOutRequests(now time.Time) []struct {
	Peer PeerID
	Hash types.Hash32
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []struct {
		Peer PeerID
		Hash types.Hash32
	}
	for id, p := range r.peers {
		for hash, requestedAt := range p.InFlightBlocks {
			if now.Sub(requestedAt) > BlockRequestTimeout {
				out = append(out, struct {
					Peer PeerID
					Hash types.Hash32
				}{id, hash})
			}
		}
	}
	return out
}
