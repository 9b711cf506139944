package txpool

import "github.com/nervosnetwork/ckb-sub009/types"

// DefaultMaxOrphanTransactions bounds the orphan pool's size; overflow
// evicts an arbitrary entry, per spec.md §4.6.
const DefaultMaxOrphanTransactions = 100

// orphanEntry is a transaction held because one or more of its inputs
// reference a cell the pool (and chain) don't currently know about.
type orphanEntry struct {
	Tx        *types.Transaction
	ID        types.Hash32
	FromPeer  uint64
	ExpiresAtMs uint64
}

type orphanPool struct {
	byID       map[types.Hash32]*orphanEntry
	byMissing  map[types.OutPoint]map[types.Hash32]struct{}
	max        int
}

func newOrphanPool(max int) *orphanPool {
	return &orphanPool{
		byID:      make(map[types.Hash32]*orphanEntry),
		byMissing: make(map[types.OutPoint]map[types.Hash32]struct{}),
		max:       max,
	}
}

// add inserts tx as an orphan waiting on missing, evicting an arbitrary
// existing entry first if the pool is full.
func (o *orphanPool) add(tx *types.Transaction, id types.Hash32, fromPeer uint64, expiresAtMs uint64, missing []types.OutPoint) {
	if _, exists := o.byID[id]; exists {
		return
	}
	if len(o.byID) >= o.max {
		for evictID := range o.byID {
			o.remove(evictID)
			break
		}
	}
	o.byID[id] = &orphanEntry{Tx: tx, ID: id, FromPeer: fromPeer, ExpiresAtMs: expiresAtMs}
	for _, op := range missing {
		if _, ok := o.byMissing[op]; !ok {
			o.byMissing[op] = make(map[types.Hash32]struct{})
		}
		o.byMissing[op][id] = struct{}{}
	}
}

func (o *orphanPool) remove(id types.Hash32) {
	delete(o.byID, id)
	for op, ids := range o.byMissing {
		delete(ids, id)
		if len(ids) == 0 {
			delete(o.byMissing, op)
		}
	}
}

// readyOn returns every orphan that was waiting on op, without removing
// them (the caller removes on successful re-admission).
func (o *orphanPool) readyOn(op types.OutPoint) []*orphanEntry {
	ids, ok := o.byMissing[op]
	if !ok {
		return nil
	}
	out := make([]*orphanEntry, 0, len(ids))
	for id := range ids {
		if e, ok := o.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// expire removes every orphan whose expiry has passed as of nowMs,
// returning how many were evicted.
func (o *orphanPool) expire(nowMs uint64) int {
	var expired []types.Hash32
	for id, e := range o.byID {
		if e.ExpiresAtMs <= nowMs {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		o.remove(id)
	}
	return len(expired)
}

func (o *orphanPool) len() int { return len(o.byID) }
