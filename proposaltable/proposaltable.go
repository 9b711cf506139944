// Package proposaltable tracks which ProposalShortIds are currently
// inside their commit window, per spec.md §4.8.
//
// Grounded on original_source's shared/src/tx_proposal_table.rs: a block
// number keyed table of proposal sets, a rolling "gap" set (ids proposed
// too recently to be committed yet) and a "set" of every id currently
// eligible for commit, recomputed on each call to Finalize as the tip
// advances.
package proposaltable

import (
	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// Table is the proposal window bookkeeping structure. The transaction
// pool owns it, recording each new tip's proposals in it and consulting
// it to move pooled transactions between stages.
type Table struct {
	window consensus.ProposalWindow

	byNumber map[types.Number]map[types.ProposalShortId]struct{}
	gap      map[types.ProposalShortId]struct{}
	set      map[types.ProposalShortId]struct{}
}

// New builds an empty table for the given proposal window.
func New(window consensus.ProposalWindow) *Table {
	return &Table{
		window:   window,
		byNumber: make(map[types.Number]map[types.ProposalShortId]struct{}),
		gap:      make(map[types.ProposalShortId]struct{}),
		set:      make(map[types.ProposalShortId]struct{}),
	}
}

// Insert records the proposal ids a block at number declared. Returns
// false if number already had an entry (the caller attached the same
// block twice without detaching, a bug at the call site).
func (t *Table) Insert(number types.Number, ids []types.ProposalShortId) bool {
	if _, exists := t.byNumber[number]; exists {
		return false
	}
	m := make(map[types.ProposalShortId]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	t.byNumber[number] = m
	return true
}

// Remove drops the proposal ids recorded for number (used when detaching a
// block during a reorg), returning whether there was an entry.
func (t *Table) Remove(number types.Number) bool {
	if _, exists := t.byNumber[number]; !exists {
		return false
	}
	delete(t.byNumber, number)
	return true
}

// Contains reports whether id is inside the current commit-eligible set.
func (t *Table) Contains(id types.ProposalShortId) bool {
	_, ok := t.set[id]
	return ok
}

// ContainsGap reports whether id was proposed too recently to be
// committed yet (it will become eligible once the tip advances far
// enough), used to distinguish "not yet proposed" from "proposed, still
// in the gap" when validating a block's committed transactions.
func (t *Table) ContainsGap(id types.ProposalShortId) bool {
	_, ok := t.gap[id]
	return ok
}

// saturatingSub mirrors Rust's saturating_sub on the Number domain: it
// never underflows below zero.
func saturatingSub(a types.Number, b uint64) types.Number {
	if uint64(a) < b {
		return 0
	}
	return types.Number(uint64(a) - b)
}

// Finalize recomputes the eligible and gap sets as of tip number, pruning
// every entry older than the farthest edge of the window, and returns the
// set of proposal ids that just fell out of eligibility (were eligible
// before this call, are not after it) so the caller can purge them from
// any derived pool state.
func (t *Table) Finalize(number types.Number) map[types.ProposalShortId]struct{} {
	proposalStart := saturatingSub(number, t.window.Farthest) + 1
	proposalEnd := saturatingSub(number, t.window.Closest) + 1

	for n := range t.byNumber {
		if n < proposalStart {
			delete(t.byNumber, n)
		}
	}

	newSet := make(map[types.ProposalShortId]struct{})
	newGap := make(map[types.ProposalShortId]struct{})
	for n, ids := range t.byNumber {
		if n <= proposalEnd {
			for id := range ids {
				newSet[id] = struct{}{}
			}
		} else {
			for id := range ids {
				newGap[id] = struct{}{}
			}
		}
	}

	removed := make(map[types.ProposalShortId]struct{})
	for id := range t.set {
		if _, ok := newSet[id]; !ok {
			removed[id] = struct{}{}
		}
	}

	t.set = newSet
	t.gap = newGap
	return removed
}

// All returns a snapshot of every currently-tracked block number's
// proposal ids, for persistence/debugging.
func (t *Table) All() map[types.Number]map[types.ProposalShortId]struct{} {
	out := make(map[types.Number]map[types.ProposalShortId]struct{}, len(t.byNumber))
	for n, ids := range t.byNumber {
		cp := make(map[types.ProposalShortId]struct{}, len(ids))
		for id := range ids {
			cp[id] = struct{}{}
		}
		out[n] = cp
	}
	return out
}
