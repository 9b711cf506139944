package txpool

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/internal/logger"
	"github.com/nervosnetwork/ckb-sub009/proposaltable"
	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
	"github.com/nervosnetwork/ckb-sub009/verifier"
)

var log, _ = logger.Get(logger.SubsystemTags.Pool)

// DefaultMaxAncestorsCount is the ceiling on a candidate's ancestor count,
// per spec.md §4.6.
const DefaultMaxAncestorsCount = 125

// DefaultMinFeeRate is the minimum Shannons/byte a transaction must pay to
// be admitted.
const DefaultMinFeeRate = 1000

// DefaultMinRBFRate is the minimum fee rate (Shannons/byte) an RBF
// candidate must clear regardless of what it replaces.
const DefaultMinRBFRate = 1500

var (
	ErrAlreadyKnown   = errors.New("txpool: transaction already known")
	ErrOrphan         = errors.New("txpool: transaction is an orphan")
	ErrAlreadyRejected = errors.New("txpool: transaction previously rejected")
)

// ChainSnapshot lets the pool resolve inputs against confirmed chain
// state; the chain engine supplies the concrete implementation.
type ChainSnapshot interface {
	verifier.CellSource
	TipNumber() types.Number
	TipEpoch() types.Epoch
}

// Pool is the single-owner mempool. Its mutex is what serializes access:
// callers invoke the exported methods directly from their own goroutines,
// and no command channel or owning goroutine sits in front of the pool.
type Pool struct {
	mu sync.Mutex

	params *consensus.Params
	chain  ChainSnapshot
	hasher types.Hasher

	entries map[types.Hash32]*Entry
	stage   map[types.Hash32]Stage
	links   *links

	// spentBy indexes which pooled tx currently spends a given OutPoint,
	// so a conflicting submission can be detected for RBF.
	spentBy map[types.OutPoint]types.Hash32

	orphans *orphanPool
	rejects *rejectCache

	proposals *proposaltable.Table

	nowMs func() uint64
}

// New builds an empty pool. nowMs supplies the current wall-clock time in
// milliseconds (injected so tests are deterministic); the node binary
// wires in a real clock.
func New(params *consensus.Params, chain ChainSnapshot, hasher types.Hasher, rejectDB store.TTLDB, nowMs func() uint64) *Pool {
	return &Pool{
		params:    params,
		chain:     chain,
		hasher:    hasher,
		entries:   make(map[types.Hash32]*Entry),
		stage:     make(map[types.Hash32]Stage),
		links:     newLinks(),
		spentBy:   make(map[types.OutPoint]types.Hash32),
		orphans:   newOrphanPool(DefaultMaxOrphanTransactions),
		rejects:   newRejectCache(rejectDB),
		proposals: proposaltable.New(params.ProposalWindow),
		nowMs:     nowMs,
	}
}

// poolCellSource resolves an input first against the pool's own pending
// outputs (so chained, not-yet-confirmed transactions can spend each
// other), falling back to the chain snapshot.
type poolCellSource struct {
	pool *Pool
}

func (s *poolCellSource) ResolveInput(op types.OutPoint) (types.CellOutput, []byte, verifier.ResolvedAt, bool, error) {
	if entry, ok := s.pool.entries[op.TxHash]; ok {
		if int(op.Index) >= len(entry.Tx.Outputs) {
			return types.CellOutput{}, nil, verifier.ResolvedAt{}, false, errors.New("txpool: outpoint index out of range")
		}
		var data []byte
		if int(op.Index) < len(entry.Tx.OutputsData) {
			data = entry.Tx.OutputsData[op.Index]
		}
		_, stillLive := s.pool.spentBy[op]
		return entry.Tx.Outputs[op.Index], data, verifier.ResolvedAt{}, !stillLive, nil
	}
	cell, data, at, live, err := s.pool.chain.ResolveInput(op)
	return cell, data, at, live, err
}

func (s *poolCellSource) ResolveCellDep(op types.OutPoint) (types.CellOutput, []byte, error) {
	if entry, ok := s.pool.entries[op.TxHash]; ok {
		if int(op.Index) >= len(entry.Tx.Outputs) {
			return types.CellOutput{}, nil, errors.New("txpool: outpoint index out of range")
		}
		var data []byte
		if int(op.Index) < len(entry.Tx.OutputsData) {
			data = entry.Tx.OutputsData[op.Index]
		}
		return entry.Tx.Outputs[op.Index], data, nil
	}
	return s.pool.chain.ResolveCellDep(op)
}

func (s *poolCellSource) ResolveHeaderDep(h types.Hash32) (types.Header, error) {
	return s.pool.chain.ResolveHeaderDep(h)
}

func (s *poolCellSource) MedianTimePast(n types.Number) uint64 {
	return s.pool.chain.MedianTimePast(n)
}

// missingInputs returns every input OutPoint of tx that neither the pool
// nor the chain snapshot currently knows about.
func (p *Pool) missingInputs(tx *types.Transaction) []types.OutPoint {
	var missing []types.OutPoint
	src := &poolCellSource{pool: p}
	for _, in := range tx.Inputs {
		if _, ok := p.entries[in.PreviousOutput.TxHash]; ok {
			continue
		}
		if _, _, _, _, err := src.ResolveInput(in.PreviousOutput); err != nil {
			missing = append(missing, in.PreviousOutput)
		}
	}
	return missing
}

// conflicts returns the ids of pooled transactions that already spend one
// of tx's inputs (candidates for RBF).
func (p *Pool) conflicts(tx *types.Transaction) map[types.Hash32]struct{} {
	out := make(map[types.Hash32]struct{})
	for _, in := range tx.Inputs {
		if id, ok := p.spentBy[in.PreviousOutput]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Accept runs the full admission pipeline from spec.md §4.6 on tx,
// inserting it into the pending sub-pool on success.
func (p *Pool) Accept(tx *types.Transaction, fromPeer uint64) (*Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := tx.Hash(p.hasher)

	if reason, ok := p.rejects.get(id); ok {
		log.Debugf("txpool: %s previously rejected (%s)", id, reason)
		return nil, ErrAlreadyRejected
	}
	if _, ok := p.entries[id]; ok {
		return nil, ErrAlreadyKnown
	}

	if err := verifier.NonContextual(tx); err != nil {
		p.rejects.put(id, RejectMalformed)
		return nil, err
	}

	if missing := p.missingInputs(tx); len(missing) > 0 {
		p.orphans.add(tx, id, fromPeer, p.nowMs()+DefaultOrphanTTLMs, missing)
		return nil, ErrOrphan
	}

	conflicting := p.conflicts(tx)

	size := estimateSize(tx)
	if uint64(size) > p.params.MaxBlockBytes {
		p.rejects.put(id, RejectExceededTransactionSizeLimit)
		return nil, errors.New("txpool: transaction exceeds maximum size")
	}

	src := &poolCellSource{pool: p}
	cp := verifier.ContextParams{
		TipNumber: p.chain.TipNumber(),
		TipEpoch:  p.chain.TipEpoch(),
		Params:    p.params,
	}
	cycles, fee, err := verifier.Contextual(tx, src, cp, p.hasher)
	if err != nil {
		p.rejects.put(id, RejectVerification)
		return nil, err
	}

	feeRate := float64(fee) / float64(size)
	if len(conflicting) > 0 {
		if err := p.tryReplace(conflicting, feeRate, fee); err != nil {
			p.rejects.put(id, RejectRBFRejected)
			return nil, err
		}
	} else if feeRate < DefaultMinFeeRate {
		p.rejects.put(id, RejectLowFeeRate)
		return nil, errors.New("txpool: fee rate below minimum")
	}

	var parentIDs []types.ProposalShortId
	ancestorsSeen := make(map[types.Hash32]struct{})
	for _, in := range tx.Inputs {
		if parent, ok := p.entries[in.PreviousOutput.TxHash]; ok {
			parentIDs = append(parentIDs, types.NewProposalShortId(parent.ID))
			ancestorsSeen[parent.ID] = struct{}{}
		}
	}

	shortID := types.NewProposalShortId(id)
	p.links.add(shortID, parentIDs)
	ancestorIDs := p.links.ancestors(shortID)
	if len(ancestorIDs) > DefaultMaxAncestorsCount {
		p.links.remove(shortID)
		p.rejects.put(id, RejectExceededMaximumAncestorsCount)
		return nil, errors.New("txpool: too many ancestors")
	}

	entry := &Entry{
		Tx:          tx,
		ID:          id,
		Stage:       StagePending,
		Cycles:      cycles,
		Fee:         fee,
		Size:        size,
		TimestampMs: p.nowMs(),
	}

	// Propagate ancestor aggregates, per spec.md §4.6: entry carries the
	// summed size/fee of everything it depends on, and every ancestor's own
	// descendant aggregates grow to include entry.
	entry.AncestorsCount = len(ancestorIDs)
	for aid := range ancestorIDs {
		if ancestor, ok := p.entries[p.shortIDToHash(aid)]; ok {
			entry.AncestorsSize += ancestor.Size
			entry.AncestorsFee += ancestor.Fee
		}
	}
	for aid := range ancestorIDs {
		if ancestor, ok := p.entries[p.shortIDToHash(aid)]; ok {
			ancestor.DescendantsCount++
			ancestor.DescendantsSize += size
			ancestor.DescendantsFee += fee
		}
	}

	p.entries[id] = entry
	p.stage[id] = StagePending
	for _, in := range tx.Inputs {
		p.spentBy[in.PreviousOutput] = id
	}

	p.promoteOrphans(tx, id)
	return entry, nil
}

// DefaultOrphanTTLMs is how long an orphan transaction is held before
// being expired, in milliseconds.
const DefaultOrphanTTLMs = 10 * 60 * 1000

// tryReplace implements the RBF policy of spec.md §4.6: a candidate may
// evict the given conflicting ids (and their descendants) iff it clears
// the minimum RBF rate, beats every conflict's own fee rate, and pays at
// least the absolute fees it displaces.
func (p *Pool) tryReplace(conflicting map[types.Hash32]struct{}, candidateFeeRate float64, candidateFee types.Capacity) error {
	if candidateFeeRate < DefaultMinRBFRate {
		return errors.New("txpool: candidate fee rate below minimum RBF rate")
	}
	evict := make(map[types.Hash32]struct{})
	var evictedFee types.Capacity
	for id := range conflicting {
		entry, ok := p.entries[id]
		if !ok {
			continue
		}
		if candidateFeeRate <= entry.FeeRate() {
			return errors.New("txpool: candidate does not beat conflicting fee rate")
		}
		evict[id] = struct{}{}
		evictedFee += entry.Fee
		for d := range p.links.descendants(types.NewProposalShortId(id)) {
			descHash := p.shortIDToHash(d)
			if _, already := evict[descHash]; !already {
				evict[descHash] = struct{}{}
				if e, ok := p.entries[descHash]; ok {
					evictedFee += e.Fee
				}
			}
		}
	}
	if candidateFee < evictedFee {
		return errors.New("txpool: candidate fee does not cover evicted set's absolute fees")
	}
	for id := range evict {
		p.removeEntry(id, RejectRBFRejected)
	}
	return nil
}

// shortIDToHash resolves a ProposalShortId back to the full hash of a
// still-pooled entry; txpool only ever has one live entry per short id at
// a time so a linear scan is acceptable at pool scale.
func (p *Pool) shortIDToHash(id types.ProposalShortId) types.Hash32 {
	for h := range p.entries {
		if types.NewProposalShortId(h) == id {
			return h
		}
	}
	return types.Hash32{}
}

// removeEntry deletes an entry from every index and puts it in the reject
// cache under reason.
func (p *Pool) removeEntry(id types.Hash32, reason RejectReason) {
	entry, ok := p.entries[id]
	if !ok {
		return
	}
	for _, in := range entry.Tx.Inputs {
		if p.spentBy[in.PreviousOutput] == id {
			delete(p.spentBy, in.PreviousOutput)
		}
	}
	shortID := types.NewProposalShortId(id)
	for aid := range p.links.ancestors(shortID) {
		if ancestor, ok := p.entries[p.shortIDToHash(aid)]; ok {
			ancestor.DescendantsCount--
			ancestor.DescendantsSize -= entry.Size
			ancestor.DescendantsFee -= entry.Fee
		}
	}
	p.links.remove(shortID)
	delete(p.entries, id)
	delete(p.stage, id)
	p.rejects.put(id, reason)
}

// promoteOrphans re-probes every orphan waiting on one of tx's outputs,
// attempting re-admission now that tx (identified by id) is known.
func (p *Pool) promoteOrphans(tx *types.Transaction, id types.Hash32) {
	var candidates []*orphanEntry
	for i := range tx.Outputs {
		op := types.OutPoint{TxHash: id, Index: uint32(i)}
		candidates = append(candidates, p.orphans.readyOn(op)...)
	}
	seen := make(map[types.Hash32]struct{})
	for _, orphan := range candidates {
		if _, ok := seen[orphan.ID]; ok {
			continue
		}
		seen[orphan.ID] = struct{}{}
		if len(p.missingInputs(orphan.Tx)) > 0 {
			continue
		}
		p.orphans.remove(orphan.ID)
		p.mu.Unlock()
		_, _ = p.Accept(orphan.Tx, orphan.FromPeer)
		p.mu.Lock()
	}
}

// Get returns the pool entry for id, if present.
func (p *Pool) Get(id types.Hash32) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	return e, ok
}

// Count returns the number of entries per stage, for introspection.
func (p *Pool) Count() (pending, gap, proposed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stage {
		switch s {
		case StagePending:
			pending++
		case StageGap:
			gap++
		case StageProposed:
			proposed++
		}
	}
	return
}

// RemoveCommitted removes every transaction the chain engine just
// committed in a newly attached block, per spec.md §4.6's block
// integration rule.
func (p *Pool) RemoveCommitted(ids []types.Hash32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		entry, ok := p.entries[id]
		if !ok {
			continue
		}
		for _, in := range entry.Tx.Inputs {
			if p.spentBy[in.PreviousOutput] == id {
				delete(p.spentBy, in.PreviousOutput)
			}
		}
		shortID := types.NewProposalShortId(id)
		for aid := range p.links.ancestors(shortID) {
			if ancestor, ok := p.entries[p.shortIDToHash(aid)]; ok {
				ancestor.DescendantsCount--
				ancestor.DescendantsSize -= entry.Size
				ancestor.DescendantsFee -= entry.Fee
			}
		}
		p.links.remove(shortID)
		delete(p.entries, id)
		delete(p.stage, id)
		p.rejects.remove(id)
	}
}

// ReturnToPending moves every given transaction back to the pending
// sub-pool, used when the chain engine detaches a block during a reorg.
func (p *Pool) ReturnToPending(txs []*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		id := tx.Hash(p.hasher)
		if _, ok := p.entries[id]; ok {
			p.stage[id] = StagePending
			p.entries[id].Stage = StagePending
			continue
		}
		p.entries[id] = &Entry{Tx: tx, ID: id, Stage: StagePending, Size: estimateSize(tx)}
		p.stage[id] = StagePending
		for _, in := range tx.Inputs {
			p.spentBy[in.PreviousOutput] = id
		}
	}
}

// UpdateProposalWindow re-evaluates which pending transactions have moved
// into the gap or proposed sub-pools now that the chain tip is at number,
// per spec.md §4.8's ProposalTable.Finalize. Transactions whose ids fall
// out of the proposed set (the window closed without them committing) are
// dropped to the reject cache with RejectExpiry.
func (p *Pool) UpdateProposalWindow(number types.Number) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := p.proposals.Finalize(number)
	for id := range p.entries {
		shortID := types.NewProposalShortId(id)
		switch {
		case p.proposals.Contains(shortID):
			p.stage[id] = StageProposed
			p.entries[id].Stage = StageProposed
		case p.proposals.ContainsGap(shortID):
			p.stage[id] = StageGap
			p.entries[id].Stage = StageGap
		}
	}
	for shortID := range removed {
		if h := p.shortIDToHash(shortID); h != (types.Hash32{}) {
			if p.entries[h] != nil && p.stage[h] == StageProposed {
				p.removeEntry(h, RejectExpiry)
			}
		}
	}
}

// RecordProposals tells the pool which proposal ids a newly attached
// block declared, feeding package proposaltable.
func (p *Pool) RecordProposals(number types.Number, ids []types.ProposalShortId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposals.Insert(number, ids)
}

// RemoveProposals is RecordProposals's detach-side counterpart: it drops
// the proposal ids a block at number declared, so a reorg that detaches
// that block doesn't leave stale ids in the commit-eligible set.
func (p *Pool) RemoveProposals(number types.Number) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposals.Remove(number)
}
