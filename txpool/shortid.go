package txpool

import (
	"github.com/nervosnetwork/ckb-sub009/types"
)

// GetByShortID resolves a compact block's short id against the pool, for
// compact-block relay's reconstruction step (spec.md §4.9): look up every
// short_id locally before falling back to GetBlockTransactions.
func (p *Pool) GetByShortID(id types.ProposalShortId) (*types.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hash := p.shortIDToHash(id)
	if hash == (types.Hash32{}) {
		return nil, false
	}
	entry, ok := p.entries[hash]
	if !ok {
		return nil, false
	}
	return entry.Tx, true
}
