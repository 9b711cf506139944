package netsync

import (
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// ShortIDResolver is the subset of txpool.Pool compact-block
// reconstruction needs: look a transaction up by its 10-byte short id.
type ShortIDResolver interface {
	GetByShortID(id types.ProposalShortId) (*types.Transaction, bool)
}

// ReconstructBlock rebuilds a compact block's transaction list from
// locally pooled transactions, per spec.md §4.9: prefilled transactions
// (conventionally the cellbase) sit at their declared Index, every other
// slot is filled in short_ids order by looking each one up in the pool.
// Slots the pool can't resolve are left nil and their indexes returned in
// missing, for a follow-up GetBlockTransactions request.
func ReconstructBlock(cb *p2pwire.MsgCompactBlock, resolver ShortIDResolver) (txs []*types.Transaction, missing []uint32) {
	total := len(cb.ShortIDs) + len(cb.PrefilledTransactions)
	txs = make([]*types.Transaction, total)

	prefilledAt := make(map[int]bool, len(cb.PrefilledTransactions))
	for _, p := range cb.PrefilledTransactions {
		if p.Index >= 0 && p.Index < total {
			txs[p.Index] = p.Tx
			prefilledAt[p.Index] = true
		}
	}

	shortIDIdx := 0
	for i := 0; i < total; i++ {
		if prefilledAt[i] {
			continue
		}
		if shortIDIdx >= len(cb.ShortIDs) {
			break
		}
		id := cb.ShortIDs[shortIDIdx]
		shortIDIdx++
		tx, ok := resolver.GetByShortID(id)
		if !ok {
			missing = append(missing, uint32(i))
			continue
		}
		txs[i] = tx
	}
	return txs, missing
}

// BuildGetBlockTransactions batches missing indexes into one or more
// GetBlockTransactions requests, each bounded by MaxRelayTxsNumPerBatch
// per spec.md §4.9.
func BuildGetBlockTransactions(blockHash types.Hash32, missing []uint32, uncleIndexes []uint32) []*p2pwire.MsgGetBlockTransactions {
	var msgs []*p2pwire.MsgGetBlockTransactions
	for len(missing) > 0 {
		n := MaxRelayTxsNumPerBatch
		if n > len(missing) {
			n = len(missing)
		}
		msgs = append(msgs, &p2pwire.MsgGetBlockTransactions{
			BlockHash: blockHash,
			Indexes:   missing[:n],
		})
		missing = missing[n:]
	}
	if len(msgs) == 0 && len(uncleIndexes) > 0 {
		msgs = append(msgs, &p2pwire.MsgGetBlockTransactions{BlockHash: blockHash, UncleIndexes: uncleIndexes})
	} else if len(msgs) > 0 {
		msgs[0].UncleIndexes = uncleIndexes
	}
	return msgs
}

// FillBlockTransactions applies a BlockTransactions reply to a
// partially-reconstructed slot list, returning the still-missing indexes.
func FillBlockTransactions(txs []*types.Transaction, missing []uint32, reply *p2pwire.MsgBlockTransactions) []uint32 {
	filled := make(map[uint32]*types.Transaction, len(reply.Transactions))
	for i, idx := range missing {
		if i < len(reply.Transactions) {
			filled[idx] = reply.Transactions[i]
		}
	}
	var stillMissing []uint32
	for _, idx := range missing {
		if tx, ok := filled[idx]; ok {
			txs[idx] = tx
		} else {
			stillMissing = append(stillMissing, idx)
		}
	}
	return stillMissing
}
