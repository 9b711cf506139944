package chain

import (
	"github.com/nervosnetwork/ckb-sub009/cellindex"
	"github.com/nervosnetwork/ckb-sub009/mmr"
	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// attachCells marks every output of every transaction in block live and
// consumes every input, per spec.md §4.3. Transactions are processed in
// block order so a later transaction may spend an earlier one's output
// within the same block (both have already been committed by the time
// attachCells runs). db is the caller's open store transaction: every
// write goes through it, and the cell index reads current metas from it.
func (c *Chain) attachCells(db store.Transaction, block *types.Block) error {
	blockHash := block.Header.Hash(c.hasher)
	for i, tx := range block.Transactions {
		txHash := tx.Hash(c.hasher)
		isCellbase := i == 0
		if err := cellindex.AttachTransaction(db, txHash, block.Header.Number, uint64(block.Header.Epoch), isCellbase, len(tx.Outputs)); err != nil {
			return err
		}
		if err := c.putTxInfo(db, txHash, txInfo{BlockHash: blockHash, BlockNumber: block.Header.Number, Epoch: block.Header.Epoch, IsCellbase: isCellbase}); err != nil {
			return err
		}
	}
	for _, tx := range block.Transactions {
		for _, in := range tx.Inputs {
			if in.PreviousOutput.IsNull() {
				continue // cellbase's synthetic input
			}
			if err := cellindex.MarkConsumed(db, in.PreviousOutput); err != nil {
				return err
			}
		}
	}
	return nil
}

// detachCells reverses attachCells when a block is rolled back during a
// reorg: inputs become live again and the block's own transactions are
// removed from the index entirely. db must be the same handle rebuildMeta's
// lookups run against, so a rollback never mixes reads from one snapshot
// with writes to another.
func (c *Chain) detachCells(db store.Transaction, block *types.Block) error {
	for _, tx := range block.Transactions {
		for _, in := range tx.Inputs {
			if in.PreviousOutput.IsNull() {
				continue
			}
			err := cellindex.UnmarkConsumed(db, in.PreviousOutput, func() (*types.TransactionMeta, error) {
				return c.rebuildMeta(db, in.PreviousOutput.TxHash)
			})
			if err != nil {
				return err
			}
		}
	}
	for _, tx := range block.Transactions {
		txHash := tx.Hash(c.hasher)
		if err := cellindex.DetachTransaction(db, txHash); err != nil {
			return err
		}
		if err := c.deleteTxInfo(db, txHash); err != nil {
			return err
		}
	}
	return nil
}

// rebuildMeta reconstructs a TransactionMeta for a transaction whose meta
// entry was pruned after every output had been spent, needed when
// UnmarkConsumed's target was fully dead. The owning transaction is looked
// up via the transaction_info index so the rebuilt meta has the right
// output count and epoch/cellbase flags; every output starts dead, and
// the caller's UnmarkConsumed call then marks the one index being
// restored live.
func (c *Chain) rebuildMeta(db store.Reader, txHash types.Hash32) (*types.TransactionMeta, error) {
	tx, info, err := c.findTransaction(db, txHash)
	if err != nil {
		return nil, err
	}
	meta := types.NewTransactionMeta(info.BlockNumber, uint64(info.Epoch), info.IsCellbase, len(tx.Outputs))
	for i := range tx.Outputs {
		meta.MarkDead(i)
	}
	return meta, nil
}

// commonAncestor walks both chains back to the block where they diverge,
// returning the paths to detach (old tip side, tip-first) and attach (new
// tip side, ancestor-first). It reads only c.db's committed state, never
// the caller's open transaction: planning a reorg needs no writes, only
// the current committed state.
func (c *Chain) commonAncestor(oldTipHash types.Hash32, newTip *types.Block, newTipHash types.Hash32) (detach []types.Hash32, attach []*types.Block, err error) {
	oldPath := []types.Hash32{oldTipHash}
	oldCursor := oldTipHash
	for {
		h, err := c.getHeader(c.db, oldCursor)
		if err != nil {
			return nil, nil, err
		}
		if h.IsGenesis() {
			break
		}
		oldCursor = h.ParentHash
		oldPath = append(oldPath, oldCursor)
	}
	oldIndex := make(map[types.Hash32]int, len(oldPath))
	for i, h := range oldPath {
		oldIndex[h] = i
	}

	// Walk the new tip's ancestry back until a block also present on the
	// old path is reached. That shared block is the common ancestor and
	// is NOT included in either returned list: it's already attached
	// (detach excludes it by construction below; attach must not
	// re-attach it either, since a no-op reorg would otherwise re-run
	// attachCells against an already-live block).
	var newPath []*types.Block
	cursor := newTip
	cursorHash := newTipHash
	for {
		if idx, ok := oldIndex[cursorHash]; ok {
			detach = oldPath[:idx]
			break
		}
		newPath = append(newPath, cursor)
		parentBlock, err := c.getBlock(c.db, cursor.Header.ParentHash)
		if err != nil {
			return nil, nil, err
		}
		cursor = parentBlock
		cursorHash = cursor.Header.Hash(c.hasher)
	}

	attach = make([]*types.Block, len(newPath))
	for i, b := range newPath {
		attach[len(newPath)-1-i] = b
	}
	return detach, attach, nil
}

// switchForkIn moves the main chain tip from the current tip to newHash,
// detaching every block back to the common ancestor (detach) and
// re-attaching the new side (attach), per spec.md §4.7's reorg handling.
// Every store write this performs — cell index attach/detach, tx-info, the
// MMR append and the tip pointer itself — goes through tx, the single
// store.Transaction the caller (ProcessBlock) opened to cover both this
// reorg and the candidate block's own persistence, so a crash mid-reorg
// can never leave the store half-detached with the old tip's pointer still
// in place. Pool notification (returning detached transactions to pending,
// removing committed ones, proposal table updates) and the in-memory tip
// fields are the caller's responsibility once tx has committed. Reads
// fall back to tx too, so a detach's rebuildMeta sees the same in-flight
// view its own writes are building.
func (c *Chain) switchForkIn(tx store.Transaction, txMMR *mmr.MMR, detach []types.Hash32, attach []*types.Block, newHash types.Hash32, newExt *types.BlockExt) error {
	for _, hash := range detach {
		block, err := c.getBlock(tx, hash)
		if err != nil {
			return err
		}
		if err := c.detachCells(tx, block); err != nil {
			return err
		}
	}

	for _, block := range attach {
		if err := c.attachCells(tx, block); err != nil {
			return err
		}

		hash := block.Header.Hash(c.hasher)
		ext, err := c.getBlockExt(tx, hash)
		if err != nil {
			return err
		}
		if _, err := txMMR.Append(hash, ext.TotalDifficulty); err != nil {
			return err
		}
	}

	return c.setTipStore(tx, newHash)
}
