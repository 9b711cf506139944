// Package cellindex maintains the per-transaction "live outputs" bitmap
// (types.TransactionMeta) that the chain engine derives from applied
// blocks, per spec.md §4.3.
//
// Grounded on blockdag/utxoset.go's attach/detach bookkeeping, generalized
// from "one entry per live output" to "one TransactionMeta per
// transaction, tracking which of its outputs are still live".
package cellindex

import (
	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// ErrUnknownTransaction is returned when an input references a transaction
// with no meta entry (neither live in the main chain nor present in the
// same block, i.e. OutPoint::Unknown per spec.md §7).
var ErrUnknownTransaction = errors.New("cellindex: unknown transaction")

// ErrCellDead is returned when an input references an output that has
// already been spent (OutPoint::Dead per spec.md §7).
var ErrCellDead = errors.New("cellindex: cell is dead")

func metaKey(txHash types.Hash32) []byte { return txHash[:] }

// GetMeta fetches the TransactionMeta for txHash, or nil if none exists
// (either never attached, or fully spent and pruned).
func GetMeta(r store.Reader, txHash types.Hash32) (*types.TransactionMeta, error) {
	v, err := r.Get(store.ColumnCells, metaKey(txHash))
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return types.DeserializeTransactionMeta(v)
}

// AttachTransaction inserts a fresh TransactionMeta for a newly committed
// transaction with every output live.
func AttachTransaction(w store.Writer, txHash types.Hash32, blockNumber types.Number, epochNumber uint64, isCellbase bool, outputCount int) error {
	meta := types.NewTransactionMeta(blockNumber, epochNumber, isCellbase, outputCount)
	return w.Put(store.ColumnCells, metaKey(txHash), meta.Serialize())
}

// MarkConsumed marks outPoint's output dead, deleting the owning
// transaction's meta entry once every output has been consumed. Returns
// ErrUnknownTransaction if outPoint's transaction has no meta entry, and
// ErrCellDead if the output is already dead.
func MarkConsumed(rw interface {
	store.Reader
	store.Writer
}, outPoint types.OutPoint) error {
	meta, err := GetMeta(rw, outPoint.TxHash)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrUnknownTransaction
	}
	if !meta.IsLive(int(outPoint.Index)) {
		return ErrCellDead
	}
	meta.MarkDead(int(outPoint.Index))
	if meta.IsFullyDead() {
		return rw.Delete(store.ColumnCells, metaKey(outPoint.TxHash))
	}
	return rw.Put(store.ColumnCells, metaKey(outPoint.TxHash), meta.Serialize())
}

// UnmarkConsumed reverses MarkConsumed during a detach: it marks outPoint
// live again, reconstructing the meta entry from scratch (via rebuild) if
// the transaction had been fully spent and its meta pruned.
func UnmarkConsumed(rw interface {
	store.Reader
	store.Writer
}, outPoint types.OutPoint, rebuild func() (*types.TransactionMeta, error)) error {
	meta, err := GetMeta(rw, outPoint.TxHash)
	if err != nil {
		return err
	}
	if meta == nil {
		meta, err = rebuild()
		if err != nil {
			return err
		}
	}
	meta.MarkLive(int(outPoint.Index))
	return rw.Put(store.ColumnCells, metaKey(outPoint.TxHash), meta.Serialize())
}

// DetachTransaction removes a transaction's meta entry entirely, used when
// detaching a block that introduced it (the transaction no longer exists
// in the main chain at all, as opposed to having some outputs spent).
func DetachTransaction(w store.Writer, txHash types.Hash32) error {
	return w.Delete(store.ColumnCells, metaKey(txHash))
}

// IsLive reports whether outPoint names a cell that is both known and
// unspent in the main chain, satisfying invariant #9 of spec.md §8.
func IsLive(r store.Reader, outPoint types.OutPoint) (bool, error) {
	meta, err := GetMeta(r, outPoint.TxHash)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}
	return meta.IsLive(int(outPoint.Index)), nil
}
