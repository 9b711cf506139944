// Package txpool implements the multi-stage mempool spec.md §4.6
// describes: pending/gap/proposed sub-pools with ancestor/descendant
// bookkeeping, fee-rate admission, RBF, an orphan pool and a TTL'd reject
// cache.
//
// The teacher's own mempool package ships only mempool_test.go in this
// pack; production code here is written fresh in the shape that test file
// implies (a single-owner pool serialized behind one caller, orphan
// promotion probed on every new admission, double-spend and eviction
// tests), generalized from Bitcoin-style single-stage pools to CKB's
// pending/gap/proposed staging.
package txpool

import (
	"github.com/nervosnetwork/ckb-sub009/types"
)

// Stage names which sub-pool an Entry currently lives in.
type Stage uint8

const (
	StagePending Stage = iota
	StageGap
	StageProposed
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageGap:
		return "gap"
	case StageProposed:
		return "proposed"
	default:
		return "unknown"
	}
}

// Entry is the pool's per-transaction bookkeeping record, per spec.md
// §4.6's field list.
type Entry struct {
	Tx     *types.Transaction
	ID     types.Hash32
	Stage  Stage
	Cycles types.Cycle
	Fee    types.Capacity
	Size   uint64

	AncestorsCount int
	AncestorsSize  uint64
	AncestorsFee   types.Capacity

	DescendantsCount int
	DescendantsSize  uint64
	DescendantsFee   types.Capacity

	TimestampMs uint64
}

// FeeRate returns the entry's own fee rate in Shannons per byte, used for
// admission and eviction ordering. Ancestor fee rate (used by RBF and
// block-template selection) is AncestorsFee/AncestorsSize instead.
func (e *Entry) FeeRate() float64 {
	if e.Size == 0 {
		return 0
	}
	return float64(e.Fee) / float64(e.Size)
}

// estimateSize approximates a transaction's serialized size in bytes for
// fee-rate purposes: a full byte-accurate molecule-style serializer is out
// of scope, so this sums the sizes of the fields that dominate a real
// transaction's footprint (inputs, outputs, witnesses), which is what
// spec.md's fee-rate admission rule actually needs to be meaningful.
func estimateSize(tx *types.Transaction) uint64 {
	size := uint64(4) // version
	size += uint64(len(tx.CellDeps)) * 37
	size += uint64(len(tx.HeaderDeps)) * 32
	size += uint64(len(tx.Inputs)) * 44
	for i, out := range tx.Outputs {
		size += 8
		if out.Lock != nil {
			size += uint64(types.HashSize+1) + uint64(len(out.Lock.Args))
		}
		if out.Type != nil {
			size += uint64(types.HashSize+1) + uint64(len(out.Type.Args))
		}
		if i < len(tx.OutputsData) {
			size += uint64(len(tx.OutputsData[i]))
		}
	}
	for _, w := range tx.Witnesses {
		size += uint64(len(w))
	}
	return size
}
