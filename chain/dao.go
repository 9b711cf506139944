package chain

import (
	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// isDaoDeposit reports whether out is a DAO deposit cell: one whose type
// script is the network's distinguished deposit/withdraw contract.
func isDaoDeposit(out types.CellOutput) bool {
	return out.Type != nil && out.Type.CodeHash == consensus.DaoTypeHash
}

// computeDao recomputes a block's dao field from parentDao plus this
// block's own issuance and cell-capacity deltas, per spec.md §4.7's "an
// aggregated statistic over dead/live/withdraw cells, recomputed and
// matched against the block's dao field": C accumulates primary and
// secondary issuance, AR accumulates the secondary-issuance rate consumed
// by DAO withdraw interest, S tracks total occupied capacity of live
// cells, and U tracks capacity specifically locked in DAO deposit cells.
//
// resolveInput resolves a spent input back to the CellOutput/data it
// created, the same resolution verifier.CellSource already performs;
// computeDao does its own pass over the block rather than threading dao
// bookkeeping through package verifier, keeping fee accounting and dao
// accounting independent of one another.
func computeDao(params *consensus.Params, parentDao types.DaoField, epochLength uint64, block *types.Block, resolveInput func(types.OutPoint) (types.CellOutput, []byte, error)) (types.DaoField, error) {
	dao := parentDao

	primary := params.CellbaseReward(epochLength)
	secondary := params.SecondaryBlockReward(epochLength)
	c, err := dao.C.SafeAdd(primary)
	if err != nil {
		return types.DaoField{}, err
	}
	c, err = c.SafeAdd(secondary)
	if err != nil {
		return types.DaoField{}, err
	}
	dao.C = c
	dao.AR += uint64(secondary)

	for _, tx := range block.Transactions {
		for i, out := range tx.Outputs {
			var data []byte
			if i < len(tx.OutputsData) {
				data = tx.OutputsData[i]
			}
			occupied := out.OccupiedCapacity(data)
			if dao.S, err = dao.S.SafeAdd(occupied); err != nil {
				return types.DaoField{}, err
			}
			if isDaoDeposit(out) {
				if dao.U, err = dao.U.SafeAdd(out.Capacity); err != nil {
					return types.DaoField{}, err
				}
			}
		}
		for _, in := range tx.Inputs {
			if in.PreviousOutput.IsNull() {
				continue
			}
			out, data, err := resolveInput(in.PreviousOutput)
			if err != nil {
				return types.DaoField{}, err
			}
			occupied := out.OccupiedCapacity(data)
			if dao.S, err = dao.S.SafeSub(occupied); err != nil {
				return types.DaoField{}, err
			}
			if isDaoDeposit(out) {
				if dao.U, err = dao.U.SafeSub(out.Capacity); err != nil {
					return types.DaoField{}, err
				}
			}
		}
	}
	return dao, nil
}
