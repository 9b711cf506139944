package consensus

import "github.com/nervosnetwork/ckb-sub009/types"

// NewGenesisBlock builds block zero: no transactions, a zeroed parent
// hash, and epoch {0, 0, epochLength}. Genesis is exempt from the chain
// engine's normal block verification (it has no parent to resolve inputs
// or compare difficulty against), so it carries no cellbase and no
// proposals; the network's initial issuance is a deployment-time decision
// this package leaves to whoever configures Params.GenesisBlock for a real
// network, not something a reference genesis needs to model.
func NewGenesisBlock(epochLength uint64) *types.Block {
	return &types.Block{
		Header: types.Header{
			Number:        0,
			Epoch:         types.NewEpoch(0, 0, uint16(epochLength)),
			CompactTarget: 0x00ffffff,
			TimestampMs:   0,
		},
	}
}
