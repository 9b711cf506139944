package chain

import "github.com/nervosnetwork/ckb-sub009/types"

// orphanBlockPool holds blocks whose parent hasn't been seen yet, keyed by
// parent hash per spec.md §8's "cyclic graph" note: a ParentHash ->
// {BlockHash -> Block} map with no back-pointers embedded in the block
// values themselves, so removal is purely by key and a block can be
// dropped without walking every entry that might reference it.
type orphanBlockPool struct {
	byParent map[types.Hash32]map[types.Hash32]*types.Block
}

func newOrphanBlockPool() *orphanBlockPool {
	return &orphanBlockPool{byParent: make(map[types.Hash32]map[types.Hash32]*types.Block)}
}

func (o *orphanBlockPool) add(parentHash, blockHash types.Hash32, block *types.Block) {
	if _, ok := o.byParent[parentHash]; !ok {
		o.byParent[parentHash] = make(map[types.Hash32]*types.Block)
	}
	o.byParent[parentHash][blockHash] = block
}

// removeChildrenOf pops and returns every block waiting on parentHash.
func (o *orphanBlockPool) removeChildrenOf(parentHash types.Hash32) []*types.Block {
	children, ok := o.byParent[parentHash]
	if !ok {
		return nil
	}
	out := make([]*types.Block, 0, len(children))
	for _, b := range children {
		out = append(out, b)
	}
	delete(o.byParent, parentHash)
	return out
}

func (o *orphanBlockPool) count() int {
	total := 0
	for _, children := range o.byParent {
		total += len(children)
	}
	return total
}
