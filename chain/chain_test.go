package chain

import (
	"crypto/sha256"
	"testing"

	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/mmr"
	"github.com/nervosnetwork/ckb-sub009/pow"
	"github.com/nervosnetwork/ckb-sub009/store/memstore"
	"github.com/nervosnetwork/ckb-sub009/types"
)

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) types.Hash32 { return sha256.Sum256(data) }

// testNowMs is a fixed, far-future wall clock so MAX_FUTURE_BLOCK_TIME
// never rejects test fixtures, whose timestamps all start from genesis's 0.
func testNowMs() uint64 { return 1 << 40 }

type noopPoolUpdater struct {
	removed  [][]types.Hash32
	returned [][]*types.Transaction
}

func (p *noopPoolUpdater) RemoveCommitted(ids []types.Hash32) {
	p.removed = append(p.removed, ids)
}
func (p *noopPoolUpdater) ReturnToPending(txs []*types.Transaction) {
	p.returned = append(p.returned, txs)
}
func (p *noopPoolUpdater) RecordProposals(types.Number, []types.ProposalShortId) {}
func (p *noopPoolUpdater) RemoveProposals(types.Number)                         {}
func (p *noopPoolUpdater) UpdateProposalWindow(types.Number)                     {}

func newTestChain(t *testing.T) (*Chain, *consensus.Params) {
	t.Helper()
	params := consensus.DefaultDevParams()
	db := memstore.New()
	c, err := New(db, params, sha256Hasher{}, mmr.NewKVStore(db), &noopPoolUpdater{}, pow.Dummy{}, testNowMs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, params
}

func cellbaseTx(params *consensus.Params, epochLength uint64, salt byte) *types.Transaction {
	return &types.Transaction{
		Inputs:      []types.CellInput{{PreviousOutput: types.NullOutPoint}},
		Outputs:     []types.CellOutput{{Capacity: params.CellbaseReward(epochLength), Lock: &types.Script{Args: []byte{salt}}}},
		OutputsData: [][]byte{nil},
	}
}

// childBlock builds a block extending parent within the same epoch (test
// fixtures never cross an epoch boundary), its cellbase paying exactly the
// epoch's per-block primary reward and its dao field recomputed from
// parent's, so it satisfies verifyBlock's reward and dao checks as-is.
func childBlock(params *consensus.Params, hasher types.Hasher, parent *types.Header, number types.Number, salt byte) *types.Block {
	epochLength := uint64(parent.Epoch.Length())
	cellbase := cellbaseTx(params, epochLength, salt)
	block := &types.Block{
		Transactions: []*types.Transaction{cellbase},
	}
	dao, err := computeDao(params, parent.Dao, epochLength, block, nil)
	if err != nil {
		panic(err)
	}
	block.Header = types.Header{
		Number:        number,
		Epoch:         parent.Epoch,
		ParentHash:    parent.Hash(hasher),
		CompactTarget: parent.CompactTarget,
		TimestampMs:   parent.TimestampMs + 10_000,
		Dao:           dao,
	}
	return block
}

func TestProcessBlockExtendsTip(t *testing.T) {
	c, params := newTestChain(t)
	genesisHash := params.GenesisBlock.Header.Hash(sha256Hasher{})
	if c.tipHash != genesisHash {
		t.Fatalf("expected tip to be genesis after New")
	}

	block1 := childBlock(params, sha256Hasher{}, &params.GenesisBlock.Header, 1, 1)
	orphan, err := c.ProcessBlock(block1)
	if err != nil {
		t.Fatalf("ProcessBlock(block1): %v", err)
	}
	if orphan {
		t.Fatalf("block1 should not be an orphan")
	}
	if c.TipNumber() != 1 {
		t.Fatalf("expected tip number 1, got %d", c.TipNumber())
	}
}

func TestProcessBlockOrphansUnknownParent(t *testing.T) {
	c, _ := newTestChain(t)
	var unknownParent types.Hash32
	unknownParent[0] = 0xff
	block := &types.Block{
		Header: types.Header{
			Number:        5,
			ParentHash:    unknownParent,
			CompactTarget: 0x00ffffff,
		},
	}
	orphan, err := c.ProcessBlock(block)
	if err != ErrOrphanBlock || !orphan {
		t.Fatalf("expected orphan block, got orphan=%v err=%v", orphan, err)
	}
}

func TestProcessBlockResolvesOrphanChain(t *testing.T) {
	c, params := newTestChain(t)
	hasher := sha256Hasher{}

	block1 := childBlock(params, hasher, &params.GenesisBlock.Header, 1, 1)
	block2 := childBlock(params, hasher, &block1.Header, 2, 2)

	// Submit block2 before block1: it must orphan.
	orphan, err := c.ProcessBlock(block2)
	if err != ErrOrphanBlock || !orphan {
		t.Fatalf("expected block2 to orphan, got orphan=%v err=%v", orphan, err)
	}
	if c.orphans.count() != 1 {
		t.Fatalf("expected 1 orphan block, got %d", c.orphans.count())
	}

	if _, err := c.ProcessBlock(block1); err != nil {
		t.Fatalf("ProcessBlock(block1): %v", err)
	}
	if c.orphans.count() != 0 {
		t.Fatalf("expected orphan to be resolved, still have %d", c.orphans.count())
	}
	if c.TipNumber() != 2 {
		t.Fatalf("expected tip to advance through the resolved orphan to 2, got %d", c.TipNumber())
	}
}

func TestProcessBlockRejectsAlreadyKnown(t *testing.T) {
	c, params := newTestChain(t)
	block1 := childBlock(params, sha256Hasher{}, &params.GenesisBlock.Header, 1, 1)
	if _, err := c.ProcessBlock(block1); err != nil {
		t.Fatalf("ProcessBlock(block1): %v", err)
	}
	if _, err := c.ProcessBlock(block1); err != ErrBlockAlreadyKnown {
		t.Fatalf("expected ErrBlockAlreadyKnown, got %v", err)
	}
}
