package txpool

import (
	"crypto/sha256"
	"testing"

	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/store/ttlstore"
	"github.com/nervosnetwork/ckb-sub009/types"
	"github.com/nervosnetwork/ckb-sub009/verifier"
)

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) types.Hash32 { return sha256.Sum256(data) }

type fakeChain struct {
	cells map[types.OutPoint]types.CellOutput
}

func (f *fakeChain) ResolveInput(op types.OutPoint) (types.CellOutput, []byte, verifier.ResolvedAt, bool, error) {
	c, ok := f.cells[op]
	if !ok {
		return types.CellOutput{}, nil, verifier.ResolvedAt{}, false, errNotFoundFake{}
	}
	return c, nil, verifier.ResolvedAt{}, true, nil
}
func (f *fakeChain) ResolveCellDep(op types.OutPoint) (types.CellOutput, []byte, error) {
	c, ok := f.cells[op]
	if !ok {
		return types.CellOutput{}, nil, errNotFoundFake{}
	}
	return c, nil, nil
}
func (f *fakeChain) ResolveHeaderDep(types.Hash32) (types.Header, error) { return types.Header{}, errNotFoundFake{} }
func (f *fakeChain) MedianTimePast(types.Number) uint64                 { return 0 }
func (f *fakeChain) TipNumber() types.Number                            { return 100 }
func (f *fakeChain) TipEpoch() types.Epoch                              { return types.NewEpoch(1, 0, 1000) }

type errNotFoundFake struct{}

func (errNotFoundFake) Error() string { return "not found" }

func openTestPool(t *testing.T, cells map[types.OutPoint]types.CellOutput) (*Pool, string) {
	dir := t.TempDir()
	db, err := ttlstore.Open(dir+"/reject.db", 0)
	if err != nil {
		t.Fatalf("open ttl store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	chain := &fakeChain{cells: cells}
	now := uint64(0)
	return New(consensus.DefaultDevParams(), chain, sha256Hasher{}, db, func() uint64 { return now }), dir
}

func simpleTx(prevHash types.Hash32, prevIndex uint32, outCapacity types.Capacity, salt byte) *types.Transaction {
	return &types.Transaction{
		Inputs: []types.CellInput{{PreviousOutput: types.OutPoint{TxHash: prevHash, Index: prevIndex}}},
		Outputs: []types.CellOutput{
			{Capacity: outCapacity, Lock: &types.Script{Args: []byte{salt}}},
		},
		OutputsData: [][]byte{nil},
	}
}

func TestAcceptBasicTransaction(t *testing.T) {
	var prevHash types.Hash32
	prevHash[0] = 1
	prevOut := types.OutPoint{TxHash: prevHash, Index: 0}
	cells := map[types.OutPoint]types.CellOutput{
		prevOut: {Capacity: 1000 * types.ShannonsPerCKB},
	}
	pool, _ := openTestPool(t, cells)

	tx := simpleTx(prevHash, 0, 900*types.ShannonsPerCKB, 1)
	entry, err := pool.Accept(tx, 0)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if entry.Fee != 100*types.ShannonsPerCKB {
		t.Fatalf("expected fee 100 CKB, got %d", entry.Fee)
	}
	pending, gap, proposed := pool.Count()
	if pending != 1 || gap != 0 || proposed != 0 {
		t.Fatalf("expected 1 pending entry, got pending=%d gap=%d proposed=%d", pending, gap, proposed)
	}
}

func TestOrphanResolution(t *testing.T) {
	var grandparentHash types.Hash32
	grandparentHash[0] = 2
	grandparentOut := types.OutPoint{TxHash: grandparentHash, Index: 0}
	cells := map[types.OutPoint]types.CellOutput{
		grandparentOut: {Capacity: 1000 * types.ShannonsPerCKB},
	}
	pool, _ := openTestPool(t, cells)

	parent := simpleTx(grandparentHash, 0, 900*types.ShannonsPerCKB, 2)
	parentID := parent.Hash(sha256Hasher{})

	// Child spends parent's not-yet-admitted output: must orphan.
	child := simpleTx(parentID, 0, 800*types.ShannonsPerCKB, 3)
	if _, err := pool.Accept(child, 0); err != ErrOrphan {
		t.Fatalf("expected child to orphan, got %v", err)
	}
	if pool.orphans.len() != 1 {
		t.Fatalf("expected 1 orphan, got %d", pool.orphans.len())
	}

	if _, err := pool.Accept(parent, 0); err != nil {
		t.Fatalf("Accept parent: %v", err)
	}

	if pool.orphans.len() != 0 {
		t.Fatalf("expected orphan to be promoted, still have %d", pool.orphans.len())
	}
	if _, ok := pool.Get(child.Hash(sha256Hasher{})); !ok {
		t.Fatalf("expected child to be admitted after parent landed")
	}
}

func TestRBFReplacesConflictingTransaction(t *testing.T) {
	var prevHash types.Hash32
	prevHash[0] = 3
	prevOut := types.OutPoint{TxHash: prevHash, Index: 0}
	cells := map[types.OutPoint]types.CellOutput{
		prevOut: {Capacity: 10000 * types.ShannonsPerCKB},
	}
	pool, _ := openTestPool(t, cells)

	// tx1 pays a 1 CKB fee; tx2 spends the same input with a 100 CKB fee,
	// beating tx1 on both fee rate and absolute fee, so it replaces tx1.
	tx1 := simpleTx(prevHash, 0, 9999*types.ShannonsPerCKB, 1)
	if _, err := pool.Accept(tx1, 0); err != nil {
		t.Fatalf("accept tx1: %v", err)
	}

	tx2 := simpleTx(prevHash, 0, 9900*types.ShannonsPerCKB, 2)
	_, err := pool.Accept(tx2, 0)
	if err != nil {
		t.Fatalf("accept tx2 (RBF): %v", err)
	}
	if _, ok := pool.Get(tx1.Hash(sha256Hasher{})); ok {
		t.Fatalf("expected tx1 to be evicted by RBF")
	}
	if _, ok := pool.Get(tx2.Hash(sha256Hasher{})); !ok {
		t.Fatalf("expected tx2 to be admitted")
	}
}
