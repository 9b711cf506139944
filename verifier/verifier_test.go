package verifier

import (
	"crypto/sha256"
	"testing"

	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/types"
)

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) types.Hash32 { return sha256.Sum256(data) }

type fakeCell struct {
	output     types.CellOutput
	data       []byte
	createdAt  ResolvedAt
	live       bool
}

type fakeSource struct {
	cells map[types.OutPoint]fakeCell
	mtp   uint64
}

func (f *fakeSource) ResolveInput(op types.OutPoint) (types.CellOutput, []byte, ResolvedAt, bool, error) {
	c, ok := f.cells[op]
	if !ok {
		return types.CellOutput{}, nil, ResolvedAt{}, false, errNotFound
	}
	return c.output, c.data, c.createdAt, c.live, nil
}

func (f *fakeSource) ResolveCellDep(op types.OutPoint) (types.CellOutput, []byte, error) {
	c, ok := f.cells[op]
	if !ok {
		return types.CellOutput{}, nil, errNotFound
	}
	return c.output, c.data, nil
}

func (f *fakeSource) ResolveHeaderDep(h types.Hash32) (types.Header, error) {
	return types.Header{}, errNotFound
}

func (f *fakeSource) MedianTimePast(types.Number) uint64 { return f.mtp }

var errNotFound = errNotFoundErr{}

type errNotFoundErr struct{}

func (errNotFoundErr) Error() string { return "not found" }

func alwaysPassCode() []byte {
	// addi a0, zero, 0 ; addi a7, zero, 93 ; ecall
	le := func(v uint32) []byte {
		return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	}
	addi := func(rd, rs1 int, imm int32) uint32 {
		return uint32(imm)<<20 | uint32(rs1)<<15 | uint32(rd)<<7 | 0x13
	}
	var code []byte
	code = append(code, le(addi(10, 0, 0))...)
	code = append(code, le(addi(17, 0, 93))...)
	code = append(code, le(0x73)...)
	return code
}

func TestNonContextualRejectsUnderfundedOutput(t *testing.T) {
	tx := &types.Transaction{
		Inputs: []types.CellInput{{PreviousOutput: types.OutPoint{Index: 0}}},
		Outputs: []types.CellOutput{
			{Capacity: 0, Lock: &types.Script{}},
		},
		OutputsData: [][]byte{nil},
	}
	if err := NonContextual(tx); err == nil {
		t.Fatalf("expected underfunded output to be rejected")
	}
}

func TestContextualBalancesCapacityAndRunsScripts(t *testing.T) {
	hasher := sha256Hasher{}
	code := alwaysPassCode()
	var codeHash types.Hash32 = hasher.Hash(code)

	lockScript := &types.Script{CodeHash: codeHash, HashType: types.HashTypeData}

	var prevTxHash types.Hash32
	prevTxHash[0] = 1
	inputOutPoint := types.OutPoint{TxHash: prevTxHash, Index: 0}

	var codeTxHash types.Hash32
	codeTxHash[0] = 2
	codeOutPoint := types.OutPoint{TxHash: codeTxHash, Index: 0}

	src := &fakeSource{cells: map[types.OutPoint]fakeCell{
		inputOutPoint: {
			output: types.CellOutput{Capacity: 1000 * types.ShannonsPerCKB, Lock: lockScript},
			live:   true,
		},
		codeOutPoint: {
			output: types.CellOutput{Capacity: types.Capacity(len(code)) * types.ShannonsPerCKB},
			data:   code,
			live:   true,
		},
	}}

	tx := &types.Transaction{
		CellDeps: []types.CellDep{{OutPoint: codeOutPoint}},
		Inputs:   []types.CellInput{{PreviousOutput: inputOutPoint}},
		Outputs: []types.CellOutput{
			{Capacity: 900 * types.ShannonsPerCKB, Lock: lockScript},
		},
		OutputsData: [][]byte{nil},
	}

	cp := ContextParams{
		TipNumber: 100,
		TipEpoch:  types.NewEpoch(1, 0, 1000),
		Params:    consensus.DefaultDevParams(),
	}

	cycles, fee, err := Contextual(tx, src, cp, hasher)
	if err != nil {
		t.Fatalf("Contextual: %v", err)
	}
	if fee != 100*types.ShannonsPerCKB {
		t.Fatalf("expected fee of 100 CKB, got %d", fee)
	}
	if cycles == 0 {
		t.Fatalf("expected non-zero cycles from lock script execution")
	}
}

func TestContextualRejectsUnbalancedCapacity(t *testing.T) {
	hasher := sha256Hasher{}
	var prevTxHash types.Hash32
	prevTxHash[0] = 3
	inputOutPoint := types.OutPoint{TxHash: prevTxHash, Index: 0}

	src := &fakeSource{cells: map[types.OutPoint]fakeCell{
		inputOutPoint: {
			output: types.CellOutput{Capacity: 100 * types.ShannonsPerCKB},
			live:   true,
		},
	}}

	tx := &types.Transaction{
		Inputs:      []types.CellInput{{PreviousOutput: inputOutPoint}},
		Outputs:     []types.CellOutput{{Capacity: 200 * types.ShannonsPerCKB}},
		OutputsData: [][]byte{nil},
	}

	cp := ContextParams{Params: consensus.DefaultDevParams()}
	_, _, err := Contextual(tx, src, cp, hasher)
	if err != ErrCapacityNotBalanced {
		t.Fatalf("expected ErrCapacityNotBalanced, got %v", err)
	}
}
