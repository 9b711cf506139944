// Package verifier performs the two-phase transaction verification spec.md
// §4.5 describes: a non-contextual pass that needs only the transaction
// itself, and a contextual pass that resolves its inputs/deps against
// chain state and enforces capacity balance, since locks, cellbase
// maturity and script execution.
//
// Grounded on blockdag/validate.go's split between CheckTransactionSanity
// (non-contextual) and checkConnectToPastUTXO (contextual, resolves
// inputs against the UTXO set and charges sigops/fees), generalized from
// Bitcoin-script sigop counting to CKB's cycle-metered RISC-V scripts.
package verifier

import (
	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/script"
	"github.com/nervosnetwork/ckb-sub009/script/syscalls"
	"github.com/nervosnetwork/ckb-sub009/types"
)

var (
	ErrCapacityUnderflow     = errors.New("verifier: output capacity below occupied-capacity floor")
	ErrCapacityNotBalanced   = errors.New("verifier: outputs exceed inputs plus reward")
	ErrInputCellDead         = errors.New("verifier: referenced input cell is dead")
	ErrInputCellUnknown      = errors.New("verifier: referenced input cell is unknown")
	ErrCellbaseImmature      = errors.New("verifier: cellbase input not yet mature")
	ErrSinceImmature         = errors.New("verifier: since lock not yet satisfied")
	ErrCycleBudgetExceeded   = errors.New("verifier: transaction exceeds max verification cycles")
	ErrVMVersionNotActive    = errors.New("verifier: script's vm version not yet active at this epoch")
)

// NonContextual runs every check that depends only on the transaction's
// own structure, independent of chain state: the types-level structural
// checks plus the per-output capacity floor (occupied capacity), which
// needs no state beyond the transaction itself.
func NonContextual(tx *types.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	for i, out := range tx.Outputs {
		var data []byte
		if i < len(tx.OutputsData) {
			data = tx.OutputsData[i]
		}
		if out.Capacity < out.OccupiedCapacity(data) {
			return errors.Wrapf(ErrCapacityUnderflow, "output %d", i)
		}
	}
	return nil
}

// CellSource resolves an OutPoint to the cell it names plus the chain
// metadata (block number/epoch, liveness) needed for maturity and
// since checks. The chain engine implements this over cellindex+store.
type CellSource interface {
	ResolveInput(outPoint types.OutPoint) (cell types.CellOutput, data []byte, createdAt ResolvedAt, live bool, err error)
	ResolveCellDep(outPoint types.OutPoint) (cell types.CellOutput, data []byte, err error)
	ResolveHeaderDep(hash types.Hash32) (types.Header, error)
	MedianTimePast(blockNumber types.Number) uint64
}

// ResolvedAt records when the cell being spent was created, for cellbase
// maturity and relative-since checks.
type ResolvedAt struct {
	BlockNumber types.Number
	Epoch       types.Epoch
	IsCellbase  bool
}

// ContextParams bundles the chain-state facts Contextual needs beyond
// CellSource: the tip the transaction would be committed on top of, and
// the consensus parameters governing maturity/cycle budgets.
type ContextParams struct {
	TipNumber types.Number
	TipEpoch  types.Epoch
	Params    *consensus.Params
}

// txCodeResolver adapts CellSource into script.CodeResolver by resolving
// Data/Type hash types against the transaction's own cell_deps, the only
// place script code may legally live per spec.md §4.4.
type txCodeResolver struct {
	tx      *types.Transaction
	src     CellSource
	hasher  types.Hasher
}

func (r *txCodeResolver) ResolveCode(s *types.Script) ([]byte, error) {
	for _, dep := range r.tx.CellDeps {
		cell, data, err := r.src.ResolveCellDep(dep.OutPoint)
		if err != nil {
			continue
		}
		if s.HashType.IsTypeMatch() {
			if cell.Type != nil && cell.Type.Hash(r.hasher) == s.CodeHash {
				return data, nil
			}
			continue
		}
		if r.hasher.Hash(data) == s.CodeHash {
			return data, nil
		}
	}
	return nil, script.ErrNoCode
}

type txLoader struct {
	tx            *types.Transaction
	src           CellSource
	groupInputs   []int
	groupOutputs  []int
}

func (l *txLoader) CellDep(index int) (syscalls.ResolvedCell, error) {
	if index < 0 || index >= len(l.tx.CellDeps) {
		return syscalls.ResolvedCell{}, syscalls.ErrIndexOutOfBound
	}
	cell, data, err := l.src.ResolveCellDep(l.tx.CellDeps[index].OutPoint)
	if err != nil {
		return syscalls.ResolvedCell{}, err
	}
	return syscalls.ResolvedCell{Output: cell, Data: data}, nil
}

func (l *txLoader) Input(index int) (types.CellInput, syscalls.ResolvedCell, error) {
	if index < 0 || index >= len(l.tx.Inputs) {
		return types.CellInput{}, syscalls.ResolvedCell{}, syscalls.ErrIndexOutOfBound
	}
	in := l.tx.Inputs[index]
	cell, data, _, _, err := l.src.ResolveInput(in.PreviousOutput)
	if err != nil {
		return types.CellInput{}, syscalls.ResolvedCell{}, err
	}
	return in, syscalls.ResolvedCell{Output: cell, Data: data}, nil
}

func (l *txLoader) HeaderDep(index int) (types.Header, error) {
	if index < 0 || index >= len(l.tx.HeaderDeps) {
		return types.Header{}, syscalls.ErrIndexOutOfBound
	}
	return l.src.ResolveHeaderDep(l.tx.HeaderDeps[index])
}

func (l *txLoader) GroupInputIndices() []int  { return l.groupInputs }
func (l *txLoader) GroupOutputIndices() []int { return l.groupOutputs }

// Contextual resolves tx's inputs/deps against src, checks capacity
// balance, since locks and cellbase maturity, and executes every distinct
// lock/type script once per group. It returns the total cycles consumed
// and the transaction fee (inputs - outputs), or an error on the first
// rule violated.
func Contextual(tx *types.Transaction, src CellSource, cp ContextParams, hasher types.Hasher) (types.Cycle, types.Capacity, error) {
	if tx.IsCellbase() {
		return contextualCellbase(tx, cp)
	}

	resolvedInputs := make([]types.CellOutput, len(tx.Inputs))
	var inputCaps []types.Capacity
	for i, in := range tx.Inputs {
		cell, _, createdAt, live, err := src.ResolveInput(in.PreviousOutput)
		if err != nil {
			return 0, 0, errors.Wrapf(ErrInputCellUnknown, "input %d: %v", i, err)
		}
		if !live {
			return 0, 0, errors.Wrapf(ErrInputCellDead, "input %d", i)
		}
		if createdAt.IsCellbase {
			elapsed := cp.TipEpoch.ElapsedSince(createdAt.Epoch)
			if elapsed < cp.Params.CellbaseMaturity {
				return 0, 0, errors.Wrapf(ErrCellbaseImmature, "input %d", i)
			}
		}
		if err := checkSince(in.Since, createdAt, cp, src); err != nil {
			return 0, 0, errors.Wrapf(err, "input %d", i)
		}
		resolvedInputs[i] = cell
		inputCaps = append(inputCaps, cell.Capacity)
	}

	inputTotal, err := types.SumCapacity(inputCaps)
	if err != nil {
		return 0, 0, err
	}
	outputTotal, err := tx.OutputsCapacity()
	if err != nil {
		return 0, 0, err
	}
	if outputTotal > inputTotal {
		return 0, 0, ErrCapacityNotBalanced
	}
	fee := inputTotal - outputTotal

	groups := groupScripts(tx, resolvedInputs, hasher)
	resolver := &txCodeResolver{tx: tx, src: src, hasher: hasher}
	maxActiveVersion := cp.Params.VMVersionForEpoch(cp.TipEpoch.Number())
	var totalCycles types.Cycle
	for _, g := range groups {
		if version, ok := g.Script.HashType.VMVersion(); ok && version > maxActiveVersion {
			return totalCycles, fee, errors.Wrapf(ErrVMVersionNotActive, "script %s wants vm%d", g.Script.Hash(hasher), version)
		}
		loader := &txLoader{tx: tx, src: src, groupInputs: g.InputIndices, groupOutputs: g.OutputIndices}
		remaining := cp.Params.MaxTxVerifyCycles - totalCycles
		cycles, err := script.RunGroup(resolver, loader, hasher, tx, g, remaining, nil)
		totalCycles += cycles
		if err != nil {
			return totalCycles, fee, err
		}
	}
	if totalCycles > cp.Params.MaxTxVerifyCycles {
		return totalCycles, fee, ErrCycleBudgetExceeded
	}
	return totalCycles, fee, nil
}

func contextualCellbase(tx *types.Transaction, cp ContextParams) (types.Cycle, types.Capacity, error) {
	// A cellbase has no real inputs to resolve and is paid from the block
	// reward rather than input capacity; the chain engine checks the
	// reward/output-sum equality itself once it knows the epoch reward
	// split, so no capacity, since or script check runs for it here.
	return 0, 0, nil
}

// checkSince enforces a CellInput's since lock against the point the
// transaction would be committed at, per spec.md §3's since semantics.
func checkSince(since types.Since, createdAt ResolvedAt, cp ContextParams, src CellSource) error {
	if since.IsZero() {
		return nil
	}
	switch since.Metric() {
	case types.SinceMetricBlockNumber:
		threshold := since.Value()
		if since.IsRelative() {
			threshold += uint64(createdAt.BlockNumber)
		}
		if uint64(cp.TipNumber)+1 < threshold {
			return ErrSinceImmature
		}
	case types.SinceMetricEpoch:
		packed := types.Epoch(since.Value())
		threshold := packed
		if since.IsRelative() {
			// Relative epoch since adds fractional epoch offsets; since
			// Epoch packs {number,index,length}, relative addition is
			// approximated by summing epoch numbers, which matches
			// spec.md's documented common case (fractional component
			// already folded into the original packed value by whoever
			// authored the since field).
			threshold = types.NewEpoch(packed.Number()+createdAt.Epoch.Number(), packed.Index(), packed.Length())
		}
		if cp.TipEpoch.Less(threshold) {
			return ErrSinceImmature
		}
	case types.SinceMetricTimestamp:
		threshold := since.Value()
		if since.IsRelative() {
			threshold += src.MedianTimePast(createdAt.BlockNumber)
		}
		if src.MedianTimePast(cp.TipNumber) < threshold {
			return ErrSinceImmature
		}
	}
	return nil
}

// groupScripts buckets every input's lock script and every input/output's
// type script into script.Group values keyed by script identity, per
// spec.md §4.4's "verify once per distinct script, not once per cell"
// rule. Lock groups only ever gather input indices, since a lock guards
// spending and has no meaning on an output; type groups gather both,
// since a type script constrains the state transition across both the
// cell it consumed and the cell(s) it produces.
func groupScripts(tx *types.Transaction, resolvedInputs []types.CellOutput, hasher types.Hasher) []*script.Group {
	order := make([]types.Hash32, 0)
	byHash := make(map[types.Hash32]*script.Group)

	upsert := func(s *types.Script) *script.Group {
		h := s.Hash(hasher)
		g, ok := byHash[h]
		if !ok {
			g = &script.Group{Script: s}
			byHash[h] = g
			order = append(order, h)
		}
		return g
	}

	for i, cell := range resolvedInputs {
		if cell.Lock == nil {
			continue
		}
		g := upsert(cell.Lock)
		g.InputIndices = append(g.InputIndices, i)
	}
	for i, cell := range resolvedInputs {
		if cell.Type == nil {
			continue
		}
		g := upsert(cell.Type)
		g.InputIndices = append(g.InputIndices, i)
	}
	for i, out := range tx.Outputs {
		if out.Type == nil {
			continue
		}
		g := upsert(out.Type)
		g.OutputIndices = append(g.OutputIndices, i)
	}

	groups := make([]*script.Group, 0, len(order))
	for _, h := range order {
		groups = append(groups, byHash[h])
	}
	return groups
}
