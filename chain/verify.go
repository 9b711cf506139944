package chain

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/cellindex"
	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
	"github.com/nervosnetwork/ckb-sub009/verifier"
)

// chainCellSource adapts the store plus the block currently being
// verified into verifier.CellSource, so a transaction can spend an
// earlier transaction's output within the same block as well as
// already-committed cells.
type chainCellSource struct {
	c            *Chain
	blockNumber  types.Number
	epoch        types.Epoch
	localOutputs map[types.OutPoint]types.CellOutput
	localData    map[types.OutPoint][]byte
	localCreated map[types.OutPoint]verifier.ResolvedAt
}

func newChainCellSource(c *Chain, blockNumber types.Number, epoch types.Epoch) *chainCellSource {
	return &chainCellSource{
		c:            c,
		blockNumber:  blockNumber,
		epoch:        epoch,
		localOutputs: make(map[types.OutPoint]types.CellOutput),
		localData:    make(map[types.OutPoint][]byte),
		localCreated: make(map[types.OutPoint]verifier.ResolvedAt),
	}
}

// addLocal records tx's outputs as spendable by later transactions in
// the same block, before that transaction's inputs are resolved.
func (s *chainCellSource) addLocal(tx *types.Transaction, isCellbase bool) {
	txHash := tx.Hash(s.c.hasher)
	createdAt := verifier.ResolvedAt{BlockNumber: s.blockNumber, Epoch: s.epoch, IsCellbase: isCellbase}
	for i, out := range tx.Outputs {
		op := types.OutPoint{TxHash: txHash, Index: uint32(i)}
		s.localOutputs[op] = out
		if i < len(tx.OutputsData) {
			s.localData[op] = tx.OutputsData[i]
		}
		s.localCreated[op] = createdAt
	}
}

func (s *chainCellSource) ResolveInput(op types.OutPoint) (types.CellOutput, []byte, verifier.ResolvedAt, bool, error) {
	if out, ok := s.localOutputs[op]; ok {
		return out, s.localData[op], s.localCreated[op], true, nil
	}
	live, err := cellindex.IsLive(s.c.db, op)
	if err != nil {
		return types.CellOutput{}, nil, verifier.ResolvedAt{}, false, err
	}
	tx, info, err := s.c.findTransaction(s.c.db, op.TxHash)
	if err != nil {
		return types.CellOutput{}, nil, verifier.ResolvedAt{}, false, err
	}
	if int(op.Index) >= len(tx.Outputs) {
		return types.CellOutput{}, nil, verifier.ResolvedAt{}, false, errors.New("chain: out-of-range output index")
	}
	var data []byte
	if int(op.Index) < len(tx.OutputsData) {
		data = tx.OutputsData[op.Index]
	}
	return tx.Outputs[op.Index], data, verifier.ResolvedAt{BlockNumber: info.BlockNumber, Epoch: info.Epoch, IsCellbase: info.IsCellbase}, live, nil
}

func (s *chainCellSource) ResolveCellDep(op types.OutPoint) (types.CellOutput, []byte, error) {
	if out, ok := s.localOutputs[op]; ok {
		return out, s.localData[op], nil
	}
	tx, _, err := s.c.findTransaction(s.c.db, op.TxHash)
	if err != nil {
		return types.CellOutput{}, nil, err
	}
	if int(op.Index) >= len(tx.Outputs) {
		return types.CellOutput{}, nil, errors.New("chain: out-of-range output index")
	}
	var data []byte
	if int(op.Index) < len(tx.OutputsData) {
		data = tx.OutputsData[op.Index]
	}
	return tx.Outputs[op.Index], data, nil
}

func (s *chainCellSource) ResolveHeaderDep(hash types.Hash32) (types.Header, error) {
	h, err := s.c.getHeader(s.c.db, hash)
	if err != nil {
		return types.Header{}, err
	}
	return *h, nil
}

// MedianTimePast returns the median timestamp of the MedianTimeBlockCount
// main-chain headers ending at and including blockNumber (fewer near
// genesis), per spec.md §3's timestamp-since semantics.
func (s *chainCellSource) MedianTimePast(blockNumber types.Number) uint64 {
	count := int(s.c.params.MedianTimeBlockCount)
	timestamps := make([]uint64, 0, count)
	cursor := blockNumber
	for i := 0; i < count; i++ {
		hash, err := s.c.hashForNumber(cursor)
		if err != nil {
			break
		}
		header, err := s.c.getHeader(s.c.db, hash)
		if err != nil {
			break
		}
		timestamps = append(timestamps, header.TimestampMs)
		if cursor == 0 {
			break
		}
		cursor--
	}
	if len(timestamps) == 0 {
		return 0
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2]
}

// proposalsHash hashes a block's declared proposal short ids in order, the
// same way Header.Hash concatenates its own fixed fields before hashing.
// An empty proposal list commits to the zero hash rather than hashing zero
// bytes, so a block with nothing to propose doesn't need a real digest.
func proposalsHash(hasher types.Hasher, proposals []types.ProposalShortId) types.Hash32 {
	if len(proposals) == 0 {
		return types.Hash32{}
	}
	buf := make([]byte, 0, len(proposals)*types.ProposalShortIdSize)
	for _, p := range proposals {
		buf = append(buf, p[:]...)
	}
	return hasher.Hash(buf)
}

func (c *Chain) hashForNumber(number types.Number) (types.Hash32, error) {
	raw, err := c.db.Get(store.ColumnNumberHash, numberKey(number))
	if err != nil {
		return types.Hash32{}, err
	}
	var h types.Hash32
	copy(h[:], raw)
	return h, nil
}

// verifyBlock runs every non-store-mutating check a candidate block must
// pass before it can be attached, per spec.md §4.7/§4.5: proof of work,
// timestamp and difficulty against the parent, uncles, proposals_hash
// consistency, per-transaction non-contextual and contextual verification
// (the cellbase skips contextual verification entirely; its outputs are
// checked against the reward schedule instead), the cellbase reward schedule, the dao field,
// block-level cycle and byte-size ceilings, and duplicate-transaction
// rejection.
func (c *Chain) verifyBlock(block *types.Block) error {
	if uint64(block.SerializedSize()) > c.params.MaxBlockBytes {
		return ErrExceededBlockBytes
	}
	if len(block.Transactions) == 0 {
		return ErrMissingCellbase
	}
	if proposalsHash(c.hasher, block.Proposals) != block.Header.ProposalsHash {
		return ErrProposalsHashMismatch
	}
	if !c.pow.Verify(&block.Header, c.hasher) {
		return ErrInvalidProofOfWork
	}

	parentHeader, err := c.getHeader(c.db, block.Header.ParentHash)
	if err != nil {
		return err
	}
	parentExt, err := c.getBlockExt(c.db, block.Header.ParentHash)
	if err != nil {
		return err
	}

	medianTimePast := (&chainCellSource{c: c}).MedianTimePast(parentHeader.Number)
	if block.Header.TimestampMs <= medianTimePast {
		return ErrTimestampTooOld
	}
	if block.Header.TimestampMs > c.nowMs()+c.params.MaxFutureTimeMs {
		return ErrTimestampTooFarInFuture
	}
	if err := c.verifyDifficulty(block, parentHeader); err != nil {
		return err
	}
	if err := c.verifyUncles(block); err != nil {
		return err
	}

	seen := make(map[types.Hash32]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		h := tx.Hash(c.hasher)
		if _, dup := seen[h]; dup {
			return ErrDuplicateTransaction
		}
		seen[h] = struct{}{}
		if err := verifier.NonContextual(tx); err != nil {
			return errors.Wrapf(err, "tx %s", h)
		}
	}

	cp := verifier.ContextParams{
		TipNumber: parentHeader.Number,
		TipEpoch:  parentHeader.Epoch,
		Params:    c.params,
	}

	src := newChainCellSource(c, block.Header.Number, block.Header.Epoch)
	var totalCycles types.Cycle
	var totalFees types.Capacity
	for i, tx := range block.Transactions {
		isCellbase := i == 0
		if isCellbase {
			src.addLocal(tx, true)
			continue
		}
		cycles, fee, err := verifier.Contextual(tx, src, cp, c.hasher)
		if err != nil {
			return errors.Wrapf(err, "tx %s", tx.Hash(c.hasher))
		}
		totalCycles += cycles
		totalFees, err = totalFees.SafeAdd(fee)
		if err != nil {
			return errors.Wrapf(err, "tx %s", tx.Hash(c.hasher))
		}
		src.addLocal(tx, false)
	}
	if totalCycles > c.params.MaxBlockCycles {
		return ErrExceededBlockCycles
	}

	epochLength := uint64(block.Header.Epoch.Length())
	wantReward, err := c.params.CellbaseReward(epochLength).SafeAdd(totalFees)
	if err != nil {
		return err
	}
	gotReward, err := types.SumCapacity(cellbaseOutputCapacities(block))
	if err != nil {
		return err
	}
	if gotReward != wantReward {
		return ErrCellbaseRewardMismatch
	}

	resolveInput := func(op types.OutPoint) (types.CellOutput, []byte, error) {
		out, data, _, _, err := src.ResolveInput(op)
		return out, data, err
	}
	wantDao, err := computeDao(c.params, parentExt.Dao, epochLength, block, resolveInput)
	if err != nil {
		return err
	}
	if wantDao != block.Header.Dao {
		return ErrDaoMismatch
	}
	return nil
}

// cellbaseOutputCapacities returns the first transaction's output
// capacities, for summing against the reward schedule.
func cellbaseOutputCapacities(block *types.Block) []types.Capacity {
	cellbase := block.Transactions[0]
	capacities := make([]types.Capacity, len(cellbase.Outputs))
	for i, out := range cellbase.Outputs {
		capacities[i] = out.Capacity
	}
	return capacities
}

// verifyDifficulty checks block's compact_target against the parent:
// unchanged within an epoch, or recomputed from the elapsed epoch's
// actual duration at an epoch boundary, per spec.md §4.2's epoch-based
// difficulty adjustment.
func (c *Chain) verifyDifficulty(block *types.Block, parentHeader *types.Header) error {
	if block.Header.Epoch.Number() == parentHeader.Epoch.Number() {
		if block.Header.CompactTarget != parentHeader.CompactTarget {
			return ErrBadDifficultyTarget
		}
		return nil
	}

	// Epoch rolled over: the previous epoch's start block is
	// parentHeader.Number - parentHeader.Epoch.Index() blocks back (parent
	// is the previous epoch's last block).
	startNumber := parentHeader.Number - types.Number(parentHeader.Epoch.Index())
	startHash, err := c.hashForNumber(startNumber)
	if err != nil {
		return err
	}
	startHeader, err := c.getHeader(c.db, startHash)
	if err != nil {
		return err
	}
	actualDurationMs := parentHeader.TimestampMs - startHeader.TimestampMs
	expected := c.params.NextCompactTarget(parentHeader.CompactTarget, actualDurationMs)
	if block.Header.CompactTarget != expected {
		return ErrBadDifficultyTarget
	}
	return nil
}

// verifyUncles checks a block's declared uncles against
// MaxUnclesNum/MaxUnclesAge, per spec.md §4.7: no more than max_uncles_num,
// no duplicates, and every uncle a valid, currently off-main-chain header
// within max_uncles_age blocks of the block declaring it.
func (c *Chain) verifyUncles(block *types.Block) error {
	if uint64(len(block.Uncles)) > c.params.MaxUnclesNum {
		return ErrTooManyUncles
	}
	seen := make(map[types.Hash32]struct{}, len(block.Uncles))
	for i := range block.Uncles {
		uncle := &block.Uncles[i]
		uncleHash := uncle.Hash(c.hasher)
		if _, dup := seen[uncleHash]; dup {
			return ErrDuplicateUncle
		}
		seen[uncleHash] = struct{}{}

		if uncle.Number >= block.Header.Number {
			return ErrInvalidUncle
		}
		if uint64(block.Header.Number-uncle.Number) > c.params.MaxUnclesAge {
			return ErrUncleTooOld
		}
		if _, err := c.getHeader(c.db, uncle.ParentHash); err != nil {
			return errors.Wrap(ErrInvalidUncle, "uncle's parent is unknown")
		}
		if mainHash, err := c.hashForNumber(uncle.Number); err == nil && mainHash == uncleHash {
			return ErrUncleOnMainChain
		}
	}
	return nil
}
