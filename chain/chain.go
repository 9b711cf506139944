// Package chain is the consensus engine: it accepts candidate blocks,
// verifies them, tracks the best (greatest total difficulty) chain, and
// drives attach/detach of blocks against the store, cell index, MMR and
// transaction pool as the tip moves, per spec.md §4.7.
//
// Grounded on blockdag/dag.go's BlockDAG struct shape (a single mutex
// guarding chain state, generalized here from kaspad's dagLock since
// spec.md's chain is linear, not a DAG) and blockdag/process.go's
// ProcessBlock/orphan-block handling, reworked from greatest-blue-score
// fork choice to CKB's greatest-total-difficulty fork choice.
package chain

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/internal/logger"
	"github.com/nervosnetwork/ckb-sub009/mmr"
	"github.com/nervosnetwork/ckb-sub009/pow"
	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
)

var log, _ = logger.Get(logger.SubsystemTags.Chain)

var (
	ErrOrphanBlock             = errors.New("chain: block's parent is unknown")
	ErrBlockAlreadyKnown       = errors.New("chain: block already processed")
	ErrInvalidBlock            = errors.New("chain: block fails verification")
	ErrDuplicateTransaction    = errors.New("chain: block contains a duplicate transaction")
	ErrProposalsHashMismatch   = errors.New("chain: declared proposals_hash does not match")
	ErrExceededBlockCycles     = errors.New("chain: block exceeds max_block_cycles")
	ErrExceededBlockBytes      = errors.New("chain: block exceeds max_block_bytes")
	ErrMissingCellbase         = errors.New("chain: block has no cellbase transaction")
	ErrInvalidProofOfWork      = errors.New("chain: header fails proof-of-work verification")
	ErrTimestampTooOld         = errors.New("chain: header timestamp is not later than median time past")
	ErrTimestampTooFarInFuture = errors.New("chain: header timestamp is too far in the future")
	ErrBadDifficultyTarget     = errors.New("chain: header compact_target does not match the expected value")
	ErrTooManyUncles           = errors.New("chain: block declares more uncles than max_uncles_num")
	ErrDuplicateUncle          = errors.New("chain: block declares a duplicate uncle")
	ErrInvalidUncle            = errors.New("chain: block declares an invalid uncle")
	ErrUncleTooOld             = errors.New("chain: uncle is older than max_uncles_age")
	ErrUncleOnMainChain        = errors.New("chain: uncle is already part of the main chain")
	ErrCellbaseRewardMismatch  = errors.New("chain: cellbase output capacity does not match the reward schedule")
	ErrDaoMismatch             = errors.New("chain: header dao field does not match the recomputed value")
)

// PoolUpdater is the subset of txpool.Pool the chain engine drives as the
// tip moves; kept as an interface so chain doesn't import txpool directly
// (txpool already imports verifier/proposaltable, and chain sits above
// both).
type PoolUpdater interface {
	RemoveCommitted(ids []types.Hash32)
	ReturnToPending(txs []*types.Transaction)
	RecordProposals(number types.Number, ids []types.ProposalShortId)
	RemoveProposals(number types.Number)
	UpdateProposalWindow(number types.Number)
}

// Chain owns the single mutable view of chain state: the store, cell
// index and header MMR, plus the mempool it drives (the proposal table
// belongs to that mempool).
type Chain struct {
	mu sync.Mutex

	db     store.DB
	params *consensus.Params
	hasher types.Hasher
	mmr    *mmr.MMR
	pool   PoolUpdater
	pow    pow.PoW
	nowMs  func() uint64

	tipHash   types.Hash32
	tipHeader types.Header
	tipExt    types.BlockExt

	orphans *orphanBlockPool
}

// New wires a Chain over an already-migrated store at genesis or at
// whatever tip the store holds. nowMs supplies the current wall-clock
// time in Unix milliseconds, the same seam txpool.New takes, so a
// candidate block's timestamp-vs-MAX_FUTURE check is deterministic under
// test.
func New(db store.DB, params *consensus.Params, hasher types.Hasher, mmrStore mmr.Store, pool PoolUpdater, powEngine pow.PoW, nowMs func() uint64) (*Chain, error) {
	c := &Chain{
		db:      db,
		params:  params,
		hasher:  hasher,
		mmr:     mmr.New(mmrStore, hasher),
		pool:    pool,
		pow:     powEngine,
		nowMs:   nowMs,
		orphans: newOrphanBlockPool(),
	}
	if err := c.loadOrInitGenesis(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) loadOrInitGenesis() error {
	raw, err := c.db.Get(store.ColumnMeta, []byte("tip"))
	if err == store.ErrNotFound {
		return c.initGenesis()
	}
	if err != nil {
		return err
	}
	var h types.Hash32
	copy(h[:], raw)
	header, err := c.getHeader(c.db, h)
	if err != nil {
		return err
	}
	ext, err := c.getBlockExt(c.db, h)
	if err != nil {
		return err
	}
	c.tipHash = h
	c.tipHeader = *header
	c.tipExt = *ext
	return nil
}

// initGenesis seeds an empty store with the network's genesis block. Its
// writes (block body, ext, cell index, MMR leaf, tip pointer) go through
// one transaction for the same reason switchFork's do: a crash partway
// through must never leave the store with some but not all of genesis's
// effects recorded.
func (c *Chain) initGenesis() error {
	genesis := c.params.GenesisBlock
	if genesis == nil {
		return errors.New("chain: no genesis block configured")
	}
	hash := genesis.Header.Hash(c.hasher)
	ext := types.BlockExt{VerifyStatus: types.VerifyStatusValid, Dao: genesis.Header.Dao}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	txMMR := mmr.New(mmr.NewKVStore(tx), c.hasher)

	if err := c.initGenesisIn(tx, txMMR, genesis, hash, &ext); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	c.tipHash = hash
	c.tipHeader = genesis.Header
	c.tipExt = ext
	return nil
}

func (c *Chain) initGenesisIn(tx store.Transaction, txMMR *mmr.MMR, genesis *types.Block, hash types.Hash32, ext *types.BlockExt) error {
	if err := c.storeBlock(tx, genesis, hash); err != nil {
		return err
	}
	if err := c.putBlockExt(tx, hash, ext); err != nil {
		return err
	}
	if _, err := txMMR.Append(hash, ext.TotalDifficulty); err != nil {
		return err
	}
	if err := c.attachCells(tx, genesis); err != nil {
		return err
	}
	return c.setTipStore(tx, hash)
}

// TipNumber and TipEpoch satisfy txpool.ChainSnapshot/verifier.CellSource
// consumers that need the current tip's coordinates.
func (c *Chain) TipNumber() types.Number { c.mu.Lock(); defer c.mu.Unlock(); return c.tipHeader.Number }
func (c *Chain) TipEpoch() types.Epoch   { c.mu.Lock(); defer c.mu.Unlock(); return c.tipHeader.Epoch }

// ProcessBlock is the chain engine's single entry point, per spec.md
// §4.7's ingestion pseudocode: resolve parent (orphan if unknown), verify
// non-contextually then contextually, and if the block's total difficulty
// exceeds the current tip's, switch the main chain to it.
func (c *Chain) ProcessBlock(block *types.Block) (isOrphan bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := block.Header.Hash(c.hasher)
	if _, err := c.getBlockExt(c.db, hash); err == nil {
		return false, ErrBlockAlreadyKnown
	}

	parentExt, err := c.getBlockExt(c.db, block.Header.ParentHash)
	if err != nil {
		log.Debugf("chain: block %s orphaned, parent %s unknown", hash, block.Header.ParentHash)
		c.orphans.add(block.Header.ParentHash, hash, block)
		return true, ErrOrphanBlock
	}

	if err := c.verifyBlock(block); err != nil {
		log.Warnf("chain: block %s rejected: %v", hash, err)
		badExt := types.BlockExt{VerifyStatus: types.VerifyStatusInvalid}
		c.putBlockExt(c.db, hash, &badExt)
		return false, errors.Wrap(ErrInvalidBlock, err.Error())
	}

	totalDifficulty := parentExt.TotalDifficulty.Add(difficultyFromTarget(block.Header.CompactTarget))
	ext := types.BlockExt{TotalDifficulty: totalDifficulty, VerifyStatus: types.VerifyStatusValid, Dao: block.Header.Dao}

	// storeBlock and putBlockExt (the candidate block's own persistence)
	// share one transaction with switchFork's attach/detach writes when a
	// reorg is triggered, so a crash never leaves the new block recorded
	// without the tip having moved to match, or vice versa.
	tx, err := c.db.Begin()
	if err != nil {
		return false, err
	}
	if err := c.storeBlock(tx, block, hash); err != nil {
		tx.Rollback()
		return false, err
	}
	if err := c.putBlockExt(tx, hash, &ext); err != nil {
		tx.Rollback()
		return false, err
	}

	becomesNewTip := totalDifficulty.GreaterThan(c.tipExt.TotalDifficulty)
	if !becomesNewTip {
		if err := tx.Commit(); err != nil {
			return false, err
		}
		c.processReadyOrphans(hash)
		return false, nil
	}

	detach, attach, err := c.commonAncestor(c.tipHash, block, hash)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	txMMR := mmr.New(mmr.NewKVStore(tx), c.hasher)
	if err := c.switchForkIn(tx, txMMR, detach, attach, hash, &ext); err != nil {
		tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	for _, dhash := range detach {
		dblock, err := c.getBlock(c.db, dhash)
		if err != nil {
			return false, err
		}
		c.pool.ReturnToPending(dblock.Transactions)
		c.pool.RemoveProposals(dblock.Header.Number)
	}
	for _, ablock := range attach {
		ids := make([]types.Hash32, 0, len(ablock.Transactions))
		for _, atx := range ablock.Transactions {
			ids = append(ids, atx.Hash(c.hasher))
		}
		c.pool.RemoveCommitted(ids)
		c.pool.RecordProposals(ablock.Header.Number, ablock.Proposals)
		c.pool.UpdateProposalWindow(ablock.Header.Number)
	}

	c.tipHash = hash
	c.tipHeader = block.Header
	c.tipExt = ext
	log.Infof("chain: tip now %s at number %d", hash, block.Header.Number)

	c.processReadyOrphans(hash)
	return false, nil
}

// processReadyOrphans re-submits every block that was waiting on hash as
// its parent, per spec.md §4.7 step 6.
func (c *Chain) processReadyOrphans(hash types.Hash32) {
	ready := c.orphans.removeChildrenOf(hash)
	for _, block := range ready {
		c.mu.Unlock()
		_, _ = c.ProcessBlock(block)
		c.mu.Lock()
	}
}

// difficultyFromTarget derives a block's individual difficulty
// contribution from its compact target. A full big.Int target-to-work
// conversion is out of scope; this approximation treats the compact
// target's exponent as a coarse proxy for work, sufficient to exercise
// fork-choice ordering in tests without a production difficulty oracle.
func difficultyFromTarget(target types.CompactTarget) types.Difficulty {
	exponent := uint64(target >> 24)
	mantissa := uint64(target & 0x00ffffff)
	if mantissa == 0 {
		mantissa = 1
	}
	lo := (exponent + 1) * 1_000_000 / mantissa
	if lo == 0 {
		// A target whose mantissa swamps its exponent term must still
		// contribute strictly positive work, or fork choice could never
		// tell two such blocks apart by total difficulty.
		lo = 1
	}
	return types.Difficulty{Lo: lo}
}
