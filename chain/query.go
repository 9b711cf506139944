package chain

import (
	"github.com/nervosnetwork/ckb-sub009/mmr"
	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// TipHash, TipHeader and TipTotalDifficulty publish the chain engine's
// current best-chain view, per spec.md §5's "tip view" pointer-swap
// contract: callers (sync, RPC, pool) read a snapshot, never the live
// struct.
func (c *Chain) TipHash() types.Hash32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipHash
}

func (c *Chain) TipHeader() types.Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipHeader
}

func (c *Chain) TipTotalDifficulty() types.Difficulty {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tipExt.TotalDifficulty
}

// GetHeader and GetBlock expose the store lookups chain.go already relies
// on internally, so the sync layer can serve GetHeaders/GetBlocks requests
// and validate incoming headers against their claimed parent without
// reaching into the store package directly.
func (c *Chain) GetHeader(hash types.Hash32) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getHeader(c.db, hash)
}

func (c *Chain) GetBlock(hash types.Hash32) (*types.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getBlock(c.db, hash)
}

// GenesisHash returns block zero's hash, for rejecting GetBlocks requests
// that name it (spec.md §4.9: genesis is never relayed over sync).
func (c *Chain) GenesisHash() types.Hash32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.GenesisBlock.Header.Hash(c.hasher)
}

// HasBlock reports whether hash has already been accepted (valid or
// invalid) so sync doesn't re-request or re-submit known blocks.
func (c *Chain) HasBlock(hash types.Hash32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.getBlockExt(c.db, hash)
	return err == nil
}

// HashForNumber resolves a main-chain block number to its hash.
func (c *Chain) HashForNumber(number types.Number) (types.Hash32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hashForNumber(number)
}

// ChainRootAt returns the bagged MMR root committing to every main-chain
// header up to and including number, the light-client proof surface
// spec.md §4.2 describes.
func (c *Chain) ChainRootAt(number types.Number) (types.Hash32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mmr.GetRootAt(uint64(number) + 1)
}

// ChainRootProof builds an inclusion proof linking the header at number to
// the chain root formed by the first atNumber+1 headers.
func (c *Chain) ChainRootProof(number, atNumber types.Number) (*mmr.Proof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mmr.GenProof(uint64(number), uint64(atNumber)+1)
}

// Locator builds a GetHeaders locator: the most recent main-chain hashes
// dense near the tip and exponentially sparser further back, per spec.md
// §4.9. The receiving peer walks the list looking for the first hash it
// recognizes, so a sparse tail still bounds the list's length on long
// chains without needing every ancestor hash.
func (c *Chain) Locator() []types.Hash32 {
	c.mu.Lock()
	tip := c.tipHeader.Number
	c.mu.Unlock()

	var locator []types.Hash32
	step := types.Number(1)
	cursor := tip
	for {
		hash, err := c.HashForNumber(cursor)
		if err != nil {
			break
		}
		locator = append(locator, hash)
		if cursor == 0 {
			break
		}
		if len(locator) >= 10 {
			step *= 2
		}
		if cursor < step {
			cursor = 0
		} else {
			cursor -= step
		}
	}
	return locator
}

// FindLocatorMatch returns the first hash in locator (searched in order,
// i.e. most-recent-first) that is on the main chain, or false if none
// match — the peer has no common ground with this node's chain at all
// besides (implicitly) genesis.
func (c *Chain) FindLocatorMatch(locator []types.Hash32) (types.Hash32, types.Number, bool) {
	for _, hash := range locator {
		header, err := c.GetHeader(hash)
		if err != nil {
			continue
		}
		onMain, err := c.hashOnMainChain(hash, header.Number)
		if err != nil || !onMain {
			continue
		}
		return hash, header.Number, true
	}
	return types.Hash32{}, 0, false
}

func (c *Chain) hashOnMainChain(hash types.Hash32, number types.Number) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	main, err := c.hashForNumber(number)
	if err != nil {
		return false, err
	}
	return main == hash, nil
}

// HeadersFrom returns up to limit consecutive main-chain headers starting
// the block after fromNumber, used to answer GetHeaders once the common
// locator hash is found.
func (c *Chain) HeadersFrom(fromNumber types.Number, limit int) ([]types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var headers []types.Header
	cursor := fromNumber + 1
	for i := 0; i < limit; i++ {
		hash, err := c.hashForNumber(cursor)
		if err == store.ErrNotFound {
			break
		}
		if err != nil {
			return nil, err
		}
		header, err := c.getHeader(c.db, hash)
		if err != nil {
			return nil, err
		}
		headers = append(headers, *header)
		cursor++
	}
	return headers, nil
}
