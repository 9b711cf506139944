package chain

import (
	"bytes"
	"encoding/gob"

	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// Block/header/ext persistence uses encoding/gob rather than a
// molecule-accurate wire codec: the consensus-critical encoding is the
// byte layout Header.Hash and Transaction.serializeForHash build in
// package types, which
// every peer must agree on bit-for-bit; how a block sits on this node's
// local disk is not observable by any other node and has no equivalent
// third-party library in the retrieval pack to adopt instead, so this is
// a deliberate stdlib choice for a purely local storage concern.
func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Every helper below takes its store handle explicitly (store.Reader for
// reads, store.Writer for writes) rather than closing over c.db, so the
// same helpers serve both plain lookups (pass c.db) and the atomic
// attach/detach path (pass an open store.Transaction), per spec.md §4.7's
// atomicity requirement.

func (c *Chain) getHeader(db store.Reader, hash types.Hash32) (*types.Header, error) {
	raw, err := db.Get(store.ColumnBlockHeader, hash[:])
	if err != nil {
		return nil, err
	}
	var h types.Header
	if err := gobDecode(raw, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Chain) getBlockExt(db store.Reader, hash types.Hash32) (*types.BlockExt, error) {
	raw, err := db.Get(store.ColumnBlockExt, hash[:])
	if err != nil {
		return nil, err
	}
	var ext types.BlockExt
	if err := gobDecode(raw, &ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

func (c *Chain) putBlockExt(db store.Writer, hash types.Hash32, ext *types.BlockExt) error {
	raw, err := gobEncode(ext)
	if err != nil {
		return err
	}
	return db.Put(store.ColumnBlockExt, hash[:], raw)
}

func (c *Chain) getBlock(db store.Reader, hash types.Hash32) (*types.Block, error) {
	header, err := c.getHeader(db, hash)
	if err != nil {
		return nil, err
	}
	raw, err := db.Get(store.ColumnBlockBody, hash[:])
	if err != nil {
		return nil, err
	}
	var body blockBody
	if err := gobDecode(raw, &body); err != nil {
		return nil, err
	}
	return &types.Block{
		Header:       *header,
		Uncles:       body.Uncles,
		Transactions: body.Transactions,
		Proposals:    body.Proposals,
		Extension:    body.Extension,
	}, nil
}

// blockBody is everything in types.Block except the header, which is
// stored separately so headers-only sync never needs to touch bodies.
type blockBody struct {
	Uncles       []types.Header
	Transactions []*types.Transaction
	Proposals    []types.ProposalShortId
	Extension    []byte
}

func (c *Chain) storeBlock(db store.Writer, block *types.Block, hash types.Hash32) error {
	headerRaw, err := gobEncode(block.Header)
	if err != nil {
		return err
	}
	if err := db.Put(store.ColumnBlockHeader, hash[:], headerRaw); err != nil {
		return err
	}
	bodyRaw, err := gobEncode(blockBody{
		Uncles:       block.Uncles,
		Transactions: block.Transactions,
		Proposals:    block.Proposals,
		Extension:    block.Extension,
	})
	if err != nil {
		return err
	}
	if err := db.Put(store.ColumnBlockBody, hash[:], bodyRaw); err != nil {
		return err
	}
	return db.Put(store.ColumnNumberHash, numberKey(block.Header.Number), hash[:])
}

func numberKey(n types.Number) []byte {
	return []byte{byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32), byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
}

// txInfo records where a committed transaction lives, so an OutPoint can
// be resolved back to the CellOutput/data it names without scanning every
// block. Only main-chain (attached) transactions have an entry; detaching
// a block removes its transactions' entries again.
type txInfo struct {
	BlockHash   types.Hash32
	BlockNumber types.Number
	Epoch       types.Epoch
	IsCellbase  bool
}

func (c *Chain) putTxInfo(db store.Writer, txHash types.Hash32, info txInfo) error {
	raw, err := gobEncode(info)
	if err != nil {
		return err
	}
	return db.Put(store.ColumnTransactionInfo, txHash[:], raw)
}

func (c *Chain) getTxInfo(db store.Reader, txHash types.Hash32) (*txInfo, error) {
	raw, err := db.Get(store.ColumnTransactionInfo, txHash[:])
	if err != nil {
		return nil, err
	}
	var info txInfo
	if err := gobDecode(raw, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Chain) deleteTxInfo(db store.Writer, txHash types.Hash32) error {
	return db.Delete(store.ColumnTransactionInfo, txHash[:])
}

// findTransaction locates a committed transaction by hash within the
// block txInfo points at. Block bodies aren't indexed by transaction, so
// this does one linear scan over the owning block's transactions, which
// in this lineage's block sizes is cheaper than maintaining a second
// per-transaction position index.
func (c *Chain) findTransaction(db store.Reader, txHash types.Hash32) (*types.Transaction, *txInfo, error) {
	info, err := c.getTxInfo(db, txHash)
	if err != nil {
		return nil, nil, err
	}
	block, err := c.getBlock(db, info.BlockHash)
	if err != nil {
		return nil, nil, err
	}
	for _, tx := range block.Transactions {
		if tx.Hash(c.hasher) == txHash {
			return tx, info, nil
		}
	}
	return nil, nil, store.ErrNotFound
}

// setTipStore writes the new tip pointer through db; the caller updates
// the in-memory tipHash/tipHeader/tipExt only after db's transaction has
// committed, so a crash between the two never leaves the in-memory view
// ahead of what's durable.
func (c *Chain) setTipStore(db store.Writer, hash types.Hash32) error {
	return db.Put(store.ColumnMeta, []byte("tip"), hash[:])
}
