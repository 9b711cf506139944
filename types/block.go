package types

// Block bundles a sealed Header with the uncles, transactions, and
// declared proposals it commits to. By convention Transactions[0] is the
// cellbase.
type Block struct {
	Header       Header
	Uncles       []Header
	Transactions []*Transaction
	Proposals    []ProposalShortId
	Extension    []byte
}

// Cellbase returns the block's cellbase transaction, or nil if the block
// has no transactions (only valid for an in-construction template).
func (b *Block) Cellbase() *Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[0]
}

// SerializedSize estimates the wire size of the block for the
// max_block_bytes consensus check. It is a structural approximation (not a
// byte-exact codec) sufficient for the size ceiling enforced by the chain
// engine and verifier.
func (b *Block) SerializedSize() int {
	size := headerFixedSize
	size += len(b.Uncles) * headerFixedSize
	size += len(b.Proposals) * ProposalShortIdSize
	size += len(b.Extension)
	for _, tx := range b.Transactions {
		size += transactionApproxSize(tx)
	}
	return size
}

const headerFixedSize = 4 + 4 + 8 + 8 + 8 + HashSize*4 + 32 + 16 + 64

func transactionApproxSize(tx *Transaction) int {
	size := 4
	size += len(tx.CellDeps) * (HashSize + 4 + 1)
	size += len(tx.HeaderDeps) * HashSize
	size += len(tx.Inputs) * (HashSize + 4 + 8)
	for i, out := range tx.Outputs {
		size += 8
		size += int(out.Lock.OccupiedCapacity())
		size += int(out.Type.OccupiedCapacity())
		if i < len(tx.OutputsData) {
			size += len(tx.OutputsData[i])
		}
	}
	for _, w := range tx.Witnesses {
		size += len(w)
	}
	return size
}
