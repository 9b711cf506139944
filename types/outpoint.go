package types

import "fmt"

// OutPoint is a cell coordinate within the UTXO-like graph: the hash of the
// transaction that created the cell and the cell's output index within it.
type OutPoint struct {
	TxHash Hash32
	Index  uint32
}

// NullOutPoint is the previous_output carried by a cellbase's single input.
var NullOutPoint = OutPoint{TxHash: ZeroHash, Index: 0xffffffff}

// IsNull reports whether this is the cellbase's null reference.
func (o OutPoint) IsNull() bool {
	return o.TxHash.IsZero() && o.Index == 0xffffffff
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash, o.Index)
}

// ProposalShortIdSize is the length in bytes of a ProposalShortId.
const ProposalShortIdSize = 10

// ProposalShortId is a 10-byte truncation of a transaction hash, used in
// the proposal table and in compact-block relay.
type ProposalShortId [ProposalShortIdSize]byte

// NewProposalShortId truncates a transaction hash into its short id.
func NewProposalShortId(h Hash32) ProposalShortId {
	var id ProposalShortId
	copy(id[:], h[:ProposalShortIdSize])
	return id
}

func (id ProposalShortId) String() string {
	return fmt.Sprintf("%x", id[:])
}
