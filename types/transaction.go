package types

import "github.com/pkg/errors"

// ErrOutputsDataLengthMismatch is returned by Transaction.Validate when
// len(Outputs) != len(OutputsData).
var ErrOutputsDataLengthMismatch = errors.New("types: outputs/outputs_data length mismatch")

// Transaction is the unit of state transition: it consumes cells named by
// Inputs (and reads cells named by CellDeps/HeaderDeps) and produces new
// cells described by Outputs/OutputsData.
type Transaction struct {
	Version     uint32
	CellDeps    []CellDep
	HeaderDeps  []Hash32
	Inputs      []CellInput
	Outputs     []CellOutput
	OutputsData [][]byte
	Witnesses   [][]byte
}

// Hash computes the transaction hash over the structural fields that
// determine its identity (everything except witnesses, whose mutation must
// not change the tx hash so that signing is well-defined).
func (tx *Transaction) Hash(hasher Hasher) Hash32 {
	buf := tx.serializeForHash()
	return hasher.Hash(buf)
}

// WitnessHash computes a hash over the full transaction including
// witnesses, used to detect witness malleation.
func (tx *Transaction) WitnessHash(hasher Hasher) Hash32 {
	buf := tx.serializeForHash()
	for _, w := range tx.Witnesses {
		buf = appendBytes(buf, w)
	}
	return hasher.Hash(buf)
}

func (tx *Transaction) serializeForHash() []byte {
	buf := make([]byte, 0, 64)
	buf = appendUint32(buf, tx.Version)
	for _, d := range tx.CellDeps {
		buf = append(buf, d.OutPoint.TxHash[:]...)
		buf = appendUint32(buf, d.OutPoint.Index)
		buf = append(buf, byte(d.DepType))
	}
	for _, h := range tx.HeaderDeps {
		buf = append(buf, h[:]...)
	}
	for _, in := range tx.Inputs {
		buf = append(buf, in.PreviousOutput.TxHash[:]...)
		buf = appendUint32(buf, in.PreviousOutput.Index)
		buf = appendUint64(buf, uint64(in.Since))
	}
	for i, out := range tx.Outputs {
		buf = appendUint64(buf, uint64(out.Capacity))
		if out.Lock != nil {
			buf = append(buf, out.Lock.CodeHash[:]...)
			buf = append(buf, byte(out.Lock.HashType))
			buf = appendBytes(buf, out.Lock.Args)
		}
		if out.Type != nil {
			buf = append(buf, out.Type.CodeHash[:]...)
			buf = append(buf, byte(out.Type.HashType))
			buf = appendBytes(buf, out.Type.Args)
		}
		if i < len(tx.OutputsData) {
			buf = appendBytes(buf, tx.OutputsData[i])
		}
	}
	return buf
}

// ProposalShortId returns the 10-byte truncation of the tx hash used in
// proposals and compact blocks.
func (tx *Transaction) ProposalShortId(hasher Hasher) ProposalShortId {
	return NewProposalShortId(tx.Hash(hasher))
}

// IsCellbase reports whether this transaction has the single null input
// required of every block's first transaction.
func (tx *Transaction) IsCellbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].IsCellbaseInput()
}

// OutputsCapacity sums the transaction's declared output capacities,
// detecting overflow.
func (tx *Transaction) OutputsCapacity() (Capacity, error) {
	caps := make([]Capacity, len(tx.Outputs))
	for i, o := range tx.Outputs {
		caps[i] = o.Capacity
	}
	return SumCapacity(caps)
}

// Validate performs the structural (non-contextual, chain-state-free)
// checks on the transaction that don't require consensus parameters:
// outputs_data length, non-empty inputs/outputs for non-cellbase txs, and
// uniqueness of cell_deps/header_deps. Consensus-parameterized checks
// (version, capacity floors, since well-formedness) live in package
// verifier.
func (tx *Transaction) Validate() error {
	if len(tx.Outputs) != len(tx.OutputsData) {
		return ErrOutputsDataLengthMismatch
	}
	if !tx.IsCellbase() {
		if len(tx.Inputs) == 0 {
			return errors.New("types: transaction has no inputs")
		}
		if len(tx.Outputs) == 0 {
			return errors.New("types: transaction has no outputs")
		}
	}
	seenDeps := make(map[OutPoint]struct{}, len(tx.CellDeps))
	for _, d := range tx.CellDeps {
		if _, ok := seenDeps[d.OutPoint]; ok {
			return errors.Errorf("types: duplicate cell_dep %s", d.OutPoint)
		}
		seenDeps[d.OutPoint] = struct{}{}
	}
	seenHeaders := make(map[Hash32]struct{}, len(tx.HeaderDeps))
	for _, h := range tx.HeaderDeps {
		if _, ok := seenHeaders[h]; ok {
			return errors.Errorf("types: duplicate header_dep %s", h)
		}
		seenHeaders[h] = struct{}{}
	}
	seenInputs := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, ok := seenInputs[in.PreviousOutput]; ok {
			return errors.Errorf("types: duplicate input %s", in.PreviousOutput)
		}
		seenInputs[in.PreviousOutput] = struct{}{}
	}
	return nil
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func appendBytes(buf, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}
