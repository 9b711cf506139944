package types

import (
	"math/bits"

	"github.com/pkg/errors"
)

// ErrMalformedTransactionMeta is returned by DeserializeTransactionMeta
// when the input is too short to be a valid encoding.
var ErrMalformedTransactionMeta = errors.New("types: malformed transaction meta")

// TransactionMeta is the cell-index's per-transaction liveness bitmap: one
// bit per output, set while the output is unspent in the main chain.
// Created when a transaction is attached, mutated as its outputs are
// consumed, and deleted once every output has gone dead.
type TransactionMeta struct {
	BlockNumber Number
	EpochNumber uint64
	// IsCellbase marks the transaction as a cellbase, so consumers can
	// apply cellbase-maturity checks without a second store lookup.
	IsCellbase bool
	bits       []uint64
	len        int
}

// NewTransactionMeta builds a meta with all outputCount outputs live.
func NewTransactionMeta(blockNumber Number, epochNumber uint64, isCellbase bool, outputCount int) *TransactionMeta {
	m := &TransactionMeta{
		BlockNumber: blockNumber,
		EpochNumber: epochNumber,
		IsCellbase:  isCellbase,
		bits:        make([]uint64, (outputCount+63)/64),
		len:         outputCount,
	}
	for i := 0; i < outputCount; i++ {
		m.setLive(i)
	}
	return m
}

func (m *TransactionMeta) setLive(index int) { m.bits[index/64] |= 1 << uint(index%64) }
func (m *TransactionMeta) clear(index int)    { m.bits[index/64] &^= 1 << uint(index%64) }

// IsLive reports whether output index is still unspent. Out-of-range
// indices are reported dead.
func (m *TransactionMeta) IsLive(index int) bool {
	if index < 0 || index >= m.len {
		return false
	}
	return m.bits[index/64]&(1<<uint(index%64)) != 0
}

// MarkDead marks output index as spent. Returns an error-free no-op for an
// already-dead or out-of-range index.
func (m *TransactionMeta) MarkDead(index int) {
	if index < 0 || index >= m.len {
		return
	}
	m.clear(index)
}

// MarkLive marks output index as unspent again (used to undo a detach).
func (m *TransactionMeta) MarkLive(index int) {
	if index < 0 || index >= m.len {
		return
	}
	m.setLive(index)
}

// IsFullyDead reports whether every output has been consumed, meaning the
// meta entry can be deleted from the index.
func (m *TransactionMeta) IsFullyDead() bool {
	for _, w := range m.bits {
		if w != 0 {
			return false
		}
	}
	return true
}

// OutputCount returns the number of outputs tracked.
func (m *TransactionMeta) OutputCount() int { return m.len }

// LiveCount returns the number of outputs still unspent.
func (m *TransactionMeta) LiveCount() int {
	count := 0
	for _, w := range m.bits {
		count += bits.OnesCount64(w)
	}
	return count
}

// Serialize packs the meta into bytes for storage: blockNumber(8) |
// epochNumber(8) | isCellbase(1) | len(4) | bitmap.
func (m *TransactionMeta) Serialize() []byte {
	out := make([]byte, 0, 21+len(m.bits)*8)
	out = appendUint64(out, uint64(m.BlockNumber))
	out = appendUint64(out, m.EpochNumber)
	if m.IsCellbase {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = appendUint32(out, uint32(m.len))
	for _, w := range m.bits {
		out = appendUint64(out, w)
	}
	return out
}

// DeserializeTransactionMeta reverses Serialize.
func DeserializeTransactionMeta(b []byte) (*TransactionMeta, error) {
	if len(b) < 21 {
		return nil, ErrMalformedTransactionMeta
	}
	m := &TransactionMeta{}
	m.BlockNumber = Number(readUint64(b[0:8]))
	m.EpochNumber = readUint64(b[8:16])
	m.IsCellbase = b[16] != 0
	m.len = int(readUint32(b[17:21]))
	rest := b[21:]
	m.bits = make([]uint64, (m.len+63)/64)
	for i := range m.bits {
		off := i * 8
		if off+8 > len(rest) {
			break
		}
		m.bits[i] = readUint64(rest[off : off+8])
	}
	return m, nil
}

func readUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func readUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
