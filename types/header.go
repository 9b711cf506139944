package types

// CompactTarget is a target-compressed difficulty, in the same packed
// exponent+mantissa representation Bitcoin calls "bits".
type CompactTarget uint32

// Header is the proof-of-work-sealed summary of a Block.
type Header struct {
	Version          uint32
	CompactTarget    CompactTarget
	TimestampMs      uint64
	Number           Number
	Epoch            Epoch
	ParentHash       Hash32
	TransactionsRoot Hash32
	ProposalsHash    Hash32
	// ExtraHash binds uncles and an optional extension field into the
	// header without growing the header's fixed-size fields.
	ExtraHash Hash32
	Dao       DaoField
	Nonce     [16]byte
	PowProof  []byte
}

// DaoField is the aggregated statistic over dead/live/withdraw cells that
// every block commits to, recomputed by the chain engine and compared
// against the header's declared value.
type DaoField struct {
	C Capacity // accumulated primary + secondary issuance
	AR uint64  // accumulated rate, used for withdraw interest calculation
	S  Capacity // total occupied capacity of live cells
	U  Capacity // total capacity locked in the DAO deposit script
}

// Hash computes the header hash (the PoW input message), over every field
// except PowProof and Nonce, which are the solution being searched for.
func (h *Header) Hash(hasher Hasher) Hash32 {
	buf := make([]byte, 0, 128)
	buf = appendUint32(buf, h.Version)
	buf = appendUint32(buf, uint32(h.CompactTarget))
	buf = appendUint64(buf, h.TimestampMs)
	buf = appendUint64(buf, uint64(h.Number))
	buf = appendUint64(buf, uint64(h.Epoch))
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.TransactionsRoot[:]...)
	buf = append(buf, h.ProposalsHash[:]...)
	buf = append(buf, h.ExtraHash[:]...)
	buf = appendUint64(buf, uint64(h.Dao.C))
	buf = appendUint64(buf, h.Dao.AR)
	buf = appendUint64(buf, uint64(h.Dao.S))
	buf = appendUint64(buf, uint64(h.Dao.U))
	return hasher.Hash(buf)
}

// PowHash computes the message a PoW engine seals, including the nonce
// being searched over but excluding the proof itself.
func (h *Header) PowHash(hasher Hasher) Hash32 {
	return hasher.Hash(append(h.Hash(hasher).CloneBytes(), h.Nonce[:]...))
}

// IsGenesis reports whether this header is block number zero with a
// zeroed parent hash.
func (h *Header) IsGenesis() bool {
	return h.Number == 0 && h.ParentHash.IsZero()
}
