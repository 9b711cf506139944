package types

import "fmt"

// Number is an unsigned 64-bit block height.
type Number uint64

// Cycle is an unsigned 64-bit VM instruction-cost counter.
type Cycle uint64

// epochNumberMask, epochIndexMask and epochLengthMask carve a packed 64-bit
// Epoch into {epoch_number: 24 bits, index: 16 bits, length: 16 bits}
// (remaining high bits reserved and kept zero).
const (
	epochNumberBits = 24
	epochIndexBits  = 16
	epochLengthBits = 16

	epochNumberMask = (uint64(1) << epochNumberBits) - 1
	epochIndexMask  = (uint64(1) << epochIndexBits) - 1
	epochLengthMask = (uint64(1) << epochLengthBits) - 1
)

// Epoch packs {epoch_number, index, length} into a single uint64, with
// epoch_number in the lowest bits and length in the highest. The raw
// packed value is therefore not ordered by time; Less compares two epochs
// as the rational number epoch_number + index/length.
type Epoch uint64

// NewEpoch packs an epoch number, index within the epoch, and epoch length
// into an Epoch value.
func NewEpoch(number uint64, index, length uint16) Epoch {
	return Epoch((number & epochNumberMask) |
		(uint64(index&epochIndexMask) << epochNumberBits) |
		(uint64(length&epochLengthMask) << (epochNumberBits + epochIndexBits)))
}

// Number returns the epoch number component.
func (e Epoch) Number() uint64 { return uint64(e) & epochNumberMask }

// Index returns the index-within-epoch component.
func (e Epoch) Index() uint16 { return uint16((uint64(e) >> epochNumberBits) & epochIndexMask) }

// Length returns the epoch-length component.
func (e Epoch) Length() uint16 {
	return uint16((uint64(e) >> (epochNumberBits + epochIndexBits)) & epochLengthMask)
}

// String renders the epoch as "number(index/length)".
func (e Epoch) String() string {
	return fmt.Sprintf("%d(%d/%d)", e.Number(), e.Index(), e.Length())
}

// Less reports whether e represents an earlier point in time than other,
// comparing the rational numbers number + index/length via cross
// multiplication to avoid floating point.
func (e Epoch) Less(other Epoch) bool {
	if e.Number() != other.Number() {
		return e.Number() < other.Number()
	}
	// Same epoch number: compare index/length fractions. A zero length is
	// read as length 1.
	lhs := uint64(e.Index())
	rhs := uint64(other.Index())
	ll := uint64(e.Length())
	rl := uint64(other.Length())
	if ll == 0 {
		ll = 1
	}
	if rl == 0 {
		rl = 1
	}
	return lhs*rl < rhs*ll
}

// ElapsedSince returns the number of whole epochs that have elapsed from
// start to e, i.e. floor(e - start) measured in epoch units. Used for
// cellbase-maturity checks ("N epochs have elapsed").
func (e Epoch) ElapsedSince(start Epoch) uint64 {
	if e.Number() < start.Number() {
		return 0
	}
	diff := e.Number() - start.Number()
	// If e hasn't yet reached the same fractional offset within its epoch
	// as start had, the last partial epoch doesn't count as fully elapsed.
	// Compare index/length fractions via cross multiplication to stay
	// integer-exact.
	el, sl := uint64(e.Length()), uint64(start.Length())
	if el == 0 {
		el = 1
	}
	if sl == 0 {
		sl = 1
	}
	if diff > 0 && uint64(e.Index())*sl < uint64(start.Index())*el {
		diff--
	}
	return diff
}
