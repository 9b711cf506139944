package types

// VerifyStatus records the outcome of full block verification.
type VerifyStatus uint8

const (
	// VerifyStatusUnknown means the block's body has not yet been fully
	// verified (headers-only / pending attach).
	VerifyStatusUnknown VerifyStatus = iota
	// VerifyStatusValid means the block passed full verification and was
	// attached.
	VerifyStatusValid
	// VerifyStatusInvalid means the block failed verification; it and its
	// descendants must never become the main chain tip.
	VerifyStatusInvalid
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyStatusValid:
		return "valid"
	case VerifyStatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// BlockExt is block-scoped metadata computed during verification, stored
// alongside (but separate from) the block body so re-verification can be
// skipped once a block is known Valid or Invalid.
type BlockExt struct {
	TotalDifficulty Difficulty
	TxFees          []Capacity
	TxCycles        []Cycle
	VerifyStatus    VerifyStatus
	// Dao is this block's own recomputed dao aggregate (mirroring the
	// header's declared value once verified), kept here so a later
	// block's dao check doesn't need to rescan the whole chain to find
	// its parent's running total.
	Dao DaoField
}

// Difficulty is an arbitrary-precision-free difficulty accumulator. Real
// chains need > 2^64 total difficulty; we use a 128-bit pair (hi,lo) with
// unsigned addition and comparison, since the VM's target hash function is
// itself pluggable and consensus only needs ordering, not arithmetic with
// the raw target.
type Difficulty struct {
	Hi, Lo uint64
}

// Add returns d+other with 128-bit unsigned carry propagation.
func (d Difficulty) Add(other Difficulty) Difficulty {
	lo := d.Lo + other.Lo
	hi := d.Hi + other.Hi
	if lo < d.Lo { // carry
		hi++
	}
	return Difficulty{Hi: hi, Lo: lo}
}

// Cmp returns -1, 0, or 1 as d is less than, equal to, or greater than
// other.
func (d Difficulty) Cmp(other Difficulty) int {
	if d.Hi != other.Hi {
		if d.Hi < other.Hi {
			return -1
		}
		return 1
	}
	if d.Lo != other.Lo {
		if d.Lo < other.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// GreaterThan reports whether d > other.
func (d Difficulty) GreaterThan(other Difficulty) bool { return d.Cmp(other) > 0 }
