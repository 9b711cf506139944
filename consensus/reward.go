package consensus

import "github.com/nervosnetwork/ckb-sub009/types"

// maxTargetMantissa is the largest mantissa a CompactTarget's 24-bit field
// can hold, i.e. the easiest attainable target under this scheme.
const maxTargetMantissa = 0x00ffffff

// CellbaseReward computes the reward a cellbase at the given epoch is
// entitled to mint (primary issuance only; fees are added by the caller
// from the block's transactions and secondary issuance flows through the
// DAO field rather than the cellbase output directly).
func (p *Params) CellbaseReward(epochLength uint64) types.Capacity {
	if epochLength == 0 {
		return 0
	}
	return types.Capacity(uint64(p.PrimaryEpochReward) / epochLength)
}

// SecondaryBlockReward is CellbaseReward's counterpart for the DAO's
// interest-funding issuance: it is never paid to the cellbase output
// directly, only accumulated into the DAO field's C/AR components.
func (p *Params) SecondaryBlockReward(epochLength uint64) types.Capacity {
	if epochLength == 0 {
		return 0
	}
	return types.Capacity(uint64(p.SecondaryEpochReward) / epochLength)
}

// EpochLengthFor adjusts the epoch length for the epoch starting after
// lastEpochDurationMs elapsed wall-clock time over lastEpochLength blocks,
// tracking TargetEpochDurationMs and clamped to [MinEpochLength,
// MaxEpochLength].
func (p *Params) EpochLengthFor(lastEpochLength uint64, lastEpochDurationMs uint64) uint64 {
	if lastEpochDurationMs == 0 {
		return p.GenesisEpochLength
	}
	length := lastEpochLength * p.TargetEpochDurationMs / lastEpochDurationMs
	if length < p.MinEpochLength {
		length = p.MinEpochLength
	}
	if length > p.MaxEpochLength {
		length = p.MaxEpochLength
	}
	return length
}

// NextCompactTarget recomputes the target for the epoch starting after
// prevTarget's epoch, from that epoch's actual wall-clock duration, the
// same ratio-and-clamp shape EpochLengthFor uses for epoch length: a
// longer-than-target epoch loosens the target (raises the mantissa, since
// a larger mantissa is an easier target under difficultyFromTarget's
// scheme), a shorter one tightens it, and the per-epoch move is bounded to
// a 4x band so a single outlier epoch can't swing difficulty too far. The
// exponent byte is held fixed; only the mantissa adjusts.
func (p *Params) NextCompactTarget(prevTarget types.CompactTarget, actualDurationMs uint64) types.CompactTarget {
	if actualDurationMs == 0 || p.TargetEpochDurationMs == 0 {
		return prevTarget
	}
	exponent := uint32(prevTarget >> 24)
	mantissa := uint64(prevTarget & maxTargetMantissa)
	if mantissa == 0 {
		mantissa = 1
	}

	next := mantissa * actualDurationMs / p.TargetEpochDurationMs
	if min := mantissa / 4; next < min {
		next = min
	}
	if max := mantissa * 4; next > max {
		next = max
	}
	if next < 1 {
		next = 1
	}
	if next > maxTargetMantissa {
		next = maxTargetMantissa
	}
	return types.CompactTarget(exponent<<24 | uint32(next))
}
