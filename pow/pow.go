// Package pow defines the proof-of-work engine the chain package verifies
// candidate headers against. spec.md fixes only the interface shape
// (verify(header) -> bool, solve(header, nonce) -> proof?) and leaves the
// concrete hash function unspecified and pluggable, since the source this
// was distilled from ships several (Eaglesong, dummy, clicker). Dummy is
// the only implementation this module carries; a production deployment
// would wire a real one behind the same interface.
package pow

import (
	"encoding/binary"
	"math"

	"github.com/nervosnetwork/ckb-sub009/types"
)

// PoW seals and checks a header's proof of work against its own declared
// compact target.
type PoW interface {
	// Verify reports whether header's Nonce/PowProof satisfy the work
	// target implied by header.CompactTarget.
	Verify(header *types.Header, hasher types.Hasher) bool

	// Solve searches nonces starting at startNonce, up to maxAttempts
	// candidates, for one that satisfies header's target. It returns the
	// winning proof and nonce, or ok=false if the budget was exhausted
	// first.
	Solve(header *types.Header, hasher types.Hasher, startNonce [16]byte, maxAttempts uint64) (proof []byte, nonce [16]byte, ok bool)
}

// Dummy is a placeholder engine: it treats a header's own hash (sealed
// with the candidate nonce) as the proof, and accepts it when the hash's
// leading 8 bytes fall under a budget derived from CompactTarget the same
// way chain.difficultyFromTarget treats it — a coarse exponent/mantissa
// proxy for work, not a byte-accurate reimplementation of any real mining
// algorithm.
type Dummy struct{}

// budgetFromTarget returns the largest leading-8-bytes value PowHash may
// produce and still satisfy target. Smaller budgets mean more work is
// required; a target whose mantissa swamps its exponent term collapses
// the implied difficulty to 1, whose budget is math.MaxUint64: every hash
// passes.
func budgetFromTarget(target types.CompactTarget) uint64 {
	exponent := uint64(target >> 24)
	mantissa := uint64(target & 0x00ffffff)
	if mantissa == 0 {
		mantissa = 1
	}
	difficulty := (exponent + 1) * 1_000_000 / mantissa
	if difficulty == 0 {
		difficulty = 1
	}
	return math.MaxUint64 / difficulty
}

func (Dummy) Verify(header *types.Header, hasher types.Hasher) bool {
	hash := header.PowHash(hasher)
	value := binary.BigEndian.Uint64(hash[:8])
	return value <= budgetFromTarget(header.CompactTarget)
}

func (Dummy) Solve(header *types.Header, hasher types.Hasher, startNonce [16]byte, maxAttempts uint64) ([]byte, [16]byte, bool) {
	budget := budgetFromTarget(header.CompactTarget)
	nonce := startNonce
	working := *header
	for i := uint64(0); i < maxAttempts; i++ {
		working.Nonce = nonce
		hash := working.PowHash(hasher)
		if binary.BigEndian.Uint64(hash[:8]) <= budget {
			return hash.CloneBytes(), nonce, true
		}
		incrementNonce(&nonce)
	}
	return nil, nonce, false
}

// incrementNonce treats nonce as a 128-bit big-endian counter and adds one.
func incrementNonce(nonce *[16]byte) {
	for i := len(nonce) - 1; i >= 0; i-- {
		nonce[i]++
		if nonce[i] != 0 {
			return
		}
	}
}
