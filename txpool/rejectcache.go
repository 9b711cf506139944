package txpool

import (
	"github.com/nervosnetwork/ckb-sub009/store"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// RejectReason enumerates why the pool refused a transaction, per spec.md
// §7's "Pool Reject" taxonomy.
type RejectReason uint8

const (
	RejectLowFeeRate RejectReason = iota
	RejectExceededMaximumAncestorsCount
	RejectFull
	RejectDuplicated
	RejectMalformed
	RejectDeclaredWrongCycles
	RejectResolve
	RejectVerification
	RejectExpiry
	RejectExceededTransactionSizeLimit
	RejectRBFRejected
)

func (r RejectReason) String() string {
	switch r {
	case RejectLowFeeRate:
		return "low-fee-rate"
	case RejectExceededMaximumAncestorsCount:
		return "exceeded-maximum-ancestors-count"
	case RejectFull:
		return "full"
	case RejectDuplicated:
		return "duplicated"
	case RejectMalformed:
		return "malformed"
	case RejectDeclaredWrongCycles:
		return "declared-wrong-cycles"
	case RejectResolve:
		return "resolve"
	case RejectVerification:
		return "verification"
	case RejectExpiry:
		return "expiry"
	case RejectExceededTransactionSizeLimit:
		return "exceeded-transaction-size-limit"
	case RejectRBFRejected:
		return "rbf-rejected"
	default:
		return "unknown"
	}
}

// DefaultRejectCacheTTLSeconds is how long a rejected hash is remembered
// before the pool will attempt to re-verify it.
const DefaultRejectCacheTTLSeconds = 3600

// rejectCache wraps a store.TTLDB keyed by transaction hash, mapping to a
// single reason byte.
type rejectCache struct {
	db store.TTLDB
}

func newRejectCache(db store.TTLDB) *rejectCache {
	return &rejectCache{db: db}
}

func (c *rejectCache) put(id types.Hash32, reason RejectReason) error {
	return c.db.PutTTL(id[:], []byte{byte(reason)}, DefaultRejectCacheTTLSeconds)
}

func (c *rejectCache) get(id types.Hash32) (RejectReason, bool) {
	v, err := c.db.Get(id[:])
	if err != nil || len(v) == 0 {
		return 0, false
	}
	return RejectReason(v[0]), true
}

func (c *rejectCache) remove(id types.Hash32) error {
	return c.db.Delete(id[:])
}
