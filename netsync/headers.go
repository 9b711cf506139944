package netsync

import (
	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/types"
)

var (
	ErrTooManyHeaders   = errors.New("netsync: headers reply exceeds MaxHeadersLen")
	ErrHeaderChainBroken = errors.New("netsync: header does not extend its predecessor")
)

// ValidateHeaderChain checks a SendHeaders reply against spec.md §4.9:
// bounded length and strict parent-child linkage, either to priorTip (the
// peer's previously known best header) or internally within the batch.
// An empty headers slice is valid and means the peer has nothing new.
func ValidateHeaderChain(headers []types.Header, hasher types.Hasher, priorTip types.Hash32) error {
	if len(headers) > MaxHeadersLen {
		return ErrTooManyHeaders
	}
	expectedParent := priorTip
	for i, h := range headers {
		if i == 0 && expectedParent == (types.Hash32{}) {
			// No known prior tip for this peer yet (first sync round);
			// accept whatever parent the first header claims and chain
			// from there.
			expectedParent = h.ParentHash
		}
		if h.ParentHash != expectedParent {
			return errors.Wrapf(ErrHeaderChainBroken, "header %d", i)
		}
		expectedParent = h.Hash(hasher)
	}
	return nil
}

// BestHeader returns the last (highest) header in a validated chain, or
// false if headers is empty.
func BestHeader(headers []types.Header) (types.Header, bool) {
	if len(headers) == 0 {
		return types.Header{}, false
	}
	return headers[len(headers)-1], true
}
