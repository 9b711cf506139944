package types

import "github.com/pkg/errors"

// ShannonsPerCKB is the number of Shannons (the smallest Capacity subunit)
// in one CKB token.
const ShannonsPerCKB Capacity = 100_000_000

// Capacity is an unsigned 64-bit count of Shannons. Arithmetic on Capacity
// must detect overflow since it is bounded by the total possible issuance.
type Capacity uint64

// ErrCapacityOverflow is returned by Capacity arithmetic helpers when the
// result would overflow a uint64.
var ErrCapacityOverflow = errors.New("types: capacity overflow")

// SafeAdd returns c+other, or ErrCapacityOverflow if the sum overflows.
func (c Capacity) SafeAdd(other Capacity) (Capacity, error) {
	sum := c + other
	if sum < c {
		return 0, ErrCapacityOverflow
	}
	return sum, nil
}

// SafeSub returns c-other, or ErrCapacityOverflow if other > c.
func (c Capacity) SafeSub(other Capacity) (Capacity, error) {
	if other > c {
		return 0, ErrCapacityOverflow
	}
	return c - other, nil
}

// SumCapacity adds a slice of capacities, detecting overflow.
func SumCapacity(cs []Capacity) (Capacity, error) {
	var total Capacity
	var err error
	for _, c := range cs {
		total, err = total.SafeAdd(c)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
