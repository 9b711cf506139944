// Package cost holds the RISC-V per-instruction cycle table and the
// syscall byte-transfer surcharge, per spec.md §4.4.
package cost

import "github.com/nervosnetwork/ckb-sub009/types"

// InstructionClass buckets decoded instructions into the cost categories
// spec.md names.
type InstructionClass uint8

const (
	ClassALU InstructionClass = iota
	ClassLoadStore
	ClassBranch
	ClassMul
	ClassDivRem
	ClassEnvironmentCall // free itself; the invoked syscall charges below
	ClassOther
)

// Cycles gives the fixed per-instruction cost for a class under vmVersion,
// before any syscall byte surcharge. VM version 1 halves the division
// class's cost, matching the hardfork's cheaper DIV/REM costing; every
// other class is unchanged across versions.
func Cycles(class InstructionClass, vmVersion uint32) types.Cycle {
	switch class {
	case ClassALU:
		return 1
	case ClassLoadStore:
		return 3
	case ClassBranch:
		return 2
	case ClassMul:
		return 5
	case ClassDivRem:
		if vmVersion >= 1 {
			return 8
		}
		return 16
	case ClassEnvironmentCall:
		return 0
	default:
		return 1
	}
}

// bytesPerCycle is the byte-transfer rate a syscall's data movement is
// charged at, on top of the fixed environment-call cost of zero.
const bytesPerCycle = 1024

// SyscallTransferCycles charges a syscall proportionally to the bytes it
// copies into the caller's buffer, rounding up so a short read isn't free.
func SyscallTransferCycles(bytesTransferred int) types.Cycle {
	if bytesTransferred <= 0 {
		return 0
	}
	return types.Cycle((bytesTransferred + bytesPerCycle - 1) / bytesPerCycle)
}
