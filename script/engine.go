// Package script runs a transaction's lock and type scripts against the
// RV64I/M interpreter in package riscv, metering cycles with package cost
// and servicing environment calls with package syscalls, per spec.md §4.4.
//
// Grounded on txscript/engine.go's shape: a per-script Engine value built
// from the transaction and its resolved inputs, executed once per script
// group, with a running cost counter standing in for txscript's opcode
// counter.
package script

import (
	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/script/cost"
	"github.com/nervosnetwork/ckb-sub009/script/riscv"
	"github.com/nervosnetwork/ckb-sub009/script/syscalls"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// ErrCycleLimitExceeded is returned when a script's accumulated cycle cost
// exceeds the budget it was given.
var ErrCycleLimitExceeded = errors.New("script: cycle limit exceeded")

// ErrNoCode is returned when a script's CodeHash does not resolve to any
// cell in CodeLoader.
var ErrNoCode = errors.New("script: code cell not found")

// ErrNonZeroExitCode is returned when a script halts with a non-zero exit
// code, meaning verification of the owning group failed.
var ErrNonZeroExitCode = errors.New("script: non-zero exit code")

// CodeResolver maps a Script to the RISC-V binary it names, per spec.md
// §4.4's code_hash/hash_type resolution rules.
type CodeResolver interface {
	ResolveCode(s *types.Script) (code []byte, err error)
}

// Group bundles one lock or type script with the input/output indices it
// governs, as spec.md §4.4 requires scripts be verified once per distinct
// (script, role) pair rather than once per cell.
type Group struct {
	Script       *types.Script
	InputIndices  []int
	OutputIndices []int
}

// DefaultMemorySize is the flat address space given to each script
// invocation; scripts that need more must request it via syscalls not
// modeled here (this interpreter gives every script the same fixed
// envelope, a simplification over the original's configurable VM memory
// size).
const DefaultMemorySize = 4 * 1024 * 1024

// DefaultEntryPoint is the address code is loaded at and execution begins
// from.
const DefaultEntryPoint = 0x10000

// RunGroup executes one script group to completion, charging cycles
// against budget and returning the cycles actually consumed. A script that
// runs to an ECALL exit with a non-zero code, or that exhausts its
// instruction budget, is a verification failure.
func RunGroup(resolver CodeResolver, loader syscalls.Loader, hasher types.Hasher, tx *types.Transaction, g *Group, budget types.Cycle, debugSink func(types.Hash32, string)) (types.Cycle, error) {
	code, err := resolver.ResolveCode(g.Script)
	if err != nil {
		return 0, err
	}
	if len(code) == 0 {
		return 0, ErrNoCode
	}

	vmVersion, ok := g.Script.HashType.VMVersion()
	if !ok {
		return 0, errors.Errorf("script: unknown hash type %s", g.Script.HashType)
	}

	var spent types.Cycle

	m := riscv.NewMachine(DefaultMemorySize, DefaultEntryPoint, vmVersion)
	if DefaultEntryPoint+len(code) > len(m.Mem) {
		return 0, errors.New("script: code too large for VM memory")
	}
	copy(m.Mem[DefaultEntryPoint:], code)
	m.PC = DefaultEntryPoint
	m.Regs[riscv.RegSP] = uint64(len(m.Mem))

	ctx := &syscalls.Context{
		Tx:            tx,
		Loader:        loader,
		Hasher:        hasher,
		CurrentScript: g.Script,
		DebugSink:     debugSink,
	}
	m.Ecall = func(mach *riscv.Machine) error {
		n, err := syscalls.Dispatch(ctx, mach)
		if err != nil {
			return err
		}
		transferCycles := cost.SyscallTransferCycles(n)
		if spent+transferCycles > budget {
			return ErrCycleLimitExceeded
		}
		spent += transferCycles
		return nil
	}

	for !m.Halted() {
		class, err := m.Step()
		if err != nil {
			return spent, err
		}
		spent += cost.Cycles(cost.InstructionClass(class), vmVersion)
		if spent > budget {
			return spent, ErrCycleLimitExceeded
		}
	}
	if code := m.ExitCode(); code != 0 {
		return spent, errors.Wrapf(ErrNonZeroExitCode, "script %s exited %d", g.Script.Hash(hasher), code)
	}
	return spent, nil
}
