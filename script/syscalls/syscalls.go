// Package syscalls implements the environment calls a running script can
// make to read transaction data, per spec.md §4.4. Each syscall is a plain
// function over a *Context taking/returning RISC-V register values so
// package script's Ecall dispatcher can wire them onto a riscv.Machine
// with a single switch on A7.
//
// Grounded on txscript/engine.go's exposure of sigscript/pubkey data to
// opcodes, generalized from "push bytes from the script program" to
// "load bytes from named transaction fields into VM memory".
package syscalls

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/script/riscv"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// Number identifies a syscall by its A7 value.
type Number uint64

const (
	NumberExit            Number = 93
	NumberLoadTransaction  Number = 2051
	NumberLoadScript       Number = 2052
	NumberLoadCell         Number = 2053
	NumberLoadCellData     Number = 2054
	NumberLoadInput        Number = 2055
	NumberLoadHeader       Number = 2056
	NumberLoadWitness      Number = 2057
	NumberLoadScriptHash   Number = 2058
	NumberLoadCellDataHash Number = 2059
	NumberDebug            Number = 2177
)

// Source identifies which collection an index is resolved against.
type Source uint64

const (
	SourceInput          Source = 1
	SourceOutput         Source = 2
	SourceCellDep         Source = 3
	SourceHeaderDep       Source = 4
	SourceGroupInput      Source = 0x0100000001
	SourceGroupOutput     Source = 0x0100000002
)

// ErrIndexOutOfBound is returned when index has no meaning for source.
var ErrIndexOutOfBound = errors.New("syscalls: index out of bound")

// ErrItemMissing is returned when a dependency a syscall would read
// (a CellDep's pointed-to cell, a HeaderDep's header) is not resolvable
// from the Context's loader.
var ErrItemMissing = errors.New("syscalls: item missing")

// ResolvedCell is a CellOutput plus the data the chain engine resolved it
// to, handed to a script without it re-walking cell_deps itself.
type ResolvedCell struct {
	Output types.CellOutput
	Data   []byte
}

// Loader resolves a Context's transaction against the chain state backing
// it: cell_deps, header_deps and the current script's group membership.
type Loader interface {
	CellDep(index int) (ResolvedCell, error)
	Input(index int) (types.CellInput, ResolvedCell, error)
	HeaderDep(index int) (types.Header, error)
	GroupInputIndices() []int
	GroupOutputIndices() []int
}

// Context bundles everything a syscall needs: the transaction under
// verification, its resolved dependencies, which script (lock or type) is
// currently executing, and the hasher used for script/cell-data hashes.
type Context struct {
	Tx       *types.Transaction
	Loader   Loader
	Hasher   types.Hasher
	CurrentScript *types.Script
	DebugSink func(scriptHash types.Hash32, message string)
}

// Dispatch services one ECALL on m, routing A7 to the matching syscall and
// writing results into the requested VM memory buffer. It returns the
// number of bytes transferred into VM memory so the caller can charge
// package cost's SyscallTransferCycles.
func Dispatch(ctx *Context, m *riscv.Machine) (int, error) {
	switch Number(m.Regs[riscv.RegA7]) {
	case NumberExit:
		m.Halt(int8(m.Regs[riscv.RegA0]))
		return 0, nil
	case NumberLoadTransaction:
		return loadBytes(ctx, m, serializeTransaction(ctx.Tx))
	case NumberLoadScript:
		return loadBytes(ctx, m, serializeScript(ctx.CurrentScript))
	case NumberLoadScriptHash:
		h := ctx.CurrentScript.Hash(ctx.Hasher)
		return loadBytes(ctx, m, h[:])
	case NumberLoadCell:
		return dispatchCell(ctx, m, false)
	case NumberLoadCellData:
		return dispatchCell(ctx, m, true)
	case NumberLoadCellDataHash:
		n, data, err := resolveCellBySourceIndex(ctx, Source(m.Regs[riscv.RegA3]), int(m.Regs[riscv.RegA2]))
		if err != nil {
			return 0, err
		}
		_ = n
		h := ctx.Hasher.Hash(data.Data)
		return loadBytes(ctx, m, h[:])
	case NumberLoadInput:
		return dispatchInput(ctx, m)
	case NumberLoadHeader:
		idx := int(m.Regs[riscv.RegA2])
		hdr, err := ctx.Loader.HeaderDep(idx)
		if err != nil {
			return 0, err
		}
		return loadBytes(ctx, m, serializeHeader(&hdr))
	case NumberLoadWitness:
		idx := int(m.Regs[riscv.RegA2])
		if idx < 0 || idx >= len(ctx.Tx.Witnesses) {
			return 0, ErrIndexOutOfBound
		}
		return loadBytes(ctx, m, ctx.Tx.Witnesses[idx])
	case NumberDebug:
		msg, err := readCString(m, m.Regs[riscv.RegA0])
		if err != nil {
			return 0, err
		}
		if ctx.DebugSink != nil {
			ctx.DebugSink(ctx.CurrentScript.Hash(ctx.Hasher), msg)
		}
		return 0, nil
	default:
		return 0, errors.Errorf("syscalls: unknown syscall number %d", m.Regs[riscv.RegA7])
	}
}

func dispatchCell(ctx *Context, m *riscv.Machine, wantData bool) (int, error) {
	source := Source(m.Regs[riscv.RegA3])
	index := int(m.Regs[riscv.RegA2])
	_, cell, err := resolveCellBySourceIndex(ctx, source, index)
	if err != nil {
		return 0, err
	}
	if wantData {
		return loadBytes(ctx, m, cell.Data)
	}
	return loadBytes(ctx, m, serializeCellOutput(&cell.Output))
}

func dispatchInput(ctx *Context, m *riscv.Machine) (int, error) {
	source := Source(m.Regs[riscv.RegA3])
	index := int(m.Regs[riscv.RegA2])
	idx, err := resolveIndex(ctx, source, index)
	if err != nil {
		return 0, err
	}
	input, _, err := ctx.Loader.Input(idx)
	if err != nil {
		return 0, err
	}
	return loadBytes(ctx, m, serializeCellInput(&input))
}

// resolveIndex maps a (source, index) pair onto a concrete input index,
// honoring the group sources' indirection through the current script's
// membership list.
func resolveIndex(ctx *Context, source Source, index int) (int, error) {
	switch source {
	case SourceInput:
		return index, nil
	case SourceGroupInput:
		members := ctx.Loader.GroupInputIndices()
		if index < 0 || index >= len(members) {
			return 0, ErrIndexOutOfBound
		}
		return members[index], nil
	default:
		return 0, ErrIndexOutOfBound
	}
}

func resolveCellBySourceIndex(ctx *Context, source Source, index int) (int, ResolvedCell, error) {
	switch source {
	case SourceInput:
		_, cell, err := ctx.Loader.Input(index)
		return index, cell, err
	case SourceGroupInput:
		idx, err := resolveIndex(ctx, source, index)
		if err != nil {
			return 0, ResolvedCell{}, err
		}
		_, cell, err := ctx.Loader.Input(idx)
		return idx, cell, err
	case SourceOutput, SourceGroupOutput:
		members := ctx.Loader.GroupOutputIndices()
		idx := index
		if source == SourceGroupOutput {
			if index < 0 || index >= len(members) {
				return 0, ResolvedCell{}, ErrIndexOutOfBound
			}
			idx = members[index]
		}
		if idx < 0 || idx >= len(ctx.Tx.Outputs) {
			return 0, ResolvedCell{}, ErrIndexOutOfBound
		}
		var data []byte
		if idx < len(ctx.Tx.OutputsData) {
			data = ctx.Tx.OutputsData[idx]
		}
		return idx, ResolvedCell{Output: ctx.Tx.Outputs[idx], Data: data}, nil
	case SourceCellDep:
		cell, err := ctx.Loader.CellDep(index)
		return index, cell, err
	default:
		return 0, ResolvedCell{}, ErrIndexOutOfBound
	}
}

// loadBytes copies data into the VM memory region the caller described in
// A0 (dest addr)/A1 (dest len ptr), honoring partial reads starting at the
// offset in A4, and returns how many bytes were actually transferred.
func loadBytes(ctx *Context, m *riscv.Machine, data []byte) (int, error) {
	destAddr := m.Regs[riscv.RegA0]
	lenAddr := m.Regs[riscv.RegA1]
	offset := m.Regs[riscv.RegA4]

	avail, err := readMemory(m, lenAddr, 8)
	if err != nil {
		return 0, err
	}
	destCap := binary.LittleEndian.Uint64(avail)

	if offset > uint64(len(data)) {
		offset = uint64(len(data))
	}
	remaining := data[offset:]

	full := make([]byte, 8)
	binary.LittleEndian.PutUint64(full, uint64(len(remaining)))
	if err := writeMemory(m, lenAddr, full); err != nil {
		return 0, err
	}

	n := uint64(len(remaining))
	if n > destCap {
		n = destCap
	}
	if n == 0 {
		return 0, nil
	}
	if err := writeMemory(m, destAddr, remaining[:n]); err != nil {
		return 0, err
	}
	return int(n), nil
}

func readMemory(m *riscv.Machine, addr uint64, n int) ([]byte, error) {
	if addr+uint64(n) > uint64(len(m.Mem)) {
		return nil, riscv.ErrMemoryFault
	}
	out := make([]byte, n)
	copy(out, m.Mem[addr:addr+uint64(n)])
	return out, nil
}

func writeMemory(m *riscv.Machine, addr uint64, data []byte) error {
	if addr+uint64(len(data)) > uint64(len(m.Mem)) {
		return riscv.ErrMemoryFault
	}
	copy(m.Mem[addr:], data)
	return nil
}

func readCString(m *riscv.Machine, addr uint64) (string, error) {
	const maxLen = 4096
	for i := 0; i < maxLen; i++ {
		if addr+uint64(i) >= uint64(len(m.Mem)) {
			return "", riscv.ErrMemoryFault
		}
		if m.Mem[addr+uint64(i)] == 0 {
			return string(m.Mem[addr : addr+uint64(i)]), nil
		}
	}
	return "", errors.New("syscalls: debug message exceeds maximum length")
}

func serializeCellOutput(o *types.CellOutput) []byte {
	buf := make([]byte, 0, 8+64)
	buf = appendUint64(buf, uint64(o.Capacity))
	buf = appendScript(buf, o.Lock)
	buf = appendScript(buf, o.Type)
	return buf
}

func serializeCellInput(i *types.CellInput) []byte {
	buf := make([]byte, 0, 44)
	buf = append(buf, i.PreviousOutput.TxHash[:]...)
	buf = appendUint32(buf, i.PreviousOutput.Index)
	buf = appendUint64(buf, uint64(i.Since))
	return buf
}

func serializeScript(s *types.Script) []byte {
	if s == nil {
		return nil
	}
	buf := make([]byte, 0, types.HashSize+1+len(s.Args))
	buf = append(buf, s.CodeHash[:]...)
	buf = append(buf, byte(s.HashType))
	buf = append(buf, s.Args...)
	return buf
}

func appendScript(buf []byte, s *types.Script) []byte {
	if s == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return append(buf, serializeScript(s)...)
}

func serializeHeader(h *types.Header) []byte {
	buf := make([]byte, 0, 128)
	buf = appendUint32(buf, h.Version)
	buf = appendUint32(buf, uint32(h.CompactTarget))
	buf = appendUint64(buf, h.TimestampMs)
	buf = appendUint64(buf, uint64(h.Number))
	buf = appendUint64(buf, uint64(h.Epoch))
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.TransactionsRoot[:]...)
	return buf
}

func serializeTransaction(tx *types.Transaction) []byte {
	buf := make([]byte, 0, 256)
	buf = appendUint32(buf, tx.Version)
	for _, d := range tx.CellDeps {
		buf = append(buf, d.OutPoint.TxHash[:]...)
		buf = appendUint32(buf, d.OutPoint.Index)
		buf = append(buf, byte(d.DepType))
	}
	for _, h := range tx.HeaderDeps {
		buf = append(buf, h[:]...)
	}
	for _, in := range tx.Inputs {
		buf = append(buf, serializeCellInput(&in)...)
	}
	for i, out := range tx.Outputs {
		buf = append(buf, serializeCellOutput(&out)...)
		if i < len(tx.OutputsData) {
			buf = appendBytes(buf, tx.OutputsData[i])
		}
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendBytes(buf []byte, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v)))
	return append(buf, v...)
}
