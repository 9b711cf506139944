package script

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/nervosnetwork/ckb-sub009/script/syscalls"
	"github.com/nervosnetwork/ckb-sub009/types"
)

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) types.Hash32 { return sha256.Sum256(data) }

type codeMap map[types.Hash32][]byte

func (c codeMap) ResolveCode(s *types.Script) ([]byte, error) {
	code, ok := c[s.CodeHash]
	if !ok {
		return nil, ErrNoCode
	}
	return code, nil
}

type nullLoader struct{}

func (nullLoader) CellDep(int) (syscalls.ResolvedCell, error)  { return syscalls.ResolvedCell{}, nil }
func (nullLoader) Input(int) (types.CellInput, syscalls.ResolvedCell, error) {
	return types.CellInput{}, syscalls.ResolvedCell{}, nil
}
func (nullLoader) HeaderDep(int) (types.Header, error)  { return types.Header{}, nil }
func (nullLoader) GroupInputIndices() []int             { return nil }
func (nullLoader) GroupOutputIndices() []int            { return nil }

// encodeAddi hand-encodes the RV64I instruction ADDI rd, rs1, imm; with
// encodeEcall it builds tiny programs such as ADDI a0, zero, 0 (exit
// success) followed by ECALL with a7 preloaded to the exit syscall.
func encodeAddi(rd, rs1 int, imm int32) uint32 {
	return uint32(imm)<<20 | uint32(rs1)<<15 | 0<<12 | uint32(rd)<<7 | 0x13
}

func encodeEcall() uint32 { return 0x73 }

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestRunGroupExitsSuccess(t *testing.T) {
	var code []byte
	// addi a0, zero, 0
	code = append(code, le32(encodeAddi(10, 0, 0))...)
	// addi a7, zero, 93 (exit)
	code = append(code, le32(encodeAddi(17, 0, 93))...)
	code = append(code, le32(encodeEcall())...)

	var codeHash types.Hash32
	codeHash[0] = 0xaa
	resolver := codeMap{codeHash: code}

	s := &types.Script{CodeHash: codeHash, HashType: types.HashTypeData}
	group := &Group{Script: s, InputIndices: []int{0}}

	tx := &types.Transaction{}
	cycles, err := RunGroup(resolver, nullLoader{}, sha256Hasher{}, tx, group, types.Cycle(1000), nil)
	if err != nil {
		t.Fatalf("RunGroup: %v", err)
	}
	if cycles == 0 {
		t.Fatalf("expected non-zero cycle count")
	}
}

func TestRunGroupNonZeroExitFails(t *testing.T) {
	var code []byte
	// addi a0, zero, 1
	code = append(code, le32(encodeAddi(10, 0, 1))...)
	code = append(code, le32(encodeAddi(17, 0, 93))...)
	code = append(code, le32(encodeEcall())...)

	var codeHash types.Hash32
	codeHash[0] = 0xbb
	resolver := codeMap{codeHash: code}

	s := &types.Script{CodeHash: codeHash, HashType: types.HashTypeData}
	group := &Group{Script: s}

	tx := &types.Transaction{}
	_, err := RunGroup(resolver, nullLoader{}, sha256Hasher{}, tx, group, types.Cycle(1000), nil)
	if err == nil {
		t.Fatalf("expected non-zero exit code to fail verification")
	}
}

func TestRunGroupCycleLimitExceeded(t *testing.T) {
	// An infinite loop: jal zero, 0 (branch to self) never reaches ecall.
	jal := uint32(0)<<31 | uint32(0)<<7 | 0x6f // imm=0, rd=0 -> infinite self-jump
	var code []byte
	code = append(code, le32(jal)...)

	var codeHash types.Hash32
	codeHash[0] = 0xcc
	resolver := codeMap{codeHash: code}

	s := &types.Script{CodeHash: codeHash, HashType: types.HashTypeData}
	group := &Group{Script: s}

	tx := &types.Transaction{}
	_, err := RunGroup(resolver, nullLoader{}, sha256Hasher{}, tx, group, types.Cycle(50), nil)
	if err != ErrCycleLimitExceeded {
		t.Fatalf("expected ErrCycleLimitExceeded, got %v", err)
	}
}
