package types

import "fmt"

// HashType selects how a Script's CodeHash is matched against cell data, and
// which VM version the matched code runs under.
//
// The low bit distinguishes Data-style matching (code_hash == hash of a
// cell's data) from Type-style matching (code_hash == hash of a cell's type
// script); the remaining value enumerates the VM version for Data-style
// matches (Data -> VM0, Data1 -> VM1, Data2 -> VM2, ...).
type HashType uint8

const (
	// HashTypeData matches code_hash against the blake2b of a cell's data
	// and always executes under VM version 0.
	HashTypeData HashType = 0
	// HashTypeType matches code_hash against the hash of a cell's type
	// script and executes under VM version 0.
	HashTypeType HashType = 1
	// HashTypeData1 matches like HashTypeData but executes under VM
	// version 1.
	HashTypeData1 HashType = 2
	// HashTypeData2 matches like HashTypeData but executes under VM
	// version 2.
	HashTypeData2 HashType = 4
)

// IsTypeMatch reports whether this hash type resolves code by type-script
// hash rather than by data hash.
func (h HashType) IsTypeMatch() bool {
	return h == HashTypeType
}

// VMVersion returns the RISC-V VM version a Data-style hash type selects.
// Type-style hash types always run VM version 0.
func (h HashType) VMVersion() (version uint32, ok bool) {
	switch h {
	case HashTypeData, HashTypeType:
		return 0, true
	case HashTypeData1:
		return 1, true
	case HashTypeData2:
		return 2, true
	default:
		return 0, false
	}
}

func (h HashType) String() string {
	switch h {
	case HashTypeData:
		return "data"
	case HashTypeType:
		return "type"
	case HashTypeData1:
		return "data1"
	case HashTypeData2:
		return "data2"
	default:
		return fmt.Sprintf("hash_type(%d)", uint8(h))
	}
}

// Script references executable VM code either by its content hash
// (Data/Data1/Data2) or by the hash of some live cell's type script (Type).
type Script struct {
	CodeHash Hash32
	HashType HashType
	Args     []byte
}

// Hash computes the script hash used to group cells and to address
// Type-style code, over a deterministic serialization of the script.
func (s *Script) Hash(hasher Hasher) Hash32 {
	buf := make([]byte, 0, HashSize+1+len(s.Args))
	buf = append(buf, s.CodeHash[:]...)
	buf = append(buf, byte(s.HashType))
	buf = append(buf, s.Args...)
	return hasher.Hash(buf)
}

// Equal reports deep equality of two scripts, including nil-vs-nil.
func (s *Script) Equal(other *Script) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.CodeHash != other.CodeHash || s.HashType != other.HashType {
		return false
	}
	if len(s.Args) != len(other.Args) {
		return false
	}
	for i := range s.Args {
		if s.Args[i] != other.Args[i] {
			return false
		}
	}
	return true
}

// OccupiedCapacity returns the minimum capacity a CellOutput carrying this
// script (as lock or type) contributes to the cell's occupied-capacity
// floor: 33 fixed bytes (hash + hash_type) plus the serialized args.
func (s *Script) OccupiedCapacity() Capacity {
	if s == nil {
		return 0
	}
	return Capacity(HashSize + 1 + len(s.Args))
}

// Hasher abstracts the hash function used for script hashes, header
// digests and MMR nodes. Pluggable since spec.md leaves the concrete hash
// unspecified.
type Hasher interface {
	Hash(data []byte) Hash32
}
