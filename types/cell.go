package types

// CellOutput is a UTXO-like output without its associated data: a capacity
// guarded by a lock script and, optionally, a type script that constrains
// state transitions involving this cell.
type CellOutput struct {
	Capacity Capacity
	Lock     *Script
	Type     *Script
}

// cellOutputFixedBytes is the serialized overhead of a CellOutput excluding
// its scripts and data: 8 bytes capacity + 1 byte each for the two script
// option discriminants.
const cellOutputFixedBytes = 8 + 2

// OccupiedCapacity returns the minimum capacity this output must carry,
// computed as a linear function of the output's serialized size (capacity
// field + lock script + type script + associated data), per spec.md §3.
func (o *CellOutput) OccupiedCapacity(data []byte) Capacity {
	total := Capacity(cellOutputFixedBytes + len(data))
	total += o.Lock.OccupiedCapacity()
	total += o.Type.OccupiedCapacity()
	return total * ShannonsPerCKB
}

// CellInput references a consumed cell and the since-lock guarding it.
type CellInput struct {
	PreviousOutput OutPoint
	Since          Since
}

// IsCellbaseInput reports whether this input is the null reference used by
// the single cellbase input of every block's first transaction.
func (i CellInput) IsCellbaseInput() bool {
	return i.PreviousOutput.IsNull()
}

// CellDep references a cell used as a read-only dependency: either a direct
// cell (code or state a script needs) or, when DepGroup, a cell whose data
// is itself a list of further OutPoints to expand.
type CellDep struct {
	OutPoint OutPoint
	DepType  DepType
}

// DepType distinguishes a plain cell dependency from a dep-group expansion.
type DepType uint8

const (
	// DepTypeCode references a single cell directly.
	DepTypeCode DepType = 0
	// DepTypeDepGroup references a cell whose data is a serialized list
	// of OutPoints to expand into further cell deps.
	DepTypeDepGroup DepType = 1
)
