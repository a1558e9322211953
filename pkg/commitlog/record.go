package commitlog

// NopInstr is the encoding of the canonical no-op (addi x0, x0, 0)
const NopInstr uint32 = 0x00000013

// MemKind tells loads from stores
type MemKind int

const (
	// MemLoad is a memory read. Its value is not part of the trace
	MemLoad MemKind = iota
	// MemStore is a memory write with a known value
	MemStore
)

// String returns the name of the access kind
func (k MemKind) String() string {
	switch k {
	case MemLoad:
		return "load"
	case MemStore:
		return "store"
	default:
		return "unknown"
	}
}

// RegWrite is an architectural register write. Both fields are kept as
// printed by the trace source since the canonical format reuses them verbatim.
type RegWrite struct {
	ID    string
	Value string
}

// MemAccess is a memory access issued by an instruction
type MemAccess struct {
	Kind MemKind

	// Addr is the address as printed by the trace source
	Addr string

	// Value is the stored value. Only meaningful for stores
	Value uint64
}

// Record is one committed instruction
type Record struct {
	PC    uint64
	Instr uint32
	Reg   *RegWrite
	Mem   *MemAccess
}

// Nop returns a no-op record at the given program counter
func Nop(pc uint64) Record {
	return Record{PC: pc, Instr: NopInstr}
}

// IsStore returns true if the record writes memory
func (r Record) IsStore() bool {
	return r.Mem != nil && r.Mem.Kind == MemStore
}

// IsLoad returns true if the record reads memory
func (r Record) IsLoad() bool {
	return r.Mem != nil && r.Mem.Kind == MemLoad
}
