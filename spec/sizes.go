package spec

const (
	// CellBits is the size of an operand stack cell in bits.
	CellBits = 64
	// CellBytes is the size of an operand stack cell in bytes.
	CellBytes = CellBits / 8

	// ImmBytes is the size of the Push literal.
	// It is encoded little endian.
	ImmBytes = 8
	// OffsetBytes is the size of the signed Jmp and Jz displacement.
	// It is encoded little endian.
	OffsetBytes = 4

	// PrintBits is the number of low bits of a cell that Print converts.
	PrintBits = 32
	// PrintScratch is the room above the stack top that Print builds its digits in.
	// The same number of bytes separates the end of the stack from the heap,
	// so Print never reaches the heap at any legal depth.
	PrintScratch = 32
)
