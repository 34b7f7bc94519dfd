// package spec contains the bytecode instruction set
package spec

// OpBits is the number of bits needed to encode an Op
const OpBits = 8

// Op is a bytecode operation code.
// Every instruction starts with exactly one Op byte.
type Op uint8

const (
	// Nop does nothing. It is never dispatched, the default path skips it.
	Nop Op = 0x00

	// Push [v: i64] => v
	Push Op = 0x01
	// Pop (x) =>
	Pop Op = 0x02
	// Add (a, b) => a + b
	Add Op = 0x03
	// Sub (a, b) => a - b
	// a is the operand that was pushed first.
	Sub Op = 0x04
	// Jmp [off: i32]
	// The offset is relative to the start of the Jmp instruction.
	Jmp Op = 0x05
	// Jz [off: i32] (cond) =>
	// Jumps like Jmp when cond == 0, otherwise falls through.
	Jz Op = 0x06
	// Eq (a, b) => a == b ? 1 : 0
	Eq Op = 0x07
	// Dup (x) => x, x
	Dup Op = 0x08
	// Print (v) =>
	// Writes the low 32 bits of v as unsigned decimal followed by '\n' to stdout.
	Print Op = 0x09
)

const (
	// Load (addr) => mem[addr]
	// addr is relative to the base of the code buffer.
	Load Op = 0x0A
	// Store (val, addr) =>
	// addr is relative to the base of the code buffer.
	Store Op = 0x0B
)

const (
	// Open (namePtr, mode) => fd
	// namePtr is relative to the heap base. mode 1 opens for writing.
	Open Op = 0x0C
	// Write (fd, ptr, len) =>
	Write Op = 0x0D
	// Close (fd) =>
	Close Op = 0x0E
	// Read (fd, ptr, len) => n
	Read Op = 0x0F
)

const (
	// Exit (code) => ⊥
	Exit Op = 0xFF
)

// OpenModeWrite is the Open mode which creates or truncates a file for writing.
// Any other mode opens the file read-only.
const OpenModeWrite = 1

// OpenPerm is the permission used when Open creates a file.
const OpenPerm = 0o644
