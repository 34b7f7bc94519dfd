// package amd64 is a small x86-64 assembler.
//
// It only knows the instruction forms the interpreter engine is built from.
// Forward references to code or data are recorded as fixups against named
// labels and resolved by Link once every label has an offset.
package amd64

import "fmt"

// Reg is a general purpose register, numbered as in the ModRM encoding.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var regNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", uint8(r))
}

// low returns the 3 bits that go in ModRM, SIB or the opcode.
func (r Reg) low() byte {
	return byte(r) & 7
}

// ext returns the bit that goes in REX.R, REX.X or REX.B.
func (r Reg) ext() byte {
	return (byte(r) >> 3) & 1
}

// needsRex8 is true for SPL, BPL, SIL and DIL, which are only addressable with a REX prefix.
func (r Reg) needsRex8() bool {
	return r >= RSP && r <= RDI
}

// Mem is a memory operand: [Base + Index + Disp].
type Mem struct {
	Base     Reg
	Index    Reg
	HasIndex bool
	Disp     int32
}

// Ptr returns the operand [base + disp].
func Ptr(base Reg, disp int32) Mem {
	return Mem{Base: base, Disp: disp}
}

// Indexed returns the operand [base + index].
func Indexed(base, index Reg) Mem {
	return Mem{Base: base, Index: index, HasIndex: true}
}

func (m Mem) String() string {
	s := m.Base.String()
	if m.HasIndex {
		s += "+" + m.Index.String()
	}
	switch {
	case m.Disp > 0:
		s += fmt.Sprintf("+%#x", m.Disp)
	case m.Disp < 0:
		s += fmt.Sprintf("-%#x", -int64(m.Disp))
	}
	return "[" + s + "]"
}

// Cond is a condition code, as encoded in the low nibble of Jcc and SETcc.
type Cond uint8

const (
	CondE  Cond = 0x4
	CondNE Cond = 0x5
	CondS  Cond = 0x8
	CondLE Cond = 0xE
)

// Aliases used when the flags come from TEST.
const (
	CondZ  = CondE
	CondNZ = CondNE
)
