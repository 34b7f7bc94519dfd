package mvmprog

import (
	"fmt"

	"morphasm.org/morph/spec"
)

// Line is one instruction of a listing.
type Line struct {
	Offset int
	Instr  spec.Instr
	// Err is set for a trailing instruction whose operand is cut off.
	Err error
}

// Target returns the jump destination, if the instruction is a jump.
func (l Line) Target() (int, bool) {
	switch l.Instr.Op {
	case spec.Jmp, spec.Jz:
		return l.Offset + int(l.Instr.Imm), true
	default:
		return 0, false
	}
}

func (l Line) String() string {
	if l.Err != nil {
		return fmt.Sprintf("%04x: <%v>", l.Offset, l.Err)
	}
	if target, ok := l.Target(); ok {
		return fmt.Sprintf("%04x: %v (-> %04x)", l.Offset, l.Instr, target)
	}
	if !l.Instr.Op.Known() {
		return fmt.Sprintf("%04x: db 0x%02x", l.Offset, byte(l.Instr.Op))
	}
	return fmt.Sprintf("%04x: %v", l.Offset, l.Instr)
}

// Disassemble lists every instruction in code.
// Unknown bytes are listed one at a time, the way the engine skips them.
func Disassemble(code []byte) []Line {
	var lines []Line
	for ip := 0; ip < len(code); {
		in, err := spec.Decode(code, ip)
		if err != nil {
			lines = append(lines, Line{Offset: ip, Instr: spec.Instr{Op: spec.Op(code[ip])}, Err: err})
			break
		}
		lines = append(lines, Line{Offset: ip, Instr: in})
		ip += in.Len()
	}
	return lines
}
