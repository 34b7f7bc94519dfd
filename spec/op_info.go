package spec

import "fmt"

// Info is information about Operations
type Info struct {
	Name string `json:"name"`
	// OperandBytes is the number of bytes following the opcode.
	OperandBytes int `json:"operandBytes"`
	// InDegree is the number of cells popped from the operand stack.
	InDegree int `json:"inDegree"`
	// OutDegree is the number of cells pushed onto the operand stack.
	OutDegree int `json:"outDegree"`
}

func (p Op) Info() Info {
	return infos[p]
}

// Known returns true if p has an entry in the instruction set.
func (p Op) Known() bool {
	return infos[p].Name != ""
}

// Len returns the encoded length of an instruction starting with p.
// Unknown opcodes have a length of 1, the dispatch loop skips them.
func (p Op) Len() int {
	return 1 + infos[p].OperandBytes
}

// InDegree returns the number of cells the operation pops.
func (p Op) InDegree() int {
	return infos[p].InDegree
}

// OutDegree returns the number of cells the operation pushes.
func (p Op) OutDegree() int {
	return infos[p].OutDegree
}

func (p Op) String() string {
	if name := infos[p].Name; name != "" {
		return name
	}
	return fmt.Sprintf("Op(0x%02x)", uint8(p))
}

var infos = func() (ret [1 << OpBits]Info) {
	m := map[Op]Info{
		Nop: {"NOP", 0, 0, 0},

		Push:  {"PUSH", ImmBytes, 0, 1},
		Pop:   {"POP", 0, 1, 0},
		Add:   {"ADD", 0, 2, 1},
		Sub:   {"SUB", 0, 2, 1},
		Jmp:   {"JMP", OffsetBytes, 0, 0},
		Jz:    {"JZ", OffsetBytes, 1, 0},
		Eq:    {"EQ", 0, 2, 1},
		Dup:   {"DUP", 0, 1, 2},
		Print: {"PRINT", 0, 1, 0},

		// Memory
		Load:  {"LOAD", 0, 1, 1},
		Store: {"STORE", 0, 2, 0},

		// Host I/O
		Open:  {"OPEN", 0, 2, 1},
		Write: {"WRITE", 0, 3, 0},
		Close: {"CLOSE", 0, 1, 0},
		Read:  {"READ", 0, 3, 1},

		Exit: {"EXIT", 0, 1, 0},
	}
	for k, v := range m {
		ret[k] = v
	}
	return ret
}()
