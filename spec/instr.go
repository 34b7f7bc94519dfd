package spec

import (
	"encoding/binary"
	"fmt"
)

// Instr is a single decoded instruction.
type Instr struct {
	Op Op
	// Imm is the Push literal, or the sign extended Jmp/Jz offset.
	Imm int64
}

// Len returns the encoded length of the instruction.
func (in Instr) Len() int {
	return in.Op.Len()
}

func (in Instr) String() string {
	switch in.Op.Info().OperandBytes {
	case ImmBytes:
		return fmt.Sprintf("%v %d", in.Op, in.Imm)
	case OffsetBytes:
		return fmt.Sprintf("%v %+d", in.Op, in.Imm)
	default:
		return in.Op.String()
	}
}

// Decode decodes the instruction starting at code[ip].
// A byte which is not a known opcode decodes to an Instr of length 1.
func Decode(code []byte, ip int) (Instr, error) {
	if ip < 0 || ip >= len(code) {
		return Instr{}, fmt.Errorf("decode: ip %d out of range [0, %d)", ip, len(code))
	}
	op := Op(code[ip])
	end := ip + op.Len()
	if end > len(code) {
		return Instr{}, fmt.Errorf("decode: truncated %v at %d, need %d bytes have %d", op, ip, op.Len(), len(code)-ip)
	}
	in := Instr{Op: op}
	operand := code[ip+1 : end]
	switch len(operand) {
	case ImmBytes:
		in.Imm = int64(binary.LittleEndian.Uint64(operand))
	case OffsetBytes:
		in.Imm = int64(int32(binary.LittleEndian.Uint32(operand)))
	}
	return in, nil
}

// AppendInstr appends the encoding of in to out.
func AppendInstr(out []byte, in Instr) []byte {
	out = append(out, byte(in.Op))
	switch in.Op.Info().OperandBytes {
	case ImmBytes:
		out = binary.LittleEndian.AppendUint64(out, uint64(in.Imm))
	case OffsetBytes:
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(in.Imm)))
	}
	return out
}
