package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeValues(t *testing.T) {
	tcs := map[Op]byte{
		Nop: 0x00, Push: 0x01, Pop: 0x02, Add: 0x03, Sub: 0x04,
		Jmp: 0x05, Jz: 0x06, Eq: 0x07, Dup: 0x08, Print: 0x09,
		Load: 0x0A, Store: 0x0B, Open: 0x0C, Write: 0x0D, Close: 0x0E, Read: 0x0F,
		Exit: 0xFF,
	}
	for op, b := range tcs {
		require.Equal(t, b, byte(op), "%v", op)
	}
	require.Len(t, All(), len(tcs))
}

func TestLen(t *testing.T) {
	require.Equal(t, 9, Push.Len())
	require.Equal(t, 5, Jmp.Len())
	require.Equal(t, 5, Jz.Len())
	require.Equal(t, 1, Add.Len())
	require.Equal(t, 1, Op(0x42).Len())
	require.False(t, Op(0x42).Known())
	require.Equal(t, "Op(0x42)", Op(0x42).String())
}

func TestDispatched(t *testing.T) {
	seen := map[Op]bool{}
	for _, op := range Dispatched() {
		require.True(t, op.Known())
		require.False(t, seen[op], "duplicate %v", op)
		seen[op] = true
	}
	require.False(t, seen[Nop])
	require.Len(t, seen, len(All())-1)
}

func TestStackDegree(t *testing.T) {
	// every binary arithmetic op nets one cell less
	for _, op := range []Op{Add, Sub, Eq} {
		require.Equal(t, -1, op.OutDegree()-op.InDegree(), "%v", op)
	}
	require.Equal(t, 1, Dup.OutDegree()-Dup.InDegree())
}

func TestDecode(t *testing.T) {
	var code []byte
	code = AppendInstr(code, Instr{Op: Push, Imm: -2})
	code = AppendInstr(code, Instr{Op: Jz, Imm: -9})
	code = append(code, 0x42)
	code = AppendInstr(code, Instr{Op: Exit})

	var got []Instr
	for ip := 0; ip < len(code); {
		in, err := Decode(code, ip)
		require.NoError(t, err)
		got = append(got, in)
		ip += in.Len()
	}
	require.Equal(t, []Instr{
		{Op: Push, Imm: -2},
		{Op: Jz, Imm: -9},
		{Op: 0x42},
		{Op: Exit},
	}, got)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{byte(Push), 1, 2, 3}, 0)
	require.Error(t, err)
	_, err = Decode([]byte{byte(Exit)}, 1)
	require.Error(t, err)
}

func TestParseOp(t *testing.T) {
	op, ok := ParseOp("print")
	require.True(t, ok)
	require.Equal(t, Print, op)
	_, ok = ParseOp("nope")
	require.False(t, ok)
}
