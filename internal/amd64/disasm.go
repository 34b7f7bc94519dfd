package amd64

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Line is one decoded instruction of a listing.
type Line struct {
	Offset int
	Bytes  []byte
	Text   string
	// Valid is false when the bytes could not be decoded.
	Valid bool
}

func (l Line) String() string {
	hexBytes := make([]string, len(l.Bytes))
	for i, b := range l.Bytes {
		hexBytes[i] = fmt.Sprintf("%02x", b)
	}
	return fmt.Sprintf("0x%04x: %-30s %s", l.Offset, strings.Join(hexBytes, " "), l.Text)
}

// Disassemble decodes code as 64-bit instructions.
// pc is the address of code[0], used to print branch targets.
// Bytes that do not decode are listed one at a time as db.
func Disassemble(code []byte, pc uint64) []Line {
	var lines []Line
	for offset := 0; offset < len(code); {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil || inst.Len == 0 {
			lines = append(lines, Line{
				Offset: offset,
				Bytes:  code[offset : offset+1],
				Text:   fmt.Sprintf("db 0x%02x", code[offset]),
			})
			offset++
			continue
		}
		lines = append(lines, Line{
			Offset: offset,
			Bytes:  code[offset : offset+inst.Len],
			Text:   x86asm.IntelSyntax(inst, pc+uint64(offset), nil),
			Valid:  true,
		})
		offset += inst.Len
	}
	return lines
}
