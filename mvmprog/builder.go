// package mvmprog builds and lists bytecode programs.
package mvmprog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"morphasm.org/morph/spec"
)

var (
	ErrUndefinedLabel = errors.New("mvmprog: undefined label")
	ErrDuplicateLabel = errors.New("mvmprog: duplicate label")
)

type ref struct {
	// at is the offset of the jump instruction, which its displacement is relative to.
	at    int
	label string
}

// Builder assembles bytecode.
// Jmp and Jz take labels, which may be defined before or after the jump.
type Builder struct {
	code   []byte
	labels map[string]int
	refs   []ref
	err    error
}

func New() *Builder {
	return &Builder{labels: make(map[string]int)}
}

// Offset returns the offset of the next instruction.
func (b *Builder) Offset() int {
	return len(b.code)
}

func (b *Builder) Push(v int64) {
	b.code = spec.AppendInstr(b.code, spec.Instr{Op: spec.Push, Imm: v})
}

// Op appends instructions which take no operand.
func (b *Builder) Op(ops ...spec.Op) {
	for _, op := range ops {
		if op.Info().OperandBytes != 0 {
			b.setErr(fmt.Errorf("mvmprog: %v needs an operand", op))
			return
		}
		b.code = append(b.code, byte(op))
	}
}

// Raw appends bytes verbatim.
func (b *Builder) Raw(data ...byte) {
	b.code = append(b.code, data...)
}

func (b *Builder) Label(name string) {
	if _, exists := b.labels[name]; exists {
		b.setErr(fmt.Errorf("%w: %q", ErrDuplicateLabel, name))
		return
	}
	b.labels[name] = len(b.code)
}

func (b *Builder) Jmp(label string) {
	b.jump(spec.Jmp, label)
}

func (b *Builder) Jz(label string) {
	b.jump(spec.Jz, label)
}

func (b *Builder) jump(op spec.Op, label string) {
	b.refs = append(b.refs, ref{at: len(b.code), label: label})
	b.code = spec.AppendInstr(b.code, spec.Instr{Op: op})
}

// Store appends instructions which store data at addr and onwards, one cell at a time.
// The last cell is padded with zeros.
func (b *Builder) Store(addr int64, data []byte) {
	for i := 0; i < len(data); i += spec.CellBytes {
		var cell [spec.CellBytes]byte
		copy(cell[:], data[i:])
		b.Push(int64(binary.LittleEndian.Uint64(cell[:])))
		b.Push(addr + int64(i))
		b.Op(spec.Store)
	}
}

// Build resolves jumps and returns the program.
func (b *Builder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := append([]byte(nil), b.code...)
	for _, r := range b.refs {
		target, ok := b.labels[r.label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUndefinedLabel, r.label)
		}
		disp := int64(target - r.at)
		if disp < math.MinInt32 || disp > math.MaxInt32 {
			return nil, fmt.Errorf("mvmprog: jump to %q out of range", r.label)
		}
		binary.LittleEndian.PutUint32(out[r.at+1:], uint32(int32(disp)))
	}
	return out, nil
}

// MustBuild is Build for programs known to be well formed.
func (b *Builder) MustBuild() []byte {
	out, err := b.Build()
	if err != nil {
		panic(err)
	}
	return out
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}
