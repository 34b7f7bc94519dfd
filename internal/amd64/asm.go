package amd64

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"golang.org/x/exp/maps"
)

var (
	ErrUndefinedLabel    = errors.New("amd64: undefined label")
	ErrDuplicateLabel    = errors.New("amd64: duplicate label")
	ErrDisplacementRange = errors.New("amd64: displacement out of range")
	ErrInvalidMemOperand = errors.New("amd64: invalid memory operand")
)

// Label names a position in the assembled stream.
type Label string

// FixupKind says what a fixup refers to.
type FixupKind uint8

const (
	// Branch is the displacement of a jmp or jcc.
	Branch FixupKind = iota
	// PCRel is a RIP-relative data reference.
	PCRel
)

func (k FixupKind) String() string {
	switch k {
	case Branch:
		return "branch"
	case PCRel:
		return "pcrel"
	default:
		return fmt.Sprintf("FixupKind(%d)", uint8(k))
	}
}

// Fixup is a placeholder field waiting for the offset of Target.
// The resolved value is Target - (Site + Size), which is the position the
// CPU measures from: the end of the displacement field, which is also the
// end of every instruction this package emits with a fixup.
type Fixup struct {
	Kind   FixupKind
	Target Label
	// Inst is the offset of the first byte of the instruction.
	Inst int
	// Site is the offset of the displacement field.
	Site int
	// Size is the width of the displacement field, 1 or 4.
	Size int
}

// Next returns the offset the displacement is relative to.
func (f Fixup) Next() int {
	return f.Site + f.Size
}

// Assembler accumulates machine code.
// Errors are sticky, the first one is returned from Link.
type Assembler struct {
	buf    []byte
	labels map[Label]int
	fixups []Fixup
	err    error
}

func New() *Assembler {
	return &Assembler{labels: make(map[Label]int)}
}

// Offset returns the offset the next byte will be written to.
func (a *Assembler) Offset() int {
	return len(a.buf)
}

// Label binds l to the current offset.
func (a *Assembler) Label(l Label) {
	if _, exists := a.labels[l]; exists {
		a.setErr(fmt.Errorf("%w: %q", ErrDuplicateLabel, l))
		return
	}
	a.labels[l] = len(a.buf)
}

// LabelOffset returns the offset bound to l.
func (a *Assembler) LabelOffset(l Label) (int, bool) {
	off, ok := a.labels[l]
	return off, ok
}

// Labels returns every bound label ordered by offset.
func (a *Assembler) Labels() []Label {
	ls := maps.Keys(a.labels)
	slices.SortFunc(ls, func(x, y Label) int {
		return cmp.Or(cmp.Compare(a.labels[x], a.labels[y]), cmp.Compare(x, y))
	})
	return ls
}

// Fixups returns the recorded fixups in emission order.
func (a *Assembler) Fixups() []Fixup {
	return slices.Clone(a.fixups)
}

// Bytes appends raw bytes, used for embedded data.
func (a *Assembler) Bytes(b ...byte) {
	a.buf = append(a.buf, b...)
}

// Align pads with zeros until the offset is a multiple of n.
func (a *Assembler) Align(n int) {
	for len(a.buf)%n != 0 {
		a.buf = append(a.buf, 0)
	}
}

// Link resolves every fixup and returns the finished code.
// The Assembler is not modified, so Link can be called more than once.
func (a *Assembler) Link() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	out := slices.Clone(a.buf)
	for _, f := range a.fixups {
		target, ok := a.labels[f.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %q (%v at %#x)", ErrUndefinedLabel, f.Target, f.Kind, f.Inst)
		}
		if err := patch(out, f, target); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// patch writes the displacement for f into out.
// It only touches out[f.Site:f.Next()], so patches commute.
func patch(out []byte, f Fixup, target int) error {
	disp := int64(target) - int64(f.Next())
	switch f.Size {
	case 1:
		if disp < math.MinInt8 || disp > math.MaxInt8 {
			return fmt.Errorf("%w: %q is %d bytes from %#x", ErrDisplacementRange, f.Target, disp, f.Inst)
		}
		out[f.Site] = byte(int8(disp))
	case 4:
		if disp < math.MinInt32 || disp > math.MaxInt32 {
			return fmt.Errorf("%w: %q is %d bytes from %#x", ErrDisplacementRange, f.Target, disp, f.Inst)
		}
		binary.LittleEndian.PutUint32(out[f.Site:], uint32(int32(disp)))
	default:
		return fmt.Errorf("amd64: bad fixup size %d", f.Size)
	}
	return nil
}

func (a *Assembler) setErr(err error) {
	if a.err == nil {
		a.err = err
	}
}

// placeholder emits a zero field of size bytes and records a fixup for it.
func (a *Assembler) placeholder(kind FixupKind, inst int, size int, target Label) {
	a.fixups = append(a.fixups, Fixup{
		Kind:   kind,
		Target: target,
		Inst:   inst,
		Site:   len(a.buf),
		Size:   size,
	})
	for i := 0; i < size; i++ {
		a.buf = append(a.buf, 0)
	}
}

func (a *Assembler) imm8(x byte) {
	a.buf = append(a.buf, x)
}

func (a *Assembler) imm32(x uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, x)
}

// rex emits a REX prefix if any of its bits are needed, or if force is set.
func (a *Assembler) rex(w bool, reg, index, base Reg, force bool) {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	b |= reg.ext()<<2 | index.ext()<<1 | base.ext()
	if b != 0x40 || force {
		a.buf = append(a.buf, b)
	}
}

// encRR emits a register-direct form. reg goes in ModRM.reg, rm in ModRM.rm.
func (a *Assembler) encRR(w bool, force8 bool, op []byte, reg, rm Reg) {
	a.rex(w, reg, RAX, rm, force8)
	a.buf = append(a.buf, op...)
	a.buf = append(a.buf, 0xC0|reg.low()<<3|rm.low())
}

// encRM emits a memory form. reg goes in ModRM.reg.
func (a *Assembler) encRM(w bool, force8 bool, op []byte, reg Reg, m Mem) {
	index := RAX
	if m.HasIndex {
		if m.Index == RSP {
			a.setErr(fmt.Errorf("%w: rsp cannot be an index", ErrInvalidMemOperand))
		}
		index = m.Index
	}
	a.rex(w, reg, index, m.Base, force8)
	a.buf = append(a.buf, op...)
	a.modrm(reg.low(), m)
}

func (a *Assembler) modrm(reg byte, m Mem) {
	var mod byte
	switch {
	// mod 00 with rbp/r13 as base means RIP or absolute, so they always carry a displacement
	case m.Disp == 0 && m.Base.low() != 5:
		mod = 0
	case m.Disp >= math.MinInt8 && m.Disp <= math.MaxInt8:
		mod = 1
	default:
		mod = 2
	}
	if m.HasIndex || m.Base.low() == 4 {
		index := byte(4)
		if m.HasIndex {
			index = m.Index.low()
		}
		a.buf = append(a.buf, mod<<6|reg<<3|4, index<<3|m.Base.low())
	} else {
		a.buf = append(a.buf, mod<<6|reg<<3|m.Base.low())
	}
	switch mod {
	case 1:
		a.imm8(byte(int8(m.Disp)))
	case 2:
		a.imm32(uint32(m.Disp))
	}
}
