package mvmgen

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"morphasm.org/morph/internal/amd64"
	"morphasm.org/morph/internal/testutil"
	"morphasm.org/morph/mvmelf"
	"morphasm.org/morph/spec"
)

func newLayout(t testing.TB, cfg Config) *Layout {
	g, err := New(cfg)
	require.NoError(t, err)
	l, err := g.Link()
	require.NoError(t, err)
	return l
}

func offsetOf(t testing.TB, l *Layout, label amd64.Label) int {
	off, ok := l.Offset(label)
	require.True(t, ok, "missing label %q", label)
	return off
}

// decodeEngine decodes everything before the program name and returns the instructions by offset.
func decodeEngine(t testing.TB, l *Layout) map[int]x86asm.Inst {
	end := offsetOf(t, l, LabelProgram)
	insts := map[int]x86asm.Inst{}
	for off := 0; off < end; {
		inst, err := x86asm.Decode(l.Code[off:end], 64)
		require.NoError(t, err, "at %#x", off)
		insts[off] = inst
		off += inst.Len
	}
	return insts
}

func TestLayoutOrder(t *testing.T) {
	t.Parallel()
	l := newLayout(t, DefaultConfig())

	require.Equal(t, 0, offsetOf(t, l, LabelBootstrap))
	order := []amd64.Label{LabelBootstrap, LabelLoop, LabelDefault}
	for _, op := range spec.Dispatched() {
		if op != spec.Exit {
			order = append(order, HandlerLabel(op))
		}
	}
	order = append(order, HandlerLabel(spec.Exit), LabelFatal, LabelProgram, LabelBuffer)
	for i := 1; i < len(order); i++ {
		require.Less(t, offsetOf(t, l, order[i-1]), offsetOf(t, l, order[i]), "%v before %v", order[i-1], order[i])
	}
	require.Equal(t, len(l.Code), offsetOf(t, l, LabelBuffer))
}

func TestHandlersCoverDispatch(t *testing.T) {
	t.Parallel()
	require.Len(t, handlers, len(spec.Dispatched()))
	for _, op := range spec.Dispatched() {
		require.Contains(t, handlers, op)
	}
	require.NotContains(t, handlers, spec.Nop)
}

func TestBranchesLandOnInstructions(t *testing.T) {
	t.Parallel()
	l := newLayout(t, DefaultConfig())
	insts := decodeEngine(t, l)
	engineEnd := offsetOf(t, l, LabelProgram)

	require.NotEmpty(t, l.Fixups)
	for _, f := range l.Fixups {
		target := offsetOf(t, l, f.Target)
		inst, ok := insts[f.Inst]
		require.True(t, ok, "fixup at %#x is not an instruction start", f.Inst)
		require.Equal(t, f.Inst+inst.Len, f.Next(), "displacement is not the last field of %v", inst)

		switch f.Kind {
		case amd64.Branch:
			require.Less(t, target, engineEnd, "%v jumps into data", f.Target)
			_, ok := insts[target]
			require.True(t, ok, "%v at %#x is not an instruction start", f.Target, target)
			rel, ok := inst.Args[0].(x86asm.Rel)
			require.True(t, ok, "%v", inst)
			require.EqualValues(t, target-f.Next(), rel)
		case amd64.PCRel:
			require.Contains(t, []amd64.Label{LabelProgram, LabelBuffer}, f.Target)
			mem, ok := inst.Args[1].(x86asm.Mem)
			require.True(t, ok, "%v", inst)
			require.Equal(t, x86asm.RIP, mem.Base)
			require.EqualValues(t, target-f.Next(), mem.Disp)
		}
	}
}

func TestDispatchChain(t *testing.T) {
	t.Parallel()
	l := newLayout(t, DefaultConfig())
	insts := decodeEngine(t, l)

	off := offsetOf(t, l, LabelLoop)
	fetch := insts[off]
	require.Equal(t, x86asm.MOVZX, fetch.Op)
	off += fetch.Len
	for _, op := range spec.Dispatched() {
		cmp := insts[off]
		require.Equal(t, x86asm.CMP, cmp.Op)
		require.Equal(t, x86asm.AL, cmp.Args[0])
		require.Equal(t, byte(op), byte(cmp.Args[1].(x86asm.Imm)))
		off += cmp.Len

		je := insts[off]
		require.Equal(t, x86asm.JE, je.Op)
		rel := int(je.Args[0].(x86asm.Rel))
		require.Equal(t, offsetOf(t, l, HandlerLabel(op)), off+je.Len+rel, "%v", op)
		off += je.Len
	}
	require.Equal(t, offsetOf(t, l, LabelDefault), off)
}

func TestHandlersReturnToLoop(t *testing.T) {
	t.Parallel()
	l := newLayout(t, DefaultConfig())
	loopJumps := map[amd64.Label]int{}
	for _, f := range l.Fixups {
		if f.Kind != amd64.Branch || f.Target != LabelLoop {
			continue
		}
		// attribute the jump to the last label at or before it
		var owner amd64.Label
		for _, s := range l.Symbols {
			if s.Offset <= f.Inst {
				owner = s.Label
			}
		}
		loopJumps[owner]++
	}
	for _, op := range spec.Dispatched() {
		if op == spec.Exit {
			continue
		}
		n := 0
		for label, c := range loopJumps {
			if label == HandlerLabel(op) || strings.HasPrefix(string(label), string(HandlerLabel(op))+".") {
				n += c
			}
		}
		require.NotZero(t, n, "%v never returns to the loop", op)
	}
	require.Zero(t, loopJumps[HandlerLabel(spec.Exit)])
	require.Zero(t, loopJumps[LabelFatal])
}

func TestPushHandlerBytes(t *testing.T) {
	t.Parallel()
	l := newLayout(t, DefaultConfig())
	off := offsetOf(t, l, HandlerLabel(spec.Push))
	want := []byte{
		0x49, 0x8B, 0x47, 0x01, // mov rax, [r15+1]
		0x49, 0x89, 0x06, // mov [r14], rax
		0x49, 0x83, 0xC6, 0x08, // add r14, 8
		0x49, 0x83, 0xC7, 0x09, // add r15, 9
		0xE9, // jmp loop
	}
	require.Equal(t, want, l.Code[off:off+len(want)])
}

func TestBootstrap(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.ProgramCapacity = 0x2000
	cfg.StackSize = 0x1800
	l := newLayout(t, cfg)
	insts := decodeEngine(t, l)

	var sawCapacity, sawStack bool
	for off := 0; off < offsetOf(t, l, LabelLoop); off += insts[off].Len {
		inst := insts[off]
		switch {
		case inst.Op == x86asm.MOV && inst.Args[0] == x86asm.EDX:
			require.EqualValues(t, cfg.ProgramCapacity, inst.Args[1])
			sawCapacity = true
		case inst.Op == x86asm.LEA && inst.Args[0] == x86asm.R12:
			mem := inst.Args[1].(x86asm.Mem)
			require.Equal(t, x86asm.R14, mem.Base)
			require.EqualValues(t, cfg.StackSize+spec.PrintScratch, mem.Disp)
			sawStack = true
		}
	}
	require.True(t, sawCapacity)
	require.True(t, sawStack)
}

func TestProgramName(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Program = "print_test.bin"
	l := newLayout(t, cfg)

	start := offsetOf(t, l, LabelProgram)
	name := l.Code[start : start+len(cfg.Program)+1]
	require.Equal(t, append([]byte(cfg.Program), 0), name)
	require.Zero(t, len(l.Code)%spec.CellBytes)
	for _, b := range l.Code[start+len(name):] {
		require.Zero(t, b)
	}
}

func TestAssemble(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	g, err := New(cfg)
	require.NoError(t, err)
	img, err := g.Assemble()
	require.NoError(t, err)

	info, err := mvmelf.Inspect(img)
	require.NoError(t, err)
	require.Equal(t, cfg.BaseAddress, info.Base)
	require.Equal(t, cfg.Reserve(), info.Reserve())

	l, err := g.Link()
	require.NoError(t, err)
	entry, ok := l.Addr(LabelBootstrap)
	require.True(t, ok)
	require.Equal(t, entry, info.Entry)
	require.Equal(t, l.Code, info.Code)

	// the buffer is 8 byte aligned in memory
	buf, ok := l.Addr(LabelBuffer)
	require.True(t, ok)
	require.Zero(t, buf%spec.CellBytes)
	require.Equal(t, info.Base+info.FileSize, buf)
}

func TestDeterministic(t *testing.T) {
	t.Parallel()
	assemble := func(cfg Config) []byte {
		g, err := New(cfg)
		require.NoError(t, err)
		img, err := g.Assemble()
		require.NoError(t, err)
		return img
	}
	a := assemble(DefaultConfig())
	require.Equal(t, a, assemble(DefaultConfig()))

	other := DefaultConfig()
	other.Program = "other.bin"
	b := assemble(other)
	require.NotEqual(t, a, b)

	bigger := DefaultConfig()
	bigger.HeapSize *= 2
	c := assemble(bigger)
	require.Equal(t, len(a), len(c))
	// only the memory size in the program header differs
	memsz := mvmelf.HeaderSize + 40
	require.Equal(t, a[:memsz], c[:memsz])
	require.Equal(t, a[memsz+8:], c[memsz+8:])
	require.Equal(t,
		binary.LittleEndian.Uint64(a[memsz:])+uint64(DefaultHeapSize),
		binary.LittleEndian.Uint64(c[memsz:]))
}

func TestBuild(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	g, err := New(DefaultConfig())
	require.NoError(t, err)
	img, err := g.Build(ctx)
	require.NoError(t, err)
	img2, err := g.Assemble()
	require.NoError(t, err)
	require.Equal(t, img2, img)
}

func TestCache(t *testing.T) {
	t.Parallel()
	c := NewCache(4)
	a, err := c.Assemble(DefaultConfig())
	require.NoError(t, err)
	a[0] = 0
	b, err := c.Assemble(DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, byte(0x7f), b[0])
	require.Equal(t, 1, c.Len())

	bad := DefaultConfig()
	bad.Program = ""
	_, err = c.Assemble(bad)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Equal(t, 1, c.Len())
}
