package mvm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"morphasm.org/morph/internal/testutil"
	"morphasm.org/morph/morphtests"
	"morphasm.org/morph/mvmprog"
	"morphasm.org/morph/spec"
)

const testSteps = 1 << 16

func run(t testing.TB, prog []byte) (*VM, *MemHost) {
	h := NewMemHost()
	vm := New(DefaultConfig(), h)
	vm.Load(prog)
	vm.Run(testutil.Context(t), testSteps)
	return vm, h
}

func TestFixtures(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	for _, fx := range morphtests.Fixtures(int64(cfg.HeapOffset())) {
		fx := fx
		t.Run(fx.Name, func(t *testing.T) {
			t.Parallel()
			ctx := testutil.Context(t)
			h := NewMemHost()
			for name, data := range fx.Inputs {
				h.PutFile(name, data)
			}
			h.PutFile(fx.File(), fx.Program)
			vm := New(cfg, h)
			vm.Boot(fx.File())

			status, err := vm.Exec(ctx, testSteps)
			require.NoError(t, err)
			require.Equal(t, fx.Status, status)
			require.Equal(t, fx.Stdout, h.Stdout.String())
			for name, want := range fx.Outputs {
				got, ok := h.File(name)
				require.True(t, ok, name)
				require.Equal(t, want, got)
			}
			require.Equal(t, StateTerminated, vm.State())
		})
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	t.Parallel()
	for _, v := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 1 << 40, 0x0102030405060708} {
		b := mvmprog.New()
		b.Push(v)
		vm, _ := run(t, b.MustBuild())
		require.NoError(t, vm.Err())
		require.Equal(t, []int64{v}, vm.Stack())
	}
}

func TestOperandsOnly(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Ops  []spec.Op
		Args []int64
		End  []int64
	}
	tcs := []testCase{
		{Ops: []spec.Op{spec.Add}, Args: []int64{2, 3}, End: []int64{5}},
		{Ops: []spec.Op{spec.Sub}, Args: []int64{2, 3}, End: []int64{-1}},
		{Ops: []spec.Op{spec.Eq}, Args: []int64{3, 3}, End: []int64{1}},
		{Ops: []spec.Op{spec.Eq}, Args: []int64{3, 4}, End: []int64{0}},
		{Ops: []spec.Op{spec.Dup}, Args: []int64{9}, End: []int64{9, 9}},
		{Ops: []spec.Op{spec.Pop}, Args: []int64{9}, End: []int64{}},
		{Ops: []spec.Op{spec.Add}, Args: []int64{math.MaxInt64, 1}, End: []int64{math.MinInt64}},
	}
	below := []int64{111, 222}
	for _, tc := range tcs {
		b := mvmprog.New()
		for _, x := range append(append([]int64{}, below...), tc.Args...) {
			b.Push(x)
		}
		b.Op(tc.Ops...)
		vm, _ := run(t, b.MustBuild())
		require.NoError(t, vm.Err())
		require.Equal(t, append(append([]int64{}, below...), tc.End...), vm.Stack(), "%v %v", tc.Ops, tc.Args)
	}
}

func TestJmpZeroLoops(t *testing.T) {
	t.Parallel()
	b := mvmprog.New()
	b.Label("here")
	b.Jmp("here")
	h := NewMemHost()
	vm := New(DefaultConfig(), h)
	vm.Load(b.MustBuild())
	steps := vm.Run(context.Background(), 1000)
	require.Equal(t, uint64(1000), steps)
	require.NoError(t, vm.Err())
	require.Equal(t, 0, vm.IP())
	_, exited := vm.Exited()
	require.False(t, exited)

	_, err := vm.Exec(context.Background(), 10)
	require.ErrorIs(t, err, ErrStepLimit)
}

func TestStoreLoad(t *testing.T) {
	t.Parallel()
	b := mvmprog.New()
	b.Push(-5)
	b.Push(2000)
	b.Op(spec.Store)
	b.Push(6)
	b.Push(2008)
	b.Op(spec.Store)
	vm, _ := run(t, b.MustBuild())
	require.NoError(t, vm.Err())
	x, err := vm.Peek(2000)
	require.NoError(t, err)
	require.Equal(t, int64(-5), x)
	y, err := vm.Peek(2008)
	require.NoError(t, err)
	require.Equal(t, int64(6), y)
}

func TestStoreIntoHeap(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	b := mvmprog.New()
	b.Store(int64(cfg.HeapOffset())+16, []byte("heap"))
	vm, _ := run(t, b.MustBuild())
	require.NoError(t, vm.Err())
	data, err := vm.HeapBytes(16, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("heap\x00"), data)
}

func TestFaults(t *testing.T) {
	t.Parallel()
	tcs := map[string]struct {
		Build func(b *mvmprog.Builder)
		Err   error
	}{
		"underflow": {func(b *mvmprog.Builder) { b.Op(spec.Add) }, ErrStackUnderflow},
		"load range": {func(b *mvmprog.Builder) {
			b.Push(-8)
			b.Op(spec.Load)
		}, ErrMemoryRange},
		"jump out": {func(b *mvmprog.Builder) {
			b.Push(0)
			b.Raw(byte(spec.Jz), 0, 0, 0, 0x80)
		}, ErrIPRange},
		"run off the end": {func(b *mvmprog.Builder) { b.Op(spec.Nop) }, ErrIPRange},
		"write range": {func(b *mvmprog.Builder) {
			b.Push(1)
			b.Push(0)
			b.Push(1 << 30)
			b.Op(spec.Write)
		}, ErrMemoryRange},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			b := mvmprog.New()
			tc.Build(b)
			vm, _ := run(t, b.MustBuild())
			require.ErrorIs(t, vm.Err(), tc.Err)
		})
	}
}

func TestOverflow(t *testing.T) {
	t.Parallel()
	b := mvmprog.New()
	b.Push(1)
	b.Label("l")
	b.Op(spec.Dup)
	b.Jmp("l")
	vm, _ := run(t, b.MustBuild())
	require.ErrorIs(t, vm.Err(), ErrStackOverflow)
	require.Len(t, vm.Stack(), DefaultConfig().StackSize/spec.CellBytes)
}

func TestBootFailures(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	h := NewMemHost()
	h.PutFile("empty.bin", nil)
	vm := New(DefaultConfig(), h)

	vm.Boot("missing.bin")
	require.Equal(t, StateFatal, vm.State())
	status, err := vm.Exec(ctx, testSteps)
	require.NoError(t, err)
	require.Equal(t, uint8(FatalStatus), status)

	vm.Boot("empty.bin")
	require.Equal(t, StateFatal, vm.State())
	require.Equal(t, 1, h.OpenFDs(), "the failed read leaves the descriptor open")
}

func TestBootTruncates(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.ProgramCapacity = 16
	h := NewMemHost()
	b := mvmprog.New()
	b.Push(4)
	b.Op(spec.Exit)
	prog := append(b.MustBuild(), make([]byte, 100)...)
	h.PutFile("p.bin", prog)
	vm := New(cfg, h)
	vm.Boot("p.bin")
	status, err := vm.Exec(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, uint8(4), status)
	require.Equal(t, 0, h.OpenFDs())
}

func TestTrace(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.TraceLen = 2
	b := mvmprog.New()
	b.Push(1)
	b.Push(2)
	b.Op(spec.Add)
	b.Op(spec.Exit)
	vm := New(cfg, NewMemHost())
	vm.Load(b.MustBuild())
	status, err := vm.Exec(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, uint8(3), status)
	require.Equal(t, uint64(4), vm.Steps())
	require.Equal(t, []TraceEntry{
		{IP: 18, Instr: spec.Instr{Op: spec.Add}, Depth: 2},
		{IP: 19, Instr: spec.Instr{Op: spec.Exit}, Depth: 1},
	}, vm.Trace())
}

func TestCancel(t *testing.T) {
	t.Parallel()
	b := mvmprog.New()
	b.Label("l")
	b.Jmp("l")
	vm := New(DefaultConfig(), NewMemHost())
	vm.Load(b.MustBuild())
	ctx, cf := context.WithCancel(context.Background())
	cf()
	require.Equal(t, uint64(0), vm.Run(ctx, 100))
	_, err := vm.Exec(ctx, 100)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFullStackPrintKeepsHeap(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.ProgramCapacity = 8192
	fx := morphtests.FullStackPrint(int64(cfg.HeapOffset()), int64(cfg.StackSize))
	h := NewMemHost()
	vm := New(cfg, h)
	vm.Load(fx.Program)
	status, err := vm.Exec(testutil.Context(t), testSteps)
	require.NoError(t, err)
	require.Equal(t, fx.Status, status)
	require.Equal(t, fx.Stdout, h.Stdout.String())
}

func TestHeapAfterGap(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.ProgramCapacity = 8192
	require.Equal(t, cfg.StackEnd()+spec.PrintScratch, cfg.HeapOffset())

	// the gap is not stack: a push past StackEnd overflows even though memory follows
	b := mvmprog.New()
	for i := 0; i <= cfg.StackSize/spec.CellBytes; i++ {
		b.Push(1)
	}
	vm := New(cfg, NewMemHost())
	vm.Load(b.MustBuild())
	vm.Run(testutil.Context(t), testSteps)
	require.ErrorIs(t, vm.Err(), ErrStackOverflow)
	require.Len(t, vm.Stack(), cfg.StackSize/spec.CellBytes)
}
