// package mvm is a reference interpreter for the bytecode.
//
// It follows the memory model of the native engine: one flat region holding
// the code buffer, then the operand stack, then the heap. Load and Store
// addresses are relative to the code buffer, Open, Read and Write pointers are
// relative to the heap. Where the native engine's behavior is undefined (stack
// underflow or overflow, addresses outside the region, running off the end of
// the code buffer) the interpreter faults instead.
package mvm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"morphasm.org/morph/internal/ringbuf"
	"morphasm.org/morph/spec"
)

var (
	ErrStackUnderflow = errors.New("mvm: stack underflow")
	ErrStackOverflow  = errors.New("mvm: stack overflow")
	ErrMemoryRange    = errors.New("mvm: address out of range")
	ErrIPRange        = errors.New("mvm: instruction pointer left the code buffer")
	// ErrHalted is returned when the machine has stopped without exiting.
	ErrHalted = errors.New("mvm: halted")
	// ErrStepLimit is returned when a program does not exit within its step budget.
	ErrStepLimit = errors.New("mvm: step limit reached")
)

// State is the lifecycle of a machine.
type State uint8

const (
	// StateInit is a machine which has not loaded a program.
	StateInit State = iota
	StateRun
	// StateTerminated is a machine which executed Exit.
	StateTerminated
	// StateFatal is a machine whose program could not be loaded. It exits with status 1.
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRun:
		return "RUN"
	case StateTerminated:
		return "TERMINATED"
	case StateFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// FatalStatus is the exit status when the program cannot be loaded.
const FatalStatus = 1

type Config struct {
	ProgramCapacity int
	StackSize       int
	HeapSize        int
	// TraceLen is the number of executed instructions kept for Trace.
	TraceLen int
}

func DefaultConfig() Config {
	return Config{
		ProgramCapacity: 4096,
		StackSize:       4096,
		HeapSize:        32768,
		TraceLen:        64,
	}
}

// StackEnd returns the Load/Store address one past the last stack cell.
func (c Config) StackEnd() int {
	return c.ProgramCapacity + c.StackSize
}

// HeapOffset returns the Load/Store address of the first heap byte.
// The heap starts spec.PrintScratch bytes after the stack.
func (c Config) HeapOffset() int {
	return c.StackEnd() + spec.PrintScratch
}

// TraceEntry records one executed instruction.
type TraceEntry struct {
	IP    int
	Instr spec.Instr
	// Depth is the number of cells on the stack before the instruction ran.
	Depth int
}

func (te TraceEntry) String() string {
	return fmt.Sprintf("%04x: %-16v depth=%d", te.IP, te.Instr, te.Depth)
}

type VM struct {
	cfg  Config
	host Host

	mem   []byte
	ip    int
	sp    int
	state State
	code  int
	steps uint64
	trace ringbuf.RingBuf[TraceEntry]

	err error
}

func New(cfg Config, host Host) *VM {
	if cfg.ProgramCapacity <= 0 || cfg.StackSize < 0 || cfg.HeapSize < 0 {
		panic(fmt.Sprintf("mvm: invalid config %+v", cfg))
	}
	vm := &VM{
		cfg:   cfg,
		host:  host,
		mem:   make([]byte, cfg.HeapOffset()+cfg.HeapSize),
		trace: ringbuf.New[TraceEntry](cfg.TraceLen),
	}
	vm.Reset()
	return vm
}

func (vm *VM) Reset() {
	clear(vm.mem)
	vm.ip = 0
	vm.sp = vm.cfg.ProgramCapacity
	vm.state = StateInit
	vm.code = 0
	vm.steps = 0
	vm.trace.Reset()
	vm.err = nil
}

// Load resets the machine and copies prog into the code buffer.
// At most ProgramCapacity bytes are used, like the native bootstrap read.
// An empty program is a load failure.
func (vm *VM) Load(prog []byte) {
	vm.Reset()
	if len(prog) == 0 {
		vm.fatal()
		return
	}
	copy(vm.mem[:vm.cfg.ProgramCapacity], prog)
	vm.state = StateRun
}

// Boot loads the program from the named file through the host,
// the same way the native bootstrap does.
func (vm *VM) Boot(name string) {
	vm.Reset()
	fd := vm.host.Open(name, 0)
	if fd < 0 {
		vm.fatal()
		return
	}
	n := vm.host.Read(fd, vm.mem[:vm.cfg.ProgramCapacity])
	if n <= 0 {
		vm.fatal()
		return
	}
	vm.host.Close(fd)
	vm.state = StateRun
}

func (vm *VM) fatal() {
	vm.state = StateFatal
	vm.code = FatalStatus
}

func (vm *VM) State() State {
	return vm.state
}

// Exited returns the exit status once the machine has terminated or failed to load.
func (vm *VM) Exited() (uint8, bool) {
	switch vm.state {
	case StateTerminated, StateFatal:
		return uint8(vm.code), true
	default:
		return 0, false
	}
}

func (vm *VM) Err() error {
	return vm.err
}

// Steps returns the number of instructions executed since the last Load.
func (vm *VM) Steps() uint64 {
	return vm.steps
}

func (vm *VM) IP() int {
	return vm.ip
}

// Run executes the VM for a maximum of maxSteps.
// The number of steps taken is returned.
// If Run returns 0, then nothing happened and the machine has halted.
func (vm *VM) Run(ctx context.Context, maxSteps uint64) (steps uint64) {
	defer func() { vm.steps += steps }()
	for i := uint64(0); i < maxSteps; i++ {
		if !vm.isAlive() {
			return i
		}
		if i%1024 == 0 && ctx.Err() != nil {
			return i
		}
		vm.step()
	}
	return maxSteps
}

// Exec runs the machine until it exits and returns the exit status.
func (vm *VM) Exec(ctx context.Context, maxSteps uint64) (uint8, error) {
	vm.Run(ctx, maxSteps)
	if err := vm.Err(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if code, ok := vm.Exited(); ok {
		return code, nil
	}
	if vm.state != StateRun {
		return 0, ErrHalted
	}
	return 0, fmt.Errorf("%w: %d steps", ErrStepLimit, maxSteps)
}

func (vm *VM) isAlive() bool {
	return vm.state == StateRun && vm.err == nil
}

func (vm *VM) fail(err error) {
	vm.err = err
}

func (vm *VM) step() {
	if vm.ip < 0 || vm.ip >= vm.cfg.ProgramCapacity {
		vm.fail(fmt.Errorf("%w: ip=%d", ErrIPRange, vm.ip))
		return
	}
	in, err := spec.Decode(vm.mem[:vm.cfg.ProgramCapacity], vm.ip)
	if err != nil {
		vm.fail(fmt.Errorf("%w: %v", ErrIPRange, err))
		return
	}
	vm.trace.Push(TraceEntry{IP: vm.ip, Instr: in, Depth: vm.depth()})

	ip := vm.ip
	// advance first so that jumps can override it
	vm.ip += in.Len()
	switch in.Op {
	case spec.Push:
		vm.push(in.Imm)
	case spec.Pop:
		vm.pop()
	case spec.Add:
		b, a := vm.pop(), vm.pop()
		vm.push(a + b)
	case spec.Sub:
		b, a := vm.pop(), vm.pop()
		vm.push(a - b)
	case spec.Eq:
		b, a := vm.pop(), vm.pop()
		if a == b {
			vm.push(1)
		} else {
			vm.push(0)
		}
	case spec.Dup:
		x := vm.pop()
		vm.push(x)
		vm.push(x)
	case spec.Jmp:
		vm.ip = ip + int(in.Imm)
	case spec.Jz:
		if vm.pop() == 0 {
			vm.ip = ip + int(in.Imm)
		}
	case spec.Print:
		vm.print(vm.pop())
	case spec.Load:
		addr := vm.pop()
		vm.push(vm.load(addr))
	case spec.Store:
		addr := vm.pop()
		val := vm.pop()
		vm.store(addr, val)
	case spec.Open:
		vm.open()
	case spec.Write:
		vm.readWrite(false)
	case spec.Read:
		vm.readWrite(true)
	case spec.Close:
		fd := vm.pop()
		if vm.err == nil {
			vm.host.Close(fd)
		}
	case spec.Exit:
		code := vm.pop()
		if vm.err == nil {
			vm.state = StateTerminated
			vm.code = int(code)
		}
	default:
		// Nop and unknown bytes: already skipped.
	}
}

// depth returns the number of cells on the stack.
func (vm *VM) depth() int {
	return (vm.sp - vm.cfg.ProgramCapacity) / spec.CellBytes
}

func (vm *VM) push(x int64) {
	if vm.err != nil {
		return
	}
	if vm.sp+spec.CellBytes > vm.cfg.StackEnd() {
		vm.fail(fmt.Errorf("%w: depth=%d", ErrStackOverflow, vm.depth()))
		return
	}
	binary.LittleEndian.PutUint64(vm.mem[vm.sp:], uint64(x))
	vm.sp += spec.CellBytes
}

func (vm *VM) pop() int64 {
	if vm.err != nil {
		return 0
	}
	if vm.sp-spec.CellBytes < vm.cfg.ProgramCapacity {
		vm.fail(ErrStackUnderflow)
		return 0
	}
	vm.sp -= spec.CellBytes
	return int64(binary.LittleEndian.Uint64(vm.mem[vm.sp:]))
}

// region returns mem[base+off : base+off+n], or faults.
func (vm *VM) region(base int, off, n int64) []byte {
	if vm.err != nil {
		return nil
	}
	beg := int64(base) + off
	if off < 0 || n < 0 || beg < 0 || beg+n > int64(len(vm.mem)) {
		vm.fail(fmt.Errorf("%w: base=%d off=%d len=%d", ErrMemoryRange, base, off, n))
		return nil
	}
	return vm.mem[beg : beg+n]
}

func (vm *VM) load(addr int64) int64 {
	b := vm.region(0, addr, spec.CellBytes)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (vm *VM) store(addr, val int64) {
	if b := vm.region(0, addr, spec.CellBytes); b != nil {
		binary.LittleEndian.PutUint64(b, uint64(val))
	}
}

// print writes the low spec.PrintBits bits of x as unsigned decimal.
func (vm *VM) print(x int64) {
	if vm.err != nil {
		return
	}
	out := strconv.AppendUint(nil, uint64(x)&(1<<spec.PrintBits-1), 10)
	out = append(out, '\n')
	vm.host.Write(Stdout, out)
}

func (vm *VM) open() {
	mode := vm.pop()
	ptr := vm.pop()
	if vm.err != nil {
		return
	}
	name, ok := vm.cstring(vm.cfg.HeapOffset(), ptr)
	if !ok {
		vm.fail(fmt.Errorf("%w: unterminated file name at heap+%d", ErrMemoryRange, ptr))
		return
	}
	vm.push(vm.host.Open(name, mode))
}

// cstring returns the NUL terminated string at base+off.
func (vm *VM) cstring(base int, off int64) (string, bool) {
	beg := int64(base) + off
	if off < 0 || beg >= int64(len(vm.mem)) {
		return "", false
	}
	for i := beg; i < int64(len(vm.mem)); i++ {
		if vm.mem[i] == 0 {
			return string(vm.mem[beg:i]), true
		}
	}
	return "", false
}

func (vm *VM) readWrite(isRead bool) {
	n := vm.pop()
	ptr := vm.pop()
	fd := vm.pop()
	buf := vm.region(vm.cfg.HeapOffset(), ptr, n)
	if vm.err != nil {
		return
	}
	if isRead {
		vm.push(vm.host.Read(fd, buf))
	} else {
		vm.host.Write(fd, buf)
	}
}

// Stack returns the cells on the operand stack, bottom first.
func (vm *VM) Stack() []int64 {
	out := make([]int64, 0, vm.depth())
	for off := vm.cfg.ProgramCapacity; off < vm.sp; off += spec.CellBytes {
		out = append(out, int64(binary.LittleEndian.Uint64(vm.mem[off:])))
	}
	return out
}

// Trace returns the most recently executed instructions, oldest first.
func (vm *VM) Trace() []TraceEntry {
	return vm.trace.Slice(nil)
}

// Peek returns the cell a Load from addr would produce.
func (vm *VM) Peek(addr int64) (int64, error) {
	if addr < 0 || addr+spec.CellBytes > int64(len(vm.mem)) {
		return 0, fmt.Errorf("%w: %d", ErrMemoryRange, addr)
	}
	return int64(binary.LittleEndian.Uint64(vm.mem[addr:])), nil
}

// HeapBytes returns a copy of n heap bytes starting at off.
func (vm *VM) HeapBytes(off, n int) ([]byte, error) {
	beg := vm.cfg.HeapOffset() + off
	if off < 0 || n < 0 || beg+n > len(vm.mem) {
		return nil, fmt.Errorf("%w: heap+%d len=%d", ErrMemoryRange, off, n)
	}
	return append([]byte(nil), vm.mem[beg:beg+n]...), nil
}
