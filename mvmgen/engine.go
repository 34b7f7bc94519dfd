package mvmgen

import (
	"morphasm.org/morph/internal/amd64"
	"morphasm.org/morph/spec"
)

// Registers that hold interpreter state for the whole run.
const (
	// regIP points at the opcode being executed.
	regIP = amd64.R15
	// regSP points at the first free cell above the operand stack.
	regSP = amd64.R14
	// regMem is the base of the code buffer. Load and Store addresses are relative to it.
	regMem = amd64.R13
	// regHeap is the base of the heap. Open, Read and Write pointers are relative to it.
	// During bootstrap it holds the program file descriptor.
	regHeap = amd64.R12
)

// Linux x86-64 system call numbers and flags.
// These describe the target, not the host the generator runs on.
const (
	sysRead  = 0
	sysWrite = 1
	sysOpen  = 2
	sysClose = 3
	sysExit  = 60

	oWronly = 0x1
	oCreat  = 0x40
	oTrunc  = 0x200

	stdout = 1
)

// emitBootstrap reads the program into the code buffer and sets up the state registers.
// Any failure to open or read the program exits with status 1.
func (g *Generator) emitBootstrap(a *amd64.Assembler) {
	a.Label(LabelBootstrap)

	// fd = open(name, O_RDONLY, 0)
	a.MovImm32(amd64.RAX, sysOpen)
	a.LeaRIP(amd64.RDI, LabelProgram)
	a.Xor32(amd64.RSI, amd64.RSI)
	a.Xor32(amd64.RDX, amd64.RDX)
	a.Syscall()
	a.Test(amd64.RAX, amd64.RAX)
	a.Jcc(amd64.CondS, LabelFatal)
	a.Mov32(regHeap, amd64.RAX)

	// read(fd, buffer, capacity) > 0
	a.Mov32(amd64.RDI, regHeap)
	a.MovImm32(amd64.RAX, sysRead)
	a.LeaRIP(amd64.RSI, LabelBuffer)
	a.MovImm32(amd64.RDX, g.cfg.ProgramCapacity)
	a.Syscall()
	a.Test(amd64.RAX, amd64.RAX)
	a.Jcc(amd64.CondLE, LabelFatal)

	// close(fd)
	a.Mov32(amd64.RDI, regHeap)
	a.MovImm32(amd64.RAX, sysClose)
	a.Syscall()

	a.LeaRIP(regMem, LabelBuffer)
	a.Mov(regIP, regMem)
	a.Lea(regSP, amd64.Ptr(regMem, int32(g.cfg.ProgramCapacity)))
	a.Lea(regHeap, amd64.Ptr(regSP, int32(g.cfg.StackSize+spec.PrintScratch)))
}

// emitDispatch emits the fetch and one compare and branch per dispatched opcode.
// Bytes that match none of them are skipped.
func emitDispatch(a *amd64.Assembler) {
	a.Label(LabelLoop)
	a.LoadU8(amd64.RAX, amd64.Ptr(regIP, 0))
	for _, op := range spec.Dispatched() {
		a.CmpAL(byte(op))
		a.Jcc(amd64.CondE, HandlerLabel(op))
	}
	a.Label(LabelDefault)
	a.Inc(regIP)
	a.Jmp(LabelLoop)
}

func emitFatal(a *amd64.Assembler) {
	a.Label(LabelFatal)
	a.MovImm32(amd64.RDI, 1)
	a.MovImm32(amd64.RAX, sysExit)
	a.Syscall()
}
