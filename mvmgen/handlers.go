package mvmgen

import (
	"morphasm.org/morph/internal/amd64"
	"morphasm.org/morph/spec"
)

// handler emits the body of one opcode's block.
// The block's label is bound before the handler runs.
// Every block except Exit ends by jumping back to the dispatch loop.
type handler func(a *amd64.Assembler, op spec.Op)

var handlers = map[spec.Op]handler{
	spec.Push:  emitPush,
	spec.Pop:   emitPop,
	spec.Add:   emitBinary,
	spec.Sub:   emitBinary,
	spec.Eq:    emitBinary,
	spec.Dup:   emitDup,
	spec.Jmp:   emitJmp,
	spec.Jz:    emitJz,
	spec.Print: emitPrint,
	spec.Load:  emitLoad,
	spec.Store: emitStore,
	spec.Open:  emitOpen,
	spec.Write: emitReadWrite,
	spec.Read:  emitReadWrite,
	spec.Close: emitClose,
	spec.Exit:  emitExit,
}

// emitHandlers emits every handler block in dispatch order, with Exit last.
func emitHandlers(a *amd64.Assembler) {
	for _, op := range spec.Dispatched() {
		if op == spec.Exit {
			continue
		}
		emitHandler(a, op)
	}
	emitHandler(a, spec.Exit)
}

func emitHandler(a *amd64.Assembler, op spec.Op) {
	a.Label(HandlerLabel(op))
	handlers[op](a, op)
}

// next advances past an instruction with no operand and returns to the loop.
func next(a *amd64.Assembler) {
	a.Inc(regIP)
	a.Jmp(LabelLoop)
}

func top(disp int32) amd64.Mem {
	return amd64.Ptr(regSP, disp)
}

func emitPush(a *amd64.Assembler, op spec.Op) {
	a.Load(amd64.RAX, amd64.Ptr(regIP, 1))
	a.Store(top(0), amd64.RAX)
	a.AddImm(regSP, spec.CellBytes)
	a.AddImm(regIP, int8(op.Len()))
	a.Jmp(LabelLoop)
}

func emitPop(a *amd64.Assembler, op spec.Op) {
	a.SubImm(regSP, spec.CellBytes)
	next(a)
}

// emitBinary pops b then a, and pushes a op b.
func emitBinary(a *amd64.Assembler, op spec.Op) {
	a.SubImm(regSP, 2*spec.CellBytes)
	a.Load(amd64.RAX, top(0))
	a.Load(amd64.RBX, top(spec.CellBytes))
	switch op {
	case spec.Add:
		a.Add(amd64.RAX, amd64.RBX)
	case spec.Sub:
		a.Sub(amd64.RAX, amd64.RBX)
	case spec.Eq:
		a.Cmp(amd64.RAX, amd64.RBX)
		a.Setcc(amd64.CondE, amd64.RAX)
		a.Movzx8(amd64.RAX, amd64.RAX)
	default:
		panic(op)
	}
	a.Store(top(0), amd64.RAX)
	a.AddImm(regSP, spec.CellBytes)
	next(a)
}

func emitDup(a *amd64.Assembler, op spec.Op) {
	a.Load(amd64.RAX, top(-spec.CellBytes))
	a.Store(top(0), amd64.RAX)
	a.AddImm(regSP, spec.CellBytes)
	next(a)
}

// jumpRelative adds the sign extended offset operand to the instruction pointer.
// The offset is relative to the start of the instruction.
func jumpRelative(a *amd64.Assembler) {
	a.LoadS32(amd64.RAX, amd64.Ptr(regIP, 1))
	a.Add(regIP, amd64.RAX)
	a.Jmp(LabelLoop)
}

func emitJmp(a *amd64.Assembler, op spec.Op) {
	jumpRelative(a)
}

func emitJz(a *amd64.Assembler, op spec.Op) {
	skip := localLabel(op, "skip")
	a.SubImm(regSP, spec.CellBytes)
	a.Load(amd64.RAX, top(0))
	a.Test(amd64.RAX, amd64.RAX)
	a.JccShort(amd64.CondNZ, skip)
	jumpRelative(a)
	a.Label(skip)
	a.AddImm(regIP, int8(op.Len()))
	a.Jmp(LabelLoop)
}

// Print loads a dword and converts it with div r32.
var _ = [1]struct{}{}[spec.PrintBits-32]

// emitPrint writes the low 32 bits of the popped cell as unsigned decimal and a newline.
// The digits are built backwards in the scratch space above the stack top:
// r11 holds the address of the newline and r10 walks down from it.
func emitPrint(a *amd64.Assembler, op spec.Op) {
	itoa := localLabel(op, "itoa")
	write := localLabel(op, "write")

	a.SubImm(regSP, spec.CellBytes)
	a.Load32(amd64.RAX, top(0))
	a.Lea(amd64.R10, top(spec.PrintScratch))
	a.Mov(amd64.R11, amd64.R10)
	a.Store8Imm(amd64.Ptr(amd64.R10, 0), '\n')
	a.Dec(amd64.R10)
	a.Test32(amd64.RAX, amd64.RAX)
	a.JccShort(amd64.CondNZ, itoa)
	a.Store8Imm(amd64.Ptr(amd64.R10, 0), '0')
	a.Dec(amd64.R10)
	a.JmpShort(write)

	a.Label(itoa)
	a.MovImm32(amd64.RBX, 10)
	a.Xor32(amd64.RDX, amd64.RDX)
	a.Div32(amd64.RBX)
	a.Add8Imm(amd64.RDX, '0')
	a.Store8(amd64.Ptr(amd64.R10, 0), amd64.RDX)
	a.Dec(amd64.R10)
	a.Test32(amd64.RAX, amd64.RAX)
	a.JccShort(amd64.CondNZ, itoa)

	// write(1, r10+1, r11-r10)
	a.Label(write)
	a.Inc(amd64.R10)
	a.Mov(amd64.RSI, amd64.R10)
	a.Mov(amd64.RDX, amd64.R11)
	a.Sub(amd64.RDX, amd64.R10)
	a.Inc(amd64.RDX)
	a.MovImm32(amd64.RDI, stdout)
	a.MovImm32(amd64.RAX, sysWrite)
	a.Syscall()
	next(a)
}

func emitLoad(a *amd64.Assembler, op spec.Op) {
	a.Load(amd64.RAX, top(-spec.CellBytes))
	a.Load(amd64.RAX, amd64.Indexed(regMem, amd64.RAX))
	a.Store(top(-spec.CellBytes), amd64.RAX)
	next(a)
}

// emitStore pops addr then val.
func emitStore(a *amd64.Assembler, op spec.Op) {
	a.SubImm(regSP, 2*spec.CellBytes)
	a.Load(amd64.RAX, top(spec.CellBytes))
	a.Load(amd64.RBX, top(0))
	a.Store(amd64.Indexed(regMem, amd64.RAX), amd64.RBX)
	next(a)
}

// emitOpen pops mode then name, and pushes the result of open.
func emitOpen(a *amd64.Assembler, op spec.Op) {
	forWrite := localLabel(op, "write")
	call := localLabel(op, "call")

	a.SubImm(regSP, 2*spec.CellBytes)
	a.Load(amd64.RDI, top(0))
	a.Add(amd64.RDI, regHeap)
	a.Load(amd64.RAX, top(spec.CellBytes))
	a.CmpImm(amd64.RAX, spec.OpenModeWrite)
	a.JccShort(amd64.CondE, forWrite)
	a.Xor32(amd64.RSI, amd64.RSI)
	a.JmpShort(call)
	a.Label(forWrite)
	a.MovImm32(amd64.RSI, oWronly|oCreat|oTrunc)
	a.Label(call)
	a.MovImm32(amd64.RDX, spec.OpenPerm)
	a.MovImm32(amd64.RAX, sysOpen)
	a.Syscall()
	a.Store(top(0), amd64.RAX)
	a.AddImm(regSP, spec.CellBytes)
	next(a)
}

// emitReadWrite pops len, ptr and fd. Read pushes the result, Write drops it.
func emitReadWrite(a *amd64.Assembler, op spec.Op) {
	a.SubImm(regSP, 3*spec.CellBytes)
	a.Load(amd64.RDI, top(0))
	a.Load(amd64.RSI, top(spec.CellBytes))
	a.Add(amd64.RSI, regHeap)
	a.Load(amd64.RDX, top(2*spec.CellBytes))
	if op == spec.Read {
		a.MovImm32(amd64.RAX, sysRead)
	} else {
		a.MovImm32(amd64.RAX, sysWrite)
	}
	a.Syscall()
	if op == spec.Read {
		a.Store(top(0), amd64.RAX)
		a.AddImm(regSP, spec.CellBytes)
	}
	next(a)
}

func emitClose(a *amd64.Assembler, op spec.Op) {
	a.SubImm(regSP, spec.CellBytes)
	a.Load(amd64.RDI, top(0))
	a.MovImm32(amd64.RAX, sysClose)
	a.Syscall()
	next(a)
}

func emitExit(a *amd64.Assembler, op spec.Op) {
	a.SubImm(regSP, spec.CellBytes)
	a.Load(amd64.RDI, top(0))
	a.MovImm32(amd64.RAX, sysExit)
	a.Syscall()
}
