package amd64

// Opcode bytes, named after the forms in the Intel SDM.
const (
	opAddRMR    = 0x01
	opXorRMR    = 0x31
	opSubRMR    = 0x29
	opCmpRMR    = 0x39
	opCmpALImm8 = 0x3C
	opMovsxd    = 0x63
	opGrp1Imm8  = 0x83
	opGrp1RM8   = 0x80
	opTestRMR   = 0x85
	opMovRM8R8  = 0x88
	opMovRMR    = 0x89
	opMovRRM    = 0x8B
	opLea       = 0x8D
	opMovRImm32 = 0xB8
	opMovRMImm8 = 0xC6
	opJmpRel32  = 0xE9
	opJmpRel8   = 0xEB
	opJccRel8   = 0x70
	opGrp3      = 0xF7
	opGrp5      = 0xFF

	opEscape  = 0x0F
	op2Jcc    = 0x80
	op2Setcc  = 0x90
	op2Movzx8 = 0xB6
	op2Sys    = 0x05
)

// ModRM.reg extensions for the group opcodes.
const (
	extAdd = 0
	extSub = 5
	extCmp = 7
	extInc = 0
	extDec = 1
	extDiv = 6
)

// Mov emits mov dst, src (64 bit).
func (a *Assembler) Mov(dst, src Reg) {
	a.encRR(true, false, []byte{opMovRMR}, src, dst)
}

// Mov32 emits mov dst32, src32, which zero extends into dst.
func (a *Assembler) Mov32(dst, src Reg) {
	a.encRR(false, false, []byte{opMovRMR}, src, dst)
}

// MovImm32 emits mov dst32, imm32, which zero extends into dst.
func (a *Assembler) MovImm32(dst Reg, imm uint32) {
	a.rex(false, RAX, RAX, dst, false)
	a.buf = append(a.buf, opMovRImm32+dst.low())
	a.imm32(imm)
}

// Load emits mov dst, qword [m].
func (a *Assembler) Load(dst Reg, m Mem) {
	a.encRM(true, false, []byte{opMovRRM}, dst, m)
}

// Load32 emits mov dst32, dword [m].
func (a *Assembler) Load32(dst Reg, m Mem) {
	a.encRM(false, false, []byte{opMovRRM}, dst, m)
}

// LoadU8 emits movzx dst32, byte [m].
func (a *Assembler) LoadU8(dst Reg, m Mem) {
	a.encRM(false, false, []byte{opEscape, op2Movzx8}, dst, m)
}

// LoadS32 emits movsxd dst, dword [m].
func (a *Assembler) LoadS32(dst Reg, m Mem) {
	a.encRM(true, false, []byte{opMovsxd}, dst, m)
}

// Store emits mov qword [m], src.
func (a *Assembler) Store(m Mem, src Reg) {
	a.encRM(true, false, []byte{opMovRMR}, src, m)
}

// Store8 emits mov byte [m], src8.
func (a *Assembler) Store8(m Mem, src Reg) {
	a.encRM(false, src.needsRex8(), []byte{opMovRM8R8}, src, m)
}

// Store8Imm emits mov byte [m], imm8.
func (a *Assembler) Store8Imm(m Mem, imm byte) {
	a.encRM(false, false, []byte{opMovRMImm8}, RAX, m)
	a.imm8(imm)
}

// Lea emits lea dst, [m].
func (a *Assembler) Lea(dst Reg, m Mem) {
	a.encRM(true, false, []byte{opLea}, dst, m)
}

// LeaRIP emits lea dst, [rip + target].
// The displacement is a PCRel fixup.
func (a *Assembler) LeaRIP(dst Reg, target Label) {
	inst := a.Offset()
	a.rex(true, dst, RAX, RAX, false)
	a.buf = append(a.buf, opLea, dst.low()<<3|0x05)
	a.placeholder(PCRel, inst, 4, target)
}

// Add emits add dst, src (64 bit).
func (a *Assembler) Add(dst, src Reg) {
	a.encRR(true, false, []byte{opAddRMR}, src, dst)
}

// Sub emits sub dst, src (64 bit).
func (a *Assembler) Sub(dst, src Reg) {
	a.encRR(true, false, []byte{opSubRMR}, src, dst)
}

// Cmp emits cmp x, y (64 bit).
func (a *Assembler) Cmp(x, y Reg) {
	a.encRR(true, false, []byte{opCmpRMR}, y, x)
}

// Test emits test x, y (64 bit).
func (a *Assembler) Test(x, y Reg) {
	a.encRR(true, false, []byte{opTestRMR}, y, x)
}

// Test32 emits test x32, y32.
func (a *Assembler) Test32(x, y Reg) {
	a.encRR(false, false, []byte{opTestRMR}, y, x)
}

// Xor emits xor dst, src (64 bit).
func (a *Assembler) Xor(dst, src Reg) {
	a.encRR(true, false, []byte{opXorRMR}, src, dst)
}

// Xor32 emits xor dst32, src32.
func (a *Assembler) Xor32(dst, src Reg) {
	a.encRR(false, false, []byte{opXorRMR}, src, dst)
}

// AddImm emits add dst, imm8 (sign extended, 64 bit).
func (a *Assembler) AddImm(dst Reg, imm int8) {
	a.encRR(true, false, []byte{opGrp1Imm8}, extAdd, dst)
	a.imm8(byte(imm))
}

// SubImm emits sub dst, imm8 (sign extended, 64 bit).
func (a *Assembler) SubImm(dst Reg, imm int8) {
	a.encRR(true, false, []byte{opGrp1Imm8}, extSub, dst)
	a.imm8(byte(imm))
}

// CmpImm emits cmp x, imm8 (sign extended, 64 bit).
func (a *Assembler) CmpImm(x Reg, imm int8) {
	a.encRR(true, false, []byte{opGrp1Imm8}, extCmp, x)
	a.imm8(byte(imm))
}

// Add8Imm emits add dst8, imm8.
func (a *Assembler) Add8Imm(dst Reg, imm byte) {
	a.encRR(false, dst.needsRex8(), []byte{opGrp1RM8}, extAdd, dst)
	a.imm8(imm)
}

// CmpAL emits cmp al, imm8.
func (a *Assembler) CmpAL(imm byte) {
	a.buf = append(a.buf, opCmpALImm8, imm)
}

// Inc emits inc r (64 bit).
func (a *Assembler) Inc(r Reg) {
	a.encRR(true, false, []byte{opGrp5}, extInc, r)
}

// Dec emits dec r (64 bit).
func (a *Assembler) Dec(r Reg) {
	a.encRR(true, false, []byte{opGrp5}, extDec, r)
}

// Div32 emits div r32: edx:eax / r32, quotient in eax, remainder in edx.
func (a *Assembler) Div32(r Reg) {
	a.encRR(false, false, []byte{opGrp3}, extDiv, r)
}

// Setcc emits set<c> dst8.
func (a *Assembler) Setcc(c Cond, dst Reg) {
	a.encRR(false, dst.needsRex8(), []byte{opEscape, op2Setcc | byte(c)}, RAX, dst)
}

// Movzx8 emits movzx dst32, src8.
func (a *Assembler) Movzx8(dst, src Reg) {
	a.encRR(false, src.needsRex8(), []byte{opEscape, op2Movzx8}, dst, src)
}

// Syscall emits syscall.
func (a *Assembler) Syscall() {
	a.buf = append(a.buf, opEscape, op2Sys)
}

// Jmp emits jmp rel32 to target.
func (a *Assembler) Jmp(target Label) {
	inst := a.Offset()
	a.buf = append(a.buf, opJmpRel32)
	a.placeholder(Branch, inst, 4, target)
}

// JmpShort emits jmp rel8 to target.
func (a *Assembler) JmpShort(target Label) {
	inst := a.Offset()
	a.buf = append(a.buf, opJmpRel8)
	a.placeholder(Branch, inst, 1, target)
}

// Jcc emits j<c> rel32 to target.
func (a *Assembler) Jcc(c Cond, target Label) {
	inst := a.Offset()
	a.buf = append(a.buf, opEscape, op2Jcc|byte(c))
	a.placeholder(Branch, inst, 4, target)
}

// JccShort emits j<c> rel8 to target.
func (a *Assembler) JccShort(c Cond, target Label) {
	inst := a.Offset()
	a.buf = append(a.buf, opJccRel8|byte(c))
	a.placeholder(Branch, inst, 1, target)
}
