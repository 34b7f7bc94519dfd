package spec

import "strings"

// All returns every Op in the instruction set, in opcode order.
func All() (ret []Op) {
	for i := 0; i < (1 << OpBits); i++ {
		p := Op(i)
		if strings.HasPrefix(p.String(), "Op(") {
			continue
		}
		ret = append(ret, p)
	}
	return ret
}

// Dispatched returns the operations that have a handler in the engine,
// in the order the dispatch loop tests for them.
// Nop is absent because the default path already skips one byte.
func Dispatched() []Op {
	return []Op{
		Exit,
		Push, Pop, Add, Sub, Jmp, Jz, Eq, Dup, Print,
		Load, Store,
		Open, Write, Close, Read,
	}
}

// ParseOp returns the Op with the given mnemonic.
func ParseOp(x string) (Op, bool) {
	x = strings.ToUpper(x)
	for _, op := range All() {
		if op.String() == x {
			return op, true
		}
	}
	return 0, false
}
