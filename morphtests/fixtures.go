// package morphtests contains sample bytecode programs with their expected behavior.
package morphtests

import (
	"morphasm.org/morph/mvmprog"
	"morphasm.org/morph/spec"
)

// Fixture is a program and what running it must produce.
type Fixture struct {
	Name    string
	Program []byte
	// Inputs are files which must exist, relative to the working directory, before the program runs.
	Inputs map[string][]byte

	Stdout string
	Status uint8
	// Outputs are files the program must leave behind.
	Outputs map[string][]byte
}

// File is the name the program is written to, and the name an image for it opens.
func (f Fixture) File() string {
	return f.Name + ".bin"
}

// Fixtures returns every sample program.
// heapOffset is the Load/Store address of the first heap byte, which programs that open files need
// in order to place file names where Open looks for them.
// Every program expects a code buffer of at least 2KiB.
func Fixtures(heapOffset int64) (out []Fixture) {
	for _, fn := range []func([]Fixture, int64) []Fixture{
		printFixtures,
		controlFixtures,
		memoryFixtures,
		fileFixtures,
	} {
		out = fn(out, heapOffset)
	}
	return out
}

func printFixtures(out []Fixture, _ int64) []Fixture {
	b := mvmprog.New()
	for _, v := range []int64{123456, 0, 7} {
		b.Push(v)
		b.Op(spec.Print)
	}
	b.Push(0)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "print_test",
		Program: b.MustBuild(),
		Stdout:  "123456\n0\n7\n",
	})

	// only the low 32 bits are printed
	b = mvmprog.New()
	for _, v := range []int64{1<<32 + 5, -1, 1 << 31} {
		b.Push(v)
		b.Op(spec.Print)
	}
	b.Push(0)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "print_truncate",
		Program: b.MustBuild(),
		Stdout:  "5\n4294967295\n2147483648\n",
	})

	b = mvmprog.New()
	b.Push(10)
	b.Push(3)
	b.Op(spec.Sub, spec.Print)
	b.Push(40)
	b.Push(2)
	b.Op(spec.Add, spec.Print)
	b.Push(5)
	b.Push(5)
	b.Op(spec.Eq, spec.Print)
	b.Push(5)
	b.Push(6)
	b.Op(spec.Eq, spec.Print)
	// cells below the operands are untouched
	b.Push(77)
	b.Push(1)
	b.Push(2)
	b.Op(spec.Add, spec.Pop, spec.Dup, spec.Print, spec.Print)
	b.Push(0)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "arith",
		Program: b.MustBuild(),
		Stdout:  "7\n42\n1\n0\n77\n77\n",
	})
	return out
}

func controlFixtures(out []Fixture, _ int64) []Fixture {
	b := mvmprog.New()
	b.Push(3)
	b.Label("start")
	b.Op(spec.Dup)
	b.Push(0)
	b.Op(spec.Eq)
	b.Jz("logic")
	b.Op(spec.Exit)
	b.Label("logic")
	b.Push(1)
	b.Op(spec.Sub)
	b.Jmp("start")
	out = append(out, Fixture{
		Name:    "countdown",
		Program: b.MustBuild(),
	})

	b = mvmprog.New()
	b.Push(3)
	b.Label("start")
	b.Op(spec.Dup, spec.Print, spec.Dup)
	b.Jz("done")
	b.Push(1)
	b.Op(spec.Sub)
	b.Jmp("start")
	b.Label("done")
	b.Push(9)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "countdown_print",
		Program: b.MustBuild(),
		Stdout:  "3\n2\n1\n0\n",
		Status:  9,
	})

	// unknown bytes and Nop are skipped
	b = mvmprog.New()
	b.Push(5)
	b.Raw(0x42, byte(spec.Nop), 0xAB)
	b.Op(spec.Print)
	b.Raw(0x10)
	b.Push(3)
	b.Raw(0xFE)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "unknown_opcode",
		Program: b.MustBuild(),
		Stdout:  "5\n",
		Status:  3,
	})

	// only the low 8 bits of the status reach the parent
	b = mvmprog.New()
	b.Push(300)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "exit_status",
		Program: b.MustBuild(),
		Status:  44,
	})
	return out
}

func memoryFixtures(out []Fixture, _ int64) []Fixture {
	const a, c = 1024, 1032
	b := mvmprog.New()
	b.Push(42)
	b.Push(a)
	b.Op(spec.Store)
	b.Push(-7)
	b.Push(c)
	b.Op(spec.Store)
	b.Push(a)
	b.Op(spec.Load, spec.Print)
	b.Push(c)
	b.Op(spec.Load)
	b.Push(0)
	b.Op(spec.Sub, spec.Print)
	b.Push(99)
	b.Push(a)
	b.Op(spec.Store)
	b.Push(a)
	b.Op(spec.Load, spec.Print)
	b.Push(c)
	b.Op(spec.Load)
	b.Push(7)
	b.Op(spec.Add, spec.Print)
	b.Push(0)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "store_load",
		Program: b.MustBuild(),
		Stdout:  "42\n4294967289\n99\n0\n",
	})
	return out
}

const (
	nameAt = 0
	dataAt = 64
	bufAt  = 200
)

func fileFixtures(out []Fixture, heap int64) []Fixture {
	// read the first 10 bytes of a file, print the count, echo 6 of them
	b := mvmprog.New()
	b.Store(heap+nameAt, []byte("input.txt\x00"))
	b.Push(nameAt)
	b.Push(0)
	b.Op(spec.Open, spec.Dup)
	b.Push(bufAt)
	b.Push(10)
	b.Op(spec.Read, spec.Dup, spec.Print, spec.Pop)
	b.Push(1)
	b.Push(bufAt)
	b.Push(6)
	b.Op(spec.Write, spec.Close)
	b.Push(0)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "read_write",
		Program: b.MustBuild(),
		Inputs:  map[string][]byte{"input.txt": []byte("Hello, Morph!\n")},
		Stdout:  "10\nHello,",
	})

	// write a file, then read it back
	b = mvmprog.New()
	b.Store(heap+nameAt, []byte("output.txt\x00"))
	b.Store(heap+dataAt, []byte("written\n"))
	b.Push(nameAt)
	b.Push(spec.OpenModeWrite)
	b.Op(spec.Open, spec.Dup)
	b.Push(dataAt)
	b.Push(8)
	b.Op(spec.Write, spec.Close)
	b.Push(nameAt)
	b.Push(0)
	b.Op(spec.Open, spec.Dup)
	b.Push(bufAt)
	b.Push(64)
	b.Op(spec.Read, spec.Print)
	b.Push(1)
	b.Push(bufAt)
	b.Push(8)
	b.Op(spec.Write, spec.Close)
	b.Push(0)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "write_file",
		Program: b.MustBuild(),
		Stdout:  "8\nwritten\n",
		Outputs: map[string][]byte{"output.txt": []byte("written\n")},
	})

	// opening a missing file is not checked, -ENOENT is pushed like any descriptor
	b = mvmprog.New()
	b.Store(heap+nameAt, []byte("missing.txt\x00"))
	b.Push(nameAt)
	b.Push(0)
	b.Op(spec.Open, spec.Print)
	b.Push(0)
	b.Op(spec.Exit)
	out = append(out, Fixture{
		Name:    "open_missing",
		Program: b.MustBuild(),
		Stdout:  "4294967294\n",
	})
	return out
}

// FullStackPrint fills the stack to its last cell, prints, then prints the first heap cells.
// Print must leave the heap alone at every depth the stack allows.
// The program is longer than the other samples: it needs a code buffer of at least 8KiB.
func FullStackPrint(heapOffset, stackSize int64) Fixture {
	b := mvmprog.New()
	b.Store(heapOffset, []byte("ABCDEFGHABCDEFGHABCDEFGHABCDEFGH"))
	for i := int64(0); i < stackSize/spec.CellBytes; i++ {
		b.Push(7)
	}
	b.Op(spec.Print)
	stdout := "7\n"
	for off := int64(0); off < 32; off += spec.CellBytes {
		b.Push(heapOffset + off)
		b.Op(spec.Load, spec.Print)
		// "ABCD" as a little endian uint32
		stdout += "1145258561\n"
	}
	b.Push(0)
	b.Op(spec.Exit)
	return Fixture{
		Name:    "full_stack_print",
		Program: b.MustBuild(),
		Stdout:  stdout,
	}
}
