// package mvmelf wraps assembled machine code in a minimal ELF64 executable.
//
// The image has no sections and exactly one program header. The single
// PT_LOAD segment maps the whole file, headers included, read+write+execute,
// and asks the loader for zero-filled memory past the end of the file.
package mvmelf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the ELF64 file header.
	HeaderSize = 64
	// ProgHeaderSize is the size of one ELF64 program header.
	ProgHeaderSize = 56
	// CodeOffset is the file offset of the first code byte, which is also the entry point.
	CodeOffset = HeaderSize + ProgHeaderSize

	PageSize = 0x1000
	// DefaultBase is the virtual address file offset 0 is mapped at.
	DefaultBase = 0x400000

	// SegmentFlags grants read, write and execute over code and data alike.
	SegmentFlags = elf.PF_R | elf.PF_W | elf.PF_X
)

var ErrNotImage = errors.New("mvmelf: not an image")

// Params describe the image to build.
type Params struct {
	// Base is the virtual address of file offset 0. It must be page aligned.
	Base uint64
	// Code is placed right after the headers, execution starts at Code[0].
	Code []byte
	// Reserve is the number of zero-filled bytes the loader maps after Code.
	Reserve uint64
}

// Entry returns the virtual address of Code[0].
func (p Params) Entry() uint64 {
	return p.Base + CodeOffset
}

func (p Params) Validate() error {
	if p.Base == 0 || p.Base%PageSize != 0 {
		return fmt.Errorf("mvmelf: base %#x is not a non-zero multiple of the page size", p.Base)
	}
	if len(p.Code) == 0 {
		return fmt.Errorf("mvmelf: no code")
	}
	return nil
}

// Build returns the bytes of the executable.
func Build(p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	fileSize := uint64(CodeOffset + len(p.Code))

	var hdr elf.Header64
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	hdr.Type = uint16(elf.ET_EXEC)
	hdr.Machine = uint16(elf.EM_X86_64)
	hdr.Version = uint32(elf.EV_CURRENT)
	hdr.Entry = p.Entry()
	hdr.Phoff = HeaderSize
	hdr.Ehsize = HeaderSize
	hdr.Phentsize = ProgHeaderSize
	hdr.Phnum = 1

	phdr := elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(SegmentFlags),
		Off:    0,
		Vaddr:  p.Base,
		Paddr:  p.Base,
		Filesz: fileSize,
		Memsz:  fileSize + p.Reserve,
		Align:  PageSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, fileSize))
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, &phdr); err != nil {
		return nil, err
	}
	buf.Write(p.Code)
	return buf.Bytes(), nil
}

// Info describes an image produced by Build.
type Info struct {
	Entry    uint64
	Base     uint64
	FileSize uint64
	MemSize  uint64
	Flags    elf.ProgFlag
	// Code is the file-backed bytes after the headers.
	Code []byte
}

// Reserve returns the size of the zero-filled region after the file-backed bytes.
func (in *Info) Reserve() uint64 {
	return in.MemSize - in.FileSize
}

// Inspect parses data as an image and checks that it has the expected shape.
func Inspect(data []byte) (*Info, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	defer f.Close()
	switch {
	case f.Class != elf.ELFCLASS64:
		return nil, fmt.Errorf("%w: class %v", ErrNotImage, f.Class)
	case f.Data != elf.ELFDATA2LSB:
		return nil, fmt.Errorf("%w: data %v", ErrNotImage, f.Data)
	case f.Machine != elf.EM_X86_64:
		return nil, fmt.Errorf("%w: machine %v", ErrNotImage, f.Machine)
	case f.Type != elf.ET_EXEC:
		return nil, fmt.Errorf("%w: type %v", ErrNotImage, f.Type)
	case len(f.Progs) != 1:
		return nil, fmt.Errorf("%w: %d program headers", ErrNotImage, len(f.Progs))
	}
	prog := f.Progs[0]
	if prog.Type != elf.PT_LOAD || prog.Off != 0 {
		return nil, fmt.Errorf("%w: segment %v at offset %d", ErrNotImage, prog.Type, prog.Off)
	}
	if prog.Filesz != uint64(len(data)) || prog.Memsz < prog.Filesz || prog.Filesz < CodeOffset {
		return nil, fmt.Errorf("%w: segment sizes file=%d mem=%d len=%d", ErrNotImage, prog.Filesz, prog.Memsz, len(data))
	}
	if f.Entry != prog.Vaddr+CodeOffset {
		return nil, fmt.Errorf("%w: entry %#x is not the first code byte", ErrNotImage, f.Entry)
	}
	return &Info{
		Entry:    f.Entry,
		Base:     prog.Vaddr,
		FileSize: prog.Filesz,
		MemSize:  prog.Memsz,
		Flags:    prog.Flags,
		Code:     data[CodeOffset:],
	}, nil
}
