package mvmgen

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"lukechampine.com/blake3"

	"morphasm.org/morph/mvm"
	"morphasm.org/morph/mvmelf"
	"morphasm.org/morph/spec"
)

var ErrInvalidConfig = errors.New("mvmgen: invalid config")

const (
	DefaultProgram         = "program.bin"
	DefaultProgramCapacity = 4096
	DefaultStackSize       = 4096
	DefaultHeapSize        = 32768
)

// Config controls the shape of a generated image.
type Config struct {
	// Program is the name of the bytecode file the image opens at startup.
	Program string `toml:"program"`
	// ProgramCapacity is the most bytes of bytecode the image will read,
	// and the size of the region they are read into.
	ProgramCapacity uint32 `toml:"program_capacity"`
	StackSize       uint32 `toml:"stack_size"`
	HeapSize        uint32 `toml:"heap_size"`
	// BaseAddress is where the image is mapped.
	BaseAddress uint64 `toml:"base_address"`
}

func DefaultConfig() Config {
	return Config{
		Program:         DefaultProgram,
		ProgramCapacity: DefaultProgramCapacity,
		StackSize:       DefaultStackSize,
		HeapSize:        DefaultHeapSize,
		BaseAddress:     mvmelf.DefaultBase,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Program == "":
		return fmt.Errorf("%w: program is empty", ErrInvalidConfig)
	case strings.IndexByte(c.Program, 0) >= 0:
		return fmt.Errorf("%w: program %q contains a NUL byte", ErrInvalidConfig, c.Program)
	case c.ProgramCapacity == 0 || c.ProgramCapacity%spec.CellBytes != 0:
		return fmt.Errorf("%w: program_capacity %d must be a positive multiple of %d", ErrInvalidConfig, c.ProgramCapacity, spec.CellBytes)
	case c.StackSize < spec.PrintScratch || c.StackSize%spec.CellBytes != 0:
		return fmt.Errorf("%w: stack_size %d must be a multiple of %d and at least %d", ErrInvalidConfig, c.StackSize, spec.CellBytes, spec.PrintScratch)
	case c.ProgramCapacity > math.MaxInt32 || c.StackSize > math.MaxInt32:
		return fmt.Errorf("%w: regions must be smaller than 2GiB", ErrInvalidConfig)
	case c.BaseAddress == 0 || c.BaseAddress%mvmelf.PageSize != 0:
		return fmt.Errorf("%w: base_address %#x must be a non-zero multiple of %#x", ErrInvalidConfig, c.BaseAddress, mvmelf.PageSize)
	}
	return nil
}

// Reserve returns the number of zero-filled bytes mapped after the file:
// the code buffer, the stack, the gap Print uses above a full stack, and the heap.
func (c Config) Reserve() uint64 {
	return uint64(c.ProgramCapacity) + uint64(c.StackSize) + spec.PrintScratch + uint64(c.HeapSize)
}

// VMConfig returns a reference interpreter config with the same memory layout as the image.
func (c Config) VMConfig() mvm.Config {
	vc := mvm.DefaultConfig()
	vc.ProgramCapacity = int(c.ProgramCapacity)
	vc.StackSize = int(c.StackSize)
	vc.HeapSize = int(c.HeapSize)
	return vc
}

// Fingerprint identifies the image c produces.
func (c Config) Fingerprint() [32]byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint64(buf, c.BaseAddress)
	buf = binary.LittleEndian.AppendUint32(buf, c.ProgramCapacity)
	buf = binary.LittleEndian.AppendUint32(buf, c.StackSize)
	buf = binary.LittleEndian.AppendUint32(buf, c.HeapSize)
	buf = append(buf, c.Program...)
	return blake3.Sum256(buf)
}

// LoadConfig reads a TOML config from path.
// Keys missing from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a TOML config.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Config{}, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undec)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
