// package mvmgen generates the native interpreter engine and lays it out as an image.
//
// The layout is fixed:
//
//	bootstrap | dispatch | handlers... | exit | fatal | program name | pad
//
// followed in memory by the zero-filled code buffer, operand stack and heap.
package mvmgen

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"morphasm.org/morph/internal/amd64"
	"morphasm.org/morph/mvmelf"
	"morphasm.org/morph/spec"
)

const (
	LabelBootstrap amd64.Label = "bootstrap"
	LabelLoop      amd64.Label = "loop"
	LabelDefault   amd64.Label = "default"
	LabelFatal     amd64.Label = "fatal"
	LabelProgram   amd64.Label = "program_name"
	// LabelBuffer is the first byte past the file, where the bytecode is read to.
	LabelBuffer amd64.Label = "buffer"
)

// HandlerLabel returns the label of op's handler block.
func HandlerLabel(op spec.Op) amd64.Label {
	return amd64.Label("op_" + strings.ToLower(op.String()))
}

// localLabel names a branch target inside op's handler.
func localLabel(op spec.Op, name string) amd64.Label {
	return HandlerLabel(op) + amd64.Label("."+name)
}

// Generator produces images for one Config.
// It holds no other state, so images are a pure function of the Config.
type Generator struct {
	cfg Config
}

func New(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

func (g *Generator) Config() Config {
	return g.cfg
}

// Link lays out the engine and resolves every fixup.
func (g *Generator) Link() (*Layout, error) {
	a := amd64.New()
	g.emitBootstrap(a)
	emitDispatch(a)
	emitHandlers(a)
	emitFatal(a)
	g.emitData(a)

	code, err := a.Link()
	if err != nil {
		return nil, fmt.Errorf("mvmgen: linking engine: %w", err)
	}
	labels := a.Labels()
	syms := make([]Symbol, len(labels))
	for i, l := range labels {
		off, _ := a.LabelOffset(l)
		syms[i] = Symbol{Label: l, Offset: off}
	}
	return &Layout{
		Config:  g.cfg,
		Code:    code,
		Symbols: syms,
		Fixups:  a.Fixups(),
	}, nil
}

// Assemble returns the bytes of the executable image.
func (g *Generator) Assemble() ([]byte, error) {
	l, err := g.Link()
	if err != nil {
		return nil, err
	}
	return l.Image()
}

// Build is Assemble with logging.
func (g *Generator) Build(ctx context.Context) ([]byte, error) {
	l, err := g.Link()
	if err != nil {
		return nil, err
	}
	engine, _ := l.Offset(LabelProgram)
	logctx.Debug(ctx, "linked engine",
		zap.Int("engine_bytes", engine),
		zap.Int("code_bytes", len(l.Code)),
		zap.Int("fixups", len(l.Fixups)),
		zap.String("program", g.cfg.Program),
	)
	img, err := l.Image()
	if err != nil {
		return nil, err
	}
	logctx.Debug(ctx, "built image", zap.Int("size", len(img)), zap.Uint64("reserve", g.cfg.Reserve()))
	return img, nil
}

// Symbol is a label and the offset it was bound to, relative to the start of the code.
type Symbol struct {
	Label  amd64.Label
	Offset int
}

// Layout is the linked engine, before it is wrapped in an image.
type Layout struct {
	Config Config
	// Code is everything after the image headers: engine, program name and padding.
	Code []byte
	// Symbols are ordered by offset.
	Symbols []Symbol
	Fixups  []amd64.Fixup
}

func (l *Layout) Offset(label amd64.Label) (int, bool) {
	i := slices.IndexFunc(l.Symbols, func(s Symbol) bool { return s.Label == label })
	if i < 0 {
		return 0, false
	}
	return l.Symbols[i].Offset, true
}

// Addr returns the virtual address label is loaded at.
func (l *Layout) Addr(label amd64.Label) (uint64, bool) {
	off, ok := l.Offset(label)
	if !ok {
		return 0, false
	}
	return l.Config.BaseAddress + mvmelf.CodeOffset + uint64(off), true
}

// Image wraps the code in an ELF image with room for the code buffer, stack and heap.
func (l *Layout) Image() ([]byte, error) {
	return mvmelf.Build(mvmelf.Params{
		Base:    l.Config.BaseAddress,
		Code:    l.Code,
		Reserve: l.Config.Reserve(),
	})
}

func (g *Generator) emitData(a *amd64.Assembler) {
	a.Label(LabelProgram)
	a.Bytes([]byte(g.cfg.Program)...)
	a.Bytes(0)
	a.Align(spec.CellBytes)
	a.Label(LabelBuffer)
}
