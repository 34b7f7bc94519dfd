package morphcmd

import (
	"os"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"morphasm.org/morph/internal/amd64"
	"morphasm.org/morph/mvmelf"
	"morphasm.org/morph/mvmgen"
)

var buildCmd = star.Command{
	Metadata: star.Metadata{
		Short: "generate an interpreter image",
		Tags:  []string{"image"},
	},
	Flags: append([]star.IParam{outputParam}, configFlags...),
	F: func(c star.Context) error {
		ctx, l := setup(c)
		defer l.Sync()
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		g, err := mvmgen.New(cfg)
		if err != nil {
			return err
		}
		img, err := g.Build(ctx)
		if err != nil {
			return err
		}
		out := outputParam.Load(c)
		if err := os.WriteFile(out, img, 0o755); err != nil {
			return err
		}
		logctx.Info(ctx, "wrote image",
			zap.String("path", out),
			zap.Int("size", len(img)),
			zap.String("program", cfg.Program),
		)
		return nil
	},
}

var outputParam = star.Param[string]{
	Name:    "o",
	Default: star.Ptr("morph.out"),
	Parse:   star.ParseString,
}

var imageParam = star.Param[string]{
	Name:  "image",
	Parse: star.ParseString,
}

var inspectCmd = star.Command{
	Metadata: star.Metadata{
		Short: "print the header of an interpreter image",
		Tags:  []string{"image"},
	},
	Pos: []star.IParam{imageParam},
	F: func(c star.Context) error {
		data, err := os.ReadFile(imageParam.Load(c))
		if err != nil {
			return err
		}
		info, err := mvmelf.Inspect(data)
		if err != nil {
			return err
		}
		c.Printf("FILE-SIZE: %d bytes\n", info.FileSize)
		c.Printf("MEM-SIZE:  %d bytes\n", info.MemSize)
		c.Printf("RESERVE:   %d bytes\n", info.Reserve())
		c.Printf("BASE:      0x%x\n", info.Base)
		c.Printf("ENTRY:     0x%x\n", info.Entry)
		c.Printf("FLAGS:     %v\n", info.Flags)
		c.Printf("CODE:      %d bytes\n", len(info.Code))
		return nil
	},
}

var disasmCmd = star.Command{
	Metadata: star.Metadata{
		Short: "print the engine's machine code",
		Tags:  []string{"image"},
	},
	Flags: configFlags,
	F: func(c star.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		g, err := mvmgen.New(cfg)
		if err != nil {
			return err
		}
		l, err := g.Link()
		if err != nil {
			return err
		}
		end, _ := l.Offset(mvmgen.LabelProgram)
		pc, _ := l.Addr(mvmgen.LabelBootstrap)
		labels := make(map[int][]amd64.Label)
		for _, sym := range l.Symbols {
			labels[sym.Offset] = append(labels[sym.Offset], sym.Label)
		}
		for _, line := range amd64.Disassemble(l.Code[:end], pc) {
			for _, label := range labels[line.Offset] {
				c.Printf("%s:\n", label)
			}
			c.Printf("  %v\n", line)
		}
		c.Printf("%s:\n  %q\n", mvmgen.LabelProgram, cfg.Program)
		return nil
	},
}
