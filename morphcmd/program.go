package morphcmd

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"morphasm.org/morph"
	"morphasm.org/morph/morphtests"
	"morphasm.org/morph/mvmprog"
)

var dirParam = star.Param[string]{
	Name:  "dir",
	Parse: star.ParseString,
}

var sampleCmd = star.Command{
	Metadata: star.Metadata{
		Short: "write the sample programs and their input files to a directory",
		Tags:  []string{"bytecode"},
	},
	Flags: configFlags,
	Pos:   []star.IParam{dirParam},
	F: func(c star.Context) error {
		ctx, l := setup(c)
		defer l.Sync()
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		dir := dirParam.Load(c)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		fixtures := morphtests.Fixtures(int64(cfg.VMConfig().HeapOffset()))
		eg, ctx := errgroup.WithContext(ctx)
		for _, fx := range fixtures {
			fx := fx
			eg.Go(func() error {
				for name, data := range fx.Inputs {
					if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
						return err
					}
				}
				if err := os.WriteFile(filepath.Join(dir, fx.File()), fx.Program, 0o644); err != nil {
					return err
				}
				logctx.Info(ctx, "wrote sample", zap.String("name", fx.File()), zap.Int("size", len(fx.Program)))
				return nil
			})
		}
		return eg.Wait()
	},
}

var bytecodeParam = star.Param[string]{
	Name:  "bytecode",
	Parse: star.ParseString,
}

var dumpCmd = star.Command{
	Metadata: star.Metadata{
		Short: "disassemble a bytecode program",
		Tags:  []string{"bytecode"},
	},
	Pos: []star.IParam{bytecodeParam},
	F: func(c star.Context) error {
		code, err := os.ReadFile(bytecodeParam.Load(c))
		if err != nil {
			return err
		}
		for _, line := range mvmprog.Disassemble(code) {
			if line.Err != nil {
				c.Printf("%04x: %v\n", line.Offset, line.Err)
				break
			}
			c.Printf("%v\n", line)
		}
		return nil
	},
}

var sourceParam = star.Param[string]{
	Name:  "source",
	Parse: star.ParseString,
}

var manifestOutParam = star.Param[string]{
	Name:    "o",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

var manifestCmd = star.Command{
	Metadata: star.Metadata{
		Short: "compute the integrity manifest of a program and its source",
		Tags:  []string{"bytecode"},
	},
	Flags: []star.IParam{manifestOutParam},
	Pos:   []star.IParam{sourceParam, bytecodeParam},
	F: func(c star.Context) error {
		src, bin, err := readPair(c)
		if err != nil {
			return err
		}
		m := morph.NewManifest(src, bin)
		data, err := m.MarshalBinary()
		if err != nil {
			return err
		}
		if out := manifestOutParam.Load(c); out != "" {
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
		}
		c.Printf("SOURCE:   %v\n", m.Source)
		c.Printf("BYTECODE: %v\n", m.Bytecode)
		c.Printf("MANIFEST: %s\n", hex.EncodeToString(data))
		return nil
	},
}

var manifestParam = star.Param[string]{
	Name:  "manifest",
	Parse: star.ParseString,
}

var verifyCmd = star.Command{
	Metadata: star.Metadata{
		Short: "check a program and its source against a manifest",
		Tags:  []string{"bytecode"},
	},
	Pos: []star.IParam{manifestParam, sourceParam, bytecodeParam},
	F: func(c star.Context) error {
		data, err := os.ReadFile(manifestParam.Load(c))
		if err != nil {
			return err
		}
		var m morph.Manifest
		if err := m.UnmarshalBinary(data); err != nil {
			return err
		}
		src, bin, err := readPair(c)
		if err != nil {
			return err
		}
		if err := m.Verify(src, bin); err != nil {
			return err
		}
		c.Printf("OK\n")
		return nil
	},
}

func readPair(c star.Context) (src, bin []byte, err error) {
	if src, err = os.ReadFile(sourceParam.Load(c)); err != nil {
		return nil, nil, err
	}
	if bin, err = os.ReadFile(bytecodeParam.Load(c)); err != nil {
		return nil, nil, err
	}
	return src, bin, nil
}
