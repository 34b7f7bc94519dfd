// package morphcmd implements the morph command line tool.
package morphcmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"morphasm.org/morph/mvmgen"
)

func Root() star.Command {
	return star.NewDir(star.Metadata{
		Short: "generate and inspect bytecode interpreter images",
	}, commands)
}

var commands = map[star.Symbol]star.Command{
	// image commands
	"build":   buildCmd,
	"inspect": inspectCmd,
	"disasm":  disasmCmd,

	// bytecode commands
	"sample":   sampleCmd,
	"dump":     dumpCmd,
	"manifest": manifestCmd,
	"verify":   verifyCmd,
}

// setup returns the command's context with a logger attached.
// The caller syncs the logger before returning.
func setup(c star.Context) (context.Context, *zap.Logger) {
	l := newLogger()
	return logctx.NewContext(c.Context, l), l
}

func newLogger() *zap.Logger {
	lcfg := zap.NewDevelopmentConfig()
	lcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	l, err := lcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

var osExit = os.Exit

// exit flushes l and exits with status.
func exit(l *zap.Logger, status uint8) {
	l.Sync()
	osExit(int(status))
}

var configParam = star.Param[string]{
	Name:    "config",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

var programParam = star.Param[string]{
	Name:    "program",
	Default: star.Ptr(""),
	Parse:   star.ParseString,
}

// The size flags default to the empty string, which leaves the file's value in place.
// Any number given, including 0, overrides it.

var capacityParam = star.Param[*uint32]{
	Name:    "capacity",
	Default: star.Ptr(""),
	Parse:   parseOptUint32,
}

var stackParam = star.Param[*uint32]{
	Name:    "stack",
	Default: star.Ptr(""),
	Parse:   parseOptUint32,
}

var heapParam = star.Param[*uint32]{
	Name:    "heap",
	Default: star.Ptr(""),
	Parse:   parseOptUint32,
}

var baseParam = star.Param[*uint64]{
	Name:    "base",
	Default: star.Ptr(""),
	Parse: func(x string) (*uint64, error) {
		if x == "" {
			return nil, nil
		}
		n, err := strconv.ParseUint(x, 0, 64)
		if err != nil {
			return nil, err
		}
		return &n, nil
	},
}

var configFlags = []star.IParam{configParam, programParam, capacityParam, stackParam, heapParam, baseParam}

func parseOptUint32(x string) (*uint32, error) {
	if x == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(x, 0, 32)
	if err != nil {
		return nil, err
	}
	n32 := uint32(n)
	return &n32, nil
}

// overrides are config values given on the command line.
// A nil field was not given.
type overrides struct {
	Program         string
	ProgramCapacity *uint32
	StackSize       *uint32
	HeapSize        *uint32
	BaseAddress     *uint64
}

func (o overrides) apply(cfg mvmgen.Config) mvmgen.Config {
	if o.Program != "" {
		cfg.Program = o.Program
	}
	if o.ProgramCapacity != nil {
		cfg.ProgramCapacity = *o.ProgramCapacity
	}
	if o.StackSize != nil {
		cfg.StackSize = *o.StackSize
	}
	if o.HeapSize != nil {
		cfg.HeapSize = *o.HeapSize
	}
	if o.BaseAddress != nil {
		cfg.BaseAddress = *o.BaseAddress
	}
	return cfg
}

// loadConfig reads the config file, if one was given, then applies the flags on top.
func loadConfig(c star.Context) (mvmgen.Config, error) {
	cfg := mvmgen.DefaultConfig()
	if p := configParam.Load(c); p != "" {
		var err error
		if cfg, err = mvmgen.LoadConfig(p); err != nil {
			return mvmgen.Config{}, err
		}
	}
	cfg = overrides{
		Program:         programParam.Load(c),
		ProgramCapacity: capacityParam.Load(c),
		StackSize:       stackParam.Load(c),
		HeapSize:        heapParam.Load(c),
		BaseAddress:     baseParam.Load(c),
	}.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return mvmgen.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
