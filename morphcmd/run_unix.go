//go:build unix

package morphcmd

import (
	"math"
	"strconv"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"morphasm.org/morph/mvm"
)

func init() {
	commands["run"] = runCmd
}

var stepsParam = star.Param[uint64]{
	Name:    "steps",
	Default: star.Ptr("0"),
	Parse: func(x string) (uint64, error) {
		return strconv.ParseUint(x, 0, 64)
	},
}

var runCmd = star.Command{
	Metadata: star.Metadata{
		Short: "run a bytecode program in the reference interpreter",
		Tags:  []string{"bytecode"},
	},
	Flags: append([]star.IParam{stepsParam}, configFlags...),
	Pos:   []star.IParam{bytecodeParam},
	F: func(c star.Context) error {
		ctx, l := setup(c)
		defer l.Sync()
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		maxSteps := stepsParam.Load(c)
		if maxSteps == 0 {
			maxSteps = math.MaxUint64
		}
		host := mvm.NewOSHost(".", c.StdOut)
		vm := mvm.New(cfg.VMConfig(), host)
		vm.Boot(bytecodeParam.Load(c))
		status, err := vm.Exec(ctx, maxSteps)
		host.Release()
		if err != nil {
			for _, te := range vm.Trace() {
				logctx.Error(ctx, "trace", zap.Stringer("instr", te))
			}
			return err
		}
		logctx.Info(ctx, "exited",
			zap.Uint8("status", status),
			zap.Uint64("steps", vm.Steps()),
			zap.Stringer("state", vm.State()),
		)
		if status != 0 {
			exit(l, status)
		}
		return nil
	},
}
