package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xirelogy/bulfinch/internal/config"
	"github.com/xirelogy/bulfinch/internal/vm"
)

type options struct {
	configPath       string
	logLevel         string
	trace            bool
	instructionLimit int

	cfg *config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "bulfinch",
		Short:         "Compile and run bulfinch programs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a .toml or .yaml configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	flags.BoolVar(&opts.trace, "trace", false, "log every executed instruction")
	flags.IntVar(&opts.instructionLimit, "instruction-limit", 0, "maximum instructions per run (0 for unlimited)")

	root.AddCommand(newRunCmd(opts), newDisasmCmd(opts), newTestCmd(opts))
	return root
}

// load reads the configuration file and applies flag overrides.
func (o *options) load(cmd *cobra.Command, stderr io.Writer) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("trace") {
		cfg.Trace = o.trace
	}
	if flags.Changed("instruction-limit") {
		cfg.InstructionLimit = o.instructionLimit
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	logrus.SetOutput(stderr)
	level := cfg.Level()
	if cfg.Trace && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	return nil
}

func (o *options) newMachine() *vm.VM {
	machine := vm.New()
	machine.SetInstructionLimit(o.cfg.InstructionLimit)
	machine.SetMaxFrames(o.cfg.MaxFrames)
	machine.SetTraceHook(o.traceHook())
	return machine
}

func (o *options) traceHook() vm.TraceHook {
	if !o.cfg.Trace {
		return nil
	}
	return func(info vm.TraceInfo) {
		regs := make([]string, len(info.Registers))
		for i, v := range info.Registers {
			regs[i] = v.String()
		}
		logrus.WithFields(logrus.Fields{
			"fn":    info.Function,
			"ip":    info.IP,
			"line":  info.Line,
			"depth": info.Depth,
			"base":  info.Base,
		}).Debugf("%-16s %d %d %d | %s", info.Op, info.A, info.B, info.C, strings.Join(regs, " "))
	}
}

// colorEnabled reports whether PASS/FAIL markers should be colored on w.
func (o *options) colorEnabled(w io.Writer) bool {
	switch o.cfg.Color {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
