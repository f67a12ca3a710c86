package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xirelogy/bulfinch/internal/bytecode"
	"github.com/xirelogy/bulfinch/internal/pipeline"
	"github.com/xirelogy/bulfinch/internal/script"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Run a program and print the result of main",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := pipeline.CompileFile(args[0])
			if err != nil {
				return err
			}
			machine := opts.newMachine()
			machine.LoadModule(mod)
			val, err := machine.Execute()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), val.String())
			return nil
		},
	}
}

func newDisasmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <file>",
		Short: "Print the compiled bytecode of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mod, err := pipeline.CompileFile(args[0])
			if err != nil {
				return err
			}
			return bytecode.NewDisassembler(cmd.OutOrStdout()).DisassembleModule(mod)
		},
	}
}

func newTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test <path>...",
		Short: "Run scripts and check their '# expect:' comments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &script.Runner{
				Ext:              opts.cfg.ScriptExt,
				InstructionLimit: opts.cfg.InstructionLimit,
				MaxFrames:        opts.cfg.MaxFrames,
				TraceHook:        opts.traceHook(),
			}
			results, err := runner.RunPaths(args)
			out := cmd.OutOrStdout()
			color := opts.colorEnabled(out)
			failed := 0
			for _, res := range results {
				if res.Passed {
					fmt.Fprintf(out, "%s %s\n", mark("PASS", ansiGreen, color), res.Script.Path)
					continue
				}
				failed++
				fmt.Fprintf(out, "%s %v\n", mark("FAIL", ansiRed, color), res.Failure())
			}
			fmt.Fprintf(out, "%d passed, %d failed\n", len(results)-failed, failed)
			return err
		},
	}
}

func mark(label, ansi string, color bool) string {
	if !color {
		return label
	}
	return ansi + label + ansiReset
}
