// Package script runs .bf test scripts. A script's first line states what
// running it must produce:
//
//	# expect: <value>   the stringified result of main, compared byte for byte
//	# error: <text>     a compile or run-time failure whose message contains text
package script

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/xirelogy/bulfinch/internal/pipeline"
	"github.com/xirelogy/bulfinch/internal/vm"
)

const (
	expectPrefix = "# expect: "
	errorPrefix  = "# error: "
	// DefaultExt is the script file extension searched for in directories.
	DefaultExt = ".bf"
)

// ErrNoExpectation reports a script whose first line is not an expectation.
var ErrNoExpectation = errors.New("missing expectation comment")

// Script is one test program and what running it should produce.
type Script struct {
	Path   string
	Source string
	// Expect is the expected result string; WantError, when set, replaces
	// it with a substring of the expected failure.
	Expect    string
	WantError string
}

// Parse reads the expectation from the first line of src.
func Parse(path, src string) (*Script, error) {
	first, _, _ := strings.Cut(src, "\n")
	first = strings.TrimSuffix(first, "\r")
	s := &Script{Path: path, Source: src}
	switch {
	case strings.HasPrefix(first, expectPrefix):
		s.Expect = strings.TrimPrefix(first, expectPrefix)
	case strings.HasPrefix(first, errorPrefix):
		s.WantError = strings.TrimPrefix(first, errorPrefix)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrNoExpectation)
	}
	return s, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, string(data))
}

// Result is the outcome of running one script.
type Result struct {
	Script *Script
	Got    string
	Err    error
	Passed bool
}

// Failure describes why the result did not match.
func (r Result) Failure() error {
	if r.Passed {
		return nil
	}
	if r.Script.WantError != "" {
		if r.Err == nil {
			return fmt.Errorf("%s: expected error containing %q, got result %q", r.Script.Path, r.Script.WantError, r.Got)
		}
		return fmt.Errorf("%s: expected error containing %q, got %v", r.Script.Path, r.Script.WantError, r.Err)
	}
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Script.Path, r.Err)
	}
	return fmt.Errorf("%s: expected %q, got %q", r.Script.Path, r.Script.Expect, r.Got)
}

// Runner executes scripts with shared VM settings.
type Runner struct {
	Ext              string
	InstructionLimit int
	MaxFrames        int
	TraceHook        vm.TraceHook
	Logger           logrus.FieldLogger
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

func (r *Runner) ext() string {
	if r.Ext == "" {
		return DefaultExt
	}
	return r.Ext
}

// Run compiles and executes one script and checks its expectation.
func (r *Runner) Run(s *Script) Result {
	res := Result{Script: s}
	val, err := r.execute(s)
	res.Err = err
	if err == nil {
		res.Got = val.String()
	}
	if s.WantError != "" {
		res.Passed = err != nil && strings.Contains(err.Error(), s.WantError)
	} else {
		res.Passed = err == nil && res.Got == s.Expect
	}

	log := r.logger().WithField("script", s.Path)
	if res.Passed {
		log.Info("pass")
	} else {
		log.WithError(res.Failure()).Warn("fail")
	}
	return res
}

func (r *Runner) execute(s *Script) (vm.Value, error) {
	mod, err := pipeline.Compile(s.Path, s.Source)
	if err != nil {
		return vm.Nil(), err
	}
	machine := vm.New()
	machine.SetInstructionLimit(r.InstructionLimit)
	machine.SetMaxFrames(r.MaxFrames)
	machine.SetTraceHook(r.TraceHook)
	machine.LoadModule(mod)
	return machine.Execute()
}

// Collect expands paths into script files: files are taken as given,
// directories are walked for files with the runner's extension. The result
// is sorted.
func (r *Runner) Collect(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == r.ext() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// RunPaths runs every script under paths. The returned error aggregates
// every failing or unloadable script.
func (r *Runner) RunPaths(paths []string) ([]Result, error) {
	files, err := r.Collect(paths)
	if err != nil {
		return nil, err
	}
	var (
		results []Result
		errs    *multierror.Error
	)
	for _, file := range files {
		s, err := Load(file)
		if err != nil {
			r.logger().WithField("script", file).WithError(err).Warn("skipped")
			errs = multierror.Append(errs, err)
			continue
		}
		res := r.Run(s)
		results = append(results, res)
		if !res.Passed {
			errs = multierror.Append(errs, res.Failure())
		}
	}
	return results, errs.ErrorOrNil()
}
