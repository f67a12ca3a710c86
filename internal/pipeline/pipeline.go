// Package pipeline wires the front end to the compiler: source text is
// lexed, parsed, resolved and compiled into a bytecode module.
package pipeline

import (
	"fmt"
	"os"

	"github.com/xirelogy/bulfinch/internal/ast"
	"github.com/xirelogy/bulfinch/internal/bytecode"
	"github.com/xirelogy/bulfinch/internal/compiler"
	"github.com/xirelogy/bulfinch/internal/lexer"
	"github.com/xirelogy/bulfinch/internal/parser"
	"github.com/xirelogy/bulfinch/internal/resolver"
)

// Stage names the step of the pipeline that failed.
type Stage string

const (
	StageRead    Stage = "read"
	StageParse   Stage = "parse"
	StageResolve Stage = "resolve"
	StageCompile Stage = "compile"
)

// Error is a failure before execution, tagged with its stage and source.
type Error struct {
	Stage  Stage
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s error: %v", e.Source, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Parse lexes and parses src.
func Parse(name, src string) (*ast.Program, error) {
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if err := p.Err(); err != nil {
		return nil, &Error{Stage: StageParse, Source: name, Err: err}
	}
	return prog, nil
}

// Compile runs src through every stage; name labels diagnostics.
func Compile(name, src string) (*bytecode.Module, error) {
	prog, err := Parse(name, src)
	if err != nil {
		return nil, err
	}
	table, err := resolver.Resolve(prog)
	if err != nil {
		return nil, &Error{Stage: StageResolve, Source: name, Err: err}
	}
	mod, err := compiler.Compile(prog, table)
	if err != nil {
		return nil, &Error{Stage: StageCompile, Source: name, Err: err}
	}
	mod.Source = name
	return mod, nil
}

// CompileFile reads and compiles the script at path.
func CompileFile(path string) (*bytecode.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Stage: StageRead, Source: path, Err: err}
	}
	return Compile(path, string(data))
}
