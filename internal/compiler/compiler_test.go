package compiler

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xirelogy/bulfinch/internal/lexer"
	"github.com/xirelogy/bulfinch/internal/parser"
	"github.com/xirelogy/bulfinch/internal/resolver"
)

func compileSource(t *testing.T, src string) *Module {
	t.Helper()
	mod, err := compileString(src)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return mod
}

func compileString(src string) (*Module, error) {
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if err := p.Err(); err != nil {
		return nil, err
	}
	table, err := resolver.Resolve(prog)
	if err != nil {
		return nil, err
	}
	return Compile(prog, table)
}

func lookup(t *testing.T, mod *Module, name string) *Function {
	t.Helper()
	fn := mod.Functions[name]
	if fn == nil {
		t.Fatalf("function %s not found", name)
	}
	return fn
}

func nested(t *testing.T, fn *Function, idx int) *Function {
	t.Helper()
	child, ok := fn.Constants[idx].(*Function)
	if !ok {
		t.Fatalf("constant %d of %s is %T, not a function", idx, fn.Name, fn.Constants[idx])
	}
	return child
}

func checkCode(t *testing.T, fn *Function, want []Instruction) {
	t.Helper()
	if diff := cmp.Diff(want, fn.Code); diff != "" {
		t.Fatalf("%s code mismatch (-want +got):\n%s", fn.Name, diff)
	}
}

func TestCompileFunctions(t *testing.T) {
	cases := []struct {
		name      string
		src       string
		fn        string
		code      []Instruction
		constants []any
		registers int
	}{
		{
			name: "var round trip",
			src:  `fn main() { var a = 3  a }`,
			fn:   "main",
			code: []Instruction{
				{Op: OP_CONSTANT, A: 0, B: 0},
				{Op: OP_MOVE, A: 0, B: 1},
				{Op: OP_RETURN, A: 1},
			},
			constants: []any{3.0},
			registers: 2,
		},
		{
			name: "parameter read",
			src:  `fn add(a, b) { a }`,
			fn:   "add",
			code: []Instruction{
				{Op: OP_MOVE, A: 0, B: 2},
				{Op: OP_RETURN, A: 2},
			},
			registers: 3,
		},
		{
			name: "call convention",
			src:  "fn add(a, b) { a }\nfn main() { add(10, 20) }",
			fn:   "main",
			code: []Instruction{
				{Op: OP_LOAD_GLOBAL, A: 0, B: 1},
				{Op: OP_CONSTANT, A: 1, B: 2},
				{Op: OP_CONSTANT, A: 2, B: 3},
				{Op: OP_CALL, A: 0, B: 1, C: 2},
				{Op: OP_RETURN, A: 0},
			},
			constants: []any{"add", 10.0, 20.0},
			registers: 4,
		},
		{
			name: "sequence discards",
			src:  `fn main() { 1  2  3 }`,
			fn:   "main",
			code: []Instruction{
				{Op: OP_CONSTANT, A: 0, B: 0},
				{Op: OP_RETURN, A: 0},
			},
			constants: []any{3.0},
			registers: 1,
		},
		{
			name: "discarded call keeps side effect",
			src:  `fn main() { f()  true }`,
			fn:   "main",
			code: []Instruction{
				{Op: OP_LOAD_GLOBAL, A: 0, B: 1},
				{Op: OP_CALL, A: Discard, B: 1, C: 0},
				{Op: OP_CONSTANT, A: 1, B: 0},
				{Op: OP_RETURN, A: 0},
			},
			constants: []any{"f", true},
			registers: 2,
		},
		{
			name: "discarded global still looked up",
			src:  `fn main() { g; "s" }`,
			fn:   "main",
			code: []Instruction{
				{Op: OP_LOAD_GLOBAL, A: 0, B: 1},
				{Op: OP_CONSTANT, A: 1, B: 0},
				{Op: OP_RETURN, A: 0},
			},
			constants: []any{"g", "s"},
			registers: 2,
		},
		{
			name: "local assignment writes in place",
			src:  `fn main(x) { x = 4 }`,
			fn:   "main",
			code: []Instruction{
				{Op: OP_CONSTANT, A: 0, B: 0},
				{Op: OP_MOVE, A: 0, B: 1},
				{Op: OP_RETURN, A: 1},
			},
			constants: []any{4.0},
			registers: 2,
		},
		{
			name: "if expression",
			src:  `fn main() { if true then 1 else 2 }`,
			fn:   "main",
			code: []Instruction{
				{Op: OP_CONSTANT, A: 0, B: 1},
				{Op: OP_JUMP_IF_FALSE, A: 1, B: 2},
				{Op: OP_CONSTANT, A: 1, B: 0},
				{Op: OP_JUMP, A: 1},
				{Op: OP_CONSTANT, A: 2, B: 0},
				{Op: OP_RETURN, A: 0},
			},
			constants: []any{true, 1.0, 2.0},
			registers: 2,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fn := lookup(t, compileSource(t, tc.src), tc.fn)
			checkCode(t, fn, tc.code)
			if diff := cmp.Diff(tc.constants, fn.Constants); tc.constants != nil && diff != "" {
				t.Fatalf("constants mismatch (-want +got):\n%s", diff)
			}
			if fn.NumRegisters != tc.registers {
				t.Fatalf("expected %d registers, got %d", tc.registers, fn.NumRegisters)
			}
		})
	}
}

func TestCompileTemporariesAreReused(t *testing.T) {
	fn := lookup(t, compileSource(t, `fn main() { f(1, 2); f(3, 4); f(5) }`), "main")
	// result r0, callee r1, args r2..r3; every call reuses the same window.
	if fn.NumRegisters != 4 {
		t.Fatalf("expected 4 registers, got %d", fn.NumRegisters)
	}
	calls := 0
	for _, in := range fn.Code {
		if in.Op == OP_CALL {
			calls++
			if in.B != 1 {
				t.Fatalf("expected callee in r1, got %v", in)
			}
		}
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestCompileNestedCallArgumentsStayContiguous(t *testing.T) {
	fn := lookup(t, compileSource(t, `fn main() { f(g(1), 2) }`), "main")
	want := []Instruction{
		{Op: OP_LOAD_GLOBAL, A: 0, B: 1},
		{Op: OP_LOAD_GLOBAL, A: 1, B: 3},
		{Op: OP_CONSTANT, A: 2, B: 4},
		{Op: OP_CALL, A: 2, B: 3, C: 1},
		{Op: OP_CONSTANT, A: 3, B: 3},
		{Op: OP_CALL, A: 0, B: 1, C: 2},
		{Op: OP_RETURN, A: 0},
	}
	checkCode(t, fn, want)
	if fn.NumRegisters != 5 {
		t.Fatalf("expected 5 registers, got %d", fn.NumRegisters)
	}
}

func TestCompileClosureCaptures(t *testing.T) {
	main := lookup(t, compileSource(t, `fn main() { var x = 5  fn() { x } }`), "main")
	checkCode(t, main, []Instruction{
		{Op: OP_CONSTANT, A: 0, B: 0},
		{Op: OP_CLOSURE, A: 1, B: 1},
		{Op: OP_ADD_UPVAR, A: 0},
		{Op: OP_RETURN, A: 1},
	})
	inner := nested(t, main, 1)
	if inner.Name != "main$1" {
		t.Fatalf("unexpected nested name %q", inner.Name)
	}
	checkCode(t, inner, []Instruction{
		{Op: OP_LOAD_UPVAR, A: 0, B: 0},
		{Op: OP_RETURN, A: 0},
	})
	if diff := cmp.Diff([]string{"x"}, inner.Upvalues); diff != "" {
		t.Fatalf("upvalue names mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileMultiLevelCaptureForwards(t *testing.T) {
	main := lookup(t, compileSource(t, `fn main() { var x = 5  fn() { fn() { x } } }`), "main")
	middle := nested(t, main, 1)
	checkCode(t, middle, []Instruction{
		{Op: OP_CLOSURE, A: 0, B: 0},
		{Op: OP_ADD_OUTER_UPVAR, A: 0},
		{Op: OP_RETURN, A: 0},
	})
	inner := nested(t, middle, 0)
	if inner.Name != "main$1$1" {
		t.Fatalf("unexpected nested name %q", inner.Name)
	}
	checkCode(t, inner, []Instruction{
		{Op: OP_LOAD_UPVAR, A: 0, B: 0},
		{Op: OP_RETURN, A: 0},
	})
}

func TestCompileUpvalueStore(t *testing.T) {
	main := lookup(t, compileSource(t, `fn main() { var x = 1  fn() { x = 2  x } }`), "main")
	inner := nested(t, main, 1)
	checkCode(t, inner, []Instruction{
		{Op: OP_CONSTANT, A: 0, B: 1},
		{Op: OP_STORE_UPVAR, A: 0, B: 1},
		{Op: OP_LOAD_UPVAR, A: 0, B: 0},
		{Op: OP_RETURN, A: 0},
	})
	if inner.NumRegisters != 2 {
		t.Fatalf("expected 2 registers, got %d", inner.NumRegisters)
	}
}

func TestCompileDiscardedClosureEmitsNothing(t *testing.T) {
	main := lookup(t, compileSource(t, `fn main() { fn() { 1 }  2 }`), "main")
	checkCode(t, main, []Instruction{
		{Op: OP_CONSTANT, A: 0, B: 0},
		{Op: OP_RETURN, A: 0},
	})
}

func TestCompileLineTable(t *testing.T) {
	fn := lookup(t, compileSource(t, "fn main() {\n  f()\n  2\n}"), "main")
	if got := fn.LineForOffset(0); got != 2 {
		t.Fatalf("expected line 2 for callee load, got %d", got)
	}
	if got := fn.LineForOffset(2); got != 3 {
		t.Fatalf("expected line 3 for constant, got %d", got)
	}
}

func TestCompileAssignToGlobalFails(t *testing.T) {
	_, err := compileString(`fn main() { g = 1 }`)
	if !errors.Is(err, ErrUnknownLocal) {
		t.Fatalf("expected ErrUnknownLocal, got %v", err)
	}
}

func TestCompileUnresolvedFunction(t *testing.T) {
	p := parser.New(lexer.New(`fn main() { 1 }`))
	prog := p.ParseProgram()
	_, err := Compile(prog, resolver.NewTable())
	if !errors.Is(err, resolver.ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestRegisterDiscipline(t *testing.T) {
	regs := newRegisters(1)
	a := regs.push()
	b := regs.push()
	if err := regs.pop(a); !errors.Is(err, ErrRegisterDiscipline) {
		t.Fatalf("expected ErrRegisterDiscipline, got %v", err)
	}
	if err := regs.balanced(); !errors.Is(err, ErrRegisterDiscipline) {
		t.Fatalf("expected unbalanced error, got %v", err)
	}
	if err := regs.pop(b); err != nil {
		t.Fatalf("pop b: %v", err)
	}
	if err := regs.pop(a); err != nil {
		t.Fatalf("pop a: %v", err)
	}
	if err := regs.pop(0); !errors.Is(err, ErrRegisterDiscipline) {
		t.Fatalf("expected error popping a local, got %v", err)
	}
	if regs.max != 3 {
		t.Fatalf("expected high-water mark 3, got %d", regs.max)
	}
}
