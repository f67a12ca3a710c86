package resolver

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xirelogy/bulfinch/internal/ast"
	"github.com/xirelogy/bulfinch/internal/lexer"
	"github.com/xirelogy/bulfinch/internal/parser"
)

func resolveProgram(t *testing.T, src string) (*ast.Program, *Table) {
	t.Helper()
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if err := p.Err(); err != nil {
		t.Fatalf("parser errors: %v", err)
	}
	table, err := Resolve(prog)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	return prog, table
}

// collect returns, in source order, the bindings of every name occurrence
// and the function literals nested in fn (fn first).
func collect(t *testing.T, table *Table, fn *ast.FunctionLiteral) ([]string, []*ast.FunctionLiteral) {
	t.Helper()
	var bindings []string
	funcs := []*ast.FunctionLiteral{fn}
	var walk func(ast.Expression)
	record := func(n *ast.Name) {
		b, err := table.Binding(n)
		if err != nil {
			t.Fatalf("binding %s: %v", n.Identifier, err)
		}
		bindings = append(bindings, n.Identifier+": "+b.String())
	}
	walk = func(expr ast.Expression) {
		switch e := expr.(type) {
		case *ast.NameExpr:
			record(e.Name)
		case *ast.AssignExpr:
			record(e.Target)
			walk(e.Value)
		case *ast.VarExpr:
			record(e.Target)
			walk(e.Value)
		case *ast.FunctionLiteral:
			funcs = append(funcs, e)
			walk(e.Body)
		case *ast.CallExpr:
			walk(e.Callee)
			for _, arg := range e.Arguments {
				walk(arg)
			}
		case *ast.SequenceExpr:
			for _, el := range e.Expressions {
				walk(el)
			}
		case *ast.IfExpr:
			walk(e.Condition)
			walk(e.Then)
			walk(e.Else)
		}
	}
	walk(fn.Body)
	return bindings, funcs
}

func scopeOf(t *testing.T, table *Table, fn *ast.FunctionLiteral) *Scope {
	t.Helper()
	s, err := table.Scope(fn)
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	return s
}

func TestResolveLocalsAndGlobals(t *testing.T) {
	prog, table := resolveProgram(t, `
fn helper() { 1 }
fn main(a) {
  var b = helper()
  b = a
  missing
}`)
	main, _ := prog.Lookup("main")
	bindings, _ := collect(t, table, main)
	want := []string{
		"b: local 1",
		"helper: global",
		"b: local 1",
		"a: local 0",
		"missing: global",
	}
	if diff := cmp.Diff(want, bindings); diff != "" {
		t.Fatalf("bindings mismatch (-want +got):\n%s", diff)
	}
	scope := scopeOf(t, table, main)
	if diff := cmp.Diff(&Scope{NumParams: 1, Locals: []string{"a", "b"}, Upvalues: []UpvalueRef{}}, scope); diff != "" {
		t.Fatalf("scope mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveDirectCapture(t *testing.T) {
	prog, table := resolveProgram(t, `
fn main() {
  var x = 1
  var f = fn() { x = 2; x }
  f()
}`)
	main, _ := prog.Lookup("main")
	bindings, funcs := collect(t, table, main)
	want := []string{
		"x: local 0",
		"f: local 1",
		"x: upvalue 0",
		"x: upvalue 0",
		"f: local 1",
	}
	if diff := cmp.Diff(want, bindings); diff != "" {
		t.Fatalf("bindings mismatch (-want +got):\n%s", diff)
	}
	inner := scopeOf(t, table, funcs[1])
	wantUp := []UpvalueRef{{Name: "x", Slot: 0, Source: LocalSource(0)}}
	if diff := cmp.Diff(wantUp, inner.Upvalues); diff != "" {
		t.Fatalf("upvalues mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveFlattensThroughIntermediateFunctions(t *testing.T) {
	prog, table := resolveProgram(t, `
fn main() {
  var y = 0
  var x = 7
  fn() { fn() { fn() { x } } }
}`)
	main, _ := prog.Lookup("main")
	_, funcs := collect(t, table, main)
	if len(funcs) != 4 {
		t.Fatalf("expected 4 functions, got %d", len(funcs))
	}

	outer := scopeOf(t, table, funcs[1])
	middle := scopeOf(t, table, funcs[2])
	inner := scopeOf(t, table, funcs[3])

	if diff := cmp.Diff([]UpvalueRef{{Name: "x", Slot: 0, Source: LocalSource(1)}}, outer.Upvalues); diff != "" {
		t.Fatalf("outer upvalues (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]UpvalueRef{{Name: "x", Slot: 0, Source: OuterSource(0)}}, middle.Upvalues); diff != "" {
		t.Fatalf("middle upvalues (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]UpvalueRef{{Name: "x", Slot: 0, Source: OuterSource(0)}}, inner.Upvalues); diff != "" {
		t.Fatalf("inner upvalues (-want +got):\n%s", diff)
	}
	if outer.Upvalues[0].IsLocal() != true || outer.Upvalues[0].Index() != 1 {
		t.Fatalf("unexpected outer source %+v", outer.Upvalues[0])
	}
	if middle.Upvalues[0].IsLocal() || middle.Upvalues[0].Index() != 0 {
		t.Fatalf("unexpected middle source %+v", middle.Upvalues[0])
	}
}

func TestResolveReusesUpvalueSlots(t *testing.T) {
	prog, table := resolveProgram(t, `
fn main() {
  var a = 1
  var b = 2
  fn() { a; b; a; fn() { b } }
}`)
	main, _ := prog.Lookup("main")
	bindings, funcs := collect(t, table, main)
	want := []string{
		"a: local 0",
		"b: local 1",
		"a: upvalue 0",
		"b: upvalue 1",
		"a: upvalue 0",
		"b: upvalue 0",
	}
	if diff := cmp.Diff(want, bindings); diff != "" {
		t.Fatalf("bindings mismatch (-want +got):\n%s", diff)
	}
	outer := scopeOf(t, table, funcs[1])
	wantUp := []UpvalueRef{
		{Name: "a", Slot: 0, Source: LocalSource(0)},
		{Name: "b", Slot: 1, Source: LocalSource(1)},
	}
	if diff := cmp.Diff(wantUp, outer.Upvalues); diff != "" {
		t.Fatalf("upvalues mismatch (-want +got):\n%s", diff)
	}
	inner := scopeOf(t, table, funcs[2])
	if diff := cmp.Diff([]UpvalueRef{{Name: "b", Slot: 0, Source: OuterSource(1)}}, inner.Upvalues); diff != "" {
		t.Fatalf("inner upvalues mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveShadowing(t *testing.T) {
	prog, table := resolveProgram(t, `
fn main(x) {
  fn(x) { x }
  var x = 2
  x
}`)
	main, _ := prog.Lookup("main")
	bindings, funcs := collect(t, table, main)
	want := []string{
		"x: local 0", // parameter of the literal
		"x: local 1",
		"x: local 1",
	}
	if diff := cmp.Diff(want, bindings); diff != "" {
		t.Fatalf("bindings mismatch (-want +got):\n%s", diff)
	}
	if n := len(scopeOf(t, table, funcs[1]).Upvalues); n != 0 {
		t.Fatalf("expected no upvalues, got %d", n)
	}
}

func TestResolveVarIsNotHoisted(t *testing.T) {
	prog, table := resolveProgram(t, `
fn main() {
  var f = fn() { later }
  var later = 1
  f()
}`)
	main, _ := prog.Lookup("main")
	bindings, _ := collect(t, table, main)
	if bindings[1] != "later: global" {
		t.Fatalf("expected forward reference to be global, got %q", bindings[1])
	}
}

func TestResolveVarInitializerSeesItsOwnSlot(t *testing.T) {
	prog, table := resolveProgram(t, `fn main() { var f = fn() { f() } }`)
	main, _ := prog.Lookup("main")
	bindings, funcs := collect(t, table, main)
	want := []string{"f: local 0", "f: upvalue 0"}
	if diff := cmp.Diff(want, bindings); diff != "" {
		t.Fatalf("bindings mismatch (-want +got):\n%s", diff)
	}
	inner := scopeOf(t, table, funcs[1])
	if inner.Upvalues[0].Source != LocalSource(0) {
		t.Fatalf("unexpected source %+v", inner.Upvalues[0])
	}
}

func TestResolveTwiceFails(t *testing.T) {
	prog, table := resolveProgram(t, `fn main() { 1 }`)
	main, _ := prog.Lookup("main")
	err := table.ResolveFunction(main)
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestUnresolvedQueries(t *testing.T) {
	table := NewTable()
	if _, err := table.Binding(&ast.Name{Identifier: "x"}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
	if _, err := table.Scope(&ast.FunctionLiteral{}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}
