// Package resolver classifies every name in a program as a local register,
// a captured upvalue or a global, and computes each function literal's local
// and upvalue lists.
//
// Results are kept in a Table keyed by node identity; the syntax tree itself
// is never modified.
package resolver

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/xirelogy/bulfinch/internal/ast"
)

var (
	// ErrAlreadyResolved reports a name or function resolved twice.
	ErrAlreadyResolved = errors.New("already resolved")
	// ErrUnresolved reports a query for a node the resolver never visited.
	ErrUnresolved = errors.New("unresolved")
)

// Kind classifies a resolved name.
type Kind int

const (
	Unresolved Kind = iota
	Local
	Global
	Upvalue
)

// Binding is the classification of one name occurrence. Index is the
// register for Local and the upvalue slot for Upvalue.
type Binding struct {
	Kind  Kind
	Index int
}

func (b Binding) String() string {
	switch b.Kind {
	case Local:
		return fmt.Sprintf("local %d", b.Index)
	case Upvalue:
		return fmt.Sprintf("upvalue %d", b.Index)
	case Global:
		return "global"
	default:
		return "unresolved"
	}
}

// UpvalueRef describes one captured variable of a function literal.
// Source >= 0 is a local register of the immediately enclosing function;
// a negative Source is the enclosing function's own upvalue slot, encoded
// by OuterSource.
type UpvalueRef struct {
	Name   string
	Slot   int
	Source int
}

// LocalSource encodes a capture of the enclosing function's register.
func LocalSource(register int) int { return register }

// OuterSource encodes a capture forwarded from the enclosing function's
// upvalue slot.
func OuterSource(slot int) int { return -slot - 1 }

// IsLocal reports whether the ref captures a register of the enclosing
// function rather than forwarding one of its upvalues.
func (u UpvalueRef) IsLocal() bool { return u.Source >= 0 }

// Index returns the enclosing register or upvalue slot.
func (u UpvalueRef) Index() int {
	if u.IsLocal() {
		return u.Source
	}
	return -u.Source - 1
}

// Scope is the resolved shape of one function literal. Locals holds the
// parameters first, then var declarations in declaration order; a local's
// position is its register.
type Scope struct {
	NumParams int
	Locals    []string
	Upvalues  []UpvalueRef
}

// Table is the side table filled in by resolution.
type Table struct {
	names  map[*ast.Name]Binding
	scopes map[*ast.FunctionLiteral]*Scope
}

func NewTable() *Table {
	return &Table{
		names:  make(map[*ast.Name]Binding),
		scopes: make(map[*ast.FunctionLiteral]*Scope),
	}
}

// Resolve resolves every top-level function of prog into a fresh table.
func Resolve(prog *ast.Program) (*Table, error) {
	t := NewTable()
	for _, decl := range prog.Functions {
		if err := t.ResolveFunction(decl.Func); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", decl.Name, err)
		}
	}
	return t, nil
}

// ResolveFunction resolves a top-level function literal and everything
// nested in it.
func (t *Table) ResolveFunction(fn *ast.FunctionLiteral) error {
	return t.resolveFunction(fn, nil)
}

// Binding returns the classification of a name occurrence.
func (t *Table) Binding(n *ast.Name) (Binding, error) {
	b, ok := t.names[n]
	if !ok {
		return Binding{}, fmt.Errorf("%w: name %q", ErrUnresolved, n.Identifier)
	}
	return b, nil
}

// Scope returns the resolved locals and upvalues of a function literal.
func (t *Table) Scope(fn *ast.FunctionLiteral) (*Scope, error) {
	s, ok := t.scopes[fn]
	if !ok {
		return nil, fmt.Errorf("%w: function literal", ErrUnresolved)
	}
	return s, nil
}

func (t *Table) bind(n *ast.Name, b Binding) error {
	if _, ok := t.names[n]; ok {
		return fmt.Errorf("%w: name %q", ErrAlreadyResolved, n.Identifier)
	}
	t.names[n] = b
	return nil
}

// context is the per-function resolution state, chained to the lexically
// enclosing function.
type context struct {
	parent *context
	scope  *Scope
}

func (t *Table) resolveFunction(fn *ast.FunctionLiteral, parent *context) error {
	if _, ok := t.scopes[fn]; ok {
		return fmt.Errorf("%w: function literal", ErrAlreadyResolved)
	}
	scope := &Scope{
		NumParams: len(fn.Params),
		Locals:    slices.Clone(fn.Params),
		Upvalues:  []UpvalueRef{},
	}
	t.scopes[fn] = scope
	return t.walk(&context{parent: parent, scope: scope}, fn.Body)
}

func (t *Table) walk(ctx *context, expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.BoolLiteral, *ast.NumberLiteral, *ast.StringLiteral:
		return nil
	case *ast.NameExpr:
		return t.resolveName(ctx, e.Name)
	case *ast.AssignExpr:
		if err := t.resolveName(ctx, e.Target); err != nil {
			return err
		}
		return t.walk(ctx, e.Value)
	case *ast.VarExpr:
		// The slot exists from the declaration on, so the initializer can
		// already see (and capture) it.
		ctx.scope.Locals = append(ctx.scope.Locals, e.Target.Identifier)
		if err := t.bind(e.Target, Binding{Kind: Local, Index: len(ctx.scope.Locals) - 1}); err != nil {
			return err
		}
		return t.walk(ctx, e.Value)
	case *ast.FunctionLiteral:
		return t.resolveFunction(e, ctx)
	case *ast.CallExpr:
		if err := t.walk(ctx, e.Callee); err != nil {
			return err
		}
		for _, arg := range e.Arguments {
			if err := t.walk(ctx, arg); err != nil {
				return err
			}
		}
		return nil
	case *ast.SequenceExpr:
		for _, el := range e.Expressions {
			if err := t.walk(ctx, el); err != nil {
				return err
			}
		}
		return nil
	case *ast.IfExpr:
		if err := t.walk(ctx, e.Condition); err != nil {
			return err
		}
		if err := t.walk(ctx, e.Then); err != nil {
			return err
		}
		return t.walk(ctx, e.Else)
	default:
		return fmt.Errorf("unsupported expression type %T", expr)
	}
}

func (t *Table) resolveName(ctx *context, n *ast.Name) error {
	if reg := ctx.lookupLocal(n.Identifier); reg >= 0 {
		return t.bind(n, Binding{Kind: Local, Index: reg})
	}
	if slot, ok := ctx.capture(n.Identifier); ok {
		return t.bind(n, Binding{Kind: Upvalue, Index: slot})
	}
	return t.bind(n, Binding{Kind: Global})
}

// lookupLocal returns the register of the most recent declaration of name,
// or -1.
func (c *context) lookupLocal(name string) int {
	for i := len(c.scope.Locals) - 1; i >= 0; i-- {
		if c.scope.Locals[i] == name {
			return i
		}
	}
	return -1
}

// capture finds name in an enclosing function and threads an upvalue
// through every function in between, returning the slot in c.
func (c *context) capture(name string) (int, bool) {
	if c.parent == nil {
		return -1, false
	}
	if reg := c.parent.lookupLocal(name); reg >= 0 {
		return c.addUpvalue(name, LocalSource(reg)), true
	}
	if slot, ok := c.parent.capture(name); ok {
		return c.addUpvalue(name, OuterSource(slot)), true
	}
	return -1, false
}

func (c *context) addUpvalue(name string, source int) int {
	idx := slices.IndexFunc(c.scope.Upvalues, func(u UpvalueRef) bool {
		return u.Name == name && u.Source == source
	})
	if idx >= 0 {
		return idx
	}
	slot := len(c.scope.Upvalues)
	c.scope.Upvalues = append(c.scope.Upvalues, UpvalueRef{Name: name, Slot: slot, Source: source})
	return slot
}
