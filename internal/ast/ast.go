package ast

import "github.com/xirelogy/bulfinch/internal/token"

// Node represents any syntax tree node.
type Node interface {
	Pos() token.Position
}

// Expression produces a value. Every node in a function body is an expression.
type Expression interface {
	Node
	exprNode()
}

// Program is the root node: the top-level function definitions in source order.
type Program struct {
	Functions []*FuncDecl
}

// Lookup returns the top-level function literal bound to name.
func (p *Program) Lookup(name string) (*FunctionLiteral, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn.Func, true
		}
	}
	return nil, false
}

// FuncDecl binds a top-level name to a function literal.
type FuncDecl struct {
	Name string
	Func *FunctionLiteral
	PosT token.Position
}

func (f *FuncDecl) Pos() token.Position { return f.PosT }

// Name is one occurrence of an identifier that the resolver classifies.
// Each occurrence is a distinct node; resolution results are keyed by its
// identity.
type Name struct {
	Identifier string
	PosT       token.Position
}

func (n *Name) Pos() token.Position { return n.PosT }

// Expressions

type BoolLiteral struct {
	Value bool
	PosT  token.Position
}

func (b *BoolLiteral) Pos() token.Position { return b.PosT }
func (b *BoolLiteral) exprNode()           {}

type NumberLiteral struct {
	Value float64
	PosT  token.Position
}

func (n *NumberLiteral) Pos() token.Position { return n.PosT }
func (n *NumberLiteral) exprNode()           {}

type StringLiteral struct {
	Value string
	PosT  token.Position
}

func (s *StringLiteral) Pos() token.Position { return s.PosT }
func (s *StringLiteral) exprNode()           {}

// NameExpr reads a variable or global function.
type NameExpr struct {
	Name *Name
}

func (n *NameExpr) Pos() token.Position { return n.Name.PosT }
func (n *NameExpr) exprNode()           {}

// AssignExpr writes an existing variable: name = value.
type AssignExpr struct {
	Target *Name
	Value  Expression
}

func (a *AssignExpr) Pos() token.Position { return a.Target.PosT }
func (a *AssignExpr) exprNode()           {}

// VarExpr declares a new local: var name = value.
type VarExpr struct {
	Target *Name
	Value  Expression
	PosT   token.Position
}

func (v *VarExpr) Pos() token.Position { return v.PosT }
func (v *VarExpr) exprNode()           {}

// FunctionLiteral is fn(params) { body }, anonymous or bound by a FuncDecl.
type FunctionLiteral struct {
	Params []string
	Body   Expression
	PosT   token.Position
}

func (f *FunctionLiteral) Pos() token.Position { return f.PosT }
func (f *FunctionLiteral) exprNode()           {}

type CallExpr struct {
	Callee    Expression
	Arguments []Expression
	PosT      token.Position
}

func (c *CallExpr) Pos() token.Position { return c.PosT }
func (c *CallExpr) exprNode()           {}

// SequenceExpr evaluates each expression in order; its value is the last one.
type SequenceExpr struct {
	Expressions []Expression
	PosT        token.Position
}

func (s *SequenceExpr) Pos() token.Position { return s.PosT }
func (s *SequenceExpr) exprNode()           {}

// IfExpr is if cond then a else b.
type IfExpr struct {
	Condition Expression
	Then      Expression
	Else      Expression
	PosT      token.Position
}

func (i *IfExpr) Pos() token.Position { return i.PosT }
func (i *IfExpr) exprNode()           {}
