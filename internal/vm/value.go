package vm

import (
	"fmt"
	"strconv"

	"github.com/xirelogy/bulfinch/internal/bytecode"
)

type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindClosure
)

// Value is a register value. The zero Value is nil.
type Value struct {
	Kind Kind
	B    bool
	Num  float64
	Str  string
	Fn   *Closure
}

func Nil() Value { return Value{} }
func Bool(b bool) Value {
	return Value{Kind: KindBool, B: b}
}
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}
func ClosureVal(c *Closure) Value {
	return Value{Kind: KindClosure, Fn: c}
}

// Closure pairs a compiled function with one cell per captured variable.
type Closure struct {
	Fn       *bytecode.Function
	Upvalues []*upvalue
}

func (c *Closure) Name() string {
	if c == nil || c.Fn == nil || c.Fn.Name == "" {
		return "<anon>"
	}
	return c.Fn.Name
}

// Truthy reports whether v selects the then-arm of a conditional. Only
// false and nil are falsy.
func Truthy(v Value) bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.B
	default:
		return true
	}
}

// Equal compares by value; closures compare by identity.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.B == b.B
	case KindNumber:
		return a.Num == b.Num
	case KindString:
		return a.Str == b.Str
	default:
		return a.Fn == b.Fn
	}
}

// String renders v the way a program's result is printed.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindClosure:
		return "<fn " + v.Fn.Name() + ">"
	default:
		return "<unknown>"
	}
}

func constToValue(c any) (Value, error) {
	switch val := c.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Bool(val), nil
	case float64:
		return Number(val), nil
	case string:
		return String(val), nil
	default:
		return Nil(), fmt.Errorf("unsupported constant %T", c)
	}
}

func typeName(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindClosure:
		return "function"
	default:
		return "unknown"
	}
}
