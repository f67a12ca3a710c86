package compiler

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/xirelogy/bulfinch/internal/ast"
	"github.com/xirelogy/bulfinch/internal/bytecode"
	"github.com/xirelogy/bulfinch/internal/resolver"
)

var (
	// ErrUnknownLocal reports an assignment or declaration target that is
	// not a local or upvalue of the function being compiled.
	ErrUnknownLocal = errors.New("unknown local")
	// ErrRegisterDiscipline reports a temporary released out of order.
	ErrRegisterDiscipline = errors.New("register stack discipline violated")
)

// Compile compiles every top-level function of a resolved program.
func Compile(prog *ast.Program, table *resolver.Table) (*Module, error) {
	mod := &Module{Functions: make(map[string]*Function, len(prog.Functions))}
	for _, decl := range prog.Functions {
		fn, err := CompileFunction(decl.Func, decl.Name, table)
		if err != nil {
			return nil, err
		}
		mod.Functions[decl.Name] = fn
	}
	return mod, nil
}

// CompileFunction compiles one resolved function literal, and recursively
// the literals nested in it, under the given debug name.
func CompileFunction(lit *ast.FunctionLiteral, name string, table *resolver.Table) (*Function, error) {
	fn, err := compileLiteral(lit, name, table)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		var buf bytes.Buffer
		if err := bytecode.NewDisassembler(&buf).DisassembleFunction(name, fn); err == nil {
			logrus.Debugln(buf.String())
		}
	}
	return fn, nil
}

type funcCompiler struct {
	table  *resolver.Table
	fn     *Function
	regs   *registers
	line   int
	nested int
}

func compileLiteral(lit *ast.FunctionLiteral, name string, table *resolver.Table) (*Function, error) {
	scope, err := table.Scope(lit)
	if err != nil {
		return nil, err
	}
	upvalues := make([]string, len(scope.Upvalues))
	for i, up := range scope.Upvalues {
		upvalues[i] = up.Name
	}
	fc := &funcCompiler{
		table: table,
		fn: &Function{
			Name:      name,
			NumParams: scope.NumParams,
			Locals:    slices.Clone(scope.Locals),
			Upvalues:  upvalues,
		},
		regs: newRegisters(len(scope.Locals)),
		line: lit.Pos().Line,
	}

	result := fc.regs.push()
	if err := fc.compileExpr(lit.Body, result); err != nil {
		return nil, err
	}
	fc.emit(OP_RETURN, result, 0, 0)
	if err := fc.regs.pop(result); err != nil {
		return nil, err
	}
	if err := fc.regs.balanced(); err != nil {
		return nil, err
	}
	fc.fn.NumRegisters = fc.regs.max
	return fc.fn, nil
}

func (fc *funcCompiler) emit(op bytecode.Opcode, a, b, c int) int {
	return fc.fn.Emit(Instruction{Op: op, A: a, B: b, C: c}, fc.line)
}

// compileExpr generates code leaving the value of expr in dest, or only its
// side effects when dest is Discard.
func (fc *funcCompiler) compileExpr(expr ast.Expression, dest int) error {
	prevLine := fc.line
	if line := expr.Pos().Line; line > 0 {
		fc.line = line
	}
	defer func() { fc.line = prevLine }()

	switch e := expr.(type) {
	case *ast.BoolLiteral:
		fc.loadConstant(e.Value, dest)
		return nil
	case *ast.NumberLiteral:
		fc.loadConstant(e.Value, dest)
		return nil
	case *ast.StringLiteral:
		fc.loadConstant(e.Value, dest)
		return nil
	case *ast.NameExpr:
		return fc.compileName(e.Name, dest)
	case *ast.AssignExpr:
		return fc.compileAssign(e.Target, e.Value, dest)
	case *ast.VarExpr:
		b, err := fc.table.Binding(e.Target)
		if err != nil {
			return err
		}
		if b.Kind != resolver.Local {
			return fmt.Errorf("%w: var %s resolved as %s", ErrUnknownLocal, e.Target.Identifier, b)
		}
		return fc.compileLocalStore(b.Index, e.Value, dest)
	case *ast.FunctionLiteral:
		return fc.compileClosure(e, dest)
	case *ast.CallExpr:
		return fc.compileCall(e, dest)
	case *ast.SequenceExpr:
		last := len(e.Expressions) - 1
		for i, el := range e.Expressions {
			target := Discard
			if i == last {
				target = dest
			}
			if err := fc.compileExpr(el, target); err != nil {
				return err
			}
		}
		return nil
	case *ast.IfExpr:
		return fc.compileIf(e, dest)
	default:
		return fmt.Errorf("unsupported expression type %T", expr)
	}
}

func (fc *funcCompiler) loadConstant(v any, dest int) {
	if dest == Discard {
		return
	}
	fc.emit(OP_CONSTANT, fc.fn.AddConstant(v), dest, 0)
}

func (fc *funcCompiler) compileName(n *ast.Name, dest int) error {
	b, err := fc.table.Binding(n)
	if err != nil {
		return err
	}
	switch b.Kind {
	case resolver.Local:
		if dest != Discard && dest != b.Index {
			fc.emit(OP_MOVE, b.Index, dest, 0)
		}
		return nil
	case resolver.Upvalue:
		if dest != Discard {
			fc.emit(OP_LOAD_UPVAR, b.Index, dest, 0)
		}
		return nil
	case resolver.Global:
		// The lookup itself can fault, so it happens even when discarded.
		target := dest
		if dest == Discard {
			target = fc.regs.push()
		}
		fc.emit(OP_LOAD_GLOBAL, fc.fn.AddConstant(n.Identifier), target, 0)
		if dest == Discard {
			return fc.regs.pop(target)
		}
		return nil
	default:
		return fmt.Errorf("%w: name %s", resolver.ErrUnresolved, n.Identifier)
	}
}

func (fc *funcCompiler) compileAssign(target *ast.Name, value ast.Expression, dest int) error {
	b, err := fc.table.Binding(target)
	if err != nil {
		return err
	}
	switch b.Kind {
	case resolver.Local:
		return fc.compileLocalStore(b.Index, value, dest)
	case resolver.Upvalue:
		src := dest
		provisional := dest == Discard
		if provisional {
			src = fc.regs.push()
		}
		if err := fc.compileExpr(value, src); err != nil {
			return err
		}
		fc.emit(OP_STORE_UPVAR, b.Index, src, 0)
		if provisional {
			return fc.regs.pop(src)
		}
		return nil
	case resolver.Global:
		return fmt.Errorf("%w: cannot assign to global %s", ErrUnknownLocal, target.Identifier)
	default:
		return fmt.Errorf("%w: name %s", resolver.ErrUnresolved, target.Identifier)
	}
}

func (fc *funcCompiler) compileLocalStore(reg int, value ast.Expression, dest int) error {
	if err := fc.compileExpr(value, reg); err != nil {
		return err
	}
	if dest != Discard && dest != reg {
		fc.emit(OP_MOVE, reg, dest, 0)
	}
	return nil
}

func (fc *funcCompiler) compileClosure(lit *ast.FunctionLiteral, dest int) error {
	fc.nested++
	name := fmt.Sprintf("%s$%d", fc.fn.Name, fc.nested)
	child, err := compileLiteral(lit, name, fc.table)
	if err != nil {
		return err
	}
	if dest == Discard {
		return nil
	}
	scope, err := fc.table.Scope(lit)
	if err != nil {
		return err
	}
	fc.emit(OP_CLOSURE, fc.fn.AddConstant(child), dest, 0)
	for _, up := range scope.Upvalues {
		if up.IsLocal() {
			fc.emit(OP_ADD_UPVAR, up.Index(), 0, 0)
		} else {
			fc.emit(OP_ADD_OUTER_UPVAR, up.Index(), 0, 0)
		}
	}
	return nil
}

// compileCall places the callee and its arguments in consecutive
// temporaries; the callee's frame starts right after the callee register.
func (fc *funcCompiler) compileCall(call *ast.CallExpr, dest int) error {
	callee := fc.regs.push()
	if err := fc.compileExpr(call.Callee, callee); err != nil {
		return err
	}
	args := make([]int, len(call.Arguments))
	for i, arg := range call.Arguments {
		args[i] = fc.regs.push()
		if err := fc.compileExpr(arg, args[i]); err != nil {
			return err
		}
	}
	fc.emit(OP_CALL, dest, callee, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		if err := fc.regs.pop(args[i]); err != nil {
			return err
		}
	}
	return fc.regs.pop(callee)
}

func (fc *funcCompiler) compileIf(e *ast.IfExpr, dest int) error {
	cond := fc.regs.push()
	if err := fc.compileExpr(e.Condition, cond); err != nil {
		return err
	}
	jumpIfFalse := fc.emit(OP_JUMP_IF_FALSE, cond, 0, 0)
	if err := fc.regs.pop(cond); err != nil {
		return err
	}
	if err := fc.compileExpr(e.Then, dest); err != nil {
		return err
	}
	jumpOverElse := fc.emit(OP_JUMP, 0, 0, 0)
	fc.patchJump(jumpIfFalse)
	if err := fc.compileExpr(e.Else, dest); err != nil {
		return err
	}
	fc.patchJump(jumpOverElse)
	return nil
}

// patchJump points the jump at offset to the next instruction to be emitted.
func (fc *funcCompiler) patchJump(offset int) {
	in := &fc.fn.Code[offset]
	distance := len(fc.fn.Code) - (offset + 1)
	switch in.Op {
	case OP_JUMP:
		in.A = distance
	case OP_JUMP_IF_FALSE:
		in.B = distance
	}
}
