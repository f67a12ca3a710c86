package vm

import (
	"fmt"

	"github.com/xirelogy/bulfinch/internal/bytecode"
)

type frame struct {
	closure *Closure
	ip      int
	// base is the absolute stack index of register 0 of this frame.
	base   int
	lastOp int
}

// VM is a register-window bytecode interpreter. All frames share one value
// stack; a callee's window starts right after its callee register in the
// caller's window, so arguments become parameters without copying.
type VM struct {
	stack        []Value
	frames       []frame
	globals      map[string]*Closure
	openUpvalues []*upvalue
	source       string
	maxFrames    int
	traceHook    TraceHook
	instLimit    int
	instCount    int
}

const (
	defaultMaxFrames = 1024
	// EntryPoint is the global invoked by Execute.
	EntryPoint = "main"
)

// New constructs an empty VM instance.
func New() *VM {
	return &VM{
		stack:        make([]Value, 0, 256),
		frames:       make([]frame, 0, 16),
		globals:      make(map[string]*Closure),
		openUpvalues: make([]*upvalue, 0),
		maxFrames:    defaultMaxFrames,
	}
}

// SetTraceHook registers a callback for instruction-level tracing.
func (vm *VM) SetTraceHook(h TraceHook) {
	vm.traceHook = h
}

// SetInstructionLimit caps the number of instructions executed per Call (0 for unlimited).
func (vm *VM) SetInstructionLimit(limit int) {
	if limit < 0 {
		limit = 0
	}
	vm.instLimit = limit
}

// SetMaxFrames caps the call depth; values below 1 restore the default.
func (vm *VM) SetMaxFrames(n int) {
	if n < 1 {
		n = defaultMaxFrames
	}
	vm.maxFrames = n
}

// ResetState clears transient execution state (stack, frames, open upvalues).
func (vm *VM) ResetState() {
	clear(vm.stack)
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = vm.openUpvalues[:0]
	vm.instCount = 0
}

// LoadModule binds every top-level function of mod as a global closure.
func (vm *VM) LoadModule(mod *bytecode.Module) {
	if mod == nil {
		return
	}
	if mod.Source != "" {
		vm.source = mod.Source
	}
	for name, fn := range mod.Functions {
		vm.globals[name] = &Closure{Fn: fn, Upvalues: make([]*upvalue, len(fn.Upvalues))}
	}
}

// Execute runs the program: main called with no arguments.
func (vm *VM) Execute() (Value, error) {
	return vm.Call(EntryPoint, nil)
}

// Call invokes a global function by name on a fresh stack.
func (vm *VM) Call(name string, args []Value) (Value, error) {
	vm.ResetState()
	closure, ok := vm.globals[name]
	if !ok {
		return vm.errorf(nil, ErrUnknownGlobal, "%s", name)
	}
	if len(args) != closure.Fn.NumParams {
		return vm.errorf(nil, ErrArity, "%s expects %d, got %d", closure.Name(), closure.Fn.NumParams, len(args))
	}
	// The entry call gets a callee register of its own at index 0, as if it
	// had been called from a frame below it.
	vm.stack = append(vm.stack, ClosureVal(closure))
	vm.frames = append(vm.frames, frame{closure: closure, base: 1, lastOp: -1})
	vm.resize(1 + closure.Fn.NumRegisters)
	copy(vm.stack[1:], args)
	return vm.run()
}

func (vm *VM) run() (Value, error) {
	for {
		fr := &vm.frames[len(vm.frames)-1]
		fn := fr.closure.Fn
		code := fn.Code
		if fr.ip >= len(code) {
			return vm.errorf(fr, ErrUnknownOpcode, "instruction pointer %d past end of %s", fr.ip, fr.closure.Name())
		}
		fr.lastOp = fr.ip
		in := code[fr.ip]
		fr.ip++
		vm.instCount++
		if vm.instLimit > 0 && vm.instCount > vm.instLimit {
			return vm.errorf(fr, ErrInstructionLimit, "%d", vm.instLimit)
		}
		vm.trace(fr, in)

		switch in.Op {
		case bytecode.OP_CONSTANT:
			v, err := constToValue(fn.Constants[in.A])
			if err != nil {
				return vm.errorf(fr, ErrUnknownOpcode, "%v", err)
			}
			vm.store(fr, in.B, v)
		case bytecode.OP_MOVE:
			vm.store(fr, in.B, vm.stack[fr.base+in.A])
		case bytecode.OP_CALL:
			if _, err := vm.call(fr, in); err != nil {
				return Nil(), err
			}
		case bytecode.OP_RETURN:
			result := vm.stack[fr.base+in.A]
			if vm.ret(result) {
				return result, nil
			}
		case bytecode.OP_LOAD_GLOBAL:
			name, ok := fn.Constants[in.A].(string)
			if !ok {
				return vm.errorf(fr, ErrUnknownGlobal, "global name constant is %T", fn.Constants[in.A])
			}
			closure, exists := vm.globals[name]
			if !exists {
				return vm.errorf(fr, ErrUnknownGlobal, "%s", name)
			}
			vm.store(fr, in.B, ClosureVal(closure))
		case bytecode.OP_LOAD_UPVAR:
			vm.store(fr, in.B, fr.closure.Upvalues[in.A].get(vm.stack))
		case bytecode.OP_STORE_UPVAR:
			fr.closure.Upvalues[in.A].set(vm.stack, vm.stack[fr.base+in.B])
		case bytecode.OP_CLOSURE:
			closure, err := vm.makeClosure(fr, in)
			if err != nil {
				return Nil(), err
			}
			vm.store(fr, in.B, ClosureVal(closure))
		case bytecode.OP_ADD_UPVAR, bytecode.OP_ADD_OUTER_UPVAR:
			return vm.errorf(fr, ErrUnknownOpcode, "%s outside CLOSURE", in.Op)
		case bytecode.OP_JUMP:
			fr.ip += in.A
		case bytecode.OP_JUMP_IF_FALSE:
			if !Truthy(vm.stack[fr.base+in.A]) {
				fr.ip += in.B
			}
		default:
			return vm.errorf(fr, ErrUnknownOpcode, "%s", in.Op)
		}
	}
}

func (vm *VM) store(fr *frame, reg int, v Value) {
	if reg == bytecode.Discard {
		return
	}
	vm.stack[fr.base+reg] = v
}

// call pushes a frame for the closure in register in.B of fr.
func (vm *VM) call(fr *frame, in bytecode.Instruction) (Value, error) {
	calleeIdx := fr.base + in.B
	callee := vm.stack[calleeIdx]
	if callee.Kind != KindClosure {
		return vm.errorf(fr, ErrNotCallable, "cannot call %s value %s", typeName(callee), callee)
	}
	fn := callee.Fn.Fn
	if in.C != fn.NumParams {
		return vm.errorf(fr, ErrArity, "%s expects %d, got %d", callee.Fn.Name(), fn.NumParams, in.C)
	}
	if len(vm.frames) >= vm.maxFrames {
		return vm.errorf(fr, ErrStackOverflow, "depth %d", vm.maxFrames)
	}
	base := calleeIdx + 1
	vm.frames = append(vm.frames, frame{closure: callee.Fn, base: base, lastOp: -1})
	vm.resize(base + fn.NumRegisters)
	return Nil(), nil
}

// ret pops the current frame and delivers result to the caller. It reports
// true when the popped frame was the outermost one.
func (vm *VM) ret(result Value) bool {
	popped := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.closeUpvalues(popped.base)
	if len(vm.frames) == 0 {
		vm.resize(popped.base - 1)
		return true
	}
	caller := &vm.frames[len(vm.frames)-1]
	vm.resize(caller.base + caller.closure.Fn.NumRegisters)
	dest := caller.closure.Fn.Code[caller.ip-1].A
	vm.store(caller, dest, result)
	return false
}

// makeClosure builds a closure over the function constant in.A, consuming
// one capture directive per upvalue.
func (vm *VM) makeClosure(fr *frame, in bytecode.Instruction) (*Closure, error) {
	proto, ok := fr.closure.Fn.Constants[in.A].(*bytecode.Function)
	if !ok {
		_, err := vm.errorf(fr, ErrNotCallable, "closure constant is %T", fr.closure.Fn.Constants[in.A])
		return nil, err
	}
	closure := &Closure{Fn: proto, Upvalues: make([]*upvalue, len(proto.Upvalues))}
	code := fr.closure.Fn.Code
	for i := range closure.Upvalues {
		if fr.ip >= len(code) {
			_, err := vm.errorf(fr, ErrUnknownOpcode, "missing capture directive %d for %s", i, proto.Name)
			return nil, err
		}
		directive := code[fr.ip]
		fr.ip++
		switch directive.Op {
		case bytecode.OP_ADD_UPVAR:
			closure.Upvalues[i] = vm.captureUpvalue(fr.base + directive.A)
		case bytecode.OP_ADD_OUTER_UPVAR:
			closure.Upvalues[i] = fr.closure.Upvalues[directive.A]
		default:
			_, err := vm.errorf(fr, ErrUnknownOpcode, "expected capture directive, got %s", directive.Op)
			return nil, err
		}
	}
	return closure, nil
}

// resize sets the stack length to exactly size, clearing dropped slots.
func (vm *VM) resize(size int) {
	if size <= len(vm.stack) {
		clear(vm.stack[size:])
		vm.stack = vm.stack[:size]
		return
	}
	vm.stack = append(vm.stack, make([]Value, size-len(vm.stack))...)
}

func (vm *VM) captureUpvalue(index int) *upvalue {
	for _, uv := range vm.openUpvalues {
		if uv.index == index {
			return uv
		}
	}
	uv := newUpvalue(index)
	vm.openUpvalues = append(vm.openUpvalues, uv)
	return uv
}

func (vm *VM) closeUpvalues(base int) {
	kept := vm.openUpvalues[:0]
	for _, uv := range vm.openUpvalues {
		if uv.index >= base {
			uv.close(vm.stack)
			continue
		}
		kept = append(kept, uv)
	}
	clear(vm.openUpvalues[len(kept):])
	vm.openUpvalues = kept
}

// Global returns the closure bound to a top-level name.
func (vm *VM) Global(name string) (*Closure, error) {
	closure, ok := vm.globals[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGlobal, name)
	}
	return closure, nil
}
