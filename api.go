// Package bulfinch embeds the bulfinch compiler and virtual machine.
package bulfinch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xirelogy/bulfinch/internal/pipeline"
	"github.com/xirelogy/bulfinch/internal/vm"
)

var (
	// ErrBusy is returned when a VM is used while a call is in flight.
	ErrBusy  = errors.New("VM is busy")
	errNilVM = errors.New("nil VM")
)

// ValueKind mirrors the bulfinch runtime kinds for convenient inspection.
type ValueKind int

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueFunction
)

func (k ValueKind) String() string {
	switch k {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "boolean"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Value is a value produced by or passed into the VM.
type Value struct {
	v vm.Value
}

// NewValue converts a Go value into a Value. Supported inputs are nil,
// bool, string, Value and Go integer and float types.
func NewValue(val any) (Value, error) {
	switch x := val.(type) {
	case nil:
		return Value{v: vm.Nil()}, nil
	case Value:
		return x, nil
	case bool:
		return Value{v: vm.Bool(x)}, nil
	case string:
		return Value{v: vm.String(x)}, nil
	case float64:
		return Value{v: vm.Number(x)}, nil
	case float32:
		return Value{v: vm.Number(float64(x))}, nil
	case int:
		return Value{v: vm.Number(float64(x))}, nil
	case int32:
		return Value{v: vm.Number(float64(x))}, nil
	case int64:
		return Value{v: vm.Number(float64(x))}, nil
	case uint:
		return Value{v: vm.Number(float64(x))}, nil
	case uint32:
		return Value{v: vm.Number(float64(x))}, nil
	case uint64:
		return Value{v: vm.Number(float64(x))}, nil
	default:
		return Value{}, fmt.Errorf("unsupported Go type %T", val)
	}
}

// MustValue panics on error; convenience for tests.
func MustValue(val any) Value {
	v, err := NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

// Kind reports the underlying value kind.
func (v Value) Kind() ValueKind {
	switch v.v.Kind {
	case vm.KindBool:
		return ValueBool
	case vm.KindNumber:
		return ValueNumber
	case vm.KindString:
		return ValueString
	case vm.KindClosure:
		return ValueFunction
	default:
		return ValueNil
	}
}

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool {
	return v.Kind() == ValueNil
}

// Bool returns the boolean value when the kind matches.
func (v Value) Bool() (bool, bool) {
	if v.v.Kind != vm.KindBool {
		return false, false
	}
	return v.v.B, true
}

// Number returns the numeric value when the kind matches.
func (v Value) Number() (float64, bool) {
	if v.v.Kind != vm.KindNumber {
		return 0, false
	}
	return v.v.Num, true
}

// Str returns the string value when the kind matches.
func (v Value) Str() (string, bool) {
	if v.v.Kind != vm.KindString {
		return "", false
	}
	return v.v.Str, true
}

// FunctionName returns the debug name of a function value.
func (v Value) FunctionName() (string, bool) {
	if v.v.Kind != vm.KindClosure || v.v.Fn == nil {
		return "", false
	}
	return v.v.Fn.Name(), true
}

// Raw returns a Go representation of the value. Functions have none and
// return an error.
func (v Value) Raw() (any, error) {
	if v.v.Kind == vm.KindClosure {
		return nil, fmt.Errorf("cannot convert %s to a Go value", vm.TypeName(v.v))
	}
	return vm.Export(v.v), nil
}

// String renders the value the way the VM prints results.
func (v Value) String() string {
	return v.v.String()
}

// FrameTrace describes a single frame in a runtime error.
type FrameTrace struct {
	Function string
	Source   string
	Line     int
	IP       int
}

// RuntimeError is a source-aware execution error surfaced from the VM.
type RuntimeError struct {
	Message string
	Frame   FrameTrace
	Stack   []FrameTrace
	Cause   error
}

func (e *RuntimeError) Error() string {
	parts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			parts = append(parts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(parts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the fault sentinel (vm.ErrUnknownGlobal and friends) for
// errors.Is.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// TraceInfo captures one instruction dispatch.
type TraceInfo struct {
	Op        string
	A, B, C   int
	Function  string
	Source    string
	Line      int
	IP        int
	StackSize int
	Depth     int
}

// TraceHook observes instruction dispatch for debugging.
type TraceHook func(TraceInfo)

func convertRuntimeError(err error) error {
	var rte *vm.RuntimeError
	if !errors.As(err, &rte) {
		return err
	}
	out := &RuntimeError{
		Message: rte.Message,
		Frame:   frameTraceFromVM(rte.Frame),
		Cause:   rte.Cause,
	}
	for _, fr := range rte.Stack {
		out.Stack = append(out.Stack, frameTraceFromVM(fr))
	}
	return out
}

func frameTraceFromVM(info vm.FrameInfo) FrameTrace {
	return FrameTrace{
		Function: info.Function,
		Source:   info.Source,
		Line:     info.Line,
		IP:       info.IP,
	}
}

// VM loads bulfinch sources and runs their functions. A VM runs one call
// at a time; use Duplicate for concurrent callers.
type VM struct {
	core *vm.VM
	mu   sync.Mutex
	busy bool
}

// NewVM constructs an empty VM.
func NewVM() *VM {
	return &VM{core: vm.New()}
}

func (vmc *VM) acquire() error {
	if vmc == nil || vmc.core == nil {
		return errNilVM
	}
	vmc.mu.Lock()
	defer vmc.mu.Unlock()
	if vmc.busy {
		return ErrBusy
	}
	vmc.busy = true
	return nil
}

func (vmc *VM) release() {
	vmc.mu.Lock()
	vmc.busy = false
	vmc.mu.Unlock()
}

// Duplicate clones the loaded functions and settings into a new VM.
func (vmc *VM) Duplicate() (*VM, error) {
	if err := vmc.acquire(); err != nil {
		return nil, err
	}
	defer vmc.release()
	return &VM{core: vmc.core.Duplicate()}, nil
}

// HasFunction reports whether a top-level function exists with the given name.
func (vmc *VM) HasFunction(name string) bool {
	if vmc == nil || vmc.core == nil {
		return false
	}
	_, err := vmc.core.Global(name)
	return err == nil
}

// LoadFile compiles the source at path and binds its functions.
func (vmc *VM) LoadFile(path string) error {
	if err := vmc.acquire(); err != nil {
		return err
	}
	defer vmc.release()
	mod, err := pipeline.CompileFile(path)
	if err != nil {
		return err
	}
	vmc.core.LoadModule(mod)
	return nil
}

// LoadSource compiles src and binds its functions. The name is used in
// diagnostics (e.g. "inline" or a synthetic filename). Functions loaded
// later replace earlier ones of the same name.
func (vmc *VM) LoadSource(name string, src string) error {
	if err := vmc.acquire(); err != nil {
		return err
	}
	defer vmc.release()
	mod, err := pipeline.Compile(name, src)
	if err != nil {
		return err
	}
	vmc.core.LoadModule(mod)
	return nil
}

// SetInstructionLimit caps the number of instructions a single call may
// execute (0 for unlimited).
func (vmc *VM) SetInstructionLimit(limit int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.SetInstructionLimit(limit)
}

// SetMaxFrames caps the call depth (values below 1 restore the default).
func (vmc *VM) SetMaxFrames(n int) {
	if vmc == nil || vmc.core == nil {
		return
	}
	vmc.core.SetMaxFrames(n)
}

// SetTraceHook attaches a debug hook that observes instruction dispatch.
func (vmc *VM) SetTraceHook(h TraceHook) {
	if vmc == nil || vmc.core == nil {
		return
	}
	if h == nil {
		vmc.core.SetTraceHook(nil)
		return
	}
	vmc.core.SetTraceHook(func(info vm.TraceInfo) {
		h(TraceInfo{
			Op:        info.Op.String(),
			A:         info.A,
			B:         info.B,
			C:         info.C,
			Function:  info.Function,
			Source:    info.Source,
			Line:      info.Line,
			IP:        info.IP,
			StackSize: info.StackSize,
			Depth:     info.Depth,
		})
	})
}

// Disassemble writes the bytecode of every loaded function to w.
func (vmc *VM) Disassemble(w io.Writer) error {
	if err := vmc.acquire(); err != nil {
		return err
	}
	defer vmc.release()
	return vmc.core.Disassemble(w)
}

// Execute runs main with no arguments.
func (vmc *VM) Execute(ctx context.Context) (Value, error) {
	return vmc.CallAsync(ctx, vm.EntryPoint, nil).Await(ctx)
}

// CallFuture represents an in-flight VM call.
type CallFuture struct {
	ch <-chan CallResult
}

// CallResult is the outcome of a VM call.
type CallResult struct {
	Value Value
	Err   error
}

// Await waits for completion or context cancellation.
func (f CallFuture) Await(ctx context.Context) (Value, error) {
	select {
	case <-ctx.Done():
		return Value{}, ctx.Err()
	case res := <-f.ch:
		return res.Value, res.Err
	}
}

// CallAsync runs the named top-level function with args in the background.
func (vmc *VM) CallAsync(ctx context.Context, name string, args []Value) CallFuture {
	ch := make(chan CallResult, 1)
	if err := vmc.acquire(); err != nil {
		ch <- CallResult{Err: err}
		close(ch)
		return CallFuture{ch: ch}
	}

	go func() {
		defer close(ch)
		defer vmc.release()
		if err := ctx.Err(); err != nil {
			ch <- CallResult{Err: err}
			return
		}
		argVals := make([]vm.Value, len(args))
		for i, a := range args {
			argVals[i] = a.v
		}
		res, err := vmc.core.Call(name, argVals)
		if err != nil {
			ch <- CallResult{Err: convertRuntimeError(err)}
			return
		}
		ch <- CallResult{Value: Value{v: res}}
	}()
	return CallFuture{ch: ch}
}
