package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xirelogy/bulfinch/internal/bytecode"
)

var (
	ErrUnknownGlobal    = errors.New("unknown global")
	ErrNotCallable      = errors.New("value is not callable")
	ErrUnknownOpcode    = errors.New("unknown opcode")
	ErrArity            = errors.New("wrong number of arguments")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
	ErrStackOverflow    = errors.New("call stack overflow")
)

// TraceInfo describes a single instruction dispatch for debugging/tracing.
type TraceInfo struct {
	Op        bytecode.Opcode
	A, B, C   int
	Function  string
	Source    string
	Line      int
	IP        int
	Base      int
	StackSize int
	Depth     int
	// Registers is a copy of the current frame's window.
	Registers []Value
}

// TraceHook observes instruction dispatch for debugging/profiling.
type TraceHook func(TraceInfo)

// FrameInfo captures the call frame at the time of an error or trace event.
type FrameInfo struct {
	Function string
	Source   string
	Line     int
	IP       int
}

func (f FrameInfo) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s (line %d)", f.Function, f.Line)
	}
	return f.Function
}

// RuntimeError carries source/stack information for VM failures. Cause is
// one of the Err* sentinels.
type RuntimeError struct {
	Message string
	Frame   FrameInfo
	Stack   []FrameInfo
	Cause   error
}

func (e *RuntimeError) Error() string {
	locParts := []string{}
	if e.Frame.Source != "" {
		if e.Frame.Line > 0 {
			locParts = append(locParts, fmt.Sprintf("%s:%d", e.Frame.Source, e.Frame.Line))
		} else {
			locParts = append(locParts, e.Frame.Source)
		}
	} else if e.Frame.Line > 0 {
		locParts = append(locParts, fmt.Sprintf("line %d", e.Frame.Line))
	}
	if e.Frame.Function != "" {
		locParts = append(locParts, fmt.Sprintf("in %s", e.Frame.Function))
	}
	loc := strings.Join(locParts, " ")
	if loc != "" {
		return fmt.Sprintf("%s: %s", loc, e.Message)
	}
	return e.Message
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func (vm *VM) errorf(fr *frame, cause error, format string, args ...any) (Value, error) {
	msg := cause.Error()
	if format != "" {
		msg += ": " + fmt.Sprintf(format, args...)
	}
	return Nil(), vm.newRuntimeError(fr, vm.offsetForFrame(fr), msg, cause)
}

func (vm *VM) newRuntimeError(fr *frame, offset int, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Message: msg,
		Frame:   vm.frameInfo(fr, offset),
		Stack:   vm.stackTrace(fr, offset),
		Cause:   cause,
	}
}

func (vm *VM) trace(fr *frame, in bytecode.Instruction) {
	if vm.traceHook == nil {
		return
	}
	info := vm.frameInfo(fr, fr.lastOp)
	end := fr.base + fr.closure.Fn.NumRegisters
	if end > len(vm.stack) {
		end = len(vm.stack)
	}
	regs := make([]Value, end-fr.base)
	copy(regs, vm.stack[fr.base:end])
	vm.traceHook(TraceInfo{
		Op:        in.Op,
		A:         in.A,
		B:         in.B,
		C:         in.C,
		Function:  info.Function,
		Source:    info.Source,
		Line:      info.Line,
		IP:        info.IP,
		Base:      fr.base,
		StackSize: len(vm.stack),
		Depth:     len(vm.frames),
		Registers: regs,
	})
}

func (vm *VM) stackTrace(current *frame, offset int) []FrameInfo {
	if len(vm.frames) == 0 {
		return nil
	}
	trace := make([]FrameInfo, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		off := fr.lastOp
		if fr == current && offset >= 0 {
			off = offset
		}
		trace = append(trace, vm.frameInfo(fr, off))
	}
	return trace
}

func (vm *VM) frameInfo(fr *frame, offset int) FrameInfo {
	if fr == nil || fr.closure == nil {
		return FrameInfo{Source: vm.source}
	}
	line := 0
	if offset >= 0 {
		line = fr.closure.Fn.LineForOffset(offset)
	}
	return FrameInfo{
		Function: fr.closure.Name(),
		Source:   vm.source,
		Line:     line,
		IP:       offset,
	}
}

func (vm *VM) offsetForFrame(fr *frame) int {
	if fr == nil {
		return -1
	}
	if fr.lastOp >= 0 {
		return fr.lastOp
	}
	return fr.ip
}
