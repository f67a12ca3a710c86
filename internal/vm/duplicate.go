package vm

import "golang.org/x/exp/maps"

// Duplicate returns a new VM with the same globals and configuration.
// Execution state (stack/frames) is reset in the duplicate. Top-level
// closures capture nothing, so they are shared rather than copied.
func (vm *VM) Duplicate() *VM {
	if vm == nil {
		return nil
	}
	dup := New()
	dup.source = vm.source
	dup.maxFrames = vm.maxFrames
	dup.traceHook = vm.traceHook
	dup.instLimit = vm.instLimit
	dup.globals = maps.Clone(vm.globals)
	return dup
}
