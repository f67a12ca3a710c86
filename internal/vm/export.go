package vm

// Export converts a value to a plain Go value: nil, bool, float64, string
// or *Closure.
func Export(v Value) any {
	switch v.Kind {
	case KindBool:
		return v.B
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindClosure:
		return v.Fn
	default:
		return nil
	}
}

// TypeName reports the dynamic type name for a value.
func TypeName(v Value) string {
	return typeName(v)
}

// StackSize reports the current length of the register stack.
func (vm *VM) StackSize() int {
	return len(vm.stack)
}

// FrameDepth reports the number of live call frames.
func (vm *VM) FrameDepth() int {
	return len(vm.frames)
}
