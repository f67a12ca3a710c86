package vm

// upvalue is a captured variable cell. While open it aliases a register by
// absolute stack index; once the owning frame returns it is closed and
// holds the value itself. Cells are shared by every closure that captured
// the same register.
type upvalue struct {
	index  int
	open   bool
	closed Value
}

func newUpvalue(index int) *upvalue {
	return &upvalue{index: index, open: true}
}

func (uv *upvalue) get(stack []Value) Value {
	if uv.open {
		return stack[uv.index]
	}
	return uv.closed
}

func (uv *upvalue) set(stack []Value, v Value) {
	if uv.open {
		stack[uv.index] = v
		return
	}
	uv.closed = v
}

func (uv *upvalue) close(stack []Value) {
	if uv.open {
		uv.closed = stack[uv.index]
		uv.open = false
	}
}
