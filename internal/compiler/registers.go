package compiler

import "fmt"

// registers allocates a function's register window. Registers below base
// belong to locals for the whole invocation; temporaries above them follow
// strict push/pop order.
type registers struct {
	base int
	top  int
	max  int
}

func newRegisters(numLocals int) *registers {
	return &registers{base: numLocals, top: numLocals, max: numLocals}
}

// push reserves the next temporary.
func (r *registers) push() int {
	reg := r.top
	r.top++
	if r.top > r.max {
		r.max = r.top
	}
	return reg
}

// pop releases reg, which must be the most recently pushed temporary.
func (r *registers) pop(reg int) error {
	if r.top <= r.base || reg != r.top-1 {
		return fmt.Errorf("%w: pop r%d with top r%d", ErrRegisterDiscipline, reg, r.top-1)
	}
	r.top--
	return nil
}

// balanced reports an error if temporaries are still live.
func (r *registers) balanced() error {
	if r.top != r.base {
		return fmt.Errorf("%w: %d temporaries live at function end", ErrRegisterDiscipline, r.top-r.base)
	}
	return nil
}
