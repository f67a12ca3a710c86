package vm

import (
	"fmt"
	"io"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/xirelogy/bulfinch/internal/bytecode"
)

// Disassemble emits assembly-style bytecode output for the loaded globals.
func (vm *VM) Disassemble(w io.Writer) error {
	if vm == nil {
		return fmt.Errorf("nil VM")
	}
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	names := maps.Keys(vm.globals)
	slices.Sort(names)
	dis := bytecode.NewDisassembler(w)
	for _, name := range names {
		if err := dis.DisassembleFunction(name, vm.globals[name].Fn); err != nil {
			return err
		}
	}
	return nil
}
