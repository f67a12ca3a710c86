package bytecode

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Function is a compiled function literal.
type Function struct {
	Name      string
	NumParams int
	// Locals and Upvalues hold display names only.
	Locals    []string
	Upvalues  []string
	Constants []any
	Code      []Instruction
	Lines     []LineInfo
	// NumRegisters is the register window size the VM must reserve for one
	// invocation: the locals plus the temporaries' high-water mark.
	NumRegisters int
}

// AddConstant appends v to the pool and returns its index. Duplicates are
// allowed.
func (f *Function) AddConstant(v any) int {
	f.Constants = append(f.Constants, v)
	return len(f.Constants) - 1
}

// Emit appends an instruction tagged with a source line and returns its
// offset.
func (f *Function) Emit(in Instruction, line int) int {
	offset := len(f.Code)
	f.Code = append(f.Code, in)
	if line > 0 && (len(f.Lines) == 0 || f.Lines[len(f.Lines)-1].Line != line) {
		f.Lines = append(f.Lines, LineInfo{Offset: offset, Line: line})
	}
	return offset
}

// LineForOffset returns the source line of the instruction at offset, or 0.
func (f *Function) LineForOffset(offset int) int {
	return lineForOffset(f.Lines, offset)
}

// Module is the compiled form of a program: its top-level functions by name.
type Module struct {
	Source    string
	Functions map[string]*Function
}

// Names returns the top-level function names in sorted order.
func (m *Module) Names() []string {
	names := maps.Keys(m.Functions)
	slices.Sort(names)
	return names
}

// LineInfo maps instruction offsets to source lines (start-inclusive).
type LineInfo struct {
	Offset int
	Line   int
}
