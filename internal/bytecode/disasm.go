package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Disassembler formats bytecode as a readable assembly-style dump.
type Disassembler struct {
	w       io.Writer
	visited map[*Function]bool
	printed bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{
		w:       w,
		visited: make(map[*Function]bool),
	}
}

// DisassembleModule dumps every top-level function in name order.
func (d *Disassembler) DisassembleModule(mod *Module) error {
	if mod == nil {
		return fmt.Errorf("nil module")
	}
	for _, name := range mod.Names() {
		if err := d.DisassembleFunction(name, mod.Functions[name]); err != nil {
			return err
		}
	}
	return nil
}

// DisassembleFunction emits a readable dump for a function and any nested functions.
func (d *Disassembler) DisassembleFunction(label string, fn *Function) error {
	if fn == nil {
		return fmt.Errorf("nil function")
	}
	if d.visited[fn] {
		return nil
	}
	d.visited[fn] = true
	d.startSection()
	name := label
	if name == "" {
		name = fn.Name
	}
	if name == "" {
		name = "<anon>"
	}
	fmt.Fprintf(d.w, "func %s (params=%d, locals=%d, upvalues=%d, registers=%d)\n",
		name, fn.NumParams, len(fn.Locals), len(fn.Upvalues), fn.NumRegisters)
	if err := d.disassembleCode(fn); err != nil {
		return err
	}
	for idx, c := range fn.Constants {
		child, ok := c.(*Function)
		if !ok {
			continue
		}
		childName := child.Name
		if childName == "" {
			childName = fmt.Sprintf("<closure@const:%d>", idx)
		}
		if err := d.DisassembleFunction(childName, child); err != nil {
			return err
		}
	}
	return nil
}

func (d *Disassembler) startSection() {
	if d.printed {
		fmt.Fprintln(d.w)
	}
	d.printed = true
}

func (d *Disassembler) disassembleCode(fn *Function) error {
	// captures names the upvalues of the closure currently being built, so
	// its trailing directives can be labelled.
	var captures []string
	for offset, in := range fn.Code {
		line := lineForOffset(fn.Lines, offset)
		lineStr := "-"
		if line > 0 {
			lineStr = strconv.Itoa(line)
		}
		opName := in.Op.String()
		if in.Op.IsCaptureDirective() {
			opName = "  " + opName
		}
		operands, err := decodeOperands(fn, in, offset)
		if err != nil {
			return err
		}
		if in.Op.IsCaptureDirective() && len(captures) > 0 {
			operands += " ; " + captures[0]
			captures = captures[1:]
		} else if !in.Op.IsCaptureDirective() {
			captures = nil
		}
		if in.Op == OP_CLOSURE {
			if child, ok := fn.Constants[in.A].(*Function); ok {
				captures = child.Upvalues
			}
		}
		fmt.Fprintf(d.w, "%04d %4s %-18s", offset, lineStr, opName)
		if detail := strings.TrimSpace(operands); detail != "" {
			fmt.Fprintf(d.w, " %s", detail)
		}
		fmt.Fprintln(d.w)
	}
	return nil
}

func decodeOperands(fn *Function, in Instruction, offset int) (string, error) {
	switch in.Op {
	case OP_CONSTANT, OP_LOAD_GLOBAL, OP_CLOSURE:
		if in.A < 0 || in.A >= len(fn.Constants) {
			return "", fmt.Errorf("%s at %04d: const index out of range: %d", in.Op, offset, in.A)
		}
		return fmt.Sprintf("k%d %s ; %s", in.A, reg(in.B), formatConst(fn.Constants[in.A])), nil
	case OP_MOVE:
		return fmt.Sprintf("%s %s", reg(in.A), reg(in.B)), nil
	case OP_CALL:
		return fmt.Sprintf("%s %s %d", reg(in.A), reg(in.B), in.C), nil
	case OP_RETURN:
		return reg(in.A), nil
	case OP_LOAD_UPVAR:
		return fmt.Sprintf("u%d %s%s", in.A, reg(in.B), upvalueName(fn, in.A)), nil
	case OP_STORE_UPVAR:
		return fmt.Sprintf("u%d %s%s", in.A, reg(in.B), upvalueName(fn, in.A)), nil
	case OP_ADD_UPVAR:
		return reg(in.A), nil
	case OP_ADD_OUTER_UPVAR:
		return fmt.Sprintf("u%d", in.A), nil
	case OP_JUMP:
		return fmt.Sprintf("%+d ; -> %04d", in.A, offset+1+in.A), nil
	case OP_JUMP_IF_FALSE:
		return fmt.Sprintf("%s %+d ; -> %04d", reg(in.A), in.B, offset+1+in.B), nil
	default:
		return fmt.Sprintf("%d %d %d", in.A, in.B, in.C), nil
	}
}

func reg(r int) string {
	if r == Discard {
		return "_"
	}
	return "r" + strconv.Itoa(r)
}

func upvalueName(fn *Function, idx int) string {
	if idx < 0 || idx >= len(fn.Upvalues) {
		return ""
	}
	return " ; " + fn.Upvalues[idx]
}

func lineForOffset(lines []LineInfo, offset int) int {
	line := 0
	for _, info := range lines {
		if info.Offset > offset {
			break
		}
		line = info.Line
	}
	return line
}

func formatConst(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return strconv.Quote(val)
	case *Function:
		name := val.Name
		if name == "" {
			name = "<anon>"
		}
		return "fn " + name
	default:
		return "<unknown>"
	}
}
