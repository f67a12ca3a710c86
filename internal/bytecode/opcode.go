package bytecode

import "fmt"

// Opcode enumerates register-machine operations. Operand meaning per opcode:
//
//	OP_CONSTANT        A=const    B=dest
//	OP_MOVE            A=src      B=dest
//	OP_CALL            A=dest     B=callee   C=argc
//	OP_RETURN          A=src
//	OP_LOAD_GLOBAL     A=nameConst B=dest
//	OP_LOAD_UPVAR      A=upval    B=dest
//	OP_STORE_UPVAR     A=upval    B=src
//	OP_CLOSURE         A=funcConst B=dest
//	OP_ADD_UPVAR       A=localReg
//	OP_ADD_OUTER_UPVAR A=upval
//	OP_JUMP            A=offset
//	OP_JUMP_IF_FALSE   A=src      B=offset
//
// Jump offsets are relative to the instruction following the jump.
type Opcode byte

const (
	OP_CONSTANT Opcode = iota
	OP_MOVE
	OP_CALL
	OP_RETURN
	OP_LOAD_GLOBAL
	OP_LOAD_UPVAR
	OP_STORE_UPVAR
	OP_CLOSURE
	OP_ADD_UPVAR
	OP_ADD_OUTER_UPVAR
	OP_JUMP
	OP_JUMP_IF_FALSE
)

// Discard is the destination register meaning the result is not needed.
const Discard = -1

var opNames = [...]string{
	OP_CONSTANT:        "CONSTANT",
	OP_MOVE:            "MOVE",
	OP_CALL:            "CALL",
	OP_RETURN:          "RETURN",
	OP_LOAD_GLOBAL:     "LOAD_GLOBAL",
	OP_LOAD_UPVAR:      "LOAD_UPVAR",
	OP_STORE_UPVAR:     "STORE_UPVAR",
	OP_CLOSURE:         "CLOSURE",
	OP_ADD_UPVAR:       "ADD_UPVAR",
	OP_ADD_OUTER_UPVAR: "ADD_OUTER_UPVAR",
	OP_JUMP:            "JUMP",
	OP_JUMP_IF_FALSE:   "JUMP_IF_FALSE",
}

func (op Opcode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("OP_0x%02X", byte(op))
}

// IsCaptureDirective reports whether op may only appear after OP_CLOSURE.
func (op Opcode) IsCaptureDirective() bool {
	return op == OP_ADD_UPVAR || op == OP_ADD_OUTER_UPVAR
}

// Instruction is one fixed-shape register instruction.
type Instruction struct {
	Op      Opcode
	A, B, C int
}

func (in Instruction) String() string {
	return fmt.Sprintf("%s %d %d %d", in.Op, in.A, in.B, in.C)
}
