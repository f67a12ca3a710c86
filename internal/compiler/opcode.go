package compiler

import "github.com/xirelogy/bulfinch/internal/bytecode"

const (
	OP_CONSTANT        = bytecode.OP_CONSTANT
	OP_MOVE            = bytecode.OP_MOVE
	OP_CALL            = bytecode.OP_CALL
	OP_RETURN          = bytecode.OP_RETURN
	OP_LOAD_GLOBAL     = bytecode.OP_LOAD_GLOBAL
	OP_LOAD_UPVAR      = bytecode.OP_LOAD_UPVAR
	OP_STORE_UPVAR     = bytecode.OP_STORE_UPVAR
	OP_CLOSURE         = bytecode.OP_CLOSURE
	OP_ADD_UPVAR       = bytecode.OP_ADD_UPVAR
	OP_ADD_OUTER_UPVAR = bytecode.OP_ADD_OUTER_UPVAR
	OP_JUMP            = bytecode.OP_JUMP
	OP_JUMP_IF_FALSE   = bytecode.OP_JUMP_IF_FALSE
)

// Discard marks a destination whose value is not needed.
const Discard = bytecode.Discard
