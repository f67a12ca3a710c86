package compiler

import "github.com/xirelogy/bulfinch/internal/bytecode"

type Function = bytecode.Function
type Module = bytecode.Module
type Instruction = bytecode.Instruction
type LineInfo = bytecode.LineInfo
