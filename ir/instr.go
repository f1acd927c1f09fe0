// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// Op identifies the variant of an Instruction.
type Op byte

const (
	OpAlloca Op = iota
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpLoad
	OpStore
	OpJump
	OpJumpIfEqual
	OpJumpIfNotEqual
	OpPrintConstant
	OpReturn
)

func (o Op) String() string {
	switch o {
	case OpAlloca:
		return "alloca"
	case OpAdd:
		return "add"
	case OpSubtract:
		return "sub"
	case OpMultiply:
		return "mul"
	case OpDivide:
		return "div"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpJump:
		return "jump"
	case OpJumpIfEqual:
		return "jeq"
	case OpJumpIfNotEqual:
		return "jne"
	case OpPrintConstant:
		return "print_const"
	case OpReturn:
		return "ret"
	default:
		return fmt.Sprintf("Op(%d)", byte(o))
	}
}

// Instruction is a flattened tagged-union IR instruction. Which fields are
// meaningful is determined by Op; see the per-variant comments. This mirrors
// the layout of a machine instruction record (as opposed to a family of
// concrete Go types) because every downstream consumer (liveness, register
// assignment, the emitter) needs to inspect operands uniformly regardless of
// variant.
type Instruction struct {
	Op Op

	// Dest holds the register defined by Alloca/Add/Subtract/Multiply/
	// Divide/Load. Every other variant leaves it zero and unused.
	Dest RegisterIndex

	// Src1/Src2 hold operands:
	//   Add/Subtract/Multiply/Divide: dest = Src1 OP Src2
	//   Load:  Src1 is the pointer operand (Src2 unused)
	//   Store: Src1 is the pointer operand, Src2 is the value written
	//   JumpIfEqual/JumpIfNotEqual: Src1 is the condition (Src2 unused)
	Src1 Value
	Src2 Value

	// Width/Alignment are valid for Alloca.
	Width     PrimitiveValue
	Alignment uint8

	// Target is valid for Jump.
	Target BasicBlockIndex
	// True/False are valid for JumpIfEqual/JumpIfNotEqual.
	True  BasicBlockIndex
	False BasicBlockIndex

	// Constant is valid for PrintConstant.
	Constant ConstantIndex
}

// DefinedRegister returns the register defined by this instruction and true,
// or the zero value and false if this instruction defines nothing.
func (in Instruction) DefinedRegister() (RegisterIndex, bool) {
	switch in.Op {
	case OpAlloca, OpAdd, OpSubtract, OpMultiply, OpDivide, OpLoad:
		return in.Dest, true
	default:
		return 0, false
	}
}

// UsedRegisters appends every virtual register read by this instruction to
// dst and returns the extended slice.
func (in Instruction) UsedRegisters(dst []RegisterIndex) []RegisterIndex {
	switch in.Op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide:
		if in.Src1.IsRegister() {
			dst = append(dst, in.Src1.Reg)
		}
		if in.Src2.IsRegister() {
			dst = append(dst, in.Src2.Reg)
		}
	case OpLoad:
		if in.Src1.IsRegister() {
			dst = append(dst, in.Src1.Reg)
		}
	case OpStore:
		if in.Src1.IsRegister() {
			dst = append(dst, in.Src1.Reg)
		}
		if in.Src2.IsRegister() {
			dst = append(dst, in.Src2.Reg)
		}
	case OpJumpIfEqual, OpJumpIfNotEqual:
		if in.Src1.IsRegister() {
			dst = append(dst, in.Src1.Reg)
		}
	}
	return dst
}

// IsTerminator reports whether this instruction ends a basic block.
func (in Instruction) IsTerminator() bool {
	switch in.Op {
	case OpJump, OpJumpIfEqual, OpJumpIfNotEqual, OpReturn:
		return true
	default:
		return false
	}
}
