// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ir defines the in-memory intermediate representation compiled by
// this library: primitive value widths, the Value union (registers and
// immediates), basic blocks, and the Context that owns a compilation's
// constants and control-flow graph while it is being built.
package ir

import "fmt"

// PrimitiveValue identifies the width (and, nominally, signedness) of an IR
// value. Signedness does not affect code emission: all arithmetic is
// two's-complement.
type PrimitiveValue byte

const (
	U8 PrimitiveValue = iota
	I8
	U16
	I16
	U32
	I32
	U64
	I64
)

func (p PrimitiveValue) String() string {
	switch p {
	case U8:
		return "u8"
	case I8:
		return "i8"
	case U16:
		return "u16"
	case I16:
		return "i16"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case U64:
		return "u64"
	case I64:
		return "i64"
	default:
		return fmt.Sprintf("PrimitiveValue(%d)", byte(p))
	}
}

// Size returns the width of the primitive in bytes.
func (p PrimitiveValue) Size() int {
	switch p {
	case U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32:
		return 4
	case U64, I64:
		return 8
	default:
		panic(fmt.Sprintf("ir: invalid PrimitiveValue %d", byte(p)))
	}
}

// RegisterIndex is the opaque, globally-unique (within one Context) identity
// of a virtual register. A register is defined by exactly one instruction.
type RegisterIndex uint32

func (r RegisterIndex) String() string { return fmt.Sprintf("%%r%d", uint32(r)) }

// ConstantIndex addresses a byte-constant registered with a Context.
type ConstantIndex uint32

// BasicBlockIndex is the dense, manager-assigned identity of a basic block.
type BasicBlockIndex uint32

func (b BasicBlockIndex) String() string { return fmt.Sprintf("bb%d", uint32(b)) }

// ValueKind discriminates the two variants of Value.
type ValueKind byte

const (
	// KindRegister marks a Value that refers to a virtual register.
	KindRegister ValueKind = iota
	// KindImmediate marks a Value that carries a literal of a given width.
	KindImmediate
)

// Value is the tagged union consumed as an operand by IR instructions: it is
// either a reference to a virtual register or an immediate of a declared
// width.
type Value struct {
	Kind  ValueKind
	Reg   RegisterIndex  // valid when Kind == KindRegister
	Width PrimitiveValue // valid when Kind == KindImmediate
	Imm   uint64         // valid when Kind == KindImmediate
}

// Register builds a Value referring to a virtual register.
func Register(r RegisterIndex) Value {
	return Value{Kind: KindRegister, Reg: r}
}

// Immediate builds an immediate Value of the given width. The payload is truncated
// silently to the declared width; two's-complement negative values should be
// passed pre-truncated by the caller (e.g. via uint32(int32(-1))).
func Immediate(width PrimitiveValue, value uint64) Value {
	return Value{Kind: KindImmediate, Width: width, Imm: maskToWidth(width, value)}
}

// ImmU32 is a convenience constructor for a U32 immediate, mirroring the
// frequent use of 32-bit literals in example programs.
func ImmU32(v uint32) Value { return Immediate(U32, uint64(v)) }

func maskToWidth(w PrimitiveValue, v uint64) uint64 {
	switch w.Size() {
	case 1:
		return v & 0xff
	case 2:
		return v & 0xffff
	case 4:
		return v & 0xffffffff
	default:
		return v
	}
}

// IsRegister reports whether the value is a register reference.
func (v Value) IsRegister() bool { return v.Kind == KindRegister }

// IsImmediate reports whether the value is an immediate.
func (v Value) IsImmediate() bool { return v.Kind == KindImmediate }

func (v Value) String() string {
	if v.IsRegister() {
		return v.Reg.String()
	}
	return fmt.Sprintf("%s(%d)", v.Width, v.Imm)
}
