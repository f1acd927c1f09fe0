// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/MarkMcCaskey/shiba-jit/regalloc"
)

// x86Reg translates the allocator's architecture-neutral MachineRegister
// into the concrete golang-asm register constant used to populate an
// obj.Addr.
func x86Reg(m regalloc.MachineRegister) int16 {
	switch m {
	case regalloc.RDX:
		return x86.REG_DX
	case regalloc.RBX:
		return x86.REG_BX
	case regalloc.R8:
		return x86.REG_R8
	case regalloc.R9:
		return x86.REG_R9
	case regalloc.R10:
		return x86.REG_R10
	case regalloc.R11:
		return x86.REG_R11
	case regalloc.R12:
		return x86.REG_R12
	case regalloc.R13:
		return x86.REG_R13
	case regalloc.R14:
		return x86.REG_R14
	case regalloc.R15:
		return x86.REG_R15
	default:
		panic("compile: unhandled MachineRegister")
	}
}
