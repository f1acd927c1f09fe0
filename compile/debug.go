// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"github.com/davecgh/go-spew/spew"
	"golang.org/x/arch/x86/x86asm"

	"github.com/MarkMcCaskey/shiba-jit/ir"
	"github.com/MarkMcCaskey/shiba-jit/regalloc"
)

// dumpContext pretty-prints a finalized Context's blocks and the register
// assignment GenerateCode computed for it. Not part of the contract: purely
// a PrintDebugInfo aid for working out why a program assigned registers the
// way it did.
func dumpContext(ctx *ir.Context, assignment regalloc.Assignment) {
	if !PrintDebugInfo {
		return
	}
	logger.Printf("context: %d block(s)", ctx.Len())
	for _, blk := range ctx.Blocks() {
		logger.Printf("%s:\n%s", blk.Index(), spew.Sdump(blk.Instructions()))
	}
	logger.Printf("assignment:\n%s", spew.Sdump(assignment))
}

// dumpDisassembly decodes and logs every instruction in code. A decode
// failure partway through is logged and stops the dump; it never fails
// GenerateCode, since this is diagnostic-only.
func dumpDisassembly(code []byte) {
	if !PrintDebugInfo {
		return
	}
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			logger.Printf("disasm: stopped at offset %d: %v", off, err)
			return
		}
		logger.Printf("%4d: %s", off, x86asm.GNUSyntax(inst, uint64(off), nil))
		off += inst.Len
	}
}
