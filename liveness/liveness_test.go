// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package liveness

import (
	"testing"

	"github.com/MarkMcCaskey/shiba-jit/ir"
)

// buildLoop constructs: entry -> header -> body -> header (back-edge),
//
//	header -> exit
//
// with a counter alive across the back-edge (defined in entry, used in the
// header's condition and in the body).
func buildLoop(t *testing.T) (*ir.Context, ir.RegisterIndex, ir.BasicBlockIndex, ir.BasicBlockIndex) {
	t.Helper()
	ctx := ir.NewContext()
	entry := ctx.Start()
	header := ctx.NewBasicBlock()
	body := ctx.NewBasicBlock()
	exit := ctx.NewBasicBlock()

	ptr := ctx.Block(entry).Alloca(ir.U64, 8)
	ctx.Block(entry).Store(ptr, ir.Immediate(ir.U64, 0))
	ctx.Block(entry).Jump(header)

	cond := ctx.Block(header).Load(ptr)
	ctx.Block(header).JumpIfNotEqual(cond, body, exit)

	ctx.Block(body).Store(ptr, ir.Immediate(ir.U64, 1))
	ctx.Block(body).Jump(header)

	ctx.Block(exit).Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	// ptr is a register defined in entry and used (as a Store/Load operand)
	// in every block of the loop; recover its RegisterIndex the only way a
	// caller can: from the Value itself.
	return ctx, ptr.Reg, header, body
}

func TestIsLiveInFalseAtDefiningBlockOutsideLoop(t *testing.T) {
	ctx, ptrReg, _, _ := buildLoop(t)
	q := NewQuery(ctx)
	if q.IsLiveIn(ptrReg) {
		t.Fatal("expected the pointer register not to be live-in at its defining block: entry is outside the loop and has no predecessors")
	}
}

func TestIsLiveOutAcrossBackEdge(t *testing.T) {
	ctx, ptrReg, _, body := buildLoop(t)
	q := NewQuery(ctx)
	if !q.IsLiveOut(ptrReg, body) {
		t.Fatal("expected the pointer register to be live-out of the loop body, carried around the back-edge")
	}
}

func TestIsLiveOutFalseAfterLastUse(t *testing.T) {
	ctx := ir.NewContext()
	entry := ctx.Start()
	next := ctx.NewBasicBlock()

	v := ctx.Block(entry).Add(ir.Immediate(ir.U64, 1), ir.Immediate(ir.U64, 2))
	ctx.Block(entry).Store(v, ir.Immediate(ir.U64, 0))
	ctx.Block(entry).Jump(next)
	ctx.Block(next).Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	q := NewQuery(ctx)
	if q.IsLiveOut(v.Reg, entry) {
		t.Fatal("expected a register with no use outside its defining block to be dead on exit")
	}
}
