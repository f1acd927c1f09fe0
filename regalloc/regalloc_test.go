// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regalloc

import (
	"testing"

	"github.com/MarkMcCaskey/shiba-jit/ir"
	"github.com/MarkMcCaskey/shiba-jit/liveness"
)

func TestAssignSimpleArithmetic(t *testing.T) {
	ctx := ir.NewContext()
	bb := ctx.Block(ctx.Start())
	a := bb.Add(ir.Immediate(ir.U64, 1), ir.Immediate(ir.U64, 2))
	b := bb.Add(a, ir.Immediate(ir.U64, 3))
	bb.Store(b, ir.Immediate(ir.U64, 0))
	bb.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	q := liveness.NewQuery(ctx)
	assign, err := Assign(ctx, q)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, ok := assign[a.Reg]; !ok {
		t.Fatal("expected a register assigned")
	}
	if _, ok := assign[b.Reg]; !ok {
		t.Fatal("expected b register assigned")
	}
	if assign[a.Reg] == assign[b.Reg] {
		t.Fatal("a and b have overlapping live ranges and must not share a machine register")
	}
}

func TestAssignFailsWhenPoolExhausted(t *testing.T) {
	ctx := ir.NewContext()
	bb := ctx.Block(ctx.Start())
	regs := make([]ir.Value, 0, 11)
	for i := 0; i < 11; i++ {
		regs = append(regs, bb.Alloca(ir.U64, 8))
	}
	// Keep every one of the 11 pointers live simultaneously by using them
	// all in one final instruction chain after they are all defined.
	for _, r := range regs {
		bb.Store(r, ir.Immediate(ir.U64, 0))
	}
	bb.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	q := liveness.NewQuery(ctx)
	_, err := Assign(ctx, q)
	if err == nil {
		t.Fatal("expected an out-of-registers error for 11 simultaneously live values")
	}
	if _, ok := err.(*OutOfRegistersError); !ok {
		t.Fatalf("got %v, want *OutOfRegistersError", err)
	}
}
