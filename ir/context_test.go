// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"testing"

	"github.com/MarkMcCaskey/shiba-jit/graph"
)

func TestFinalizeLinearBlock(t *testing.T) {
	ctx := NewContext()
	bb := ctx.Block(ctx.Start())
	v := bb.Alloca(U64, 8)
	bb.Store(v, Immediate(U64, 42))
	bb.Load(v)
	bb.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if ctx.Graph().NumNodes() != 1 {
		t.Fatalf("NumNodes = %d, want 1", ctx.Graph().NumNodes())
	}
}

func TestFinalizeRejectsMissingTerminator(t *testing.T) {
	ctx := NewContext()
	bb := ctx.Block(ctx.Start())
	bb.Alloca(U64, 8)

	err := ctx.Finalize()
	if err == nil {
		t.Fatal("expected Finalize to reject a block with no terminator")
	}
	ce, ok := err.(*ConstructionError)
	if !ok || ce.Kind != ErrMalformedBlock {
		t.Fatalf("got %v, want ErrMalformedBlock", err)
	}
}

func TestFinalizeRejectsInvalidEdge(t *testing.T) {
	ctx := NewContext()
	bb := ctx.Block(ctx.Start())
	bb.Jump(BasicBlockIndex(99))

	err := ctx.Finalize()
	if err == nil {
		t.Fatal("expected Finalize to reject an out-of-range jump target")
	}
	if ce, ok := err.(*ConstructionError); !ok || ce.Kind != ErrInvalidEdge {
		t.Fatalf("got %v, want ErrInvalidEdge", err)
	}
}

func TestFinalizeRejectsUnreachableBlock(t *testing.T) {
	ctx := NewContext()
	entry := ctx.Block(ctx.Start())
	entry.Ret()
	orphan := ctx.NewBasicBlock()
	ctx.Block(orphan).Ret()

	err := ctx.Finalize()
	if err == nil {
		t.Fatal("expected Finalize to reject an unreachable block")
	}
	if ce, ok := err.(*ConstructionError); !ok || ce.Kind != ErrUnreachableBlock {
		t.Fatalf("got %v, want ErrUnreachableBlock", err)
	}
}

// TestFinalizeRejectsNonDominatedUse constructs a diamond where a register
// defined only in the left arm is used in the join block; since neither arm
// strictly dominates the join alone, the join-block use must be rejected.
func TestFinalizeRejectsNonDominatedUse(t *testing.T) {
	ctx := NewContext()
	entry := ctx.Start()
	left := ctx.NewBasicBlock()
	right := ctx.NewBasicBlock()
	join := ctx.NewBasicBlock()

	var leftVal Value
	ctx.Block(entry).JumpIfEqual(Immediate(U64, 0), left, right)
	leftBB := ctx.Block(left)
	leftVal = leftBB.Add(Immediate(U64, 1), Immediate(U64, 2))
	leftBB.Jump(join)
	ctx.Block(right).Jump(join)
	ctx.Block(join).Store(leftVal, Immediate(U64, 0))
	ctx.Block(join).Ret()

	err := ctx.Finalize()
	if err == nil {
		t.Fatal("expected Finalize to reject a use not dominated by its definition")
	}
	if ce, ok := err.(*ConstructionError); !ok || ce.Kind != ErrUndefinedRegister {
		t.Fatalf("got %v, want ErrUndefinedRegister", err)
	}
}

func TestFinalizeAllowsLoopBackEdge(t *testing.T) {
	ctx := NewContext()
	entry := ctx.Start()
	header := ctx.NewBasicBlock()
	body := ctx.NewBasicBlock()
	exit := ctx.NewBasicBlock()

	ptr := ctx.Block(entry).Alloca(U64, 8)
	ctx.Block(entry).Jump(header)
	cond := ctx.Block(header).Load(ptr)
	ctx.Block(header).JumpIfNotEqual(cond, body, exit)
	ctx.Block(body).Store(ptr, Immediate(U64, 0))
	ctx.Block(body).Jump(header)
	ctx.Block(exit).Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	red := ctx.Graph().Reduce()
	if !red.BackEdgeTargets(graph.Node(body))[graph.Node(header)] {
		t.Fatalf("expected a back-edge from body to header")
	}
}
