// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package liveness answers is-live-in/is-live-out queries over a finalized
// ir.Context without computing per-program-point live sets, following
// Boissinot, Hack, Grund, Dupont de Dinechin & Rastello, "Fast Liveness
// Checking for SSA-Form Programs" (CGO 2008): a query considers the back-edge
// targets found from a register's defining block that strictly dominate
// that block, and reports the register live when one of them can still reach
// one of its uses in the reduced (back-edge-free) graph.
package liveness

import (
	"github.com/MarkMcCaskey/shiba-jit/graph"
	"github.com/MarkMcCaskey/shiba-jit/ir"
)

// Query answers liveness questions about a single finalized ir.Context. It
// is built once per Context and reused for every register.
type Query struct {
	ctx     *ir.Context
	doms    *graph.Dominators
	reduced *graph.Reduced

	useBlocks map[ir.RegisterIndex]map[graph.Node]bool
	defBlock  map[ir.RegisterIndex]graph.Node
}

// NewQuery builds a Query over ctx, which must have already returned nil
// from Finalize.
func NewQuery(ctx *ir.Context) *Query {
	q := &Query{
		ctx:       ctx,
		doms:      ctx.Dominators(),
		reduced:   ctx.Graph().Reduce(),
		useBlocks: map[ir.RegisterIndex]map[graph.Node]bool{},
		defBlock:  map[ir.RegisterIndex]graph.Node{},
	}

	var used []ir.RegisterIndex
	for _, b := range ctx.Blocks() {
		n := graph.Node(b.Index())
		for _, in := range b.Instructions() {
			used = used[:0]
			used = in.UsedRegisters(used)
			for _, r := range used {
				set, ok := q.useBlocks[r]
				if !ok {
					set = map[graph.Node]bool{}
					q.useBlocks[r] = set
				}
				set[n] = true
			}
			if r, ok := in.DefinedRegister(); ok {
				q.defBlock[r] = n
			}
		}
	}
	return q
}

// IsLiveIn reports whether reg is live at the entry of the block that
// defines it, which can only happen via a loop: some back-edge target that
// strictly dominates the defining block must be able to reach a use of reg
// in the reduced graph.
func (q *Query) IsLiveIn(reg ir.RegisterIndex) bool {
	defNode := q.defBlock[reg]
	uses := q.useBlocks[reg]
	for _, t := range graph.SortedNodes(q.reduced.BackEdgeTargets(defNode)) {
		if !q.doms.StrictlyDominates(t, defNode) {
			continue
		}
		if intersects(q.reduced.ReachableSet(t), uses) {
			return true
		}
	}
	return false
}

// IsLiveOut reports whether reg is live at the exit of block.
func (q *Query) IsLiveOut(reg ir.RegisterIndex, block ir.BasicBlockIndex) bool {
	defNode := q.defBlock[reg]
	blockNode := graph.Node(block)
	uses := q.useBlocks[reg]

	if defNode == blockNode {
		for n := range uses {
			if n != blockNode {
				return true
			}
		}
		return false
	}

	if !q.doms.StrictlyDominates(defNode, blockNode) {
		return false
	}

	for _, t := range graph.SortedNodes(q.reduced.BackEdgeTargets(defNode)) {
		if !q.doms.StrictlyDominates(t, defNode) {
			continue
		}
		u := cloneSet(uses)
		if t == blockNode && !q.reduced.BackEdgeTargets(blockNode)[blockNode] {
			delete(u, blockNode)
		}
		if intersects(q.reduced.ReachableSet(t), u) {
			return true
		}
	}
	return false
}

func intersects(a, b map[graph.Node]bool) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for n := range small {
		if big[n] {
			return true
		}
	}
	return false
}

func cloneSet(s map[graph.Node]bool) map[graph.Node]bool {
	out := make(map[graph.Node]bool, len(s))
	for n := range s {
		out[n] = true
	}
	return out
}
