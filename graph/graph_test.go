// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package graph

import "testing"

// buildDiamondWithBackEdge builds head -> {left, right} -> join -> head,
// the scenario from the end-to-end test list: a diamond whose join closes a
// loop back to the head.
func buildDiamondWithBackEdge() (g *Graph, head, left, right, join Node) {
	head, left, right, join = 0, 1, 2, 3
	g = New(4, head)
	g.AddEdge(head, left)
	g.AddEdge(head, right)
	g.AddEdge(left, join)
	g.AddEdge(right, join)
	g.AddEdge(join, head)
	return
}

func TestReduceDropsBackEdge(t *testing.T) {
	g, head, _, _, join := buildDiamondWithBackEdge()
	red := g.Reduce()

	if !red.Acyclic() {
		t.Fatal("reduced graph must be acyclic")
	}
	for _, s := range red.edges[join] {
		if s == head {
			t.Fatal("reduced graph still contains the join->head back-edge")
		}
	}
	if !red.BackEdgeTargets(join)[head] {
		t.Fatal("head should be a back-edge target reachable from join")
	}
}

func TestReachableSetExcludesAcrossBackEdge(t *testing.T) {
	g, head, left, _, join := buildDiamondWithBackEdge()
	red := g.Reduce()

	if !red.Reachable(head, join) {
		t.Fatal("join should be reduced-reachable from head")
	}
	if !red.Reachable(head, left) {
		t.Fatal("left should be reduced-reachable from head")
	}
	if red.Reachable(join, head) {
		t.Fatal("head must not be reduced-reachable from join: the only path crosses the back-edge")
	}
}

func TestDepthLabeling(t *testing.T) {
	g, head, left, right, join := buildDiamondWithBackEdge()
	red := g.Reduce()

	if red.Depth(head) != 0 {
		t.Fatalf("depth(head) = %d, want 0", red.Depth(head))
	}
	if red.Depth(left) != 1 || red.Depth(right) != 1 {
		t.Fatalf("depth(left)=%d depth(right)=%d, want 1,1", red.Depth(left), red.Depth(right))
	}
	if red.Depth(join) != 2 {
		t.Fatalf("depth(join) = %d, want 2", red.Depth(join))
	}
}

func TestDominatorsDiamond(t *testing.T) {
	g, head, left, right, join := buildDiamondWithBackEdge()
	doms := g.Dominators()

	if !doms.StrictlyDominates(head, join) {
		t.Fatal("head should strictly dominate join")
	}
	if doms.StrictlyDominates(left, join) {
		t.Fatal("left alone must not dominate join: right is another path in")
	}
	if doms.StrictlyDominates(right, join) {
		t.Fatal("right alone must not dominate join: left is another path in")
	}
	if !doms.Dominates(head, head) {
		t.Fatal("every node dominates itself")
	}
}

func TestStrictDominatorsOrderedNearestFirst(t *testing.T) {
	g, head, _, _, join := buildDiamondWithBackEdge()
	doms := g.Dominators()
	sd := doms.StrictDominators(join)
	if len(sd) != 1 || sd[0] != head {
		t.Fatalf("StrictDominators(join) = %v, want [head]", sd)
	}
}
