// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package graph

// Dominators is the dominator tree of a Graph rooted at its entry node,
// computed with the iterative Cooper-Harvey-Kennedy algorithm ("A Simple,
// Fast Dominance Algorithm", 2001): cheaper to implement correctly than
// Lengauer-Tarjan and fast enough for the block counts a JIT compiles.
type Dominators struct {
	g    *Graph
	idom []int // immediate dominator's RPO position per RPO position, -1 if unresolved
	rpo  []Node // node at each reverse-postorder position
	pos  []int  // reverse-postorder position of each node, -1 if unreachable
}

// Dominators computes the dominator tree of g.
func (g *Graph) Dominators() *Dominators {
	n := g.NumNodes()
	postorder := make([]Node, 0, n)
	visited := make([]bool, n)

	var visit func(Node)
	visit = func(u Node) {
		visited[u] = true
		for _, v := range g.succ[u] {
			if !visited[v] {
				visit(v)
			}
		}
		postorder = append(postorder, u)
	}
	visit(g.root)

	rpo := make([]Node, len(postorder))
	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	for i, u := range postorder {
		rpoIdx := len(postorder) - 1 - i
		rpo[rpoIdx] = u
		pos[u] = rpoIdx
	}

	// idom is indexed by RPO position and stores the RPO position of the
	// immediate dominator; -1 means "not yet computed". Because a node's
	// immediate dominator always precedes it in reverse postorder, the
	// classic intersect walk can operate on plain integer positions.
	idom := make([]int, len(rpo))
	for i := range idom {
		idom[i] = -1
	}
	idom[0] = 0 // root dominates itself

	intersect := func(a, b int) int {
		for a != b {
			for a > b {
				a = idom[a]
			}
			for b > a {
				b = idom[b]
			}
		}
		return a
	}

	changed := true
	for changed {
		changed = false
		for i := 1; i < len(rpo); i++ {
			u := rpo[i]
			newIdom := -1
			for _, p := range g.pred[u] {
				pi, ok := rpoPos(pos, p)
				if !ok || idom[pi] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = pi
					continue
				}
				newIdom = intersect(newIdom, pi)
			}
			if newIdom != idom[i] {
				idom[i] = newIdom
				changed = true
			}
		}
	}

	return &Dominators{g: g, idom: idom, rpo: rpo, pos: pos}
}

func rpoPos(pos []int, n Node) (int, bool) {
	p := pos[n]
	if p < 0 {
		return 0, false
	}
	return p, true
}

// immediateDominator returns the immediate dominator of n in node space, or
// n itself if n is the root or unreachable.
func (d *Dominators) immediateDominator(n Node) Node {
	pi, ok := rpoPos(d.pos, n)
	if !ok {
		return n
	}
	idomPos := d.idom[pi]
	if idomPos < 0 {
		return n
	}
	return d.rpo[idomPos]
}

// Dominates reports whether a dominates b (reflexively: every node
// dominates itself).
func (d *Dominators) Dominates(a, b Node) bool {
	if a == b {
		return true
	}
	return d.StrictlyDominates(a, b)
}

// StrictlyDominates reports whether a strictly dominates b (a != b and
// every path from the root to b passes through a).
func (d *Dominators) StrictlyDominates(a, b Node) bool {
	if a == b {
		return false
	}
	_, ok := rpoPos(d.pos, b)
	if !ok {
		return false
	}
	cur := b
	for {
		idomOf := d.immediateDominator(cur)
		if idomOf == cur {
			return false // reached the root without encountering a
		}
		if idomOf == a {
			return true
		}
		cur = idomOf
	}
}

// StrictDominators returns the strict dominators of n (its ancestors in the
// dominator tree, excluding n itself), nearest ancestor first.
func (d *Dominators) StrictDominators(n Node) []Node {
	var out []Node
	cur := n
	for {
		idomOf := d.immediateDominator(cur)
		if idomOf == cur {
			return out
		}
		out = append(out, idomOf)
		cur = idomOf
	}
}
