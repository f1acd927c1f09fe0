// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "github.com/MarkMcCaskey/shiba-jit/graph"

// Context is the unit of compilation: one function's worth of basic blocks
// plus the constants it references.
type Context struct {
	mgr       *BasicBlockManager
	constants [][]byte

	finalized bool
	graph     *graph.Graph
	dominators *graph.Dominators
}

// NewContext creates an empty Context with a single entry block.
func NewContext() *Context {
	mgr := NewBasicBlockManager()
	mgr.start = mgr.NewBlock()
	return &Context{mgr: mgr}
}

// AddConstant registers a byte-string constant and returns its index for use
// with BlockBuilder.PrintConstant.
func (c *Context) AddConstant(data []byte) ConstantIndex {
	ci := ConstantIndex(len(c.constants))
	c.constants = append(c.constants, data)
	return ci
}

// GetConstant returns the bytes registered under ci.
func (c *Context) GetConstant(ci ConstantIndex) []byte {
	return c.constants[ci]
}

// Constants returns every registered constant in registration order.
func (c *Context) Constants() [][]byte { return c.constants }

// Start returns the entry block's index.
func (c *Context) Start() BasicBlockIndex { return c.mgr.Start() }

// NewBasicBlock appends a fresh, empty block and returns its index.
func (c *Context) NewBasicBlock() BasicBlockIndex {
	return c.mgr.NewBlock()
}

// Block returns a BlockBuilder for the block at idx.
func (c *Context) Block(idx BasicBlockIndex) *BlockBuilder {
	return c.mgr.Builder(idx)
}

// Blocks returns every basic block in index order. Valid any time, but only
// safe to treat as immutable after Finalize succeeds.
func (c *Context) Blocks() []*BasicBlock { return c.mgr.Blocks() }

// Len returns the number of basic blocks.
func (c *Context) Len() int { return c.mgr.Len() }

// Graph returns the control-flow graph computed by Finalize. Panics if
// called before a successful Finalize.
func (c *Context) Graph() *graph.Graph {
	if !c.finalized {
		panic("ir: Graph called before successful Finalize")
	}
	return c.graph
}

// Dominators returns the dominator tree computed by Finalize. Panics if
// called before a successful Finalize.
func (c *Context) Dominators() *graph.Dominators {
	if !c.finalized {
		panic("ir: Dominators called before successful Finalize")
	}
	return c.dominators
}

// Finalize drains any outstanding edge notices, checks every structural
// invariant (well-formed blocks, valid edge targets, dominance of every
// register use by its definition), and caches the control-flow graph and
// dominator tree for reuse by later analyses. It returns the first
// violation found, or nil if the Context is well-formed.
func (c *Context) Finalize() error {
	c.mgr.Finalize()

	blocks := c.mgr.Blocks()
	if len(blocks) == 0 {
		return &ConstructionError{Kind: ErrMalformedBlock, Instruction: -1, Reason: "context has no blocks"}
	}

	if err := c.checkWellFormed(blocks); err != nil {
		return err
	}

	g := graph.New(len(blocks), graph.Node(c.mgr.Start()))
	for _, b := range blocks {
		for _, to := range b.Exits() {
			if int(to) >= len(blocks) {
				return &ConstructionError{
					Kind: ErrInvalidEdge, Block: b.Index(), Instruction: -1,
					Reason: "edge target out of range",
				}
			}
			g.AddEdge(graph.Node(b.Index()), graph.Node(to))
		}
	}
	doms := g.Dominators()

	if err := c.checkReachability(blocks, doms); err != nil {
		return err
	}
	if err := c.checkDominance(blocks, doms); err != nil {
		return err
	}

	c.graph = g
	c.dominators = doms
	c.finalized = true
	return nil
}

// checkWellFormed verifies that every block ends in exactly one terminator
// and carries no instructions past it.
func (c *Context) checkWellFormed(blocks []*BasicBlock) error {
	for _, b := range blocks {
		code := b.Instructions()
		if len(code) == 0 {
			return &ConstructionError{
				Kind: ErrMalformedBlock, Block: b.Index(), Instruction: -1,
				Reason: "block has no instructions",
			}
		}
		for i, in := range code {
			isLast := i == len(code)-1
			if in.IsTerminator() && !isLast {
				return &ConstructionError{
					Kind: ErrMalformedBlock, Block: b.Index(), Instruction: i,
					Reason: "terminator is not the block's last instruction",
				}
			}
		}
		if !code[len(code)-1].IsTerminator() {
			return &ConstructionError{
				Kind: ErrMalformedBlock, Block: b.Index(), Instruction: len(code) - 1,
				Reason: "block does not end in a terminator",
			}
		}
	}
	return nil
}

// checkReachability rejects blocks the dominator computation never reached
// from the entry, which would otherwise silently degrade to "no dominance
// relation holds" rather than surfacing as a construction error.
func (c *Context) checkReachability(blocks []*BasicBlock, doms *graph.Dominators) error {
	start := graph.Node(c.mgr.Start())
	for _, b := range blocks {
		n := graph.Node(b.Index())
		if n == start {
			continue
		}
		if !doms.Dominates(start, n) {
			return &ConstructionError{
				Kind: ErrUnreachableBlock, Block: b.Index(), Instruction: -1,
				Reason: "block is not reachable from the entry block",
			}
		}
	}
	return nil
}

// checkDominance verifies that every use of a virtual register is dominated
// by its unique definition: either the defining block strictly dominates
// the using block, or they are the same block and the definition precedes
// the use in program order. There are no phi nodes in this IR, so this is
// the whole of the SSA dominance property.
func (c *Context) checkDominance(blocks []*BasicBlock, doms *graph.Dominators) error {
	type def struct {
		block BasicBlockIndex
		index int
	}
	defs := map[RegisterIndex]def{}
	for _, b := range blocks {
		for i, in := range b.Instructions() {
			if r, ok := in.DefinedRegister(); ok {
				defs[r] = def{block: b.Index(), index: i}
			}
		}
	}

	var used []RegisterIndex
	for _, b := range blocks {
		for i, in := range b.Instructions() {
			used = used[:0]
			used = in.UsedRegisters(used)
			for _, r := range used {
				d, ok := defs[r]
				if !ok {
					return &ConstructionError{
						Kind: ErrUndefinedRegister, Block: b.Index(), Instruction: i,
						Reason: "use of register with no definition",
					}
				}
				if d.block == b.Index() {
					if d.index < i {
						continue
					}
					return &ConstructionError{
						Kind: ErrUndefinedRegister, Block: b.Index(), Instruction: i,
						Reason: "use precedes its definition in the same block",
					}
				}
				if !doms.StrictlyDominates(graph.Node(d.block), graph.Node(b.Index())) {
					return &ConstructionError{
						Kind: ErrUndefinedRegister, Block: b.Index(), Instruction: i,
						Reason: "definition does not dominate this use",
					}
				}
			}
		}
	}
	return nil
}
