// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// edgeNotice is posted by a BlockBuilder when a terminator introduces a
// control-flow edge. The manager drains these to append the mirror entry on
// the target block's parent set, without ever handing out two mutable
// references into the block table at once.
type edgeNotice struct {
	from, to BasicBlockIndex
}

// BasicBlock is a node in the control-flow graph: a straight-line sequence
// of instructions together with the edges that connect it to its neighbors.
// parents/exits are maintained independently of the terminator instruction
// so graph analyses can walk edges without re-decoding IR.
type BasicBlock struct {
	selfIdx BasicBlockIndex
	parents []BasicBlockIndex
	exits   []BasicBlockIndex
	code    []Instruction
}

// Index returns this block's own index.
func (b *BasicBlock) Index() BasicBlockIndex { return b.selfIdx }

// Parents returns the predecessor indices of this block.
func (b *BasicBlock) Parents() []BasicBlockIndex { return b.parents }

// Exits returns the successor indices of this block.
func (b *BasicBlock) Exits() []BasicBlockIndex { return b.exits }

// Instructions returns the block's straight-line code.
func (b *BasicBlock) Instructions() []Instruction { return b.code }

func (b *BasicBlock) addParent(p BasicBlockIndex) {
	for _, existing := range b.parents {
		if existing == p {
			return
		}
	}
	b.parents = append(b.parents, p)
}

// BlockBuilder is a scoped mutable handle to exactly one BasicBlock. It is
// obtained from a Context and is the only way to append instructions to a
// block. Handing out a BlockBuilder (rather than a raw *BasicBlock) keeps
// cross-block edge bookkeeping centralized in the manager: a terminator
// posts an edgeNotice on manager.edges instead of reaching into another
// block directly.
type BlockBuilder struct {
	block *BasicBlock
	mgr   *BasicBlockManager
}

func (bb *BlockBuilder) nextRegister() RegisterIndex {
	r := bb.mgr.nextRegister
	bb.mgr.nextRegister++
	return r
}

// AddParent explicitly declares a predecessor of this block, for edges not
// introduced through a jump/branch helper (e.g. fallthrough, or edges
// constructed by a higher-level frontend).
func (bb *BlockBuilder) AddParent(parent BasicBlockIndex) *BlockBuilder {
	bb.block.addParent(parent)
	return bb
}

func (bb *BlockBuilder) binop(op Op, v1, v2 Value) Value {
	dest := bb.nextRegister()
	bb.block.code = append(bb.block.code, Instruction{Op: op, Dest: dest, Src1: v1, Src2: v2})
	return Register(dest)
}

// Add appends dest = v1 + v2 and returns the result register.
func (bb *BlockBuilder) Add(v1, v2 Value) Value { return bb.binop(OpAdd, v1, v2) }

// Subtract appends dest = v1 - v2 and returns the result register.
func (bb *BlockBuilder) Subtract(v1, v2 Value) Value { return bb.binop(OpSubtract, v1, v2) }

// Multiply appends dest = v1 * v2 and returns the result register.
func (bb *BlockBuilder) Multiply(v1, v2 Value) Value { return bb.binop(OpMultiply, v1, v2) }

// Divide appends dest = v1 / v2 and returns the result register.
func (bb *BlockBuilder) Divide(v1, v2 Value) Value { return bb.binop(OpDivide, v1, v2) }

// Alloca reserves stack storage of the given width and alignment; the
// returned Value holds a pointer to it.
func (bb *BlockBuilder) Alloca(width PrimitiveValue, alignment uint8) Value {
	dest := bb.nextRegister()
	bb.block.code = append(bb.block.code, Instruction{
		Op: OpAlloca, Dest: dest, Width: width, Alignment: alignment,
	})
	return Register(dest)
}

// Load dereferences the pointer Value ptr and returns the loaded register.
func (bb *BlockBuilder) Load(ptr Value) Value {
	dest := bb.nextRegister()
	bb.block.code = append(bb.block.code, Instruction{Op: OpLoad, Dest: dest, Src1: ptr})
	return Register(dest)
}

// Store writes v through the pointer Value ptr.
func (bb *BlockBuilder) Store(ptr, v Value) {
	bb.block.code = append(bb.block.code, Instruction{Op: OpStore, Src1: ptr, Src2: v})
}

// Jump appends an unconditional edge to target, recording the exit locally
// and notifying the manager to mirror the parent edge.
func (bb *BlockBuilder) Jump(target BasicBlockIndex) {
	bb.block.exits = append(bb.block.exits, target)
	bb.block.code = append(bb.block.code, Instruction{Op: OpJump, Target: target})
	bb.mgr.postEdge(bb.block.selfIdx, target)
}

// JumpIfEqual appends a conditional two-successor branch: taken when cond
// compares equal to zero.
func (bb *BlockBuilder) JumpIfEqual(cond Value, trueTarget, falseTarget BasicBlockIndex) {
	bb.branch(OpJumpIfEqual, cond, trueTarget, falseTarget)
}

// JumpIfNotEqual appends a conditional two-successor branch: taken when cond
// compares not-equal to zero.
func (bb *BlockBuilder) JumpIfNotEqual(cond Value, trueTarget, falseTarget BasicBlockIndex) {
	bb.branch(OpJumpIfNotEqual, cond, trueTarget, falseTarget)
}

func (bb *BlockBuilder) branch(op Op, cond Value, trueTarget, falseTarget BasicBlockIndex) {
	bb.block.exits = append(bb.block.exits, trueTarget, falseTarget)
	bb.block.code = append(bb.block.code, Instruction{
		Op: op, Src1: cond, True: trueTarget, False: falseTarget,
	})
	bb.mgr.postEdge(bb.block.selfIdx, trueTarget)
	bb.mgr.postEdge(bb.block.selfIdx, falseTarget)
}

// PrintConstant appends a call that writes the pre-registered byte-constant
// ci to stdout.
func (bb *BlockBuilder) PrintConstant(ci ConstantIndex) {
	bb.block.code = append(bb.block.code, Instruction{Op: OpPrintConstant, Constant: ci})
}

// Ret appends a function return.
func (bb *BlockBuilder) Ret() {
	bb.block.code = append(bb.block.code, Instruction{Op: OpReturn})
}

// Finish is a no-op hook retained for symmetry with the builder's
// open/close lifecycle; it exists so callers can chain a terminating call
// without special-casing the last statement of a block.
func (bb *BlockBuilder) Finish() {}

// BasicBlockManager owns the dense array of basic blocks for one Context and
// mediates the bidirectional parent/exit edge updates that a BlockBuilder
// cannot perform itself (a builder only ever holds one block at a time).
type BasicBlockManager struct {
	start        BasicBlockIndex
	blocks       []*BasicBlock
	pending      []edgeNotice
	nextRegister RegisterIndex
}

// NewBasicBlockManager creates an empty manager.
func NewBasicBlockManager() *BasicBlockManager {
	return &BasicBlockManager{}
}

func (m *BasicBlockManager) postEdge(from, to BasicBlockIndex) {
	m.pending = append(m.pending, edgeNotice{from: from, to: to})
}

// drain applies every pending edge notice whose target block exists,
// appending the source to the target's parent set; a notice naming a block
// that does not exist yet stays pending (Context.Finalize reports such a
// target as an invalid edge). Called at NewBlock and again at Finalize,
// mirroring the reference design's "drain on new_block and on finalize" rule.
func (m *BasicBlockManager) drain() {
	kept := m.pending[:0]
	for _, n := range m.pending {
		if int(n.to) >= len(m.blocks) {
			kept = append(kept, n)
			continue
		}
		m.blocks[n.to].addParent(n.from)
	}
	m.pending = kept
}

// NewBlock appends an empty block and returns its dense index.
func (m *BasicBlockManager) NewBlock() BasicBlockIndex {
	m.drain()
	idx := BasicBlockIndex(len(m.blocks))
	m.blocks = append(m.blocks, &BasicBlock{selfIdx: idx})
	return idx
}

// Builder returns a scoped mutable handle to the block at idx.
func (m *BasicBlockManager) Builder(idx BasicBlockIndex) *BlockBuilder {
	return &BlockBuilder{block: m.blocks[idx], mgr: m}
}

// Block returns the (read-only after Finalize) block at idx.
func (m *BasicBlockManager) Block(idx BasicBlockIndex) *BasicBlock {
	return m.blocks[idx]
}

// Len returns the number of blocks.
func (m *BasicBlockManager) Len() int { return len(m.blocks) }

// Start returns the entry block's index (always the first block created).
func (m *BasicBlockManager) Start() BasicBlockIndex { return m.start }

// Finalize drains any outstanding edge notices. After this call the edge
// sets are frozen and safe for concurrent read-only graph analysis.
func (m *BasicBlockManager) Finalize() { m.drain() }

// Blocks iterates every block in index order.
func (m *BasicBlockManager) Blocks() []*BasicBlock { return m.blocks }
