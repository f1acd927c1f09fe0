// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compile lowers a finalized ir.Context to x86-64 machine code: it
// runs liveness and register assignment, then walks every basic block in
// index order emitting one instruction sequence per IR op using the
// golang-asm builder, and finally materializes the result as an executable
// memory region.
package compile

import (
	"fmt"
	"unsafe"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/MarkMcCaskey/shiba-jit/ir"
	"github.com/MarkMcCaskey/shiba-jit/liveness"
	"github.com/MarkMcCaskey/shiba-jit/regalloc"
)

// maxPrintLen is the largest constant PrintConstant can emit; the length is
// carried in a single byte register at the call site.
const maxPrintLen = 255

// caller-saved registers pushed/popped around a PrintConstant call, in push
// order; popped in the reverse order.
var callerSaved = []int16{x86.REG_AX, x86.REG_CX, x86.REG_DX, x86.REG_SI, x86.REG_DI, x86.REG_R8, x86.REG_R9, x86.REG_R10, x86.REG_R11}

// CompiledFunction is a finished, callable compilation unit. Fn is only
// valid while the executable buffer backing it is alive; the caller must
// keep the CompiledFunction reachable for exactly that long.
type CompiledFunction struct {
	alloc *MMapAllocator
	code  unsafe.Pointer

	// Fn is a zero-argument, zero-return function that invokes the
	// compiled entry point. Call it directly.
	Fn func()
}

// Release frees the executable memory backing a CompiledFunction. Fn must
// not be called again afterward.
func (c *CompiledFunction) Release() error {
	return c.alloc.Close()
}

type emitter struct {
	ctx        *ir.Context
	assignment regalloc.Assignment
	builder    *asm.Builder

	labels map[ir.BasicBlockIndex]*obj.Prog
	// forward references to a label not yet emitted, resolved once the
	// label's NOP marker is created.
	pending map[ir.BasicBlockIndex][]*obj.Prog

	allocaOffset map[ir.RegisterIndex]int64
	frameSize    int64

	// constRefs records every `movq $imm64, di` placeholder emitted for
	// PrintConstant, so GenerateCode can patch in the constant's real
	// runtime address (buffer base plus the constant's offset) once the
	// whole constants-section-plus-code buffer has a runtime home.
	constRefs []constRef
}

// constRef is one as-yet-unresolved reference to a constant's address: prog
// is the placeholder `movq $imm64, di` instruction, ci the constant it must end
// up pointing at.
type constRef struct {
	prog *obj.Prog
	ci   ir.ConstantIndex
}

// GenerateCode runs liveness analysis and register assignment over ctx (which
// must have already returned nil from Finalize), emits x86-64 machine code
// for every block, and returns an executable, callable CompiledFunction.
func GenerateCode(ctx *ir.Context) (*CompiledFunction, error) {
	q := liveness.NewQuery(ctx)
	assignment, err := regalloc.Assign(ctx, q)
	if err != nil {
		return nil, err
	}

	b, err := asm.NewBuilder("amd64", 256)
	if err != nil {
		return nil, &CodeGenError{Instruction: -1, Reason: fmt.Sprintf("creating assembler builder: %v", err)}
	}

	e := &emitter{
		ctx:          ctx,
		assignment:   assignment,
		builder:      b,
		labels:       map[ir.BasicBlockIndex]*obj.Prog{},
		pending:      map[ir.BasicBlockIndex][]*obj.Prog{},
		allocaOffset: map[ir.RegisterIndex]int64{},
	}
	e.reserveAllocaSlots()

	for _, blk := range ctx.Blocks() {
		if err := e.emitBlock(blk); err != nil {
			return nil, err
		}
	}

	code := b.Assemble()
	dumpContext(ctx, assignment)
	dumpDisassembly(code)

	// Constants section first, matching spec.md §4.5's "assemble a constants
	// section first, each constant at a fresh label containing its raw
	// bytes": every registered constant is laid end to end ahead of the
	// function body, and each PrintConstant site gets the real address of
	// its slice patched in once the whole buffer has a runtime home.
	constOffset := make([]int, len(ctx.Constants()))
	var constSection []byte
	for i, data := range ctx.Constants() {
		constOffset[i] = len(constSection)
		constSection = append(constSection, data...)
	}
	codeOffset := len(constSection)
	full := append(constSection, code...)

	alloc := &MMapAllocator{}
	ptr, err := alloc.AllocateExec(full)
	if err != nil {
		return nil, &CodeGenError{Instruction: -1, Reason: fmt.Sprintf("allocating executable memory: %v", err)}
	}
	base := uintptr(ptr)
	entry := unsafe.Pointer(base + uintptr(codeOffset))

	for _, ref := range e.constRefs {
		addr := base + uintptr(constOffset[int(ref.ci)])
		// +2 skips the REX.W prefix and opcode byte of `movq $imm64, di`
		// (register index 7 needs no REX.B extension bit), landing on the
		// 8-byte immediate operand — the same fixed-register assumption
		// wazero's own post-Assemble patching makes for its moves.
		if err := alloc.PatchUint64(codeOffset+int(ref.prog.Pc)+2, uint64(addr)); err != nil {
			return nil, &CodeGenError{Instruction: -1, Reason: fmt.Sprintf("patching constant reference: %v", err)}
		}
	}

	cf := &CompiledFunction{alloc: alloc, code: entry}
	cf.Fn = makeTrampoline(entry)
	return cf, nil
}

// reserveAllocaSlots assigns every Alloca instruction its own 8-byte-aligned
// stack slot below the frame pointer and computes the total frame size the
// prologue must reserve.
func (e *emitter) reserveAllocaSlots() {
	var offset int64
	for _, blk := range e.ctx.Blocks() {
		for _, in := range blk.Instructions() {
			if in.Op != ir.OpAlloca {
				continue
			}
			offset -= 8
			e.allocaOffset[in.Dest] = offset
		}
	}
	e.frameSize = -offset
	if e.frameSize == 0 {
		e.frameSize = 8 // the prologue in §4.5 always reserves at least one slot
	}
}

func (e *emitter) newProg() *obj.Prog { return e.builder.NewProg() }

func (e *emitter) add(p *obj.Prog) { e.builder.AddInstruction(p) }

func (e *emitter) reg(v ir.RegisterIndex) int16 {
	m, ok := e.assignment[v]
	if !ok {
		panic(fmt.Sprintf("compile: %s has no machine register assigned", v))
	}
	return x86Reg(m)
}

func (e *emitter) emitBlock(blk *ir.BasicBlock) error {
	label := e.newProg()
	label.As = obj.ANOP
	e.add(label)
	e.labels[blk.Index()] = label
	for _, ref := range e.pending[blk.Index()] {
		ref.To.SetTarget(label)
	}
	delete(e.pending, blk.Index())

	if blk.Index() == e.ctx.Start() {
		e.emitRealPrologue()
	}

	for i, in := range blk.Instructions() {
		if err := e.emitInstruction(blk, i, in); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) emitRealPrologue() {
	push := func(r int16) {
		p := e.newProg()
		p.As = x86.APUSHQ
		p.From.Type = obj.TYPE_REG
		p.From.Reg = r
		e.add(p)
	}
	p := e.newProg()
	p.As = x86.APUSHQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_BP
	e.add(p)

	p = e.newProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_SP
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_BP
	e.add(p)

	p = e.newProg()
	p.As = x86.ASUBQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = e.frameSize
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_SP
	e.add(p)

	push(x86.REG_BX)
	push(x86.REG_DI)
	push(x86.REG_SI)
}

func (e *emitter) emitEpilogue() {
	pop := func(r int16) {
		p := e.newProg()
		p.As = x86.APOPQ
		p.To.Type = obj.TYPE_REG
		p.To.Reg = r
		e.add(p)
	}
	pop(x86.REG_SI)
	pop(x86.REG_DI)
	pop(x86.REG_BX)

	p := e.newProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_BP
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_SP
	e.add(p)

	p = e.newProg()
	p.As = x86.APOPQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_BP
	e.add(p)

	p = e.newProg()
	p.As = obj.ARET
	e.add(p)
}

// jumpTo emits an unconditional jump to target, wiring up the label fixup
// immediately if target has already been emitted, or deferring it
// otherwise — the same forward/backward scheme wazero's amd64 builder uses
// for wasm branch targets.
func (e *emitter) jumpTo(as obj.As, target ir.BasicBlockIndex) {
	p := e.newProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	e.add(p)
	if lbl, ok := e.labels[target]; ok {
		p.To.SetTarget(lbl)
	} else {
		e.pending[target] = append(e.pending[target], p)
	}
}

func (e *emitter) immMove(dest int16, width ir.PrimitiveValue, imm uint64) {
	if width.Size() < 4 {
		x := e.newProg()
		x.As = x86.AXORL
		x.From.Type = obj.TYPE_REG
		x.From.Reg = dest
		x.To.Type = obj.TYPE_REG
		x.To.Reg = dest
		e.add(x)
	}
	p := e.newProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = int64(imm)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dest
	e.add(p)
}

func (e *emitter) emitInstruction(blk *ir.BasicBlock, idx int, in ir.Instruction) error {
	switch in.Op {
	case ir.OpAlloca:
		if in.Width != ir.U32 && in.Width != ir.I32 {
			return &CodeGenError{Block: blk.Index(), Instruction: idx, Reason: "alloca: only U32/I32 are implemented"}
		}
		p := e.newProg()
		p.As = x86.ALEAQ
		p.From.Type = obj.TYPE_MEM
		p.From.Reg = x86.REG_BP
		p.From.Offset = e.allocaOffset[in.Dest]
		p.To.Type = obj.TYPE_REG
		p.To.Reg = e.reg(in.Dest)
		e.add(p)

	case ir.OpStore:
		ptrReg := e.reg(in.Src1.Reg)
		if in.Src2.IsRegister() {
			p := e.newProg()
			p.As = x86.AMOVL
			p.From.Type = obj.TYPE_REG
			p.From.Reg = e.reg(in.Src2.Reg)
			p.To.Type = obj.TYPE_MEM
			p.To.Reg = ptrReg
			e.add(p)
		} else {
			e.immMove(x86.REG_AX, in.Src2.Width, in.Src2.Imm)
			p := e.newProg()
			p.As = x86.AMOVL
			p.From.Type = obj.TYPE_REG
			p.From.Reg = x86.REG_AX
			p.To.Type = obj.TYPE_MEM
			p.To.Reg = ptrReg
			e.add(p)
		}

	case ir.OpLoad:
		p := e.newProg()
		p.As = x86.AMOVL
		p.From.Type = obj.TYPE_MEM
		p.From.Reg = e.reg(in.Src1.Reg)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = e.reg(in.Dest)
		e.add(p)

	case ir.OpAdd, ir.OpSubtract, ir.OpMultiply, ir.OpDivide:
		return e.emitArith(blk, idx, in)

	case ir.OpJump:
		e.jumpTo(obj.AJMP, in.Target)

	case ir.OpJumpIfEqual, ir.OpJumpIfNotEqual:
		p := e.newProg()
		p.As = x86.ACMPQ
		p.From.Type = obj.TYPE_REG
		p.From.Reg = e.reg(in.Src1.Reg)
		p.To.Type = obj.TYPE_CONST
		p.To.Offset = 0
		e.add(p)
		branchOp := x86.AJEQ
		if in.Op == ir.OpJumpIfNotEqual {
			branchOp = x86.AJNE
		}
		e.jumpTo(branchOp, in.True)
		e.jumpTo(obj.AJMP, in.False)

	case ir.OpPrintConstant:
		return e.emitPrintConstant(blk, idx, in.Constant)

	case ir.OpReturn:
		e.emitEpilogue()

	default:
		return &CodeGenError{Block: blk.Index(), Instruction: idx, Reason: fmt.Sprintf("unsupported op %s", in.Op)}
	}
	return nil
}

func (e *emitter) emitArith(blk *ir.BasicBlock, idx int, in ir.Instruction) error {
	if in.Src1.IsImmediate() && in.Src2.IsImmediate() {
		if in.Src1.Width != in.Src2.Width {
			return &CodeGenError{Block: blk.Index(), Instruction: idx, Reason: "width mismatch"}
		}
		folded := fold(in.Op, in.Src1.Imm, in.Src2.Imm)
		e.immMove(e.reg(in.Dest), in.Src1.Width, folded)
		return nil
	}

	// In every mixed case dest is first loaded with src1 (a register copy, or
	// an immediate moved straight into dest), then the op is applied in place
	// with src2, an immediate src2 first being materialized in a scratch
	// register the allocator never hands out — this keeps non-commutative
	// Subtract/Divide correct without a separate code path.
	dest := e.reg(in.Dest)
	switch {
	case in.Src1.IsRegister():
		e.movReg(dest, e.reg(in.Src1.Reg))
	case in.Src1.IsImmediate():
		e.immMove(dest, in.Src1.Width, in.Src1.Imm)
	}

	switch {
	case in.Src2.IsRegister():
		e.arithRegReg(in.Op, dest, e.reg(in.Src2.Reg))
	case in.Src2.IsImmediate():
		// Divide borrows rax/rdx internally, so its immediate operand must
		// land somewhere else first; every other op is free to use rax.
		scratch := int16(x86.REG_AX)
		if in.Op == ir.OpDivide {
			scratch = x86.REG_CX
		}
		e.immMove(scratch, in.Src2.Width, in.Src2.Imm)
		e.arithRegReg(in.Op, dest, scratch)
	}
	return nil
}

func (e *emitter) movReg(to, from int16) {
	p := e.newProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	e.add(p)
}

func (e *emitter) arithRegReg(op ir.Op, dest, src int16) {
	p := e.newProg()
	p.From.Type = obj.TYPE_REG
	p.From.Reg = src
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dest
	switch op {
	case ir.OpAdd:
		p.As = x86.AADDQ
	case ir.OpSubtract:
		p.As = x86.ASUBQ
	case ir.OpMultiply:
		p.As = x86.AIMULQ
	case ir.OpDivide:
		// Divide clobbers rax/rdx, so the result is moved into dest
		// afterward; this is the one arithmetic op with real interference
		// against the allocator's rdx slot (see DESIGN.md).
		mov := e.newProg()
		mov.As = x86.AMOVQ
		mov.From.Type = obj.TYPE_REG
		mov.From.Reg = dest
		mov.To.Type = obj.TYPE_REG
		mov.To.Reg = x86.REG_AX
		e.add(mov)

		cqo := e.newProg()
		cqo.As = x86.ACQTO
		e.add(cqo)

		div := e.newProg()
		div.As = x86.AIDIVQ
		div.From.Type = obj.TYPE_REG
		div.From.Reg = src
		e.add(div)

		res := e.newProg()
		res.As = x86.AMOVQ
		res.From.Type = obj.TYPE_REG
		res.From.Reg = x86.REG_AX
		res.To.Type = obj.TYPE_REG
		res.To.Reg = dest
		e.add(res)
		return
	}
	e.add(p)
}

func fold(op ir.Op, a, b uint64) uint64 {
	switch op {
	case ir.OpAdd:
		return a + b
	case ir.OpSubtract:
		return a - b
	case ir.OpMultiply:
		return a * b
	case ir.OpDivide:
		if b == 0 {
			return 0
		}
		return a / b
	default:
		panic("compile: fold called with non-arithmetic op")
	}
}

func (e *emitter) emitPrintConstant(blk *ir.BasicBlock, idx int, ci ir.ConstantIndex) error {
	data := e.ctx.GetConstant(ci)
	if len(data) > maxPrintLen {
		data = data[:maxPrintLen] // truncated silently, per the open question resolved in SPEC_FULL.md
	}

	for _, r := range callerSaved {
		p := e.newProg()
		p.As = x86.APUSHQ
		p.From.Type = obj.TYPE_REG
		p.From.Reg = r
		e.add(p)
	}

	// Placeholder: the real address isn't known until the constants section
	// and the function body share a single allocated buffer (GenerateCode),
	// so this is recorded and patched in afterward rather than baked in now.
	// The placeholder does not fit in 32 bits, so the assembler encodes it in
	// the 10-byte form carrying the 8-byte immediate that GenerateCode
	// overwrites.
	p := e.newProg()
	p.As = x86.AMOVQ
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = 0x7fffffffffffffff
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_DI
	e.add(p)
	e.constRefs = append(e.constRefs, constRef{prog: p, ci: ci})

	xorProg := e.newProg()
	xorProg.As = x86.AXORL
	xorProg.From.Type = obj.TYPE_REG
	xorProg.From.Reg = x86.REG_SI
	xorProg.To.Type = obj.TYPE_REG
	xorProg.To.Reg = x86.REG_SI
	e.add(xorProg)

	movLen := e.newProg()
	movLen.As = x86.AMOVB
	movLen.From.Type = obj.TYPE_CONST
	movLen.From.Offset = int64(len(data))
	movLen.To.Type = obj.TYPE_REG
	movLen.To.Reg = x86.REG_SI
	e.add(movLen)

	movFn := e.newProg()
	movFn.As = x86.AMOVQ
	movFn.From.Type = obj.TYPE_CONST
	movFn.From.Offset = hostPrintAddr()
	movFn.To.Type = obj.TYPE_REG
	movFn.To.Reg = x86.REG_AX
	e.add(movFn)

	call := e.newProg()
	call.As = obj.ACALL
	call.To.Type = obj.TYPE_REG
	call.To.Reg = x86.REG_AX
	e.add(call)

	for i := len(callerSaved) - 1; i >= 0; i-- {
		p := e.newProg()
		p.As = x86.APOPQ
		p.To.Type = obj.TYPE_REG
		p.To.Reg = callerSaved[i]
		e.add(p)
	}
	return nil
}
