// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regalloc assigns machine registers to the virtual registers of a
// finalized ir.Context. Assignment is two-phase and liveness-driven: a
// depth-first walk of the control-flow graph carries a FIFO free pool of
// machine registers and a per-path map of currently-live virtual registers,
// releasing entries whose live range has ended and allocating a fresh
// machine register at every definition. There is no spilling: exhausting
// the pool is a hard error.
package regalloc

import (
	"fmt"

	"github.com/MarkMcCaskey/shiba-jit/ir"
	"github.com/MarkMcCaskey/shiba-jit/liveness"
)

// MachineRegister identifies one of the ten general-purpose x86-64
// registers this allocator may hand out. rax, rcx, rsi and rdi are
// deliberately excluded: they are clobbered by the runtime's print helper
// and rsp/rbp are reserved for the frame.
type MachineRegister byte

const (
	RDX MachineRegister = iota
	RBX
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

func (m MachineRegister) String() string {
	switch m {
	case RDX:
		return "rdx"
	case RBX:
		return "rbx"
	case R8:
		return "r8"
	case R9:
		return "r9"
	case R10:
		return "r10"
	case R11:
		return "r11"
	case R12:
		return "r12"
	case R13:
		return "r13"
	case R14:
		return "r14"
	case R15:
		return "r15"
	default:
		return fmt.Sprintf("MachineRegister(%d)", byte(m))
	}
}

// freePool returns the allocatable set in allocation-priority order.
func freePool() []MachineRegister {
	return []MachineRegister{RDX, RBX, R8, R9, R10, R11, R12, R13, R14, R15}
}

// OutOfRegistersError is returned when the free pool is exhausted while
// allocating the register defined at Block/Instruction. This library does
// not support spilling; a program requiring more than ten simultaneously
// live values cannot be assigned.
type OutOfRegistersError struct {
	Block       ir.BasicBlockIndex
	Instruction int
	Register    ir.RegisterIndex
}

func (e *OutOfRegistersError) Error() string {
	return fmt.Sprintf("regalloc: out of registers assigning %s in %s at instruction %d",
		e.Register, e.Block, e.Instruction)
}

// Assignment maps every virtual register used in a Context to the machine
// register that holds it for the whole of its live range.
type Assignment map[ir.RegisterIndex]MachineRegister

// Assign computes the register Assignment for ctx, using q to answer
// liveness queries. ctx must have already returned nil from Finalize.
func Assign(ctx *ir.Context, q *liveness.Query) (Assignment, error) {
	blocks := ctx.Blocks()
	defBlock := map[ir.RegisterIndex]ir.BasicBlockIndex{}
	for _, b := range blocks {
		for _, in := range b.Instructions() {
			if r, ok := in.DefinedRegister(); ok {
				defBlock[r] = b.Index()
			}
		}
	}

	result := Assignment{}
	visited := make([]bool, len(blocks))

	var walk func(idx ir.BasicBlockIndex, current map[ir.RegisterIndex]MachineRegister, pool []MachineRegister) error
	walk = func(idx ir.BasicBlockIndex, current map[ir.RegisterIndex]MachineRegister, pool []MachineRegister) error {
		if visited[idx] {
			return nil
		}
		visited[idx] = true

		cur := make(map[ir.RegisterIndex]MachineRegister, len(current))
		for k, v := range current {
			cur[k] = v
		}
		free := append([]MachineRegister(nil), pool...)

		// Release at entry: a value stays allocated crossing into this
		// block unless this block is its own definition site re-entered
		// through a loop back-edge, in which case liveness.IsLiveIn
		// settles whether the prior iteration's value is still needed.
		for v := range cur {
			if defBlock[v] != idx {
				continue
			}
			if !q.IsLiveIn(v) {
				free = append(free, cur[v])
				delete(cur, v)
			}
		}

		blk := blocks[idx]
		for i, in := range blk.Instructions() {
			v, ok := in.DefinedRegister()
			if !ok {
				continue
			}
			if len(free) == 0 {
				return &OutOfRegistersError{Block: idx, Instruction: i, Register: v}
			}
			m := free[0]
			free = free[1:]
			if _, exists := result[v]; exists {
				panic(fmt.Sprintf("regalloc: register %s assigned twice", v))
			}
			result[v] = m
			cur[v] = m
		}

		// Release at exit: anything no longer live past this block's
		// boundary returns to the pool before it is cloned down each
		// successor edge.
		for v, m := range cur {
			if !q.IsLiveOut(v, idx) {
				free = append(free, m)
				delete(cur, v)
			}
		}

		for _, succ := range blk.Exits() {
			if err := walk(succ, cur, free); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(ctx.Start(), nil, freePool()); err != nil {
		return nil, err
	}
	return result, nil
}
