// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import "fmt"

// ConstructionErrorKind discriminates the ways a Context can fail to
// finalize. These are all detected without running any liveness or register
// allocation analysis.
type ConstructionErrorKind byte

const (
	// ErrInvalidEdge marks a terminator whose target block index doesn't
	// exist.
	ErrInvalidEdge ConstructionErrorKind = iota
	// ErrUndefinedRegister marks a use of a virtual register in a block
	// that is not dominated by the block that defines it.
	ErrUndefinedRegister
	// ErrMalformedBlock marks a block with no terminator, an instruction
	// after its terminator, or more than one terminator.
	ErrMalformedBlock
	// ErrUnreachableBlock marks a block that no path from the entry block
	// reaches, discovered during dominator construction.
	ErrUnreachableBlock
)

func (k ConstructionErrorKind) String() string {
	switch k {
	case ErrInvalidEdge:
		return "invalid edge"
	case ErrUndefinedRegister:
		return "undefined register use"
	case ErrMalformedBlock:
		return "malformed block"
	case ErrUnreachableBlock:
		return "unreachable block"
	default:
		return fmt.Sprintf("ConstructionErrorKind(%d)", byte(k))
	}
}

// ConstructionError is returned by Context.Finalize. It carries the
// location of the first violation found and a human-readable reason.
type ConstructionError struct {
	Kind        ConstructionErrorKind
	Block       BasicBlockIndex
	Instruction int // index within Block.Instructions(), or -1 if not applicable
	Reason      string
}

func (e *ConstructionError) Error() string {
	if e.Instruction < 0 {
		return fmt.Sprintf("ir: %s in %s: %s", e.Kind, e.Block, e.Reason)
	}
	return fmt.Sprintf("ir: %s in %s at instruction %d: %s", e.Kind, e.Block, e.Instruction, e.Reason)
}
