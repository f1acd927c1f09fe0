// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"fmt"

	"github.com/MarkMcCaskey/shiba-jit/ir"
)

// CodeGenError is returned by GenerateCode for any failure downstream of a
// successful ir.Context.Finalize: an unsupported IR/operand combination at
// the emitter, or a failure from the underlying assembler.
type CodeGenError struct {
	Block       ir.BasicBlockIndex
	Instruction int
	Reason      string
}

func (e *CodeGenError) Error() string {
	if e.Instruction < 0 {
		return fmt.Sprintf("compile: %s in %s", e.Reason, e.Block)
	}
	return fmt.Sprintf("compile: %s in %s at instruction %d", e.Reason, e.Block, e.Instruction)
}
