// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"log"
	"os"
)

// PrintDebugInfo gates the package's diagnostic output: a structural dump of
// the IR being compiled and a disassembly of the machine code GenerateCode
// produces. Off by default; toggling it is a caller decision made before
// calling GenerateCode.
var PrintDebugInfo = false

var logger = log.New(debugWriter{}, "compile: ", log.Lshortfile)

// debugWriter discards everything unless PrintDebugInfo is set at the time
// of the write, in which case it forwards to stderr.
type debugWriter struct{}

func (debugWriter) Write(p []byte) (int, error) {
	if !PrintDebugInfo {
		return len(p), nil
	}
	return os.Stderr.Write(p)
}
