// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"reflect"
	"unsafe"
)

// hostPrintTrampoline is implemented in hostprint_amd64.s. It is never
// called as a Go function; only its entry address is ever read, via
// hostPrintAddr, and baked into emitted code as the target of a raw CALL.
func hostPrintTrampoline()

// hostPrintAddr returns the address OpPrintConstant calls into. reflect
// gives us the func value's code pointer without needing cgo or an asm
// stub that takes its own address.
func hostPrintAddr() int64 {
	return int64(reflect.ValueOf(hostPrintTrampoline).Pointer())
}

// makeTrampoline builds a Go func value whose entry point is ptr. A Go func
// value is itself a pointer to a small struct whose first word is the code
// address; forging one here is what lets a CompiledFunction be called like
// any other Go closure once GenerateCode has finished emitting it.
func makeTrampoline(ptr unsafe.Pointer) func() {
	var fn func()
	codePtr := ptr
	*(*unsafe.Pointer)(unsafe.Pointer(&fn)) = unsafe.Pointer(&codePtr)
	return fn
}
