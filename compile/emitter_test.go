// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"io"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/MarkMcCaskey/shiba-jit/ir"
	"github.com/MarkMcCaskey/shiba-jit/regalloc"
)

// captureStdout runs fn with the process's real fd 1 redirected into a pipe:
// OpPrintConstant writes via a raw syscall, bypassing os.Stdout entirely, so
// nothing short of swapping the underlying file descriptor observes it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	saved, err := unix.Dup(1)
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	if err := unix.Dup2(int(w.Fd()), 1); err != nil {
		t.Fatalf("dup2: %v", err)
	}

	done := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		done <- string(data)
	}()

	fn()

	w.Close()
	unix.Dup2(saved, 1)
	unix.Close(saved)
	return <-done
}

func TestGenerateCodeHelloPrint(t *testing.T) {
	ctx := ir.NewContext()
	ci := ctx.AddConstant([]byte("Hi\n"))
	b := ctx.Block(ctx.Start())
	b.PrintConstant(ci)
	b.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	cf, err := GenerateCode(ctx)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	defer cf.Release()

	if got := captureStdout(t, cf.Fn); got != "Hi\n" {
		t.Fatalf("stdout = %q, want %q", got, "Hi\n")
	}
}

func TestGenerateCodeArithFold(t *testing.T) {
	ctx := ir.NewContext()
	b := ctx.Block(ctx.Start())
	r1 := b.Add(ir.ImmU32(2), ir.ImmU32(2))
	b.Subtract(r1, ir.ImmU32(4))
	b.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	cf, err := GenerateCode(ctx)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	defer cf.Release()

	if got := captureStdout(t, cf.Fn); got != "" {
		t.Fatalf("stdout = %q, want no output", got)
	}
}

func TestGenerateCodeCountedLoop(t *testing.T) {
	ctx := ir.NewContext()
	hello := ctx.AddConstant([]byte("Hello\n"))
	goodbye := ctx.AddConstant([]byte("Goodbye\n"))

	entry := ctx.Start()
	body := ctx.NewBasicBlock()
	exit := ctx.NewBasicBlock()

	eb := ctx.Block(entry)
	counter := eb.Alloca(ir.U32, 4)
	eb.Store(counter, ir.ImmU32(0))
	eb.Jump(body)

	bb := ctx.Block(body)
	bb.PrintConstant(hello)
	cur := bb.Load(counter)
	next := bb.Add(cur, ir.ImmU32(1))
	bb.Store(counter, next)
	remaining := bb.Subtract(ir.ImmU32(4), next)
	bb.JumpIfEqual(remaining, exit, body)

	xb := ctx.Block(exit)
	xb.PrintConstant(goodbye)
	xb.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	cf, err := GenerateCode(ctx)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	defer cf.Release()

	want := "Hello\nHello\nHello\nHello\nGoodbye\n"
	if got := captureStdout(t, cf.Fn); got != want {
		t.Fatalf("stdout = %q, want %q", got, want)
	}
}

func TestGenerateCodeRejectsNonU32Alloca(t *testing.T) {
	ctx := ir.NewContext()
	b := ctx.Block(ctx.Start())
	b.Alloca(ir.U64, 8)
	b.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	_, err := GenerateCode(ctx)
	if err == nil {
		t.Fatal("GenerateCode: expected an error for a non-U32/I32 alloca")
	}
	cgErr, ok := err.(*CodeGenError)
	if !ok {
		t.Fatalf("GenerateCode error = %T, want *CodeGenError", err)
	}
	if cgErr.Instruction != 0 {
		t.Fatalf("CodeGenError.Instruction = %d, want 0", cgErr.Instruction)
	}
}

func TestGenerateCodePropagatesOutOfRegisters(t *testing.T) {
	ctx := ir.NewContext()
	b := ctx.Block(ctx.Start())
	var ptrs []ir.Value
	for i := 0; i < 11; i++ {
		ptrs = append(ptrs, b.Alloca(ir.U32, 4))
	}
	for _, p := range ptrs {
		b.Store(p, ir.ImmU32(1))
	}
	b.Ret()

	if err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	_, err := GenerateCode(ctx)
	if err == nil {
		t.Fatal("GenerateCode: expected an out-of-registers error")
	}
	if _, ok := err.(*regalloc.OutOfRegistersError); !ok {
		t.Fatalf("GenerateCode error = %T, want *regalloc.OutOfRegistersError", err)
	}
}
