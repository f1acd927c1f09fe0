// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compile

import (
	"fmt"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

const (
	// minAllocSize is the size of a freshly mapped code block, large enough
	// that most compiled functions share one mapping.
	minAllocSize = 64 * 1024
	// allocationAlignment is the granularity every AllocateExec call rounds
	// up to, so that machine code bodies never straddle an alignment meant
	// for the assembler's own padding assumptions.
	allocationAlignment = 128
)

// codeBlock is one mmap'd region backing zero or more compiled functions.
type codeBlock struct {
	mem       mmap.MMap
	consumed  uint32
	remaining uint32
}

// MMapAllocator hands out W^X memory for compiled function bodies: code is
// written while a block is RW, then the whole block is flipped to RX before
// the pointer is handed back. Allocation bump-allocates within the current
// block and opens a new one (sized to fit, if larger than minAllocSize) on
// overflow.
type MMapAllocator struct {
	blocks []*codeBlock
	last   *codeBlock
}

// AllocateExec copies code into executable memory and returns a pointer to
// the copy. The returned pointer remains valid until Close.
func (a *MMapAllocator) AllocateExec(code []byte) (unsafe.Pointer, error) {
	size := alignUp(uint32(len(code)), allocationAlignment)
	if a.last == nil || a.last.remaining < size {
		blockSize := minAllocSize
		if int(size) > blockSize {
			blockSize = int(size)
		}
		blk, err := newCodeBlock(blockSize)
		if err != nil {
			return nil, err
		}
		a.blocks = append(a.blocks, blk)
		a.last = blk
	}

	blk := a.last
	if err := unix.Mprotect(blk.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, fmt.Errorf("compile: mprotect rw: %w", err)
	}
	copy(blk.mem[blk.consumed:], code)
	ptr := unsafe.Pointer(&blk.mem[blk.consumed])
	blk.consumed += size
	blk.remaining -= size
	if err := unix.Mprotect(blk.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return nil, fmt.Errorf("compile: mprotect rx: %w", err)
	}
	return ptr, nil
}

// PatchUint64 overwrites 8 bytes at byte offset rel within the most recently
// allocated block with value, toggling the block back to RW and then RX
// around the write exactly as AllocateExec does. It exists so a reference to
// a label placed earlier in the same AllocateExec call (whose final runtime
// address is only known once the block has a real address) can be resolved
// after the fact, instead of before.
func (a *MMapAllocator) PatchUint64(rel int, value uint64) error {
	blk := a.last
	if blk == nil {
		return fmt.Errorf("compile: PatchUint64 called with no allocated block")
	}
	if err := unix.Mprotect(blk.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("compile: mprotect rw: %w", err)
	}
	*(*uint64)(unsafe.Pointer(&blk.mem[rel])) = value
	if err := unix.Mprotect(blk.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("compile: mprotect rx: %w", err)
	}
	return nil
}

// Close unmaps every block this allocator has handed out. Any function
// pointers derived from prior AllocateExec calls become invalid.
func (a *MMapAllocator) Close() error {
	var firstErr error
	for _, b := range a.blocks {
		if err := b.mem.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.blocks = nil
	a.last = nil
	return firstErr
}

func newCodeBlock(size int) (*codeBlock, error) {
	m, err := mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("compile: mmap: %w", err)
	}
	return &codeBlock{mem: m, remaining: uint32(size)}, nil
}

func alignUp(n, a uint32) uint32 {
	return (n + a - 1) / a * a
}
