// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma provides primitives for direct memory allocation and
// alignment, used in bare metal device driver operation to avoid
// passing Go pointers for DMA purposes.
//
// The kernel carves fixed physical windows out of SDRAM (such as the
// gap below the text segment used for VideoCore mailbox buffers) and
// hands each one to a Region, whose buffers then have stable,
// GC-invisible addresses suitable for sharing with hardware.
//
// This package is only meant to be used with `GOOS=tamago` as
// supported by the TamaGo framework for bare metal Go, see
// https://github.com/usbarmory/tamago.
package dma

import (
	"container/list"
	"errors"
	"sync"
	"unsafe"
)

// Region represents a memory window allocated for DMA purposes.
type Region struct {
	sync.Mutex

	start uint32
	size  uint32

	freeBlocks *list.List
	usedBlocks map[uint32]*block
}

var dma *Region

// Init initializes the global DMA region with the argument start
// address and size, the application must guarantee that the passed
// memory range is never used by the Go runtime (defining
// runtime.ramStart and runtime.ramSize accordingly).
func Init(start uint32, size int) (err error) {
	dma, err = NewRegion(start, size)
	return
}

// Default returns the global DMA region instance.
func Default() *Region {
	return dma
}

// NewRegion initializes a DMA region over [start, start+size), with
// the whole window initially free.
func NewRegion(start uint32, size int) (*Region, error) {
	if size <= 0 {
		return nil, errors.New("invalid DMA region size")
	}

	r := &Region{
		start:      start,
		size:       uint32(size),
		freeBlocks: list.New(),
		usedBlocks: make(map[uint32]*block),
	}

	// initialize a single block to fit all available memory
	r.freeBlocks.PushFront(&block{
		addr: start,
		size: uint32(size),
	})

	return r, nil
}

// Start returns the DMA region start address.
func (dma *Region) Start() uint32 {
	return dma.start
}

// End returns the DMA region end address.
func (dma *Region) End() uint32 {
	return dma.start + dma.size
}

// Size returns the DMA region size.
func (dma *Region) Size() uint32 {
	return dma.size
}

// Reserve allocates a slice of bytes for DMA purposes, by placing its
// data within the DMA region, with optional alignment. It returns the
// slice along with its data allocation address. The buffer can be
// freed up with Release().
//
// Reserving buffers with Reserve() allows callers to build hardware
// message buffers in place, avoiding a memory copy per exchange.
// Reserved buffers cause Alloc() and Read() to return without any
// allocation or memory copy.
//
// Great care must be taken on reserved buffers as:
//   - buf contents are uninitialized (unlike when using Alloc())
//   - buf slices remain in reserved space but only the original buf
//     can be subject of Release()
//
// The optional alignment must be a power of 2 and word alignment is
// always enforced (0 == 4).
func (dma *Region) Reserve(size int, align int) (addr uint32, buf []byte) {
	if size == 0 {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b := dma.alloc(uint32(size), uint32(align))
	b.res = true

	dma.usedBlocks[b.addr] = b

	return b.addr, b.mem(0, size)
}

// Reserved returns whether a slice of bytes data is allocated within
// the DMA buffer region, it is used to determine whether the passed
// buffer has been previously allocated by this package with Reserve().
func (dma *Region) Reserved(buf []byte) (res bool, addr uint32) {
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	res = ptr >= dma.start && ptr+uint32(len(buf)) <= dma.start+dma.size

	return res, ptr
}

// Alloc reserves a memory region for DMA purposes, copying over a
// buffer and returning its allocation address, with optional
// alignment. The region can be freed up with Free().
//
// If the argument is a buffer previously created with Reserve(), then
// its address is returned without any re-allocation.
//
// The optional alignment must be a power of 2 and word alignment is
// always enforced (0 == 4).
func (dma *Region) Alloc(buf []byte, align int) (addr uint32) {
	size := len(buf)

	if size == 0 {
		return 0
	}

	if res, addr := dma.Reserved(buf); res {
		return addr
	}

	dma.Lock()
	defer dma.Unlock()

	b := dma.alloc(uint32(size), uint32(align))
	b.write(0, buf)

	dma.usedBlocks[b.addr] = b

	return b.addr
}

// Read reads exactly len(buf) bytes from a memory region address into
// a buffer, the region must have been previously allocated with
// Alloc().
//
// The offset and buffer size are used to retrieve a slice of the
// memory region, a panic occurs if these parameters are not compatible
// with the initial allocation for the address.
//
// If the argument is a buffer previously created with Reserve(), then
// the function returns without modifying it, as it is assumed for the
// buffer to be already updated.
func (dma *Region) Read(addr uint32, off int, buf []byte) {
	size := len(buf)

	if addr == 0 || size == 0 {
		return
	}

	if res, _ := dma.Reserved(buf); res {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b, ok := dma.usedBlocks[addr]

	if !ok {
		panic("read of unallocated pointer")
	}

	if uint32(off+size) > b.size {
		panic("invalid read parameters")
	}

	b.read(uint32(off), buf)
}

// Write writes buffer contents to a memory region address, the region
// must have been previously allocated with Alloc().
//
// An offset can be passed to write a slice of the memory region, a
// panic occurs if the offset is not compatible with the initial
// allocation for the address.
func (dma *Region) Write(addr uint32, off int, buf []byte) {
	size := len(buf)

	if addr == 0 || size == 0 {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b, ok := dma.usedBlocks[addr]

	if !ok {
		return
	}

	if uint32(off+size) > b.size {
		panic("invalid write parameters")
	}

	b.write(uint32(off), buf)
}

// Free frees the memory region stored at the passed address, the
// region must have been previously allocated with Alloc().
func (dma *Region) Free(addr uint32) {
	dma.freeBlock(addr, false)
}

// Release frees the memory region stored at the passed address, the
// region must have been previously allocated with Reserve().
func (dma *Region) Release(addr uint32) {
	dma.freeBlock(addr, true)
}

func (dma *Region) defrag() {
	var prevBlock *block

	// find contiguous free blocks and combine them
	for e := dma.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if prevBlock != nil {
			if prevBlock.addr+prevBlock.size == b.addr {
				prevBlock.size += b.size
				defer dma.freeBlocks.Remove(e)
				continue
			}
		}

		prevBlock = b
	}
}

func (dma *Region) alloc(size uint32, align uint32) *block {
	var e *list.Element
	var freeBlock *block
	var pad uint32

	if align == 0 {
		// force word alignment
		align = 4
	}

	// find suitable block
	for e = dma.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		// pad to required alignment
		pad = -b.addr & (align - 1)

		if b.size >= size+pad {
			freeBlock = b
			break
		}
	}

	if freeBlock == nil {
		panic("out of memory")
	}

	size += pad

	// allocate block from free linked list
	defer dma.freeBlocks.Remove(e)

	// adjust block to desired size, add new block for remainder
	if r := freeBlock.size - size; r != 0 {
		newBlockAfter := &block{
			addr: freeBlock.addr + size,
			size: r,
		}

		freeBlock.size = size
		dma.freeBlocks.InsertAfter(newBlockAfter, e)
	}

	if pad != 0 {
		// claim padding space
		newBlockBefore := &block{
			addr: freeBlock.addr,
			size: pad,
		}

		freeBlock.addr += pad
		freeBlock.size -= pad
		dma.freeBlocks.InsertBefore(newBlockBefore, e)
	}

	freeBlock.res = false

	return freeBlock
}

func (dma *Region) free(usedBlock *block) {
	for e := dma.freeBlocks.Front(); e != nil; e = e.Next() {
		b := e.Value.(*block)

		if b.addr > usedBlock.addr {
			dma.freeBlocks.InsertBefore(usedBlock, e)
			dma.defrag()
			return
		}
	}

	dma.freeBlocks.PushBack(usedBlock)
}

func (dma *Region) freeBlock(addr uint32, res bool) {
	if addr == 0 {
		return
	}

	dma.Lock()
	defer dma.Unlock()

	b, ok := dma.usedBlocks[addr]

	if !ok {
		return
	}

	if b.res != res {
		return
	}

	dma.free(b)
	delete(dma.usedBlocks, addr)
}
