// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"unsafe"
)

type block struct {
	// allocation address
	addr uint32
	// buffer size
	size uint32
	// distinguish regular (`Alloc`/`Free`) and reserved
	// (`Reserve`/`Release`) blocks.
	res bool
}

func (b *block) mem(off uint32, size int) []byte {
	var ptr unsafe.Pointer

	ptr = unsafe.Add(ptr, b.addr+off)

	return unsafe.Slice((*byte)(ptr), size)
}

func (b *block) read(off uint32, buf []byte) {
	copy(buf, b.mem(off, len(buf)))
}

func (b *block) write(off uint32, buf []byte) {
	copy(b.mem(off, len(buf)), buf)
}
