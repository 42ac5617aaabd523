// Package mmio is the page-granular bump allocator that hands out
// virtual addresses for device register remapping, carved out of a
// single platform-reserved window. Drivers call into it once at
// post-init time and never again, so the allocator only ever moves
// forward.
package mmio

import (
	"errors"

	"github.com/metta-systems/nucleus/mm/addr"
	nsync "github.com/metta-systems/nucleus/sync"
)

// ErrExhausted is returned when the reserved window has no more pages
// to hand out.
var ErrExhausted = errors.New("mmio: virtual MMIO remap region exhausted")

// ErrZeroPages is returned when Alloc is asked for zero pages.
var ErrZeroPages = errors.New("mmio: Alloc requires num_pages > 0")

// Allocator bump-allocates pages out of a fixed virtual window,
// wrapped in an IRQ-masked lock like every other process-wide
// structure.
type Allocator struct {
	lock *nsync.IRQSafeNullLock[addr.MemoryRegion[addr.Virtual]]
	full addr.MemoryRegion[addr.Virtual]
}

// New initializes the allocator over the given reserved window. This
// corresponds to the kernel's post_enable_init() call, made once after
// the MMU is enabled and before any driver requests a mapping.
func New(window addr.MemoryRegion[addr.Virtual], mask nsync.IRQMask) *Allocator {
	return &Allocator{
		lock: nsync.NewIRQSafeNullLock(window, mask),
		full: window,
	}
}

// Region returns the full reserved MMIO remap window, used by callers
// that need to reject manual mappings landing inside it (property 6).
func (a *Allocator) Region() addr.MemoryRegion[addr.Virtual] {
	return a.full
}

// Alloc carves numPages pages off the front of the remaining window
// and returns them as a fresh region. The allocation never shrinks
// back: there is no free() — MMIO mappings live for the life of the
// kernel.
func (a *Allocator) Alloc(numPages uint64) (region addr.MemoryRegion[addr.Virtual], err error) {
	if numPages == 0 {
		return addr.MemoryRegion[addr.Virtual]{}, ErrZeroPages
	}

	a.lock.Lock(func(remaining *addr.MemoryRegion[addr.Virtual]) {
		if remaining.NumPages() < numPages {
			err = ErrExhausted
			return
		}
		region, err = remaining.TakeFirstNPages(numPages)
	})

	return region, err
}
