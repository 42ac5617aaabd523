package mmio

import (
	"testing"

	"github.com/metta-systems/nucleus/mm/addr"
)

func newTestAllocator(t *testing.T, numPages uint64) *Allocator {
	t.Helper()
	start, err := addr.NewPage[addr.Virtual](0x1FFF_0000)
	if err != nil {
		t.Fatal(err)
	}
	end, ok := start.CheckedOffset(int64(numPages))
	if !ok {
		t.Fatal("CheckedOffset failed")
	}
	window, err := addr.NewRegion(start, end)
	if err != nil {
		t.Fatal(err)
	}
	return New(window, nil)
}

func TestAllocCarvesSequentialPrefixes(t *testing.T) {
	a := newTestAllocator(t, 4)

	r1, err := a.Alloc(1)
	if err != nil {
		t.Fatalf("Alloc(1): %v", err)
	}
	r2, err := a.Alloc(2)
	if err != nil {
		t.Fatalf("Alloc(2): %v", err)
	}

	if r1.End() != r2.Start() {
		t.Fatalf("allocations are not adjacent: r1 end %v, r2 start %v", r1.End(), r2.Start())
	}
	if r2.NumPages() != 2 {
		t.Fatalf("r2 has %d pages, want 2", r2.NumPages())
	}
}

func TestAllocExhaustsWindow(t *testing.T) {
	a := newTestAllocator(t, 2)

	if _, err := a.Alloc(2); err != nil {
		t.Fatalf("Alloc(2): %v", err)
	}
	if _, err := a.Alloc(1); err != ErrExhausted {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
}

func TestAllocZeroPagesRejected(t *testing.T) {
	a := newTestAllocator(t, 4)
	if _, err := a.Alloc(0); err != ErrZeroPages {
		t.Fatalf("got %v, want ErrZeroPages", err)
	}
}

func TestRegionReflectsFullWindow(t *testing.T) {
	a := newTestAllocator(t, 4)
	if a.Region().NumPages() != 4 {
		t.Fatalf("Region().NumPages() = %d, want 4", a.Region().NumPages())
	}
}
