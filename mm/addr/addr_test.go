package addr

import "testing"

func TestAlignRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, Granule - 1, Granule, Granule + 1, 3 * Granule}

	for _, v := range cases {
		a := New[Virtual](v)
		down := a.AlignDownPage()
		up := a.AlignUpPage()

		if down.Uint64() > a.Uint64() {
			t.Fatalf("AlignDownPage(%d) = %d, want <= %d", v, down.Uint64(), v)
		}
		if up.Uint64() < a.Uint64() {
			t.Fatalf("AlignUpPage(%d) = %d, want >= %d", v, up.Uint64(), v)
		}
		if up.Uint64()-down.Uint64() >= 2*Granule {
			t.Fatalf("span between align-down/up for %d spans more than one granule", v)
		}
	}
}

func TestCheckedOffsetRoundTrip(t *testing.T) {
	p, err := NewPage[Physical](4 * Granule)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	forward, ok := p.CheckedOffset(3)
	if !ok {
		t.Fatal("CheckedOffset(3) overflowed unexpectedly")
	}
	back, ok := forward.CheckedOffset(-3)
	if !ok {
		t.Fatal("CheckedOffset(-3) overflowed unexpectedly")
	}
	if back.Uint64() != p.Uint64() {
		t.Fatalf("round trip mismatch: got %d, want %d", back.Uint64(), p.Uint64())
	}
}

func TestRegionOverlap(t *testing.T) {
	a0, _ := NewPage[Virtual](0)
	a1, _ := NewPage[Virtual](2 * Granule)
	a2, _ := NewPage[Virtual](4 * Granule)

	a, _ := NewRegion(a0, a1)
	b, _ := NewRegion(a1, a2)

	if a.Overlaps(b) {
		t.Fatal("disjoint regions reported as overlapping")
	}
	if !a.Overlaps(a) {
		t.Fatal("non-empty region does not overlap itself")
	}
}

func TestTakeFirstNPages(t *testing.T) {
	start, _ := NewPage[Virtual](0)
	end, _ := NewPage[Virtual](5 * Granule)
	region, _ := NewRegion(start, end)

	prefix, err := region.TakeFirstNPages(2)
	if err != nil {
		t.Fatalf("TakeFirstNPages: %v", err)
	}
	if prefix.NumPages() != 2 {
		t.Fatalf("prefix has %d pages, want 2", prefix.NumPages())
	}
	if region.NumPages() != 3 {
		t.Fatalf("remainder has %d pages, want 3", region.NumPages())
	}

	if _, err := region.TakeFirstNPages(10); err != ErrEmptyAdvance {
		t.Fatalf("TakeFirstNPages(10) = %v, want ErrEmptyAdvance", err)
	}
}

func TestMMIODescriptorRounding(t *testing.T) {
	d, err := NewMMIODescriptor(New[Physical](0x1000), 4)
	if err != nil {
		t.Fatalf("NewMMIODescriptor: %v", err)
	}
	r, err := d.AsRegion()
	if err != nil {
		t.Fatalf("AsRegion: %v", err)
	}
	if r.NumPages() != 1 {
		t.Fatalf("got %d pages, want 1", r.NumPages())
	}
}

func TestZeroSizeMMIORejected(t *testing.T) {
	if _, err := NewMMIODescriptor(New[Physical](0), 0); err != ErrZeroSizeMMIO {
		t.Fatalf("got %v, want ErrZeroSizeMMIO", err)
	}
}
