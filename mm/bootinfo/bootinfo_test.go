package bootinfo

import "testing"

func TestInsertThenRemoveLeavesNoIntersection(t *testing.T) {
	tbl := New()
	full := Region{Start: 0, End: 1 << 20}
	if err := tbl.InsertRegion(full); err != nil {
		t.Fatalf("InsertRegion: %v", err)
	}

	carve := Region{Start: 0x1000, End: 0x2000}
	if err := tbl.RemoveRegion(carve); err != nil {
		t.Fatalf("RemoveRegion: %v", err)
	}

	if tbl.Overlaps(carve) {
		t.Fatal("table still overlaps the removed region")
	}
}

func TestRemoveRegionPreservesTotalFreeBytes(t *testing.T) {
	tbl := New()
	full := Region{Start: 0, End: 1 << 16}
	if err := tbl.InsertRegion(full); err != nil {
		t.Fatal(err)
	}
	before := tbl.TotalFreeBytes()

	middle := Region{Start: 0x4000, End: 0x8000}
	if err := tbl.RemoveRegion(middle); err != nil {
		t.Fatal(err)
	}
	if err := tbl.InsertRegion(middle); err != nil {
		t.Fatal(err)
	}

	after := tbl.TotalFreeBytes()
	if before != after {
		t.Fatalf("total free bytes changed: before=%d after=%d", before, after)
	}
}

func TestAllocRegionBestFit(t *testing.T) {
	tbl := New()
	// Two candidate regions: a tight 4 KiB region and a much larger one.
	if err := tbl.InsertRegion(Region{Start: 0x1000, End: 0x2000}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.InsertRegion(Region{Start: 0x10000, End: 0x20000}); err != nil {
		t.Fatal(err)
	}

	start, err := tbl.AllocRegion(12) // 4 KiB
	if err != nil {
		t.Fatalf("AllocRegion: %v", err)
	}
	if start != 0x1000 {
		t.Fatalf("AllocRegion chose %#x, want the tight-fit region at 0x1000", start)
	}
	if tbl.Overlaps(Region{Start: start, End: start + 0x1000}) {
		t.Fatal("allocated region still reported as free")
	}
}

func TestAllocRegionExhaustion(t *testing.T) {
	tbl := New()
	if _, err := tbl.AllocRegion(12); err != ErrNoFreeMemRegions {
		t.Fatalf("got %v, want ErrNoFreeMemRegions", err)
	}
}

func TestInsertRegionExhaustsSlots(t *testing.T) {
	tbl := New()
	for i := 0; i < NumRegions; i++ {
		r := Region{Start: uint64(i) * 0x1000, End: uint64(i)*0x1000 + 1}
		if err := tbl.InsertRegion(r); err != nil {
			t.Fatalf("unexpected error filling slot %d: %v", i, err)
		}
	}
	if err := tbl.InsertRegion(Region{Start: 1 << 30, End: 1<<30 + 1}); err != ErrNoFreeMemRegions {
		t.Fatalf("got %v, want ErrNoFreeMemRegions", err)
	}
}
