package caps

import (
	"testing"

	"github.com/metta-systems/nucleus/mm/addr"
)

func newTestTable(n int) *Table {
	return NewTable(n, nil)
}

func mustSet(t *testing.T, tbl *Table, i int, value Capability) SlotAddr {
	t.Helper()
	a := SlotAddrForIndex(i)
	if err := tbl.Set(a, Entry{Cap: value}); err != nil {
		t.Fatalf("Set(%d): %v", i, err)
	}
	return a
}

func TestCopyMdbRoundTrip(t *testing.T) {
	tbl := newTestTable(4)
	src := mustSet(t, tbl, 0, Capability{Kind: KindEndpoint, Rights: RightRead | RightWrite})
	dst := SlotAddrForIndex(1)

	if err := tbl.Copy(src, dst, RightRead|RightWrite); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	dstEntry, err := tbl.Get(dst)
	if err != nil {
		t.Fatalf("Get(dst): %v", err)
	}
	if dstEntry.Mdb.Prev != src {
		t.Fatalf("dst.prev = %v, want src %v", dstEntry.Mdb.Prev, src)
	}

	srcEntry, err := tbl.Get(src)
	if err != nil {
		t.Fatalf("Get(src): %v", err)
	}
	if srcEntry.Mdb.Next != dst {
		t.Fatalf("src.next = %v, want dst %v", srcEntry.Mdb.Next, dst)
	}
}

func TestDeleteRestoresNeighbourLinks(t *testing.T) {
	tbl := newTestTable(4)
	src := mustSet(t, tbl, 0, Capability{Kind: KindEndpoint})
	dst := SlotAddrForIndex(1)
	if err := tbl.Copy(src, dst, RightRead); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	third := SlotAddrForIndex(2)
	if err := tbl.Copy(dst, third, RightRead); err != nil {
		t.Fatalf("Copy second: %v", err)
	}

	// dst now sits between src and third; deleting dst should splice
	// src.next -> third and third.prev -> src, exactly what was dst.next
	// before delete.
	dstEntryBefore, _ := tbl.Get(dst)
	wantNext := dstEntryBefore.Mdb.Next
	if wantNext != third {
		t.Fatalf("setup: dst.next = %v, want third %v", wantNext, third)
	}

	if err := tbl.Delete(dst); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	srcEntry, _ := tbl.Get(src)
	if srcEntry.Mdb.Next != third {
		t.Fatalf("src.next after delete = %v, want third %v", srcEntry.Mdb.Next, third)
	}

	thirdEntry, _ := tbl.Get(third)
	if thirdEntry.Mdb.Prev != src {
		t.Fatalf("third.prev after delete = %v, want src %v", thirdEntry.Mdb.Prev, src)
	}
}

func TestMintFirstBadged(t *testing.T) {
	tbl := newTestTable(4)
	src := mustSet(t, tbl, 0, Capability{Kind: KindEndpoint, Rights: RightRead})
	dst := SlotAddrForIndex(1)

	if err := tbl.Mint(src, dst, RightRead, 0xBEEF); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	dstEntry, _ := tbl.Get(dst)
	if dstEntry.Cap.Badge != 0xBEEF {
		t.Fatalf("dst.Cap.Badge = %#x, want 0xbeef", dstEntry.Cap.Badge)
	}
	if !dstEntry.Mdb.FirstBadged {
		t.Fatalf("dst.Mdb.FirstBadged = false, want true (src had no badge)")
	}

	// Minting again from the now-badged dst should not set FirstBadged.
	grandchild := SlotAddrForIndex(2)
	if err := tbl.Mint(dst, grandchild, RightRead, 0xF00D); err != nil {
		t.Fatalf("Mint grandchild: %v", err)
	}
	gcEntry, _ := tbl.Get(grandchild)
	if gcEntry.Mdb.FirstBadged {
		t.Fatalf("grandchild.Mdb.FirstBadged = true, want false (src already badged)")
	}
}

func TestMoveClearsSource(t *testing.T) {
	tbl := newTestTable(4)
	src := mustSet(t, tbl, 0, Capability{Kind: KindTCB, Object: 0x1000})
	dst := SlotAddrForIndex(1)

	if err := tbl.Move(src, dst); err != nil {
		t.Fatalf("Move: %v", err)
	}

	srcEntry, _ := tbl.Get(src)
	if !srcEntry.Cap.IsNull() {
		t.Fatalf("src.Cap after move = %+v, want Null", srcEntry.Cap)
	}

	dstEntry, _ := tbl.Get(dst)
	if dstEntry.Cap.Object != 0x1000 {
		t.Fatalf("dst.Cap.Object = %#x, want 0x1000", dstEntry.Cap.Object)
	}
}

func TestMutateRejectsUnbadgeableKind(t *testing.T) {
	tbl := newTestTable(4)
	src := mustSet(t, tbl, 0, Capability{Kind: KindUntyped})
	dst := SlotAddrForIndex(1)

	if err := tbl.Mutate(src, dst, 7); err != ErrAuthorityExceeded {
		t.Fatalf("got %v, want ErrAuthorityExceeded", err)
	}
}

func TestMutatePreservesFirstBadged(t *testing.T) {
	tbl := newTestTable(4)
	root := mustSet(t, tbl, 0, Capability{Kind: KindEndpoint})
	minted := SlotAddrForIndex(1)
	if err := tbl.Mint(root, minted, RightRead, 1); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	mutated := SlotAddrForIndex(2)
	if err := tbl.Mutate(minted, mutated, 2); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	entry, _ := tbl.Get(mutated)
	if !entry.Mdb.FirstBadged {
		t.Fatalf("Mutate cleared FirstBadged, want it preserved")
	}
	if entry.Cap.Badge != 2 {
		t.Fatalf("Cap.Badge = %d, want 2", entry.Cap.Badge)
	}
}

func TestRotateThreeWay(t *testing.T) {
	tbl := newTestTable(4)
	src := mustSet(t, tbl, 0, Capability{Kind: KindEndpoint, Object: 0xAAAA})
	pivot := mustSet(t, tbl, 1, Capability{Kind: KindEndpoint, Object: 0xBBBB})
	dst := SlotAddrForIndex(2)

	if err := tbl.Rotate(src, dst, 10, pivot, 20); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	dstEntry, _ := tbl.Get(dst)
	if dstEntry.Cap.Object != 0xBBBB || dstEntry.Cap.Badge != 10 {
		t.Fatalf("dst = %+v, want pivot's object badged 10", dstEntry.Cap)
	}

	pivotEntry, _ := tbl.Get(pivot)
	if pivotEntry.Cap.Object != 0xAAAA || pivotEntry.Cap.Badge != 20 {
		t.Fatalf("pivot = %+v, want src's object badged 20", pivotEntry.Cap)
	}

	srcEntry, _ := tbl.Get(src)
	if !srcEntry.Cap.IsNull() {
		t.Fatalf("src after rotate = %+v, want Null", srcEntry.Cap)
	}
}

func TestRevokeDeletesSubtreeOnly(t *testing.T) {
	tbl := newTestTable(6)
	root := mustSet(t, tbl, 0, Capability{Kind: KindEndpoint})
	child := SlotAddrForIndex(1)
	grandchild := SlotAddrForIndex(2)
	sibling := SlotAddrForIndex(3)

	if err := tbl.Copy(root, child, RightRead); err != nil {
		t.Fatalf("Copy child: %v", err)
	}
	if err := tbl.Copy(child, grandchild, RightRead); err != nil {
		t.Fatalf("Copy grandchild: %v", err)
	}
	if err := tbl.Copy(grandchild, sibling, RightRead); err != nil {
		t.Fatalf("Copy sibling: %v", err)
	}

	if err := tbl.Revoke(root); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	for _, a := range []SlotAddr{child, grandchild, sibling} {
		e, _ := tbl.Get(a)
		if !e.Cap.IsNull() {
			t.Fatalf("slot %v still populated after Revoke(root): %+v", a, e.Cap)
		}
	}

	rootEntry, err := tbl.Get(root)
	if err != nil {
		t.Fatalf("Get(root): %v", err)
	}
	if rootEntry.Cap.IsNull() {
		t.Fatalf("Revoke deleted root itself, should only delete descendants")
	}
	if rootEntry.Mdb.HasNext() {
		t.Fatalf("root.Mdb still links to a successor after Revoke: %+v", rootEntry.Mdb)
	}
}

func TestAtRejectsNullAndMisalignedAndOutOfRange(t *testing.T) {
	tbl := newTestTable(2)

	if err := tbl.Copy(SlotAddr{}, SlotAddrForIndex(0), RightRead); err != ErrNullSlot {
		t.Fatalf("got %v, want ErrNullSlot", err)
	}

	misaligned := addr.New[addr.Physical](3)
	if err := tbl.Copy(misaligned, SlotAddrForIndex(0), RightRead); err != ErrNotAligned {
		t.Fatalf("got %v, want ErrNotAligned", err)
	}

	outOfRange := SlotAddrForIndex(100)
	if err := tbl.Copy(outOfRange, SlotAddrForIndex(0), RightRead); err != ErrOutOfRange {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
}
