// Package bootinfo is the kernel's early best-fit physical memory
// region allocator, used before the general-purpose capability
// allocator (Untyped::Retype) exists to carve out tables, boot
// structures and capability objects. A fixed NumRegions-slot array
// of free regions is operated on directly, with no tree or free-list
// structure behind it.
package bootinfo

import (
	"errors"

	"github.com/metta-systems/nucleus/mm/addr"
)

// NumRegions is the fixed capacity of the region table.
const NumRegions = 256

// ErrNoFreeMemRegions is returned when an insert finds no empty slot,
// or when alloc cannot satisfy a request from any region.
var ErrNoFreeMemRegions = errors.New("bootinfo: no free memory region slots")

// Region is one free physical memory span, inclusive start, exclusive
// end. A zero-value Region (start == end) represents an empty slot.
type Region struct {
	Start, End uint64
}

// Size returns the region's byte size.
func (r Region) Size() uint64 { return r.End - r.Start }

// IsEmpty reports whether the slot holds no region.
func (r Region) IsEmpty() bool { return r.Start == r.End }

// Intersects reports whether r and other share any point; endpoints
// count, so adjacent regions intersect and can be merged.
func (r Region) Intersects(other Region) bool {
	return r.End >= other.Start && other.End >= r.Start
}

// Table is the fixed-capacity free-region list.
type Table struct {
	regions [NumRegions]Region
}

// New returns an empty region table.
func New() *Table {
	return &Table{}
}

func alignUp(v, align uint64) uint64   { return (v + align - 1) &^ (align - 1) }
func alignDown(v, align uint64) uint64 { return v &^ (align - 1) }

// InsertRegion adds a free region into the first empty slot. A
// zero-sized region is a no-op success.
func (t *Table) InsertRegion(reg Region) error {
	if reg.IsEmpty() {
		return nil
	}
	if reg.Start > reg.End {
		panic("bootinfo: InsertRegion region end precedes start")
	}
	for i := range t.regions {
		if t.regions[i].IsEmpty() {
			t.regions[i] = reg
			return nil
		}
	}
	return ErrNoFreeMemRegions
}

// RemoveRegion subtracts reg from every region it intersects —
// cutting the head, cutting the tail, splitting in two, or subsuming
// the whole slot — leaving no remaining region intersecting reg.
func (t *Table) RemoveRegion(reg Region) error {
	for i := range t.regions {
		cur := t.regions[i]
		if !reg.Intersects(cur) {
			continue
		}

		switch {
		case reg.Start <= cur.Start && reg.End < cur.End:
			// cuts off the head of cur
			t.regions[i].Start = reg.End

		case reg.Start > cur.Start && reg.End < cur.End:
			// splits cur into two remainders
			first := Region{Start: cur.Start, End: reg.Start}
			second := Region{Start: reg.End, End: cur.End}
			t.regions[i] = Region{}

			var small, large Region
			if first.Size() < second.Size() {
				small, large = first, second
			} else {
				small, large = second, first
			}
			if err := t.InsertRegion(large); err != nil {
				return err
			}
			if err := t.InsertRegion(small); err != nil {
				return err
			}

		case reg.Start > cur.Start && reg.End >= cur.End:
			// cuts off the tail of cur
			t.regions[i].End = reg.Start

		case reg.Start <= cur.Start && reg.End >= cur.End:
			// subsumes cur entirely
			t.regions[i] = Region{}
		}
	}
	return nil
}

// AllocRegion finds a best-fit free region for a 2^sizeBits-aligned
// allocation and returns its start address. Among all placements that
// fit, it prefers the one leaving the smallest "small" remainder,
// breaking ties on the smallest "large" remainder — minimizing wasted
// fragmentation rather than simply taking the first fit.
func (t *Table) AllocRegion(sizeBits uint) (uint64, error) {
	size := uint64(1) << sizeBits

	var (
		chosenIdx                = -1
		chosen, remSmall, remLarge Region
	)

	for i, cur := range t.regions {
		if cur.IsEmpty() {
			continue
		}

		var candidate Region
		if alignUp(cur.Start, size)-cur.Start < cur.End-alignDown(cur.End, size) {
			candidate.Start = alignUp(cur.Start, size)
			candidate.End = candidate.Start + size
		} else {
			candidate.End = alignDown(cur.End, size)
			candidate.Start = candidate.End - size
		}

		if !(candidate.End > candidate.Start && candidate.Start >= cur.Start && candidate.End <= cur.End) {
			continue
		}

		var newSmall, newLarge Region
		if candidate.Start-cur.Start < cur.End-candidate.End {
			newSmall = Region{Start: cur.Start, End: candidate.Start}
			newLarge = Region{Start: candidate.End, End: cur.End}
		} else {
			newLarge = Region{Start: cur.Start, End: candidate.Start}
			newSmall = Region{Start: candidate.End, End: cur.End}
		}

		if chosenIdx == -1 ||
			newSmall.Size() < remSmall.Size() ||
			(newSmall.Size() == remSmall.Size() && newLarge.Size() < remLarge.Size()) {
			chosen = candidate
			remSmall = newSmall
			remLarge = newLarge
			chosenIdx = i
		}
	}

	if chosenIdx == -1 {
		return 0, ErrNoFreeMemRegions
	}

	t.regions[chosenIdx] = Region{}
	if err := t.InsertRegion(remLarge); err != nil {
		return 0, err
	}
	// A lost small remainder only wastes a few bytes of fragmentation;
	// the larger remainder above is the one that must never be dropped.
	_ = t.InsertRegion(remSmall)

	return chosen.Start, nil
}

// TotalFreeBytes sums every non-empty region's size, used by tests to
// verify that insert/remove round-trips preserve total free memory.
func (t *Table) TotalFreeBytes() uint64 {
	var total uint64
	for _, r := range t.regions {
		total += r.Size()
	}
	return total
}

// Overlaps reports whether any region in the table intersects
// [start, end) — used by tests to verify property 9's post-condition.
func (t *Table) Overlaps(reg Region) bool {
	for _, r := range t.regions {
		if r.IsEmpty() {
			continue
		}
		if reg.Start < r.End && r.Start < reg.End {
			return true
		}
	}
	return false
}

// FromMMIODescriptor converts an MMIODescriptor into a Region covering
// exactly its byte range (not rounded to pages), for reservation
// bookkeeping.
func FromMMIODescriptor(d addr.MMIODescriptor) Region {
	return Region{Start: d.Start().Uint64(), End: d.End().Uint64()}
}
