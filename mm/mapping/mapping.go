// Package mapping records every region the kernel has successfully
// mapped, and de-duplicates repeat MMIO mappings of the same physical
// descriptor across drivers.
package mapping

import (
	"fmt"

	"github.com/metta-systems/nucleus/mm/addr"
	nsync "github.com/metta-systems/nucleus/sync"
)

// Record is one successfully mapped (virtual, physical) region pair,
// kept for diagnostics and MMIO de-duplication.
type Record struct {
	Name       string
	VirtRegion addr.MemoryRegion[addr.Virtual]
	PhysRegion addr.MemoryRegion[addr.Physical]
	Attr       addr.AttributeFields
}

// Table is the process-wide list of mapping records, protected by its
// own IRQ-masked lock like every other process-wide structure.
type Table struct {
	lock *nsync.IRQSafeNullLock[[]Record]
}

// New returns an empty mapping table.
func New(mask nsync.IRQMask) *Table {
	return &Table{lock: nsync.NewIRQSafeNullLock([]Record(nil), mask)}
}

// Add records a newly mapped region. Mirrors mapping_record::kernel_add:
// best-effort bookkeeping, never a hard error — callers log and
// continue rather than unwind a successful table-builder mapping over
// a bookkeeping failure.
func (t *Table) Add(name string, virt addr.MemoryRegion[addr.Virtual], phys addr.MemoryRegion[addr.Physical], attr addr.AttributeFields) {
	t.lock.Lock(func(records *[]Record) {
		*records = append(*records, Record{Name: name, VirtRegion: virt, PhysRegion: phys, Attr: attr})
	})
}

// FindAndInsertMMIODuplicate looks for an existing record whose
// physical region equals desc (rounded to pages). If found, it
// inserts a second record under name sharing the same virtual start —
// no new VA is allocated — and returns that start address. Otherwise
// it returns ok == false and the caller must allocate a fresh region.
func (t *Table) FindAndInsertMMIODuplicate(desc addr.MMIODescriptor, name string) (start addr.Address[addr.Virtual], ok bool) {
	physRegion, err := desc.AsRegion()
	if err != nil {
		return addr.Address[addr.Virtual]{}, false
	}

	t.lock.Lock(func(records *[]Record) {
		for _, r := range *records {
			if regionsEqual(r.PhysRegion, physRegion) {
				start = r.VirtRegion.Start().Address
				ok = true
				*records = append(*records, Record{
					Name:       name,
					VirtRegion: r.VirtRegion,
					PhysRegion: r.PhysRegion,
					Attr:       r.Attr,
				})
				return
			}
		}
	})

	return start, ok
}

func regionsEqual[T addr.Space](a, b addr.MemoryRegion[T]) bool {
	return a.Start().Uint64() == b.Start().Uint64() && a.End().Uint64() == b.End().Uint64()
}

// Print writes a human-readable dump of every recorded mapping.
func (t *Table) Print(w func(string, ...interface{})) {
	t.lock.Lock(func(records *[]Record) {
		w("      -------------------------------------------------------------------------------------------------------------------\n")
		w("      VA start              Size                  PA start              Attributes                   Name\n")
		w("      -------------------------------------------------------------------------------------------------------------------\n")
		for _, r := range *records {
			w("      %s  %#010x  %s  %s  %s\n",
				r.VirtRegion.Start(), r.VirtRegion.SizeBytes(), r.PhysRegion.Start(), attrString(r.Attr), r.Name)
		}
	})
}

func attrString(a addr.AttributeFields) string {
	mem := "?"
	switch a.MemAttributes {
	case addr.CacheableDRAM:
		mem = "C"
	case addr.NonCacheableDRAM:
		mem = "NC"
	case addr.Device:
		mem = "Dev"
	}
	acc := "RW"
	if a.AccPerms == addr.ReadOnly {
		acc = "RO"
	}
	xn := "PXN"
	if a.ExecuteNever {
		xn = "XN"
	}
	return fmt.Sprintf("%-3s %-2s %-3s", mem, acc, xn)
}
