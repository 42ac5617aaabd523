// Package table implements the two-level, 64 KiB-granule stage-1
// translation table used to back TTBR0_EL1.
//
// Layout and bitfields follow the ARMv8-A architecture reference for
// 64 KiB granule, 2-level tables: an L2 "table descriptor" selects one
// of N_L2 512 MiB blocks, each backed by an L3 table of 8192 64 KiB
// "page descriptors". Only TTBR0 is ever programmed from these tables;
// TTBR1 walks stay disabled, so 0xFFFF... kernel-half virtual
// addresses are not reachable.
package table

import (
	"encoding/binary"
	"errors"

	"github.com/metta-systems/nucleus/mm/addr"
)

// L3EntriesPerTable is the number of 64 KiB pages covered by one 512
// MiB L2 block: 512 MiB / 64 KiB.
const L3EntriesPerTable = (512 << 20) / addr.Granule

// Granule512MiB is the span covered by a single L2 entry.
const Granule512MiB = 512 << 20

// descriptor bit layout, ARMv8-A stage-1, 64 KiB granule.
const (
	descValid    = 1 << 0
	descTypeMask = 1 << 1 // 0 = block (unused at L2 here), 1 = table/page

	// L3 page descriptor fields.
	l3AttrIndxShift = 2
	l3APShift       = 6
	l3APRW_EL1      = 0b00 << l3APShift
	l3APRO_EL1      = 0b10 << l3APShift
	l3SHShift       = 8
	l3SHOuter       = 0b10 << l3SHShift
	l3SHInner       = 0b11 << l3SHShift
	l3AF            = 1 << 10
	l3PXN           = 1 << 53
	l3UXN           = 1 << 54
	outputAddrMask  = 0x0000_ffff_ffff_0000 // bits [47:16]
)

// MAIR attribute indices programmed by mm/mmu; kept here so mapping
// code and MMU setup agree on the numbering.
const (
	AttrNormalCacheable    = 0
	AttrNormalNonCacheable = 1
	AttrDeviceNGnRE        = 2
)

// TableDescriptor is an L2 entry: either invalid, or a table descriptor
// pointing at the base of an L3 table.
type TableDescriptor uint64

// PageDescriptor is an L3 entry: either invalid, or a valid 64 KiB page
// mapping with its attribute bits.
type PageDescriptor uint64

// IsValid reports whether the L3 entry currently maps a page.
func (d PageDescriptor) IsValid() bool {
	return uint64(d)&descValid != 0
}

func newTableDescriptor(l3Base uint64) TableDescriptor {
	return TableDescriptor(l3Base&outputAddrMask | descTypeMask | descValid)
}

func newPageDescriptor(outputAddr uint64, attr addr.AttributeFields) PageDescriptor {
	var v uint64 = outputAddr&outputAddrMask | descTypeMask | descValid | l3AF

	switch attr.MemAttributes {
	case addr.CacheableDRAM:
		v |= l3SHInner | AttrNormalCacheable<<l3AttrIndxShift
	case addr.NonCacheableDRAM:
		v |= l3SHInner | AttrNormalNonCacheable<<l3AttrIndxShift
	case addr.Device:
		v |= l3SHOuter | AttrDeviceNGnRE<<l3AttrIndxShift
	}

	if attr.AccPerms == addr.ReadOnly {
		v |= l3APRO_EL1
	} else {
		v |= l3APRW_EL1
	}

	// No user-executable pages exist yet: UXN is always set.
	v |= l3UXN
	if attr.ExecuteNever {
		v |= l3PXN
	}

	return PageDescriptor(v)
}

var (
	// ErrOutOfBounds reports a virtual page outside the table's L2 range.
	ErrOutOfBounds = errors.New("table: virtual page is out of bounds of translation table")
	// ErrAlreadyMapped reports a second map_at over an already-valid page.
	ErrAlreadyMapped = errors.New("table: virtual page is already mapped")
	// ErrSizeMismatch reports map_at called with differently-sized regions.
	ErrSizeMismatch = errors.New("table: tried to map memory regions with different sizes")
	// ErrOutsidePhysicalSpace reports a physical region beyond the
	// supported physical address space.
	ErrOutsidePhysicalSpace = errors.New("table: tried to map outside of physical address space")
)

// Table is the fixed, 64 KiB-aligned two-level translation table.
//
// It is meant to be constructed once as a zero-initialized static in
// BSS (NewTable's slices should be backed by such statics on real
// hardware); Init then fills the L2 level and the structure is mapped
// and never freed.
type Table struct {
	lvl3        [][L3EntriesPerTable]PageDescriptor
	lvl2        []TableDescriptor
	initialized bool

	physSpaceEnd uint64

	// base is the physical link address of the table image (the start
	// of its first L3 block). Zero until SetBase is called.
	base uint64
}

// NewTable allocates a table large enough to cover addressSpaceSize
// bytes (must be a multiple of Granule512MiB), able to map up to
// physSpaceEnd bytes of physical memory.
func NewTable(addressSpaceSize, physSpaceEnd uint64) *Table {
	nL2 := int(addressSpaceSize / Granule512MiB)
	return &Table{
		lvl3:         make([][L3EntriesPerTable]PageDescriptor, nL2),
		lvl2:         make([]TableDescriptor, nL2),
		physSpaceEnd: physSpaceEnd,
	}
}

// NumL2 returns the number of 512 MiB L2 slots in the table.
func (t *Table) NumL2() int { return len(t.lvl2) }

// PhysBase returns the physical address of the table's L2 array — the
// value the boot sequence programs into TTBR0_EL1. On real hardware
// this is the linker-assigned address of the static backing this
// Table; see SetBase and l3Base's placeholder addressing note.
func (t *Table) PhysBase() uint64 {
	return t.base + uint64(len(t.lvl3))*L3EntriesPerTable*8
}

// SetBase records phys as the physical link address of the table
// image's first L3 block. Real hardware never calls this: the image
// lives wherever the linker script placed the static backing it. The
// host-side ttt tool calls it once it has chosen a candidate kernel
// table address, so PhysBase, l3Base and ToBinary all agree with where
// the image will actually live once patched into the kernel ELF.
func (t *Table) SetBase(phys uint64) {
	t.base = phys
}

// ToBinary serializes the table image in link order: every L3 block in
// index order (L3EntriesPerTable little-endian PageDescriptors each),
// followed by the L2 array of TableDescriptors — the same layout
// l3Base and PhysBase assume the linker produces. This is the byte
// image the host-side ttt tool writes into the kernel ELF.
func (t *Table) ToBinary() []byte {
	l3Size := L3EntriesPerTable * 8
	buf := make([]byte, len(t.lvl3)*l3Size+len(t.lvl2)*8)
	off := 0
	for _, block := range t.lvl3 {
		for _, d := range block {
			binary.LittleEndian.PutUint64(buf[off:], uint64(d))
			off += 8
		}
	}
	for _, d := range t.lvl2 {
		binary.LittleEndian.PutUint64(buf[off:], uint64(d))
		off += 8
	}
	return buf
}

// Initialized reports whether Init has run.
func (t *Table) Initialized() bool { return t.initialized }

// L2Descriptor returns the raw L2 entry at index i, for diagnostics and
// tests.
func (t *Table) L2Descriptor(i int) TableDescriptor { return t.lvl2[i] }

// l3Base returns the physical base address of L3 table i, relative to
// base (zero until SetBase is called). Each L3 table is treated as
// living at index*L3EntriesPerTable*8 bytes past base, matching the
// layout the linker script lays the arrays out in (lvl3 blocks first,
// contiguous, 8 bytes per PageDescriptor, L2 array trailing — see
// PhysBase).
func (t *Table) l3Base(i int) uint64 {
	return t.base + uint64(i)*L3EntriesPerTable*8
}

// Init idempotently fills every L2 slot with a table descriptor
// pointing at the corresponding L3 block. L3 slots remain invalid until
// MapAt populates them.
func (t *Table) Init() {
	if t.initialized {
		return
	}
	for i := range t.lvl2 {
		t.lvl2[i] = newTableDescriptor(t.l3Base(i))
	}
	t.initialized = true
}

func indices(v uint64) (l2, l3 int) {
	l2 = int(v >> 29)
	l3 = int((v >> 16) & 0x1FFF)
	return
}

// MapAt maps virt to phys page-by-page with the given attributes.
//
// Preconditions: the table is initialized, the regions hold the same
// page count, and phys.End() does not exceed the table's configured
// physical address space end. Mapping is rejected, page by page, if
// any target L3 slot is already valid.
func (t *Table) MapAt(virt addr.MemoryRegion[addr.Virtual], phys addr.MemoryRegion[addr.Physical], attr addr.AttributeFields) error {
	if !t.initialized {
		panic("table: MapAt called before Init")
	}
	if virt.NumPages() != phys.NumPages() {
		return ErrSizeMismatch
	}
	if phys.End().Uint64() > t.physSpaceEnd {
		return ErrOutsidePhysicalSpace
	}

	virtPages := make([]addr.PageAddress[addr.Virtual], 0, virt.NumPages())
	virt.Pages(func(p addr.PageAddress[addr.Virtual]) bool {
		virtPages = append(virtPages, p)
		return true
	})
	physPages := make([]addr.PageAddress[addr.Physical], 0, phys.NumPages())
	phys.Pages(func(p addr.PageAddress[addr.Physical]) bool {
		physPages = append(physPages, p)
		return true
	})

	for i, vp := range virtPages {
		l2i, l3i := indices(vp.Uint64())
		if l2i >= len(t.lvl2) {
			return ErrOutOfBounds
		}
		if t.lvl3[l2i][l3i].IsValid() {
			return ErrAlreadyMapped
		}
		t.lvl3[l2i][l3i] = newPageDescriptor(physPages[i].Uint64(), attr)
	}

	return nil
}

// Walk returns the physical page mapped at a virtual page, and whether
// it is currently valid. Used by tests to verify MapAt's effect.
func (t *Table) Walk(v addr.PageAddress[addr.Virtual]) (phys uint64, attr addr.AttributeFields, ok bool) {
	l2i, l3i := indices(v.Uint64())
	if l2i >= len(t.lvl2) {
		return 0, addr.AttributeFields{}, false
	}
	d := t.lvl3[l2i][l3i]
	if !d.IsValid() {
		return 0, addr.AttributeFields{}, false
	}

	raw := uint64(d)
	phys = raw & outputAddrMask

	switch (raw >> l3AttrIndxShift) & 0x7 {
	case AttrNormalCacheable:
		attr.MemAttributes = addr.CacheableDRAM
	case AttrNormalNonCacheable:
		attr.MemAttributes = addr.NonCacheableDRAM
	case AttrDeviceNGnRE:
		attr.MemAttributes = addr.Device
	}
	if (raw>>l3APShift)&0b11 == 0b10 {
		attr.AccPerms = addr.ReadOnly
	} else {
		attr.AccPerms = addr.ReadWrite
	}
	attr.ExecuteNever = raw&l3PXN != 0

	return phys, attr, true
}
