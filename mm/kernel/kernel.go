// Package kernel maps the running kernel binary's own stack, code and
// data sections into the translation tables it is about to enable,
// and gives every other caller the single chokepoint
// (MapAt/MapMMIO) that enforces "never map manually into the MMIO
// remap window".
package kernel

import (
	"errors"
	"fmt"

	"github.com/metta-systems/nucleus/mm/addr"
	"github.com/metta-systems/nucleus/mm/mapping"
	"github.com/metta-systems/nucleus/mm/mmio"
	"github.com/metta-systems/nucleus/mm/table"
)

// ErrManualMMIOMap is returned by MapAt when the requested virtual
// region overlaps the MMIO remap window — that range is only ever
// populated by MapMMIO, which de-duplicates and allocates for itself.
var ErrManualMMIOMap = errors.New("Attempt to manually map into MMIO region")

// ErrZeroSize is returned when a linker-provided symbol pair reports a
// zero or non-granule-multiple size.
var ErrZeroSize = errors.New("kernel: linker symbol region size must be a positive multiple of the page granule")

// Symbols carries the linker-provided (start, size) pairs for the
// kernel binary's boot-core stack, code and data/bss sections. The
// kernel is identity-mapped at boot, so each pair's physical region
// equals its virtual one.
type Symbols struct {
	BootCoreStackStart, BootCoreStackSize uint64
	CodeStart, CodeSize                   uint64
	DataStart, DataSize                   uint64
}

// Binary holds the mapped regions derived from Symbols, used by
// PrintLayout and by tests that need to recover the exact ranges that
// were mapped.
type Binary struct {
	Stack addr.MemoryRegion[addr.Virtual]
	Code  addr.MemoryRegion[addr.Virtual]
	Data  addr.MemoryRegion[addr.Virtual]
}

func regionFromSymbols(start, size uint64) (addr.MemoryRegion[addr.Virtual], error) {
	if size == 0 || size%addr.Granule != 0 {
		return addr.MemoryRegion[addr.Virtual]{}, ErrZeroSize
	}
	startPage, err := addr.NewPage[addr.Virtual](start)
	if err != nil {
		return addr.MemoryRegion[addr.Virtual]{}, err
	}
	endPage, ok := startPage.CheckedOffset(int64(size / addr.Granule))
	if !ok {
		return addr.MemoryRegion[addr.Virtual]{}, fmt.Errorf("kernel: symbol region overflows address space")
	}
	return addr.NewRegion(startPage, endPage)
}

// identityPhys reinterprets a virtual region as the physical region of
// the same addresses — valid only because the binary is still
// identity-mapped at the point this runs, matching
// kernel_virt_to_phys_region.
func identityPhys(v addr.MemoryRegion[addr.Virtual]) addr.MemoryRegion[addr.Physical] {
	start, _ := addr.NewPage[addr.Physical](v.Start().Uint64())
	end, _ := addr.NewPage[addr.Physical](v.End().Uint64())
	r, _ := addr.NewRegion(start, end)
	return r
}

// MapAt maps virt to phys in tbl under attr, records the mapping, and
// rejects any attempt to land inside the MMIO remap window — the
// guarantee MapMMIO depends on to keep that window exclusively
// allocator-managed.
func MapAt(tbl *table.Table, mappings *mapping.Table, mmioWindow addr.MemoryRegion[addr.Virtual], name string, virt addr.MemoryRegion[addr.Virtual], phys addr.MemoryRegion[addr.Physical], attr addr.AttributeFields) error {
	if mmioWindow.Overlaps(virt) {
		return ErrManualMMIOMap
	}
	return mapAtUnchecked(tbl, mappings, name, virt, phys, attr)
}

func mapAtUnchecked(tbl *table.Table, mappings *mapping.Table, name string, virt addr.MemoryRegion[addr.Virtual], phys addr.MemoryRegion[addr.Physical], attr addr.AttributeFields) error {
	if err := tbl.MapAt(virt, phys, attr); err != nil {
		return err
	}
	mappings.Add(name, virt, phys, attr)
	return nil
}

// MapMMIO maps a driver's MMIO descriptor, reusing a prior driver's
// mapping (by returning its virtual start) when the physical
// descriptor was already mapped, and otherwise allocating fresh pages
// from alloc. Returns the virtual address corresponding to desc's
// exact (possibly sub-page) start, per kernel_map_mmio.
func MapMMIO(tbl *table.Table, mappings *mapping.Table, alloc *mmio.Allocator, name string, desc addr.MMIODescriptor) (addr.Address[addr.Virtual], error) {
	physRegion, err := desc.AsRegion()
	if err != nil {
		return addr.Address[addr.Virtual]{}, err
	}
	offset := desc.Start().PageOffset()

	if start, ok := mappings.FindAndInsertMMIODuplicate(desc, name); ok {
		return start.Add(offset), nil
	}

	virtRegion, err := alloc.Alloc(physRegion.NumPages())
	if err != nil {
		return addr.Address[addr.Virtual]{}, err
	}

	attr := addr.AttributeFields{MemAttributes: addr.Device, AccPerms: addr.ReadWrite, ExecuteNever: true}
	if err := mapAtUnchecked(tbl, mappings, name, virtRegion, physRegion, attr); err != nil {
		return addr.Address[addr.Virtual]{}, err
	}

	return virtRegion.Start().Address.Add(offset), nil
}

// MapBinary maps the running kernel's own stack, code and data
// sections (stack RW-XN, code RO-X, data/bss RW-XN, all cacheable
// DRAM) and returns the regions it mapped, for use by PrintLayout.
func MapBinary(tbl *table.Table, mappings *mapping.Table, mmioWindow addr.MemoryRegion[addr.Virtual], syms Symbols) (Binary, error) {
	stack, err := regionFromSymbols(syms.BootCoreStackStart, syms.BootCoreStackSize)
	if err != nil {
		return Binary{}, fmt.Errorf("kernel: boot-core stack region: %w", err)
	}
	code, err := regionFromSymbols(syms.CodeStart, syms.CodeSize)
	if err != nil {
		return Binary{}, fmt.Errorf("kernel: code region: %w", err)
	}
	data, err := regionFromSymbols(syms.DataStart, syms.DataSize)
	if err != nil {
		return Binary{}, fmt.Errorf("kernel: data region: %w", err)
	}

	if err := MapAt(tbl, mappings, mmioWindow, "Kernel boot-core stack", stack, identityPhys(stack),
		addr.AttributeFields{MemAttributes: addr.CacheableDRAM, AccPerms: addr.ReadWrite, ExecuteNever: true}); err != nil {
		return Binary{}, err
	}
	if err := MapAt(tbl, mappings, mmioWindow, "Kernel code and RO data", code, identityPhys(code),
		addr.AttributeFields{MemAttributes: addr.CacheableDRAM, AccPerms: addr.ReadOnly, ExecuteNever: false}); err != nil {
		return Binary{}, err
	}
	if err := MapAt(tbl, mappings, mmioWindow, "Kernel data and bss", data, identityPhys(data),
		addr.AttributeFields{MemAttributes: addr.CacheableDRAM, AccPerms: addr.ReadWrite, ExecuteNever: true}); err != nil {
		return Binary{}, err
	}

	return Binary{Stack: stack, Code: code, Data: data}, nil
}

// PrintLayout logs the mapped kernel binary layout, one line per
// section.
func PrintLayout(logf func(string, ...interface{}), bin Binary) {
	logf("[i] Kernel memory layout:")
	logf("      %s - %s | Boot-core stack", bin.Stack.Start(), bin.Stack.End())
	logf("      %s - %s | Code and RO data", bin.Code.Start(), bin.Code.End())
	logf("      %s - %s | Data and bss", bin.Data.Start(), bin.Data.End())
}
