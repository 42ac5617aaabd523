// Package boot implements the kernel's entry sequence: EL descent from
// whatever exception level the processor resets into, BSS zeroing,
// kernel-binary table construction, MMU enable, and MMIO VA allocator
// bring-up — the sequence that must run before any other kernel
// component touches memory. The assembly half (core parking, EL
// descent, BSS zeroing) runs from TamaGo's pre-runtime hwinit0 hook;
// this package is the Go half it lands in.
package boot

import (
	"fmt"

	"github.com/metta-systems/nucleus/mm/addr"
	"github.com/metta-systems/nucleus/mm/kernel"
	"github.com/metta-systems/nucleus/mm/mapping"
	"github.com/metta-systems/nucleus/mm/mmio"
	"github.com/metta-systems/nucleus/mm/mmu"
	"github.com/metta-systems/nucleus/mm/table"
)

// Exception levels as reported by CurrentEL.EL.
const (
	EL0 = 0
	EL1 = 1
	EL2 = 2
	EL3 = 3
)

// MMIORemapStart/MMIORemapEnd bound the last 64 KiB slot of the first
// 512 MiB of kernel virtual address space, reserved for device
// remapping.
const (
	MMIORemapStart = 0x1FFF_0000
	MMIORemapEnd   = 0x2000_0000
)

// Kernel bundles every memory-management singleton the boot sequence
// assembles, handed to the rest of the kernel once booting completes.
type Kernel struct {
	Tables   *table.Table
	Mappings *mapping.Table
	MMIO     *mmio.Allocator
	MMU      *mmu.Driver
}

// KernelAddressSpaceSize is the kernel's total virtual address space:
// 1 GiB, across two 512 MiB L2 tables.
const KernelAddressSpaceSize = 1 << 30

// mmioWindowRegion returns the reserved MMIO remap window as a
// MemoryRegion<Virtual>.
func mmioWindowRegion() (addr.MemoryRegion[addr.Virtual], error) {
	start, err := addr.NewPage[addr.Virtual](MMIORemapStart)
	if err != nil {
		return addr.MemoryRegion[addr.Virtual]{}, err
	}
	end, err := addr.NewPage[addr.Virtual](MMIORemapEnd)
	if err != nil {
		return addr.MemoryRegion[addr.Virtual]{}, err
	}
	return addr.NewRegion(start, end)
}

// Run executes the full table-construction, binary-mapping,
// MMU-enable and post-enable-init sequence and returns the resulting
// Kernel. logf receives the diagnostic lines S1 requires.
func Run(syms kernel.Symbols, physSpaceEnd uint64, logf func(string, ...interface{})) (*Kernel, error) {
	tbl := table.NewTable(KernelAddressSpaceSize, physSpaceEnd)
	tbl.Init()

	mappings := mapping.New(nil)

	mmioWindow, err := mmioWindowRegion()
	if err != nil {
		return nil, fmt.Errorf("boot: MMIO remap window: %w", err)
	}

	bin, err := kernel.MapBinary(tbl, mappings, mmioWindow, syms)
	if err != nil {
		return nil, fmt.Errorf("boot: kernel_map_binary: %w", err)
	}
	kernel.PrintLayout(logf, bin)

	physTablesBase := tbl.PhysBase()

	drv := &mmu.Driver{}
	if err := drv.Enable(physTablesBase); err != nil {
		return nil, fmt.Errorf("boot: enable_mmu_and_caching: %w", err)
	}
	drv.PrintFeatures(logf)

	alloc := mmio.New(mmioWindow, nil)

	return &Kernel{Tables: tbl, Mappings: mappings, MMIO: alloc, MMU: drv}, nil
}

// DispatchEL reports which of the three entry paths the boot sequence
// should take for the exception level the core reset into, matching
// _boot_cores's match over CurrentEL.
type ELAction int

const (
	ELActionFromEL3 ELAction = iota
	ELActionFromEL2
	ELActionDirectEL1
	ELActionParkCore
)

// DispatchEL maps a raw CurrentEL value (and whether this is core 0)
// to the action the entry stub must take. Only core 0 ever proceeds
// past reset; every other core parks forever, matching CORE_MASK's
// "core 0 only" gate.
func DispatchEL(currentEL uint64, isCore0 bool) ELAction {
	if !isCore0 {
		return ELActionParkCore
	}
	switch currentEL {
	case EL3:
		return ELActionFromEL3
	case EL2:
		return ELActionFromEL2
	case EL1:
		return ELActionDirectEL1
	default:
		return ELActionParkCore
	}
}
