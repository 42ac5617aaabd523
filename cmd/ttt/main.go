// Command ttt ("translation tables tool") patches an already-compiled
// kernel ELF with the MMU mappings its own segments require: it reads
// the kernel's own boot-time placeholders for the table struct and its
// physical base address, computes the table image from the ELF's
// program headers, and writes both back into the file in place.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/metta-systems/nucleus/mm/table"
)

// physAddrSpaceEnd bounds the physical address space the generated
// table may map into: RPi4 SDRAM plus MMIO up through the GIC
// distributor and CPU interfaces, rounded up to the granule.
const physAddrSpaceEnd = 0xFF85_0000

func main() {
	log.SetFlags(0)

	kernelPath := flag.String("kernel", "nucleus.elf", "path of the kernel ELF file to patch")
	flag.Parse()

	if err := run(*kernelPath); err != nil {
		log.Fatalf("ttt: %v", err)
	}
}

func run(kernelPath string) error {
	kelf, err := openKernelELF(kernelPath)
	if err != nil {
		return err
	}
	defer kelf.Close()

	virtAddrSpaceSize, err := kelf.SymbolValue("__kernel_virt_addr_space_size")
	if err != nil {
		return err
	}
	virtAddrOfKernelTables, err := kelf.SymbolValue("KERNEL_TABLES")
	if err != nil {
		return err
	}
	virtAddrOfPhysBase, err := kelf.SymbolValue("PHYS_KERNEL_TABLES_BASE_ADDR")
	if err != nil {
		return err
	}

	descs, err := kelf.GenerateMappingDescriptors()
	if err != nil {
		return err
	}

	tbl := table.NewTable(virtAddrSpaceSize, physAddrSpaceEnd)
	tbl.Init()

	for i, d := range descs {
		fmt.Printf("  Generating %2d: %-24s virt %s phys %s\n",
			i, d.Name, d.VirtRegion.Start(), d.PhysRegion.Start())
		if err := tbl.MapAt(d.VirtRegion, d.PhysRegion, d.Attributes); err != nil {
			return fmt.Errorf("ttt: mapping segment %q: %w", d.Name, err)
		}
	}

	physAddrOfKernelTables, err := kelf.VirtToPhys(virtAddrOfKernelTables)
	if err != nil {
		return err
	}
	tbl.SetBase(physAddrOfKernelTables)

	image := tbl.ToBinary()
	tag := tableImageTag(image)

	kernelTablesOffset, err := kelf.VirtToFileOffset(virtAddrOfKernelTables)
	if err != nil {
		return err
	}

	if existing, err := readAt(kernelPath, int64(kernelTablesOffset), len(image)); err == nil && tableImageTag(existing) == tag {
		fmt.Printf("  Up to date   kernel tables already match at file offset %#x\n", kernelTablesOffset)
	} else {
		fmt.Printf("  Patching     kernel table struct (%d bytes) at file offset %#x\n", len(image), kernelTablesOffset)
		if err := patchAt(kernelPath, int64(kernelTablesOffset), image); err != nil {
			return err
		}
	}

	physBaseOffset, err := kelf.VirtToFileOffset(virtAddrOfPhysBase)
	if err != nil {
		return err
	}
	fmt.Printf("  Patching     kernel tables physical base address to %#x at file offset %#x\n",
		tbl.PhysBase(), physBaseOffset)
	if err := patchAt(kernelPath, int64(physBaseOffset), u64ToLEBytes(tbl.PhysBase())); err != nil {
		return err
	}

	os.Stdout.Sync()
	return nil
}
