package main

import (
	"debug/elf"
	"fmt"

	"github.com/metta-systems/nucleus/mm/addr"
)

// MappingDescriptor is one program segment translated into the
// virt/phys region pair and attribute bits table.Table.MapAt needs.
type MappingDescriptor struct {
	Name       string
	VirtRegion addr.MemoryRegion[addr.Virtual]
	PhysRegion addr.MemoryRegion[addr.Physical]
	Attributes addr.AttributeFields
}

// roundUpGranule rounds size up to the next multiple of addr.Granule.
func roundUpGranule(size uint64) uint64 {
	return (size + addr.Granule - 1) &^ (addr.Granule - 1)
}

// segmentAccessPermissions derives a page's access permissions from an
// ELF program header's flags, rejecting a segment without read
// permission (write-only, or no permissions at all).
func segmentAccessPermissions(flags elf.ProgFlag) (addr.AccessPermissions, error) {
	switch {
	case flags&elf.PF_R != 0 && flags&elf.PF_W != 0:
		return addr.ReadWrite, nil
	case flags&elf.PF_R != 0:
		return addr.ReadOnly, nil
	default:
		return 0, fmt.Errorf("ttt: invalid segment access permissions %s", flags)
	}
}

// buildMappingDescriptor turns one allocated program segment into a
// MappingDescriptor. vaddr/paddr/memsz/flags come straight off the
// segment's program header; name is a caller-supplied label (the
// sections it covers) used only for log output.
func buildMappingDescriptor(name string, vaddr, paddr, memsz uint64, flags elf.ProgFlag) (MappingDescriptor, error) {
	size := roundUpGranule(memsz)

	vs, err := addr.NewPage[addr.Virtual](vaddr)
	if err != nil {
		return MappingDescriptor{}, fmt.Errorf("ttt: segment %q virtual start: %w", name, err)
	}
	ve, err := addr.NewPage[addr.Virtual](vaddr + size)
	if err != nil {
		return MappingDescriptor{}, fmt.Errorf("ttt: segment %q virtual end: %w", name, err)
	}
	virtRegion, err := addr.NewRegion(vs, ve)
	if err != nil {
		return MappingDescriptor{}, fmt.Errorf("ttt: segment %q virtual region: %w", name, err)
	}

	ps, err := addr.NewPage[addr.Physical](paddr)
	if err != nil {
		return MappingDescriptor{}, fmt.Errorf("ttt: segment %q physical start: %w", name, err)
	}
	pe, err := addr.NewPage[addr.Physical](paddr + size)
	if err != nil {
		return MappingDescriptor{}, fmt.Errorf("ttt: segment %q physical end: %w", name, err)
	}
	physRegion, err := addr.NewRegion(ps, pe)
	if err != nil {
		return MappingDescriptor{}, fmt.Errorf("ttt: segment %q physical region: %w", name, err)
	}

	accPerms, err := segmentAccessPermissions(flags)
	if err != nil {
		return MappingDescriptor{}, err
	}

	return MappingDescriptor{
		Name:       name,
		VirtRegion: virtRegion,
		PhysRegion: physRegion,
		Attributes: addr.AttributeFields{
			MemAttributes: addr.CacheableDRAM,
			AccPerms:      accPerms,
			ExecuteNever:  flags&elf.PF_X == 0,
		},
	}, nil
}
