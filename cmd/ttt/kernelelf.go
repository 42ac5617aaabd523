package main

import (
	"debug/elf"
	"fmt"
	"sort"
)

// kernelELF wraps an opened kernel ELF file with the handful of
// lookups ttt needs: symbol values, segment lookup, and
// virt-to-phys/file-offset translation, all in terms of debug/elf's
// own types.
type kernelELF struct {
	file *elf.File
}

func openKernelELF(path string) (*kernelELF, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ttt: opening %s: %w", path, err)
	}
	return &kernelELF{file: f}, nil
}

func (k *kernelELF) Close() error { return k.file.Close() }

// SymbolValue returns the value of the named symbol.
func (k *kernelELF) SymbolValue(name string) (uint64, error) {
	syms, err := k.file.Symbols()
	if err != nil {
		return 0, fmt.Errorf("ttt: reading symbol table: %w", err)
	}
	for _, s := range syms {
		if s.Name == name {
			return s.Value, nil
		}
	}
	return 0, fmt.Errorf("ttt: symbol %s not found", name)
}

// segmentContainingVirtAddr returns the PT_LOAD program header whose
// virtual address range contains virtAddr.
func (k *kernelELF) segmentContainingVirtAddr(virtAddr uint64) (*elf.Prog, error) {
	for _, p := range k.file.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if virtAddr >= p.Vaddr && virtAddr < p.Vaddr+p.Memsz {
			return p, nil
		}
	}
	return nil, fmt.Errorf("ttt: virtual address %#x not in any segment", virtAddr)
}

// VirtToPhys translates a virtual address to the physical address the
// kernel's own segment layout maps it to.
func (k *kernelELF) VirtToPhys(virtAddr uint64) (uint64, error) {
	seg, err := k.segmentContainingVirtAddr(virtAddr)
	if err != nil {
		return 0, err
	}
	return seg.Paddr + (virtAddr - seg.Vaddr), nil
}

// VirtToFileOffset translates a virtual address to its byte offset in
// the ELF file.
func (k *kernelELF) VirtToFileOffset(virtAddr uint64) (uint64, error) {
	seg, err := k.segmentContainingVirtAddr(virtAddr)
	if err != nil {
		return 0, err
	}
	return seg.Off + (virtAddr - seg.Vaddr), nil
}

// sectionsInSegment names the allocated sections a PT_LOAD segment
// covers, in address order, for the "Generating" log line.
func (k *kernelELF) sectionsInSegment(seg *elf.Prog) string {
	type named struct {
		addr uint64
		name string
	}
	var hits []named
	for _, s := range k.file.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		if s.Addr >= seg.Vaddr && s.Addr < seg.Vaddr+seg.Memsz {
			hits = append(hits, named{s.Addr, s.Name})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].addr < hits[j].addr })

	out := ""
	for i, h := range hits {
		if i > 0 {
			out += " "
		}
		out += h.name
	}
	return out
}

// GenerateMappingDescriptors builds one MappingDescriptor per allocated
// (PT_LOAD) program segment.
func (k *kernelELF) GenerateMappingDescriptors() ([]MappingDescriptor, error) {
	var descs []MappingDescriptor
	for _, p := range k.file.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		name := k.sectionsInSegment(p)
		d, err := buildMappingDescriptor(name, p.Vaddr, p.Paddr, p.Memsz, p.Flags)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}
