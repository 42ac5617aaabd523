package main

import (
	"debug/elf"
	"testing"

	"github.com/metta-systems/nucleus/mm/addr"
)

func TestRoundUpGranule(t *testing.T) {
	cases := []struct{ in, want uint64 }{
		{0, 0},
		{1, addr.Granule},
		{addr.Granule, addr.Granule},
		{addr.Granule + 1, 2 * addr.Granule},
	}
	for _, c := range cases {
		if got := roundUpGranule(c.in); got != c.want {
			t.Errorf("roundUpGranule(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSegmentAccessPermissions(t *testing.T) {
	cases := []struct {
		flags elf.ProgFlag
		want  addr.AccessPermissions
		err   bool
	}{
		{elf.PF_R | elf.PF_W, addr.ReadWrite, false},
		{elf.PF_R | elf.PF_W | elf.PF_X, addr.ReadWrite, false},
		{elf.PF_R, addr.ReadOnly, false},
		{elf.PF_R | elf.PF_X, addr.ReadOnly, false},
		{elf.PF_W, 0, true},
		{0, 0, true},
	}
	for _, c := range cases {
		got, err := segmentAccessPermissions(c.flags)
		if c.err {
			if err == nil {
				t.Errorf("flags %s: expected error, got %v", c.flags, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("flags %s: unexpected error: %v", c.flags, err)
			continue
		}
		if got != c.want {
			t.Errorf("flags %s: got %v, want %v", c.flags, got, c.want)
		}
	}
}

func TestBuildMappingDescriptor(t *testing.T) {
	d, err := buildMappingDescriptor(".text", 0x8_0000, 0x20_0000, 0x1234, elf.PF_R|elf.PF_X)
	if err != nil {
		t.Fatalf("buildMappingDescriptor: %v", err)
	}

	wantSize := roundUpGranule(0x1234)
	if got := d.VirtRegion.SizeBytes(); got != wantSize {
		t.Errorf("virt region size = %#x, want %#x", got, wantSize)
	}
	if got := d.PhysRegion.SizeBytes(); got != wantSize {
		t.Errorf("phys region size = %#x, want %#x", got, wantSize)
	}
	if d.VirtRegion.Start().Uint64() != 0x8_0000 {
		t.Errorf("virt start = %#x, want %#x", d.VirtRegion.Start().Uint64(), 0x8_0000)
	}
	if d.PhysRegion.Start().Uint64() != 0x20_0000 {
		t.Errorf("phys start = %#x, want %#x", d.PhysRegion.Start().Uint64(), 0x20_0000)
	}
	if d.Attributes.AccPerms != addr.ReadOnly {
		t.Errorf("acc perms = %v, want ReadOnly", d.Attributes.AccPerms)
	}
	if d.Attributes.ExecuteNever {
		t.Error("executable segment marked ExecuteNever")
	}
	if d.Attributes.MemAttributes != addr.CacheableDRAM {
		t.Errorf("mem attributes = %v, want CacheableDRAM", d.Attributes.MemAttributes)
	}
}

func TestBuildMappingDescriptorNonExecutableSetsXN(t *testing.T) {
	d, err := buildMappingDescriptor(".data", 0x10_0000, 0x30_0000, 0x10, elf.PF_R|elf.PF_W)
	if err != nil {
		t.Fatalf("buildMappingDescriptor: %v", err)
	}
	if !d.Attributes.ExecuteNever {
		t.Error("non-executable segment not marked ExecuteNever")
	}
}

func TestBuildMappingDescriptorRejectsBadPermissions(t *testing.T) {
	if _, err := buildMappingDescriptor(".oops", 0x1_0000, 0x1_0000, 0x10, elf.PF_W); err == nil {
		t.Fatal("expected error for write-only segment")
	}
}
