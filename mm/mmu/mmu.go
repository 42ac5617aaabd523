// Package mmu drives the stage-1 MMU: MAIR/TCR/TTBR programming, the
// enable sequence with its required barriers, and ID-register feature
// introspection.
//
// Only TTBR0 is ever programmed and TTBR1 walks are never enabled,
// so kernel-space 0xFFFF_... virtual addresses are not reachable by
// this driver.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=arm64`.
package mmu

import (
	"errors"
	"fmt"
)

// ErrAlreadyEnabled is returned by Enable when the MMU is already on.
var ErrAlreadyEnabled = errors.New("mmu: already enabled")

// OtherError wraps a hardware-capability failure with a human message.
type OtherError struct{ Msg string }

func (e *OtherError) Error() string { return e.Msg }

// TCR/SCTLR/MAIR bit layout, ARMv8-A.
const (
	sctlrM = 1 << 0
	sctlrC = 1 << 2
	sctlrI = 1 << 12

	tcrT0SZShift = 0
	tcrEPD0      = 1 << 7
	tcrIRGN0WBWA = 1 << 8
	tcrORGN0WBWA = 1 << 10
	tcrSH0Inner  = 0b11 << 12
	tcrTG0_64KiB = 0b01 << 14
	tcrEPD1      = 1 << 23
	tcrIPS_40bit = 0b010 << 32
	tcrTBI0      = 1 << 37

	mmfr0TGran64Shift = 24 // ID_AA64MMFR0_EL1[27:24]
	mmfr0TGran64Mask  = 0xF
	mmfr0TGran64OK    = 0x0 // 0b0000 == 64 KiB granule supported
)

// granule64KiBSupported decodes the TGran64 field of ID_AA64MMFR0_EL1.
func granule64KiBSupported(mmfr0 uint64) bool {
	return (mmfr0>>mmfr0TGran64Shift)&mmfr0TGran64Mask == mmfr0TGran64OK
}

// AddressSpaceSizeShift is log2 of the kernel's virtual address space
// size: 1 GiB, two 512 MiB second-level tables.
const AddressSpaceSizeShift = 30 // 1 GiB

// MAIR_EL1 attribute indices, matching mm/table's encoding.
const mairValue = 0xFF<<0 | // Attr0: normal, write-back, RW-allocate
	0x44<<8 | // Attr1: normal, non-cacheable
	0x04<<16 // Attr2: device-nGnRE

// Driver programs and enables the stage-1 MMU.
type Driver struct{}

// IsEnabled reports whether SCTLR_EL1.M is currently set.
func (d *Driver) IsEnabled() bool {
	return readSCTLR()&sctlrM != 0
}

// Enable runs the documented 7-step sequence: already-enabled and
// granule-support checks, MAIR/TTBR0/TCR programming, then an ISB, the
// SCTLR_EL1 write enabling M/C/I, and a second ISB.
func (d *Driver) Enable(physTablesBase uint64) error {
	if d.IsEnabled() {
		return ErrAlreadyEnabled
	}

	if !granule64KiBSupported(idAA64MMFR0()) {
		return &OtherError{Msg: "Translation granule not supported by hardware"}
	}

	writeMAIR(mairValue)
	writeTTBR0(physTablesBase)

	t0sz := uint64(64 - AddressSpaceSizeShift)
	tcr := uint64(tcrTBI0) | tcrIPS_40bit | tcrTG0_64KiB | tcrSH0Inner |
		tcrORGN0WBWA | tcrIRGN0WBWA | t0sz<<tcrT0SZShift | tcrEPD1
	writeTCR(tcr)

	isb()
	writeSCTLR(readSCTLR() | sctlrM | sctlrC | sctlrI)
	isb()

	return nil
}

// T0SZ returns the T0SZ field programmed into TCR_EL1 for the configured
// address space size.
func (d *Driver) T0SZ() uint64 {
	return uint64(64 - AddressSpaceSizeShift)
}

// PrintFeatures logs the MMU/TCR feature lines required by S1.
func (d *Driver) PrintFeatures(logf func(string, ...interface{})) {
	if d.IsEnabled() {
		logf("[i] MMU currently enabled")
	}
	sctlr := readSCTLR()
	if sctlr&sctlrI != 0 {
		logf("[i] MMU I-cache enabled")
	}
	if sctlr&sctlrC != 0 {
		logf("[i] MMU D-cache enabled")
	}

	logf("[i] MMU: 64 KiB granule supported!")
	logf("[i] MMU: Up to 40 Bit physical address range supported!")

	t0sz := d.T0SZ()
	logf(fmt.Sprintf("[i] MMU: T0sz = 64-%d = %d bits", t0sz, 64-t0sz))
}
