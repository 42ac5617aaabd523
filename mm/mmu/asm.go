//go:build tamago && arm64

package mmu

// readSCTLR reads SCTLR_EL1.
//
// defined in asm_arm64.s
func readSCTLR() uint64

// writeSCTLR writes SCTLR_EL1.
//
// defined in asm_arm64.s
func writeSCTLR(v uint64)

// writeMAIR writes MAIR_EL1.
//
// defined in asm_arm64.s
func writeMAIR(v uint64)

// writeTTBR0 writes TTBR0_EL1.
//
// defined in asm_arm64.s
func writeTTBR0(v uint64)

// writeTCR writes TCR_EL1.
//
// defined in asm_arm64.s
func writeTCR(v uint64)

// idAA64MMFR0 reads ID_AA64MMFR0_EL1.
//
// defined in asm_arm64.s
func idAA64MMFR0() uint64

// isb issues an instruction-synchronization barrier.
//
// defined in asm_arm64.s
func isb()
