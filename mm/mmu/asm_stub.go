//go:build !(tamago && arm64)

package mmu

// Host-side stand-ins for the system-register accessors in
// asm_arm64.s, so that the pure decoding logic in mmu_test.go can be
// type-checked and run outside GOOS=tamago. These are never linked
// into a kernel image.

var hostSCTLR uint64
var hostMMFR0 uint64

func readSCTLR() uint64    { return hostSCTLR }
func writeSCTLR(v uint64)  { hostSCTLR = v }
func writeMAIR(v uint64)   {}
func writeTTBR0(v uint64)  {}
func writeTCR(v uint64)    {}
func idAA64MMFR0() uint64  { return hostMMFR0 }
func isb()                 {}
