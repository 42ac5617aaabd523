//go:build tamago && arm64

package boot

import (
	"fmt"
	_ "unsafe"

	"github.com/metta-systems/nucleus/mm/kernel"
)

// Linker-provided symbol pairs for the three kernel binary sections
// this package maps; populated by the linker script the way
// runtime.ramStart/runtime.ramSize are in TamaGo's own hwinit0 hooks.
var (
	bootCoreStackStart, bootCoreStackSize uint64
	codeStart, codeSize                   uint64
	dataStart, dataSize                   uint64
	physSpaceEnd                          uint64
)

// currentEL reads CurrentEL.EL.
//
// defined in boot_arm64.s
func currentEL() uint64

// coreID reads MPIDR_EL1 & 0x3.
//
// defined in boot_arm64.s
func coreID() uint64

// Hwinit0 runs the full boot sequence before the Go runtime starts,
// mirroring TamaGo's arm64.Init hwinit0 hook.
//
//go:linkname Hwinit0 runtime/goos.Hwinit0
func Hwinit0() {
	switch DispatchEL(currentEL(), coreID() == 0) {
	case ELActionParkCore:
		for {
		}
	case ELActionFromEL3, ELActionFromEL2, ELActionDirectEL1:
		// Fall through: by the time Hwinit0 runs, the runtime's own
		// reset stub has already completed the EL3/EL2 -> EL1 descent
		// via shared_setup_and_enter_{pre,post}; only EL1 init remains.
	}

	syms := kernel.Symbols{
		BootCoreStackStart: bootCoreStackStart,
		BootCoreStackSize:  bootCoreStackSize,
		CodeStart:          codeStart,
		CodeSize:           codeSize,
		DataStart:          dataStart,
		DataSize:           dataSize,
	}

	k, err := Run(syms, physSpaceEnd, printk)
	if err != nil {
		panic(fmt.Sprintf("boot: %v", err))
	}
	Current = k
}

// Current is the Kernel the most recent Hwinit0 call produced, picked
// up by package main once the Go runtime starts so board bring-up
// (mapping further MMIO windows, registering drivers) reuses the same
// translation tables, mapping record and MMIO allocator boot built
// rather than standing up a second copy.
var Current *Kernel

func printk(format string, args ...interface{}) {
	print(fmt.Sprintf(format, args...) + "\n")
}
