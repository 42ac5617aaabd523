// BCM2835 SOC support
// https://github.com/f-secure-foundry/tamago
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm64

package bcm2835

import (
	// using go:linkname
	_ "unsafe"
)

// PeripheralBase is the (remapped) peripheral base address.
//
// In Raspberry Pi, the VideoCore chip is responsible for
// bootstrapping.  In Pi2+, it remaps registers from their
// hardware 'bus' address to the 0x3f000000 'physical'
// address.  In Pi Zero, registers start at 0x20000000.
//
// This varies by model, hence variable so can be overridden
// at runtime.
//
//go:linkname PeripheralBase runtime.PeripheralBase
var PeripheralBase uint32

// nsPerSysTimerTick converts a SysTimerFreq (1MHz) tick count to
// nanoseconds.
const nsPerSysTimerTick = 1_000_000_000 / SysTimerFreq

//go:linkname nanotime1 runtime.nanotime1
func nanotime1() int64 {
	return read_systimer() * nsPerSysTimerTick
}
