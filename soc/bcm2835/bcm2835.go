// BCM2835 SOC support
// https://github.com/f-secure-foundry/tamago
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bcm2835 provides support for the Broadcom BCM2835/BCM2711
// SoC family used by the Raspberry Pi boards: GPIO, the PL011 UART,
// the System Timer and the VideoCore mailbox.
package bcm2835

// PeripheralAddress returns the absolute MMIO address of a peripheral
// register given its offset from the peripheral base.
func PeripheralAddress(offset uint32) uint32 {
	return PeripheralBase + offset
}

// Init records the peripheral base address for the board being booted.
// It must happen before anything in this package computes a
// PeripheralAddress.
func Init(base uint32) {
	PeripheralBase = base
}
