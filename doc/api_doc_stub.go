// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// stub for pkg.go.dev coverage
//go:build !tamago

// Package doc describes the runtime hooks this kernel links against
// under `GOOS=tamago GOARCH=arm64`, as supported by the TamaGo
// framework for bare metal Go, see [tamago].
//
// These hooks act as a "Rosetta Stone" for integration of a freestanding Go
// runtime within this board's environment. This package is documentation
// only: the real definitions live in the packages linked below, which
// use `//go:linkname` to satisfy the runtime's declarations.
//
// [tamago]: https://github.com/usbarmory/tamago
package doc

// Hwinit0, which must be linked as [runtime/goos.Hwinit0], runs the
// full EL descent/table/MMU bring-up sequence before the Go runtime
// starts.
//
// See [boot.Hwinit0].
//
// [boot.Hwinit0]: https://github.com/metta-systems/nucleus/blob/master/boot/hwinit_arm64.go
func Hwinit0()

// Printk, which must be linked as [runtime.printk], handles character
// printing to the board's console UART.
//
// See [pi.printk].
//
// [pi.printk]: https://github.com/metta-systems/nucleus/blob/master/board/raspberrypi/console.go
func Printk(c byte)

// Nanotime, which must be linked as [runtime.nanotime1], returns the
// system time in nanoseconds, derived here from the BCM2835 system
// timer's free-running counter.
//
// See [bcm2835.nanotime1].
//
// [bcm2835.nanotime1]: https://github.com/metta-systems/nucleus/blob/master/soc/bcm2835/hooks_arm64.go
func Nanotime() int64

// RamStart, which must be linked as [runtime.ramStart], defines the
// start address of the physical memory available to the runtime for
// allocation (including the code segment, which must be mapped
// within).
//
// See [bcm2835.ramStart].
//
// [bcm2835.ramStart]: https://github.com/metta-systems/nucleus/blob/master/soc/bcm2835/mem.go
var RamStart uint

// PeripheralBase, which must be linked as [runtime.PeripheralBase],
// holds the board-specific remapped peripheral base address this
// kernel's MMIO drivers compute their register addresses from.
//
// See [bcm2835.PeripheralBase].
//
// [bcm2835.PeripheralBase]: https://github.com/metta-systems/nucleus/blob/master/soc/bcm2835/hooks_arm64.go
var PeripheralBase uint32
