// Raspberry Pi support for tamago/arm
// https://github.com/usbarmory/tamago
//
// Copyright (c) the pi package authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !linkprintk
// +build !linkprintk

package pi

import (
	_ "unsafe"

	"github.com/metta-systems/nucleus/soc/bcm2835"
)

// console is the UART the runtime.printk hook writes through. It is
// nil until New brings the board's PL011 driver up, so the earliest
// boot diagnostics (before the board exists) are silently dropped
// rather than dereferencing a half-initialized UART.
var console *bcm2835.PL011

//go:linkname printk runtime.printk
func printk(c byte) {
	if console == nil {
		return
	}
	console.WriteByte(c)
}
