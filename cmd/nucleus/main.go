// Raspberry Pi nucleus entry point.
// https://github.com/usbarmory/tamago
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && arm64

// Command nucleus is the kernel binary's package main: Hwinit0 (see
// boot/hwinit_arm64.go) has already run the table/MMU bring-up
// sequence by the time the Go runtime calls main, so this only wires
// up the board's concrete drivers, installs the exception vector
// table address, and constructs the capability table the syscall
// dispatcher will eventually index into.
package main

import (
	"fmt"

	"github.com/metta-systems/nucleus/arm64/exception"
	"github.com/metta-systems/nucleus/arm64/irq"
	pi "github.com/metta-systems/nucleus/board/raspberrypi"
	"github.com/metta-systems/nucleus/boot"
	"github.com/metta-systems/nucleus/caps"
)

// NumCapSlots sizes the root capability table; 1024 is a generous
// bring-up default.
const NumCapSlots = 1024

// vectorTableStart is populated by the linker script from the vector
// table assembly source; this binary supplies only the Go-side
// HandlingInit call and the Dispatch function each entry calls into,
// not the 2 KiB table body itself.
var vectorTableStart uint64

func printf(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

func main() {
	mask := irq.Mask{}

	board, err := pi.New(boot.Current, pi.PeripheralBaseRPi3, mask, printf)
	if err != nil {
		panic(fmt.Sprintf("nucleus: board bring-up: %v", err))
	}
	board.Start()

	if vectorTableStart != 0 {
		if err := exception.HandlingInit(vectorTableStart); err != nil {
			panic(fmt.Sprintf("nucleus: exception.HandlingInit: %v", err))
		}
	}

	root := caps.NewTable(NumCapSlots, mask)
	_ = root

	printf("nucleus: boot complete, %d capability slots available", NumCapSlots)

	for {
	}
}
