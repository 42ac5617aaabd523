// Raspberry Pi support for tamago/arm64
// https://github.com/usbarmory/tamago
//
// Copyright (c) the pi package authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pi is the board bring-up layer: it takes the memory-management
// singletons boot.Run assembled and wires them to this platform's
// concrete drivers — each driver maps its MMIO window through the
// kernel's table/allocator/mapping-record triple, then registers with
// the driver registry, which hands IRQ numbers to the exception layer.
//
// An explicit Board value is used instead of a package-level singleton;
// nothing here needs global initialization-order tricks.
package pi

import (
	"fmt"

	"github.com/metta-systems/nucleus/arm64/exception"
	"github.com/metta-systems/nucleus/boot"
	"github.com/metta-systems/nucleus/drivers"
	"github.com/metta-systems/nucleus/mm/addr"
	"github.com/metta-systems/nucleus/mm/kernel"
	"github.com/metta-systems/nucleus/soc/bcm2835"
	nsync "github.com/metta-systems/nucleus/sync"
)

// PeripheralBase addresses, keyed by board model. RPi3 and earlier
// remap peripherals to 0x3F000000; RPi4 moves them to 0xFE000000.
const (
	PeripheralBaseRPi3 = 0x3F00_0000
	PeripheralBaseRPi4 = 0xFE00_0000
)

// uart0Offset locates the PL011 UART within the peripheral window.
const uart0Offset = 0x20_1000

// uart0IRQ is the platform IRQ number the driver registry resolves for
// the PL011's RegisterAndEnableIRQHandler call: the line the
// BCM2835/BCM2711 datasheets assign UART0 off the VC IRQ block.
// Unmasking it at the interrupt controller is left to a GIC driver.
const uart0IRQ = 57

// txPin/rxPin are UART0's fixed GPIO alternate-function-0 lines on
// every Raspberry Pi model this board targets.
const (
	txPin = 14
	rxPin = 15
)

// Board bundles the kernel's memory-management singletons with this
// platform's concrete drivers and the registry that brings them up.
type Board struct {
	Kernel  *boot.Kernel
	Drivers *drivers.Manager
	UART    *bcm2835.PL011

	logf func(string, ...interface{})
}

// irqManager adapts the driver registry to arm64/exception's
// IRQManager contract. Its HandlePendingIRQs is the hook the vector
// table's IRQ entry calls into; without a concrete interrupt
// controller driver there is nothing further to decode, so it only
// logs. The registration side (which IRQ number belongs to which
// driver) already happened in InitDrivers.
type irqManager struct {
	board *Board
}

// HandlePendingIRQs satisfies exception.IRQManager.
func (m *irqManager) HandlePendingIRQs(exception.IRQToken) {
	if m.board.logf != nil {
		m.board.logf("pi: HandlePendingIRQs: no interrupt controller driver, nothing decoded")
	}
}

// New constructs this board's drivers atop k, mapping the PL011's MMIO
// window through k's table/mapping/allocator triple (mm/kernel.MapMMIO)
// so repeat bring-up attempts de-duplicate against the mapping record
// rather than double-mapping the same physical window.
func New(k *boot.Kernel, peripheralBase uint32, mask nsync.IRQMask, logf func(string, ...interface{})) (*Board, error) {
	bcm2835.Init(peripheralBase)

	tx, err := bcm2835.NewGPIO(txPin)
	if err != nil {
		return nil, fmt.Errorf("pi: tx gpio: %w", err)
	}
	rx, err := bcm2835.NewGPIO(rxPin)
	if err != nil {
		return nil, fmt.Errorf("pi: rx gpio: %w", err)
	}

	uartPhysStart := addr.New[addr.Physical](uint64(peripheralBase) + uart0Offset)
	desc, err := addr.NewMMIODescriptor(uartPhysStart, 0x1000)
	if err != nil {
		return nil, fmt.Errorf("pi: uart0 mmio descriptor: %w", err)
	}

	uartVirt, err := kernel.MapMMIO(k.Tables, k.Mappings, k.MMIO, "brcm,bcm2835-pl011-uart", desc)
	if err != nil {
		return nil, fmt.Errorf("pi: map uart0: %w", err)
	}

	uartDev := bcm2835.NewPL011(uint32(uartVirt.Uint64()), tx, rx)

	reg := drivers.New(mask)
	reg.RegisterDriver(&drivers.Descriptor{Driver: uartDev, IRQ: uart0IRQ})

	b := &Board{Kernel: k, Drivers: reg, UART: uartDev, logf: logf}
	console = uartDev
	return b, nil
}

// Start initializes every registered driver in order and prints the
// resulting enumeration and mapping table.
func (b *Board) Start() {
	b.Drivers.InitDrivers()
	b.Drivers.Enumerate(b.logf)
	b.Kernel.Mappings.Print(b.logf)
}

// IRQManager returns the exception.IRQManager this board's vector
// table should dispatch IRQ-family exceptions to.
func (b *Board) IRQManager() exception.IRQManager {
	return &irqManager{board: b}
}
