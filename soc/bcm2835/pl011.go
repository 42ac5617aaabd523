// BCM2835 PL011 UART support
// https://github.com/usbarmory/tamago
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.
//
// Register layout and prepare() sequence follow the ARM PL011
// Technical Reference Manual and the mailbox-driven clock negotiation
// used by Raspberry Pi firmware: disable, flush, negotiate the UART
// clock over the VideoCore mailbox, compute baud rate divisors, then
// bring RX/TX back up with interrupts enabled.

package bcm2835

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/metta-systems/nucleus/internal/reg"
)

// PL011 register offsets, relative to the UART's own 4KiB MMIO window.
const (
	uartDataOff  = 0x00
	uartFlagOff  = 0x18
	uartIBRDOff  = 0x24
	uartFBRDOff  = 0x28
	uartLCRHOff  = 0x2c
	uartCROff    = 0x30
	uartIFLSOff  = 0x34
	uartIMSCOff  = 0x38
	uartICROff   = 0x44
	uartDMACROff = 0x48
)

// Flag register bit positions.
const (
	flagTXFE = 7
	flagRXFF = 6
	flagTXFF = 5
	flagRXFE = 4
	flagBusy = 3
)

// Line control register bits: 8N1 with FIFOs enabled.
const (
	lcrhFifoEnabled = 1 << 4
	lcrhWordLength8 = 0b11 << 5
)

// Control register bits.
const (
	crUARTEN = 1 << 0
	crTXE    = 1 << 8
	crRXE    = 1 << 9
)

// Interrupt mask bits: receive and receive-timeout only.
const (
	imscRXIM = 1 << 4
	imscRTIM = 1 << 6
)

// icrAll clears every one of the 11 pending interrupt bits.
const icrAll = 0x7FF

// UART0 clock negotiated over the mailbox, and the fixed baud rate this
// driver brings the line up at.
const (
	uart0Clock = 4_000_000
	uart0Baud  = 115_200
)

var (
	// ErrMailbox is returned when the mailbox clock-rate request fails.
	ErrMailbox = errors.New("bcm2835: pl011 mailbox clock request failed")

	// ErrInvalidIntegerDivisor is returned when the computed integer
	// baud rate divisor does not fit IBRD's 16 bits.
	ErrInvalidIntegerDivisor = errors.New("bcm2835: pl011 integer baud rate divisor out of range")

	// ErrInvalidFractionalDivisor is returned when the computed
	// fractional divisor does not fit FBRD's 6 bits.
	ErrInvalidFractionalDivisor = errors.New("bcm2835: pl011 fractional baud rate divisor out of range")
)

// RateDivisors holds the IBRD/FBRD pair programmed into the UART's baud
// rate registers to approximate a target baud rate from a given clock.
type RateDivisors struct {
	Integer    uint32
	Fractional uint32
}

// RateDivisorsFromClockAndRate computes PL011 baud rate divisors using
// the integer-only form v = 4*clock/baud: the top 16 bits of v (after
// dropping the low 6) give the integer divisor, and the low 6 bits give
// the fractional divisor.
func RateDivisorsFromClockAndRate(clock uint64, baud uint32) (RateDivisors, error) {
	v := 4 * clock / uint64(baud)
	i := uint32((v >> 6) & 0xffff)
	f := uint32(v & 0x3f)

	if i > 65535 {
		return RateDivisors{}, ErrInvalidIntegerDivisor
	}
	if f > 63 {
		return RateDivisors{}, ErrInvalidFractionalDivisor
	}

	return RateDivisors{Integer: i, Fractional: f}, nil
}

// PL011 is the BCM2835/BCM2711 PL011 UART driver. It is the first
// consumer of the driver registry's Driver and IRQHandler contracts.
type PL011 struct {
	mu sync.Mutex

	base uint32
	tx   *GPIO
	rx   *GPIO

	prepared bool
	irq      int
}

// NewPL011 returns a PL011 driver for the UART MMIO window at base,
// using tx/rx as its GPIO lines (pins 14/15 on Raspberry Pi boards).
func NewPL011(base uint32, tx, rx *GPIO) *PL011 {
	return &PL011{base: base, tx: tx, rx: rx}
}

func (u *PL011) reg(offset uint32) uint32 {
	return u.base + offset
}

// Compatible satisfies drivers.Driver.
func (u *PL011) Compatible() string {
	return "brcm,bcm2835-pl011-uart"
}

// Init satisfies drivers.Driver, preparing the line at the driver's
// fixed 115200 8N1 configuration.
func (u *PL011) Init() error {
	return u.Prepare()
}

// RegisterAndEnableIRQHandler satisfies drivers.IRQHandler. Enabling
// the line at the interrupt controller is the responsibility of the
// platform's GIC/interrupt-controller driver; this records the number
// the driver registry resolved for later dispatch.
func (u *PL011) RegisterAndEnableIRQHandler(irq int) error {
	u.mu.Lock()
	u.irq = irq
	u.mu.Unlock()
	return nil
}

// Prepare brings the UART up at 115200 8N1: disable, drain, negotiate
// the UART clock over the mailbox, program the baud rate divisors, then
// re-enable RX/TX with RX and RX-timeout interrupts unmasked.
func (u *PL011) Prepare() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	// 1. Disable UART, flush TX by polling Flag.BUSY.
	reg.Write(u.reg(uartCROff), 0)
	u.flushInternal()

	// 2. Disable FIFO to drop pending TX.
	reg.Write(u.reg(uartLCRHOff), 0)

	// 3. Clear all pending interrupts.
	reg.Write(u.reg(uartICROff), icrAll)

	// 4. Negotiate the UART clock over the mailbox (channel 8,
	// property tags ARM->VC).
	if err := u.setClockRate(uart0Clock); err != nil {
		return err
	}

	// Map UART0 to GPIO pins 14/15 (alt function 0) and enable
	// pull-ups, now that the clock is stable.
	if u.tx != nil {
		u.tx.SelectFunction(GPIOFunctionAltFunction0)
		u.tx.SetPullUpDown(PullUp)
	}
	if u.rx != nil {
		u.rx.SelectFunction(GPIOFunctionAltFunction0)
		u.rx.SetPullUpDown(PullUp)
	}

	// 5/6. Compute and write the baud rate divisors, then LCR_H to
	// commit them (IBRD/FBRD only take effect on an LCR_H write).
	divisors, err := RateDivisorsFromClockAndRate(uart0Clock, uart0Baud)
	if err != nil {
		return err
	}
	reg.Write(u.reg(uartIBRDOff), divisors.Integer)
	reg.Write(u.reg(uartFBRDOff), divisors.Fractional)
	reg.Write(u.reg(uartLCRHOff), lcrhWordLength8|lcrhFifoEnabled)

	// 7. RX FIFO trigger at 1/8 (the IFLS reset value), enable RX and
	// RX-timeout interrupts, disable DMA, enable UART/TX/RX.
	reg.Write(u.reg(uartIFLSOff), 0)
	reg.Write(u.reg(uartIMSCOff), imscRXIM|imscRTIM)
	reg.Write(u.reg(uartDMACROff), 0)
	reg.Write(u.reg(uartCROff), crUARTEN|crTXE|crRXE)

	u.prepared = true
	return nil
}

func (u *PL011) setClockRate(hz uint32) error {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:], clockUART)
	binary.LittleEndian.PutUint32(buf[4:], hz)
	binary.LittleEndian.PutUint32(buf[8:], 0) // do not skip turbo setting

	msg := &MailboxMessage{
		Tags: []MailboxTag{{ID: tagSetClockRate, Buffer: buf}},
	}

	if err := Mailbox.Call(channelPropertyTagsArmToVc, msg); err != nil {
		return err
	}

	if msg.Error() {
		return ErrMailbox
	}

	return nil
}

// Mailbox property tag and clock IDs used only to negotiate UART0's
// clock rate.
const (
	tagSetClockRate            = 0x0003_8002
	clockUART                  = 2
	channelPropertyTagsArmToVc = 8
)

func (u *PL011) flushInternal() {
	reg.Wait(u.reg(uartFlagOff), flagBusy, 1, 0)
}

// ReadByte spins on Flag.RXFE and returns the next received byte.
func (u *PL011) ReadByte() byte {
	reg.Wait(u.reg(uartFlagOff), flagRXFE, 1, 0)
	return byte(reg.Read(u.reg(uartDataOff)))
}

// WriteByte spins on Flag.TXFF and transmits b.
func (u *PL011) WriteByte(b byte) {
	reg.Wait(u.reg(uartFlagOff), flagTXFF, 1, 0)
	reg.Write(u.reg(uartDataOff), uint32(b))
}

// Flush waits until the TX FIFO has drained.
func (u *PL011) Flush() {
	u.flushInternal()
}

// ClearRX discards any bytes pending in the RX FIFO.
func (u *PL011) ClearRX() {
	for reg.Get(u.reg(uartFlagOff), flagRXFE, 1) == 0 {
		u.ReadByte()
	}
}

// Write implements io.Writer, converting '\n' to "\r\n" as the console
// drivers in this package do.
func (u *PL011) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\n' {
			u.WriteByte('\r')
		}
		u.WriteByte(c)
	}
	return len(p), nil
}
