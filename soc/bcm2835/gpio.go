// BCM2835 SOC GPIO Support
// https://github.com/f-secure-foundry/tamago
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2835

import (
	"fmt"

	"github.com/metta-systems/nucleus/internal/reg"
)

const (
	gpfsel0 = 0x200000
	gpset0  = 0x20001C
	gpclr0  = 0x200028
	gplev0  = 0x200034
	gppud   = 0x200094
	gppudclk0 = 0x200098
)

// PullUpDown selects a GPIO line's internal pull resistor state.
type PullUpDown uint32

const (
	PullNone PullUpDown = 0b00
	PullUp   PullUpDown = 0b01
	PullDown PullUpDown = 0b10
)

// GPIOFunction represents the modes of a GPIO line
type GPIOFunction uint32

const (
	// GPIOFunctionInput uses the GPIO line for input
	GPIOFunctionInput GPIOFunction = 0

	// GPIOFunctionOutput uses the GPIO line for output
	GPIOFunctionOutput = 1

	// GPIOFunctionAltFunction0 for it alternate function 0
	GPIOFunctionAltFunction0 = 2

	// GPIOFunctionAltFunction1 for it alternate function 1
	GPIOFunctionAltFunction1 = 3

	// GPIOFunctionAltFunction2 for it alternate function 2
	GPIOFunctionAltFunction2 = 4

	// GPIOFunctionAltFunction3 for it alternate function 3
	GPIOFunctionAltFunction3 = 5

	// GPIOFunctionAltFunction4 for it alternate function 4
	GPIOFunctionAltFunction4 = 6

	// GPIOFunctionAltFunction5 for it alternate function 5
	GPIOFunctionAltFunction5 = 7
)

// GPIO instance
type GPIO struct {
	num int
}

// NewGPIO gets access to a single GPIO line
func NewGPIO(num int) (*GPIO, error) {
	if num > 54 || num < 0 {
		return nil, fmt.Errorf("invalid GPIO number %d", num)
	}

	return &GPIO{num: num}, nil
}

// Out configures a GPIO as output.
func (gpio *GPIO) Out() {
	gpio.SelectFunction(GPIOFunctionOutput)
}

// In configures a GPIO as input.
func (gpio *GPIO) In() {
	gpio.SelectFunction(GPIOFunctionInput)
}

// SelectFunction selects the function of a GPIO line
func (gpio *GPIO) SelectFunction(fn GPIOFunction) error {
	if fn > GPIOFunctionAltFunction5 {
		return fmt.Errorf("invalid GPIO function %d", fn)
	}

	register := PeripheralAddress(gpfsel0 + 4*uint32(gpio.num/10))
	shift := (gpio.num % 10) * 3

	reg.SetN(register, shift, 0b111, uint32(fn))

	return nil
}

// GetFunction gets the current function of a GPIO line
func (gpio *GPIO) GetFunction(line int) (GPIOFunction, error) {
	register := PeripheralAddress(gpfsel0 + 4*uint32(gpio.num/10))
	shift := (gpio.num % 10) * 3

	return GPIOFunction(reg.Get(register, shift, 0b111)), nil
}

// High configures a GPIO signal as high.
func (gpio *GPIO) High() {
	register := PeripheralAddress(gpset0 + 4*uint32(gpio.num/32))
	shift := uint32(gpio.num % 32)
	reg.Write(register, 1<<shift)
}

// Low configures a GPIO signal as low.
func (gpio *GPIO) Low() {
	register := PeripheralAddress(gpclr0 + 4*uint32(gpio.num/32))
	shift := uint32(gpio.num % 32)
	reg.Write(register, 1<<shift)
}

// Value returns the GPIO signal level.
func (gpio *GPIO) Value() (high bool) {
	register := PeripheralAddress(gplev0 + 4*uint32(gpio.num/32))
	shift := gpio.num % 32

	return reg.Get(register, shift, 1) != 0
}

// SetPullUpDown configures the line's internal pull resistor, following
// the BCM2835 GPPUD/GPPUDCLK0 control sequence: stage the desired pull
// state, strobe the clock register for this line, then clear both.
func (gpio *GPIO) SetPullUpDown(pull PullUpDown) {
	bank := uint32(gpio.num / 32)
	off := uint32(gpio.num % 32)

	reg.Write(PeripheralAddress(gppud), uint32(pull))
	spinDelay(150)

	reg.Write(PeripheralAddress(gppudclk0+4*bank), 1<<off)
	spinDelay(150)

	reg.Write(PeripheralAddress(gppud), 0)
	reg.Write(PeripheralAddress(gppudclk0+4*bank), 0)
}

// spinDelay busy-waits for approximately n cycles. The PL011/GPIO
// datasheets specify the GPPUD strobe in cycles, not wall-clock time, so
// a calibrated instruction count is used rather than a timer.
func spinDelay(n int) {
	for i := 0; i < n; i++ {
	}
}
