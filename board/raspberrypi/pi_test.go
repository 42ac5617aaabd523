package pi

import (
	"sync"
	"testing"

	"github.com/metta-systems/nucleus/arm64/exception"
	"github.com/metta-systems/nucleus/boot"
	"github.com/metta-systems/nucleus/mm/addr"
	"github.com/metta-systems/nucleus/mm/kernel"
)

var (
	kernelOnce sync.Once
	sharedK    *boot.Kernel
	sharedErr  error
)

// testKernel returns the one Kernel this test binary boots. boot.Run
// enables the MMU, and a second Run in the same process fails with
// mmu.ErrAlreadyEnabled, so every test shares the first Run's result.
func testKernel(t *testing.T) *boot.Kernel {
	t.Helper()

	kernelOnce.Do(func() {
		syms := kernel.Symbols{
			BootCoreStackStart: 0,
			BootCoreStackSize:  2 * addr.Granule,
			CodeStart:          2 * addr.Granule,
			CodeSize:           4 * addr.Granule,
			DataStart:          6 * addr.Granule,
			DataSize:           2 * addr.Granule,
		}
		sharedK, sharedErr = boot.Run(syms, boot.KernelAddressSpaceSize, func(string, ...interface{}) {})
	})
	if sharedErr != nil {
		t.Fatalf("boot.Run: %v", sharedErr)
	}
	return sharedK
}

func TestNewMapsUART0AndRegistersDriver(t *testing.T) {
	k := testKernel(t)

	var logs []string
	logf := func(format string, args ...interface{}) { logs = append(logs, format) }

	b, err := New(k, PeripheralBaseRPi3, nil, logf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.UART == nil {
		t.Fatal("expected a non-nil UART driver")
	}
	if b.UART.Compatible() != "brcm,bcm2835-pl011-uart" {
		t.Fatalf("got %q", b.UART.Compatible())
	}
	if console != b.UART {
		t.Fatal("New did not install the board's UART as the printk console")
	}
}

func TestNewMMIOMappingIsIdempotent(t *testing.T) {
	k := testKernel(t)
	logf := func(string, ...interface{}) {}

	if _, err := New(k, PeripheralBaseRPi3, nil, logf); err != nil {
		t.Fatalf("first New: %v", err)
	}
	// A second bring-up against the same kernel must de-duplicate the
	// UART0 MMIO mapping (mm/kernel.MapMMIO) rather than erroring or
	// allocating a second virtual window.
	if _, err := New(k, PeripheralBaseRPi3, nil, logf); err != nil {
		t.Fatalf("second New: %v", err)
	}
}

func TestIRQManagerHandlesTokenWithoutPanicking(t *testing.T) {
	k := testKernel(t)
	b, err := New(k, PeripheralBaseRPi3, nil, func(string, ...interface{}) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var mgr exception.IRQManager = b.IRQManager()
	mgr.HandlePendingIRQs(exception.IRQToken{})
}
