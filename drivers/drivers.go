// Package drivers is the kernel's fixed-capacity device driver
// registry: drivers are registered in the order they are instantiated
// and brought up in that same order during InitDrivers. Each
// descriptor carries its own optional IRQ number rather than relying
// on an out-of-band interrupt-controller registration call.
package drivers

import (
	"fmt"

	nsync "github.com/metta-systems/nucleus/sync"
)

// NumDrivers is the registry's fixed capacity.
const NumDrivers = 5

// Driver is implemented by every device driver the kernel brings up.
type Driver interface {
	// Compatible returns a human-readable identifier used in panic
	// messages and the enumerate() dump.
	Compatible() string
	// Init brings the device up. The kernel panics, naming the
	// driver's Compatible string, if this returns an error.
	Init() error
}

// PostInit is an optional callback run immediately after a driver's
// Init succeeds.
type PostInit func() error

// IRQHandler is implemented by drivers that register themselves with
// the IRQ manager once their descriptor names a nonzero IRQ number.
type IRQHandler interface {
	RegisterAndEnableIRQHandler(irq int) error
}

// Descriptor pairs a driver with its optional post-init callback and
// optional IRQ number.
type Descriptor struct {
	Driver   Driver
	PostInit PostInit
	IRQ      int // 0 means "no IRQ registration"
}

type registryState struct {
	nextIndex   int
	descriptors [NumDrivers]*Descriptor
}

// Manager is the process-wide driver registry, protected by its own
// IRQ-masked lock like every other process-wide structure.
type Manager struct {
	lock *nsync.IRQSafeNullLock[registryState]
}

// New returns an empty driver registry.
func New(mask nsync.IRQMask) *Manager {
	return &Manager{lock: nsync.NewIRQSafeNullLock(registryState{}, mask)}
}

// RegisterDriver appends desc to the registry, panicking if the fixed
// capacity is exceeded — a misconfigured board, not a recoverable
// runtime condition.
func (m *Manager) RegisterDriver(desc *Descriptor) {
	m.lock.Lock(func(s *registryState) {
		if s.nextIndex >= NumDrivers {
			panic("drivers: registry capacity exceeded")
		}
		s.descriptors[s.nextIndex] = desc
		s.nextIndex++
	})
}

func (m *Manager) forEach(f func(*Descriptor)) {
	m.lock.Lock(func(s *registryState) {
		for _, d := range s.descriptors[:s.nextIndex] {
			f(d)
		}
	})
}

// InitDrivers brings up every registered driver in registration order:
// Init, then PostInit if present, then IRQ registration if the
// descriptor names a nonzero IRQ. A failure at any step panics, naming
// the driver's Compatible string: driver bring-up failures are fatal
// programming errors, not recoverable conditions.
func (m *Manager) InitDrivers() {
	m.forEach(func(d *Descriptor) {
		if err := d.Driver.Init(); err != nil {
			panic(fmt.Sprintf("Error initializing driver: %s: %v", d.Driver.Compatible(), err))
		}

		if d.PostInit != nil {
			if err := d.PostInit(); err != nil {
				panic(fmt.Sprintf("Error during driver post-init callback: %s: %v", d.Driver.Compatible(), err))
			}
		}

		if d.IRQ != 0 {
			handler, ok := d.Driver.(IRQHandler)
			if !ok {
				panic(fmt.Sprintf("driver %s declares IRQ %d but does not implement IRQHandler", d.Driver.Compatible(), d.IRQ))
			}
			if err := handler.RegisterAndEnableIRQHandler(d.IRQ); err != nil {
				panic(fmt.Sprintf("Error registering IRQ handler: %s: %v", d.Driver.Compatible(), err))
			}
		}
	})
}

// Enumerate prints every registered driver's compatible string,
// numbered from 1.
func (m *Manager) Enumerate(logf func(string, ...interface{})) {
	i := 1
	m.forEach(func(d *Descriptor) {
		logf("      %d. %s", i, d.Driver.Compatible())
		i++
	})
}
