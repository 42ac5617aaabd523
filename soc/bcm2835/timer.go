// BCM2835 SOC support
// https://github.com/f-secure-foundry/tamago
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bcm2835

import "github.com/metta-systems/nucleus/internal/reg"

// System Timer registers: a free-running 64-bit counter split across
// two 32-bit halves, incrementing at SysTimerFreq regardless of CPU
// clock scaling.
const (
	sysTimerCLO = 0x3004
	sysTimerCHI = 0x3008
)

// SysTimerFreq is the frequency (Hz) of the BCM2835 free-running
// timer (fixed at 1MHz).
const SysTimerFreq = 1_000_000

// read_systimer reads the System Timer's 64-bit free-running counter,
// re-reading CLO if CHI changed mid-read to avoid a torn value across
// the low/high word boundary.
func read_systimer() int64 {
	for {
		hi := reg.Read(PeripheralAddress(sysTimerCHI))
		lo := reg.Read(PeripheralAddress(sysTimerCLO))
		if reg.Read(PeripheralAddress(sysTimerCHI)) == hi {
			return int64(uint64(hi)<<32 | uint64(lo))
		}
	}
}
