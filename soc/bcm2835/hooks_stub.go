// BCM2835 SOC support
// https://github.com/f-secure-foundry/tamago
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !(tamago && arm64)

package bcm2835

// PeripheralBase is the (remapped) peripheral base address, linked to
// the runtime when building for hardware (see hooks_arm64.go).
var PeripheralBase uint32
