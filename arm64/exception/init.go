package exception

import "errors"

// ErrUnaligned is returned by HandlingInit when the vector base address
// is not 2 KiB aligned (its low 11 bits are nonzero) — VBAR_EL1
// requires this alignment since the table holds 16 x 128-byte entries.
var ErrUnaligned = errors.New("exception: vector table base address is not 2 KiB aligned")

// HandlingInit programs VBAR_EL1 from vecTableStart, rejecting
// misaligned addresses, then issues an instruction-synchronization
// barrier to force the update to complete before the next instruction.
func HandlingInit(vecTableStart uint64) error {
	if vecTableStart&0x7FF != 0 {
		return ErrUnaligned
	}
	vbarWrite(vecTableStart)
	isb()
	return nil
}
