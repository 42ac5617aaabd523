// Package exception decodes and dispatches AArch64 synchronous, IRQ,
// FIQ and SError exceptions taken while the kernel runs at EL1.
//
// The vector table itself (16 x 128-byte entries, 2 KiB aligned) is not
// part of this package: vector_arm64.s holds only the VBAR_EL1 write and
// ISB helpers HandlingInit uses. This package is what each vector entry
// calls into with a pointer to the saved context.
package exception

import "fmt"

// Context mirrors the register block each vector entry saves before
// calling into Go: 30 general-purpose registers, the link register,
// then the three exception-state registers captured at entry.
type Context struct {
	GPR     [30]uint64
	LR      uint64
	ELR_EL1 uint64
	SPSR_EL1 uint64
	ESR_EL1 uint64
}

// Family identifies which of the 4 vector groups delivered the
// exception.
type Family int

const (
	CurrentELSP0 Family = iota
	CurrentELSPx
	LowerELAArch64
	LowerELAArch32
)

// Kind identifies which of the 4 exception classes within a family
// fired.
type Kind int

const (
	Synchronous Kind = iota
	IRQ
	FIQ
	SError
)

// ESR_EL1.EC (exception class) values this package recognizes.
const (
	ecSVC64     = 0b010_101
	ecDataAbortSameEL = 0b100_101
)

// ecShift/ecMask/issMask locate the EC and ISS fields within ESR_EL1.
const (
	ecShift  = 26
	ecMask   = 0x3F
	issMask  = 0x1FFF_FFF
)

// EC extracts the exception class from ESR_EL1.
func EC(esr uint64) uint64 { return (esr >> ecShift) & ecMask }

// ISS extracts the instruction-specific syndrome from ESR_EL1.
func ISS(esr uint64) uint64 { return esr & issMask }

// TestSVCISS is the build-time-test SVC64 immediate that
// current-EL-SPx synchronous handling returns cleanly from instead of
// delegating to the default panic handler.
const TestSVCISS = 0x1337

// IRQToken is a zero-sized witness that IRQs are currently masked on
// this core, threaded through the IRQ manager's handle-pending call so
// the type system — not a runtime check — documents the invariant.
type IRQToken struct{ _ [0]int }

// IRQManager is implemented by the driver registry's IRQ dispatch
// side; Dispatch's IRQ case calls HandlePendingIRQs with a freshly
// minted token.
type IRQManager interface {
	HandlePendingIRQs(IRQToken)
}

// dfscNames maps the Data Abort ISS's DFSC field to a human string:
// translation fault levels 0-3, permission fault, alignment fault,
// TLB conflict abort, synchronous external abort.
var dfscNames = map[uint64]string{
	0b000100: "Translation fault, level 0",
	0b000101: "Translation fault, level 1",
	0b000110: "Translation fault, level 2",
	0b000111: "Translation fault, level 3",
	0b001101: "Permission fault, level 1",
	0b001110: "Permission fault, level 2",
	0b001111: "Permission fault, level 3",
	0b010000: "Synchronous External abort, not on translation table walk",
	0b100001: "Alignment fault",
	0b110000: "TLB conflict abort",
}

func dfscString(dfsc uint64) string {
	if s, ok := dfscNames[dfsc]; ok {
		return s
	}
	return "Unknown"
}

// accessSizeNames maps the Data Abort ISS's SAS field to the access
// width it names.
var accessSizeNames = [4]string{"byte", "halfword", "word", "doubleword"}

// DataAbortDetail is the decoded form of a Data Abort ISS: fault
// classification by DFSC and WnR, plus the access size and target
// register.
type DataAbortDetail struct {
	DFSC        string
	WriteNotRead bool
	AccessSize  string
	TargetReg   uint64
	InstructionSyndromeValid bool
}

// DecodeDataAbort extracts a DataAbortDetail from a Data-Abort ESR_EL1
// ISS field, per the ISS_DA bitfield layout.
func DecodeDataAbort(iss uint64) DataAbortDetail {
	return DataAbortDetail{
		DFSC:                     dfscString(iss & 0x3F),
		WriteNotRead:             iss&(1<<6) != 0,
		AccessSize:               accessSizeNames[(iss>>22)&0x3],
		TargetReg:                (iss >> 16) & 0x1F,
		InstructionSyndromeValid: iss&(1<<24) != 0,
	}
}

// Logf is the print hook every Dispatch path writes its diagnostics
// through; boot wires this to printk.
type Logf func(string, ...interface{})

// Dispatch is the single entry point every vector stub calls with the
// exception family/kind it was entered through, a pointer to the
// saved context, the current FAR_EL1, and the manager for IRQ
// delivery. Every unexpected path panics; FIQ, SError and unrecognised
// current-EL synchronous exceptions log the saved syndrome first. It
// returns cleanly only for current-EL IRQs (handed to mgr) and for the
// build-time SVC64 test case.
func Dispatch(family Family, kind Kind, ctx *Context, farEL1 uint64, mgr IRQManager, logf Logf) {
	switch family {
	case CurrentELSP0:
		panic("exception: EL1 must never use SP_EL0")

	case CurrentELSPx:
		switch kind {
		case Synchronous:
			dispatchCurrentELSynchronous(ctx, farEL1, logf)
		case IRQ:
			mgr.HandlePendingIRQs(IRQToken{})
		case FIQ, SError:
			defaultPanic(ctx, farEL1, logf)
		}

	case LowerELAArch64, LowerELAArch32:
		panic("exception: lower-EL vectors are not used pre-userspace")
	}
}

func dispatchCurrentELSynchronous(ctx *Context, farEL1 uint64, logf Logf) {
	ec := EC(ctx.ESR_EL1)
	iss := ISS(ctx.ESR_EL1)

	if ec == ecSVC64 && iss == TestSVCISS {
		return
	}

	defaultPanic(ctx, farEL1, logf)
}

func defaultPanic(ctx *Context, farEL1 uint64, logf Logf) {
	ec := EC(ctx.ESR_EL1)
	iss := ISS(ctx.ESR_EL1)

	logf("[!] A synchronous exception happened.")
	logf("      ESR_EL1: %#010x (syndrome)", ctx.ESR_EL1)
	logf("           EC: %#08b (cause)", ec)
	logf("      FAR_EL1: %#016x (location)", farEL1)
	logf("      ELR_EL1: %#010x", ctx.ELR_EL1)

	if ec == ecDataAbortSameEL {
		d := DecodeDataAbort(iss)
		logf("      Data abort: %s, %s, %s access to register x%d",
			d.DFSC, wnrString(d.WriteNotRead), d.AccessSize, d.TargetReg)
	}

	panic(fmt.Sprintf("unhandled exception: EC=%#08b ISS=%#x ELR=%#x", ec, iss, ctx.ELR_EL1))
}

func wnrString(writeNotRead bool) string {
	if writeNotRead {
		return "write"
	}
	return "read"
}
