// Package syscall implements the kernel's syscall dispatch skeleton: a
// switch over the small, closed set of invocation/receive/reply/yield
// syscalls, each delegating to a handler that consults the calling
// thread's capability registers, with scheduling always run once the
// case has executed.
//
// The object-layer dispatch the handlers hand off to depends on
// kernel objects that do not exist yet; each handler says so at the
// point it stops.
package syscall

import (
	"fmt"

	"github.com/metta-systems/nucleus/caps"
)

// SysCall enumerates the syscalls a thread may invoke, matching
// vesper_user::SysCall's closed set.
type SysCall uint8

const (
	Send SysCall = iota
	NBSend
	Call
	Recv
	Reply
	ReplyRecv
	NBRecv
	Yield
)

func (s SysCall) String() string {
	switch s {
	case Send:
		return "Send"
	case NBSend:
		return "NBSend"
	case Call:
		return "Call"
	case Recv:
		return "Recv"
	case Reply:
		return "Reply"
	case ReplyRecv:
		return "ReplyRecv"
	case NBRecv:
		return "NBRecv"
	case Yield:
		return "Yield"
	default:
		return fmt.Sprintf("SysCall(%d)", uint8(s))
	}
}

// ThreadState is a thread's scheduling state.
type ThreadState uint8

const (
	StateInactive ThreadState = iota
	StateRunning
	StateRestart
)

// FaultKind tags which variant of Fault is populated.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultCapability
	FaultVM
	FaultUnknownSyscall
	FaultUserException
)

// Fault describes why a thread trapped: a capability fault (send or
// receive phase), a VM fault (instruction or data), an unknown syscall
// number, or a user exception. Only the fields relevant to Kind are
// meaningful.
type Fault struct {
	Kind FaultKind

	InReceivePhase     bool
	Address            uint64
	IsInstructionFault bool
	FSR                uint64
	SyscallNumber      uint64
	ExceptionNumber    uint64
	ExceptionCode      uint64
}

// Error implements the error interface with one line per fault kind.
func (f Fault) Error() string {
	switch f.Kind {
	case FaultNone:
		return "no fault"
	case FaultCapability:
		phase := "send"
		if f.InReceivePhase {
			phase = "receive"
		}
		return fmt.Sprintf("capability fault in %s phase at address %#x", phase, f.Address)
	case FaultVM:
		kind := "data"
		if f.IsInstructionFault {
			kind = "code"
		}
		return fmt.Sprintf("vm fault on %s at address %#x with status %#x", kind, f.Address, f.FSR)
	case FaultUnknownSyscall:
		return fmt.Sprintf("unknown syscall %#x", f.SyscallNumber)
	case FaultUserException:
		return fmt.Sprintf("user exception %#x code %#x", f.ExceptionNumber, f.ExceptionCode)
	default:
		return "unrecognised fault"
	}
}

// Thread is the subset of thread-control-block state the dispatcher
// touches: the two designated registers (message info, capability
// path), scheduling state, capability lookup, and fault/reply delivery.
type Thread interface {
	Name() string
	RestartPC() uint64

	Register(n int) uint64
	SetRegister(n int, v uint64)

	State() ThreadState
	SetState(ThreadState)

	// LookupCapAndSlot resolves capPath (as loaded from the capability
	// register) to the capability it names and its slot. ok is false
	// if the path does not resolve.
	LookupCapAndSlot(capPath uint64) (cap caps.Capability, slot caps.SlotAddr, ok bool)

	// CallerCapability returns the capability in this thread's caller
	// slot (populated by a prior Call), if any.
	CallerCapability() (cap caps.Capability, ok bool)

	// SendFaultIPC delivers f to this thread's fault endpoint. A
	// non-nil return means delivery itself faulted — a double fault.
	SendFaultIPC(f Fault) error
}

// Scheduler is the subset of scheduler operations the dispatcher and
// Yield need: the always-run schedule/activate pair, and yield's
// dequeue/append/reschedule sequence.
type Scheduler interface {
	Schedule()
	ActivateThread()

	Dequeue(t Thread)
	Append(t Thread)
	RescheduleRequired()
}

// Registers the dispatcher reads syscall arguments from.
const (
	msgInfoRegister = 1
	capRegister     = 2
)

// Logf is the logging hook handlers use to report non-fatal anomalies
// (invalid cap invocation, missing reply capability). A nil Logf falls
// back to the kernel's ambient print/println primitive, never a
// buffering logger.
type Logf func(format string, args ...interface{})

// Dispatcher ties a Thread and Scheduler together to run the syscall
// switch. Each Dispatcher is single-threaded by construction — the
// kernel it serves runs on one core with no preemption inside itself.
type Dispatcher struct {
	Thread    Thread
	Scheduler Scheduler
	Logf      Logf
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, args...)
		return
	}
	print(fmt.Sprintf(format, args...) + "\n")
}

// Dispatch runs the syscall switch for sc, then unconditionally calls
// Schedule and ActivateThread — the scheduler runs after every case,
// including one it doesn't recognise.
func (d *Dispatcher) Dispatch(sc SysCall) {
	switch sc {
	case Send:
		d.handleInvocation(false, true)
	case NBSend:
		d.handleInvocation(false, false)
	case Call:
		d.handleInvocation(true, true)
	case Recv:
		d.handleReceive(true)
	case Reply:
		d.handleReply()
	case ReplyRecv:
		d.handleReply()
		d.handleReceive(true)
	case NBRecv:
		d.handleReceive(false)
	case Yield:
		d.handleYield()
	default:
		d.deliverFault(Fault{Kind: FaultUnknownSyscall, SyscallNumber: uint64(sc)})
	}

	d.Scheduler.Schedule()
	d.Scheduler.ActivateThread()
}

func (d *Dispatcher) deliverFault(f Fault) {
	if err := d.Thread.SendFaultIPC(f); err != nil {
		d.handleDoubleFault(f, err)
	}
}

// handleInvocation resolves the capability path in the capability
// register and, on success, resumes a restarting thread. Decoding the
// invocation's label and delegating to the target object's method
// needs a kernel object layer this module doesn't build, so a
// successful lookup is as far as this skeleton goes.
func (d *Dispatcher) handleInvocation(isCall, isBlocking bool) {
	t := d.Thread
	capPath := t.Register(capRegister)

	if _, _, ok := t.LookupCapAndSlot(capPath); !ok {
		d.logf("invocation of invalid cap %#x by thread %q at pc %#x", capPath, t.Name(), t.RestartPC())
		if isBlocking {
			d.deliverFault(Fault{Kind: FaultCapability, Address: capPath})
		}
		return
	}

	if t.State() == StateRestart {
		t.SetState(StateRunning)
	}
}

// handleReceive resolves the capability register and delivers a
// receive-phase capability fault if the lookup fails. A successful
// lookup does nothing further: the thread is not blocked on any
// object, since no endpoint or notification objects exist in this
// skeleton.
func (d *Dispatcher) handleReceive(isBlocking bool) {
	t := d.Thread
	capPath := t.Register(capRegister)

	if _, _, ok := t.LookupCapAndSlot(capPath); !ok {
		d.deliverFault(Fault{Kind: FaultCapability, InReceivePhase: true, Address: capPath})
		return
	}
}

// handleReply inspects the thread's caller slot: a reply capability
// triggers the (not yet modeled) reply transfer, a null capability is
// reported and ignored, and anything else is a kernel invariant
// violation.
func (d *Dispatcher) handleReply() {
	t := d.Thread

	callerCap, ok := t.CallerCapability()
	if !ok || callerCap.IsNull() {
		d.logf("attempted reply operation when no reply capability present (thread %q at pc %#x)", t.Name(), t.RestartPC())
		return
	}

	if callerCap.Kind != caps.KindReply {
		panic(fmt.Sprintf("invalid caller capability for thread %q at pc %#x", t.Name(), t.RestartPC()))
	}

	// TODO: perform the reply transfer once IPC message buffers exist.
}

func (d *Dispatcher) handleYield() {
	d.Scheduler.Dequeue(d.Thread)
	d.Scheduler.Append(d.Thread)
	d.Scheduler.RescheduleRequired()
}

func (d *Dispatcher) handleDoubleFault(f1 Fault, deliveryErr error) {
	t := d.Thread
	d.logf("caught %v while trying to handle %v", deliveryErr, f1)
	d.logf("in thread %q", t.Name())
	d.logf("at address %#x", t.RestartPC())
	t.SetState(StateInactive)
}
