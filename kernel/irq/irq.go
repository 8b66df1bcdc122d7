// Package irq implements the kernel's exception/system-call spine: it
// installs an architecture-specific trap vector, saves a full register
// frame on the kernel stack, classifies the trap's cause, and dispatches
// supervisor calls to kernel/syscall while routing everything else through
// the abstract taxonomy of §4.4.
package irq

import (
	"sparkkernel/kernel"
	"sparkkernel/kernel/cpu"
	"sparkkernel/kernel/kfmt/early"
	"sparkkernel/kernel/syscall"
)

// Cause classifies a trapped frame into the abstract taxonomy of §4.4.
type Cause int

const (
	// CauseSyncKernelFault is a synchronous fault taken while running
	// kernel code: unrecoverable, panics with a frame dump.
	CauseSyncKernelFault Cause = iota
	// CauseSyncUserFault is a synchronous fault taken from user mode; a
	// supervisor call routes to kernel/syscall, anything else is treated
	// like a kernel fault under the current policy (process termination
	// on arbitrary user faults is future work; see §7).
	CauseSyncUserFault
	// CauseAsyncInterrupt is a hardware interrupt: acknowledged at the
	// interrupt controller and dispatched by ID.
	CauseAsyncInterrupt
	// CauseDoubleFault enters a permanent halt loop; it never returns.
	CauseDoubleFault
)

// TimerInterruptID is the abstract interrupt ID the timer is dispatched
// under, after each architecture's Frame.InterruptID translates its own
// IRQ/vector numbering into this ID space.
const TimerInterruptID = 0

// AckFn acknowledges an interrupt at the platform's interrupt controller
// (PIC/APIC/GIC/PLIC). It is an external collaborator per §1; the default
// is a no-op so this package dispatches frames correctly in tests that
// never install a real controller.
var AckFn = func(id uint64) {}

// RearmFn rearms the periodic timer after it fires. Like AckFn, it is
// supplied by the interrupt-controller driver.
var RearmFn = func() {}

// haltForeverFn is mocked by tests; production value parks the core with
// interrupts masked, matching §5's only cancellation primitive.
var haltForeverFn = func() {
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}

// Dispatch routes a fully saved exception frame to its handler. Every
// architecture's shared assembly trampoline calls this once the frame is
// fully saved, with interrupts still disabled per §4.4's ordering rule.
func Dispatch(f *Frame) {
	switch f.Classify() {
	case CauseDoubleFault:
		doubleFault(f)
	case CauseSyncKernelFault:
		kernelFault(f)
	case CauseSyncUserFault:
		userFault(f)
	case CauseAsyncInterrupt:
		asyncInterrupt(f)
	}
}

func userFault(f *Frame) {
	if !f.IsSupervisorCall() {
		kernelFault(f)
		return
	}
	result := syscall.Dispatch(f)
	f.SetResult(result)
}

func asyncInterrupt(f *Frame) {
	id := f.InterruptID()
	AckFn(id)
	if id == TimerInterruptID {
		RearmFn()
		return
	}
	early.Printf("irq: unhandled interrupt %d\n", id)
}

func kernelFault(f *Frame) {
	dumpFrame(f)
	kernel.Panic(&kernel.Error{Module: "irq", Message: "unrecoverable exception"})
}

func doubleFault(f *Frame) {
	dumpFrame(f)
	haltForeverFn()
}
