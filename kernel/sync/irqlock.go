// Package sync provides synchronization primitives safe for use by code that
// may run with interrupts enabled, including the singletons (the physical
// allocator, the active Glacier) shared between the main execution path and
// exception/interrupt handlers.
package sync

import (
	"sync/atomic"

	"sparkkernel/kernel/cpu"
)

// IRQLock is a spinlock that also masks interrupts for the duration of the
// critical section. Without this, an interrupt handler that re-enters a
// lock already held by the code it interrupted would deadlock the core.
type IRQLock struct {
	state uint32
}

// disableInterruptsFn and enableInterruptsFn are mocked by tests.
var (
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// Acquire disables interrupts and busy-waits until the lock is held. The
// prior interrupt state is not recorded; nesting IRQLock.Acquire calls on
// the same lock from the same execution context deadlocks.
func (l *IRQLock) Acquire() {
	disableInterruptsFn()
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
}

// Release relinquishes a held lock and re-enables interrupts. Calling
// Release without a matching Acquire has no effect on the lock but still
// re-enables interrupts, so callers must not call it speculatively.
func (l *IRQLock) Release() {
	atomic.StoreUint32(&l.state, 0)
	enableInterruptsFn()
}
