package irq

import (
	"unsafe"

	"sparkkernel/kernel/cpu"
)

// vectorTableAlign is VBAR_EL1's required alignment: 2 KiB.
const vectorTableAlign = 2048

// vectorTable holds the 16-entry AArch64 exception vector table (4 types
// x 4 sources), each entry padded to 0x80 bytes of executable stub.
// Go cannot express a 2 KiB-aligned array directly, so padAlign reserves
// enough slack for alignVectorTable to find a 2 KiB boundary inside it.
var vectorTable [2 * vectorTableAlign]byte

func alignVectorTable() uintptr {
	base := uintptr(unsafe.Pointer(&vectorTable[0]))
	return (base + vectorTableAlign - 1) &^ (vectorTableAlign - 1)
}

// Declared in vectors_arm64.s: currentEL-SP0 and currentEL-SPx stubs are
// populated with a trap-to-self (this core never runs anything at EL0
// with SP_EL0 selected), lower-EL AArch64 sync/IRQ are the two this core
// actually uses, and the remaining six entries share the shared stub.
func installVectorTable()

// dispatchTrampoline is the single Go-side entry the assembly stub calls
// into once it has saved the full Frame on the stack.
var framePtr uintptr

//go:nosplit
func dispatchTrampoline() {
	Dispatch((*Frame)(unsafe.Pointer(framePtr)))
}

// kernelStackTop is read by the vector stub (via TPIDR_EL1) to find the
// stack to switch onto from EL0.
var kernelStackTop uintptr

// Install installs the vector table and records the kernel stack EL0
// traps should switch onto.
func Install(kstack uintptr) {
	kernelStackTop = kstack
	cpu.WriteTPIDR_EL1(kstack)
	installVectorTable()
	cpu.LoadVBAR_EL1(alignVectorTable())
}

// RestoreContext resumes a saved frame via ERET. Used by kernel/sched to
// hand the CPU to a scheduled process; never returns.
func RestoreContext(f *Frame) {
	restoreContextAsm(f)
}

func restoreContextAsm(f *Frame)
