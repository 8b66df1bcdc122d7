package irq

import (
	"unsafe"

	"sparkkernel/kernel/cpu"
)

// Declared in vectors_riscv64.s: the single direct-mode trap entry every
// synchronous exception, ECALL and timer interrupt funnels through.
func trapEntry()

var framePtr uintptr

// kernelStackTop is restored into sscratch before every SRET, so the next
// trap taken from U-mode still finds the kernel stack rather than
// whatever value trapEntry's swap left behind.
var kernelStackTop uintptr

//go:nosplit
func dispatchTrampoline() {
	Dispatch((*Frame)(unsafe.Pointer(framePtr)))
}

// Install points stvec at the single direct-mode trap entry and stashes
// the kernel stack top in sscratch, swapped in by trapEntry when a trap
// arrives from U-mode.
func Install(kstack uintptr) {
	kernelStackTop = kstack
	cpu.WriteSscratch(kstack)
	cpu.WriteStvec(funcPC(trapEntry))
}

func funcPC(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}

// RestoreContext resumes a saved frame via SRET. Used by kernel/sched to
// hand the hart to a scheduled process; never returns.
func RestoreContext(f *Frame) {
	restoreContextAsm(f)
}

func restoreContextAsm(f *Frame)
