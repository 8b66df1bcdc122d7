package irq

import (
	"unsafe"

	"sparkkernel/kernel/cpu"
)

// idtEntry is a single 64-bit interrupt-gate descriptor.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const idtVectors = 256

var idt [idtVectors]idtEntry

// kernelCS/kernelDS/userDS/userCS/tssSel are the GDT selectors installed
// by buildGDT, in the fixed layout this core uses on every boot.
const (
	kernelCS = 0x08
	kernelDS = 0x10
	userDS   = 0x18 // | RPL 3 -> 0x1b, matches Frame.SetUserMode
	userCS   = 0x20 // | RPL 3 -> 0x23, matches Frame.SetUserMode
	tssSel   = 0x28
)

// gdtEntry is a plain (non-system) 8-byte segment descriptor.
type gdtEntry struct {
	limitLow   uint16
	baseLow    uint16
	baseMid    uint8
	access     uint8
	flagsLimit uint8
	baseHigh   uint8
}

// tssDescriptor is the 16-byte system descriptor a 64-bit TSS needs; it
// occupies two consecutive gdtEntry-sized slots in the table.
type tssDescriptor struct {
	limitLow   uint16
	baseLow    uint16
	baseMid    uint8
	access     uint8
	flagsLimit uint8
	baseHigh   uint8
	baseUpper  uint32
	reserved   uint32
}

var gdt struct {
	null       gdtEntry
	kernelCode gdtEntry
	kernelData gdtEntry
	userData   gdtEntry
	userCode   gdtEntry
	tss        tssDescriptor
}

// tss64 is the 64-bit task state segment. Only rsp0 and the IST1 entry
// (dedicated to #DF, so a corrupted kernel stack still reaches the double
// fault handler) are used; this core runs one ring-0 stack per core.
type tss64 struct {
	reserved0 uint32
	rsp0      uint64
	rsp1      uint64
	rsp2      uint64
	reserved1 uint64
	ist       [7]uint64
	reserved2 uint64
	reserved3 uint16
	ioMapBase uint16
}

var tss tss64

// doubleFaultStack backs IST1. A fresh, small stack reserved purely for
// #DF so it never shares memory with whatever kernel stack just faulted.
var doubleFaultStack [4096]byte

func setGate(vec int, handler uintptr, ist uint8) {
	idt[vec] = idtEntry{
		offsetLow:  uint16(handler),
		selector:   kernelCS,
		ist:        ist,
		typeAttr:   0x8e, // present, DPL 0, 64-bit interrupt gate
		offsetMid:  uint16(handler >> 16),
		offsetHigh: uint32(handler >> 32),
	}
}

func codeDescriptor(dpl uint8) gdtEntry {
	return gdtEntry{limitLow: 0xffff, access: 0x9a | (dpl << 5), flagsLimit: 0xaf}
}

func dataDescriptor(dpl uint8) gdtEntry {
	return gdtEntry{limitLow: 0xffff, access: 0x92 | (dpl << 5), flagsLimit: 0xcf}
}

func buildGDT() {
	gdt.kernelCode = codeDescriptor(0)
	gdt.kernelData = dataDescriptor(0)
	gdt.userData = dataDescriptor(3)
	gdt.userCode = codeDescriptor(3)

	base := uintptr(unsafe.Pointer(&tss))
	gdt.tss = tssDescriptor{
		limitLow:  uint16(unsafe.Sizeof(tss) - 1),
		baseLow:   uint16(base),
		baseMid:   uint8(base >> 16),
		access:    0x89, // present, DPL 0, 64-bit TSS (available)
		baseHigh:  uint8(base >> 24),
		baseUpper: uint32(base >> 32),
	}
}

// funcPC returns the entry address of a package-level, non-closure Go
// function. A func value for such a function is represented as a single
// pointer to a read-only funcval whose first word is the code address;
// this is the same trick the Go runtime uses internally for the same
// purpose and is the only portable way to hand an assembly-built IDT a
// Go-declared symbol's address.
func funcPC(f func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&f))
}

// Declared in vectors_amd64.s: each pushes a (possibly synthetic) error
// code and its own vector number, then falls into the shared trampoline.
func vec0()
func vec1()
func vec3()
func vec6()
func vec8()
func vec13()
func vec14()
func vec32()
func vec33()
func vecSyscall()

// handledVectors is the deliberately small set of exceptions and IRQs this
// core gives an explicit stub: the architectural faults most likely to
// fire during bring-up (#DE, #DB, #BP, #UD, #DF, #GP, #PF), the legacy PIT
// timer (32) and keyboard (33) IRQ lines, and the SYSCALL entry. Every
// other vector is left not-present, so firing one reaches #GP and, if that
// too is unhandled, #DF's dedicated IST stack.
var handledVectors = []struct {
	vec     int
	handler func()
	ist     uint8
}{
	{0, vec0, 0},
	{1, vec1, 0},
	{3, vec3, 0},
	{6, vec6, 0},
	{8, vec8, 1},
	{13, vec13, 0},
	{14, vec14, 0},
	{32, vec32, 0},
	{33, vec33, 0},
}

// dispatchTrampoline is the single Go-side entry every assembly stub
// calls into once it has finished pushing the full Frame onto the stack.
// It takes no arguments (and returns none) so the call itself needs no ABI
// coordination beyond a plain CALL: the assembly passes the frame address
// through framePtr instead.
var framePtr uintptr

//go:nosplit
func dispatchTrampoline() {
	Dispatch((*Frame)(unsafe.Pointer(framePtr)))
}

// kernelStackTop is set by Install and read by the SYSCALL entry stub
// (via MSRKernelGSBase) to find the stack to switch onto from ring 3.
var kernelStackTop uintptr

// Install builds the IDT, GDT and TSS for the handled-vector set above,
// loads them, and programs the SYSCALL/SYSRET MSRs. kstack is the top of
// the stack the core runs on once a trap is taken from ring 3.
func Install(kstack uintptr) {
	for _, h := range handledVectors {
		setGate(h.vec, funcPC(h.handler), h.ist)
	}
	setGate(syscallVec&0xff, funcPC(vecSyscall), 0)

	buildGDT()
	tss.rsp0 = uint64(kstack)
	tss.ist[0] = uint64(uintptr(unsafe.Pointer(&doubleFaultStack[len(doubleFaultStack)-1])))
	kernelStackTop = kstack

	cpu.LoadGDT(uintptr(unsafe.Pointer(&gdt)), uint16(unsafe.Sizeof(gdt)-1))
	cpu.LoadTSS(tssSel)

	base := uintptr(unsafe.Pointer(&idt[0]))
	cpu.LoadIDT(base, uint16(unsafe.Sizeof(idt)-1))

	installSyscallMSRs(kstack)
}

// installSyscallMSRs programs STAR (segment selectors for SYSCALL/SYSRET),
// LSTAR (entry point) and FMASK (flags cleared on entry, IF in particular
// so the trampoline runs with interrupts disabled until the frame is
// saved, per §4.4's ordering rule).
func installSyscallMSRs(kstack uintptr) {
	star := uint64(kernelCS)<<32 | uint64(userDS-8)<<48
	cpu.WriteMSR(cpu.MSRStar, star)
	cpu.WriteMSR(cpu.MSRLStar, uint64(funcPC(vecSyscall)))
	cpu.WriteMSR(cpu.MSRFMask, 0x200) // mask IF
	cpu.WriteMSR(cpu.MSRKernelGSBase, uint64(uintptr(unsafe.Pointer(&kernelStackTop))))
}

// RestoreContext resumes a saved frame via IRETQ, dropping to ring 3 when
// the frame's CS carries an RPL of 3. Used by kernel/sched to hand the CPU
// to a scheduled process and never returns.
func RestoreContext(f *Frame) {
	restoreContextAsm(f)
}

func restoreContextAsm(f *Frame)
