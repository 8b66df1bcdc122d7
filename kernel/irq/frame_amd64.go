package irq

import (
	"unsafe"

	"golang.org/x/arch/x86/x86asm"

	"sparkkernel/kernel/cpu"
	"sparkkernel/kernel/kfmt/early"
)

// Frame is the x86-64 exception/interrupt register-save record built on
// the kernel stack by the shared assembly trampoline (vectors_amd64.s)
// before Dispatch ever runs. Field order mirrors the order isrCommon
// pushes registers in, low address to high, so the assembly can be kept a
// straight sequence of pushes with no per-field offset arithmetic; Go just
// overlays this struct on top of that memory.
type Frame struct {
	XMM   [16][2]uint64
	MXCSR uint64 // only the low 32 bits are meaningful; kept 8-byte wide for alignment

	R15, R14, R13, R12 uint64
	R11, R10, R9, R8   uint64
	RBP, RDI, RSI      uint64
	RDX, RCX, RBX, RAX uint64

	Vec, Err uint64

	// Pushed by the CPU itself on any trap, present on every frame.
	RIP, CS, RFlags, RSP, SS uint64
}

// syscallVec is the synthetic vector number the SYSCALL trampoline pushes
// before falling into the shared isrCommon sequence. It is also the IDT
// slot Install gates to the same stub, so a software INT 0x80 and a
// SYSCALL entry reach Dispatch with the same vector number.
const syscallVec = 0x80

// doubleFaultVec is the IDT vector for #DF, routed through the IST
// mechanism onto a dedicated stack so a double fault caused by a
// corrupted kernel stack can still reach the halt loop.
const doubleFaultVec = 8

const pageFaultVec = 14

// userModeSelector is the low two bits ("RPL") set on CS when the trapped
// context was running in ring 3.
const userModeSelector = 0x3

// PC returns the saved program counter.
func (f *Frame) PC() uintptr { return uintptr(f.RIP) }

// SetPC overwrites the saved program counter.
func (f *Frame) SetPC(pc uintptr) { f.RIP = uint64(pc) }

// SP returns the saved (user or kernel) stack pointer.
func (f *Frame) SP() uintptr { return uintptr(f.RSP) }

// SetSP overwrites the saved stack pointer.
func (f *Frame) SetSP(sp uintptr) { f.RSP = uint64(sp) }

// IsUserMode reports whether the trapped context was running in ring 3.
func (f *Frame) IsUserMode() bool { return f.CS&userModeSelector != 0 }

// SetUserMode configures CS/SS for a return to ring 3 via IRETQ/SYSRET.
// Used by kernel/proc when preparing a freshly loaded process's initial
// frame.
func (f *Frame) SetUserMode() {
	f.CS = 0x23 // user code64, RPL 3
	f.SS = 0x1b // user data, RPL 3
	f.RFlags = 0x202 // IF set, reserved bit 1 set
}

// FaultAddr returns the faulting virtual address for a page fault (read
// from CR2, since amd64 does not push it as part of the trap frame).
func (f *Frame) FaultAddr() uintptr {
	if f.Vec != pageFaultVec {
		return 0
	}
	return cpu.ReadCR2()
}

// Classify implements §4.4's abstract taxonomy for x86-64.
func (f *Frame) Classify() Cause {
	switch {
	case f.Vec == doubleFaultVec:
		return CauseDoubleFault
	case f.Vec < 32:
		if f.IsUserMode() {
			return CauseSyncUserFault
		}
		return CauseSyncKernelFault
	case f.Vec == syscallVec:
		return CauseSyncUserFault
	default:
		return CauseAsyncInterrupt
	}
}

// IsSupervisorCall reports whether this frame was raised by SYSCALL.
func (f *Frame) IsSupervisorCall() bool { return f.Vec == syscallVec }

// InterruptID maps an IDT vector in the IRQ range (32-255) down to the
// abstract 0-based interrupt ID the irq package's dispatch table uses.
// Vector 32 (the legacy PIT/APIC timer line) becomes TimerInterruptID.
func (f *Frame) InterruptID() uint64 { return f.Vec - 32 }

// ReqNamePtr returns the request-name pointer, passed in RAX per the
// SYSCALL ABI (§6).
func (f *Frame) ReqNamePtr() uintptr { return uintptr(f.RAX) }

// Arg returns syscall argument n (1-6), mapped to RDI, RSI, RDX, R10, R8,
// R9 per §6's x86-64 ABI (R10 takes RCX's usual slot since SYSCALL
// clobbers RCX with the return address).
func (f *Frame) Arg(n int) uintptr {
	switch n {
	case 1:
		return uintptr(f.RDI)
	case 2:
		return uintptr(f.RSI)
	case 3:
		return uintptr(f.RDX)
	case 4:
		return uintptr(f.R10)
	case 5:
		return uintptr(f.R8)
	case 6:
		return uintptr(f.R9)
	default:
		return 0
	}
}

// SetResult places the kernel_request return value in RAX, the
// architecture-appropriate result register on SYSRET.
func (f *Frame) SetResult(v uintptr) { f.RAX = uint64(v) }

// dumpFrame prints the cause, faulting address, general-purpose
// registers, and — uniquely on amd64, via the x86asm decoder — the
// disassembly of the faulting instruction, mirroring a real oops dump.
func dumpFrame(f *Frame) {
	early.Printf("irq: vector=%d err=%x rip=%16x cs=%x rflags=%x\n",
		f.Vec, f.Err, f.RIP, f.CS, f.RFlags)
	early.Printf("irq: rax=%16x rbx=%16x rcx=%16x rdx=%16x\n", f.RAX, f.RBX, f.RCX, f.RDX)
	early.Printf("irq: rsi=%16x rdi=%16x rbp=%16x rsp=%16x\n", f.RSI, f.RDI, f.RBP, f.RSP)
	if f.Vec == pageFaultVec {
		early.Printf("irq: faulting address=%16x\n", cpu.ReadCR2())
	}

	code := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(f.RIP))), 16)
	if inst, err := x86asm.Decode(code, 64); err == nil {
		early.Printf("irq: faulting instruction: %s\n", inst.String())
	}
}
