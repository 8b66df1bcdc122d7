package irq

import "sparkkernel/kernel/kfmt/early"

// Frame is the RISC-V Sv48 exception register-save record built on the
// kernel stack by the single trap entry handler in vectors_riscv64.s. X0
// (the hard-wired zero register) is never saved; X[0] here holds x1 (ra)
// so the index matches the conventional register number minus one.
type Frame struct {
	X      [31]uint64 // x1 (ra) .. x31
	Sepc   uint64
	Sstatus uint64
	Scause uint64
	Stval  uint64
}

// regIndex converts a conventional RISC-V register number (x1..x31) into
// this Frame's X slice index.
func regIndex(xn int) int { return xn - 1 }

// scauseInterruptBit is set in Scause when the trap is an interrupt
// rather than an exception (the MSB of the native-width register).
const scauseInterruptBit = uint64(1) << 63

// ecallFromUMode is the Scause exception code for an ECALL from U-mode.
const ecallFromUMode = 8

// PC returns the saved program counter (sepc).
func (f *Frame) PC() uintptr { return uintptr(f.Sepc) }

// SetPC overwrites the saved program counter.
func (f *Frame) SetPC(pc uintptr) { f.Sepc = uint64(pc) }

// SP returns the saved stack pointer (x2).
func (f *Frame) SP() uintptr { return uintptr(f.X[regIndex(2)]) }

// SetSP overwrites the saved stack pointer.
func (f *Frame) SetSP(sp uintptr) { f.X[regIndex(2)] = uint64(sp) }

// sppBit is sstatus.SPP: the privilege mode the trap was taken from (1 =
// S-mode, 0 = U-mode).
const sppBit = uint64(1) << 8

// IsUserMode reports whether the trapped context was running in U-mode.
func (f *Frame) IsUserMode() bool { return f.Sstatus&sppBit == 0 }

// SetUserMode clears SPP so sret drops to U-mode.
func (f *Frame) SetUserMode() { f.Sstatus &^= sppBit }

// FaultAddr returns the faulting virtual address (stval).
func (f *Frame) FaultAddr() uintptr { return uintptr(f.Stval) }

// Classify implements §4.4's abstract taxonomy for RISC-V: scause's MSB
// distinguishes an interrupt from a synchronous exception; the low bits
// give the cause code.
func (f *Frame) Classify() Cause {
	if f.Scause&scauseInterruptBit != 0 {
		return CauseAsyncInterrupt
	}
	if f.IsUserMode() {
		return CauseSyncUserFault
	}
	return CauseSyncKernelFault
}

// IsSupervisorCall reports whether this frame was raised by ECALL from
// U-mode.
func (f *Frame) IsSupervisorCall() bool {
	return f.Scause&scauseInterruptBit == 0 && f.Scause == ecallFromUMode
}

// InterruptID returns scause's cause code with the interrupt bit masked
// off.
func (f *Frame) InterruptID() uint64 { return f.Scause &^ scauseInterruptBit }

// ReqNamePtr returns the request-name pointer, passed in a0 (x10) per §6.
func (f *Frame) ReqNamePtr() uintptr { return uintptr(f.X[regIndex(10)]) }

// Arg returns syscall argument n (1-6), mapped to a1..a6 (x11..x16) per
// the RISC-V SBI/Linux ECALL convention (§6).
func (f *Frame) Arg(n int) uintptr {
	if n < 1 || n > 6 {
		return 0
	}
	return uintptr(f.X[regIndex(10+n)])
}

// SetResult places the kernel_request return value in a0 (x10).
func (f *Frame) SetResult(v uintptr) { f.X[regIndex(10)] = uint64(v) }

func dumpFrame(f *Frame) {
	early.Printf("irq: scause=%x sepc=%16x sstatus=%x stval=%16x\n",
		f.Scause, f.Sepc, f.Sstatus, f.Stval)
	early.Printf("irq: a0=%16x a1=%16x a2=%16x\n",
		f.X[regIndex(10)], f.X[regIndex(11)], f.X[regIndex(12)])
}
