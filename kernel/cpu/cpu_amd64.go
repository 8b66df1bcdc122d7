package cpu

import cpufeature "golang.org/x/sys/cpu"

// RRelative is the ELF relocation type this architecture uses to encode
// base-relative relocations (R_X86_64_RELATIVE).
const RRelative = 8

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadStackPointer returns the current value of the stack pointer register.
// Used by the relocation sequence to record the old stack pointer whose
// region it scrubs after pivoting onto the new stack.
func ReadStackPointer() uintptr

// SerialPutChar writes a single byte to the fixed-MMIO 16550 UART at COM1
// (0x3f8), blocking until the transmit holding register is empty.
func SerialPutChar(b byte)

// SetStackPointer pivots RSP to newSP. Used by the relocation sequence
// (step 7) to move off the bootloader-provided stack onto the freshly
// allocated kernel stack.
func SetStackPointer(newSP uintptr)

// ReadCR2 returns the faulting virtual address recorded by the last page
// fault. Read by the irq package when building a page-fault exception
// frame, since amd64 does not push the fault address as part of the
// interrupt stack frame.
func ReadCR2() uintptr

// WriteMSR writes value into the model-specific register named by msr.
// Used to program STAR/LSTAR/FMASK for SYSCALL/SYSRET and to point
// IA32_KERNEL_GS_BASE at the kernel-stack-top word the SYSCALL entry stub
// reads after SWAPGS.
func WriteMSR(msr uint32, value uint64)

// ReadMSR returns the current value of the model-specific register named
// by msr.
func ReadMSR(msr uint32) uint64

// LoadIDT installs the interrupt descriptor table described by (base,
// limit) into IDTR.
func LoadIDT(base uintptr, limit uint16)

// LoadGDT installs the global descriptor table described by (base, limit)
// into GDTR and reloads the segment registers from the kernel data/code
// selectors that follow immediately after the null descriptor.
func LoadGDT(base uintptr, limit uint16)

// LoadTSS loads the task register with the GDT selector of the task state
// segment, so a ring-3-to-ring-0 transition through any interrupt vector
// switches onto rsp0 of that TSS.
func LoadTSS(selector uint16)

// Model-specific register numbers used to program SYSCALL/SYSRET.
const (
	MSRStar         = 0xC0000081
	MSRLStar        = 0xC0000082
	MSRFMask        = 0xC0000084
	MSRGSBase       = 0xC0000101
	MSRKernelGSBase = 0xC0000102
)

// MMUCfg describes the page-table geometry in effect for the active address
// space: page size, usable virtual/physical address widths and the number
// of page-table levels needed to reach a leaf from the root.
type MMUCfg struct {
	PageSize uintptr
	VABits   uint
	PABits   uint
	Levels   uint
}

// Detect returns the fixed x86-64 MMU configuration: 4 KiB pages, 48-bit
// virtual addresses, 52-bit physical addresses, 4 page-table levels. Unlike
// AArch64, x86-64 paging geometry is not discovered from CPU registers; it
// is a fixed property of 4-level (non-5-level) paging.
func Detect() MMUCfg {
	return MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
}

// HasHardwareRNG reports whether the running CPU exposes both RDRAND and
// RDSEED, the on-chip random number generators. No code in this kernel
// calls it.
func HasHardwareRNG() bool {
	return cpufeature.X86.HasRDRAND && cpufeature.X86.HasRDSEED
}
