package cpu

// RRelative is the ELF relocation type this architecture uses to encode
// base-relative relocations (R_RISCV_RELATIVE).
const RRelative = 3

// EnableInterrupts sets sstatus.SIE.
func EnableInterrupts()

// DisableInterrupts clears sstatus.SIE.
func DisableInterrupts()

// Halt issues WFI in a loop, parking the hart until the next interrupt.
func Halt()

// FlushTLBEntry issues SFENCE.VMA for a single virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT writes the Sv48 satp value (mode 9) for the given root table
// physical address and issues SFENCE.VMA to make the new mappings visible.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the page table currently
// referenced by satp.
func ActivePDT() uintptr

// ReadStackPointer returns the current value of the stack pointer (x2/sp).
func ReadStackPointer() uintptr

// SerialPutChar writes a single byte to the NS16550-compatible UART0 at its
// fixed MMIO base (0x1000_0000), blocking while the transmit holding
// register is not empty.
func SerialPutChar(b byte)

// MMUCfg describes the page-table geometry in effect for the active address
// space: page size, usable virtual/physical address widths and the number
// of page-table levels needed to reach a leaf from the root.
type MMUCfg struct {
	PageSize uintptr
	VABits   uint
	PABits   uint
	Levels   uint
}

// Detect returns the fixed Sv48 MMU configuration: 4 KiB pages, 48-bit
// virtual addresses, 56-bit physical addresses, 4 page-table levels, satp
// mode 9.
func Detect() MMUCfg {
	return MMUCfg{PageSize: 4096, VABits: 48, PABits: 56, Levels: 4}
}

// SatpMode is the Sv48 value of the satp.MODE field.
const SatpMode = 9

// SetStackPointer pivots sp (x2) to newSP. Used by the relocation
// sequence (step 7) to move onto the freshly allocated kernel stack.
func SetStackPointer(newSP uintptr)

// ReadSscratch returns the value last written by WriteSscratch. The trap
// entry stub uses sscratch to stash the kernel stack top, swapping it
// with the interrupted sp on entry from U-mode.
func ReadSscratch() uintptr

// WriteSscratch sets sscratch to v.
func WriteSscratch(v uintptr)

// WriteStvec installs the trap vector base address into stvec (direct
// mode: all traps enter at the same address).
func WriteStvec(base uintptr)
