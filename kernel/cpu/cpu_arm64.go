package cpu

// RRelative is the ELF relocation type this architecture uses to encode
// base-relative relocations (R_AARCH64_RELATIVE).
const RRelative = 1027

// EnableInterrupts unmasks IRQs (clears PSTATE.I).
func EnableInterrupts()

// DisableInterrupts masks IRQs (sets PSTATE.I).
func DisableInterrupts()

// Halt issues WFI in a loop, parking the core until the next interrupt.
func Halt()

// FlushTLBEntry invalidates the TLB entry for a virtual address in the
// current address space (TLBI VAE1IS) and issues the required barriers.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT writes the physical address of the root translation table into
// TTBR0_EL1 and performs the barrier/TLB-invalidate/ISB sequence required
// before the new mappings are visible to instruction fetch.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently loaded in TTBR0_EL1.
func ActivePDT() uintptr

// ReadStackPointer returns the current value of SP.
func ReadStackPointer() uintptr

// SerialPutChar writes a single byte to the PL011 UART at its fixed MMIO
// base (0x0900_0000), blocking while the transmit FIFO is full.
func SerialPutChar(b byte)

// SetStackPointer pivots SP to newSP. Used by the relocation sequence
// (step 7) to move onto the freshly allocated kernel stack.
func SetStackPointer(newSP uintptr)

// ReadFAR_EL1 returns the faulting virtual address latched by the last
// synchronous data/instruction abort.
func ReadFAR_EL1() uintptr

// WriteTPIDR_EL1 stashes a per-CPU value (this kernel uses it to hold the
// kernel-stack top, read back by the exception vector stubs so a trap
// taken from EL0 can switch onto a known-good stack).
func WriteTPIDR_EL1(v uintptr)

// ReadTPIDR_EL1 returns the per-CPU value last written by WriteTPIDR_EL1.
func ReadTPIDR_EL1() uintptr

// LoadVBAR_EL1 installs the 2 KiB-aligned base of the exception vector
// table into VBAR_EL1.
func LoadVBAR_EL1(base uintptr)

// readTCR_EL1 returns the raw contents of TCR_EL1.
func readTCR_EL1() uint64

// readID_AA64MMFR0_EL1 returns the raw contents of ID_AA64MMFR0_EL1.
func readID_AA64MMFR0_EL1() uint64

// MMUCfg describes the page-table geometry in effect for the active address
// space: page size, usable virtual/physical address widths and the number
// of page-table levels needed to reach a leaf from the root.
type MMUCfg struct {
	PageSize uintptr
	VABits   uint
	PABits   uint
	Levels   uint
}

// paRangeBits maps ID_AA64MMFR0_EL1.PARange (a 4-bit field, values 0-15)
// to its usable physical-address width. Only 0-6 are architecturally
// defined; every reserved encoding (7-15) falls back to 48, matching
// original_source/kernel/src/arch/aarch64/rvm.rs's `_ => 48` catch-all.
var paRangeBits = [16]uint{
	32, 36, 40, 42, 44, 48, 52, 48,
	48, 48, 48, 48, 48, 48, 48, 48,
}

// Detect reads TCR_EL1 and ID_AA64MMFR0_EL1 to determine the granule size,
// the number of usable VA bits (from T0SZ) and the number of usable PA bits
// (from PARange), then derives the page-table level count from those.
func Detect() MMUCfg {
	tcr := readTCR_EL1()
	t0sz := uint(tcr & 0x3f)
	vaBits := 64 - t0sz

	var pageSize uintptr
	switch (tcr >> 14) & 0x3 {
	case 0b00:
		pageSize = 4096
	case 0b01:
		pageSize = 65536
	case 0b10:
		pageSize = 16384
	default:
		pageSize = 4096
	}

	mmfr0 := readID_AA64MMFR0_EL1()
	paBits := paRangeBits[mmfr0&0xf]

	shift := uint(0)
	for s := pageSize; s > 1; s >>= 1 {
		shift++
	}
	indexBits := shift - 3
	levels := uint(0)
	remaining := vaBits - 1
	for remaining > shift {
		remaining -= indexBits
		levels++
	}

	return MMUCfg{PageSize: pageSize, VABits: vaBits, PABits: paBits, Levels: levels}
}
