package glacier

// AArch64 stage-1 descriptor bit layout, ported verbatim (as literal bit
// patterns, not re-derived) from original_source/kernel/src/arch/aarch64/
// rvm.rs's flags module: bit 1 is the table/page descriptor bit (the same
// bit means "next-level table" at an intermediate level and "page" at the
// last level — disambiguated by tree depth, never by inspecting the bit),
// bits 9:8 are a fixed inner-shareable SH encoding, bit 10 is AF (the
// access flag; this walker never enables hardware AF management, so every
// descriptor must set it or the first access faults), bits 7:6 are
// AP[2:1] (bit7 = read-only, bit6 = EL0-accessible), bit 2 selects the
// device MAIR index, and bits 54:53 are UXN/PXN (execute-never at EL0 and
// EL1 respectively; both are set together since this core has no use for
// splitting them).
const (
	Valid Flag = 0b1
	// next is an intermediate (non-leaf) descriptor: valid, table/page bit,
	// AF — matches rvm.rs's NEXT constant.
	next Flag = 0b100_0000_0011

	K_ROO Flag = 0b111_1000_0011 | 0b11<<53
	K_RWO Flag = 0b111_0000_0011 | 0b11<<53
	K_ROX Flag = 0b111_1000_0011
	K_RWX Flag = 0b111_0000_0011

	D_RO Flag = 0b100_1000_0111 | 0b11<<53
	D_RW Flag = 0b100_0000_0111 | 0b11<<53

	U_ROO Flag = 0b111_1100_0011 | 0b11<<53
	U_RWO Flag = 0b111_0100_0011 | 0b11<<53
	U_ROX Flag = 0b111_1100_0011
	U_RWX Flag = 0b111_0100_0011

	tableDesc = next
)

// entryHighMask clears the UXN/PXN bits so a leaf descriptor's address
// field can be recovered as a clean physical address.
const entryHighMask = uintptr(0b11 << 53)
