package glacier

// RISC-V Sv48 PTE bit layout, ported from original_source/kernel/src/arch/
// riscv64/mmu.rs: V/R/W/X/U/G/A/D are each a dedicated single bit and the
// memory-attribute bit sits at bit 8, all below the page offset. A PTE
// with V=1 and R=W=X=0 is a pointer to the next-level table; any of R/W/X
// set marks it a leaf, which is why tableDesc here is Valid alone rather
// than a dedicated "next" bit like the other two backends.
const (
	Valid      Flag = 1 << 0
	read       Flag = 1 << 1
	write      Flag = 1 << 2
	exec       Flag = 1 << 3
	user       Flag = 1 << 4
	accessed   Flag = 1 << 6
	attrDevice Flag = 1 << 8
)

const (
	K_ROO = Valid | read | accessed
	K_RWO = Valid | read | write | accessed
	K_ROX = Valid | read | exec | accessed
	K_RWX = Valid | read | write | exec | accessed

	U_ROO = K_ROO | user
	U_RWO = K_RWO | user
	U_ROX = K_ROX | user
	U_RWX = K_RWX | user

	D_RO = Valid | read | accessed | attrDevice
	D_RW = Valid | read | write | accessed | attrDevice

	tableDesc = Valid
)

// entryHighMask is zero: every flag bit here sits below any supported page
// size's offset, so the generic page-offset mask already recovers a clean
// physical address.
const entryHighMask = uintptr(0)
