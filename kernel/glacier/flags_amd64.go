package glacier

// amd64 PTE bit layout, ported from original_source/kernel/src/arch/amd64/
// mmu.rs: Valid is the Present bit, write is R/W, user is U/S, accessed is
// the AF bit, attrDevice is PCD (cache-disable, used for device memory),
// and noExec is the NX bit — amd64 pages are executable unless NX is set,
// so the no-exec profiles set it explicitly rather than an absent Exec bit.
const (
	Valid      Flag = 1 << 0
	write      Flag = 1 << 1
	user       Flag = 1 << 2
	attrDevice Flag = 1 << 4
	accessed   Flag = 1 << 5
	noExec     Flag = 1 << 63
)

const (
	K_ROO = Valid | accessed | noExec
	K_RWO = Valid | write | accessed | noExec
	K_ROX = Valid | accessed
	K_RWX = Valid | write | accessed

	U_ROO = K_ROO | user
	U_RWO = K_RWO | user
	U_ROX = K_ROX | user
	U_RWX = K_RWX | user

	D_RO = Valid | accessed | attrDevice | noExec
	D_RW = Valid | write | accessed | attrDevice | noExec

	// tableDesc is an intermediate (non-leaf) descriptor: present and
	// writable, matching the original's TABLE_DESC = 0x03.
	tableDesc = Valid | write
)

// entryHighMask covers the bits beyond the page offset that a descriptor's
// address field must have cleared before use as a physical address.
const entryHighMask = uintptr(noExec)
