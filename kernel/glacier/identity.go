package glacier

import (
	"sparkkernel/kernel/hal/sysinfo"
	"sparkkernel/kernel/mem/ramtype"
)

// ProfileFor returns the default leaf-flag profile for a firmware memory
// type, per the flag-profile selector table: Conventional/boot- and
// runtime-services/Kernel ranges get the default (rwx, normal-memory)
// profile; KernelData and page-table ranges get no-exec; MMIO gets the
// device (no-exec, device-memory) profile; everything else defaults to
// no-exec.
func ProfileFor(ty ramtype.Type) Flag {
	switch ty {
	case ramtype.Conventional, ramtype.BootServicesCode, ramtype.BootServicesData,
		ramtype.RuntimeServicesCode, ramtype.RuntimeServicesData, ramtype.Kernel:
		return K_RWX
	case ramtype.MMIO:
		return D_RW
	case ramtype.KernelData, ramtype.KernelPageTable, ramtype.UserPageTable:
		return K_RWO
	default:
		return K_RWO
	}
}

// deviceWindow is a fixed MMIO range identity-mapped regardless of whether
// the firmware memory map mentions it.
type deviceWindow struct {
	base, size uintptr
}

// DeviceWindows returns the architecture's fixed device MMIO ranges that
// must be identity-mapped even though they never appear as firmware memory
// descriptors (UART, interrupt controller, timer).
func DeviceWindows() []deviceWindow {
	return archDeviceWindows
}

// IdentityMap maps every descriptor in the firmware memory map to itself
// (va == pa) using the permission profile selected by its type, then maps
// the architecture's fixed device windows with the device profile.
func (g *Glacier) IdentityMap(layout []sysinfo.RAMDescriptor) {
	for _, desc := range layout {
		size := uintptr(desc.PageCount) * g.cfg.PageSize
		addr := uintptr(desc.PhysStart)
		g.MapRange(addr, addr, size, ProfileFor(desc.Type))
	}

	for _, win := range archDeviceWindows {
		g.MapRange(win.base, win.base, win.size, D_RW)
	}
}
