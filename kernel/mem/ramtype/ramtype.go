// Package ramtype enumerates the physical-region type tags shared by the
// firmware memory map, the physical allocator and the page-table engine.
package ramtype

// Type is an opaque 32-bit tag identifying the owner/kind of a physical
// range. The low values mirror the UEFI memory-descriptor type field so a
// firmware-supplied map can be ingested without translation; values above
// Max are kernel-private tags assigned after boot.
type Type uint32

const (
	Reserved Type = iota
	LoaderCode
	LoaderData
	BootServicesCode
	BootServicesData
	RuntimeServicesCode
	RuntimeServicesData
	Conventional
	Unusable
	ACPIReclaim
	ACPINonVolatile
	MMIO
	MMIOPortSpace
	PALCode
	PersistentRAM
	Unaccepted
	Max
)

// Kernel-private tags assigned once the kernel owns the range they describe.
// Chosen far outside [0, Max) so they can never collide with a firmware-
// reported type.
const (
	KernelData      Type = 0x44415441
	EfiRamLayout    Type = 0x524c594f
	KernelPageTable Type = 0x766d6170
	UserPageTable   Type = 0x75767470
	Kernel          Type = 0xffffffff
)

// NonRAM reports whether ty designates a range the physical allocator must
// never serve allocations from or into, regardless of the caller's `used`
// request.
func NonRAM(ty Type) bool {
	switch ty {
	case Reserved, MMIO, MMIOPortSpace:
		return true
	default:
		return false
	}
}

// String returns a short human-readable label, used by PA.Dump and boot-time
// memory-map logging.
func (t Type) String() string {
	switch t {
	case Reserved:
		return "reserved"
	case LoaderCode:
		return "loader-code"
	case LoaderData:
		return "loader-data"
	case BootServicesCode:
		return "boot-services-code"
	case BootServicesData:
		return "boot-services-data"
	case RuntimeServicesCode:
		return "runtime-services-code"
	case RuntimeServicesData:
		return "runtime-services-data"
	case Conventional:
		return "conventional"
	case Unusable:
		return "unusable"
	case ACPIReclaim:
		return "acpi-reclaim"
	case ACPINonVolatile:
		return "acpi-nvs"
	case MMIO:
		return "mmio"
	case MMIOPortSpace:
		return "mmio-port-space"
	case PALCode:
		return "pal-code"
	case PersistentRAM:
		return "persistent-ram"
	case Unaccepted:
		return "unaccepted"
	case KernelData:
		return "kernel-data"
	case EfiRamLayout:
		return "efi-ram-layout"
	case KernelPageTable:
		return "kernel-page-table"
	case UserPageTable:
		return "user-page-table"
	case Kernel:
		return "kernel"
	default:
		return "unknown"
	}
}
