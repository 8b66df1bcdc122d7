// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator, replacing its sysReserve/sysMap/sysAlloc hooks
// with ones backed by the kernel's own physical allocator and page-table
// engine instead of a hosted OS's mmap.
package goruntime

import (
	"unsafe"

	"sparkkernel/kernel/glacier"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/mem/ramtype"
)

const page4KiB = 0x1000

// kernelGlacier is the active kernel address space. SetKernelGlacier wires
// it in once Kmain has activated the kernel's Glacier; sysReserve/sysMap/
// sysAlloc are unusable (and must not be called by the Go runtime) before
// that point, since the heap has no address space to grow into yet.
var kernelGlacier *glacier.Glacier

// SetKernelGlacier records the kernel address space the Go allocator's
// hooks map new heap pages into.
func SetKernelGlacier(g *glacier.Glacier) {
	kernelGlacier = g
}

// KernelGlacier returns the kernel address space recorded by
// SetKernelGlacier, so that code resuming after a stack/address-space
// pivot (kernel/reloc's jump) can recover it without a surviving local.
func KernelGlacier() *glacier.Glacier {
	return kernelGlacier
}

// heapVA is a bump allocator over the kernel's heap virtual-address window.
// It hands out disjoint VA ranges for sysReserve; the backing physical
// frames (and the mapping into those ranges) are established lazily by
// sysMap, exactly like a hosted OS's PROT_NONE-then-mprotect pattern.
var heapVA uintptr = heapBase

// heapBase is the canonical start of the kernel heap's VA window. It must
// sit above the relocated kernel image so heap growth never collides with
// kernel text/data.
const heapBase = 0xffff_9000_0000_0000

var (
	allocFn = pa.Default.Alloc
	mapFn   = mapRange
)

func mapRange(va, physAddr, size uintptr, flags glacier.Flag) {
	kernelGlacier.MapRange(va, physAddr, size, flags)
}

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	regionSize := alignUp(size, page4KiB)
	regionStart := heapVA
	heapVA += regionSize

	*reserved = true
	return unsafe.Pointer(regionStart)
}

// sysMap establishes a mapping for a region reserved previously via
// sysReserve, backing it with freshly allocated KernelData frames.
//
// This function replaces runtime.sysMap and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	regionStart := alignUp(uintptr(virtAddr), page4KiB)
	regionSize := alignUp(size, page4KiB)

	if ok := growHeap(regionStart, regionSize); !ok {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(regionStart)
}

// sysAlloc reserves a fresh VA range and backs it in one step.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := alignUp(size, page4KiB)
	regionStart := heapVA
	heapVA += regionSize

	if ok := growHeap(regionStart, regionSize); !ok {
		heapVA -= regionSize
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(regionStart)
}

// growHeap allocates regionSize bytes of fresh KernelData physical memory,
// splitting the request into smaller pieces (down to a single page) if the
// physical allocator cannot serve it as one contiguous block, then maps the
// whole region contiguously at regionStart with K_RWO.
func growHeap(regionStart, regionSize uintptr) bool {
	remaining := regionSize
	mappedSoFar := uintptr(0)

	for remaining > 0 {
		trySize := remaining
		var (
			frames pa.OwnedPtr
			ok     bool
		)
		for {
			frames, ok = allocFn(pa.NewAllocParams(trySize).AsType(ramtype.KernelData))
			if ok {
				break
			}
			if trySize <= page4KiB {
				return false
			}
			trySize /= 2
			trySize = alignUp(trySize, page4KiB)
		}

		mapFn(regionStart+mappedSoFar, frames.Addr(), frames.Size(), glacier.K_RWO)
		mappedSoFar += frames.Size()
		remaining -= frames.Size()
	}

	return true
}
