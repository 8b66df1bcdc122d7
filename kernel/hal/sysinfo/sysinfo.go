// Package sysinfo decodes the bootloader-to-kernel handoff record: the
// firmware memory map, ACPI/FDT pointers and the kernel's own load layout.
// The record ("SysInfo", nicknamed "Ember") is a C-ABI struct filled by the
// UEFI loader and passed by value into the kernel's entrypoint; this
// package never writes back to it, only reads it, since its contents are
// owned by firmware-delivered memory that the kernel must never free.
package sysinfo

import (
	"unsafe"

	"sparkkernel/kernel/mem/ramtype"
	"sparkkernel/kernel/sortutil"
)

// RAMDescriptor mirrors the UEFI memory-descriptor layout. Its field order
// and widths are dictated by the firmware, not negotiable.
type RAMDescriptor struct {
	Type       ramtype.Type
	Reserved   uint32
	PhysStart  uint64
	VirtStart  uint64
	PageCount  uint64
	Attr       uint64
	_          uint64 // padding
}

// KernelInfo describes the kernel's own load layout as recorded by the
// bootloader: its bootloader-assigned physical base/size/entry, the range
// of its text segment (for W^X enforcement after relocation) and the range
// of its `.rela.dyn` relocation table.
type KernelInfo struct {
	Base    uintptr
	Size    uintptr
	Entry   uintptr
	TextPtr uintptr
	TextLen uintptr
	RelaPtr uintptr
	RelaLen uintptr
}

// SysInfo is the single C-ABI handoff record passed by value from the
// bootloader into the kernel's entrypoint.
type SysInfo struct {
	Kernel    KernelInfo
	StackBase uintptr
	LayoutPtr uintptr
	LayoutLen uintptr
	ACPIPtr   uintptr
	DTBPtr    uintptr
	DiskUUID  [16]byte
}

const page4KiB = 0x1000

// Handoff holds the pointer to the bootloader's SysInfo record. The rt0
// trampoline stashes it here, before calling into package main, from the
// register/stack slot the UEFI loader's calling convention places it in at
// kernel entry; nothing else may write it.
var Handoff *SysInfo

// RAMLayout returns the firmware memory-descriptor array as a slice backed
// directly by the firmware-delivered memory the bootloader pointed us at.
func (s *SysInfo) RAMLayout() []RAMDescriptor {
	return unsafe.Slice((*RAMDescriptor)(unsafe.Pointer(s.LayoutPtr)), s.LayoutLen)
}

// Init tags any memory-map descriptor that overlaps the kernel image or the
// memory-map array itself with the kernel-private Kernel/EfiRamLayout type,
// so the physical allocator's bootstrap sees them as already owned instead
// of as free Conventional memory.
func (s *SysInfo) Init() {
	kernelStart, kernelEnd := uint64(s.Kernel.Base), uint64(s.Kernel.Base+s.Kernel.Size)
	layoutStart := uint64(s.LayoutPtr)
	layoutEnd := layoutStart + uint64(s.LayoutLen)*uint64(unsafe.Sizeof(RAMDescriptor{}))

	layout := s.RAMLayout()
	for i := range layout {
		desc := &layout[i]
		descStart := desc.PhysStart
		descEnd := desc.PhysStart + desc.PageCount*page4KiB

		if kernelStart < descEnd && kernelEnd > descStart {
			desc.Type = ramtype.Kernel
		}
		if layoutStart < descEnd && layoutEnd > descStart {
			desc.Type = ramtype.EfiRamLayout
		}
	}
}

// LayoutTotal returns the highest physical address described by the memory
// map, i.e. the size of the address space the firmware told us about.
func (s *SysInfo) LayoutTotal() uintptr {
	layout := s.RAMLayout()
	var last RAMDescriptor
	for _, desc := range layout {
		if desc.PhysStart > last.PhysStart {
			last = desc
		}
	}
	return uintptr(last.PhysStart) + uintptr(last.PageCount)*page4KiB
}

// SortRAMLayoutByPageCount reorders the memory map by ascending page count
// using the heapless sort, the same order the physical allocator's first
// bootstrap pass sorts into before walking it from the end (largest
// Conventional block first).
func (s *SysInfo) SortRAMLayoutByPageCount() {
	sortutil.StableSort(s.RAMLayout(), func(a, b RAMDescriptor) bool {
		return a.PageCount < b.PageCount
	})
}

// SortRAMLayoutByPhysStart reorders the memory map by ascending physical
// start address, matching the physical allocator's second bootstrap pass.
func (s *SysInfo) SortRAMLayoutByPhysStart() {
	sortutil.StableSort(s.RAMLayout(), func(a, b RAMDescriptor) bool {
		return a.PhysStart < b.PhysStart
	})
}
