package sysinfo

import (
	"testing"
	"unsafe"

	"sparkkernel/kernel/mem/ramtype"
)

func TestInitTagsKernelAndLayoutRanges(t *testing.T) {
	layout := []RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: 0x0, PageCount: 16},     // 0x0 - 0x10000
		{Type: ramtype.Conventional, PhysStart: 0x10000, PageCount: 16}, // overlaps kernel
		{Type: ramtype.Conventional, PhysStart: 0x20000, PageCount: 16}, // moved onto the layout array below
		{Type: ramtype.Conventional, PhysStart: 0x30000, PageCount: 16}, // untouched
	}

	s := &SysInfo{
		Kernel: KernelInfo{Base: 0x10000, Size: 0x8000},
		LayoutPtr: uintptr(unsafe.Pointer(&layout[0])),
		LayoutLen: uintptr(len(layout)),
	}
	s.Kernel.Base = 0x10000
	s.Kernel.Size = 0x8000

	// Point the third descriptor at the page holding the layout array, so
	// the layout array itself is reported as overlapping index 2.
	layout[2].PhysStart = uint64(uintptr(unsafe.Pointer(&layout[0]))) &^ (page4KiB - 1)
	s.LayoutPtr = uintptr(unsafe.Pointer(&layout[0]))
	s.LayoutLen = uintptr(len(layout))

	s.Init()

	if layout[0].Type != ramtype.Conventional {
		t.Fatalf("index 0 should be untouched, got %v", layout[0].Type)
	}
	if layout[1].Type != ramtype.Kernel {
		t.Fatalf("index 1 should be tagged Kernel, got %v", layout[1].Type)
	}
	if layout[2].Type != ramtype.EfiRamLayout {
		t.Fatalf("index 2 should be tagged EfiRamLayout, got %v", layout[2].Type)
	}
	if layout[3].Type != ramtype.Conventional {
		t.Fatalf("index 3 should be untouched, got %v", layout[3].Type)
	}
}

func TestLayoutTotal(t *testing.T) {
	layout := []RAMDescriptor{
		{PhysStart: 0x0, PageCount: 16},
		{PhysStart: 0x100000, PageCount: 256},
	}
	s := &SysInfo{LayoutPtr: uintptr(unsafe.Pointer(&layout[0])), LayoutLen: uintptr(len(layout))}

	want := uintptr(0x100000 + 256*page4KiB)
	if got := s.LayoutTotal(); got != want {
		t.Fatalf("got %#x, want %#x", got, want)
	}
}

func TestSortRAMLayoutByPageCount(t *testing.T) {
	layout := []RAMDescriptor{
		{PageCount: 3}, {PageCount: 1}, {PageCount: 2},
	}
	s := &SysInfo{LayoutPtr: uintptr(unsafe.Pointer(&layout[0])), LayoutLen: uintptr(len(layout))}
	s.SortRAMLayoutByPageCount()

	for i, want := range []uint64{1, 2, 3} {
		if layout[i].PageCount != want {
			t.Fatalf("index %d: got %d, want %d", i, layout[i].PageCount, want)
		}
	}
}
