package pa

import (
	"runtime"
	"testing"
	"unsafe"

	"sparkkernel/kernel/hal/sysinfo"
	"sparkkernel/kernel/mem/ramtype"
)

func freshPA() *PA {
	return &PA{}
}

func TestInitTwoPassBootstrap(t *testing.T) {
	p := freshPA()
	layout := []sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: 0x100000, PageCount: 16},
		{Type: ramtype.Conventional, PhysStart: 0x200000, PageCount: 32},
		{Type: ramtype.BootServicesCode, PhysStart: 0x300000, PageCount: 4},
	}
	p.Init(layout)

	if got := p.Available(); got != 48*page4KiB {
		t.Fatalf("available = %#x, want %#x", got, 48*page4KiB)
	}
	if got := p.Total(); got != 52*page4KiB {
		t.Fatalf("total = %#x, want %#x", got, 52*page4KiB)
	}

	if !p.initDone {
		t.Fatal("expected initDone")
	}
}

func TestInitIsIdempotent(t *testing.T) {
	p := freshPA()
	layout := []sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: 0x0, PageCount: 16},
	}
	p.Init(layout)
	first := p.Available()

	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: 0x500000, PageCount: 999},
	})

	if got := p.Available(); got != first {
		t.Fatalf("second Init mutated state: got %#x, want %#x", got, first)
	}
}

func TestAllocAndFreeRoundTrip(t *testing.T) {
	p := freshPA()
	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: 0x0, PageCount: 16},
	})

	before := p.Available()

	ptr, ok := p.Alloc(NewAllocParams(4 * page4KiB).AsType(ramtype.KernelData))
	if !ok {
		t.Fatal("alloc failed")
	}
	if ptr.Size() != 4*page4KiB {
		t.Fatalf("size = %#x, want %#x", ptr.Size(), 4*page4KiB)
	}
	if got := p.Available(); got != before-4*page4KiB {
		t.Fatalf("available after alloc = %#x, want %#x", got, before-4*page4KiB)
	}

	p.Free(ptr)
	if got := p.Available(); got != before {
		t.Fatalf("available after free = %#x, want %#x (not fully reclaimed)", got, before)
	}
}

func TestAllocFromNonRAMRejected(t *testing.T) {
	p := freshPA()
	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.MMIO, PhysStart: 0x0, PageCount: 16},
	})

	_, ok := p.Alloc(NewAllocParams(page4KiB).FromType(ramtype.MMIO).Reserve())
	if ok {
		t.Fatal("expected alloc from MMIO to fail regardless of used=false")
	}
}

func TestAllocExhaustion(t *testing.T) {
	p := freshPA()
	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: 0x0, PageCount: 4},
	})

	_, ok := p.Alloc(NewAllocParams(64 * page4KiB))
	if ok {
		t.Fatal("expected allocation beyond available memory to fail")
	}
}

func TestAddCoalescesAdjacentBlocks(t *testing.T) {
	p := freshPA()
	p.add(0x0, page4KiB, ramtype.Conventional, false)
	p.add(page4KiB, page4KiB, ramtype.Conventional, false)

	if got := p.count(); got != 1 {
		t.Fatalf("expected coalesced single block, got %d blocks", got)
	}
	if got := p.Available(); got != 2*page4KiB {
		t.Fatalf("available = %#x, want %#x", got, 2*page4KiB)
	}
}

func TestExpandMigratesOffEmbeddedArray(t *testing.T) {
	p := freshPA()
	// expand writes the new block array through the physical address it
	// allocates, so the Conventional range must be real host memory.
	raw := make([]byte, 65*page4KiB)
	base := (uintptr(unsafe.Pointer(&raw[0])) + page4KiB - 1) &^ (page4KiB - 1)
	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: uint64(base), PageCount: 64},
	})

	embeddedAddr := uintptr(0)
	_ = embeddedAddr

	for i := 0; i < baseBlockCount*3; i++ {
		addr := uintptr(i * 2 * page4KiB)
		p.add(addr, page4KiB, ramtype.KernelData, true)
	}

	if p.max <= baseBlockCount {
		t.Fatalf("expected array to have grown past %d, max=%d", baseBlockCount, p.max)
	}
	runtime.KeepAlive(raw)
}

func TestFindFreeRAMDoesNotMutate(t *testing.T) {
	p := freshPA()
	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: 0x0, PageCount: 16},
	})

	before := p.Available()
	_, ok := p.FindFreeRAM(NewAllocParams(4 * page4KiB))
	if !ok {
		t.Fatal("expected to find free ram")
	}
	if got := p.Available(); got != before {
		t.Fatalf("FindFreeRAM must not mutate state: got %#x, want %#x", got, before)
	}
}
