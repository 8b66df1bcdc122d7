package glacier

import (
	"testing"
	"unsafe"

	"sparkkernel/kernel/cpu"
	"sparkkernel/kernel/hal/sysinfo"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/mem/ramtype"
)

// backedPA returns a PA instance whose entire usable range is a real,
// page-aligned slab of host memory so mapping code can dereference the
// physical addresses it hands out.
func backedPA(t *testing.T, pageSize uintptr) *pa.PA {
	t.Helper()
	const slabPages = 64
	raw := make([]byte, slabPages*int(pageSize)+int(pageSize))
	start := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (start + pageSize - 1) &^ (pageSize - 1)

	p := &pa.PA{}
	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: uint64(aligned), PageCount: uint64(slabPages)},
	})
	return p
}

func TestMapPageAndGetPA(t *testing.T) {
	cfg := MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
	p := backedPA(t, cfg.PageSize)
	g := New(cfg, p, ramtype.KernelPageTable)

	target, ok := p.Alloc(pa.NewAllocParams(3 * cfg.PageSize).AsType(ramtype.KernelData))
	if !ok {
		t.Fatal("failed to allocate target pages")
	}

	va := target.Addr()
	g.MapPage(va, target.Addr(), K_RWO)
	g.MapPage(va+cfg.PageSize, target.Addr()+cfg.PageSize, K_RWO)

	gotPA, ok := g.GetPA(va + cfg.PageSize)
	if !ok {
		t.Fatal("expected mapping to be found")
	}
	if gotPA != target.Addr()+cfg.PageSize {
		t.Fatalf("got pa %#x, want %#x", gotPA, target.Addr()+cfg.PageSize)
	}

	if _, ok := g.GetPA(va + 4*cfg.PageSize); ok {
		t.Fatal("expected unmapped address to report not found")
	}
}

func TestMapRangeCoversEveryPage(t *testing.T) {
	cfg := MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
	p := backedPA(t, cfg.PageSize)
	g := New(cfg, p, ramtype.KernelPageTable)

	target, ok := p.Alloc(pa.NewAllocParams(3 * cfg.PageSize).AsType(ramtype.KernelData))
	if !ok {
		t.Fatal("failed to allocate target pages")
	}

	va := target.Addr()
	g.MapRange(va, target.Addr(), 3*cfg.PageSize, K_RWO)

	for i := uintptr(0); i < 3; i++ {
		got, ok := g.GetPA(va + i*cfg.PageSize)
		if !ok {
			t.Fatalf("page %d: expected mapped", i)
		}
		if want := target.Addr() + i*cfg.PageSize; got != want {
			t.Fatalf("page %d: got %#x, want %#x", i, got, want)
		}
	}
}

func TestUnmapPageClearsMapping(t *testing.T) {
	cfg := MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
	p := backedPA(t, cfg.PageSize)
	g := New(cfg, p, ramtype.KernelPageTable)

	var flushed []uintptr
	flushTLBEntryFn = func(va uintptr) { flushed = append(flushed, va) }
	defer func() { flushTLBEntryFn = cpu.FlushTLBEntry }()

	target, ok := p.Alloc(pa.NewAllocParams(cfg.PageSize).AsType(ramtype.KernelData))
	if !ok {
		t.Fatal("failed to allocate target page")
	}

	va := target.Addr()
	g.MapPage(va, target.Addr(), K_RWO)
	g.UnmapPage(va)

	if _, ok := g.GetPA(va); ok {
		t.Fatal("expected mapping to be cleared")
	}
	if len(flushed) != 1 || flushed[0] != va {
		t.Fatalf("expected a single flush of %#x, got %v", va, flushed)
	}
}

func TestActivateAndIsActive(t *testing.T) {
	cfg := MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
	p := backedPA(t, cfg.PageSize)
	g := New(cfg, p, ramtype.KernelPageTable)

	var loaded uintptr
	switchPDTFn = func(root uintptr) { loaded = root }
	activePDTFn = func() uintptr { return loaded }
	defer func() {
		switchPDTFn = cpu.SwitchPDT
		activePDTFn = cpu.ActivePDT
	}()

	if g.IsActive() {
		t.Fatal("expected not active before Activate")
	}

	g.Activate()

	if !g.IsActive() {
		t.Fatal("expected active after Activate")
	}
	if loaded != g.RootTable() {
		t.Fatalf("loaded root %#x != g.RootTable() %#x", loaded, g.RootTable())
	}
}
