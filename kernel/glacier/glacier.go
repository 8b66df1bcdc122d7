// Package glacier implements the kernel's virtual memory engine: it builds
// and walks a single page-table tree per address space, allocating
// intermediate tables from the physical allocator on demand.
package glacier

import (
	"unsafe"

	"sparkkernel/kernel/cpu"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/mem/ramtype"
	"sparkkernel/kernel/sync"
)

// MMUCfg describes the page-table geometry in effect for an address space.
// The concrete values come from the architecture shim's Detect, which reads
// either fixed constants (x86-64, RISC-V) or CPU registers (AArch64).
type MMUCfg = cpu.MMUCfg

func shift(cfg MMUCfg) uint {
	s := uint(0)
	for sz := cfg.PageSize; sz > 1; sz >>= 1 {
		s++
	}
	return s
}

func indexBits(cfg MMUCfg) uint {
	return shift(cfg) - 3 // log2(word_size) for a 64-bit entry
}

func entriesPerTable(cfg MMUCfg) uintptr {
	return 1 << indexBits(cfg)
}

func tableSize(cfg MMUCfg) uintptr {
	return entriesPerTable(cfg) * 8
}

// levels computes the number of page-table walks needed to reach a leaf:
// starting at va_bits-1, peel index_bits per level while the bit is still
// at or above the page shift.
func levels(cfg MMUCfg) uint {
	ib := indexBits(cfg)
	ps := shift(cfg)
	n := uint(0)
	bit := cfg.VABits - 1
	for bit >= ps {
		n++
		if bit < ib {
			break
		}
		bit -= ib
	}
	return n
}

func index(cfg MMUCfg, level uint, va uintptr) uintptr {
	ib := indexBits(cfg)
	ps := shift(cfg)
	lv := levels(cfg)
	sh := ps + (lv-level-1)*ib
	return (va >> sh) & (entriesPerTable(cfg) - 1)
}

// Glacier owns one page-table tree. A kernel address space uses
// KernelPageTable-tagged tables; a process address space (see kernel/proc)
// uses UserPageTable-tagged tables so the two are never confused by PA.
type Glacier struct {
	lock sync.IRQLock

	cfg        MMUCfg
	rootTable  uintptr
	tableType  ramtype.Type
	allocator  *pa.PA
	init       bool
}

// New returns a Glacier configured for cfg, allocating its tables from
// alloc and tagging them with tableType (KernelPageTable or
// UserPageTable). The root table is allocated lazily, on the first mapping
// call, so constructing a Glacier never fails.
func New(cfg MMUCfg, alloc *pa.PA, tableType ramtype.Type) *Glacier {
	return &Glacier{cfg: cfg, allocator: alloc, tableType: tableType}
}

func (g *Glacier) ensureInit() {
	if g.init {
		return
	}
	ts := tableSize(g.cfg)
	root, ok := g.allocator.Alloc(pa.NewAllocParams(ts).Align(ts).AsType(g.tableType))
	if !ok {
		panic("glacier: failed to allocate root page table")
	}
	zeroTable(root.Addr(), ts)
	g.rootTable = root.Addr()
	g.init = true
}

func zeroTable(addr, size uintptr) {
	words := unsafe.Slice((*uintptr)(unsafe.Pointer(addr)), size/unsafe.Sizeof(uintptr(0)))
	for i := range words {
		words[i] = 0
	}
}

func entryPtr(table uintptr, idx uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(table + idx*unsafe.Sizeof(uintptr(0))))
}

// addrMask clears every bit a descriptor can use for flags — the page
// offset plus whatever high attribute bits this architecture's
// flags_<arch>.go declares in entryHighMask (amd64's NX, AArch64's
// UXN/PXN) — leaving a clean physical address or next-table pointer.
func addrMask(cfg MMUCfg) uintptr {
	return (cfg.PageSize - 1) | entryHighMask
}

// MapPage installs a single leaf mapping for va -> pa (each masked down to
// the configured page size), allocating any missing intermediate tables
// along the way.
func (g *Glacier) MapPage(va, physAddr uintptr, flags Flag) {
	g.lock.Acquire()
	defer g.lock.Release()
	g.ensureInit()

	pageMask := ^(g.cfg.PageSize - 1)
	va &= pageMask
	physAddr &= pageMask

	lv := levels(g.cfg)
	table := g.rootTable
	for level := uint(0); level < lv; level++ {
		idx := index(g.cfg, level, va)
		entry := entryPtr(table, idx)

		if level == lv-1 {
			*entry = physAddr | uintptr(flags)
			break
		}

		if *entry&uintptr(Valid) == 0 {
			ts := tableSize(g.cfg)
			next, ok := g.allocator.Alloc(pa.NewAllocParams(ts).Align(ts).AsType(g.tableType))
			if !ok {
				panic("glacier: failed to allocate page table")
			}
			zeroTable(next.Addr(), ts)
			*entry = next.Addr() | uintptr(tableDesc)
			table = next.Addr()
		} else {
			table = *entry &^ addrMask(g.cfg)
		}
	}
}

// MapRange repeats MapPage across [va, va+size).
func (g *Glacier) MapRange(va, physAddr, size uintptr, flags Flag) {
	pageSize := g.cfg.PageSize
	pageMask := ^(pageSize - 1)

	vaStart := va & pageMask
	paStart := physAddr & pageMask
	vaEnd := (va + size + pageSize - 1) & pageMask

	for v := vaStart; v < vaEnd; v += pageSize {
		g.MapPage(v, paStart+(v-vaStart), flags)
	}
}

// UnmapPage clears the leaf descriptor for va and invalidates the TLB entry
// for it. It is a no-op if va has no mapping.
func (g *Glacier) UnmapPage(va uintptr) {
	g.lock.Acquire()
	defer g.lock.Release()
	if !g.init {
		return
	}

	pageMask := ^(g.cfg.PageSize - 1)
	va &= pageMask

	lv := levels(g.cfg)
	table := g.rootTable
	for level := uint(0); level < lv; level++ {
		idx := index(g.cfg, level, va)
		entry := entryPtr(table, idx)
		if *entry&uintptr(Valid) == 0 {
			return
		}
		if level == lv-1 {
			*entry = 0
			break
		}
		table = *entry &^ addrMask(g.cfg)
	}

	flushTLBEntryFn(va)
}

// GetPA walks the tree following only Valid descriptors and returns the
// leaf's physical address with its low (flag) bits cleared.
func (g *Glacier) GetPA(va uintptr) (uintptr, bool) {
	g.lock.Acquire()
	defer g.lock.Release()
	if !g.init {
		return 0, false
	}

	pageMask := ^(g.cfg.PageSize - 1)
	vaMasked := va & pageMask

	lv := levels(g.cfg)
	table := g.rootTable
	for level := uint(0); level < lv; level++ {
		idx := index(g.cfg, level, vaMasked)
		entry := *entryPtr(table, idx)
		if entry&uintptr(Valid) == 0 {
			return 0, false
		}
		if level == lv-1 {
			return entry &^ addrMask(g.cfg), true
		}
		table = entry &^ addrMask(g.cfg)
	}
	return 0, false
}

// switchPDTFn and activePDTFn are mocked by tests; in production they are
// cpu.SwitchPDT/cpu.ActivePDT.
var (
	switchPDTFn     = cpu.SwitchPDT
	activePDTFn     = cpu.ActivePDT
	flushTLBEntryFn = cpu.FlushTLBEntry
)

// Activate loads this Glacier's root table into the architecture's
// translation base register. The architecture shim's SwitchPDT issues the
// full barrier/invalidate sequence, so a caller switching address spaces
// never needs to flush by hand.
func (g *Glacier) Activate() {
	g.lock.Acquire()
	defer g.lock.Release()
	g.ensureInit()
	switchPDTFn(g.rootTable)
}

// IsActive reports whether this Glacier's root table is the one currently
// loaded in the translation base register.
func (g *Glacier) IsActive() bool {
	g.lock.Acquire()
	defer g.lock.Release()
	return g.init && activePDTFn() == g.rootTable
}

// Flush invalidates the TLB entry for a single virtual address.
func (g *Glacier) Flush(va uintptr) {
	flushTLBEntryFn(va)
}

// RootTable returns the physical address of the root table, allocating it
// first if necessary. Used by the relocation procedure, which must map the
// new kernel home before any code executes from it.
func (g *Glacier) RootTable() uintptr {
	g.lock.Acquire()
	defer g.lock.Release()
	g.ensureInit()
	return g.rootTable
}

// Cfg returns the MMU configuration this Glacier was built with.
func (g *Glacier) Cfg() MMUCfg {
	return g.cfg
}
