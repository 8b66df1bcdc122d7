// Package pa implements the kernel's physical memory allocator: a
// coalescing, typed partition of the machine's physical address space
// served from a contiguous block array. The array begins embedded in
// static storage so the allocator is usable before any heap exists, and
// migrates to a PA-allocated array of its own once the embedded capacity
// is exhausted.
package pa

import (
	"unsafe"

	"sparkkernel/kernel/hal/sysinfo"
	"sparkkernel/kernel/kfmt/early"
	"sparkkernel/kernel/mem/ramtype"
	"sparkkernel/kernel/sortutil"
	"sparkkernel/kernel/sync"
)

const page4KiB = 0x1000

// baseBlockCount is the embedded bootstrap array's capacity, sized to cover
// a typical UEFI memory map plus headroom before the first Expand.
const baseBlockCount = 128

// RAMBlock is a contiguous physical range tagged with a type and an
// ownership flag. A block is valid iff Size > 0; adjacent valid blocks
// sharing (Type, Used) are always coalesced by Add.
type RAMBlock struct {
	addr uintptr
	size uintptr
	ty   ramtype.Type
	used bool
}

// Addr returns the block's physical start address.
func (b RAMBlock) Addr() uintptr { return b.addr }

// Size returns the block's size in bytes.
func (b RAMBlock) Size() uintptr { return b.size }

// Type returns the block's type tag.
func (b RAMBlock) Type() ramtype.Type { return b.ty }

// Used reports whether the block is currently owned by an allocation.
func (b RAMBlock) Used() bool { return b.used }

// Valid reports whether the block describes a non-empty range.
func (b RAMBlock) Valid() bool { return b.size > 0 }

func (b RAMBlock) notUsed() bool { return !b.used }

// coalescePosition returns -1 if b immediately precedes other, 1 if b
// immediately follows other, 0 if neither (including when their Type/Used
// don't match or either is invalid).
func (b RAMBlock) coalescePosition(other RAMBlock) int {
	if !b.Valid() || !other.Valid() || b.ty != other.ty || b.used != other.used {
		return 0
	}
	switch {
	case b.addr+b.size == other.addr:
		return -1
	case other.addr+other.size == b.addr:
		return 1
	default:
		return 0
	}
}

// OwnedPtr exclusively owns a physical range until it is returned via Free
// or FreeRaw.
type OwnedPtr struct {
	addr uintptr
	size uintptr
}

// Addr returns the range's physical start address.
func (p OwnedPtr) Addr() uintptr { return p.addr }

// Size returns the range's size in bytes.
func (p OwnedPtr) Size() uintptr { return p.size }

// Merge combines p with an adjacent range that immediately follows it.
// It reports false if the two ranges are not contiguous.
func (p OwnedPtr) Merge(other OwnedPtr) (OwnedPtr, bool) {
	if p.addr+p.size != other.addr {
		return OwnedPtr{}, false
	}
	return OwnedPtr{addr: p.addr, size: p.size + other.size}, true
}

// Split divides p into two ranges at offset. It reports false if offset is
// out of bounds.
func (p OwnedPtr) Split(offset uintptr) (OwnedPtr, OwnedPtr, bool) {
	if offset >= p.size {
		return OwnedPtr{}, OwnedPtr{}, false
	}
	return OwnedPtr{addr: p.addr, size: offset},
		OwnedPtr{addr: p.addr + offset, size: p.size - offset},
		true
}

// AllocParams configures a single Alloc or FindFreeRAM call.
type AllocParams struct {
	addr     uintptr
	hasAddr  bool
	size     uintptr
	align    uintptr
	fromType ramtype.Type
	asType   ramtype.Type
	used     bool
}

// NewAllocParams returns the default parameter set for allocating size
// bytes: page-aligned, sourced from and published as Conventional, owned
// (used=true).
func NewAllocParams(size uintptr) AllocParams {
	return AllocParams{
		size:     size,
		align:    page4KiB,
		fromType: ramtype.Conventional,
		asType:   ramtype.Conventional,
		used:     true,
	}
}

// At pins the allocation to a specific physical address instead of
// searching for a fit.
func (a AllocParams) At(addr uintptr) AllocParams { a.addr, a.hasAddr = addr, true; return a }

// Align sets the required alignment, coercing values below 1 up to 1.
func (a AllocParams) Align(align uintptr) AllocParams {
	if align < 1 {
		align = 1
	}
	a.align = align
	return a
}

// FromType selects which source pool the allocation is drawn from.
func (a AllocParams) FromType(ty ramtype.Type) AllocParams { a.fromType = ty; return a }

// AsType selects the type tag applied to the resulting block.
func (a AllocParams) AsType(ty ramtype.Type) AllocParams { a.asType = ty; return a }

// Reserve marks the resulting block as unowned (used=false): a reservation
// that carves the range out of its source pool without claiming it.
func (a AllocParams) Reserve() AllocParams { a.used = false; return a }

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func (a AllocParams) aligned() AllocParams {
	a.size = alignUp(a.size, a.align)
	if a.hasAddr {
		a.addr = alignUp(a.addr, a.align)
	}
	return a
}

// PA is the physical allocator singleton. Its zero value is ready to use:
// Init must be called exactly once before the first Alloc.
type PA struct {
	lock sync.IRQLock

	embedded [baseBlockCount]RAMBlock
	ptr      uintptr
	max      uintptr
	initDone bool
}

// Default is the kernel-wide physical allocator instance.
var Default PA

func (p *PA) blockArrayPtr() uintptr {
	if p.ptr == 0 {
		return uintptr(unsafe.Pointer(&p.embedded[0]))
	}
	return p.ptr
}

func (p *PA) blocksRaw() []RAMBlock {
	return unsafe.Slice((*RAMBlock)(unsafe.Pointer(p.blockArrayPtr())), p.max)
}

// Init builds the initial block set from the firmware memory map described
// by layout. It is idempotent: calls after the first have no effect.
//
// Two passes establish the bootstrap layout: the largest Conventional
// region is added first (as unused), giving the coalescer a best-fit
// anchor; then every non-Conventional descriptor is added in address order
// (as used), reserving firmware/ACPI/MMIO ranges before anything else can
// claim them.
func (p *PA) Init(layout []sysinfo.RAMDescriptor) {
	p.lock.Acquire()
	defer p.lock.Release()

	if p.initDone {
		return
	}
	if p.max == 0 {
		p.max = baseBlockCount
	}

	sortutil.StableSort(layout, func(a, b sysinfo.RAMDescriptor) bool {
		return a.PageCount < b.PageCount
	})
	for i := len(layout) - 1; i >= 0; i-- {
		desc := layout[i]
		if desc.Type == ramtype.Conventional {
			p.add(uintptr(desc.PhysStart), uintptr(desc.PageCount)*page4KiB, desc.Type, false)
		}
	}

	sortutil.StableSort(layout, func(a, b sysinfo.RAMDescriptor) bool {
		return a.PhysStart < b.PhysStart
	})
	for _, desc := range layout {
		if desc.Type != ramtype.Conventional {
			p.add(uintptr(desc.PhysStart), uintptr(desc.PageCount)*page4KiB, desc.Type, true)
		}
	}

	p.initDone = true
}

func (p *PA) count() int {
	n := 0
	for _, b := range p.blocksRaw() {
		if b.Valid() {
			n++
		}
	}
	return n
}

// find returns the index of the first valid block satisfying match, or -1.
func (p *PA) find(match func(RAMBlock) bool) int {
	blocks := p.blocksRaw()
	for i, b := range blocks {
		if b.Valid() && match(b) {
			return i
		}
	}
	return -1
}

// FindFreeRAM locates (without allocating) a block satisfying params and
// returns the range it would hand out.
func (p *PA) FindFreeRAM(params AllocParams) (OwnedPtr, bool) {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.findFreeRAM(params)
}

func (p *PA) findFreeRAM(params AllocParams) (OwnedPtr, bool) {
	params = params.aligned()
	idx := p.find(func(b RAMBlock) bool {
		return b.notUsed() && b.Size() >= params.size && b.Type() == params.fromType
	})
	if idx == -1 {
		return OwnedPtr{}, false
	}
	block := p.blocksRaw()[idx]
	return OwnedPtr{addr: block.addr, size: params.size}, true
}

// Alloc serves an allocation request, splitting the host block as needed.
// It reports false if from_type or as_type names a non-RAM tag, or if no
// matching free block exists.
func (p *PA) Alloc(params AllocParams) (OwnedPtr, bool) {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.alloc(params)
}

func (p *PA) alloc(params AllocParams) (OwnedPtr, bool) {
	params = params.aligned()
	if ramtype.NonRAM(params.fromType) || ramtype.NonRAM(params.asType) {
		return OwnedPtr{}, false
	}

	addr := params.addr
	if !params.hasAddr {
		free, ok := p.findFreeRAM(params)
		if !ok {
			return OwnedPtr{}, false
		}
		addr = free.addr
	}

	blocks := p.blocksRaw()
	idx := p.find(func(b RAMBlock) bool {
		return b.notUsed() && b.Type() == params.fromType &&
			addr >= b.Addr() && addr+params.size <= b.Addr()+b.Size()
	})
	if idx == -1 {
		return OwnedPtr{}, false
	}

	host := blocks[idx]
	blocks[idx] = RAMBlock{addr: addr, size: params.size, ty: params.asType, used: params.used}

	before := addr - host.addr
	afterAddr := addr + params.size
	after := host.addr + host.size - afterAddr
	if before > 0 {
		p.add(host.addr, before, host.ty, false)
	}
	if after > 0 {
		p.add(afterAddr, after, host.ty, false)
	}

	return OwnedPtr{addr: addr, size: params.size}, true
}

// Free returns an owned range to the allocator. The freed interval becomes
// unused Conventional memory; any remainder of the host block on either
// side is re-added preserving its original type and ownership.
func (p *PA) Free(ptr OwnedPtr) {
	p.lock.Acquire()
	defer p.lock.Release()
	p.free(ptr)
}

func (p *PA) free(ptr OwnedPtr) {
	blocks := p.blocksRaw()
	idx := p.find(func(b RAMBlock) bool {
		return b.Addr() <= ptr.addr && b.Addr()+b.Size() > ptr.addr
	})
	if idx == -1 {
		return
	}

	host := blocks[idx]
	freeStart := ptr.addr
	freeEnd := ptr.addr + ptr.size
	if hostEnd := host.addr + host.size; freeEnd > hostEnd {
		freeEnd = hostEnd
	}

	blocks[idx].size = 0 // invalidate

	if host.addr < freeStart {
		p.add(host.addr, freeStart-host.addr, host.ty, host.used)
	}
	p.add(freeStart, freeEnd-freeStart, ramtype.Conventional, false)
	if freeEnd < host.addr+host.size {
		p.add(freeEnd, host.addr+host.size-freeEnd, host.ty, host.used)
	}
}

// FreeRaw frees a raw (addr, size) range, bypassing the ownership tracking
// an OwnedPtr provides. Expand does not use it: it releases the old block
// array through the unlocked internal free.
func (p *PA) FreeRaw(addr, size uintptr) {
	p.Free(OwnedPtr{addr: addr, size: size})
}

// Add inserts (addr, size, ty, used) into the block array, coalescing with
// an adjacent block of identical (ty, used) when possible. If no neighbor
// matches and the array has no free slot, it expands the array to twice
// its current capacity before inserting.
func (p *PA) Add(addr, size uintptr, ty ramtype.Type, used bool) {
	p.lock.Acquire()
	defer p.lock.Release()
	p.add(addr, size, ty, used)
}

func (p *PA) add(addr, size uintptr, ty ramtype.Type, used bool) {
	if p.max == 0 {
		p.max = baseBlockCount
	}
	newBlock := RAMBlock{addr: addr, size: size, ty: ty, used: used}

	blocks := p.blocksRaw()
	before, after := -1, -1
	for i, b := range blocks {
		if !b.Valid() {
			continue
		}
		switch newBlock.coalescePosition(b) {
		case -1:
			after = i
		case 1:
			before = i
		}
	}

	switch {
	case before != -1 && after != -1:
		blocks[before].size += newBlock.size + blocks[after].size
		blocks[after].size = 0
	case before != -1:
		blocks[before].size += newBlock.size
	case after != -1:
		blocks[after].addr = newBlock.addr
		blocks[after].size += newBlock.size
	default:
		if p.count() >= int(p.max) {
			p.expand(p.max * 2)
			blocks = p.blocksRaw()
		}

		idx := 0
		for i, b := range blocks {
			if b.Valid() {
				idx++
				continue
			}
			blocks[i] = newBlock
			idx = i
			break
		}

		for i := idx; i > 0; i-- {
			if blocks[i].addr >= blocks[i-1].addr {
				break
			}
			blocks[i], blocks[i-1] = blocks[i-1], blocks[i]
		}
	}
}

// Expand grows the block array's capacity to newMax, migrating off the
// embedded bootstrap array the first time it runs. The previous array is
// freed back to the allocator unless it is the static embedded array.
func (p *PA) Expand(newMax uintptr) {
	p.lock.Acquire()
	defer p.lock.Release()
	p.expand(newMax)
}

func (p *PA) expand(newMax uintptr) {
	if newMax <= p.max {
		return
	}

	const blockSize = unsafe.Sizeof(RAMBlock{})
	params := NewAllocParams(newMax * blockSize)

	oldAddr, oldMax := p.blockArrayPtr(), p.max
	newBlocks, ok := p.findFreeRAM(params)
	if !ok {
		return
	}

	newSlice := unsafe.Slice((*RAMBlock)(unsafe.Pointer(newBlocks.addr)), newMax)
	for i := range newSlice {
		newSlice[i] = RAMBlock{}
	}
	copy(newSlice, unsafe.Slice((*RAMBlock)(unsafe.Pointer(oldAddr)), oldMax))

	p.ptr, p.max = newBlocks.addr, newMax

	if oldAddr != uintptr(unsafe.Pointer(&p.embedded[0])) {
		p.free(OwnedPtr{addr: oldAddr, size: oldMax * blockSize})
	}
	p.alloc(params.At(newBlocks.addr))
}

// Available returns the total size of unused Conventional memory.
func (p *PA) Available() uintptr {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.sizeFilter(func(b RAMBlock) bool { return b.notUsed() && b.Type() == ramtype.Conventional })
}

// Total returns the total size of every block whose type is not one of the
// non-RAM tags (MMIO, PAL code, unusable/unaccepted ranges).
func (p *PA) Total() uintptr {
	p.lock.Acquire()
	defer p.lock.Release()
	return p.sizeFilter(func(b RAMBlock) bool { return !ramtype.NonRAM(b.Type()) })
}

func (p *PA) sizeFilter(match func(RAMBlock) bool) uintptr {
	var total uintptr
	for _, b := range p.blocksRaw() {
		if b.Valid() && match(b) {
			total += b.Size()
		}
	}
	return total
}

// Dump prints every valid block to the early console, in array order. It is
// a debugging aid, not called by any boot-path code.
func (p *PA) Dump() {
	p.lock.Acquire()
	defer p.lock.Release()

	for _, b := range p.blocksRaw() {
		if !b.Valid() {
			continue
		}
		used := "free"
		if b.Used() {
			used = "used"
		}
		early.Printf("[pa] 0x%16x - 0x%16x  %10s  %s\n", b.Addr(), b.Addr()+b.Size(), b.Type().String(), used)
	}
}

// WithBlocks invokes f once per valid block, in array order. f must not
// call back into p; the allocator's lock is held for the duration.
func (p *PA) WithBlocks(f func(RAMBlock)) {
	p.lock.Acquire()
	defer p.lock.Release()
	for _, b := range p.blocksRaw() {
		if b.Valid() {
			f(b)
		}
	}
}
