// Package reloc implements the kernel's self-relocation procedure: it
// moves the running kernel image from its bootloader-assigned, identity-
// mapped physical base to its permanent canonical high-half address
// without ever stopping execution, per §4.3.
package reloc

import (
	"unsafe"

	"sparkkernel/kernel/cpu"
	"sparkkernel/kernel/glacier"
	"sparkkernel/kernel/hal/sysinfo"
	"sparkkernel/kernel/kfmt/early"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/mem/ramtype"
)

// StackSize is the size of the freshly allocated kernel stack the
// relocated kernel runs on from this point forward.
const StackSize = 64 * 1024

// relaEntry mirrors a single Elf64_Rela record: offset (relative to the
// module's load base), info (symbol/type, packed) and addend (unused for
// R_RELATIVE, which instead adds delta to the word already at offset).
type relaEntry struct {
	Offset uintptr
	Info   uint64
	Addend int64
}

const relaTypeMask = 0xffffffff

// jumpTarget returns the lowest canonical high-half address representable
// with vaBits virtual address bits: !((1 << (vaBits-1)) - 1).
func jumpTarget(vaBits uint) uintptr {
	return ^((uintptr(1) << (vaBits - 1)) - 1)
}

// setStackPointerFn, scrubOldStackFn and jumpToFn are mocked by tests,
// since the real implementations pivot the live stack, overwrite it, and
// never return — none of which a test running on its own Go stack can
// safely exercise for real.
var (
	setStackPointerFn = cpu.SetStackPointer
	scrubOldStackFn   = scrubOldStack
	jumpToFn          = jumpTo
)

// scrubOldStack zeroes scrubWindow bytes starting at the stack pointer
// recorded just before the pivot, so no stale kernel data lingers in the
// now-reclaimable old stack region.
func scrubOldStack(oldSP uintptr) {
	const scrubWindow = 4096
	zero := unsafe.Slice((*byte)(unsafe.Pointer(oldSP)), scrubWindow)
	for i := range zero {
		zero[i] = 0
	}
}

// Run executes the eight-step relocation protocol described in §4.3 and
// tail-calls the relocated entry point; it never returns. g is the
// identity-mapped kernel address space built during the boot sequence,
// already active. alloc is the physical allocator, already initialized
// from the firmware memory map.
func Run(info *sysinfo.KernelInfo, g *glacier.Glacier, alloc *pa.PA) {
	cfg := g.Cfg()

	// Step 1: allocate the new kernel home and the new kernel stack.
	home, ok := alloc.Alloc(pa.NewAllocParams(info.Size).Align(cfg.PageSize).AsType(ramtype.Kernel))
	if !ok {
		panic("reloc: failed to allocate kernel home")
	}
	stack, ok := alloc.Alloc(pa.NewAllocParams(StackSize).Align(cfg.PageSize).AsType(ramtype.KernelData))
	if !ok {
		panic("reloc: failed to allocate kernel stack")
	}
	newStackTop := stack.Addr() + StackSize

	// Step 2: the lowest canonical high-half address for this VA width.
	target := jumpTarget(cfg.VABits)

	// Step 3: map the new home read-write, then overlay its text range
	// read-exec so the two never overlap with W and X both set.
	g.MapRange(target, home.Addr(), info.Size, glacier.K_RWO)
	textOff := info.TextPtr - info.Base
	g.MapRange(target+textOff, home.Addr()+textOff, info.TextLen, glacier.K_ROX)

	early.Printf("reloc: moving kernel %x -> %x (%d bytes)\n", info.Base, target, info.Size)

	// Step 4: copy the live kernel bytes into the new physical home. No
	// static variable may be written again until the jump in step 8,
	// since the new text's view of those statics lives at a different
	// address than the one currently executing.
	src := unsafe.Slice((*byte)(unsafe.Pointer(info.Base)), info.Size)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(home.Addr())), info.Size)
	copy(dst, src)

	// Step 5: the delta every R_RELATIVE entry and the final jump apply.
	delta := int64(target) - int64(info.Base)

	// Step 6: rewrite every R_RELATIVE entry in .rela.dyn, in the new copy.
	relaCount := info.RelaLen / unsafe.Sizeof(relaEntry{})
	relocs := unsafe.Slice((*relaEntry)(unsafe.Pointer(info.RelaPtr)), relaCount)
	for _, r := range relocs {
		if r.Info&relaTypeMask != uint64(cpu.RRelative) {
			continue
		}
		word := (*int64)(unsafe.Pointer(home.Addr() + r.Offset))
		*word += delta
	}

	// Step 7: pivot onto the new stack and scrub the old one beyond the
	// pivot point so no stale kernel data lingers in reclaimed memory.
	oldSP := cpu.ReadStackPointer()
	setStackPointerFn(newStackTop)
	scrubOldStackFn(oldSP)

	// Step 8: tail-call the relocated entry point. entry() never returns.
	entry := uintptr(int64(info.Entry) + delta)
	jumpToFn(entry)
}

func jumpTo(entry uintptr)
