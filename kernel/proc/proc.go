// Package proc implements the process control block: loading a
// position-independent user ELF image into a fresh address space and
// preparing the exception frame a scheduler hands off to on first run.
package proc

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"unsafe"

	"sparkkernel/kernel/glacier"
	"sparkkernel/kernel/irq"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/mem/ramtype"
)

// UserStackSize is the size of the stack mapped at the top of every
// process's low-half address range.
const UserStackSize = 1 << 20 // 1 MiB

// State is a PCB's run state, tracked by kernel/sched's ready queue.
type State int

const (
	StateReady State = iota
	StateRunning
	StateExited
)

// VRamMap records a single virtual-to-physical mapping a PCB owns, kept
// for introspection. Release frees the physical ranges but does not unmap
// these entries.
type VRamMap struct {
	VA, PA, Size uintptr
	Flags        glacier.Flag
}

// PCB is a process control block: one user address space, the physical
// ranges it owns, and the saved register frame the scheduler resumes it
// from.
type PCB struct {
	PID, PPID int
	State     State
	ExitCode  int

	Glacier *glacier.Glacier
	Owned   []pa.OwnedPtr
	VRamMap []VRamMap
	Ctxt    irq.Frame
}

// permFlags maps an ELF program header's (W,X) bits to the matching
// user-accessible composite profile, mirroring the teacher's four-entry
// lookup table keyed by (write<<1 | exec).
var permFlags = [4]glacier.Flag{
	glacier.U_ROO, // ---
	glacier.U_ROX, // --x
	glacier.U_RWO, // -w-
	glacier.U_RWX, // -wx
}

// Load parses a position-independent ELF64 image, maps each PT_LOAD
// segment into a freshly allocated address space at pid's eventual home,
// copies in its bytes, maps a user stack at the top of the low half, and
// returns a PCB whose Ctxt is ready to hand to irq.RestoreContext.
func Load(image []byte, alloc *pa.PA, cfg glacier.MMUCfg) (*PCB, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("proc: parse elf: %w", err)
	}

	vaBase, vaTop, ok := loadSegmentRange(f)
	if !ok {
		return nil, fmt.Errorf("proc: no PT_LOAD segments")
	}
	procSize := vaTop - vaBase

	g := glacier.New(cfg, alloc, ramtype.UserPageTable)
	p := &PCB{Glacier: g, State: StateReady}

	procMem, ok := alloc.Alloc(pa.NewAllocParams(procSize).AsType(ramtype.Kernel))
	if !ok {
		return nil, fmt.Errorf("proc: failed to allocate process memory")
	}
	p.Owned = append(p.Owned, procMem)

	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		physAddr := procMem.Addr() + (uintptr(ph.Vaddr) - vaBase)
		flag := boolBit(ph.Flags&elf.PF_W != 0)<<1 | boolBit(ph.Flags&elf.PF_X != 0)
		mapFlags := permFlags[flag]

		g.MapRange(uintptr(ph.Vaddr), physAddr, uintptr(ph.Memsz), mapFlags)
		p.VRamMap = append(p.VRamMap, VRamMap{VA: uintptr(ph.Vaddr), PA: physAddr, Size: uintptr(ph.Memsz), Flags: mapFlags})

		dst := unsafe.Slice((*byte)(unsafe.Pointer(physAddr)), ph.Memsz)
		for i := range dst {
			dst[i] = 0
		}
		segData := make([]byte, ph.Filesz)
		if _, err := io.ReadFull(ph.Open(), segData); err != nil {
			return nil, fmt.Errorf("proc: read segment: %w", err)
		}
		copy(dst, segData)
	}

	stackMem, ok := alloc.Alloc(pa.NewAllocParams(UserStackSize).AsType(ramtype.Kernel))
	if !ok {
		return nil, fmt.Errorf("proc: failed to allocate user stack")
	}
	p.Owned = append(p.Owned, stackMem)

	loHalfTop := loHalfTop(cfg.VABits)
	stackVA := loHalfTop - UserStackSize
	g.MapRange(stackVA, stackMem.Addr(), UserStackSize, glacier.U_RWO)
	p.VRamMap = append(p.VRamMap, VRamMap{VA: stackVA, PA: stackMem.Addr(), Size: UserStackSize, Flags: glacier.U_RWO})

	p.Ctxt.SetPC(uintptr(f.Entry))
	p.Ctxt.SetSP(loHalfTop)
	p.Ctxt.SetUserMode()

	return p, nil
}

// loHalfTop returns the highest address in the low half of the address
// space for a vaBits-wide canonical split: the one-past-the-end address,
// 0 wrapped down by the high-half base.
func loHalfTop(vaBits uint) uintptr {
	hiHalfBase := ^((uintptr(1) << (vaBits - 1)) - 1)
	return -hiHalfBase
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func loadSegmentRange(f *elf.File) (base, top uintptr, ok bool) {
	base = ^uintptr(0)
	for _, ph := range f.Progs {
		if ph.Type != elf.PT_LOAD {
			continue
		}
		ok = true
		if uintptr(ph.Vaddr) < base {
			base = uintptr(ph.Vaddr)
		}
		if end := uintptr(ph.Vaddr + ph.Memsz); end > top {
			top = end
		}
	}
	return base, top, ok
}

// Release frees every physical range this PCB owns. Called by
// kernel/sched when a process exits.
func (p *PCB) Release(alloc *pa.PA) {
	for _, owned := range p.Owned {
		alloc.Free(owned)
	}
	p.Owned = nil
}
