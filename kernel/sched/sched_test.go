package sched

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"sparkkernel/kernel/glacier"
	"sparkkernel/kernel/hal/sysinfo"
	"sparkkernel/kernel/irq"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/mem/ramtype"
	"sparkkernel/kernel/proc"
)

// buildMinimalELF assembles a minimal little-endian ELF64 executable with
// a single PT_LOAD segment, mirroring kernel/proc's own test helper.
func buildMinimalELF(vaddr uint64, data []byte) []byte {
	const ehsize, phentsize = 64, 56
	var buf bytes.Buffer

	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(0x3e))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, uint64(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phentsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	dataOff := uint64(ehsize + phentsize)
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	binary.Write(&buf, binary.LittleEndian, dataOff)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, uint64(len(data)))
	binary.Write(&buf, binary.LittleEndian, uint64(len(data)))
	binary.Write(&buf, binary.LittleEndian, uint64(0x1000))

	buf.Write(data)
	return buf.Bytes()
}

// backedPA returns a PA instance whose entire usable range is a real,
// page-aligned slab of host memory, mirroring kernel/glacier's own test
// helper.
func backedPA(t *testing.T, pageSize uintptr, pages int) *pa.PA {
	t.Helper()
	raw := make([]byte, (pages+1)*int(pageSize))
	start := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (start + pageSize - 1) &^ (pageSize - 1)

	p := &pa.PA{}
	p.Init([]sysinfo.RAMDescriptor{
		{Type: ramtype.Conventional, PhysStart: uint64(aligned), PageCount: uint64(pages)},
	})
	return p
}

// resetState clears the package-level process table between tests, since
// it is shared global state.
func resetState(t *testing.T) {
	t.Helper()
	tableLock.Acquire()
	procs = map[int]*proc.PCB{}
	ready = nil
	nextPID = 1
	current = 0
	tableLock.Release()
}

func TestSpawnAssignsIncreasingPIDsAndEnqueues(t *testing.T) {
	resetState(t)
	cfg := glacier.MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
	allocator = backedPA(t, cfg.PageSize, 1024) // two 1 MiB user stacks plus tables
	mmuCfg = cfg
	kernelGlacier = glacier.New(cfg, allocator, ramtype.KernelPageTable)

	image := buildMinimalELF(0x400000, []byte{0xc3})

	pid1, err := Spawn(image)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	pid2, err := Spawn(image)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pid1 != 1 || pid2 != 2 {
		t.Fatalf("pid1, pid2 = %d, %d, want 1, 2", pid1, pid2)
	}

	tableLock.Acquire()
	_, ok1 := procs[pid1]
	_, ok2 := procs[pid2]
	queued := append([]int(nil), ready...)
	tableLock.Release()

	if !ok1 || !ok2 {
		t.Fatal("expected both spawned PIDs in the process table")
	}
	if len(queued) != 2 || queued[0] != pid1 || queued[1] != pid2 {
		t.Fatalf("ready queue = %v, want [%d %d]", queued, pid1, pid2)
	}
}

func TestPopReadyFIFOOrderAndEmpty(t *testing.T) {
	resetState(t)
	if got := popReady(); got != 0 {
		t.Fatalf("popReady() on empty queue = %d, want 0", got)
	}

	tableLock.Acquire()
	ready = []int{3, 1, 2}
	tableLock.Release()

	for _, want := range []int{3, 1, 2} {
		if got := popReady(); got != want {
			t.Fatalf("popReady() = %d, want %d", got, want)
		}
	}
	if got := popReady(); got != 0 {
		t.Fatalf("popReady() after drain = %d, want 0", got)
	}
}

// stopIdling is the sentinel panic value idleFn mocks use to unwind out of
// Schedule's loop in tests: the real idleFn never returns, so a mock that
// simply sets a flag and returns would spin Schedule forever re-polling an
// empty ready queue.
const stopIdling = "stop idling"

func TestScheduleIdlesWhenReadyQueueEmpty(t *testing.T) {
	resetState(t)
	var idled bool
	oldIdle := idleFn
	idleFn = func() { idled = true; panic(stopIdling) }
	defer func() { idleFn = oldIdle }()

	func() {
		defer func() {
			if r := recover(); r != stopIdling {
				t.Fatalf("recovered %v, want %v", r, stopIdling)
			}
		}()
		Schedule()
	}()

	if !idled {
		t.Fatal("expected idleFn to run when the ready queue is empty")
	}
}

func TestScheduleDispatchesReadyProcess(t *testing.T) {
	resetState(t)
	cfg := glacier.MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
	allocator = backedPA(t, cfg.PageSize, 512)
	mmuCfg = cfg
	kernelGlacier = glacier.New(cfg, allocator, ramtype.KernelPageTable)

	g := glacier.New(cfg, allocator, ramtype.UserPageTable)
	p := &proc.PCB{PID: 7, Glacier: g, State: proc.StateReady}
	p.Ctxt.SetPC(0x400000)

	tableLock.Acquire()
	procs[7] = p
	ready = []int{7}
	tableLock.Release()

	var gotFrame *irq.Frame
	oldRestore := restoreContextFn
	restoreContextFn = func(f *irq.Frame) { gotFrame = f }
	defer func() { restoreContextFn = oldRestore }()

	Schedule()

	if current != 7 {
		t.Fatalf("current = %d, want 7", current)
	}
	if p.State != proc.StateRunning {
		t.Fatalf("State = %v, want StateRunning", p.State)
	}
	if gotFrame != &p.Ctxt {
		t.Fatal("expected Schedule to restore the dispatched process's own context")
	}
}

func TestExitProcClearsProcessAndReschedules(t *testing.T) {
	resetState(t)
	cfg := glacier.MMUCfg{PageSize: 4096, VABits: 48, PABits: 52, Levels: 4}
	allocator = backedPA(t, cfg.PageSize, 512)
	mmuCfg = cfg
	kernelGlacier = glacier.New(cfg, allocator, ramtype.KernelPageTable)

	g := glacier.New(cfg, allocator, ramtype.UserPageTable)
	owned, ok := allocator.Alloc(pa.NewAllocParams(4096).AsType(ramtype.Kernel))
	if !ok {
		t.Fatal("failed to allocate process memory")
	}
	p := &proc.PCB{PID: 9, Glacier: g, State: proc.StateRunning, Owned: []pa.OwnedPtr{owned}}

	tableLock.Acquire()
	procs[9] = p
	current = 9
	tableLock.Release()

	var rescheduled bool
	oldIdle := idleFn
	idleFn = func() { rescheduled = true; panic(stopIdling) }
	defer func() { idleFn = oldIdle }()

	func() {
		defer func() {
			if r := recover(); r != stopIdling {
				t.Fatalf("recovered %v, want %v", r, stopIdling)
			}
		}()
		ExitProc(42)
	}()

	if _, ok := procs[9]; ok {
		t.Fatal("expected exited process to be removed from the table")
	}
	if current != 0 {
		t.Fatalf("current = %d, want 0 after exit", current)
	}
	if p.ExitCode != 42 {
		t.Fatalf("ExitCode = %d, want 42", p.ExitCode)
	}
	if p.State != proc.StateExited {
		t.Fatalf("State = %v, want StateExited", p.State)
	}
	if p.Owned != nil {
		t.Fatal("expected Release to clear Owned")
	}
	if !rescheduled {
		t.Fatal("expected ExitProc to fall through to Schedule, which idles on an empty queue")
	}
}
