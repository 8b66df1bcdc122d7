// Package sched implements the kernel's scheduler stub: a process table
// keyed by PID and a round-robin ready queue over it. One scheduler runs
// per physical CPU, cooperative within the kernel per §5.
package sched

import (
	"fmt"

	"sparkkernel/kernel/cpu"
	"sparkkernel/kernel/glacier"
	"sparkkernel/kernel/irq"
	"sparkkernel/kernel/kfmt/early"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/proc"
	"sparkkernel/kernel/sync"
	"sparkkernel/kernel/syscall"
)

var (
	tableLock sync.IRQLock
	procs     = map[int]*proc.PCB{}
	ready     []int
	nextPID   = 1

	kernelGlacier *glacier.Glacier
	allocator     *pa.PA
	mmuCfg        glacier.MMUCfg

	// current is the PID whose context is loaded, or 0 if the scheduler
	// itself (not a process) currently owns the CPU.
	current int
)

// restoreContextFn is mocked by tests, since the real implementation
// never returns.
var restoreContextFn = irq.RestoreContext

// haltForever parks the core with interrupts enabled, idling until the
// next timer tick reschedules it.
func haltForever() {
	cpu.EnableInterrupts()
	cpu.Halt()
}

// Init wires the scheduler to the kernel's singleton address space and
// physical allocator, and installs ExitProc as kernel/syscall's exit
// hook so a user process's "exit" request routes back here.
func Init(g *glacier.Glacier, alloc *pa.PA, cfg glacier.MMUCfg) {
	kernelGlacier = g
	allocator = alloc
	mmuCfg = cfg
	syscall.ExitFn = func(code int) { ExitProc(code) }
}

// Spawn loads image as a new process and enqueues it in the ready queue.
func Spawn(image []byte) (int, error) {
	p, err := proc.Load(image, allocator, mmuCfg)
	if err != nil {
		return 0, fmt.Errorf("sched: spawn: %w", err)
	}

	tableLock.Acquire()
	defer tableLock.Release()

	pid := nextPID
	for {
		if _, taken := procs[pid]; !taken && pid != 0 {
			break
		}
		pid++
	}
	nextPID = pid + 1

	p.PID = pid
	procs[pid] = p
	ready = append(ready, pid)
	return pid, nil
}

// popReady removes and returns the next ready PID in round-robin order, or
// 0 if the ready queue is empty.
func popReady() int {
	tableLock.Acquire()
	defer tableLock.Release()
	if len(ready) == 0 {
		return 0
	}
	pid := ready[0]
	ready = ready[1:]
	return pid
}

// Schedule hands the CPU to the next ready process, activating its
// address space and restoring its saved frame. If the ready queue is
// empty it parks the core via idleFn, which does not return in
// production. Never returns.
func Schedule() {
	for {
		pid := popReady()
		if pid == 0 {
			idleFn()
			continue
		}

		tableLock.Acquire()
		p, ok := procs[pid]
		tableLock.Release()
		if !ok {
			continue
		}

		early.Printf("sched: dispatching pid %d\n", pid)
		current = pid
		p.State = proc.StateRunning
		p.Glacier.Activate()
		restoreContextFn(&p.Ctxt)
		return // unreachable: restoreContextFn never returns
	}
}

// idleFn is mocked by tests; production value parks the core until the
// next timer tick, since this scheduler stub does not time-share (§5
// Non-goals).
var idleFn = func() {
	haltForever()
}

// ExitProc terminates the current process with the given exit code: it
// reactivates the kernel's own address space, frees the process's owned
// physical memory, removes it from the process table, and falls through
// to Schedule. Never returns.
func ExitProc(code int) {
	kernelGlacier.Activate()

	tableLock.Acquire()
	pid := current
	p, ok := procs[pid]
	delete(procs, pid)
	current = 0
	tableLock.Release()

	if ok {
		p.ExitCode = code
		p.State = proc.StateExited
		p.Release(allocator)
	}
	early.Printf("sched: proc %d exited: %d\n", pid, code)

	Schedule()
}
