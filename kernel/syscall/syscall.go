// Package syscall implements the kernel-request contract that forms the
// stable ABI between user processes and the kernel: a single entry point,
// kernel_request(req_name_ptr, a1..a6) -> usize, dispatched by name.
package syscall

import (
	"unsafe"

	"sparkkernel/kernel/cpu"
)

// Regs is the register view kernel/irq's architecture-specific Frame types
// satisfy structurally. Dispatch depends only on this, not on irq, so
// irq -> syscall stays the only import edge between the two packages.
type Regs interface {
	ReqNamePtr() uintptr
	Arg(n int) uintptr
	SetResult(v uintptr)
}

// maxReqNameLen bounds the request name read from user memory (§4.5).
const maxReqNameLen = 16

// invalidVA is the deliberately-unmapped address checkFault touches to
// force a fault when a user pointer range reaches into the high half. With
// 48-bit virtual addresses it lies inside the non-canonical hole between
// the two halves, so no mapping can ever cover it.
const invalidVA = uintptr(1) << 63

// HiHalfBoundary is the lowest virtual address reserved for kernel use.
// A user-supplied pointer range that reaches this boundary or beyond is
// never dereferenced; checkFault instead raises a controlled page fault.
// Default matches the amd64/AArch64 48-bit canonical-hole start; callers
// targeting a narrower VA width may override it at init time.
var HiHalfBoundary uintptr = 0xffff_8000_0000_0000

// PutCharFn writes a single byte to the debug serial port for the "_print"
// request. Defaults to the architecture shim; overridable in tests.
var PutCharFn = cpu.SerialPutChar

// ExitFn terminates the current process with the given exit code for the
// "exit" request. Installed by kernel/sched once a process table exists;
// the default does nothing, since syscall must not import sched
// (sched already depends on syscall to register this hook).
var ExitFn = func(code int) {}

// checkFault validates that [ptr, ptr+count*elemSize) lies strictly below
// HiHalfBoundary before any byte in that range is dereferenced. An
// out-of-range pointer triggers a controlled fault by reading a
// known-invalid canonical address, so the normal page-fault path (§4.4)
// raises the failure instead of silently trusting user input.
func checkFault(ptr, count, elemSize uintptr) {
	end := ptr + count*elemSize
	if end < ptr || end >= HiHalfBoundary {
		_ = *(*byte)(unsafe.Pointer(invalidVA))
	}
}

func readReqName(ptr uintptr) []byte {
	checkFault(ptr, maxReqNameLen, 1)
	raw := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), maxReqNameLen)
	n := maxReqNameLen
	for i, b := range raw {
		if b == 0 {
			n = i
			break
		}
	}
	return raw[:n]
}

// Dispatch implements kernel_request: it reads the request name out of
// user memory, routes it to the recognized handler, and returns the value
// the caller should see in its architecture's result register.
func Dispatch(r Regs) uintptr {
	name := readReqName(r.ReqNamePtr())

	switch string(name) {
	case "exit":
		ExitFn(int(int64(r.Arg(1))))
		return 0
	case "_print":
		doPrint(r.Arg(1), r.Arg(2))
		return 0
	case "open":
		return doOpen(r.Arg(1))
	default:
		return 0
	}
}

func doPrint(ptr, count uintptr) {
	checkFault(ptr, count, 1)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), count)
	for _, b := range buf {
		PutCharFn(b)
	}
}

// doOpen is a name-lookup scaffold: no VFS is wired in yet (out of scope
// per §1), so it validates the path pointer and always reports failure
// rather than implying success with a bogus descriptor.
func doOpen(pathPtr uintptr) uintptr {
	n := uintptr(0)
	for {
		checkFault(pathPtr, n+1, 1)
		b := *(*byte)(unsafe.Pointer(pathPtr + n))
		if b == 0 {
			break
		}
		n++
	}
	return ^uintptr(0)
}
