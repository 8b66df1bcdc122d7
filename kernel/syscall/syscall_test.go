package syscall

import (
	"testing"
	"unsafe"
)

// fakeRegs is a host-memory stand-in for an irq.Frame, satisfying Regs
// structurally without this package ever importing irq.
type fakeRegs struct {
	name   uintptr
	args   [6]uintptr
	result uintptr
}

func (r *fakeRegs) ReqNamePtr() uintptr { return r.name }
func (r *fakeRegs) Arg(n int) uintptr   { return r.args[n-1] }
func (r *fakeRegs) SetResult(v uintptr) { r.result = v }

func bufPtr(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }

func withReqName(t *testing.T, name string) uintptr {
	t.Helper()
	buf := make([]byte, maxReqNameLen)
	copy(buf, name)
	t.Cleanup(func() { _ = buf }) // keep buf alive until the subtest returns
	return bufPtr(buf)
}

func TestDispatchPrintWritesEachByte(t *testing.T) {
	msg := []byte("hi")
	var got []byte
	old := PutCharFn
	PutCharFn = func(b byte) { got = append(got, b) }
	defer func() { PutCharFn = old }()

	r := &fakeRegs{name: withReqName(t, "_print"), args: [6]uintptr{bufPtr(msg), uintptr(len(msg))}}
	out := Dispatch(r)

	if out != 0 {
		t.Fatalf("_print returned %d, want 0", out)
	}
	if string(got) != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestDispatchExitInvokesExitFn(t *testing.T) {
	var code int
	old := ExitFn
	ExitFn = func(c int) { code = c }
	defer func() { ExitFn = old }()

	r := &fakeRegs{name: withReqName(t, "exit"), args: [6]uintptr{42}}
	Dispatch(r)

	if code != 42 {
		t.Fatalf("exit code = %d, want 42", code)
	}
}

func TestDispatchOpenAlwaysFails(t *testing.T) {
	path := []byte("/etc/motd\x00")
	r := &fakeRegs{name: withReqName(t, "open"), args: [6]uintptr{bufPtr(path)}}

	out := Dispatch(r)

	if out != ^uintptr(0) {
		t.Fatalf("open returned %x, want all-ones sentinel", out)
	}
}

func TestDispatchUnknownRequestReturnsZero(t *testing.T) {
	r := &fakeRegs{name: withReqName(t, "frobnicate")}
	if out := Dispatch(r); out != 0 {
		t.Fatalf("unknown request returned %d, want 0", out)
	}
}

func TestCheckFaultAcceptsLowHalfRange(t *testing.T) {
	old := HiHalfBoundary
	HiHalfBoundary = 0x1000
	defer func() { HiHalfBoundary = old }()

	// Should not touch invalidVA: entirely below the boundary.
	checkFault(0x10, 4, 1)
}
