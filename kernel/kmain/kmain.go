// Package kmain wires every subsystem together into the kernel's staged
// boot sequence. It is kept separate from package kernel itself so that
// kernel/irq and kernel/sched, which both call back into kernel.Panic, do
// not import a package that in turn imports them.
package kmain

import (
	"sparkkernel/kernel"
	"sparkkernel/kernel/cpu"
	"sparkkernel/kernel/glacier"
	"sparkkernel/kernel/goruntime"
	"sparkkernel/kernel/hal/sysinfo"
	"sparkkernel/kernel/irq"
	"sparkkernel/kernel/kfmt/early"
	"sparkkernel/kernel/mem/pa"
	"sparkkernel/kernel/mem/ramtype"
	"sparkkernel/kernel/reloc"
	"sparkkernel/kernel/sched"
)

// irqStackSize is the size of the dedicated stack the exception/syscall
// spine runs on once vectors are installed.
const irqStackSize = 64 * 1024

// relocated marks that this boot has already run kernel/reloc's jump once.
// reloc.Run copies the whole kernel image, this variable included, so the
// copy that resumes execution at the canonical high-half address inherits
// it already set to true and falls through instead of relocating again.
var relocated bool

// Kmain is the kernel's entrypoint, invoked by the rt0 trampoline in
// boot.go once the Go runtime has a usable (if still heapless) stack. It
// runs twice per boot: once at the bootloader-assigned base, and once more
// at the kernel's permanent high-half address after kernel/reloc's jump.
//
// Boot proceeds in stages: decode the firmware handoff record, bootstrap the
// physical allocator over the firmware memory map, build and activate an
// identity-mapped kernel address space, switch the Go runtime's own
// allocator hooks over to it, then self-relocate into the canonical
// high-half address. The second pass installs the exception/syscall
// vectors, wires up the scheduler, and idles waiting for the first ready
// process.
//
//go:noinline
func Kmain() {
	if !relocated {
		si := sysinfo.Handoff
		si.Init()
		si.SortRAMLayoutByPhysStart()

		layout := si.RAMLayout()
		pa.Default.Init(layout)

		kernelGlacier := glacier.New(cpu.Detect(), &pa.Default, ramtype.KernelPageTable)
		kernelGlacier.IdentityMap(layout)
		kernelGlacier.Activate()

		goruntime.SetKernelGlacier(kernelGlacier)

		early.Printf("kernel: boot, %d bytes of RAM described\n", si.LayoutTotal())

		relocated = true
		reloc.Run(&si.Kernel, kernelGlacier, &pa.Default)
		kernel.Panic(&kernel.Error{Module: "kmain", Message: "reloc.Run returned"})
	}

	kernelGlacier := goruntime.KernelGlacier()

	stack, ok := pa.Default.Alloc(pa.NewAllocParams(irqStackSize).Align(cpu.Detect().PageSize).AsType(ramtype.KernelData))
	if !ok {
		kernel.Panic(&kernel.Error{Module: "kmain", Message: "failed to allocate exception stack"})
	}
	irq.Install(stack.Addr() + irqStackSize)

	sched.Init(kernelGlacier, &pa.Default, kernelGlacier.Cfg())

	early.Printf("kernel: relocated, vectors installed, scheduler online\n")
	sched.Schedule()
}
