package glacier

// x86-64 has no fixed MMIO device windows in this core: the UART is
// accessed via port I/O (cpu.SerialPutChar), not memory-mapped.
var archDeviceWindows []deviceWindow
