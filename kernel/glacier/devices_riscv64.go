package glacier

// Fixed RISC-V device windows: UART0, PLIC, CLINT.
var archDeviceWindows = []deviceWindow{
	{base: 0x10000000, size: 0x1000},
	{base: 0x0c000000, size: 0x400000},
	{base: 0x02000000, size: 0x10000},
}
