package glacier

// Fixed AArch64 device windows: PL011 UART, GIC distributor, GIC CPU
// interface.
var archDeviceWindows = []deviceWindow{
	{base: 0x09000000, size: 0x1000},
	{base: 0x08000000, size: 0x1000},
	{base: 0x08010000, size: 0x1000},
}
