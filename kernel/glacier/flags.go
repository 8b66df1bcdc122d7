package glacier

// Flag is a page-table-entry bit. Valid (the present bit) is bit 0 on all
// three backends, so the generic walk in glacier.go can test it without an
// architecture switch; every other bit position is architecture-specific
// and lives in this package's flags_<arch>.go file, ported from that
// architecture's own encoding rather than shared verbatim.
type Flag uintptr
