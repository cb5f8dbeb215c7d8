package piet

// Config holds this backend's tunables (§9 Open Question resolutions):
// the register-wraparound mask applied by ADD/SUB/GETC, and the number
// of memory words reserved as stack slots below the register file.
type Config struct {
	RegMask int
	MemSize int
}

// DefaultConfig mirrors piet.c's "65536 mod" (§4.6) for the register
// mask — the overview table's 24-bit figure describes only the immediate
// encoding's range (property 8), not the ADD/SUB/GETC wraparound width,
// which §4.6 pins to 65536 explicitly; see DESIGN.md. MemSize matches the
// Desmos backend's default so both backends size §8's scenarios the same
// way.
func DefaultConfig() Config {
	return Config{RegMask: 0x10000, MemSize: 64}
}
