package pool

import "unsafe"

// BlockSource requests a single raw block of size bytes from the OS
// allocator. It returns ok == false on failure; Pool never treats that as
// fatal outside of the initial fill performed by New.
type BlockSource func(size int) (unsafe.Pointer, bool)

// BlockRelease returns a block obtained from a BlockSource back to the OS.
type BlockRelease func(unsafe.Pointer)

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithBlockSource overrides how a Pool requests memory from the OS. Tests
// use this to simulate allocation failure, something Go's make cannot do
// short of actually exhausting system memory.
func WithBlockSource(f BlockSource) Option {
	return func(p *Pool) { p.blockSource = f }
}

// WithBlockRelease overrides how a Pool returns memory to the OS.
func WithBlockRelease(f BlockRelease) Option {
	return func(p *Pool) { p.blockRelease = f }
}

func defaultBlockSource(size int) (unsafe.Pointer, bool) {
	buf := make([]byte, size)
	return unsafe.Pointer(unsafe.SliceData(buf)), true
}

func defaultBlockRelease(unsafe.Pointer) {
	// Go has no explicit free; dropping the last reference to the block
	// (removing it from every list that holds it) is what lets the GC
	// reclaim it.
}
