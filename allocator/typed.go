package allocator

import "unsafe"

// AllocateT allocates memory for a value of type T from a, returning a *T
// pointing into that memory, or nil if the allocator is out of inventory or
// T is larger than the largest size class. It is sugar over
// SizedAllocator.Allocate, not a separate code path.
func AllocateT[T any](a *SizedAllocator) *T {
	var zero T
	ptr := a.Allocate(int(unsafe.Sizeof(zero)))
	if ptr == nil {
		return nil
	}
	return (*T)(ptr)
}

// DeallocateT returns a block obtained from AllocateT to its owning pool.
func DeallocateT[T any](a *SizedAllocator, p *T) {
	a.Deallocate(unsafe.Pointer(p))
}

// AllocateSliceT allocates a single fixed-capacity backing array for a
// slice of T, returning a slice of length length and capacity cap. There is
// no growth path: growing a slice backed by this allocator means allocating
// a new, possibly differently-sized block and copying, which is a
// higher-level object lifecycle this package leaves to its caller.
func AllocateSliceT[T any](a *SizedAllocator, length, capacity int) []T {
	if capacity < length {
		capacity = length
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	ptr := a.Allocate(elemSize * capacity)
	if ptr == nil {
		return nil
	}
	return unsafe.Slice((*T)(ptr), capacity)[:length]
}

// DeallocateSliceT returns the backing array of a slice obtained from
// AllocateSliceT to its owning pool. s must still refer to its original
// backing array at offset zero, as AllocateSliceT always returns it.
func DeallocateSliceT[T any](a *SizedAllocator, s []T) {
	if cap(s) == 0 {
		return
	}
	a.Deallocate(unsafe.Pointer(unsafe.SliceData(s)))
}
