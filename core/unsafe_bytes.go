package core

import "unsafe"

// unsafePointer returns the address of a slice's backing array. Used only
// to hand an mmap'd region's address to callers as a uintptr; the JIT
// allocator's block record keeps that address, not the slice.
func unsafePointer(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Pointer(&data[0])
}

// sliceFromPointer builds a []byte view over an existing mapping so it can
// be passed to mmap-family calls (Mprotect/Munmap) that take a []byte.
func sliceFromPointer(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
