//go:build !windows

package core

import (
	"sync"

	"golang.org/x/sys/unix"
)

// unixVirtualMemory implements VirtualMemory over golang.org/x/sys/unix's
// Mmap/Mprotect/Munmap. Grounded in the teacher's HotReloadManager's raw
// syscall.Syscall6(SYS_MMAP, ...) sequence (hotreload_unix.go), re-expressed
// with the ecosystem library the sibling example (github.com/xyproto/c67)
// already depends on for this exact domain — see DESIGN.md.
type unixVirtualMemory struct{}

var (
	pageSizeOnce sync.Once
	pageSize     int
)

func (unixVirtualMemory) PageSize() int {
	pageSizeOnce.Do(func() {
		pageSize = unix.Getpagesize()
	})
	return pageSize
}

func protFlags(p Protection) int {
	switch p {
	case ProtNone:
		return unix.PROT_NONE
	case ProtRW:
		return unix.PROT_READ | unix.PROT_WRITE
	case ProtRX:
		return unix.PROT_READ | unix.PROT_EXEC
	case ProtRWX:
		return unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	default:
		return unix.PROT_NONE
	}
}

func (v unixVirtualMemory) Reserve(size int, prot Protection) (uintptr, error) {
	alloc := roundUpToPage(size, v.PageSize())
	data, err := unix.Mmap(-1, 0, alloc, protFlags(prot), unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, newError(OutOfMemory, "mmap %d bytes: %v", alloc, err)
	}
	return uintptr(unsafePointer(data)), nil
}

func (v unixVirtualMemory) Protect(addr uintptr, size int, prot Protection) error {
	data := sliceFromPointer(addr, size)
	if err := unix.Mprotect(data, protFlags(prot)); err != nil {
		return newError(ProtectionFailed, "mprotect: %v", err)
	}
	return nil
}

func (v unixVirtualMemory) Release(addr uintptr, size int) error {
	data := sliceFromPointer(addr, size)
	if err := unix.Munmap(data); err != nil {
		return newError(ExecutableMemoryFailed, "munmap: %v", err)
	}
	return nil
}

// DualMappingSupported is false for the plain POSIX path: a second
// memfd/shm_open-backed mapping of the same pages is possible on Linux but
// not portable across the unix targets this core supports without extra
// configuration, so the allocator falls back to serialized W^X toggling
// via Protect + FlushInstructionCache (spec §4.4 "Dual-mapping fallback").
func (unixVirtualMemory) DualMappingSupported() bool { return false }

func (unixVirtualMemory) ReserveDual(size int) (uintptr, uintptr, error) {
	return 0, 0, newError(InvalidOption, "dual mapping is not supported by this virtual memory backend")
}

// FlushInstructionCache is a no-op on x86/x64: the instruction cache is
// coherent with data writes, per spec §4.4.
func (unixVirtualMemory) FlushInstructionCache(addr uintptr, size int) {}

// NewVirtualMemory returns the default VirtualMemory for this OS.
func NewVirtualMemory() VirtualMemory { return unixVirtualMemory{} }

func roundUpToPage(n, pageSize int) int {
	if pageSize <= 0 {
		return n
	}
	return (n + pageSize - 1) &^ (pageSize - 1)
}
