//go:build windows

package core

import (
	"sync"

	"golang.org/x/sys/windows"
)

// windowsVirtualMemory implements VirtualMemory over
// golang.org/x/sys/windows's VirtualAlloc/VirtualProtect/VirtualFree,
// completing the cross-platform W^X story spec §4.4 requires (see
// DESIGN.md).
type windowsVirtualMemory struct{}

var (
	pageSizeOnce sync.Once
	pageSize     int
)

func (windowsVirtualMemory) PageSize() int {
	pageSizeOnce.Do(func() {
		var si windows.SystemInfo
		windows.GetSystemInfo(&si)
		pageSize = int(si.PageSize)
	})
	return pageSize
}

func winProtect(p Protection) uint32 {
	switch p {
	case ProtNone:
		return windows.PAGE_NOACCESS
	case ProtRW:
		return windows.PAGE_READWRITE
	case ProtRX:
		return windows.PAGE_EXECUTE_READ
	case ProtRWX:
		return windows.PAGE_EXECUTE_READWRITE
	default:
		return windows.PAGE_NOACCESS
	}
}

func (v windowsVirtualMemory) Reserve(size int, prot Protection) (uintptr, error) {
	alloc := roundUpToPage(size, v.PageSize())
	addr, err := windows.VirtualAlloc(0, uintptr(alloc), windows.MEM_COMMIT|windows.MEM_RESERVE, winProtect(prot))
	if err != nil {
		return 0, newError(OutOfMemory, "VirtualAlloc %d bytes: %v", alloc, err)
	}
	return addr, nil
}

func (v windowsVirtualMemory) Protect(addr uintptr, size int, prot Protection) error {
	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(size), winProtect(prot), &old); err != nil {
		return newError(ProtectionFailed, "VirtualProtect: %v", err)
	}
	return nil
}

func (windowsVirtualMemory) Release(addr uintptr, size int) error {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return newError(ExecutableMemoryFailed, "VirtualFree: %v", err)
	}
	return nil
}

// DualMappingSupported is false: a separate RW view of the same physical
// pages requires a file-mapping-backed section (CreateFileMapping +
// MapViewOfFile twice), which is a reasonable future extension but is not
// implemented here — the allocator falls back to serialized W^X toggling.
func (windowsVirtualMemory) DualMappingSupported() bool { return false }

func (windowsVirtualMemory) ReserveDual(size int) (uintptr, uintptr, error) {
	return 0, 0, newError(InvalidOption, "dual mapping is not supported by this virtual memory backend")
}

func (windowsVirtualMemory) FlushInstructionCache(addr uintptr, size int) {}

// NewVirtualMemory returns the default VirtualMemory for this OS.
func NewVirtualMemory() VirtualMemory { return windowsVirtualMemory{} }

func roundUpToPage(n, pageSize int) int {
	if pageSize <= 0 {
		return n
	}
	return (n + pageSize - 1) &^ (pageSize - 1)
}
