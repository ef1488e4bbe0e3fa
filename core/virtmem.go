package core

// Protection is a requested page protection mode.
type Protection uint8

const (
	ProtNone Protection = iota
	ProtRW
	ProtRX
	ProtRWX
)

// VirtualMemory abstracts the OS primitives the JIT allocator needs:
// reserve/commit/protect/release a virtual range, query the page size,
// and synchronize the instruction cache after writing fresh code. Spec §6
// requires the allocator not depend on any specific OS API names; this
// interface is that thin adapter, with one implementation per OS family
// (virtmem_unix.go, virtmem_windows.go).
type VirtualMemory interface {
	// PageSize returns the OS page size in bytes. Queried once and
	// cached behind an idempotent initializer per spec §9.
	PageSize() int

	// Reserve obtains a fresh, zeroed range of at least size bytes,
	// rounded up to the OS allocation granularity, initially mapped with
	// prot. Returns the range's base address.
	Reserve(size int, prot Protection) (uintptr, error)

	// Protect changes the protection of [addr, addr+size) to prot.
	Protect(addr uintptr, size int, prot Protection) error

	// Release returns a previously reserved range to the OS. addr must
	// be exactly the address returned by Reserve.
	Release(addr uintptr, size int) error

	// DualMappingSupported reports whether this platform can hand back
	// two distinct virtual addresses backed by the same physical pages
	// (one RW, one RX), avoiding the need to ever toggle W^X on a single
	// mapping.
	DualMappingSupported() bool

	// ReserveDual behaves like Reserve but returns both an RX and an RW
	// view of the same physical pages. Only valid when
	// DualMappingSupported reports true.
	ReserveDual(size int) (rx, rw uintptr, err error)

	// FlushInstructionCache synchronizes the instruction cache for
	// [addr, addr+size) after code has been written there. A no-op on
	// x86 (coherent icache); architectures with incoherent icaches
	// (ARM) require explicit IC/DSB/ISB sequences — left as an external
	// collaborator's concern since this core ships only the x86 encoder,
	// but the hook exists so the allocator's contract does not change if
	// an ARM backend is added later.
	FlushInstructionCache(addr uintptr, size int)
}
