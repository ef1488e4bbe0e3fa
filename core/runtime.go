package core

import "unsafe"

// Installed represents one CodeHolder's image resident in JIT-allocated
// executable memory. Release returns the memory to the allocator; the
// function pointer is invalid after Release.
type Installed struct {
	alloc   *JitAllocator
	handle  Handle
	addr    uintptr
	size    int
}

// Addr returns the installed code's executable base address.
func (in *Installed) Addr() uintptr { return in.addr }

// FuncPointer returns the installed code as an unsafe.Pointer suitable for
// conversion to a Go function value via reflect/unsafe function-pointer
// tricks, the caller's responsibility per spec §6 ("machine-code
// execution beyond installation" is out of scope for this core).
func (in *Installed) FuncPointer() unsafe.Pointer {
	return unsafe.Pointer(in.addr)
}

// Release returns the installed code's memory to the JIT allocator.
func (in *Installed) Release() error {
	return in.alloc.Release(in.addr)
}

// Install lays out h at a base address chosen by alloc (by first reserving
// space, then relocating against that address), copies the resulting
// image into the reserved memory, and flushes it to executable.
//
// Grounded in the teacher's HotReloadManager.LoadHotFunction /
// CodePage.CopyCode / FreePage cycle (hotreload_unix.go), generalized from
// "reload one named hot function" to "install any laid-out CodeHolder".
func Install(h *CodeHolder, alloc *JitAllocator) (*Installed, error) {
	// A first relocate() at address 0 gives us the total size so we know
	// how much executable memory to request; sections with absolute
	// relocations are re-resolved against the real address afterward.
	probe, err := h.Relocate(0)
	if err != nil {
		return nil, err
	}
	size := len(probe.Bytes)
	if size == 0 {
		return nil, newError(InvalidArgument, "nothing to install: codeholder produced an empty image")
	}

	rx, rw, handle, err := alloc.Alloc(size, h.arch.StackAlign)
	if err != nil {
		return nil, err
	}

	img, err := h.Relocate(uint64(rx))
	if err != nil {
		_ = alloc.Release(rx)
		return nil, err
	}

	dst := unsafe.Slice((*byte)(unsafe.Pointer(rw)), len(img.Bytes))
	copy(dst, img.Bytes)

	if err := alloc.Flush(handle); err != nil {
		_ = alloc.Release(rx)
		return nil, err
	}

	return &Installed{alloc: alloc, handle: handle, addr: rx, size: size}, nil
}
