package core

import "testing"

// fakeVMem is an in-process VirtualMemory backend for deterministic tests
// that don't need a real mmap — it simulates reservations over a byte
// slice so tests can run without OS privileges.
type fakeVMem struct {
	next   uintptr
	arenas map[uintptr][]byte
}

func newFakeVMem() *fakeVMem {
	return &fakeVMem{next: 0x10000, arenas: make(map[uintptr][]byte)}
}

func (f *fakeVMem) PageSize() int { return 4096 }

func (f *fakeVMem) Reserve(size int, prot Protection) (uintptr, error) {
	addr := f.next
	f.next += uintptr(size) + 0x1000 // gap so ranges never touch
	f.arenas[addr] = make([]byte, size)
	return addr, nil
}

func (f *fakeVMem) Protect(addr uintptr, size int, prot Protection) error { return nil }

func (f *fakeVMem) Release(addr uintptr, size int) error {
	delete(f.arenas, addr)
	return nil
}

func (f *fakeVMem) DualMappingSupported() bool { return false }

func (f *fakeVMem) ReserveDual(size int) (uintptr, uintptr, error) {
	return 0, 0, newError(InvalidOption, "fakeVMem has no dual mapping")
}

func (f *fakeVMem) FlushInstructionCache(addr uintptr, size int) {}

func newTestAllocator(granularity, poolSize int) *JitAllocator {
	return NewJitAllocator(JitAllocatorConfig{
		Granularity:     granularity,
		InitialPoolSize: poolSize,
		PoolSizeCap:     poolSize,
	}, newFakeVMem())
}

// TestAllocReleaseFirstFit matches spec §8 scenario 5: granularity 64,
// block size 4096: allocate {64, 128, 64}, release the first, allocate 64
// again reuses the freed slot.
func TestAllocReleaseFirstFit(t *testing.T) {
	a := newTestAllocator(64, 4096)

	p1, _, _, err := a.Alloc(64, 64)
	if err != nil {
		t.Fatalf("alloc 1: %v", err)
	}
	p2, _, _, err := a.Alloc(128, 64)
	if err != nil {
		t.Fatalf("alloc 2: %v", err)
	}
	_, _, _, err = a.Alloc(64, 64)
	if err != nil {
		t.Fatalf("alloc 3: %v", err)
	}

	if err := a.Release(p1); err != nil {
		t.Fatalf("release p1: %v", err)
	}

	p4, _, _, err := a.Alloc(64, 64)
	if err != nil {
		t.Fatalf("alloc 4: %v", err)
	}
	if p4 != p1 {
		t.Fatalf("expected first-fit reuse of freed slot at 0x%x, got 0x%x (p2=0x%x)", p1, p4, p2)
	}
}

func TestAllocZeroSizeFails(t *testing.T) {
	a := newTestAllocator(64, 4096)
	if _, _, _, err := a.Alloc(0, 64); err == nil {
		t.Fatal("expected InvalidArgument for zero-size allocation")
	} else if e, ok := err.(*Error); !ok || e.Kind != InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestAllocExactBlockSizeSetsStop(t *testing.T) {
	a := newTestAllocator(64, 4096)
	p, _, h, err := a.Alloc(4096, 64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	b, start, end, err := a.locate(p)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if start != 0 || end != b.granuleCount-1 {
		t.Fatalf("expected full-block run [0,%d), got [%d,%d]", b.granuleCount, start, end)
	}
	if !b.stop.get(end) {
		t.Fatal("expected stop bit set on last granule")
	}
	_ = h
}

// TestAllocReleaseRestoresUsedCount matches spec §8's round-trip property:
// alloc(n); release(p) restores used-block count to its prior value.
func TestAllocReleaseRestoresUsedCount(t *testing.T) {
	a := newTestAllocator(64, 1<<16)
	before := a.Stats().Used

	p, _, _, err := a.Alloc(256, 64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := a.Release(p); err != nil {
		t.Fatalf("release: %v", err)
	}

	after := a.Stats().Used
	if before != after {
		t.Fatalf("expected used count to return to %d, got %d", before, after)
	}
}

func TestReleaseInteriorPointerRejected(t *testing.T) {
	a := newTestAllocator(64, 4096)
	p, _, _, err := a.Alloc(128, 64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	interior := p + 64
	if err := a.Release(interior); err == nil {
		t.Fatal("expected InvalidArgument releasing an interior pointer")
	} else if e, ok := err.(*Error); !ok || e.Kind != InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestReleaseUnknownPointerRejected(t *testing.T) {
	a := newTestAllocator(64, 4096)
	if err := a.Release(0xdeadbeef); err == nil {
		t.Fatal("expected InvalidArgument releasing an unknown pointer")
	}
}

func TestShrinkMovesStopBit(t *testing.T) {
	a := newTestAllocator(64, 4096)
	p, _, _, err := a.Alloc(256, 64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := a.Shrink(p, 65); err != nil {
		t.Fatalf("shrink: %v", err)
	}
	b, start, end, err := a.locate(p)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if end-start != 1 {
		t.Fatalf("expected 2-granule run after shrinking 256->65 bytes, got %d granules", end-start+1)
	}
	if !b.stop.get(end) {
		t.Fatal("expected stop bit on the new last granule")
	}
}

func TestStatsReportsBlockCount(t *testing.T) {
	a := newTestAllocator(64, 4096)
	if _, _, _, err := a.Alloc(64, 64); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	s := a.Stats()
	if s.Blocks != 1 {
		t.Fatalf("expected 1 block, got %d", s.Blocks)
	}
	if s.Used != 64 {
		t.Fatalf("expected 64 used bytes, got %d", s.Used)
	}
	if s.Reserved != 4096 {
		t.Fatalf("expected 4096 reserved bytes, got %d", s.Reserved)
	}
}
