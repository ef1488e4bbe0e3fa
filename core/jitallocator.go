package core

import (
	"sync"
)

// Handle identifies one live allocation returned by JitAllocator.Alloc. It
// is the same value as the allocation's RX address; kept as a distinct
// type so call sites read as "a JIT allocation", not "a raw pointer".
type Handle uintptr

// JitAllocatorConfig configures a JitAllocator's tunables. Zero values are
// replaced by DefaultJitAllocatorConfig's defaults.
type JitAllocatorConfig struct {
	// Granularity is the smallest allocation unit and alignment, a power
	// of two >= 64 (spec §4.4, default 64 — cache-line size, also the
	// AVX-512 aligned load/store requirement).
	Granularity int
	// InitialPoolSize is the size of the first OS reservation; later
	// reservations double up to PoolSizeCap.
	InitialPoolSize int
	// PoolSizeCap bounds how large a single OS reservation can grow to.
	PoolSizeCap int
}

// DefaultJitAllocatorConfig returns the spec's stated defaults.
func DefaultJitAllocatorConfig() JitAllocatorConfig {
	return JitAllocatorConfig{
		Granularity:     64,
		InitialPoolSize: 64 * 1024,
		PoolSizeCap:     1 << 20,
	}
}

// block is one contiguous OS-reserved range, partitioned into
// blockCount granules of Granularity bytes each. Two parallel bit arrays
// track occupancy: used[i] means granule i belongs to a live allocation;
// stop[i] means granule i is the last granule of its allocation. The
// invariant stop[i] => used[i] always holds (spec §3).
type block struct {
	base        uintptr
	size        int
	granuleCount int

	used bitArray
	stop bitArray

	usedGranules int

	node  rbNode // address-keyed tree node, embedded per spec §4.5
	prev  *block // intrusive list
	next  *block

	// protection tracks whether this block's pages are currently RW or
	// RX, and how many allocations within it are still mid-write (see
	// JitAllocator.Flush). Without dual mapping, the whole block shares
	// one protection state, so the spec's "serialize writes and
	// executions per block" fallback note applies at block granularity.
	executable bool
	writers    int
}

func newBlock(base uintptr, size, granularity int) *block {
	count := size / granularity
	b := &block{
		base:         base,
		size:         size,
		granuleCount: count,
		used:         newBitArray(count),
		stop:         newBitArray(count),
	}
	b.node.key = uint64(base)
	return b
}

// bitArray is a simple fixed-length bitset over []uint64 words.
type bitArray struct {
	words []uint64
	n     int
}

func newBitArray(n int) bitArray {
	return bitArray{words: make([]uint64, (n+63)/64), n: n}
}

func (b *bitArray) get(i int) bool {
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

func (b *bitArray) set(i int, v bool) {
	if v {
		b.words[i/64] |= 1 << uint(i%64)
	} else {
		b.words[i/64] &^= 1 << uint(i%64)
	}
}

// findRun returns the start index of the first run of n consecutive clear
// bits whose start index is a multiple of alignGranules, or -1 if none
// exists. A simple linear scan; block granule counts are small enough
// (pool caps at megabytes / 64-byte granules = tens of thousands of bits)
// that this stays fast relative to the OS reservation it occasionally
// triggers.
func (b *bitArray) findRun(n, alignGranules int) int {
	if alignGranules < 1 {
		alignGranules = 1
	}
	i := 0
	for i+n <= b.n {
		if i%alignGranules != 0 {
			i++
			continue
		}
		ok := true
		for j := 0; j < n; j++ {
			if b.get(i + j) {
				ok = false
				i = i + j + 1
				break
			}
		}
		if ok {
			return i
		}
	}
	return -1
}

// JitAllocator supplies aligned, executable byte ranges to the runtime. It
// is thread-safe: Alloc/Release/Shrink/Stats may be called concurrently,
// serialized by one internal mutex held for the call's duration (spec §5).
// Grounded on the teacher's HotReloadManager (hotreload_unix.go), widened
// from "one mmap per hot function" to a pooled bitmap allocator per spec
// §4.4 and the jitallocator.cpp design note in original_source.
type JitAllocator struct {
	mu sync.Mutex

	cfg  JitAllocatorConfig
	vmem VirtualMemory

	blocks     *block // intrusive list head
	tree       rbTree
	nextReserve int

	byBase map[uintptr]*block // fast exact-address lookup alongside the tree
}

// NewJitAllocator creates an allocator with cfg (zero fields filled from
// DefaultJitAllocatorConfig) over the given VirtualMemory backend. Pass
// nil for vmem to use NewVirtualMemory() for the current OS.
func NewJitAllocator(cfg JitAllocatorConfig, vmem VirtualMemory) *JitAllocator {
	def := DefaultJitAllocatorConfig()
	if cfg.Granularity == 0 {
		cfg.Granularity = def.Granularity
	}
	if cfg.InitialPoolSize == 0 {
		cfg.InitialPoolSize = def.InitialPoolSize
	}
	if cfg.PoolSizeCap == 0 {
		cfg.PoolSizeCap = def.PoolSizeCap
	}
	if vmem == nil {
		vmem = NewVirtualMemory()
	}
	return &JitAllocator{
		cfg:         cfg,
		vmem:        vmem,
		nextReserve: cfg.InitialPoolSize,
		byBase:      make(map[uintptr]*block),
	}
}

// Alloc rounds size up to the allocator's granularity and returns an
// aligned, writable range. Zero size fails with InvalidArgument. If no
// existing block has a fitting free run, a new block is reserved from the
// OS and the search retries.
func (a *JitAllocator) Alloc(size, alignment int) (rx, rw uintptr, handle Handle, err error) {
	if size <= 0 {
		return 0, 0, 0, newError(InvalidArgument, "allocation size must be positive")
	}
	if alignment <= 0 {
		alignment = a.cfg.Granularity
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	granules := (size + a.cfg.Granularity - 1) / a.cfg.Granularity
	alignGranules := 1
	if alignment > a.cfg.Granularity {
		alignGranules = alignment / a.cfg.Granularity
	}

	for attempt := 0; attempt < 2; attempt++ {
		for b := a.blocks; b != nil; b = b.next {
			start := b.used.findRun(granules, alignGranules)
			if start < 0 {
				continue
			}
			a.commitRun(b, start, granules)
			addr := b.base + uintptr(start*a.cfg.Granularity)
			return uintptr(addr), uintptr(addr), Handle(addr), nil
		}
		if attempt == 0 {
			if err := a.reserveBlock(granules); err != nil {
				return 0, 0, 0, err
			}
		}
	}
	return 0, 0, 0, newError(OutOfMemory, "no block could satisfy a %d-byte allocation", size)
}

func (a *JitAllocator) commitRun(b *block, start, granules int) {
	for i := 0; i < granules; i++ {
		b.used.set(start+i, true)
	}
	b.stop.set(start+granules-1, true)
	b.usedGranules += granules
	a.ensureWritable(b)
	b.writers++
}

// ensureWritable protects a block back to RW if it had been switched to RX
// by a prior Flush; a block is executable only while no allocation within
// it is mid-write.
func (a *JitAllocator) ensureWritable(b *block) {
	if b.executable {
		if err := a.vmem.Protect(b.base, b.size, ProtRW); err == nil {
			b.executable = false
		}
	}
}

func (a *JitAllocator) reserveBlock(minGranules int) error {
	need := minGranules * a.cfg.Granularity
	size := a.nextReserve
	for size < need {
		size *= 2
	}
	if a.nextReserve < a.cfg.PoolSizeCap {
		a.nextReserve *= 2
		if a.nextReserve > a.cfg.PoolSizeCap {
			a.nextReserve = a.cfg.PoolSizeCap
		}
	}

	addr, err := a.vmem.Reserve(size, ProtRW)
	if err != nil {
		return err
	}
	b := newBlock(addr, size, a.cfg.Granularity)
	b.next = a.blocks
	if a.blocks != nil {
		a.blocks.prev = b
	}
	a.blocks = b
	a.byBase[addr] = b
	a.tree.insert(&b.node)
	return nil
}

// Flush marks handle's bytes as finalized: once every still-writing
// allocation in its block has flushed, the block is switched RW→RX and the
// instruction cache is synchronized, per spec §4.4.
func (a *JitAllocator) Flush(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, _, _, err := a.locate(uintptr(h))
	if err != nil {
		return err
	}
	if b.writers > 0 {
		b.writers--
	}
	if b.writers == 0 && !b.executable {
		if err := a.vmem.Protect(b.base, b.size, ProtRX); err != nil {
			return err
		}
		b.executable = true
		a.vmem.FlushInstructionCache(b.base, b.size)
	}
	return nil
}

// locate maps a pointer back to its owning block and the granule index of
// its allocation's first and last granule. Interior pointers (not exactly
// an allocation's base) are rejected with InvalidArgument, per spec §9's
// Open Question resolution.
func (a *JitAllocator) locate(ptr uintptr) (b *block, start, end int, err error) {
	n := a.tree.predecessor(uint64(ptr))
	if n == nil {
		return nil, 0, 0, newError(InvalidArgument, "pointer 0x%x is not owned by this allocator", ptr)
	}
	b = a.byBase[uintptr(n.key)]
	if b == nil || ptr < b.base || ptr >= b.base+uintptr(b.size) {
		return nil, 0, 0, newError(InvalidArgument, "pointer 0x%x is not owned by this allocator", ptr)
	}
	idx := int(ptr-b.base) / a.cfg.Granularity
	if b.base+uintptr(idx*a.cfg.Granularity) != ptr {
		return nil, 0, 0, newError(InvalidArgument, "pointer 0x%x is not an allocation base", ptr)
	}
	if !b.used.get(idx) {
		return nil, 0, 0, newError(InvalidArgument, "pointer 0x%x does not start a live allocation", ptr)
	}
	// A granule that follows a used, non-stop granule lies inside an
	// earlier allocation rather than starting one.
	if idx > 0 && b.used.get(idx-1) && !b.stop.get(idx-1) {
		return nil, 0, 0, newError(InvalidArgument, "pointer 0x%x is not an allocation base", ptr)
	}
	end = idx
	for !b.stop.get(end) {
		end++
	}
	return b, idx, end, nil
}

// Release frees the allocation at rxPtr, restoring the allocator's used
// granule count to what it was before the matching Alloc.
func (a *JitAllocator) Release(rxPtr uintptr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, start, end, err := a.locate(rxPtr)
	if err != nil {
		return err
	}
	for i := start; i <= end; i++ {
		b.used.set(i, false)
	}
	b.stop.set(end, false)
	b.usedGranules -= end - start + 1

	if b.usedGranules == 0 {
		a.maybeReturnToOS(b)
	}
	return nil
}

// maybeReturnToOS implements the "retain one empty block per pool" churn
// dampener: an emptied block is only handed back to the OS if another
// empty block already exists to absorb the next allocation burst.
func (a *JitAllocator) maybeReturnToOS(empty *block) {
	for other := a.blocks; other != nil; other = other.next {
		if other != empty && other.usedGranules == 0 {
			a.removeBlock(empty)
			return
		}
	}
}

func (a *JitAllocator) removeBlock(b *block) {
	if b.prev != nil {
		b.prev.next = b.next
	} else {
		a.blocks = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	}
	a.tree.delete(&b.node)
	delete(a.byBase, b.base)
	_ = a.vmem.Release(b.base, b.size)
}

// Shrink truncates the allocation at rxPtr in place to newSize bytes,
// clearing the tail granules and moving the stop bit to the new last
// granule. newSize must not exceed the allocation's current size.
func (a *JitAllocator) Shrink(rxPtr uintptr, newSize int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, start, end, err := a.locate(rxPtr)
	if err != nil {
		return err
	}
	newGranules := (newSize + a.cfg.Granularity - 1) / a.cfg.Granularity
	if newGranules < 1 {
		newGranules = 1
	}
	oldGranules := end - start + 1
	if newGranules > oldGranules {
		return newError(InvalidArgument, "shrink requested a larger size than the current allocation")
	}
	newEnd := start + newGranules - 1
	for i := newEnd + 1; i <= end; i++ {
		b.used.set(i, false)
	}
	b.stop.set(end, false)
	b.stop.set(newEnd, true)
	b.usedGranules -= oldGranules - newGranules
	return nil
}

// Stats summarizes the allocator's current pool occupancy.
type Stats struct {
	Reserved    int64
	Used        int64
	Blocks      int
	LargestFree int64
}

// Stats returns a point-in-time snapshot of the allocator's pools.
func (a *JitAllocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var s Stats
	for b := a.blocks; b != nil; b = b.next {
		s.Reserved += int64(b.size)
		s.Used += int64(b.usedGranules * a.cfg.Granularity)
		s.Blocks++
		if free := int64(largestFreeRun(b)) * int64(a.cfg.Granularity); free > s.LargestFree {
			s.LargestFree = free
		}
	}
	return s
}

func largestFreeRun(b *block) int {
	best, cur := 0, 0
	for i := 0; i < b.granuleCount; i++ {
		if b.used.get(i) {
			cur = 0
			continue
		}
		cur++
		if cur > best {
			best = cur
		}
	}
	return best
}
