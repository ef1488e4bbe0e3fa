package core

import "encoding/binary"

// constEntrySizes are the legal element widths for constant-pool buckets,
// per spec §3 ("an append-only list of buckets keyed by element size (1,
// 2, 4, 8, 16, 32, 64 bytes)").
var constEntrySizes = [...]int{1, 2, 4, 8, 16, 32, 64}

// constPool is a deduplicating, size-bucketed pool of read-only data. Each
// distinct entry yields a stable key, which Label turns into a core.LabelID
// an x86 instruction (e.g. MemRIP) can reference directly; the pool is
// folded into a section at layout.
type constPool struct {
	buckets map[int]*constBucket
	// resolved maps a dedup key to its final address, populated by fold().
	resolved map[uint64]uint64
	// offsets maps a dedup key to its byte offset within the folded
	// section, populated by fold() and consumed by CodeHolder.Relocate to
	// bind each key's label.
	offsets map[uint64]int64
	// labels maps a dedup key to the label minted for it by Label, if any.
	labels  map[uint64]LabelID
	nextKey uint64

	// folded and preFoldLen make fold idempotent: CodeHolder.Install calls
	// Relocate twice (probe, then final against the real address), and
	// without this a second fold would re-append every bucket entry on top
	// of the first fold's bytes.
	folded     bool
	preFoldLen int
}

type constBucket struct {
	size    int
	entries [][]byte // byte content per distinct entry, in insertion order
	index   map[string]uint64 // content -> dedup key
}

func newConstPool() *constPool {
	return &constPool{
		buckets:  make(map[int]*constBucket),
		resolved: make(map[uint64]uint64),
		offsets:  make(map[uint64]int64),
		labels:   make(map[uint64]LabelID),
	}
}

func bucketSizeFor(n int) (int, error) {
	for _, s := range constEntrySizes {
		if n <= s {
			return s, nil
		}
	}
	return 0, newError(InvalidOperand, "constant of %d bytes exceeds the largest pool bucket (64)", n)
}

// Add inserts data (padded to its bucket's element size) and returns a
// dedup key stable for the CodeHolder's lifetime. Identical content
// (same bytes, same bucket) returns the same key.
func (p *constPool) Add(data []byte) (uint64, error) {
	size, err := bucketSizeFor(len(data))
	if err != nil {
		return 0, err
	}
	padded := make([]byte, size)
	copy(padded, data)

	b, ok := p.buckets[size]
	if !ok {
		b = &constBucket{size: size, index: make(map[string]uint64)}
		p.buckets[size] = b
	}
	if key, ok := b.index[string(padded)]; ok {
		return key, nil
	}
	key := p.nextKey
	p.nextKey++
	b.entries = append(b.entries, padded)
	b.index[string(padded)] = key
	return key, nil
}

// AddUint64 is a convenience wrapper for the common 8-byte constant case.
func (p *constPool) AddUint64(v uint64) (uint64, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return p.Add(buf)
}

// fold appends every bucket's entries (largest element size first, to keep
// natural alignment cheap) into buf, whose existing content starts at
// baseAddr, recording each key's resolved address and section offset.
//
// Idempotent: a second call (CodeHolder.Install's probe-then-final
// Relocate) truncates buf back to the length it had just before the first
// fold and re-emits fresh, rather than appending a second copy on top.
func (p *constPool) fold(buf *CodeBuffer, baseAddr uint64) {
	if p.folded {
		buf.Truncate(p.preFoldLen)
	} else {
		p.preFoldLen = buf.Len()
		p.folded = true
	}
	for i := len(constEntrySizes) - 1; i >= 0; i-- {
		size := constEntrySizes[i]
		b, ok := p.buckets[size]
		if !ok {
			continue
		}
		buf.AlignTo(size, 0)
		for _, entry := range b.entries {
			offset := buf.Len()
			key := b.index[string(entry)]
			p.resolved[key] = baseAddr + uint64(offset)
			p.offsets[key] = int64(offset)
			buf.WriteBytes(entry)
		}
	}
}

func (p *constPool) resolvedAddr(key uint64) (uint64, bool) {
	addr, ok := p.resolved[key]
	return addr, ok
}

// Label returns a core.LabelID that resolves to key's folded address once
// the holder is laid out via CodeHolder.Relocate — the bridge spec §3's
// "each entry yields a label" calls for. Repeated calls for the same key
// return the same label; an x86 instruction with a memory operand (e.g.
// MemRIP) can reference it exactly like any other label.
func (p *constPool) Label(h *CodeHolder, key uint64) LabelID {
	if id, ok := p.labels[key]; ok {
		return id
	}
	id := h.NewLabel()
	p.labels[key] = id
	return id
}

func (p *constPool) reset() {
	p.buckets = make(map[int]*constBucket)
	p.resolved = make(map[uint64]uint64)
	p.offsets = make(map[uint64]int64)
	p.labels = make(map[uint64]LabelID)
	p.nextKey = 0
	p.folded = false
	p.preFoldLen = 0
}
