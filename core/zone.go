package core

// Zone is a bump-pointer arena for scratch memory that dies together when
// its owner resets; each CodeHolder owns one (CodeHolder.Zone). Label
// fix-up chains and relocation records are kept in pool[T] instead, and
// red-black tree nodes are embedded in JIT allocator blocks. There is no
// per-object free; Reset drops every block but the first, mirroring the
// teacher's scope-based arena (see arena.go in the
// teacher repo, generalized from a runtime allocation scope to a
// compiler-internal one).
type Zone struct {
	blocks   []*zoneBlock
	cur      int // index of the block currently being bumped
	blockCap int // size of the next block to allocate, doubles up to cap
	maxCap   int
}

type zoneBlock struct {
	data []byte
	used int
}

const (
	zoneDefaultBlockSize = 4096
	zoneMaxBlockSize     = 1 << 20
)

// NewZone creates a Zone with an initial block of initialSize bytes
// (rounded up to zoneDefaultBlockSize if smaller).
func NewZone(initialSize int) *Zone {
	if initialSize < zoneDefaultBlockSize {
		initialSize = zoneDefaultBlockSize
	}
	z := &Zone{blockCap: initialSize, maxCap: zoneMaxBlockSize}
	z.blocks = append(z.blocks, &zoneBlock{data: make([]byte, initialSize)})
	return z
}

// Alloc returns n zeroed bytes aligned to align (a power of two). Align
// beyond the block's own alignment (16 bytes) fails with BadAlignment,
// matching the teacher's "block alignment is the ceiling" policy.
func (z *Zone) Alloc(n int, align int) ([]byte, error) {
	if align <= 0 || (align&(align-1)) != 0 {
		return nil, newError(BadAlignment, "alignment %d is not a power of two", align)
	}
	if align > 16 {
		return nil, newError(BadAlignment, "alignment %d exceeds zone block alignment", align)
	}

	blk := z.blocks[z.cur]
	aligned := alignUp(blk.used, align)
	if aligned+n > len(blk.data) {
		z.growFor(n, align)
		blk = z.blocks[z.cur]
		aligned = alignUp(blk.used, align)
	}
	out := blk.data[aligned : aligned+n]
	blk.used = aligned + n
	return out, nil
}

// MustAlloc is Alloc but panics on BadAlignment, for callers whose
// alignment is a compile-time constant known to be valid.
func (z *Zone) MustAlloc(n int, align int) []byte {
	b, err := z.Alloc(n, align)
	if err != nil {
		panic(err)
	}
	return b
}

func (z *Zone) growFor(n, align int) {
	need := n + align
	size := z.blockCap
	for size < need {
		size *= 2
	}
	if size > z.maxCap && z.maxCap >= need {
		size = z.maxCap
	}
	z.blocks = append(z.blocks, &zoneBlock{data: make([]byte, size)})
	z.cur = len(z.blocks) - 1
	if z.blockCap < z.maxCap {
		z.blockCap *= 2
		if z.blockCap > z.maxCap {
			z.blockCap = z.maxCap
		}
	}
}

// Reset drops every block but the first, and resets that block's bump
// pointer to zero. Memory returned by prior Alloc calls must not be used
// after Reset.
func (z *Zone) Reset() {
	first := z.blocks[0]
	first.used = 0
	z.blocks = z.blocks[:1]
	z.cur = 0
}

func alignUp(v, align int) int {
	return (v + align - 1) &^ (align - 1)
}
