package core

// poolPageSize is the number of elements per backing page.
const poolPageSize = 128

// pool is a paged bump allocator for a fixed element type. It backs the
// label fix-up chain and the relocation table: both are described by the
// spec as "arena-allocated, released en masse when the CodeHolder resets",
// and a generic paged pool gives that lifecycle without per-node
// heap churn or unsafe pointer arithmetic over a raw byte Zone. Grounded
// on wazero's internal/engine/wazevo/wazevoapi.Pool, which solves the same
// problem for its own compiler-internal node allocation.
type pool[T any] struct {
	pages     []*[poolPageSize]T
	index     int
	allocated int
}

func newPool[T any]() pool[T] {
	var p pool[T]
	p.index = poolPageSize
	return p
}

// allocate returns a pointer to a new zero-valued T.
func (p *pool[T]) allocate() *T {
	if p.index == poolPageSize {
		p.pages = append(p.pages, new([poolPageSize]T))
		p.index = 0
	}
	ret := &p.pages[len(p.pages)-1][p.index]
	p.index++
	p.allocated++
	return ret
}

// reset releases every page, zeroing element content as it goes so stale
// pointers (there should be none live) cannot observe old data.
func (p *pool[T]) reset() {
	for _, page := range p.pages {
		for i := range page {
			var zero T
			page[i] = zero
		}
	}
	p.pages = p.pages[:0]
	p.index = poolPageSize
	p.allocated = 0
}
