package core

import "bytes"

// CodeBuffer is a growable byte buffer backing one Section. It supports
// append, in-place patch (for fixing up forward references), and alignment
// padding. Grounded in the teacher's BufferWrapper (emit.go): same
// byte-at-a-time Write/WriteN/Write2/Write4/Write8 shape, generalized from
// a single global writer to one buffer per section.
type CodeBuffer struct {
	buf bytes.Buffer
}

// Len returns the number of bytes currently appended.
func (b *CodeBuffer) Len() int { return b.buf.Len() }

// Bytes returns the buffer's contents. The slice is invalidated by the
// next mutating call.
func (b *CodeBuffer) Bytes() []byte { return b.buf.Bytes() }

// WriteByte appends a single byte.
func (b *CodeBuffer) WriteByte(v byte) {
	b.buf.WriteByte(v)
}

// WriteBytes appends bs verbatim.
func (b *CodeBuffer) WriteBytes(bs []byte) {
	b.buf.Write(bs)
}

// WriteZeros appends n zero bytes, used to reserve space for a later Patch
// (e.g. a forward-label displacement).
func (b *CodeBuffer) WriteZeros(n int) {
	for i := 0; i < n; i++ {
		b.buf.WriteByte(0)
	}
}

// Patch overwrites len(value) bytes starting at offset. offset+len(value)
// must not exceed Len(); it is a programming error otherwise (the table of
// callers here is the label fix-up machinery, which only ever patches
// space it reserved itself).
func (b *CodeBuffer) Patch(offset int, value []byte) {
	dst := b.buf.Bytes()
	copy(dst[offset:offset+len(value)], value)
}

// AlignTo pads the buffer with fill bytes until Len() is a multiple of
// alignment (a power of two). Used for section-internal alignment
// directives (spec §4.2 Emitter.align).
func (b *CodeBuffer) AlignTo(alignment int, fill byte) {
	if alignment <= 1 {
		return
	}
	for b.buf.Len()%alignment != 0 {
		b.buf.WriteByte(fill)
	}
}

// Reset empties the buffer for reuse (CodeHolder.reset).
func (b *CodeBuffer) Reset() {
	b.buf.Reset()
}

// Truncate discards everything past n bytes. n must not exceed Len(); it
// is a programming error otherwise (the only caller is the constant pool's
// fold, undoing its own previous append before re-folding at a new base
// address).
func (b *CodeBuffer) Truncate(n int) {
	b.buf.Truncate(n)
}
