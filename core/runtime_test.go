package core

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// TestInstallFoldsConstPoolExactlyOnce exercises Install's probe-then-final
// Relocate pattern against a holder with a non-empty constant pool. Before
// constPool.fold was made idempotent, the second Relocate call re-appended
// every bucket entry on top of the first fold, so the final image outgrew
// the allocation Install sized from the first (probe) image — this test
// pins both the size stability and the correctness of the rip-relative
// reference the installed code carries to its pool entry.
func TestInstallFoldsConstPoolExactlyOnce(t *testing.T) {
	h := newTestHolder(t)
	textSec, _ := h.Section(0)
	if _, err := h.NewSection(".rodata", SectionReadable, 8); err != nil {
		t.Fatalf("NewSection: %v", err)
	}

	key, err := h.Pool().AddUint64(0x1122334455667788)
	if err != nil {
		t.Fatalf("AddUint64: %v", err)
	}
	label := h.Pool().Label(h, key)

	// mov rax, [rip+label]: opcode bytes then a placeholder rel32, exactly
	// as x86.Encoder's writeModRM/queueLabelFixup would emit for
	// core.MemRIP(label, core.Size64).
	textSec.Buffer.WriteBytes([]byte{0x48, 0x8B, 0x05})
	siteOffset := int64(textSec.Buffer.Len())
	textSec.Buffer.WriteZeros(4)
	h.AddRelocation(Relocation{
		SourceSection: 0,
		SourceOffset:  siteOffset,
		TargetKind:    RelocRelativeToLabel,
		LabelTarget:   label,
		Size:          4,
	})

	alloc := NewJitAllocator(JitAllocatorConfig{}, nil)
	installed, err := Install(h, alloc)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	defer installed.Release()

	// A third Relocate call against the installed address must reproduce
	// exactly the size Install already allocated for: a non-idempotent
	// fold would grow the image by another copy of the pool's bytes here.
	again, err := h.Relocate(uint64(installed.Addr()))
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if len(again.Bytes) != installed.size {
		t.Fatalf("size not stable across repeated Relocate: installed %d bytes, re-relocated %d bytes", installed.size, len(again.Bytes))
	}

	dst := unsafe.Slice((*byte)(installed.FuncPointer()), installed.size)
	disp := int32(binary.LittleEndian.Uint32(dst[siteOffset : siteOffset+4]))
	nextInstr := int64(installed.Addr()) + siteOffset + 4
	gotTarget := uint64(nextInstr + int64(disp))

	wantTarget, ok := h.Pool().resolvedAddr(key)
	if !ok {
		t.Fatal("pool key was never folded to an address")
	}
	if gotTarget != wantTarget {
		t.Fatalf("rip-relative target: got 0x%x want 0x%x", gotTarget, wantTarget)
	}

	var gotConst uint64
	constOffset := wantTarget - uint64(installed.Addr())
	gotConst = binary.LittleEndian.Uint64(dst[constOffset : constOffset+8])
	if gotConst != 0x1122334455667788 {
		t.Fatalf("folded constant: got 0x%x want 0x1122334455667788", gotConst)
	}
}

// TestInstallRejectsEmptyHolder matches the existing InvalidArgument guard
// in Install for a holder that produced no bytes at all.
func TestInstallRejectsEmptyHolder(t *testing.T) {
	h := newTestHolder(t)
	alloc := NewJitAllocator(JitAllocatorConfig{}, nil)
	if _, err := Install(h, alloc); err == nil {
		t.Fatal("expected InvalidArgument installing an empty codeholder")
	} else if e, ok := err.(*Error); !ok || e.Kind != InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
