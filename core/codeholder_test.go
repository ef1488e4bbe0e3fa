package core

import "testing"

func newTestHolder(t *testing.T) *CodeHolder {
	t.Helper()
	h, err := Init(NewX64Descriptor(0))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return h
}

func TestInitRejectsUnsupportedArch(t *testing.T) {
	_, err := Init(ArchDescriptor{Family: FamilyARM64})
	if err == nil {
		t.Fatal("expected InvalidArch for an ARM64 descriptor")
	}
	if e, ok := err.(*Error); !ok || e.Kind != InvalidArch {
		t.Fatalf("expected InvalidArch, got %v", err)
	}
}

func TestNewSectionRejectsDuplicateName(t *testing.T) {
	h := newTestHolder(t)
	if _, err := h.NewSection(".text", SectionExecutable, 16); err == nil {
		t.Fatal("expected OverlappingSection for a duplicate name")
	}
}

func TestLabelBindTwiceFails(t *testing.T) {
	h := newTestHolder(t)
	l := h.NewLabel()
	if err := h.BindLabel(l, 0, 0); err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if err := h.BindLabel(l, 0, 4); err == nil {
		t.Fatal("expected LabelAlreadyBound on second bind")
	} else if e, ok := err.(*Error); !ok || e.Kind != LabelAlreadyBound {
		t.Fatalf("expected LabelAlreadyBound, got %v", err)
	}
}

// TestForwardFixupPatchesOnBind mirrors spec §8 scenario 3 at the core
// level (jmp L; <5 bytes>; L:): a 1-byte PC-relative fix-up is queued
// against the unbound label, five bytes are appended, and binding the
// label patches the displacement to land just past them.
func TestForwardFixupPatchesOnBind(t *testing.T) {
	h := newTestHolder(t)
	sec, _ := h.Section(0)

	l := h.NewLabel()
	sec.Buffer.WriteByte(0xEB) // jmp rel8
	fixupOffset := int64(sec.Buffer.Len())
	sec.Buffer.WriteZeros(1)
	if err := h.QueueFixup(l, 0, fixupOffset, FixupPCRelative1); err != nil {
		t.Fatalf("QueueFixup: %v", err)
	}
	for i := 0; i < 5; i++ {
		sec.Buffer.WriteByte(0x90) // nop
	}
	labelOffset := int64(sec.Buffer.Len())
	if err := h.BindLabel(l, 0, labelOffset); err != nil {
		t.Fatalf("BindLabel: %v", err)
	}

	want := []byte{0xEB, 0x05, 0x90, 0x90, 0x90, 0x90, 0x90}
	got := sec.Buffer.Bytes()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x (full: % x)", i, got[i], want[i], got)
		}
	}
}

// TestCrossSectionRelocation mirrors spec §8 scenario 6: a label bound in
// a second section is referenced PC-relative-ly from the first, and
// Relocate resolves it against the assigned base addresses.
func TestCrossSectionRelocation(t *testing.T) {
	h := newTestHolder(t)
	textSec, _ := h.Section(0)
	dataID, err := h.NewSection(".data", SectionReadable, 8)
	if err != nil {
		t.Fatalf("NewSection: %v", err)
	}
	dataSec, _ := h.Section(dataID)

	label := h.NewLabel()
	dataSec.Buffer.WriteBytes([]byte{0x2A, 0, 0, 0, 0, 0, 0, 0})
	if err := h.BindLabel(label, dataID, 0); err != nil {
		t.Fatalf("BindLabel: %v", err)
	}

	// A 4-byte PC-relative reference in .text, as if emitted by `mov rax,
	// [rip+label]`: opcode bytes then a 4-byte placeholder disp32.
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

	img, err := h.Relocate(0x1000)
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if img.TotalSize <= 0 {
		t.Fatalf("expected positive total size, got %d", img.TotalSize)
	}
	// .text holds 7 bytes at 0x1000 and .data is 8-aligned at 0x1008, so
	// the disp32 at 0x1003 is 0x1008 - (0x1003 + 4) = 1.
	if got := img.Bytes[siteOffset : siteOffset+4]; string(got) != "\x01\x00\x00\x00" {
		t.Fatalf("disp32: got % x want 01 00 00 00", got)
	}
}

func TestRelocateFailsOnUnboundLabelTarget(t *testing.T) {
	h := newTestHolder(t)
	sec, _ := h.Section(0)
	label := h.NewLabel() // never bound

	sec.Buffer.WriteBytes([]byte{0xE9})
	off := int64(sec.Buffer.Len())
	sec.Buffer.WriteZeros(4)
	h.AddRelocation(Relocation{SourceSection: 0, SourceOffset: off, TargetKind: RelocRelativeToLabel, LabelTarget: label, Size: 4})

	if _, err := h.Relocate(0); err == nil {
		t.Fatal("expected RelocationFailed for a never-bound label")
	}
}

func TestConstPoolDedupes(t *testing.T) {
	p := newConstPool()
	k1, err := p.AddUint64(42)
	if err != nil {
		t.Fatalf("AddUint64: %v", err)
	}
	k2, err := p.AddUint64(42)
	if err != nil {
		t.Fatalf("AddUint64: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected identical content to dedup to the same key, got %d and %d", k1, k2)
	}
	k3, err := p.AddUint64(43)
	if err != nil {
		t.Fatalf("AddUint64: %v", err)
	}
	if k3 == k1 {
		t.Fatal("expected distinct content to get a distinct key")
	}
}

func TestStickyFirstError(t *testing.T) {
	h := newTestHolder(t)
	emitter := &Emitter{
		Kind: EmitterAssembler,
		Emit: func(instID uint32, ops [6]Operand) error {
			return &Error{Kind: InvalidInstruction, Msg: "boom"}
		},
	}
	a := h.Attach(emitter)
	err1 := a.emit(1, [6]Operand{})
	err2 := a.emit(2, [6]Operand{})
	if err1 != err2 {
		t.Fatalf("expected sticky first error to repeat, got %v then %v", err1, err2)
	}
	a.ClearError()
	if a.Err() != nil {
		t.Fatal("expected ClearError to reset sticky state")
	}
}
