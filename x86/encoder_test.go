package x86

import (
	"bytes"
	"testing"

	"github.com/xyproto/jitasm/core"
)

func newTestAsm(t *testing.T) (*core.CodeHolder, *Assembler) {
	t.Helper()
	h, err := core.Init(core.NewX64Descriptor(core.FeatureMask(0).With(core.FeatureSSE2)))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	asm := NewAssembler(h, 0, h.Arch().Features)
	return h, asm
}

func textBytes(t *testing.T, h *core.CodeHolder) []byte {
	t.Helper()
	sec, err := h.Section(0)
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	return sec.Buffer.Bytes()
}

func mustReg(t *testing.T, name string) core.Operand {
	t.Helper()
	op, ok := Lookup(name)
	if !ok {
		t.Fatalf("unknown register %q", name)
	}
	return op
}

// TestMovRegImm32 matches spec §8's "mov eax, 1" scenario.
func TestMovRegImm32(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := asm.Mov(mustReg(t, "eax"), core.Imm(1, core.Size32)); err != nil {
		t.Fatalf("Mov: %v", err)
	}
	want := []byte{0xB8, 0x01, 0x00, 0x00, 0x00}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

// TestAddRegReg64 matches spec §8's "add rax, rbx" scenario.
func TestAddRegReg64(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := asm.Add(mustReg(t, "rax"), mustReg(t, "rbx")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := []byte{0x48, 0x01, 0xD8}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

// TestForwardJmpShortPatchesOnBind matches spec §8's forward-reference
// scenario: jmp L (explicitly short); five nops; L: binds five bytes later,
// producing EB 05 90 90 90 90 90.
func TestForwardJmpShortPatchesOnBind(t *testing.T) {
	h, asm := newTestAsm(t)
	l := h.NewLabel()
	if err := asm.JmpShort(l); err != nil {
		t.Fatalf("JmpShort: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := asm.Nop(); err != nil {
			t.Fatalf("Nop: %v", err)
		}
	}
	if err := asm.Bind(l); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	want := []byte{0xEB, 0x05, 0x90, 0x90, 0x90, 0x90, 0x90}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

// TestMovdquLoad matches spec §8's "movdqu xmm0, [rcx]" scenario.
func TestMovdquLoad(t *testing.T) {
	h, asm := newTestAsm(t)
	mem := core.Mem(mustReg(t, "rcx").Reg.ID, 0, core.Size128)
	if err := asm.Movdqu(mustReg(t, "xmm0"), mem); err != nil {
		t.Fatalf("Movdqu: %v", err)
	}
	want := []byte{0xF3, 0x0F, 0x6F, 0x01}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestMovdquRequiresSSE2(t *testing.T) {
	h, err := core.Init(core.NewX64Descriptor(0))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	asm := NewAssembler(h, 0, h.Arch().Features)
	mem := core.Mem(mustReg(t, "rcx").Reg.ID, 0, core.Size128)
	err = asm.Movdqu(mustReg(t, "xmm0"), mem)
	if err == nil {
		t.Fatal("expected FeatureNotEnabled without SSE2")
	}
	if e, ok := err.(*core.Error); !ok || e.Kind != core.FeatureNotEnabled {
		t.Fatalf("expected FeatureNotEnabled, got %v", err)
	}
}

// TestMemRBPBaseForcesDisp0 checks the RBP-as-bare-base special case: since
// ModR/M mod=00 rm=101 means RIP-relative with no base, [rbp] with a zero
// displacement must force mod=01 with an explicit disp8 of 0.
func TestMemRBPBaseForcesDisp0(t *testing.T) {
	h, asm := newTestAsm(t)
	mem := core.Mem(mustReg(t, "rbp").Reg.ID, 0, core.Size32)
	if err := asm.Mov(mustReg(t, "eax"), mem); err != nil {
		t.Fatalf("Mov: %v", err)
	}
	got := textBytes(t, h)
	// 8B /r (mov r32, r/m32); ModRM mod=01 reg=000(eax) rm=101(rbp); disp8=00
	want := []byte{0x8B, 0x45, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

// TestMemRSPBaseForcesSIB checks the RSP-as-base special case: ModR/M
// rm=100 means "use a SIB byte", so [rsp] must always carry one with
// index=100 ("no index").
func TestMemRSPBaseForcesSIB(t *testing.T) {
	h, asm := newTestAsm(t)
	mem := core.Mem(mustReg(t, "rsp").Reg.ID, 0, core.Size32)
	if err := asm.Mov(mustReg(t, "eax"), mem); err != nil {
		t.Fatalf("Mov: %v", err)
	}
	got := textBytes(t, h)
	want := []byte{0x8B, 0x04, 0x24}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestAddImmPrefersByteForm(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := asm.Add(mustReg(t, "rax"), core.Imm(5, core.Size32)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got := textBytes(t, h)
	want := []byte{0x48, 0x83, 0xC0, 0x05}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestAddImmFallsBackToWideForm(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := asm.Add(mustReg(t, "rax"), core.Imm(1000, core.Size32)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got := textBytes(t, h)
	want := []byte{0x48, 0x81, 0xC0, 0xE8, 0x03, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestHighByteRegConflictsWithREX(t *testing.T) {
	h, asm := newTestAsm(t)
	_ = h
	if err := asm.Mov(mustReg(t, "ah"), mustReg(t, "r8b")); err == nil {
		t.Fatal("expected InvalidCombination mixing AH with an extended register")
	} else if e, ok := err.(*core.Error); !ok || e.Kind != core.InvalidCombination {
		t.Fatalf("expected InvalidCombination, got %v", err)
	}
}

func TestSplRequiresRex(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := asm.Mov(mustReg(t, "spl"), core.Imm(1, core.Size8)); err != nil {
		t.Fatalf("Mov: %v", err)
	}
	got := textBytes(t, h)
	// REX (0x40, B unset since spl's id=4 has no extension bit), B0+4, imm8
	want := []byte{0x40, 0xB4, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestBackwardJumpPrefersRel8(t *testing.T) {
	h, asm := newTestAsm(t)
	l := h.NewLabel()
	if err := asm.Bind(l); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	for i := 0; i < 10; i++ {
		_ = asm.Nop()
	}
	if err := asm.Jmp(l); err != nil {
		t.Fatalf("Jmp: %v", err)
	}
	got := textBytes(t, h)
	if len(got) != 12 {
		t.Fatalf("expected 10 nops + 2-byte rel8 jmp, got %d bytes: % x", len(got), got)
	}
	if got[10] != 0xEB {
		t.Fatalf("expected a short jmp back to a bound label, got opcode %#x", got[10])
	}
}

func TestEncoderIsIdempotentAcrossRuns(t *testing.T) {
	build := func() []byte {
		h, err := core.Init(core.NewX64Descriptor(0))
		if err != nil {
			t.Fatalf("Init: %v", err)
		}
		asm := NewAssembler(h, 0, h.Arch().Features)
		_ = asm.Mov(mustReg(t, "eax"), core.Imm(1, core.Size32))
		_ = asm.Add(mustReg(t, "rax"), mustReg(t, "rbx"))
		return textBytes(t, h)
	}
	a := build()
	b := build()
	if !bytes.Equal(a, b) {
		t.Fatalf("expected identical encodings for identical input, got % x and % x", a, b)
	}
}
