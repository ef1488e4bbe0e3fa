package x86

import (
	"bytes"
	"testing"
)

// TestPrologEmitsFrameAndAlignedStackAdjust matches the standard
// frame-pointer prolog for a 32-byte frame under SysV64 (no shadow space,
// 16-byte stack alignment): push rbp; mov rbp, rsp; sub rsp, 0x20.
func TestPrologEmitsFrameAndAlignedStackAdjust(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := Prolog(asm, HostCallConv(), 32); err != nil {
		t.Fatalf("Prolog: %v", err)
	}
	want := []byte{0x55, 0x48, 0x89, 0xE5, 0x48, 0x83, 0xEC, 0x20}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

// TestPrologSkipsStackAdjustForZeroFrame matches the leaf-function case: no
// locals and no shadow space means the aligned adjustment rounds to zero,
// so no sub is emitted at all.
func TestPrologSkipsStackAdjustForZeroFrame(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := Prolog(asm, HostCallConv(), 0); err != nil {
		t.Fatalf("Prolog: %v", err)
	}
	want := []byte{0x55, 0x48, 0x89, 0xE5}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

// TestEpilogMatchesProlog matches the corresponding teardown sequence:
// mov rsp, rbp; pop rbp; ret.
func TestEpilogMatchesProlog(t *testing.T) {
	h, asm := newTestAsm(t)
	if err := Epilog(asm); err != nil {
		t.Fatalf("Epilog: %v", err)
	}
	want := []byte{0x48, 0x89, 0xEC, 0x5D, 0xC3}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

// TestWin64CallConvReservesShadowSpace checks that Win64's mandatory
// 32-byte shadow space is folded into the prolog's stack adjustment even
// for a zero-size frame.
func TestWin64CallConvReservesShadowSpace(t *testing.T) {
	h, asm := newTestAsm(t)
	cc, ok := LookupCallConv(CallConvWin64)
	if !ok {
		t.Fatal("expected CallConvWin64 to be registered")
	}
	if err := Prolog(asm, cc, 0); err != nil {
		t.Fatalf("Prolog: %v", err)
	}
	want := []byte{0x55, 0x48, 0x89, 0xE5, 0x48, 0x83, 0xEC, 0x20}
	got := textBytes(t, h)
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}
