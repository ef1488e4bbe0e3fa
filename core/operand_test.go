package core

import "testing"

func TestSignatureDistinguishesKindAndSize(t *testing.T) {
	a := Reg(RegGroupGP, Size64, 0)
	b := Reg(RegGroupGP, Size32, 0)
	c := Imm(1, Size32)

	sa := Signature([6]Operand{a})
	sb := Signature([6]Operand{b})
	sc := Signature([6]Operand{c})

	if sa == sb {
		t.Fatal("expected different size classes to produce different signatures")
	}
	if sa == sc {
		t.Fatal("expected different operand kinds to produce different signatures")
	}
}

func TestMemRIPCarriesLabel(t *testing.T) {
	op := MemRIP(LabelID(7), Size64)
	if op.Kind != OpMemory || !op.Mem.RIPRelative || !op.Mem.HasLabel || op.Mem.Label != 7 {
		t.Fatalf("unexpected operand: %+v", op)
	}
}
