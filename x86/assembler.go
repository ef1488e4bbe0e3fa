package x86

import "github.com/xyproto/jitasm/core"

// emitHandle is the subset of core's attached-emitter surface an Assembler
// needs. core.CodeHolder.Attach returns a value of an unexported concrete
// type; Go lets that value be held through any interface its exported
// method set happens to satisfy, so this local interface is how x86 names
// it without core needing to export the type itself.
type emitHandle interface {
	Emit(instID uint32, ops [6]core.Operand) error
	Do(fn func() error) error
	ClearError()
	Err() error
}

// Assembler is the direct-to-buffer Emitter: every call encodes
// immediately into the active section, with no deferred replay. Grounded
// on the teacher's Out/NewOut pattern in mov.go, which appended bytes to a
// single global buffer the moment each mnemonic method ran; generalized
// here to the spec's per-section, per-holder model.
type Assembler struct {
	enc     *Encoder
	h       *core.CodeHolder
	section core.SectionID
	handle  emitHandle
}

// NewAssembler creates an Assembler bound to h, writing into section,
// gated by features. It attaches its own Emitter capability record with h
// so every call — Emit and otherwise — participates in the holder's
// sticky-error protocol (spec §7).
func NewAssembler(h *core.CodeHolder, section core.SectionID, features core.FeatureMask) *Assembler {
	a := &Assembler{h: h, section: section, enc: NewEncoder(h, section, features)}
	record := &core.Emitter{Kind: core.EmitterAssembler}
	record.Emit = func(instID uint32, ops [6]core.Operand) error {
		return a.enc.encode(InstID(instID), ops)
	}
	record.Bind = func(label core.LabelID) error {
		sec, err := h.Section(a.section)
		if err != nil {
			return err
		}
		return h.BindLabel(label, a.section, int64(sec.Buffer.Len()))
	}
	record.Align = func(alignment int, fill byte) error {
		sec, err := h.Section(a.section)
		if err != nil {
			return err
		}
		sec.Buffer.AlignTo(alignment, fill)
		return nil
	}
	record.Embed = func(data []byte) error {
		sec, err := h.Section(a.section)
		if err != nil {
			return err
		}
		sec.Buffer.WriteBytes(data)
		return nil
	}
	record.EmbedLabel = func(label core.LabelID) error {
		sec, err := h.Section(a.section)
		if err != nil {
			return err
		}
		ptrSize := h.Arch().PointerSize
		off := int64(sec.Buffer.Len())
		sec.Buffer.WriteZeros(ptrSize)
		h.AddRelocation(core.Relocation{
			SourceSection: a.section,
			SourceOffset:  off,
			TargetKind:    core.RelocAbsoluteToLabel,
			LabelTarget:   label,
			Size:          ptrSize,
		})
		return nil
	}
	record.EmbedConstPool = func() error {
		if int(a.section) != len(h.Sections())-1 {
			return newErr(core.InvalidState, "embedConstPool is only supported in the last section; Relocate folds the pool there")
		}
		return nil // Relocate performs the actual fold against the final base address.
	}
	record.Finalize = func() error { return nil }

	a.handle = h.Attach(record)
	return a
}

// SetSection redirects subsequent emits to a different section of the same
// holder (e.g. switching from .text to .data mid-stream).
func (a *Assembler) SetSection(section core.SectionID) {
	a.section = section
	a.enc.SetSection(section)
}

// Err returns the Assembler's sticky first error, if any.
func (a *Assembler) Err() error { return a.handle.Err() }

// ClearError resets the Assembler's sticky first-error state.
func (a *Assembler) ClearError() { a.handle.ClearError() }

func (a *Assembler) emit(id InstID, ops ...core.Operand) error {
	var arr [6]core.Operand
	copy(arr[:], ops)
	return a.handle.Emit(uint32(id), arr)
}

// Bind binds label at the Assembler's current write position.
func (a *Assembler) Bind(label core.LabelID) error {
	return a.handle.Do(func() error { return a.h.BindLabel(label, a.section, int64(a.currentOffset())) })
}

func (a *Assembler) currentOffset() int {
	sec, err := a.h.Section(a.section)
	if err != nil {
		return 0
	}
	return sec.Buffer.Len()
}

// Align pads the active section until it is aligned, with fill bytes.
func (a *Assembler) Align(alignment int, fill byte) error {
	return a.handle.Do(func() error {
		sec, err := a.h.Section(a.section)
		if err != nil {
			return err
		}
		sec.Buffer.AlignTo(alignment, fill)
		return nil
	})
}

// Embed appends raw bytes verbatim to the active section.
func (a *Assembler) Embed(data []byte) error {
	return a.handle.Do(func() error {
		sec, err := a.h.Section(a.section)
		if err != nil {
			return err
		}
		sec.Buffer.WriteBytes(data)
		return nil
	})
}

// --- convenience mnemonics, grounded on the teacher's one-method-per-op
// calling convention (mov.go, cmp.go, div.go, shl.go) but table-dispatched
// through Emit rather than one hand-written encode per method.

func (a *Assembler) Mov(dst, src core.Operand) error    { return a.emit(MOV, dst, src) }
func (a *Assembler) Movdqu(dst, src core.Operand) error { return a.emit(MOVDQU, dst, src) }
func (a *Assembler) Add(dst, src core.Operand) error     { return a.emit(ADD, dst, src) }
func (a *Assembler) Sub(dst, src core.Operand) error     { return a.emit(SUB, dst, src) }
func (a *Assembler) And(dst, src core.Operand) error     { return a.emit(AND, dst, src) }
func (a *Assembler) Or(dst, src core.Operand) error      { return a.emit(OR, dst, src) }
func (a *Assembler) Xor(dst, src core.Operand) error     { return a.emit(XOR, dst, src) }
func (a *Assembler) Cmp(dst, src core.Operand) error     { return a.emit(CMP, dst, src) }
func (a *Assembler) Lea(dst, src core.Operand) error     { return a.emit(LEA, dst, src) }
func (a *Assembler) Push(op core.Operand) error          { return a.emit(PUSH, op) }
func (a *Assembler) Pop(op core.Operand) error           { return a.emit(POP, op) }
func (a *Assembler) Jmp(label core.LabelID) error        { return a.emit(JMP, core.LabelOperand(label)) }
func (a *Assembler) JmpShort(label core.LabelID) error {
	return a.emit(JMPShort, core.LabelOperand(label))
}
func (a *Assembler) Call(target core.Operand) error { return a.emit(CALL, target) }
func (a *Assembler) Ret() error                     { return a.emit(RET) }
func (a *Assembler) Nop() error                      { return a.emit(NOP) }
func (a *Assembler) Syscall() error                  { return a.emit(SYSCALL) }
