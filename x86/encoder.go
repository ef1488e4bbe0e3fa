package x86

import "github.com/xyproto/jitasm/core"

// Encoder turns one instruction id plus up to six operands into bytes
// appended to a CodeHolder section, following spec §4.3's pipeline:
// arity check, feature check, operand fix-ups, prefix assembly
// (legacy/REX), opcode plus register embedding, ModR/M and SIB, then
// immediate emission. There is no operand-signature table: after the arity
// check, encode dispatches on the instruction id and each encode method on
// its operands' kinds. VEX, EVEX and XOP prefixes are not emitted. Grounded on the teacher's per-mnemonic encode
// methods (mov.go Out/NewOut, x86_64_codegen.go, cmp.go, div.go, shl.go,
// mem_ops.go), consolidated into one table-driven pipeline instead of one
// method per mnemonic.
type Encoder struct {
	h        *core.CodeHolder
	section  core.SectionID
	features core.FeatureMask
}

// NewEncoder builds an Encoder writing into section, gated by features
// (spec §4.3 step 2 — an instruction whose row requires an unset feature
// bit fails with FeatureNotEnabled before any bytes are written).
func NewEncoder(h *core.CodeHolder, section core.SectionID, features core.FeatureMask) *Encoder {
	return &Encoder{h: h, section: section, features: features}
}

// SetSection redirects subsequent encodes to a different section of the
// same holder (used by an Assembler's section-switch directive).
func (e *Encoder) SetSection(section core.SectionID) { e.section = section }

// encode is the pipeline entry point shared by every instruction id. It
// traces byte-level progress through e.h.Logf the way the teacher's
// per-mnemonic methods trace through a package VerboseMode flag (mov.go,
// x86_64_codegen.go): silent unless the holder's Logger is verbose.
func (e *Encoder) encode(id InstID, ops [6]core.Operand) error {
	if err := checkArity(id, ops); err != nil {
		return err
	}
	sec, err := e.h.Section(e.section)
	if err != nil {
		return err
	}
	start := sec.Buffer.Len()
	e.h.Logf("inst %d sig=%x: ", id, core.Signature(ops))
	defer func() {
		e.h.Logf("% x\n", sec.Buffer.Bytes()[start:])
	}()
	switch {
	case id == MOV:
		return e.encodeMOV(sec, ops[0], ops[1])
	case id == MOVDQU:
		return e.encodeMOVDQU(sec, ops[0], ops[1])
	case isALU(id):
		return e.encodeALU(sec, id, ops[0], ops[1])
	case id == LEA:
		return e.encodeLEA(sec, ops[0], ops[1])
	case id == PUSH:
		return e.encodePushPop(sec, ops[0], 0x50, 0xFF, 6)
	case id == POP:
		return e.encodePushPop(sec, ops[0], 0x58, 0x8F, 0)
	case id == JMP:
		return e.encodeJump(sec, ops[0], false)
	case id == JMPShort:
		return e.encodeJump(sec, ops[0], true)
	case id == CALL:
		return e.encodeCall(sec, ops[0])
	case id == RET:
		sec.Buffer.WriteByte(0xC3)
		return nil
	case id == NOP:
		sec.Buffer.WriteByte(0x90)
		return nil
	case id == SYSCALL:
		if e.h.Arch().Bitness != 64 {
			return newErr(core.InvalidCombination, "syscall requires 64-bit mode")
		}
		sec.Buffer.WriteBytes([]byte{0x0F, 0x05})
		return nil
	}
	return newErr(core.InvalidInstruction, "unsupported instruction id %d", id)
}

// --- register/ModRM helpers -------------------------------------------------

// regFieldBits returns a register operand's 3-bit ModR/M field and its REX
// extension bit. AH/CH/DH/BH (operand ids 16-19, see registers.go) map back
// to ModR/M field 4-7 with no extension bit and must never appear alongside
// a REX prefix — see rexConflict.
func regFieldBits(r core.RegisterOperand) (field byte, ext byte, highByte bool) {
	if r.Size == core.Size8 && r.ID >= 16 && r.ID <= 19 {
		return byte(r.ID - 16 + 4), 0, true
	}
	return byte(r.ID & 7), byte((r.ID >> 3) & 1), false
}

// rexRequired reports whether any register operand needs a REX prefix to
// select: R8-R15/XMM8-15 style extended encodings, or SPL/BPL/SIL/DIL which
// alias AH/CH/DH/BH's encoding without one.
func rexRequired(ops ...core.Operand) bool {
	for _, o := range ops {
		if o.Kind != core.OpRegister {
			continue
		}
		if o.Reg.Size == core.Size8 && o.Reg.ID >= 4 && o.Reg.ID <= 7 {
			return true
		}
		if o.Reg.ID >= 8 && o.Reg.ID < 16 {
			return true
		}
	}
	return false
}

func hasHighByteReg(ops ...core.Operand) bool {
	for _, o := range ops {
		if o.Kind == core.OpRegister && o.Reg.Size == core.Size8 && o.Reg.ID >= 16 && o.Reg.ID <= 19 {
			return true
		}
	}
	return false
}

// rexConflict enforces spec §4.3 step 4: a legacy high-byte register and a
// register requiring REX can never appear in the same instruction.
func rexConflict(ops ...core.Operand) error {
	if hasHighByteReg(ops...) && rexRequired(ops...) {
		return newErr(core.InvalidCombination, "AH/CH/DH/BH cannot be combined with a register requiring a REX prefix")
	}
	return nil
}

// writeREX emits a REX prefix iff w is set or any of r/x/b is set (a
// "REX required but all bits zero" case, e.g. SPL alone, still needs the
// prefix byte present to select the low-byte register, so callers pass
// force=true in that case).
func writeREX(sec *core.Section, w bool, r, x, b byte, force bool) {
	if !w && r == 0 && x == 0 && b == 0 && !force {
		return
	}
	var wb byte
	if w {
		wb = 1
	}
	sec.Buffer.WriteByte(0x40 | wb<<3 | r<<2 | x<<1 | b)
}

func operandSizePrefix(sec *core.Section, size core.Size) {
	if size == core.Size16 {
		sec.Buffer.WriteByte(0x66)
	}
}

func widthBytes(size core.Size) int {
	switch size {
	case core.Size8:
		return 1
	case core.Size16:
		return 2
	case core.Size32:
		return 4
	case core.Size64:
		return 8
	default:
		return 4
	}
}

func putImmLE(sec *core.Section, v int64, width int) {
	u := uint64(v)
	for i := 0; i < width; i++ {
		sec.Buffer.WriteByte(byte(u >> (8 * uint(i))))
	}
}

// memPlan is the resolved ModR/M+SIB+displacement shape for one Memory
// operand, computed before any bytes are written so its REX.X/B bits can be
// folded into the prefix that precedes the opcode.
type memPlan struct {
	mod      byte
	rm       byte
	useSIB   bool
	sib      byte
	disp     []byte
	x, b     byte
	ripLabel bool
	label    core.LabelID
}

// planMemOperand implements spec §4.3 step 5's ModR/M/SIB addressing-mode
// decisions: RBP/R13 as a bare base forces a one-byte zero displacement
// (mod=00 with rm=101 means RIP-relative/no-base, not "[rbp]"); RSP/R12 as
// a base forces a SIB byte (rm=100 in ModR/M means "use SIB", not "[rsp]").
func planMemOperand(mem core.MemoryOperand) (memPlan, error) {
	if mem.RIPRelative {
		return memPlan{mod: 0, rm: 0o5, disp: make([]byte, 4), ripLabel: mem.HasLabel, label: mem.Label}, nil
	}

	baseLow3 := byte(mem.BaseID & 7)
	baseExt := byte((mem.BaseID >> 3) & 1)
	needSIB := mem.HasIndex || baseLow3 == 0o4 // RSP/R12 as base always needs SIB

	var p memPlan
	if needSIB {
		p.useSIB = true
		p.rm = 0o4
		scaleBits := scaleEncoding(mem.Scale)
		if mem.HasIndex {
			if mem.IndexID&7 == 0o4 {
				return memPlan{}, newErr(core.InvalidCombination, "RSP cannot be used as a SIB index register")
			}
			p.x = byte((mem.IndexID >> 3) & 1)
			p.sib = scaleBits<<6 | byte(mem.IndexID&7)<<3 | baseLow3
		} else {
			p.sib = scaleBits<<6 | 0o4<<3 | baseLow3 // index=100 means "no index"
		}
	} else {
		p.rm = baseLow3
	}
	p.b = baseExt

	switch {
	case baseLow3 == 0o5 && mem.Disp == 0:
		// RBP/R13 base with a zero displacement: force mod=01, disp8=0.
		p.mod = 1
		p.disp = []byte{0}
	case mem.Disp == 0:
		p.mod = 0
	case mem.Disp >= -128 && mem.Disp <= 127:
		p.mod = 1
		p.disp = []byte{byte(int8(mem.Disp))}
	default:
		p.mod = 2
		d := make([]byte, 4)
		u := uint32(mem.Disp)
		d[0], d[1], d[2], d[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
		p.disp = d
	}
	return p, nil
}

func scaleEncoding(s core.Scale) byte {
	switch s {
	case core.Scale2:
		return 1
	case core.Scale4:
		return 2
	case core.Scale8:
		return 3
	default:
		return 0
	}
}

// writeModRM appends the ModR/M byte (and SIB/displacement, if the plan
// calls for them) for a memory operand paired with a register or opcode
// digit in the reg field.
func (e *Encoder) writeModRM(sec *core.Section, regField byte, plan memPlan) error {
	sec.Buffer.WriteByte(plan.mod<<6 | regField<<3 | plan.rm)
	if plan.useSIB {
		sec.Buffer.WriteByte(plan.sib)
	}
	dispOffset := int64(sec.Buffer.Len())
	sec.Buffer.WriteBytes(plan.disp)
	if plan.ripLabel {
		return e.queueLabelFixup(plan.label, dispOffset, len(plan.disp))
	}
	return nil
}

// queueLabelFixup arranges for a 1- or 4-byte displacement field at
// dispOffset to be patched once label resolves. An unbound label gets a
// queued fix-up, patched at bind time if it binds in this section
// (core.CodeHolder.BindLabel) and turned into a relocation otherwise; an
// already-bound label, in any section, gets a relocation resolved by
// Relocate.
func (e *Encoder) queueLabelFixup(label core.LabelID, dispOffset int64, size int) error {
	kind := core.FixupPCRelative4
	if size == 1 {
		kind = core.FixupPCRelative1
	}
	lbl, err := e.h.Label(label)
	if err != nil {
		return err
	}
	if !lbl.Bound() {
		return e.h.QueueFixup(label, e.section, dispOffset, kind)
	}
	e.h.AddRelocation(core.Relocation{
		SourceSection: e.section,
		SourceOffset:  dispOffset,
		TargetKind:    core.RelocRelativeToLabel,
		LabelTarget:   label,
		Size:          size,
	})
	return nil
}

// --- MOV ---------------------------------------------------------------

func (e *Encoder) encodeMOV(sec *core.Section, dst, src core.Operand) error {
	switch {
	case dst.Kind == core.OpRegister && src.Kind == core.OpImmediate:
		return e.encodeMovRegImm(sec, dst.Reg, src.Imm)
	case dst.Kind == core.OpRegister && src.Kind == core.OpRegister:
		if dst.Reg.Size != src.Reg.Size {
			return newErr(core.InvalidCombination, "mov operand sizes do not match")
		}
		if err := rexConflict(dst, src); err != nil {
			return err
		}
		return e.encodeRegRM(sec, 0x88, 0x89, dst.Reg.Size, src.Reg, dst, false)
	case dst.Kind == core.OpRegister && src.Kind == core.OpMemory:
		return e.encodeRegMem(sec, 0x8A, 0x8B, dst.Reg, src.Mem)
	case dst.Kind == core.OpMemory && src.Kind == core.OpRegister:
		return e.encodeMemReg(sec, 0x88, 0x89, dst.Mem, src.Reg)
	}
	return newErr(core.InvalidOperand, "unsupported mov operand combination")
}

func (e *Encoder) encodeMovRegImm(sec *core.Section, dst core.RegisterOperand, imm core.ImmediateOperand) error {
	field, ext, highByte := regFieldBits(dst)
	if highByte {
		return newErr(core.InvalidCombination, "cannot mov an immediate into a legacy high-byte register")
	}
	operandSizePrefix(sec, dst.Size)
	switch dst.Size {
	case core.Size8:
		writeREX(sec, false, 0, 0, ext, rexRequired(core.Operand{Kind: core.OpRegister, Reg: dst}))
		sec.Buffer.WriteByte(0xB0 + field)
		putImmLE(sec, imm.Value, 1)
	case core.Size16:
		writeREX(sec, false, 0, 0, ext, ext != 0)
		sec.Buffer.WriteByte(0xB8 + field)
		putImmLE(sec, imm.Value, 2)
	case core.Size32:
		writeREX(sec, false, 0, 0, ext, ext != 0)
		sec.Buffer.WriteByte(0xB8 + field)
		putImmLE(sec, imm.Value, 4)
	case core.Size64:
		writeREX(sec, true, 0, 0, ext, true)
		sec.Buffer.WriteByte(0xB8 + field)
		putImmLE(sec, imm.Value, 8)
	default:
		return newErr(core.InvalidOperandSize, "unsupported mov-immediate register size %v", dst.Size)
	}
	return nil
}

// encodeRegRM emits a direct register/register form shared by MOV and the
// ALU mnemonics: opcode8 for an 8-bit operand size, opcodeWide otherwise.
// regOp fills the ModR/M reg field, rmOp the ModR/M rm field (mod=11).
func (e *Encoder) encodeRegRM(sec *core.Section, opcode8, opcodeWide byte, size core.Size, regOp core.RegisterOperand, rmOperand core.Operand, regIsRM bool) error {
	rmReg := rmOperand.Reg
	regField, regExt, regHigh := regFieldBits(regOp)
	rmField, rmExt, rmHigh := regFieldBits(rmReg)
	_ = regHigh
	_ = rmHigh

	operandSizePrefix(sec, size)
	w := size == core.Size64
	needsRex := w || regExt != 0 || rmExt != 0 || rexRequired(core.Operand{Kind: core.OpRegister, Reg: regOp}, rmOperand)
	writeREX(sec, w, regExt, 0, rmExt, needsRex)

	op := opcodeWide
	if size == core.Size8 {
		op = opcode8
	}
	sec.Buffer.WriteByte(op)
	sec.Buffer.WriteByte(0xC0 | regField<<3 | rmField)
	return nil
}

func (e *Encoder) encodeRegMem(sec *core.Section, opcode8, opcodeWide byte, reg core.RegisterOperand, mem core.MemoryOperand) error {
	plan, err := planMemOperand(mem)
	if err != nil {
		return err
	}
	regField, regExt, highByte := regFieldBits(reg)
	if highByte {
		return newErr(core.InvalidCombination, "legacy high-byte register cannot address memory")
	}
	operandSizePrefix(sec, reg.Size)
	w := reg.Size == core.Size64
	needsRex := w || regExt != 0 || plan.x != 0 || plan.b != 0
	writeREX(sec, w, regExt, plan.x, plan.b, needsRex)
	op := opcodeWide
	if reg.Size == core.Size8 {
		op = opcode8
	}
	sec.Buffer.WriteByte(op)
	return e.writeModRM(sec, regField, plan)
}

func (e *Encoder) encodeMemReg(sec *core.Section, opcode8, opcodeWide byte, mem core.MemoryOperand, reg core.RegisterOperand) error {
	plan, err := planMemOperand(mem)
	if err != nil {
		return err
	}
	regField, regExt, highByte := regFieldBits(reg)
	if highByte {
		return newErr(core.InvalidCombination, "legacy high-byte register cannot be stored to memory")
	}
	operandSizePrefix(sec, reg.Size)
	w := reg.Size == core.Size64
	needsRex := w || regExt != 0 || plan.x != 0 || plan.b != 0
	writeREX(sec, w, regExt, plan.x, plan.b, needsRex)
	op := opcodeWide
	if reg.Size == core.Size8 {
		op = opcode8
	}
	sec.Buffer.WriteByte(op)
	return e.writeModRM(sec, regField, plan)
}

// --- MOVDQU --------------------------------------------------------------

// encodeMOVDQU implements the unaligned 128-bit vector load/store (F3 0F 6F
// /r load, F3 0F 7F /r store), gated on FeatureSSE2.
func (e *Encoder) encodeMOVDQU(sec *core.Section, dst, src core.Operand) error {
	if !e.features.Has(core.FeatureSSE2) {
		return newErr(core.FeatureNotEnabled, "movdqu requires SSE2")
	}
	switch {
	case dst.Kind == core.OpRegister && src.Kind == core.OpMemory:
		return e.encodeVecMem(sec, 0x6F, dst.Reg, src.Mem)
	case dst.Kind == core.OpMemory && src.Kind == core.OpRegister:
		return e.encodeVecMem(sec, 0x7F, src.Reg, dst.Mem)
	case dst.Kind == core.OpRegister && src.Kind == core.OpRegister:
		return e.encodeVecVec(sec, 0x6F, dst.Reg, src.Reg)
	}
	return newErr(core.InvalidOperand, "movdqu requires a vector register and a memory or vector operand")
}

func (e *Encoder) encodeVecMem(sec *core.Section, opcode byte, reg core.RegisterOperand, mem core.MemoryOperand) error {
	if reg.Group != core.RegGroupVector {
		return newErr(core.InvalidOperand, "movdqu requires an XMM register operand")
	}
	plan, err := planMemOperand(mem)
	if err != nil {
		return err
	}
	regField, regExt, _ := regFieldBits(reg)
	sec.Buffer.WriteByte(0xF3)
	writeREX(sec, false, regExt, plan.x, plan.b, regExt != 0 || plan.x != 0 || plan.b != 0)
	sec.Buffer.WriteBytes([]byte{0x0F, opcode})
	return e.writeModRM(sec, regField, plan)
}

func (e *Encoder) encodeVecVec(sec *core.Section, opcode byte, dst, src core.RegisterOperand) error {
	dstField, dstExt, _ := regFieldBits(dst)
	srcField, srcExt, _ := regFieldBits(src)
	sec.Buffer.WriteByte(0xF3)
	writeREX(sec, false, dstExt, 0, srcExt, dstExt != 0 || srcExt != 0)
	sec.Buffer.WriteBytes([]byte{0x0F, opcode})
	sec.Buffer.WriteByte(0xC0 | dstField<<3 | srcField)
	return nil
}

// --- ALU (ADD/SUB/AND/OR/XOR/CMP) ---------------------------------------

func (e *Encoder) encodeALU(sec *core.Section, id InstID, dst, src core.Operand) error {
	enc := aluOpcodes[id]
	switch {
	case dst.Kind == core.OpRegister && src.Kind == core.OpRegister:
		if dst.Reg.Size != src.Reg.Size {
			return newErr(core.InvalidCombination, "operand sizes do not match")
		}
		if err := rexConflict(dst, src); err != nil {
			return err
		}
		return e.encodeRegRM(sec, enc.rmReg8, enc.rmReg, dst.Reg.Size, src.Reg, dst, false)
	case dst.Kind == core.OpRegister && src.Kind == core.OpImmediate:
		return e.encodeALUImm(sec, enc, dst.Reg, src.Imm)
	case dst.Kind == core.OpRegister && src.Kind == core.OpMemory:
		return e.encodeRegMem(sec, enc.rmReg8+2, enc.regRm, dst.Reg, src.Mem) // r8, r/m8 is the r/m8, r8 opcode + 2
	case dst.Kind == core.OpMemory && src.Kind == core.OpRegister:
		return e.encodeMemReg(sec, enc.rmReg8, enc.rmReg, dst.Mem, src.Reg)
	}
	return newErr(core.InvalidOperand, "unsupported ALU operand combination")
}

// encodeALUImm prefers the one-byte sign-extended immediate form (0x83 /ext
// ib) whenever the value fits, falling back to the full-width form (0x81
// /ext id) otherwise. Both forms are fully resolved at emit time (an
// immediate's value never depends on label binding), so this tie-break
// never risks growing an already-emitted instruction — unlike the jump
// short/long choice in encodeJump.
func (e *Encoder) encodeALUImm(sec *core.Section, enc aluOpcode, dst core.RegisterOperand, imm core.ImmediateOperand) error {
	field, ext, highByte := regFieldBits(dst)
	if highByte {
		return newErr(core.InvalidCombination, "ALU immediate form cannot target a legacy high-byte register")
	}
	operandSizePrefix(sec, dst.Size)
	w := dst.Size == core.Size64
	needsRex := w || ext != 0 || rexRequired(core.Operand{Kind: core.OpRegister, Reg: dst})
	writeREX(sec, w, 0, 0, ext, needsRex)

	if dst.Size == core.Size8 {
		sec.Buffer.WriteByte(0x80)
		sec.Buffer.WriteByte(0xC0 | enc.ext<<3 | field)
		putImmLE(sec, imm.Value, 1)
		return nil
	}
	if imm.Value >= -128 && imm.Value <= 127 {
		sec.Buffer.WriteByte(0x83)
		sec.Buffer.WriteByte(0xC0 | enc.ext<<3 | field)
		putImmLE(sec, imm.Value, 1)
		return nil
	}
	sec.Buffer.WriteByte(0x81)
	sec.Buffer.WriteByte(0xC0 | enc.ext<<3 | field)
	width := widthBytes(dst.Size)
	if width > 4 {
		width = 4 // 0x81 with REX.W takes a sign-extended imm32
	}
	putImmLE(sec, imm.Value, width)
	return nil
}

// --- LEA -----------------------------------------------------------------

func (e *Encoder) encodeLEA(sec *core.Section, dst, src core.Operand) error {
	if dst.Kind != core.OpRegister || src.Kind != core.OpMemory {
		return newErr(core.InvalidOperand, "lea requires a register destination and a memory source")
	}
	return e.encodeRegMem(sec, 0x8D, 0x8D, dst.Reg, src.Mem)
}

// --- PUSH/POP ------------------------------------------------------------

func (e *Encoder) encodePushPop(sec *core.Section, op core.Operand, regOpcode, memOpcode, memExt byte) error {
	switch op.Kind {
	case core.OpRegister:
		if op.Reg.Size != core.Size64 && op.Reg.Size != core.Size16 {
			return newErr(core.InvalidOperandSize, "push/pop operate on a 64-bit (or 16-bit) register")
		}
		field, ext, _ := regFieldBits(op.Reg)
		operandSizePrefix(sec, op.Reg.Size)
		writeREX(sec, false, 0, 0, ext, ext != 0)
		sec.Buffer.WriteByte(regOpcode + field)
		return nil
	case core.OpMemory:
		plan, err := planMemOperand(op.Mem)
		if err != nil {
			return err
		}
		writeREX(sec, false, 0, plan.x, plan.b, plan.x != 0 || plan.b != 0)
		sec.Buffer.WriteByte(memOpcode)
		return e.writeModRM(sec, memExt, plan)
	}
	return newErr(core.InvalidOperand, "push/pop require a register or memory operand")
}

// --- JMP/JMPShort/CALL -----------------------------------------------------

// encodeJump implements spec §9's variable-length branch policy: a bound
// same-section (backward) target is resolved immediately, preferring rel8
// and falling back to rel32 if it does not fit (spec §8's boundary-case
// table). A not-yet-bound (forward) or cross-section target commits to
// rel32 by default — short==true means the caller explicitly asked for the
// rel8 form instead, which then fails at bind time with BranchTooFar if the
// eventual displacement does not fit, rather than silently growing.
func (e *Encoder) encodeJump(sec *core.Section, target core.Operand, short bool) error {
	if target.Kind != core.OpLabelRef {
		return newErr(core.InvalidOperand, "jmp requires a label operand")
	}
	label := target.Lbl.Label
	lbl, err := e.h.Label(label)
	if err != nil {
		return err
	}

	if lbl.Bound() && e.sameSectionResolved(lbl) {
		return e.encodeResolvedJump(sec, lbl, short)
	}

	if short {
		sec.Buffer.WriteByte(0xEB)
		off := int64(sec.Buffer.Len())
		sec.Buffer.WriteZeros(1)
		return e.queueLabelFixup(label, off, 1)
	}
	sec.Buffer.WriteByte(0xE9)
	off := int64(sec.Buffer.Len())
	sec.Buffer.WriteZeros(4)
	return e.queueLabelFixup(label, off, 4)
}

// sameSectionResolved reports whether lbl's address is already knowable
// without a layout pass: bound within the section this encoder is
// currently writing.
func (e *Encoder) sameSectionResolved(lbl *core.Label) bool {
	return lbl.Section() == e.section
}

func (e *Encoder) encodeResolvedJump(sec *core.Section, lbl *core.Label, short bool) error {
	rel8Offset := int64(sec.Buffer.Len()) + 2 // 0xEB + 1-byte disp
	disp8 := lbl.Offset() - rel8Offset
	if short || (disp8 >= -128 && disp8 <= 127) {
		if disp8 < -128 || disp8 > 127 {
			return newErr(core.BranchTooFar, "short jump target is %d bytes away", disp8)
		}
		sec.Buffer.WriteByte(0xEB)
		sec.Buffer.WriteByte(byte(int8(disp8)))
		return nil
	}
	rel32Offset := int64(sec.Buffer.Len()) + 5
	disp32 := lbl.Offset() - rel32Offset
	sec.Buffer.WriteByte(0xE9)
	putImmLE(sec, disp32, 4)
	return nil
}

func (e *Encoder) encodeCall(sec *core.Section, target core.Operand) error {
	switch target.Kind {
	case core.OpLabelRef:
		sec.Buffer.WriteByte(0xE8)
		off := int64(sec.Buffer.Len())
		sec.Buffer.WriteZeros(4)
		return e.queueLabelFixup(target.Lbl.Label, off, 4)
	case core.OpRegister:
		field, ext, _ := regFieldBits(target.Reg)
		writeREX(sec, false, 0, 0, ext, ext != 0)
		sec.Buffer.WriteByte(0xFF)
		sec.Buffer.WriteByte(0xC0 | 2<<3 | field)
		return nil
	}
	return newErr(core.InvalidOperand, "call requires a label or register operand")
}
