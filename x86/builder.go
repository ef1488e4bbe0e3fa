package x86

import "github.com/xyproto/jitasm/core"

// nodeKind tags one recorded Builder node for later replay.
type nodeKind uint8

const (
	nodeInst nodeKind = iota
	nodeLabel
	nodeAlign
	nodeEmbed
)

// builderNode is one recorded operation awaiting Finalize. Builder records
// a flat slice rather than the teacher's intrusive linked list (demo_regalloc.go
// sequences moves into a []Instruction slice already, which this mirrors)
// since nothing here needs node removal mid-stream.
type builderNode struct {
	kind      nodeKind
	inst      InstID
	ops       [6]core.Operand
	label     core.LabelID
	alignment int
	fill      byte
	data      []byte
}

// Builder is the deferred-replay Emitter (spec §9's "Polymorphic emitters"
// / SUPPLEMENTED FEATURES): every call records a node instead of encoding
// immediately, so a caller can reorder, inspect, or run a pass over the
// sequence (e.g. a peephole optimizer) before Finalize replays it through
// an Assembler into the real section buffer. Grounded on AsmJit's
// x86::Builder concept and the teacher's demo_regalloc.go, which records a
// move sequence before committing it.
type Builder struct {
	h        *core.CodeHolder
	section  core.SectionID
	features core.FeatureMask
	handle   emitHandle
	nodes    []builderNode
}

// NewBuilder creates a Builder bound to h, recording into section.
func NewBuilder(h *core.CodeHolder, section core.SectionID, features core.FeatureMask) *Builder {
	b := &Builder{h: h, section: section, features: features}
	record := &core.Emitter{Kind: core.EmitterBuilder}
	record.Emit = func(instID uint32, ops [6]core.Operand) error {
		b.nodes = append(b.nodes, builderNode{kind: nodeInst, inst: InstID(instID), ops: ops})
		return nil
	}
	record.Bind = func(label core.LabelID) error {
		b.nodes = append(b.nodes, builderNode{kind: nodeLabel, label: label})
		return nil
	}
	record.Align = func(alignment int, fill byte) error {
		b.nodes = append(b.nodes, builderNode{kind: nodeAlign, alignment: alignment, fill: fill})
		return nil
	}
	record.Embed = func(data []byte) error {
		cp := make([]byte, len(data))
		copy(cp, data)
		b.nodes = append(b.nodes, builderNode{kind: nodeEmbed, data: cp})
		return nil
	}
	record.EmbedLabel = func(label core.LabelID) error {
		return newErr(core.InvalidState, "Builder.EmbedLabel is not supported before Finalize; use Assembler for jump tables")
	}
	record.EmbedConstPool = func() error { return nil }
	record.Finalize = func() error { return b.replay() }

	b.handle = h.Attach(record)
	return b
}

// Nodes exposes the recorded sequence for inspection or reordering before
// Finalize — e.g. a caller-supplied pass that drops redundant moves.
func (b *Builder) Nodes() []builderNode { return b.nodes }

// replay drives every recorded node through a fresh Encoder targeting the
// Builder's section, in order. This is what Emitter.Finalize calls.
func (b *Builder) replay() error {
	enc := NewEncoder(b.h, b.section, b.features)
	for _, n := range b.nodes {
		switch n.kind {
		case nodeInst:
			if err := enc.encode(n.inst, n.ops); err != nil {
				return err
			}
		case nodeLabel:
			sec, err := b.h.Section(b.section)
			if err != nil {
				return err
			}
			if err := b.h.BindLabel(n.label, b.section, int64(sec.Buffer.Len())); err != nil {
				return err
			}
		case nodeAlign:
			sec, err := b.h.Section(b.section)
			if err != nil {
				return err
			}
			sec.Buffer.AlignTo(n.alignment, n.fill)
		case nodeEmbed:
			sec, err := b.h.Section(b.section)
			if err != nil {
				return err
			}
			sec.Buffer.WriteBytes(n.data)
		}
	}
	return nil
}

// Finalize replays the recorded node sequence into the section buffer.
// Each call replays it again, so calling it twice re-emits the sequence —
// callers wanting idempotence should build a fresh Builder instead.
func (b *Builder) Finalize() error {
	return b.handle.Do(b.replay)
}

func (b *Builder) emit(id InstID, ops ...core.Operand) error {
	var arr [6]core.Operand
	copy(arr[:], ops)
	return b.handle.Emit(uint32(id), arr)
}

func (b *Builder) Mov(dst, src core.Operand) error { return b.emit(MOV, dst, src) }
func (b *Builder) Add(dst, src core.Operand) error { return b.emit(ADD, dst, src) }
func (b *Builder) Jmp(label core.LabelID) error    { return b.emit(JMP, core.LabelOperand(label)) }
func (b *Builder) Ret() error                      { return b.emit(RET) }

// BindLabel records a label-bind node for later replay.
func (b *Builder) BindLabel(label core.LabelID) error {
	return b.handle.Do(func() error {
		b.nodes = append(b.nodes, builderNode{kind: nodeLabel, label: label})
		return nil
	})
}
