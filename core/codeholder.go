package core

// CodeHolder owns the sections, labels, relocations and constant pool of
// one code unit being assembled — the shared state multiple emitters
// append to. It is single-producer: all mutation is performed by whichever
// thread currently owns it (spec §5); CodeHolder itself does not lock.
type CodeHolder struct {
	arch ArchDescriptor
	log  Logger

	sections []*Section
	labels   *labelTable
	relocs   *relocationTable
	pool     *constPool

	emitters []*attachedEmitter

	zone *Zone

	errState error // sticky first-error at the holder level (layout/install reject it)
}

// Init creates a CodeHolder for the given architecture. It fails with
// InvalidArch if the architecture has no encoder in this core (spec
// §4.1). Section 0 (".text", executable) is created automatically.
func Init(arch ArchDescriptor) (*CodeHolder, error) {
	if !arch.Supported() {
		return nil, newError(InvalidArch, "architecture %s is not supported by this core", arch.Family)
	}
	h := &CodeHolder{
		arch:   arch,
		log:    nopLogger{},
		labels: newLabelTable(),
		relocs: newRelocationTable(),
		pool:   newConstPool(),
		zone:   NewZone(4096),
	}
	h.sections = append(h.sections, defaultTextSection())
	return h, nil
}

// SetLogger overrides the holder's diagnostic sink (default: silent).
func (h *CodeHolder) SetLogger(l Logger) { h.log = l }

// Logf writes a byte-level trace line through the holder's Logger, a no-op
// unless SetLogger was given a verbose sink. Encoders call this at each
// instruction's encode entry and exit (spec's ambient logging requirement;
// see x86.Encoder.encode).
func (h *CodeHolder) Logf(format string, args ...interface{}) { h.log.Logf(format, args...) }

// Arch returns the architecture descriptor this holder was initialized
// with.
func (h *CodeHolder) Arch() ArchDescriptor { return h.arch }

// Zone exposes the holder's bump arena, for use by encoders that need
// scratch allocation with the holder's lifetime (e.g. an encoder's
// per-instruction working state).
func (h *CodeHolder) Zone() *Zone { return h.zone }

// Pool exposes the holder's constant pool.
func (h *CodeHolder) Pool() *constPool { return h.pool }

// Err returns the holder's sticky first-error, if any. Layout and install
// reject a holder in the error state.
func (h *CodeHolder) Err() error { return h.errState }

func (h *CodeHolder) fail(err error) error {
	if h.errState == nil {
		h.errState = err
	}
	return err
}

// Attach registers an emitter's capability record with this holder and
// returns a handle for subsequent use. Multiple emitters may be attached
// simultaneously; each holds its own sticky-error state.
func (h *CodeHolder) Attach(e *Emitter) *attachedEmitter {
	a := &attachedEmitter{handle: e}
	h.emitters = append(h.emitters, a)
	return a
}

// Detach removes a previously attached emitter. It is a no-op if a is not
// currently attached.
func (h *CodeHolder) Detach(a *attachedEmitter) {
	for i, e := range h.emitters {
		if e == a {
			h.emitters = append(h.emitters[:i], h.emitters[i+1:]...)
			return
		}
	}
}

// NewLabel allocates a fresh, Unbound label id. Ids are dense,
// monotonically increasing, and stable for the holder's lifetime.
func (h *CodeHolder) NewLabel() LabelID {
	return h.labels.newLabel()
}

// Label returns the Label record for id, or InvalidLabel if it does not
// exist in this holder.
func (h *CodeHolder) Label(id LabelID) (*Label, error) {
	return h.labels.get(id)
}

// BindLabel transitions a label from Unbound to Bound at (section,
// offset). It fails with LabelAlreadyBound on a second call. Binding
// immediately patches every queued fix-up whose kind is resolvable at
// bind time: same-section PC-relative references (spec §4.1).
func (h *CodeHolder) BindLabel(id LabelID, section SectionID, offset int64) error {
	lbl, err := h.labels.get(id)
	if err != nil {
		return h.fail(err)
	}
	if lbl.Bound() {
		return h.fail(newError(LabelAlreadyBound, "label %d already bound", id))
	}
	if int(section) >= len(h.sections) {
		return h.fail(newError(InvalidSection, "section %d does not exist", section))
	}
	lbl.state = labelBound
	lbl.section = section
	lbl.offset = offset
	if err := h.bindFixups(lbl, section, offset); err != nil {
		return h.fail(err)
	}
	return nil
}

// bindFixups patches every PC-relative fix-up queued against lbl that lives
// in the section it just bound into, and promotes every other fix-up
// (cross-section, or absolute) to a proper Relocation so Relocate resolves
// it once every section's base address is known. Shared by BindLabel and
// rebindPoolLabel.
func (h *CodeHolder) bindFixups(lbl *Label, section SectionID, offset int64) error {
	sec := h.sections[section]
	for f := lbl.fixups; f != nil; f = f.next {
		if f.section == section && f.kind != FixupAbsolute8 {
			nextInstr := offset2addr(sec, f.offset) + int64(fixupSize(f.kind))
			target := offset2addr(sec, offset)
			disp := target - nextInstr
			if err := patchDisplacement(sec, f.offset, disp, fixupSize(f.kind)); err != nil {
				return err
			}
			continue
		}
		h.AddRelocation(Relocation{
			SourceSection: f.section,
			SourceOffset:  f.offset,
			TargetKind:    relocKindForFixup(f.kind),
			LabelTarget:   lbl.id,
			Size:          fixupSize(f.kind),
		})
	}
	lbl.fixups = nil
	return nil
}

// rebindPoolLabel (re)binds a label minted by constPool.Label to its
// folded (section, offset). Unlike BindLabel it tolerates being called
// again with an updated offset — Relocate folds the constant pool on every
// call (Install's probe-then-final pattern), and a pool label's final
// address only becomes known on that pass. Fix-ups are only consumed the
// first time: they have already been promoted to relocations by then, and
// relocationTable.resolve recomputes its target from the label's current
// (section, offset) on every Relocate call.
func (h *CodeHolder) rebindPoolLabel(id LabelID, section SectionID, offset int64) error {
	lbl, err := h.labels.get(id)
	if err != nil {
		return err
	}
	alreadyBound := lbl.Bound()
	lbl.state = labelBound
	lbl.section = section
	lbl.offset = offset
	if alreadyBound {
		return nil
	}
	return h.bindFixups(lbl, section, offset)
}

func relocKindForFixup(k FixupKind) RelocTargetKind {
	if k == FixupAbsolute8 {
		return RelocAbsoluteToLabel
	}
	return RelocRelativeToLabel
}

func offset2addr(sec *Section, off int64) int64 {
	// Prior to relocate(), BaseAddr is 0; patches at bind time are always
	// relative (displacement math is translation-invariant), so an
	// unassigned base does not affect correctness.
	return int64(sec.BaseAddr) + off
}

func fixupSize(k FixupKind) int {
	switch k {
	case FixupPCRelative1:
		return 1
	case FixupPCRelative4:
		return 4
	case FixupAbsolute8:
		return 8
	default:
		return 4
	}
}

func patchDisplacement(sec *Section, offset int64, disp int64, size int) error {
	if err := checkRangeFits(disp, size); err != nil {
		return err
	}
	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = byte(int8(disp))
	case 4:
		putLE32(buf, int32(disp))
	case 8:
		putLE64(buf, disp)
	}
	sec.Buffer.Patch(int(offset), buf)
	return nil
}

func putLE32(buf []byte, v int32) {
	u := uint32(v)
	buf[0] = byte(u)
	buf[1] = byte(u >> 8)
	buf[2] = byte(u >> 16)
	buf[3] = byte(u >> 24)
}

func putLE64(buf []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * uint(i)))
	}
}

// QueueFixup records a pending forward-reference patch site against an
// unbound label. Used by an encoder while emitting a branch/lea whose
// target label has not yet bound.
func (h *CodeHolder) QueueFixup(id LabelID, section SectionID, offset int64, kind FixupKind) error {
	lbl, err := h.labels.get(id)
	if err != nil {
		return h.fail(err)
	}
	if lbl.Bound() {
		return newError(InvalidState, "label %d is already bound; queueFixup is for forward references only", id)
	}
	h.labels.queueFixup(lbl, section, offset, kind)
	return nil
}

// AddRelocation queues a relocation resolved at layout time (cross-section
// label references, external symbols, constant-pool data).
func (h *CodeHolder) AddRelocation(r Relocation) {
	h.relocs.add(r)
}

// NewSection appends a new section and returns its id.
func (h *CodeHolder) NewSection(name string, flags SectionFlags, alignment int) (SectionID, error) {
	if alignment <= 0 || (alignment&(alignment-1)) != 0 {
		return 0, h.fail(newError(BadAlignment, "section alignment %d is not a power of two", alignment))
	}
	for _, s := range h.sections {
		if s.Name == name {
			return 0, h.fail(newError(OverlappingSection, "section %q already exists", name))
		}
	}
	id := SectionID(len(h.sections))
	h.sections = append(h.sections, &Section{ID: id, Name: name, Flags: flags, Alignment: alignment})
	return id, nil
}

// Section returns the section record for id.
func (h *CodeHolder) Section(id SectionID) (*Section, error) {
	if int(id) >= len(h.sections) {
		return nil, newError(InvalidSection, "section %d does not exist", id)
	}
	return h.sections[id], nil
}

// Sections returns every section in layout order.
func (h *CodeHolder) Sections() []*Section { return h.sections }

// Image is the flat result of a successful Relocate: the concatenated,
// relocation-resolved bytes plus the total virtual size laid out.
type Image struct {
	Bytes     []byte
	TotalSize int64
}

// Relocate assigns each section a virtual address starting at baseAddress
// (honoring each section's own alignment), folds the constant pool onto
// the end of the last section, resolves every queued relocation, and
// returns the flattened image. It fails if the holder carries a sticky
// error, or if any relocation cannot be resolved.
func (h *CodeHolder) Relocate(baseAddress uint64) (*Image, error) {
	if h.errState != nil {
		return nil, newError(InvalidState, "holder has a pending error: %v", h.errState)
	}

	addr := baseAddress
	for _, sec := range h.sections {
		addr = alignUp64(addr, uint64(sec.Alignment))
		sec.BaseAddr = addr
		sec.EnsureVirtSize(int64(sec.Buffer.Len()))
		addr += uint64(sec.VirtSize)
	}

	// Fold the constant pool into the last section (conventionally a
	// read-only data section appended by the caller before Relocate).
	if h.pool.nextKey > 0 {
		lastID := SectionID(len(h.sections) - 1)
		last := h.sections[lastID]
		h.pool.fold(&last.Buffer, last.BaseAddr)
		if grown := int64(last.Buffer.Len()) - last.VirtSize; grown > 0 {
			addr += uint64(grown)
		}
		last.EnsureVirtSize(int64(last.Buffer.Len()))

		for key, id := range h.pool.labels {
			offset, ok := h.pool.offsets[key]
			if !ok {
				continue
			}
			if err := h.rebindPoolLabel(id, lastID, offset); err != nil {
				return nil, h.fail(err)
			}
		}
	}

	if err := h.relocs.resolve(h.sections, h.labels, h.pool, nil); err != nil {
		return nil, h.fail(err)
	}

	// Flatten section buffers into one image, re-inserting the alignment
	// gaps between sections that the base-address assignment above
	// accounted for (so byte offsets in the image match the addresses
	// relocations were resolved against).
	var out []byte
	prevEnd := baseAddress
	for _, sec := range h.sections {
		if gap := int64(sec.BaseAddr - prevEnd); gap > 0 {
			out = append(out, make([]byte, gap)...)
		}
		out = append(out, sec.Buffer.Bytes()...)
		pad := int(sec.VirtSize) - sec.Buffer.Len()
		for i := 0; i < pad; i++ {
			out = append(out, 0)
		}
		prevEnd = sec.BaseAddr + uint64(sec.VirtSize)
	}
	return &Image{Bytes: out, TotalSize: addr - baseAddress}, nil
}

func alignUp64(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// Reset drops all sections, labels, relocations and pool entries, and
// releases the holder's arenas. The holder may be reused via Init-like
// re-seeding by the caller afterward (Reset itself only clears state; it
// does not re-run architecture validation).
func (h *CodeHolder) Reset() {
	h.sections = []*Section{defaultTextSection()}
	h.labels.reset()
	h.relocs.reset()
	h.pool.reset()
	h.emitters = nil
	h.zone.Reset()
	h.errState = nil
}
