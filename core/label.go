package core

// LabelID uniquely identifies a Label within a CodeHolder. IDs are dense,
// monotonically allocated, and never reused, per spec §3.
type LabelID uint32

type labelState uint8

const (
	labelUnbound labelState = iota
	labelBound
)

// FixupKind names how a pending fix-up site should be patched once its
// label binds. Exported so encoders in other packages (e.g. x86) can queue
// fix-ups for the displacement widths their instruction forms use.
type FixupKind uint8

const (
	FixupPCRelative1 FixupKind = iota // 1-byte rel8 displacement
	FixupPCRelative4                  // 4-byte rel32 displacement
	FixupAbsolute8                    // 8-byte absolute address
)

// fixup is one pending patch site, chained off the label it targets until
// the label binds. Arena-allocated via pool[fixup]; freed en masse on
// CodeHolder.reset.
type fixup struct {
	section SectionID
	offset  int64
	kind    FixupKind
	next    *fixup
}

// Label records a symbolic location within a CodeHolder: either Unbound
// (with a chain of pending fix-ups) or Bound to a concrete section+offset.
type Label struct {
	id      LabelID
	state   labelState
	section SectionID
	offset  int64
	fixups  *fixup // non-nil only while Unbound
}

// ID returns the label's identifier.
func (l *Label) ID() LabelID { return l.id }

// Bound reports whether the label has been bound to a location.
func (l *Label) Bound() bool { return l.state == labelBound }

// Section returns the section a bound label was bound into. Meaningless if
// !Bound().
func (l *Label) Section() SectionID { return l.section }

// Offset returns the byte offset within Section() a bound label was bound
// at. Meaningless if !Bound().
func (l *Label) Offset() int64 { return l.offset }

// labelTable owns every Label allocated within one CodeHolder, plus the
// pool backing their fix-up chains.
type labelTable struct {
	labels    []*Label // indexed by LabelID
	fixupPool pool[fixup]
}

func newLabelTable() *labelTable {
	return &labelTable{fixupPool: newPool[fixup]()}
}

func (t *labelTable) newLabel() LabelID {
	id := LabelID(len(t.labels))
	t.labels = append(t.labels, &Label{id: id, state: labelUnbound})
	return id
}

func (t *labelTable) get(id LabelID) (*Label, error) {
	if int(id) >= len(t.labels) {
		return nil, newError(InvalidLabel, "label %d does not exist", id)
	}
	return t.labels[id], nil
}

// queueFixup appends a pending fix-up to an unbound label's chain.
func (t *labelTable) queueFixup(l *Label, section SectionID, offset int64, kind FixupKind) {
	node := t.fixupPool.allocate()
	node.section = section
	node.offset = offset
	node.kind = kind
	node.next = l.fixups
	l.fixups = node
}

func (t *labelTable) reset() {
	t.labels = nil
	t.fixupPool.reset()
}
