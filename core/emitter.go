package core

// EmitterKind tags which concrete emitter variant a handle belongs to.
// The core dispatches through one capability record per spec §9
// ("Polymorphic emitters"): rather than host-language inheritance between
// Assembler/Builder/Compiler, each concrete kind fills in the function
// pointers it supports and leaves the rest nil.
type EmitterKind uint8

const (
	EmitterAssembler EmitterKind = iota
	EmitterBuilder
	EmitterCompiler // virtual-register frontend; out of core scope, interface only
)

// Emitter is the capability record a concrete emitter (Assembler, Builder,
// or Compiler) registers with a CodeHolder. CodeHolder.Attach stores a
// pointer to the record and dispatches every call through it; the emitter is not
// owned by the holder (spec §4.1 attach/detach).
type Emitter struct {
	Kind EmitterKind

	// Emit validates operand count/kinds against the instruction-entry
	// table and, on success, appends exactly the encoded bytes (and any
	// relocation records) to the active section. On mismatch it must
	// leave the buffer unchanged and return an *Error.
	Emit func(instID uint32, ops [6]Operand) error

	// Bind transitions a label to Bound at the emitter's current write
	// position and patches any resolvable queued fix-ups.
	Bind func(label LabelID) error

	// Align emits padding until the active section is aligned.
	Align func(alignment int, fill byte) error

	// Embed appends raw bytes verbatim (spec §4.2 embed).
	Embed func(data []byte) error

	// EmbedLabel appends a pointer-sized reference to a label (spec §4.2
	// embedLabel) — e.g. for building a jump table.
	EmbedLabel func(label LabelID) error

	// EmbedConstPool is the embedConstPool hook (spec §4.2). It does not
	// place the pool at the current position: CodeHolder.Relocate always
	// folds the pool onto the end of the last section. The Assembler's
	// implementation only checks that it is writing that last section; the
	// Builder's does nothing.
	EmbedConstPool func() error

	// Finalize is called once emission for this handle is complete; for
	// a Builder it replays recorded nodes into their target section, for
	// an Assembler it is a no-op.
	Finalize func() error
}

// attachedEmitter pairs an Emitter capability record with the sticky
// first-error state the CodeHolder enforces per attached handle (spec §7:
// "once an emitter reports an error, subsequent emits ... are no-ops
// returning the same code until explicitly cleared").
type attachedEmitter struct {
	handle   *Emitter
	firstErr error
}

func (a *attachedEmitter) emit(instID uint32, ops [6]Operand) error {
	return a.Do(func() error { return a.handle.Emit(instID, ops) })
}

// Emit runs the attached emitter's Emit capability through the sticky
// first-error gate. Exported so a concrete emitter implementation living in
// another package (e.g. x86.Assembler) can drive emission through the same
// per-handle error state the core enforces.
func (a *attachedEmitter) Emit(instID uint32, ops [6]Operand) error {
	return a.emit(instID, ops)
}

// Do runs fn through the attached emitter's sticky first-error gate: a
// no-op returning the existing error if one is already latched, otherwise
// it runs fn and latches any error it returns. Used by a concrete emitter's
// Bind/Align/Embed/EmbedLabel/EmbedConstPool/Finalize wrappers so every
// capability — not just Emit — participates in the same sticky state.
func (a *attachedEmitter) Do(fn func() error) error {
	if a.firstErr != nil {
		return a.firstErr
	}
	if err := fn(); err != nil {
		a.firstErr = err
		return err
	}
	return nil
}

// Handle exposes the underlying capability record, for a concrete emitter
// that needs to invoke its own non-Emit function pointers (Bind, Align,
// Embed, EmbedLabel, EmbedConstPool, Finalize) directly.
func (a *attachedEmitter) Handle() *Emitter { return a.handle }

// ClearError resets an attached emitter's sticky first-error, allowing
// further emits. There is no implicit clearing — the caller must decide
// the prior error was handled.
func (a *attachedEmitter) ClearError() {
	a.firstErr = nil
}

// Err returns the attached emitter's sticky first error, or nil.
func (a *attachedEmitter) Err() error {
	return a.firstErr
}
