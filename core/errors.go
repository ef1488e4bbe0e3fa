// Package core implements the code container, JIT memory allocator, and
// emitter plumbing shared by architecture-specific encoders.
package core

import "fmt"

// Kind identifies a stable error category produced by the core. Callers
// should branch on Kind rather than on error text.
type Kind int

const (
	// Configuration errors.
	InvalidArch Kind = iota
	InvalidOption
	FeatureNotEnabled
	InvalidState

	// Instruction errors.
	InvalidInstruction
	InvalidOperand
	InvalidOperandSize
	InvalidCombination
	BranchTooFar
	RelocationFailed

	// Label/section errors.
	InvalidLabel
	LabelAlreadyBound
	InvalidSection
	OverlappingSection

	// Memory errors.
	OutOfMemory
	BadAlignment
	ExecutableMemoryFailed
	ProtectionFailed
	InvalidArgument
)

var kindNames = map[Kind]string{
	InvalidArch:            "invalid architecture",
	InvalidOption:          "invalid option",
	FeatureNotEnabled:      "feature not enabled",
	InvalidState:           "invalid state",
	InvalidInstruction:     "invalid instruction",
	InvalidOperand:         "invalid operand",
	InvalidOperandSize:     "invalid operand size",
	InvalidCombination:     "invalid operand combination",
	BranchTooFar:           "branch too far",
	RelocationFailed:       "relocation failed",
	InvalidLabel:           "invalid label",
	LabelAlreadyBound:      "label already bound",
	InvalidSection:         "invalid section",
	OverlappingSection:     "overlapping section",
	OutOfMemory:            "out of memory",
	BadAlignment:           "bad alignment",
	ExecutableMemoryFailed: "executable memory failed",
	ProtectionFailed:       "protection failed",
	InvalidArgument:        "invalid argument",
}

// String renders the stable short name for a Kind, suitable for external
// diagnostic logging.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is the concrete error type returned by every core and x86
// operation. It carries a Kind for programmatic branching plus a
// human-readable message; no stack trace is captured, per the design's
// synchronous, context-free error surface.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is lets errors.Is(err, core.ErrKind(k)) match any *Error of that Kind.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// newError builds an *Error with a formatted message.
func newError(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// ErrKind returns a sentinel *Error of the given Kind, usable with
// errors.Is for matching without caring about the message.
func ErrKind(k Kind) error {
	return &Error{Kind: k}
}
