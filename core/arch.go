package core

// Family names a supported instruction set family.
type Family uint8

const (
	FamilyX86 Family = iota
	FamilyX64
	FamilyARM32 // external collaborator only — no encoder ships in this core
	FamilyARM64 // external collaborator only — no encoder ships in this core
)

func (f Family) String() string {
	switch f {
	case FamilyX86:
		return "x86"
	case FamilyX64:
		return "x64"
	case FamilyARM32:
		return "arm32"
	case FamilyARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// FeatureBit indexes the fixed feature-id enumeration consulted by the
// encoder's feature check (spec §4.3 step 2). CPU-feature detection beyond
// this bitset is an external collaborator's job; the core only consumes
// the mask.
type FeatureBit uint

const (
	FeatureSSE2 FeatureBit = iota
	FeatureSSE3
	FeatureSSSE3
	FeatureSSE41
	FeatureSSE42
	FeatureAVX
	FeatureAVX2
	FeatureAVX512F
	FeatureBMI1
	FeatureBMI2
	FeatureLZCNT
	featureBitCount
)

// FeatureMask is a bitset over FeatureBit, injectable for test
// reproducibility (spec §9 "Global state": detection is cached per-process
// but test suites must be able to inject a synthetic mask).
type FeatureMask uint64

// Has reports whether bit is set in the mask.
func (m FeatureMask) Has(bit FeatureBit) bool {
	return m&(1<<uint(bit)) != 0
}

// With returns a copy of m with bit set.
func (m FeatureMask) With(bit FeatureBit) FeatureMask {
	return m | (1 << uint(bit))
}

// ArchDescriptor is the architecture descriptor consumed by emitters
// (spec §6). It is immutable once built by Init.
type ArchDescriptor struct {
	Family        Family
	Bitness       int // 32 or 64
	PointerSize   int // bytes
	StackAlign    int // bytes
	LittleEndian  bool
	MaxGPRegs     int
	MaxVecRegs    int
	Features      FeatureMask
}

// NewX64Descriptor returns the standard x86-64 architecture descriptor with
// the given feature mask.
func NewX64Descriptor(features FeatureMask) ArchDescriptor {
	return ArchDescriptor{
		Family:       FamilyX64,
		Bitness:      64,
		PointerSize:  8,
		StackAlign:   16,
		LittleEndian: true,
		MaxGPRegs:    16,
		MaxVecRegs:   16,
		Features:     features,
	}
}

// NewX86Descriptor returns the standard 32-bit x86 architecture descriptor.
func NewX86Descriptor(features FeatureMask) ArchDescriptor {
	return ArchDescriptor{
		Family:       FamilyX86,
		Bitness:      32,
		PointerSize:  4,
		StackAlign:   16,
		LittleEndian: true,
		MaxGPRegs:    8,
		MaxVecRegs:   8,
		Features:     features,
	}
}

// Supported reports whether this core ships an encoder for the family.
// Only x86/x64 are implemented; ARM32/ARM64 are named so callers can fail
// fast with InvalidArch rather than discovering the gap mid-encode.
func (a ArchDescriptor) Supported() bool {
	return a.Family == FamilyX86 || a.Family == FamilyX64
}
