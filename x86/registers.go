// Package x86 implements the x86/x64 instruction-entry database, encoder,
// and the Assembler/Builder emitters that drive it.
package x86

import "github.com/xyproto/jitasm/core"

// regInfo names one physical register's encoding. Grounded on the
// teacher's x86_64Registers map (reg.go), widened from GP-only to general
// purpose, vector (XMM/YMM/ZMM), mask (K0-K7) and segment registers.
// Control and debug registers have no table here, so Lookup does not
// resolve their names.
type regInfo struct {
	name     string
	group    core.RegGroup
	size     core.Size
	encoding uint16
}

var gpRegisters = buildGPRegisters()
var vecRegisters = buildVecRegisters()
var maskRegisters = buildMaskRegisters()
var segRegisters = buildSegRegisters()

func buildGPRegisters() map[string]regInfo {
	regs := map[string]regInfo{}
	names64 := []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
	names32 := []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
		"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
	names16 := []string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
		"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
	namesLow8 := []string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
		"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}
	legacyHigh8 := []string{"ah", "ch", "dh", "bh"}

	add := func(list []string, size core.Size) {
		for i, n := range list {
			regs[n] = regInfo{name: n, group: core.RegGroupGP, size: size, encoding: uint16(i)}
		}
	}
	add(names64, core.Size64)
	add(names32, core.Size32)
	add(names16, core.Size16)
	add(namesLow8, core.Size8)
	for i, n := range legacyHigh8 {
		// AH/CH/DH/BH share ModR/M encodings 4-7 with SPL/BPL/SIL/DIL once a
		// REX prefix is present, so they cannot reuse those same operand
		// ids without losing which register was meant. They get their own
		// id range (16-19); the encoder maps that back to ModR/M field
		// 4-7 and refuses to emit a REX prefix alongside them (spec §4.3
		// step 4's REX conflict rule).
		regs[n] = regInfo{name: n, group: core.RegGroupGP, size: core.Size8, encoding: uint16(16 + i)}
	}
	return regs
}

func buildVecRegisters() map[string]regInfo {
	regs := map[string]regInfo{}
	addPrefixed := func(prefix string, size core.Size) {
		for i := 0; i < 32; i++ {
			n := prefix + itoa(i)
			regs[n] = regInfo{name: n, group: core.RegGroupVector, size: size, encoding: uint16(i)}
		}
	}
	addPrefixed("xmm", core.Size128)
	addPrefixed("ymm", core.Size256)
	addPrefixed("zmm", core.Size512)
	return regs
}

func buildMaskRegisters() map[string]regInfo {
	regs := map[string]regInfo{}
	for i := 0; i < 8; i++ {
		n := "k" + itoa(i)
		regs[n] = regInfo{name: n, group: core.RegGroupMask, size: core.Size64, encoding: uint16(i)}
	}
	return regs
}

func buildSegRegisters() map[string]regInfo {
	names := []string{"es", "cs", "ss", "ds", "fs", "gs"}
	regs := map[string]regInfo{}
	for i, n := range names {
		regs[n] = regInfo{name: n, group: core.RegGroupSegment, size: core.Size16, encoding: uint16(i)}
	}
	return regs
}

// itoa avoids pulling in strconv for single/double-digit register suffixes.
func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// Lookup resolves a register name (as used by the teacher's string-based
// mnemonics, e.g. "rax", "xmm0", "k1") to a core.Operand. The second
// return value is false for unknown names.
func Lookup(name string) (core.Operand, bool) {
	if r, ok := gpRegisters[name]; ok {
		return core.Reg(r.group, r.size, r.encoding), true
	}
	if r, ok := vecRegisters[name]; ok {
		return core.Reg(r.group, r.size, r.encoding), true
	}
	if r, ok := maskRegisters[name]; ok {
		return core.Reg(r.group, r.size, r.encoding), true
	}
	if r, ok := segRegisters[name]; ok {
		return core.Reg(r.group, r.size, r.encoding), true
	}
	return core.Operand{}, false
}
