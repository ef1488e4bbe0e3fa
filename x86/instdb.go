package x86

import (
	"fmt"

	"github.com/xyproto/jitasm/core"
)

// InstID identifies an instruction mnemonic in the entry database. Grounded
// on the teacher's per-mnemonic methods (mov.go, x86_64_codegen.go, cmp.go,
// div.go, shl.go, mem_ops.go, syscall_x86_64.go), consolidated here into
// one table-driven database per spec §4.3 rather than one Go method per
// instruction scattered across files.
type InstID uint32

const (
	MOV InstID = iota
	MOVDQU
	ADD
	SUB
	AND
	OR
	XOR
	CMP
	LEA
	PUSH
	POP
	JMP      // commits to the long (rel32) form on any not-immediately-resolvable target
	JMPShort // commits to the short (rel8) form; fails at bind if out of range
	CALL
	RET
	NOP
	SYSCALL
)

// arity names how many operand slots an instruction consumes, used for the
// InvalidInstruction / InvalidOperand arity check that runs before
// encoding; operand kinds and sizes are checked by each encode method.
var arity = map[InstID]int{
	MOV: 2, MOVDQU: 2, ADD: 2, SUB: 2, AND: 2, OR: 2, XOR: 2, CMP: 2, LEA: 2,
	PUSH: 1, POP: 1, JMP: 1, JMPShort: 1, CALL: 1,
	RET: 0, NOP: 0, SYSCALL: 0,
}

// aluOpcode carries the /r (register-form) opcode and the ModR/M opcode
// extension used by the /imm forms, for the six two-operand ALU
// mnemonics that differ only in these two numbers. Reduces six
// near-identical per-mnemonic switch arms (as the teacher's cmp.go,
// div.go, etc. each implement separately) to one parameterized encode
// path — see encoder.go's encodeALU.
type aluOpcode struct {
	rmReg8  byte // opcode for r/m8, r8
	rmReg   byte // opcode for r/m(16/32/64), r(16/32/64)
	regRm   byte // opcode for r, r/m (load direction, used by CMP-like reads)
	ext     byte // ModR/M /digit for the immediate forms (0x80/0x81/0x83)
}

var aluOpcodes = map[InstID]aluOpcode{
	ADD: {rmReg8: 0x00, rmReg: 0x01, regRm: 0x03, ext: 0},
	OR:  {rmReg8: 0x08, rmReg: 0x09, regRm: 0x0B, ext: 1},
	AND: {rmReg8: 0x20, rmReg: 0x21, regRm: 0x23, ext: 4},
	SUB: {rmReg8: 0x28, rmReg: 0x29, regRm: 0x2B, ext: 5},
	XOR: {rmReg8: 0x30, rmReg: 0x31, regRm: 0x33, ext: 6},
	CMP: {rmReg8: 0x38, rmReg: 0x39, regRm: 0x3B, ext: 7},
}

func isALU(id InstID) bool {
	_, ok := aluOpcodes[id]
	return ok
}

func checkArity(id InstID, ops [6]core.Operand) error {
	want, ok := arity[id]
	if !ok {
		return newErr(core.InvalidInstruction, "unknown instruction id %d", id)
	}
	got := 0
	for _, o := range ops {
		if o.Kind != core.OpNone {
			got++
		}
	}
	if got != want {
		return newErr(core.InvalidOperand, "instruction %d expects %d operands, got %d", id, want, got)
	}
	return nil
}

func newErr(k core.Kind, format string, args ...interface{}) error {
	return &core.Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}
