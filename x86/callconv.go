package x86

import "github.com/xyproto/jitasm/core"

// CallConvID names a calling convention this core understands well enough
// to generate a prolog/epilog and an argument-register order for. Grounded
// on the teacher's SysV/PLT argument-passing logic (plt_got.go,
// elf_complete.go), widened to cover the Windows x64 convention the same
// way AsmJit's CallConv table does.
type CallConvID uint8

const (
	CallConvSysV64 CallConvID = iota
	CallConvWin64
	CallConvCdecl32
	CallConvStdcall32
	CallConvFastcall32
)

// CallConv describes one calling convention's register assignment and
// stack layout, enough to emit a prolog/epilog and to know which registers
// a generated function call must treat as caller-saved.
type CallConv struct {
	ID              CallConvID
	IntArgRegs      []string // in order, GP argument registers
	VecArgRegs      []string // in order, vector (XMM) argument registers
	CalleeSaved     []string
	RedZoneBytes    int // SysV's 128-byte red zone below rsp a leaf function may use without adjusting rsp
	ShadowSpaceBytes int // Win64's mandatory 32-byte caller-reserved scratch area
	StackAlign      int
}

var callConvs = map[CallConvID]CallConv{
	CallConvSysV64: {
		ID:            CallConvSysV64,
		IntArgRegs:    []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
		VecArgRegs:    []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
		CalleeSaved:   []string{"rbx", "rbp", "r12", "r13", "r14", "r15"},
		RedZoneBytes:  128,
		StackAlign:    16,
	},
	CallConvWin64: {
		ID:               CallConvWin64,
		IntArgRegs:       []string{"rcx", "rdx", "r8", "r9"},
		VecArgRegs:       []string{"xmm0", "xmm1", "xmm2", "xmm3"},
		CalleeSaved:      []string{"rbx", "rbp", "rdi", "rsi", "r12", "r13", "r14", "r15"},
		ShadowSpaceBytes: 32,
		StackAlign:       16,
	},
}

// HostCallConv returns SysV64 on every build, Windows included: the
// allocator/virtmem layer in core ships non-Windows and Windows backends
// behind build tags, but this function does not consult the build target.
// The calling-convention table itself is data, so both entries stay
// available through LookupCallConv for a caller cross-assembling.
func HostCallConv() CallConv { return callConvs[CallConvSysV64] }

// LookupCallConv returns the named calling convention.
func LookupCallConv(id CallConvID) (CallConv, bool) {
	cc, ok := callConvs[id]
	return cc, ok
}

// Prolog emits a standard frame-pointer prolog (push rbp; mov rbp, rsp;
// sub rsp, N) via asm, where N is frameSize plus the convention's shadow
// space, rounded up to its stack alignment; the sub is omitted when N is 0.
func Prolog(asm *Assembler, cc CallConv, frameSize int) error {
	rbp, _ := Lookup("rbp")
	rsp, _ := Lookup("rsp")
	if err := asm.Push(rbp); err != nil {
		return err
	}
	if err := asm.Mov(rbp, rsp); err != nil {
		return err
	}
	aligned := alignUp(frameSize+cc.ShadowSpaceBytes, cc.StackAlign)
	if aligned == 0 {
		return nil
	}
	return asm.Sub(rsp, core.Imm(int64(aligned), core.Size32))
}

// Epilog emits the matching (mov rsp, rbp; pop rbp; ret) sequence.
func Epilog(asm *Assembler) error {
	rbp, _ := Lookup("rbp")
	rsp, _ := Lookup("rsp")
	if err := asm.Mov(rsp, rbp); err != nil {
		return err
	}
	if err := asm.Pop(rbp); err != nil {
		return err
	}
	return asm.Ret()
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
