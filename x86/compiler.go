package x86

import "github.com/xyproto/jitasm/core"

// VirtRegID names a Compiler-level virtual register, resolved to a
// physical register by a register allocator before Finalize. Out of core
// scope per spec §4.2 ("Compiler ... register allocation is explicitly out
// of scope for the core"); this type and Compiler exist so a caller can
// plug in their own allocator without the core needing to ship one,
// mirroring the teacher's demo_regalloc.go, which hand-rolled allocation
// entirely outside the encoder.
type VirtRegID uint32

// RegAllocator maps virtual registers to physical ones for one Compiler
// run. A caller supplies a concrete implementation; the core does not ship
// one.
type RegAllocator interface {
	Assign(nodes []builderNode) (map[VirtRegID]core.Operand, error)
}

// Compiler extends Builder with virtual registers: record with Vreg-
// tagged operands, then Finalize with a RegAllocator to rewrite them to
// physical registers before replay. The core provides only this plumbing;
// the allocation policy itself is the caller's responsibility.
type Compiler struct {
	*Builder
	nextVreg VirtRegID
}

// NewCompiler creates a Compiler bound to h, recording into section.
func NewCompiler(h *core.CodeHolder, section core.SectionID, features core.FeatureMask) *Compiler {
	return &Compiler{Builder: NewBuilder(h, section, features)}
}

// NewVirtualReg allocates a fresh virtual register id for use as an
// Operand's Reg.ID with Reg.Group set to a sentinel the RegAllocator
// recognizes (the core does not reserve a RegGroup for virtual registers;
// that convention is the allocator's).
func (c *Compiler) NewVirtualReg() VirtRegID {
	id := c.nextVreg
	c.nextVreg++
	return id
}

// FinalizeWith runs alloc over the recorded node sequence, rewrites any
// virtual-register operand it resolves, then replays through the
// Builder's normal Finalize path.
func (c *Compiler) FinalizeWith(alloc RegAllocator) error {
	assignment, err := alloc.Assign(c.nodes)
	if err != nil {
		return err
	}
	for i, n := range c.nodes {
		if n.kind != nodeInst {
			continue
		}
		for j, op := range n.ops {
			if op.Kind != core.OpRegister {
				continue
			}
			if phys, ok := assignment[VirtRegID(op.Reg.ID)]; ok {
				c.nodes[i].ops[j] = phys
			}
		}
	}
	return c.Finalize()
}
