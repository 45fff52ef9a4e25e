// Package isa defines the ISA capability contract the layout engine
// depends on (spec §4.1): instruction sizing, jump classification, jump
// and padding synthesis, and fallthrough annotation. The layout engine
// never interprets instruction bytes itself; every architecture-specific
// decision is delegated to a Capability implementation.
package isa

import (
	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
)

// Condition distinguishes unconditional transfers (which never fall
// through) from conditional ones (which do, unless the classifier reports
// otherwise).
type Condition int

const (
	Unconditional Condition = iota
	Conditional
)

// JumpTag names the shape of a classified terminator instruction.
type JumpTag int

const (
	NoJump JumpTag = iota
	DirectCall
	IndirectCall
	Return
	IndirectJump
	AbsoluteJump
	RelativeJump
)

func (t JumpTag) String() string {
	switch t {
	case NoJump:
		return "no-jump"
	case DirectCall:
		return "direct-call"
	case IndirectCall:
		return "indirect-call"
	case Return:
		return "return"
	case IndirectJump:
		return "indirect-jump"
	case AbsoluteJump:
		return "absolute-jump"
	case RelativeJump:
		return "relative-jump"
	default:
		return "unknown"
	}
}

// JumpKind is the classification of a block's terminator instruction,
// spec §4.1: `JumpKind ∈ { NoJump, DirectCall{tgt}, IndirectCall,
// Return{cond}, IndirectJump{cond}, AbsoluteJump{cond,tgt},
// RelativeJump{cond,off,tgt} }`.
type JumpKind struct {
	Tag    JumpTag
	Cond   Condition
	Target address.Concrete
	// HasTarget reports whether Target is meaningful for this Tag
	// (DirectCall, AbsoluteJump, RelativeJump carry one; the others do
	// not).
	HasTarget bool
	// Offset is the raw relative offset for RelativeJump, in bytes.
	Offset int32
}

// IsUnconditionalTerminator reports whether this jump kind unconditionally
// transfers control away from the block, meaning the block never falls
// through (spec §4.2: "Unconditional return/indirect/absolute/relative
// jump -> annotate all instructions NoFallthrough").
func (k JumpKind) IsUnconditionalTerminator() bool {
	if k.Cond != Unconditional {
		return false
	}
	switch k.Tag {
	case Return, IndirectJump, AbsoluteJump, RelativeJump:
		return true
	default:
		return false
	}
}

// MemoryView resolves an absolute address in the original binary, used
// only by the fallthrough reifier to hand a fake relative address to
// ClassifyJump (spec §6). No byte reads occur anywhere else in the core.
type MemoryView interface {
	ResolveAbsolute(addr address.Concrete) (address.Concrete, bool)
}

// Capability is the abstract set of operations the layout engine needs
// from an instruction-set model (spec §4.1).
type Capability interface {
	// InstructionSize returns the encoded size, in bytes, of a decoded
	// instruction.
	InstructionSize(i block.Instruction) int

	// ConcreteBlockSize returns the encoded size, in bytes, of a concrete
	// block.
	ConcreteBlockSize(b block.Concrete) int

	// SymbolicBlockSize returns an upper-bound size, in bytes, for a
	// symbolic block once its relative jumps are resolved against
	// layoutBase.
	SymbolicBlockSize(b block.Symbolic, layoutBase address.Concrete) int

	// ClassifyJump classifies a block's last instruction, consulting mem
	// only to resolve a fake relative address when needed.
	ClassifyJump(last block.Instruction, mem MemoryView, fakeAddr address.Concrete) JumpKind

	// MakeRelativeJump synthesizes the trampoline jump transferring
	// control from `from` to `to`. Its encoded size is the "jump size"
	// used throughout free-space accounting (spec §4.4).
	MakeRelativeJump(from, to address.Concrete) []block.Instruction

	// JumpSize returns the byte size MakeRelativeJump would produce for a
	// trampoline at this architecture, without requiring concrete
	// addresses. Free-space accounting needs this before any address has
	// been assigned (spec §4.4's "trampoline jump size J").
	JumpSize() int

	// MakePadding synthesizes n bytes of ISA-defined trap/no-op fill.
	MakePadding(n int) []block.Instruction

	// AnnotateFallthrough returns the fallthrough tag for kind, to be
	// attached to a block's instruction.
	AnnotateFallthrough(kind block.FallthroughKind, successor address.Symbolic) block.FallthroughTag
}
