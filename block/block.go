// Package block defines the four block variants the layout engine operates
// on: Concrete, Symbolic, Fallthrough and AddressAssigned, each enriching
// the previous (spec §3), plus the Pair every block travels as.
package block

import "github.com/xyproto/rewire/address"

// Instruction is an opaque decoded instruction. The layout engine never
// interprets instruction bytes itself; it only asks an isa.Capability for
// sizes and jump classifications, so Instruction carries whatever payload
// the ISA capability and block assembler agree on.
type Instruction struct {
	// Bytes holds the already-decoded (or already-synthesized) instruction
	// encoding, when known. Blocks produced purely symbolically (e.g. a
	// synthesized trampoline jump before MakeRelativeJump has resolved a
	// concrete target) may leave this nil.
	Bytes []byte

	// Mnemonic is a human-readable name, used only for diagnostics.
	Mnemonic string

	// Size is the instruction's encoded size in bytes, as reported by
	// isa.Capability.InstructionSize. It is cached here because it is
	// consulted repeatedly during layout (size accounting, fallthrough
	// reification) and recomputing it would require threading the
	// Capability through every block operation.
	Size int
}

// Concrete is a contiguous byte range at a known concrete address, owning
// an ordered sequence of decoded instructions. Invariant: the sum of
// instruction sizes equals the block's size (spec §3, invariant 1 of the
// block-variant progression).
type Concrete struct {
	Addr         address.Concrete
	Instructions []Instruction
}

// Size returns the sum of the block's instruction sizes.
func (c Concrete) Size() int {
	total := 0
	for _, i := range c.Instructions {
		total += i.Size
	}
	return total
}

// End returns the concrete address immediately after this block.
func (c Concrete) End() address.Concrete {
	return c.Addr.Add(int64(c.Size()))
}

// Symbolic is an ordered sequence of instructions whose branch targets
// reference symbolic addresses, plus the original concrete block it was
// derived from.
type Symbolic struct {
	Addr         address.Symbolic
	Instructions []Instruction
	// OriginalAddr is the concrete address of the block this symbolic
	// block was derived from. It is needed by the fallthrough reifier to
	// find the block's successor-in-memory.
	OriginalAddr address.Concrete
}

// FallthroughKind tags one instruction's fallthrough annotation.
type FallthroughKind int

const (
	// NoFallthrough means this instruction does not implicitly continue
	// into the following symbolic address.
	NoFallthrough FallthroughKind = iota
	// Fallthrough means this instruction implicitly continues into the
	// recorded symbolic successor.
	Fallthrough
)

// FallthroughTag is the per-instruction annotation a Fallthrough block
// carries: either no fallthrough, or a fallthrough to a specific symbolic
// successor.
type FallthroughTag struct {
	Kind      FallthroughKind
	Successor address.Symbolic
}

// FallthroughBlock is a Symbolic block where each instruction carries a
// FallthroughTag; only the last instruction may carry a non-null
// (Fallthrough) tag after reification (spec §3, invariant 4).
type FallthroughBlock struct {
	Addr         address.Symbolic
	Instructions []Instruction
	Tags         []FallthroughTag
	OriginalAddr address.Concrete
}

// LastFallthrough returns the fallthrough tag of the block's last
// instruction, which is the only instruction allowed to carry one.
func (f FallthroughBlock) LastFallthrough() FallthroughTag {
	if len(f.Tags) == 0 {
		return FallthroughTag{Kind: NoFallthrough}
	}
	return f.Tags[len(f.Tags)-1]
}

// AddressAssigned is a FallthroughBlock plus a final concrete address and
// the byte size reserved for it in the output layout.
type AddressAssigned struct {
	Addr         address.Concrete
	Instructions []Instruction
	Tags         []FallthroughTag
	OriginalAddr address.Concrete
	// Reserved is the byte size reserved for this block in the output
	// layout. It may exceed the sum of instruction sizes when the block
	// was placed into a larger-than-needed heap hole that was not split
	// (never happens for the allocator described in spec §4.5, which
	// always reinserts the remainder, but the field exists so a consumer
	// can tell "used" from "reserved" without recomputing from
	// Instructions).
	Reserved int
}

// Size returns the sum of the block's instruction sizes.
func (a AddressAssigned) Size() int {
	total := 0
	for _, i := range a.Instructions {
		total += i.Size
	}
	return total
}

// Status classifies how a layout pair participates in layout.
type Status int

const (
	// Unmodified means the pass did not touch this block: keep it in
	// place, do not relocate it.
	Unmodified Status = iota
	// Modified means the pass altered this block: it must be relocated.
	Modified
	// Immutable means the pass marked this block as not relocatable: keep
	// it in place even though it was touched.
	Immutable
	// Subsumed means this block's original bytes will be completely
	// replaced by other blocks' redirections; its space is fully
	// reclaimed.
	Subsumed
)

func (s Status) String() string {
	switch s {
	case Unmodified:
		return "unmodified"
	case Modified:
		return "modified"
	case Immutable:
		return "immutable"
	case Subsumed:
		return "subsumed"
	default:
		return "unknown"
	}
}

// Pair is the (original concrete block, derived block, status) triple
// every block travels as through the pipeline (spec §3).
type Pair struct {
	Original Concrete
	Derived  Symbolic
	Status   Status
}
