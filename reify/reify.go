// Package reify makes implicit fallthrough control flow explicit (spec
// §4.2): it scans all symbolic blocks to build a successor index, then
// appends explicit fallthrough annotations to modified blocks that
// previously fell through.
package reify

import (
	"fmt"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/isa"
)

// ErrorKind distinguishes the two fatal conditions reification can raise.
type ErrorKind int

const (
	// MissingFallthroughSuccessor: reification could not find the
	// symbolic block at the post-block address for a non-unconditional-
	// terminator block.
	MissingFallthroughSuccessor ErrorKind = iota
	// EmptyBlock: a block with no instructions reached reification.
	EmptyBlock
)

func (k ErrorKind) String() string {
	switch k {
	case MissingFallthroughSuccessor:
		return "missing fallthrough successor"
	case EmptyBlock:
		return "empty block"
	default:
		return "unknown"
	}
}

// Error reports a fatal reification failure (spec §7).
type Error struct {
	Kind  ErrorKind
	Block address.Symbolic
}

func (e *Error) Error() string {
	return fmt.Sprintf("reify: %s: %v", e.Kind, e.Block)
}

// successorIndex maps the concrete address immediately following a block's
// original bytes to the symbolic address of the block that starts there.
type successorIndex struct {
	byOriginalStart map[address.Concrete]address.Symbolic
}

func buildSuccessorIndex(all []block.Pair) *successorIndex {
	idx := &successorIndex{byOriginalStart: make(map[address.Concrete]address.Symbolic)}
	for _, p := range all {
		idx.byOriginalStart[p.Original.Addr] = p.Derived.Addr
	}
	return idx
}

func (idx *successorIndex) lookup(endOfOriginal address.Concrete) (address.Symbolic, bool) {
	s, ok := idx.byOriginalStart[endOfOriginal]
	return s, ok
}

// memoryView is a no-op isa.MemoryView: the reifier only needs
// ClassifyJump's tag/condition, never a resolved absolute target, so it
// always reports "not found" and lets the capability fall back to the fake
// address it was given (spec §6: "used only by the reifier to pass a fake
// relative address to classify_jump; no byte reads occur in the core").
type memoryView struct{}

func (memoryView) ResolveAbsolute(addr address.Concrete) (address.Concrete, bool) {
	return address.Concrete{}, false
}

// Reify scans all symbolic-layout pairs (modified and unmodified both, to
// build the successor index) and appends explicit fallthrough annotations
// to every pair in modifiable, returning the resulting Fallthrough blocks
// in the same order as modifiable.
//
// A block tagged Immutable reaching this step is a hard error
// (ImmutableBlockModified is reported by the caller — reify.Reify itself
// assumes its caller has already split Immutable pairs out, per spec
// §4.2's contract).
func Reify(cap isa.Capability, all []block.Pair, modifiable []block.Pair) ([]block.FallthroughBlock, error) {
	idx := buildSuccessorIndex(all)
	mem := memoryView{}

	out := make([]block.FallthroughBlock, 0, len(modifiable))
	for _, p := range modifiable {
		ft, err := reifyOne(cap, mem, idx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, nil
}

func reifyOne(cap isa.Capability, mem isa.MemoryView, idx *successorIndex, p block.Pair) (block.FallthroughBlock, error) {
	sym := p.Derived
	if len(sym.Instructions) == 0 {
		return block.FallthroughBlock{}, &Error{Kind: EmptyBlock, Block: sym.Addr}
	}

	tags := make([]block.FallthroughTag, len(sym.Instructions))
	for i := range tags {
		tags[i] = cap.AnnotateFallthrough(block.NoFallthrough, 0)
	}

	lastIdx := len(sym.Instructions) - 1
	last := sym.Instructions[lastIdx]
	// The fake address passed to ClassifyJump is only used by the
	// capability to compute a target for diagnostics; reification never
	// inspects it, so the address just past the original concrete block
	// stands in for it.
	kind := cap.ClassifyJump(last, mem, p.Original.End())

	if kind.IsUnconditionalTerminator() {
		// All instructions already default to NoFallthrough.
		return block.FallthroughBlock{
			Addr:         sym.Addr,
			Instructions: sym.Instructions,
			Tags:         tags,
			OriginalAddr: sym.OriginalAddr,
		}, nil
	}

	successor, ok := idx.lookup(p.Original.End())
	if !ok {
		return block.FallthroughBlock{}, &Error{Kind: MissingFallthroughSuccessor, Block: sym.Addr}
	}

	tags[lastIdx] = cap.AnnotateFallthrough(block.Fallthrough, successor)

	return block.FallthroughBlock{
		Addr:         sym.Addr,
		Instructions: sym.Instructions,
		Tags:         tags,
		OriginalAddr: sym.OriginalAddr,
	}, nil
}
