// Package layout sequences address algebra, reification, grouping,
// free-space accounting, and allocation into one driver (spec §4.7): the
// core of the static rewriter's block-layout engine.
package layout

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/alloc"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/freespace"
	"github.com/xyproto/rewire/group"
	"github.com/xyproto/rewire/isa"
	"github.com/xyproto/rewire/reify"
)

// ErrorKind distinguishes the layout driver's own fatal condition.
// The other four kinds named by the spec (OverlappingFreeBlocks,
// MissingFallthroughSuccessor, EmptyBlock, ImmutableBlockModified) surface
// as their owning package's native error type; Run returns them unwrapped
// so callers can errors.As into whichever one fired.
type ErrorKind int

const (
	// UnassignedSymbolicBlock: the final address-tagging step found a
	// block missing from the allocator's output.
	UnassignedSymbolicBlock ErrorKind = iota
)

func (k ErrorKind) String() string {
	switch k {
	case UnassignedSymbolicBlock:
		return "unassigned symbolic block"
	default:
		return "unknown"
	}
}

// Error reports a fatal layout failure owned by this package.
type Error struct {
	Kind ErrorKind
	Sym  address.Symbolic
}

func (e *Error) Error() string {
	return fmt.Sprintf("layout: %s: %v", e.Kind, e.Sym)
}

// Strategy is the LayoutStrategy record (spec §6): allocator, order,
// grouping, and trampoline dimensions. The caller must supply all four;
// there is no default.
type Strategy struct {
	Allocator   alloc.Kind
	Order       alloc.OrderKind
	Seed        [32]byte
	Grouping    group.Strategy
	Trampolines freespace.TrampolineStrategy
}

// InjectedItem is a raw byte payload to be placed at a fresh symbolic
// address, never reusing reclaimed space.
type InjectedItem struct {
	Symbol  address.Symbolic
	Payload []byte
}

// InjectedPlacement is where one injected payload ended up.
type InjectedPlacement struct {
	Symbol address.Symbolic
	Addr   address.Concrete
	Bytes  []byte
}

// Input collects everything the layout driver needs for one run.
type Input struct {
	Pairs       []block.Pair
	WTO         group.WTO
	FunctionMap group.FunctionMap
	Injected    []InjectedItem
	LayoutBase  address.Concrete
}

// Layout is the core's sole output (spec §6).
type Layout struct {
	ProgramBlockLayout  []block.AddressAssigned
	LayoutPaddingBlocks []block.AddressAssigned
	InjectedBlockLayout []InjectedPlacement
	ReusedBytes         int
}

// Session owns the state a single rewrite holds for its lifetime: the
// symbolic-address source, a run identifier for correlating diagnostics
// across a multi-pass rewrite, and the diagnostic log itself (spec §5).
type Session struct {
	ID          uuid.UUID
	Addresses   *address.Allocator
	Diagnostics []string
	Verbose     bool
}

// NewSession starts a fresh rewrite session.
func NewSession(verbose bool) *Session {
	return &Session{ID: uuid.New(), Addresses: address.NewAllocator(), Verbose: verbose}
}

func (s *Session) diagnose(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.Diagnostics = append(s.Diagnostics, msg)
	if s.Verbose {
		fmt.Fprintf(os.Stderr, "[layout %s] %s\n", s.ID, msg)
	}
}

// Run sequences grouping, reification, free-space accounting, and
// allocation per spec §4.7, returning the final Layout.
func Run(session *Session, cap isa.Capability, strategy Strategy, in Input) (*Layout, error) {
	chunks, err := group.Group(strategy.Grouping, in.Pairs, in.WTO, in.FunctionMap)
	if err != nil {
		return nil, err
	}
	session.diagnose("grouped %d pairs into %d chunks", len(in.Pairs), len(chunks))

	var modifiablePairs []block.Pair
	chunkSizes := make([]int, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Modifiable) == 0 {
			continue
		}
		modifiablePairs = append(modifiablePairs, c.Modifiable...)
		chunkSizes = append(chunkSizes, len(c.Modifiable))
	}

	fallthroughBlocks, err := reify.Reify(cap, in.Pairs, modifiablePairs)
	if err != nil {
		return nil, err
	}
	session.diagnose("reified %d modifiable blocks", len(fallthroughBlocks))

	allocChunks := make([]alloc.Chunk, 0, len(chunkSizes))
	cursor := 0
	for _, n := range chunkSizes {
		allocChunks = append(allocChunks, alloc.NewChunk(cap, fallthroughBlocks[cursor:cursor+n]))
		cursor += n
	}

	acc := freespace.Account(in.Pairs, cap.JumpSize(), strategy.Trampolines, in.FunctionMap)
	session.diagnose("accounted %d free-space contributions, %d small blocks", len(acc.Contributions), len(acc.SmallBlocks))

	spans, err := freespace.Coalesce(acc.Contributions)
	if err != nil {
		return nil, err
	}
	heap := freespace.NewPriorityHeap(spans)

	allocRes := alloc.Allocate(cap, alloc.Strategy{Kind: strategy.Allocator, Order: strategy.Order, Seed: strategy.Seed}, allocChunks, heap, in.LayoutBase)
	session.diagnose("allocated %d blocks, reused %d bytes", len(allocRes.Placements), allocRes.ReusedBytes)

	placementBySym := make(map[address.Symbolic]alloc.Placement, len(allocRes.Placements))
	for _, p := range allocRes.Placements {
		placementBySym[p.Block.Addr] = p
	}

	out := &Layout{ReusedBytes: allocRes.ReusedBytes}

	for _, c := range chunks {
		for _, m := range c.Modifiable {
			// m.Derived.Addr is the symbolic address reify/alloc tracked it
			// under.
			p, ok := placementBySym[m.Derived.Addr]
			if !ok {
				return nil, &Error{Kind: UnassignedSymbolicBlock, Sym: m.Derived.Addr}
			}
			out.ProgramBlockLayout = append(out.ProgramBlockLayout, block.AddressAssigned{
				Addr:         p.Addr,
				Instructions: p.Block.Instructions,
				Tags:         p.Block.Tags,
				OriginalAddr: p.Block.OriginalAddr,
				Reserved:     p.Size,
			})
		}
		for _, im := range c.Immutable {
			out.ProgramBlockLayout = append(out.ProgramBlockLayout, inPlace(im))
		}
		if c.Unmodified {
			// Unmodified chunks are singleton per Block grouping, but Loop
			// and Function grouping may unify several untouched blocks
			// into one inert chunk; every member still emits in place.
			for _, m := range c.Members {
				out.ProgramBlockLayout = append(out.ProgramBlockLayout, inPlace(m))
			}
		}
	}

	for _, span := range heap.Drain() {
		out.LayoutPaddingBlocks = append(out.LayoutPaddingBlocks, block.AddressAssigned{
			Addr:         span.Addr,
			Instructions: cap.MakePadding(span.Size),
			Tags:         []block.FallthroughTag{{Kind: block.NoFallthrough}},
			Reserved:     span.Size,
		})
	}

	sizes := make([]int, len(in.Injected))
	for i, item := range in.Injected {
		sizes[i] = len(item.Payload)
	}
	addrs, _ := alloc.AllocateInjected(allocRes.FreshEnd, sizes)
	for i, item := range in.Injected {
		out.InjectedBlockLayout = append(out.InjectedBlockLayout, InjectedPlacement{
			Symbol: item.Symbol,
			Addr:   addrs[i],
			Bytes:  item.Payload,
		})
	}

	return out, nil
}

// inPlace emits a pair that is staying at its original address: kept
// in place because it is Unmodified or Immutable, so reification never ran
// on it and its last instruction is tagged NoFallthrough vacuously (spec
// §4.7).
func inPlace(p block.Pair) block.AddressAssigned {
	tags := make([]block.FallthroughTag, len(p.Original.Instructions))
	for i := range tags {
		tags[i] = block.FallthroughTag{Kind: block.NoFallthrough}
	}
	return block.AddressAssigned{
		Addr:         p.Original.Addr,
		Instructions: p.Original.Instructions,
		Tags:         tags,
		OriginalAddr: p.Original.Addr,
		Reserved:     p.Original.Size(),
	}
}
