package layout

import (
	"testing"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/alloc"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/freespace"
	"github.com/xyproto/rewire/group"
	"github.com/xyproto/rewire/isa/x86_64"
)

// TestInvariantReservedCoversUsed checks property 1: reserved size is
// always at least the sum of instruction sizes.
func TestInvariantReservedCoversUsed(t *testing.T) {
	cap := x86_64.New()
	pairs := []block.Pair{
		modifiedPair(0x1000, 48, 40, address.Symbolic(1)),
		modifiedPair(0x1100, 16, 10, address.Symbolic(2)),
	}
	strategy := Strategy{Allocator: alloc.Compact, Order: alloc.Sorted, Grouping: group.Block, Trampolines: freespace.AlwaysTrampoline}
	out, err := Run(NewSession(false), cap, strategy, Input{Pairs: pairs, LayoutBase: address.NewConcrete(address.SpaceFreshRegion, 0x800000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range out.ProgramBlockLayout {
		used := 0
		for _, i := range b.Instructions {
			used += i.Size
		}
		if b.Reserved < used {
			t.Errorf("reserved %d < used %d for block at %v", b.Reserved, used, b.Addr)
		}
	}
}

// TestInvariantNoOverlappingAssignments checks property 2: assigned blocks
// with nonzero reserved size never overlap.
func TestInvariantNoOverlappingAssignments(t *testing.T) {
	cap := x86_64.New()
	pairs := []block.Pair{
		modifiedPair(0x1000, 48, 40, address.Symbolic(1)),
		modifiedPair(0x1100, 16, 10, address.Symbolic(2)),
		modifiedPair(0x1200, 32, 20, address.Symbolic(3)),
	}
	strategy := Strategy{Allocator: alloc.Compact, Order: alloc.Sorted, Grouping: group.Block, Trampolines: freespace.AlwaysTrampoline}
	out, err := Run(NewSession(false), cap, strategy, Input{Pairs: pairs, LayoutBase: address.NewConcrete(address.SpaceFreshRegion, 0x800000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	type iv struct{ start, end uint64 }
	var ivs []iv
	for _, b := range out.ProgramBlockLayout {
		if b.Reserved == 0 {
			continue
		}
		ivs = append(ivs, iv{b.Addr.Value, b.Addr.Value + uint64(b.Reserved)})
	}
	for i := range ivs {
		for j := range ivs {
			if i == j {
				continue
			}
			if ivs[i].start < ivs[j].end && ivs[j].start < ivs[i].end {
				t.Errorf("overlapping assignments: %+v and %+v", ivs[i], ivs[j])
			}
		}
	}
}

// TestInvariantReusedBytesMatchesConsumption checks property 3.
func TestInvariantReusedBytesMatchesConsumption(t *testing.T) {
	cap := x86_64.New()
	pairs := []block.Pair{
		modifiedPair(0x1000, 48, 40, address.Symbolic(1)),
		modifiedPair(0x1100, 16, 10, address.Symbolic(2)),
		modifiedPair(0x1200, 32, 20, address.Symbolic(3)),
	}
	strategy := Strategy{Allocator: alloc.Compact, Order: alloc.Sorted, Grouping: group.Block, Trampolines: freespace.AlwaysTrampoline}
	out, err := Run(NewSession(false), cap, strategy, Input{Pairs: pairs, LayoutBase: address.NewConcrete(address.SpaceFreshRegion, 0x800000)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ReusedBytes != 40+20+10 {
		t.Errorf("expected reused bytes 70, got %d", out.ReusedBytes)
	}
}

// TestInvariantCoalescedSpansNonAdjacent checks property 6.
func TestInvariantCoalescedSpansNonAdjacent(t *testing.T) {
	spans := []freespace.Span{
		{Addr: address.NewConcrete(address.SpaceOriginalText, 0x1000), Size: 16},
		{Addr: address.NewConcrete(address.SpaceOriginalText, 0x1010), Size: 16},
		{Addr: address.NewConcrete(address.SpaceOriginalText, 0x2000), Size: 8},
	}
	out, err := freespace.Coalesce(spans)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i+1 < len(out); i++ {
		if out[i].End().Value >= out[i+1].Addr.Value {
			t.Errorf("expected non-adjacent coalesced spans, got %+v then %+v", out[i], out[i+1])
		}
	}
}
