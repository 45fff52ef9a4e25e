package alloc

import (
	"testing"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/freespace"
	"github.com/xyproto/rewire/isa/x86_64"
)

func fb(size int) block.FallthroughBlock {
	return block.FallthroughBlock{
		Instructions: []block.Instruction{{Size: size}},
		Tags:         []block.FallthroughTag{{Kind: block.NoFallthrough}},
	}
}

func TestOrderSortedDescendingSize(t *testing.T) {
	cap := x86_64.New()
	chunks := []Chunk{
		NewChunk(cap, []block.FallthroughBlock{fb(4)}),
		NewChunk(cap, []block.FallthroughBlock{fb(20)}),
		NewChunk(cap, []block.FallthroughBlock{fb(10)}),
	}
	ordered := Order(chunks, Sorted, [32]byte{})
	if ordered[0].TotalSize != 20 || ordered[1].TotalSize != 10 || ordered[2].TotalSize != 4 {
		t.Errorf("expected descending size order, got %+v", ordered)
	}
}

func TestOrderRandomIsDeterministicForSeed(t *testing.T) {
	cap := x86_64.New()
	chunks := []Chunk{
		NewChunk(cap, []block.FallthroughBlock{fb(1)}),
		NewChunk(cap, []block.FallthroughBlock{fb(2)}),
		NewChunk(cap, []block.FallthroughBlock{fb(3)}),
		NewChunk(cap, []block.FallthroughBlock{fb(4)}),
	}
	seed := [32]byte{1, 2, 3}
	a := Order(chunks, Random, seed)
	b := Order(chunks, Random, seed)
	for i := range a {
		if a[i].TotalSize != b[i].TotalSize {
			t.Fatalf("expected the same seed to produce the same shuffle, got %+v vs %+v", a, b)
		}
	}
}

func TestAllocateCompactReusesFreeSpace(t *testing.T) {
	cap := x86_64.New()
	heap := freespace.NewPriorityHeap([]freespace.Span{
		{Addr: address.NewConcrete(address.SpaceOriginalText, 0x2000), Size: 16},
	})
	chunks := []Chunk{NewChunk(cap, []block.FallthroughBlock{fb(10)})}
	freshBase := address.NewConcrete(address.SpaceFreshRegion, 0x5000)

	res := Allocate(cap, Strategy{Kind: Compact, Order: Sorted}, chunks, heap, freshBase)
	if len(res.Placements) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(res.Placements))
	}
	if res.Placements[0].Addr.Value != 0x2000 {
		t.Errorf("expected the block to reuse the free span, got %+v", res.Placements[0])
	}
	if res.ReusedBytes != 10 {
		t.Errorf("expected 10 reused bytes, got %d", res.ReusedBytes)
	}
	if heap.Len() != 1 {
		t.Fatalf("expected a leftover span back in the heap, got len %d", heap.Len())
	}
	if left, _ := heap.Largest(); left.Size != 6 || left.Addr.Value != 0x200a {
		t.Errorf("expected a 6-byte leftover at 0x200a, got %+v", left)
	}
}

func TestAllocateCompactFallsBackToBumpOnMiss(t *testing.T) {
	cap := x86_64.New()
	heap := freespace.NewPriorityHeap([]freespace.Span{
		{Addr: address.NewConcrete(address.SpaceOriginalText, 0x2000), Size: 2},
	})
	chunks := []Chunk{NewChunk(cap, []block.FallthroughBlock{fb(10)})}
	freshBase := address.NewConcrete(address.SpaceFreshRegion, 0x5000)

	res := Allocate(cap, Strategy{Kind: Compact, Order: Sorted}, chunks, heap, freshBase)
	if res.Placements[0].Addr != freshBase {
		t.Errorf("expected bump allocation at the fresh base, got %+v", res.Placements[0])
	}
	if res.FreshEnd.Value != freshBase.Value+10 {
		t.Errorf("expected the cursor to advance by 10, got %v", res.FreshEnd)
	}
}

func TestAllocateParallelNeverConsultsHeap(t *testing.T) {
	cap := x86_64.New()
	heap := freespace.NewPriorityHeap([]freespace.Span{
		{Addr: address.NewConcrete(address.SpaceOriginalText, 0x2000), Size: 100},
	})
	chunks := []Chunk{NewChunk(cap, []block.FallthroughBlock{fb(10)})}
	freshBase := address.NewConcrete(address.SpaceFreshRegion, 0x5000)

	res := Allocate(cap, Strategy{Kind: Parallel, Order: Sorted}, chunks, heap, freshBase)
	if res.Placements[0].Addr != freshBase {
		t.Errorf("expected the parallel allocator to bump-allocate, got %+v", res.Placements[0])
	}
	if heap.Len() != 1 {
		t.Errorf("expected the heap untouched by the parallel allocator, got len %d", heap.Len())
	}
}

func TestAllocateInjectedBumpAllocates(t *testing.T) {
	base := address.NewConcrete(address.SpaceInjected, 0x9000)
	addrs, end := AllocateInjected(base, []int{4, 8, 2})
	if addrs[0].Value != 0x9000 || addrs[1].Value != 0x9004 || addrs[2].Value != 0x900c {
		t.Errorf("unexpected injected placements: %+v", addrs)
	}
	if end.Value != 0x900e {
		t.Errorf("expected end at 0x900e, got %v", end)
	}
}
