// Package alloc assigns concrete addresses to symbolic-layout chunks: an
// extract-max pass against reclaimed free space, falling back to bump
// allocation in the fresh code region (spec §4.5).
package alloc

import (
	"math/rand/v2"
	"sort"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/freespace"
	"github.com/xyproto/rewire/isa"
)

// OrderKind selects how chunks are ordered before allocation.
type OrderKind int

const (
	// Sorted orders chunks by descending total size, largest first, so
	// the best-fit search sees the hardest-to-place chunks earliest.
	Sorted OrderKind = iota
	// Random shuffles chunks with a seeded PRNG, for allocation-order
	// sensitivity testing.
	Random
)

// Kind selects the allocation algorithm.
type Kind int

const (
	// Compact consults the free-space heap first, falling back to bump
	// allocation only when no span fits.
	Compact Kind = iota
	// Parallel never consults the heap: every chunk goes straight to the
	// fresh region. The heap's contents are left for padding.
	Parallel
)

// Strategy configures one allocation run.
type Strategy struct {
	Kind  Kind
	Order OrderKind
	Seed  [32]byte
}

// Chunk is a group of fallthrough blocks that must be placed at
// consecutive addresses.
type Chunk struct {
	Blocks    []block.FallthroughBlock
	TotalSize int
}

// NewChunk computes a chunk's total encoded size under cap.
func NewChunk(cap isa.Capability, blocks []block.FallthroughBlock) Chunk {
	total := 0
	for _, b := range blocks {
		total += blockSize(cap, b)
	}
	return Chunk{Blocks: blocks, TotalSize: total}
}

func blockSize(cap isa.Capability, b block.FallthroughBlock) int {
	size := 0
	for _, i := range b.Instructions {
		size += cap.InstructionSize(i)
	}
	return size
}

// Order sorts or shuffles chunks per strategy.
func Order(chunks []Chunk, order OrderKind, seed [32]byte) []Chunk {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)

	switch order {
	case Sorted:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].TotalSize != out[j].TotalSize {
				return out[i].TotalSize > out[j].TotalSize
			}
			return firstAddr(out[i]).Less(firstAddr(out[j]))
		})
	case Random:
		r := rand.New(rand.NewChaCha8(seed))
		// Fisher-Yates.
		for i := len(out) - 1; i > 0; i-- {
			j := r.IntN(i + 1)
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func firstAddr(c Chunk) address.Concrete {
	if len(c.Blocks) == 0 {
		return address.Concrete{}
	}
	return c.Blocks[0].OriginalAddr
}

// alignUp rounds addr up to the next multiple of alignment bytes.
func alignUp(addr address.Concrete, alignment int64) address.Concrete {
	if alignment <= 0 {
		return addr
	}
	rem := int64(addr.Value) % alignment
	if rem == 0 {
		return addr
	}
	return addr.Add(alignment - rem)
}

// Placement records where one block ended up.
type Placement struct {
	Block block.FallthroughBlock
	Addr  address.Concrete
	Size  int
}

// Result is the outcome of one allocation run.
type Result struct {
	Placements []Placement
	FreshEnd   address.Concrete
	// ReusedBytes is how many bytes were satisfied from reclaimed free
	// space rather than the fresh region.
	ReusedBytes int
}

// Allocate assigns addresses to every block in chunks. Compact orders the
// chunks per strategy.Order and consults heap; Parallel keeps the order
// given. Chunks are bump-allocated in the fresh region (starting at
// freshBase, rounded up to the platform's native page size) under Parallel
// or on a heap miss.
func Allocate(cap isa.Capability, strategy Strategy, chunks []Chunk, heap *freespace.PriorityHeap, freshBase address.Concrete) Result {
	ordered := chunks
	if strategy.Kind != Parallel {
		ordered = Order(chunks, strategy.Order, strategy.Seed)
	}

	cursor := alignUp(freshBase, address.DefaultAlignment())
	res := Result{}

	for _, c := range ordered {
		base, fromHeap := address.Concrete{}, false
		if strategy.Kind == Compact && heap != nil {
			if span, ok := heap.ExtractMax(c.TotalSize); ok {
				base = span.Addr
				fromHeap = true
				if leftover := span.Size - c.TotalSize; leftover > 0 {
					heap.Insert(freespace.Span{Addr: span.Addr.Add(int64(c.TotalSize)), Size: leftover})
				}
			}
		}
		if !fromHeap {
			base = cursor
			cursor = cursor.Add(int64(c.TotalSize))
		} else {
			res.ReusedBytes += c.TotalSize
		}

		running := base
		for _, b := range c.Blocks {
			size := blockSize(cap, b)
			res.Placements = append(res.Placements, Placement{Block: b, Addr: running, Size: size})
			running = running.Add(int64(size))
		}
	}

	res.FreshEnd = cursor
	return res
}

// AllocateInjected bump-allocates injected payloads, which never consult
// the free-space heap (spec §4.5: "injected payloads always land in fresh
// memory, never reused space, since their presence must not depend on
// whatever happened to be reclaimed"). The starting cursor is rounded up to
// the platform's native page size, same as Allocate's fresh region.
func AllocateInjected(cursor address.Concrete, sizes []int) ([]address.Concrete, address.Concrete) {
	cursor = alignUp(cursor, address.DefaultAlignment())
	out := make([]address.Concrete, len(sizes))
	for i, s := range sizes {
		out[i] = cursor
		cursor = cursor.Add(int64(s))
	}
	return out, cursor
}
