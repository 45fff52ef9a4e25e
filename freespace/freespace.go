// Package freespace accounts for the bytes reclaimed from the original
// .text section once blocks are relocated or subsumed, coalesces adjacent
// reclaimed spans, and exposes them to the allocator through a
// size-ordered priority heap (spec §4.4).
package freespace

import (
	"fmt"
	"sort"

	"github.com/google/btree"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/group"
)

// Span is a contiguous range of reclaimed original-text bytes.
type Span struct {
	Addr address.Concrete
	Size int
}

// End returns the address immediately past the span.
func (s Span) End() address.Concrete {
	return s.Addr.Add(int64(s.Size))
}

// TrampolineStrategy selects how a modified block's original location is
// redirected to its relocated copy.
type TrampolineStrategy int

const (
	// AlwaysTrampoline redirects every modified block individually.
	AlwaysTrampoline TrampolineStrategy = iota
	// WholeFunctionTrampoline redirects only a function's entry block when
	// every block of that function is modified and the function's block
	// set does not overlap any other function; interior blocks donate
	// their entire original span and are marked Subsumed.
	WholeFunctionTrampoline
)

// ErrorKind distinguishes free-space accounting's one fatal condition.
type ErrorKind int

const (
	// OverlappingFreeBlocks: two contributed spans overlap, which can only
	// mean the original block set itself overlapped.
	OverlappingFreeBlocks ErrorKind = iota
)

func (k ErrorKind) String() string {
	switch k {
	case OverlappingFreeBlocks:
		return "overlapping free blocks"
	default:
		return "unknown"
	}
}

// Error reports a fatal free-space accounting failure (spec §7).
type Error struct {
	Kind ErrorKind
	At   address.Concrete
}

func (e *Error) Error() string {
	return fmt.Sprintf("freespace: %s: %v", e.Kind, e.At)
}

// Result is the outcome of accounting: the raw (uncoalesced) contributed
// spans, the input pairs with status upgraded where whole-function donation
// applied, and the set of blocks too small to host a redirection.
type Result struct {
	Contributions []Span
	UpdatedPairs  []block.Pair
	SmallBlocks   map[address.Concrete]bool
}

// Account walks modified pairs and computes, for each, the bytes it
// contributes back to the free-space pool (spec §4.4).
func Account(pairs []block.Pair, jumpSize int, strategy TrampolineStrategy, funcMap group.FunctionMap) Result {
	res := Result{
		UpdatedPairs: make([]block.Pair, len(pairs)),
		SmallBlocks:  make(map[address.Concrete]bool),
	}
	copy(res.UpdatedPairs, pairs)

	if strategy == WholeFunctionTrampoline && funcMap != nil {
		accountWholeFunction(&res, jumpSize, funcMap)
	} else {
		for i, p := range res.UpdatedPairs {
			accountOne(&res, i, p, jumpSize)
		}
	}
	return res
}

func accountOne(res *Result, i int, p block.Pair, jumpSize int) {
	if p.Status != block.Modified && p.Status != block.Subsumed {
		return
	}
	if p.Status == block.Subsumed {
		res.Contributions = append(res.Contributions, Span{Addr: p.Original.Addr, Size: p.Original.Size()})
		return
	}
	size := p.Original.Size()
	if size < jumpSize {
		res.SmallBlocks[p.Original.Addr] = true
		return
	}
	redirectEnd := p.Original.Addr.Add(int64(jumpSize))
	remaining := size - jumpSize
	if remaining > 0 {
		res.Contributions = append(res.Contributions, Span{Addr: redirectEnd, Size: remaining})
	}
}

func accountWholeFunction(res *Result, jumpSize int, funcMap group.FunctionMap) {
	byAddr := make(map[address.Concrete]int, len(res.UpdatedPairs))
	for i, p := range res.UpdatedPairs {
		byAddr[p.Original.Addr] = i
	}

	seen := make(map[address.Concrete]address.Concrete)
	shared := make(map[address.Concrete]bool)
	for entry, members := range funcMap {
		for _, addr := range append([]address.Concrete{entry}, members...) {
			if owner, ok := seen[addr]; ok && owner != entry {
				shared[addr] = true
			}
			seen[addr] = entry
		}
	}
	donated := make(map[address.Concrete]bool)

	for entry, members := range funcMap {
		all := append([]address.Concrete{entry}, members...)

		eligible := true
		for _, addr := range all {
			if shared[addr] {
				eligible = false
			}
		}
		if !eligible {
			continue
		}

		complete := true
		for _, addr := range all {
			idx, ok := byAddr[addr]
			if !ok || res.UpdatedPairs[idx].Status != block.Modified {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		entryIdx, ok := byAddr[entry]
		if !ok {
			continue
		}
		entryPair := res.UpdatedPairs[entryIdx]
		if entryPair.Original.Size() < jumpSize {
			res.SmallBlocks[entry] = true
			continue
		}

		redirectEnd := entry.Add(int64(jumpSize))
		remaining := entryPair.Original.Size() - jumpSize
		if remaining > 0 {
			res.Contributions = append(res.Contributions, Span{Addr: redirectEnd, Size: remaining})
		}
		donated[entry] = true

		for _, addr := range members {
			idx := byAddr[addr]
			interior := res.UpdatedPairs[idx]
			res.Contributions = append(res.Contributions, Span{Addr: interior.Original.Addr, Size: interior.Original.Size()})
			interior.Status = block.Subsumed
			res.UpdatedPairs[idx] = interior
			donated[addr] = true
		}
	}

	for i, p := range res.UpdatedPairs {
		if donated[p.Original.Addr] {
			continue
		}
		accountOne(res, i, p, jumpSize)
	}
}

// Coalesce sorts spans by address and merges adjacent runs, failing if two
// spans overlap (spec §7).
func Coalesce(spans []Span) ([]Span, error) {
	if len(spans) == 0 {
		return nil, nil
	}
	tree := btree.NewG[Span](32, func(a, b Span) bool { return a.Addr.Less(b.Addr) })
	for _, s := range spans {
		if _, replaced := tree.ReplaceOrInsert(s); replaced {
			return nil, &Error{Kind: OverlappingFreeBlocks, At: s.Addr}
		}
	}

	sorted := make([]Span, 0, tree.Len())
	tree.Ascend(func(s Span) bool {
		sorted = append(sorted, s)
		return true
	})

	out := make([]Span, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.Addr.Value < cur.End().Value {
			return nil, &Error{Kind: OverlappingFreeBlocks, At: next.Addr}
		}
		if next.Addr.Value == cur.End().Value {
			cur.Size += next.Size
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out, nil
}

// PriorityHeap orders free spans by descending size, breaking ties by
// ascending address, so the allocator can always ask for the largest
// available span (spec §4.5's best-fit search starts from here).
type PriorityHeap struct {
	tree *btree.BTreeG[Span]
}

func less(a, b Span) bool {
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	return a.Addr.Less(b.Addr)
}

// NewPriorityHeap builds a heap from coalesced spans.
func NewPriorityHeap(spans []Span) *PriorityHeap {
	tree := btree.NewG[Span](32, less)
	for _, s := range spans {
		tree.ReplaceOrInsert(s)
	}
	return &PriorityHeap{tree: tree}
}

// Len reports how many spans remain in the heap.
func (h *PriorityHeap) Len() int {
	return h.tree.Len()
}

// Insert adds (or replaces) a span.
func (h *PriorityHeap) Insert(s Span) {
	h.tree.ReplaceOrInsert(s)
}

// Remove deletes a specific span from the heap, for example after a
// best-fit match has been narrowed by the allocator.
func (h *PriorityHeap) Remove(s Span) {
	h.tree.Delete(s)
}

// Largest returns, without removing it, the span with the greatest size
// (ties broken by ascending address).
func (h *PriorityHeap) Largest() (Span, bool) {
	return h.tree.Min()
}

// ExtractMax removes and returns the single largest span if it can hold
// need bytes (spec §4.5 steps 1-3, §9: "must support insert, extract-max" —
// a pure max-heap, not a best-fit search over every entry). If the largest
// span is too small, nothing satisfies need either, so the heap is left
// untouched and the allocator must bump-allocate instead.
func (h *PriorityHeap) ExtractMax(need int) (Span, bool) {
	largest, ok := h.Largest()
	if !ok || largest.Size < need {
		return Span{}, false
	}
	h.tree.Delete(largest)
	return largest, true
}

// Drain removes every remaining span from the heap in ascending-address
// order, for conversion to padding blocks (spec §4.6).
func (h *PriorityHeap) Drain() []Span {
	out := make([]Span, 0, h.tree.Len())
	h.tree.Ascend(func(s Span) bool {
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Addr.Less(out[j].Addr) })
	for _, s := range out {
		h.tree.Delete(s)
	}
	return out
}
