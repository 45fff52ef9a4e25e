// Package group partitions blocks into chunks that must be laid out
// contiguously (spec §4.3): per-block, per-loop (from an externally
// supplied weak topological ordering), or per-function.
package group

import (
	"fmt"
	"sort"

	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
)

// Strategy selects how blocks are partitioned into chunks.
type Strategy int

const (
	// Block: each modified pair is its own singleton chunk.
	Block Strategy = iota
	// Loop: blocks inside a strongly-connected component (per the
	// supplied WTO) are unified into one chunk.
	Loop
	// Function: all blocks of a function are unified into one chunk.
	Function
)

// WTOComponent is one strongly-connected component of the CFG: the
// concrete addresses of the blocks forming a loop. The weak topological
// ordering itself is not otherwise consulted — grouping only needs to know
// which blocks cycle together (spec §4.3).
type WTOComponent []address.Concrete

// WTO is a weak topological ordering of the CFG, supplied externally
// (spec §6, block recovery contract).
type WTO []WTOComponent

// FunctionMap maps a function's entry address to the concrete addresses of
// every block belonging to that function, supplied externally.
type FunctionMap map[address.Concrete][]address.Concrete

// ErrorKind distinguishes grouping's one fatal condition.
type ErrorKind int

const (
	// ImmutableBlockModified: classification logic tried to treat an
	// Immutable pair as modifiable. This should never occur for a
	// correctly built Chunk; it exists as a self-consistency check (spec
	// §7).
	ImmutableBlockModified ErrorKind = iota
)

func (k ErrorKind) String() string {
	switch k {
	case ImmutableBlockModified:
		return "immutable block modified"
	default:
		return "unknown"
	}
}

// Error reports a fatal grouping failure.
type Error struct {
	Kind  ErrorKind
	Block address.Concrete
}

func (e *Error) Error() string {
	return fmt.Sprintf("group: %s: %v", e.Kind, e.Block)
}

// Chunk is a group of pairs the allocator must place at consecutive
// addresses (the Modifiable members), plus any Immutable members that were
// split off to stay at their original address, per spec §4.3's
// classification rule.
type Chunk struct {
	// Modifiable holds the members that must be relocated together, in
	// the order they should be assigned consecutive addresses. Empty when
	// the whole chunk is Unmodified.
	Modifiable []block.Pair
	// Immutable holds members explicitly marked not relocatable; they
	// keep their original address regardless of what the rest of the
	// chunk does.
	Immutable []block.Pair
	// Unmodified is true when no member of the chunk has status Modified
	// or Subsumed: the whole chunk stays exactly where it is.
	Unmodified bool
	// Members holds every pair that went into this chunk, regardless of
	// classification; callers that need to emit an Unmodified chunk's
	// pairs in place read them from here.
	Members []block.Pair
}

// Group partitions pairs into chunks according to strategy.
func Group(strategy Strategy, pairs []block.Pair, wto WTO, funcMap FunctionMap) ([]Chunk, error) {
	switch strategy {
	case Block:
		return groupByBlock(pairs)
	case Loop:
		return groupByComponents(pairs, loopComponents(pairs, wto))
	case Function:
		return groupByComponents(pairs, functionComponents(pairs, funcMap))
	default:
		return groupByBlock(pairs)
	}
}

func groupByBlock(pairs []block.Pair) ([]Chunk, error) {
	chunks := make([]Chunk, 0, len(pairs))
	for _, p := range pairs {
		c, err := classify([]block.Pair{p})
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// loopComponents builds, for each pair, the root address of its
// strongly-connected component via union-find over the supplied WTO.
func loopComponents(pairs []block.Pair, wto WTO) map[address.Concrete]address.Concrete {
	uf := newUnionFind()
	for _, p := range pairs {
		uf.add(p.Original.Addr)
	}
	for _, component := range wto {
		if len(component) == 0 {
			continue
		}
		first := component[0]
		uf.add(first)
		for _, addr := range component[1:] {
			uf.add(addr)
			uf.union(first, addr)
		}
	}
	roots := make(map[address.Concrete]address.Concrete, len(pairs))
	for _, p := range pairs {
		roots[p.Original.Addr] = uf.find(p.Original.Addr)
	}
	return roots
}

// functionComponents builds, for each pair, the root address of its
// function via union-find over the supplied function map.
func functionComponents(pairs []block.Pair, funcMap FunctionMap) map[address.Concrete]address.Concrete {
	uf := newUnionFind()
	for _, p := range pairs {
		uf.add(p.Original.Addr)
	}
	for entry, members := range funcMap {
		uf.add(entry)
		for _, addr := range members {
			uf.add(addr)
			uf.union(entry, addr)
		}
	}
	roots := make(map[address.Concrete]address.Concrete, len(pairs))
	for _, p := range pairs {
		roots[p.Original.Addr] = uf.find(p.Original.Addr)
	}
	return roots
}

func groupByComponents(pairs []block.Pair, roots map[address.Concrete]address.Concrete) ([]Chunk, error) {
	order := make([]address.Concrete, 0)
	members := make(map[address.Concrete][]block.Pair)
	for _, p := range pairs {
		root := roots[p.Original.Addr]
		if _, seen := members[root]; !seen {
			order = append(order, root)
		}
		members[root] = append(members[root], p)
	}

	chunks := make([]Chunk, 0, len(order))
	for _, root := range order {
		group := members[root]
		// Order internally by ascending original address to preserve
		// locality (spec §4.3, explicit for Loop; applied uniformly to
		// Function grouping too for the same reason).
		sort.Slice(group, func(i, j int) bool {
			return group[i].Original.Addr.Less(group[j].Original.Addr)
		})
		c, err := classify(group)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// classify splits a chunk's members into Modifiable/Immutable per spec
// §4.3, then asserts the split is self-consistent.
func classify(members []block.Pair) (Chunk, error) {
	anyModified := false
	for _, m := range members {
		if m.Status == block.Modified || m.Status == block.Subsumed {
			anyModified = true
			break
		}
	}

	if !anyModified {
		return Chunk{Unmodified: true, Members: members}, nil
	}

	var modifiable, immutable []block.Pair
	for _, m := range members {
		if m.Status == block.Immutable {
			immutable = append(immutable, m)
		} else {
			modifiable = append(modifiable, m)
		}
	}

	for _, m := range modifiable {
		if m.Status == block.Immutable {
			return Chunk{}, &Error{Kind: ImmutableBlockModified, Block: m.Original.Addr}
		}
	}

	return Chunk{Modifiable: modifiable, Immutable: immutable, Members: members}, nil
}
