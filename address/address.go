// Package address provides typed addresses used by the layout engine:
// concrete addresses tagged by address space, and symbolic addresses
// allocated before a concrete address has been chosen.
package address

import "fmt"

// Space tags a Concrete address with the address space it belongs to, so
// that addresses from unrelated spaces (the original .text, the fresh code
// region, an injected-code segment) are never mixed by accident.
type Space int

const (
	// SpaceOriginalText is the original program's .text section.
	SpaceOriginalText Space = iota
	// SpaceFreshRegion is the newly appended code segment.
	SpaceFreshRegion
	// SpaceInjected is the address space injected-code payloads live in.
	SpaceInjected
)

func (s Space) String() string {
	switch s {
	case SpaceOriginalText:
		return "text"
	case SpaceFreshRegion:
		return "fresh"
	case SpaceInjected:
		return "injected"
	default:
		return "unknown"
	}
}

// Concrete is an address in the original or rewritten binary, tagged with
// the address space it lives in.
type Concrete struct {
	Space Space
	Value uint64
}

// NewConcrete builds a Concrete address in the given space.
func NewConcrete(space Space, value uint64) Concrete {
	return Concrete{Space: space, Value: value}
}

func (c Concrete) String() string {
	return fmt.Sprintf("%s:0x%x", c.Space, c.Value)
}

// Add returns c offset by a signed byte count.
func (c Concrete) Add(offset int64) Concrete {
	return Concrete{Space: c.Space, Value: uint64(int64(c.Value) + offset)}
}

// Sub returns the signed byte offset from other to c. Both addresses must
// live in the same space; mixing spaces is a programming error and panics,
// since it can only arise from a bug in the caller (the layout engine never
// subtracts addresses across address spaces).
func (c Concrete) Sub(other Concrete) int64 {
	if c.Space != other.Space {
		panic(fmt.Sprintf("address: cannot subtract %s from %s: different address spaces", other, c))
	}
	return int64(c.Value) - int64(other.Value)
}

// Less orders two Concrete addresses within the same space by value,
// ascending. It is used to break ties deterministically (spec §4.4/§9).
func (c Concrete) Less(other Concrete) bool {
	if c.Space != other.Space {
		return c.Space < other.Space
	}
	return c.Value < other.Value
}

// Symbolic is an opaque identifier allocated before a concrete address has
// been chosen for a block.
type Symbolic uint64

func (s Symbolic) String() string {
	return fmt.Sprintf("sym#%d", uint64(s))
}

// Allocator hands out monotonically increasing Symbolic addresses. One
// Allocator lives for the duration of a rewrite session (spec §3's
// "Ownership and lifecycle").
type Allocator struct {
	next uint64
}

// NewAllocator creates a fresh symbolic-address source starting at 1 (0 is
// reserved as the zero value / "unassigned" sentinel).
func NewAllocator() *Allocator {
	return &Allocator{next: 1}
}

// New allocates and returns the next Symbolic address.
func (a *Allocator) New() Symbolic {
	s := Symbolic(a.next)
	a.next++
	return s
}
