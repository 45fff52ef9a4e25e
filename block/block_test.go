package block

import (
	"testing"

	"github.com/xyproto/rewire/address"
)

func TestConcreteSizeAndEnd(t *testing.T) {
	c := Concrete{
		Addr: address.NewConcrete(address.SpaceOriginalText, 0x1000),
		Instructions: []Instruction{
			{Mnemonic: "mov", Size: 3},
			{Mnemonic: "add", Size: 4},
		},
	}
	if c.Size() != 7 {
		t.Errorf("expected size 7, got %d", c.Size())
	}
	if c.End().Value != 0x1007 {
		t.Errorf("expected end 0x1007, got 0x%x", c.End().Value)
	}
}

func TestFallthroughLastFallthrough(t *testing.T) {
	f := FallthroughBlock{
		Instructions: []Instruction{{Size: 2}, {Size: 5}},
		Tags: []FallthroughTag{
			{Kind: NoFallthrough},
			{Kind: Fallthrough, Successor: address.Symbolic(7)},
		},
	}
	last := f.LastFallthrough()
	if last.Kind != Fallthrough || last.Successor != address.Symbolic(7) {
		t.Errorf("expected fallthrough to sym#7, got %+v", last)
	}
}

func TestFallthroughLastFallthroughEmpty(t *testing.T) {
	f := FallthroughBlock{}
	if f.LastFallthrough().Kind != NoFallthrough {
		t.Errorf("expected NoFallthrough for an empty block")
	}
}

func TestAddressAssignedSize(t *testing.T) {
	a := AddressAssigned{
		Instructions: []Instruction{{Size: 10}, {Size: 20}},
		Reserved:     40,
	}
	if a.Size() != 30 {
		t.Errorf("expected size 30, got %d", a.Size())
	}
	if a.Reserved < a.Size() {
		t.Errorf("invariant violated: reserved (%d) < used (%d)", a.Reserved, a.Size())
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		Unmodified: "unmodified",
		Modified:   "modified",
		Immutable:  "immutable",
		Subsumed:   "subsumed",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
