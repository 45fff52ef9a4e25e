package group

import "github.com/xyproto/rewire/address"

// unionFind is the classical union-find (disjoint-set) structure over
// concrete addresses, keyed directly by address.Concrete as spec §9
// prescribes ("Union-find for grouping stays the classical data
// structure: map block-address -> cell").
type unionFind struct {
	parent map[address.Concrete]address.Concrete
	rank   map[address.Concrete]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[address.Concrete]address.Concrete),
		rank:   make(map[address.Concrete]int),
	}
}

// add registers addr as its own singleton set if it is not already known.
func (u *unionFind) add(addr address.Concrete) {
	if _, ok := u.parent[addr]; !ok {
		u.parent[addr] = addr
		u.rank[addr] = 0
	}
}

func (u *unionFind) find(addr address.Concrete) address.Concrete {
	u.add(addr)
	root := addr
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// Path compression.
	for u.parent[addr] != root {
		next := u.parent[addr]
		u.parent[addr] = root
		addr = next
	}
	return root
}

func (u *unionFind) union(a, b address.Concrete) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
