package tile

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Index is the ledger of records produced for one pyramid level, keyed by
// address in first-seen order. Several records may share an address when
// source rasters overlap; the builder reduces them with the merge policy.
type Index struct {
	mu sync.Mutex
	m  *orderedmap.OrderedMap[Address, []Record]
	n  int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{m: orderedmap.New[Address, []Record]()}
}

// Add files records under their addresses. It is safe for concurrent use.
func (ix *Index) Add(recs ...Record) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, r := range recs {
		list, _ := ix.m.Get(r.Addr)
		ix.m.Set(r.Addr, append(list, r))
		ix.n++
	}
}

// Len returns the number of distinct addresses.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.m.Len()
}

// Records returns the total number of records, duplicates included.
func (ix *Index) Records() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.n
}

// Get returns the records filed under a.
func (ix *Index) Get(a Address) []Record {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	list, _ := ix.m.Get(a)
	return list
}

// Addresses returns the distinct addresses in first-seen order.
func (ix *Index) Addresses() []Address {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]Address, 0, ix.m.Len())
	for p := ix.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Parents returns the distinct parent addresses of addrs in the order in
// which they are first seen.
func Parents(addrs []Address) []Address {
	seen := make(map[Address]struct{}, len(addrs)/4+1)
	out := make([]Address, 0, len(addrs)/4+1)
	for _, a := range addrs {
		p := a.Parent()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
