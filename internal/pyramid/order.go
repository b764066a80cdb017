package pyramid

import (
	"cmp"
	"slices"

	"github.com/pspoerri/rasterpyramid/internal/coord"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// hilbertSort orders same-zoom addresses along the Hilbert curve, so
// siblings are adjacent and the order does not depend on which raster or
// worker produced a record first.
func hilbertSort(addrs []tile.Address) error {
	type keyed struct {
		a tile.Address
		h uint64
	}
	ks := make([]keyed, len(addrs))
	for i, a := range addrs {
		h, err := coord.HilbertIndex(a.Z, a.X, a.Y)
		if err != nil {
			return err
		}
		ks[i] = keyed{a, h}
	}
	slices.SortFunc(ks, func(x, y keyed) int {
		if c := cmp.Compare(x.a.Z, y.a.Z); c != 0 {
			return c
		}
		return cmp.Compare(x.h, y.h)
	})
	for i, k := range ks {
		addrs[i] = k.a
	}
	return nil
}
