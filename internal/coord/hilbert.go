package coord

import (
	"fmt"

	"github.com/google/hilbert"
)

// HilbertIndex returns the position of tile (x, y) on the Hilbert curve that
// fills the 2^z x 2^z grid of zoom z. Tiles close on the curve are close in
// the grid, so processing them in this order keeps neighbouring reads warm.
func HilbertIndex(z, x, y int) (uint64, error) {
	h, err := hilbert.NewHilbert(1 << uint(z))
	if err != nil {
		return 0, fmt.Errorf("hilbert curve for zoom %d: %w", z, err)
	}
	d, err := h.MapInverse(x, y)
	if err != nil {
		return 0, fmt.Errorf("hilbert index of %d/%d/%d: %w", z, x, y, err)
	}
	return uint64(d), nil
}
