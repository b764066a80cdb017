package tile

import (
	"fmt"

	"github.com/pspoerri/rasterpyramid/internal/coord"
	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// OverviewGenerator builds a parent tile from up to four children.
// It holds no state between calls.
type OverviewGenerator struct {
	tileSize   int
	convention Convention
}

// NewOverviewGenerator returns a generator for tiles of tileSize pixels
// addressed in convention c.
func NewOverviewGenerator(tileSize int, c Convention) *OverviewGenerator {
	if tileSize <= 0 {
		tileSize = coord.DefaultTileSize
	}
	return &OverviewGenerator{tileSize: tileSize, convention: c}
}

// Merge combines sibling records into their parent at half resolution.
//
// The children are pasted into a zeroed buffer of twice the tile size at
// their quadrant:
//
//	(2x,   north) | (2x+1, north)
//	--------------+--------------
//	(2x,   south) | (2x+1, south)
//
// and the buffer is reduced back to one tile by nearest-neighbour
// sampling. Absent children leave their quadrant zero. The parent's
// ancestor is its own parent.
func (o *OverviewGenerator) Merge(siblings []Record) (Record, error) {
	if len(siblings) == 0 {
		return Record{}, ErrNoSiblings
	}
	first := siblings[0].Addr
	if first.Z == 0 {
		return Record{}, fmt.Errorf("%w: %s has no parent", ErrNotSiblings, first)
	}
	parent := first.Parent()
	bands := siblings[0].Bands()
	ts := o.tileSize

	var seen [4]bool
	for _, s := range siblings {
		if s.Data == nil {
			return Record{}, fmt.Errorf("%s: record has no data", s.Addr)
		}
		if s.Addr.Z != first.Z || s.Addr.Parent() != parent {
			return Record{}, fmt.Errorf("%w: %s and %s", ErrNotSiblings, first, s.Addr)
		}
		if s.Bands() != bands {
			return Record{}, fmt.Errorf("%w: %s has %d bands, %s has %d", ErrBandMismatch, first, bands, s.Addr, s.Bands())
		}
		if s.Data.Width != ts || s.Data.Height != ts {
			return Record{}, fmt.Errorf("%w: %s is %dx%d, want %dx%d",
				raster.ErrShapeMismatch, s.Addr, s.Data.Width, s.Data.Height, ts, ts)
		}
		col, row := o.quadrant(s.Addr, parent)
		if seen[row*2+col] {
			return Record{}, fmt.Errorf("%w: %s given twice", ErrNotSiblings, s.Addr)
		}
		seen[row*2+col] = true
	}

	merged := &raster.Buffer{Bands: bands, Width: 2 * ts, Height: 2 * ts, Data: GetFloats(bands * 4 * ts * ts)}
	defer PutFloats(merged.Data)
	for _, s := range siblings {
		col, row := o.quadrant(s.Addr, parent)
		raster.Paste(merged, s.Data, col*ts, row*ts)
	}

	return Record{
		Addr:     parent,
		Data:     raster.ResizeNearest(merged, ts, ts),
		Ancestor: parent.Parent(),
	}, nil
}

// quadrant returns the child's column and row within the parent's doubled
// buffer, whose row 0 is the northern half.
func (o *OverviewGenerator) quadrant(child, parent Address) (col, row int) {
	col = child.X - 2*parent.X
	row = child.Y - 2*parent.Y
	if o.convention == TMS {
		row = 1 - row
	}
	return col, row
}
