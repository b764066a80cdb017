package tile

import (
	"errors"
	"fmt"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

var (
	// ErrNoSiblings is returned when an overview is requested for no children.
	ErrNoSiblings = errors.New("no sibling tiles")
	// ErrNotSiblings is returned when overview inputs do not share one parent.
	ErrNotSiblings = errors.New("tiles do not share a parent")
	// ErrBandMismatch is returned when records to combine differ in band count.
	ErrBandMismatch = errors.New("band count mismatch")
)

// Record is one tile of numeric data at a pyramid address.
//
// Data always has TileSize x TileSize samples per band; pixels the source
// did not cover are zero. Ancestor is the tile the record rolls up into at
// the generator's minimum zoom.
type Record struct {
	Addr     Address
	Data     *raster.Buffer
	Ancestor Address
}

// AncestorZoom returns the zoom of the record's ancestor address.
func (r Record) AncestorZoom() int { return r.Ancestor.Z }

// Bands returns the band count of the record's data.
func (r Record) Bands() int {
	if r.Data == nil {
		return 0
	}
	return r.Data.Bands
}

func (r Record) String() string {
	return fmt.Sprintf("%s %v (ancestor %s)", r.Addr, r.Data, r.Ancestor)
}

// SourceReadError reports a failed window read from a raster source. It is
// fatal for the raster being tiled; callers decide whether to continue with
// the next source.
type SourceReadError struct {
	Source string
	X, Y   int
	W, H   int
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading window (%d, %d, %d, %d) of %s: %v", e.X, e.Y, e.W, e.H, e.Source, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }
