package tile

import "github.com/pspoerri/rasterpyramid/internal/coord"

// Extent accumulates the zoom range and WGS84 footprint of a set of XYZ
// addresses. The footprint is the union of the tiles at the deepest zoom
// seen. The zero value is empty; it is not safe for concurrent use.
type Extent struct {
	n                              int
	MinZoom, MaxZoom               int
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Add extends e by the XYZ address a.
func (e *Extent) Add(a Address) {
	minLon, minLat, maxLon, maxLat := coord.TileLonLatBounds(a.Z, a.X, a.Y)
	switch {
	case e.n == 0:
		e.MinZoom, e.MaxZoom = a.Z, a.Z
	case a.Z < e.MaxZoom:
		e.MinZoom = min(e.MinZoom, a.Z)
		e.n++
		return
	case a.Z > e.MaxZoom:
		e.MaxZoom = a.Z
	default:
		e.n++
		e.MinLon, e.MinLat = min(e.MinLon, minLon), min(e.MinLat, minLat)
		e.MaxLon, e.MaxLat = max(e.MaxLon, maxLon), max(e.MaxLat, maxLat)
		return
	}
	e.n++
	e.MinLon, e.MinLat, e.MaxLon, e.MaxLat = minLon, minLat, maxLon, maxLat
}

// Empty reports whether no address was added.
func (e *Extent) Empty() bool { return e.n == 0 }

// Center returns the middle of the footprint and the middle zoom.
func (e *Extent) Center() (lon, lat float64, z int) {
	return (e.MinLon + e.MaxLon) / 2, (e.MinLat + e.MaxLat) / 2, (e.MinZoom + e.MaxZoom) / 2
}
