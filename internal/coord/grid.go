package coord

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"
)

const (
	// EarthRadius is the WGS84 semi-major axis used by spherical Web Mercator.
	EarthRadius = 6378137.0
	// EarthCircumference is the equatorial circumference in meters at zoom 0.
	EarthCircumference = 2 * math.Pi * EarthRadius
	// OriginShift is half the earth's circumference.
	OriginShift = EarthCircumference / 2.0
	// DefaultTileSize is the standard web map tile dimension.
	DefaultTileSize = 256
	// MaxZoomLevel is the deepest zoom any grid computation will return.
	MaxZoomLevel = 30
)

// Bounds is an axis-aligned rectangle in projected meters.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%.3f, %.3f, %.3f, %.3f]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Extent returns b as a go-spatial extent.
func (b Bounds) Extent() *geom.Extent {
	return &geom.Extent{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// Intersection returns the overlap of b and o. ok is false when the
// rectangles are disjoint or only share an edge.
func (b Bounds) Intersection(o Bounds) (Bounds, bool) {
	ext, ok := b.Extent().Intersect(o.Extent())
	if !ok || ext == nil {
		return Bounds{}, false
	}
	out := Bounds{MinX: ext.MinX(), MinY: ext.MinY(), MaxX: ext.MaxX(), MaxY: ext.MaxY()}
	if out.MaxX <= out.MinX || out.MaxY <= out.MinY {
		return Bounds{}, false
	}
	return out, true
}

// Grid converts between Web Mercator meters, global pixel coordinates and
// TMS tile indices for a fixed tile size. Tile rows count from the bottom
// (south) edge; use tile.Address.Flip to obtain XYZ rows.
type Grid struct {
	tileSize          int
	initialResolution float64
}

// NewGrid returns a grid for square tiles of tileSize pixels.
func NewGrid(tileSize int) Grid {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return Grid{
		tileSize:          tileSize,
		initialResolution: EarthCircumference / float64(tileSize),
	}
}

// TileSize returns the tile edge length in pixels.
func (g Grid) TileSize() int { return g.tileSize }

// Resolution returns meters per pixel at the equator for zoom z.
func (g Grid) Resolution(z int) float64 {
	return g.initialResolution / math.Exp2(float64(z))
}

// MetersToPixels converts projected meters to global pixel coordinates at
// zoom z. The pixel origin is the south-west corner of the world.
func (g Grid) MetersToPixels(mx, my float64, z int) (px, py float64) {
	res := g.Resolution(z)
	px = (mx + OriginShift) / res
	py = (my + OriginShift) / res
	return
}

// PixelsToMeters is the inverse of MetersToPixels.
func (g Grid) PixelsToMeters(px, py float64, z int) (mx, my float64) {
	res := g.Resolution(z)
	mx = px*res - OriginShift
	my = py*res - OriginShift
	return
}

// PixelsToTile returns the tile containing the global pixel (px, py).
func (g Grid) PixelsToTile(px, py float64) (tx, ty int) {
	tx = int(math.Floor(px / float64(g.tileSize)))
	ty = int(math.Floor(py / float64(g.tileSize)))
	return
}

// MetersToTile returns the TMS tile containing the point at zoom z. The
// result is not clamped to the grid.
func (g Grid) MetersToTile(mx, my float64, z int) (tx, ty int) {
	px, py := g.MetersToPixels(mx, my, z)
	return g.PixelsToTile(px, py)
}

// TileBounds returns the bounds in meters of TMS tile (tx, ty) at zoom z.
func (g Grid) TileBounds(tx, ty, z int) Bounds {
	ts := float64(g.tileSize)
	minX, minY := g.PixelsToMeters(float64(tx)*ts, float64(ty)*ts, z)
	maxX, maxY := g.PixelsToMeters(float64(tx+1)*ts, float64(ty+1)*ts, z)
	return Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// ZoomForPixelSize returns the deepest zoom whose resolution is not finer
// than pixelSize, clamped to [0, MaxZoomLevel]. Sources are never upsampled
// beyond their native resolution.
func (g Grid) ZoomForPixelSize(pixelSize float64) int {
	for i := 0; i <= MaxZoomLevel; i++ {
		if pixelSize > g.Resolution(i) {
			if i == 0 {
				return 0
			}
			return i - 1
		}
	}
	return MaxZoomLevel
}

// TileRange returns the clamped TMS tile rectangle covering b at zoom z.
func (g Grid) TileRange(b Bounds, z int) (minTX, minTY, maxTX, maxTY int) {
	minTX, minTY = g.MetersToTile(b.MinX, b.MinY, z)
	maxTX, maxTY = g.MetersToTile(b.MaxX, b.MaxY, z)
	last := (1 << uint(z)) - 1
	minTX, minTY = max(0, minTX), max(0, minTY)
	maxTX, maxTY = min(last, maxTX), min(last, maxTY)
	return
}
