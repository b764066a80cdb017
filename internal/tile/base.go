package tile

import (
	"fmt"
	"math"

	"github.com/pspoerri/rasterpyramid/internal/coord"
	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// SkipReason explains why a tile in the footprint produced no record.
type SkipReason int

const (
	// NotSkipped marks a tile that produced a record.
	NotSkipped SkipReason = iota
	// GeometryEmpty means the tile does not overlap the raster.
	GeometryEmpty
	// ResamplingDegenerate means the clipped source or destination window
	// has no extent.
	ResamplingDegenerate
)

func (r SkipReason) String() string {
	switch r {
	case NotSkipped:
		return "ok"
	case GeometryEmpty:
		return "geometry empty"
	case ResamplingDegenerate:
		return "resampling degenerate"
	default:
		return fmt.Sprintf("SkipReason(%d)", int(r))
	}
}

// Result is the outcome for one tile of a raster's footprint.
type Result struct {
	Addr   Address
	Record Record
	Skip   SkipReason
}

// OK reports whether the result carries a record.
func (r Result) OK() bool { return r.Skip == NotSkipped }

// BaseOptions configures a BaseGenerator. The zero value tiles at the
// source's native zoom with 256 px XYZ tiles and no declared no-data.
type BaseOptions struct {
	// MaxZoom caps the output zoom. Nil derives it from the pixel size.
	MaxZoom *int
	// MinZoom is the zoom of each record's ancestor address.
	MinZoom int
	// NoData, when set, is mapped to zero while cutting tiles.
	NoData *float64
	// TileSize is the tile edge in pixels. Defaults to 256.
	TileSize int
	// Convention selects the row order of emitted addresses.
	Convention Convention
	// ZoomCeiling is a hard upper bound on MaxZoom. Defaults to coord.MaxZoomLevel.
	ZoomCeiling int
	// Name identifies the source in errors.
	Name string
}

// window is a pixel rectangle.
type window struct {
	x, y, w, h int
}

// BaseGenerator cuts the tiles of a single raster at its maximum zoom.
// Every tile reads from the same immutable source, so Generate may run
// concurrently with generators over other sources.
type BaseGenerator struct {
	src    raster.Source
	opts   BaseOptions
	grid   coord.Grid
	gt     raster.GeoTransform
	width  int
	height int
	bounds coord.Bounds

	maxZoom, minZoom           int
	minTX, minTY, maxTX, maxTY int
}

// NewBaseGenerator resolves the zoom range and tile footprint of src.
func NewBaseGenerator(src raster.Source, opts BaseOptions) (*BaseGenerator, error) {
	if opts.TileSize <= 0 {
		opts.TileSize = coord.DefaultTileSize
	}
	if opts.ZoomCeiling <= 0 || opts.ZoomCeiling > coord.MaxZoomLevel {
		opts.ZoomCeiling = coord.MaxZoomLevel
	}
	gt := src.GeoTransform()
	if err := gt.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", opts.Name, err)
	}
	w, h := src.Size()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%s: empty raster %dx%d", opts.Name, w, h)
	}
	if src.Bands() <= 0 {
		return nil, fmt.Errorf("%s: raster has no bands", opts.Name)
	}

	g := &BaseGenerator{
		src:    src,
		opts:   opts,
		grid:   coord.NewGrid(opts.TileSize),
		gt:     gt,
		width:  w,
		height: h,
		bounds: raster.Bounds(gt, w, h),
	}

	g.maxZoom = min(g.grid.ZoomForPixelSize(gt.PixelWidth()), opts.ZoomCeiling)
	if opts.MaxZoom != nil {
		g.maxZoom = min(g.maxZoom, max(0, *opts.MaxZoom))
	}
	g.minZoom = min(max(0, opts.MinZoom), g.maxZoom)
	g.minTX, g.minTY, g.maxTX, g.maxTY = g.grid.TileRange(g.bounds, g.maxZoom)
	return g, nil
}

// MaxZoom returns the zoom tiles are cut at.
func (g *BaseGenerator) MaxZoom() int { return g.maxZoom }

// MinZoom returns the zoom of the ancestor addresses.
func (g *BaseGenerator) MinZoom() int { return g.minZoom }

// Bounds returns the raster extent in meters.
func (g *BaseGenerator) Bounds() coord.Bounds { return g.bounds }

// Tiles returns the addresses of the footprint rectangle in generation
// order, in the configured convention.
func (g *BaseGenerator) Tiles() []Address {
	var out []Address
	for ty := g.maxTY; ty >= g.minTY; ty-- {
		for tx := g.minTX; tx <= g.maxTX; tx++ {
			out = append(out, g.address(tx, ty))
		}
	}
	return out
}

func (g *BaseGenerator) address(tx, ty int) Address {
	a := Address{Z: g.maxZoom, X: tx, Y: ty}
	if g.opts.Convention == XYZ {
		a = a.Flip()
	}
	return a
}

// Generate cuts every tile of the footprint. It returns one Result per
// footprint tile; tiles that miss the raster carry a SkipReason instead of
// a record. A failed source read aborts the raster with a *SourceReadError.
func (g *BaseGenerator) Generate() ([]Result, error) {
	results := make([]Result, 0, max(0, g.maxTX-g.minTX+1)*max(0, g.maxTY-g.minTY+1))
	for ty := g.maxTY; ty >= g.minTY; ty-- {
		for tx := g.minTX; tx <= g.maxTX; tx++ {
			res, err := g.generateTile(tx, ty)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
		}
	}
	return results, nil
}

// Records is Generate without the skipped tiles.
func (g *BaseGenerator) Records() ([]Record, error) {
	results, err := g.Generate()
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(results))
	for _, r := range results {
		if r.OK() {
			recs = append(recs, r.Record)
		}
	}
	return recs, nil
}

func (g *BaseGenerator) generateTile(tx, ty int) (Result, error) {
	addr := g.address(tx, ty)
	res := Result{Addr: addr}

	tb := g.grid.TileBounds(tx, ty, g.maxZoom)
	if _, ok := g.bounds.Intersection(tb); !ok {
		res.Skip = GeometryEmpty
		return res, nil
	}
	src, dst, ok := g.geoQuery(tb)
	if !ok {
		res.Skip = ResamplingDegenerate
		return res, nil
	}

	part, err := g.src.ReadWindow(src.x, src.y, src.w, src.h)
	if err != nil {
		return res, &SourceReadError{Source: g.opts.Name, X: src.x, Y: src.y, W: src.w, H: src.h, Err: err}
	}
	g.clearNoData(part)

	ts := g.opts.TileSize
	data := raster.NewBuffer(part.Bands, ts, ts)
	raster.Paste(data, raster.ResizeNearest(part, dst.w, dst.h), dst.x, dst.y)

	res.Record = Record{
		Addr:     addr,
		Data:     data,
		Ancestor: addr.Ancestor(g.minZoom),
	}
	return res, nil
}

// clearNoData maps the declared no-data value and NaN to the zero sentinel.
func (g *BaseGenerator) clearNoData(b *raster.Buffer) {
	b.ReplaceValue(math.NaN(), 0)
	if g.opts.NoData != nil {
		b.ReplaceValue(*g.opts.NoData, 0)
	}
}

// geoQuery maps tile bounds to a source pixel window clipped to the raster,
// and the matching destination window inside the tile. Clipping shrinks
// the destination in proportion to the part of the source window removed.
// ok is false when either window ends up empty.
func (g *BaseGenerator) geoQuery(b coord.Bounds) (src, dst window, ok bool) {
	gt := g.gt
	// The small bias snaps tile edges that land a rounding error short of
	// a pixel boundary onto that boundary.
	rx := int(math.Floor((b.MinX-gt[0])/gt[1] + 0.001))
	ry := int(math.Floor((b.MaxY-gt[3])/gt[5] + 0.001))
	rw := max(1, int((b.MaxX-b.MinX)/gt[1]+0.5))
	rh := max(1, int((b.MinY-b.MaxY)/gt[5]+0.5))

	ts := g.opts.TileSize
	wx, wy, ww, wh := 0, 0, ts, ts

	if rx < 0 {
		shift := float64(-rx) / float64(rw)
		wx = int(float64(ww) * shift)
		ww -= wx
		rw -= int(float64(rw) * shift)
		rx = 0
	}
	if rw <= 0 || ww <= 0 || rx >= g.width {
		return src, dst, false
	}
	if rx+rw > g.width {
		ww = int(float64(ww) * float64(g.width-rx) / float64(rw))
		rw = g.width - rx
	}

	if ry < 0 {
		shift := float64(-ry) / float64(rh)
		wy = int(float64(wh) * shift)
		wh -= wy
		rh -= int(float64(rh) * shift)
		ry = 0
	}
	if rh <= 0 || wh <= 0 || ry >= g.height {
		return src, dst, false
	}
	if ry+rh > g.height {
		wh = int(float64(wh) * float64(g.height-ry) / float64(rh))
		rh = g.height - ry
	}

	if rw <= 0 || rh <= 0 || ww <= 0 || wh <= 0 {
		return src, dst, false
	}
	return window{rx, ry, rw, rh}, window{wx, wy, ww, wh}, true
}
