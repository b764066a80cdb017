package tile

import (
	"errors"
	"math"
	"testing"

	"github.com/pspoerri/rasterpyramid/internal/coord"
	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// sourceOnTile returns a constant raster of w x h pixels at the native
// resolution of zoom z, with its top-left corner on the top-left corner of
// TMS tile (tx, ty). offX/offY shift it right/down by whole pixels.
func sourceOnTile(z, tx, ty, w, h, offX, offY, bands int, v float64) *raster.MemorySource {
	g := coord.NewGrid(256)
	res := g.Resolution(z)
	b := g.TileBounds(tx, ty, z)
	gt := raster.NewGeoTransform(b.MinX+float64(offX)*res, b.MaxY-float64(offY)*res, res, res)
	return raster.NewMemorySource(raster.Fill(bands, w, h, v), gt)
}

func intPtr(v int) *int { return &v }

func TestBaseGenerator_TwoTilesExactCover(t *testing.T) {
	src := sourceOnTile(3, 2, 5, 512, 256, 0, 0, 1, 5)
	g, err := NewBaseGenerator(src, BaseOptions{MinZoom: 2})
	if err != nil {
		t.Fatal(err)
	}
	if g.MaxZoom() != 3 || g.MinZoom() != 2 {
		t.Fatalf("zoom range = [%d, %d], want [2, 3]", g.MinZoom(), g.MaxZoom())
	}

	recs, err := g.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2: %v", len(recs), recs)
	}
	want := map[Address]bool{{3, 2, 2}: true, {3, 3, 2}: true}
	for _, r := range recs {
		if !want[r.Addr] {
			t.Errorf("unexpected record %v", r.Addr)
		}
		if r.Ancestor != (Address{2, 1, 1}) || r.AncestorZoom() != 2 {
			t.Errorf("%v ancestor = %v, want 2/1/1", r.Addr, r.Ancestor)
		}
		if r.Data.Width != 256 || r.Data.Height != 256 || r.Data.Bands != 1 {
			t.Errorf("%v shape = %v", r.Addr, r.Data)
		}
		for i, v := range r.Data.Data {
			if v != 5 {
				t.Fatalf("%v sample %d = %v, want 5", r.Addr, i, v)
			}
		}
	}
}

func TestBaseGenerator_SkipReasonsReported(t *testing.T) {
	src := sourceOnTile(3, 2, 5, 512, 256, 0, 0, 1, 5)
	g, err := NewBaseGenerator(src, BaseOptions{MinZoom: 2})
	if err != nil {
		t.Fatal(err)
	}
	results, err := g.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(g.Tiles()) {
		t.Fatalf("got %d results for %d footprint tiles", len(results), len(g.Tiles()))
	}
	var ok int
	for _, r := range results {
		if r.OK() {
			ok++
			continue
		}
		if r.Skip != GeometryEmpty && r.Skip != ResamplingDegenerate {
			t.Errorf("%v skipped with %v", r.Addr, r.Skip)
		}
	}
	if ok != 2 {
		t.Errorf("got %d records, want 2", ok)
	}
}

func TestBaseGenerator_PartialCoverage(t *testing.T) {
	// 64x64 pixels starting 64 px into the tile in both directions.
	src := sourceOnTile(4, 5, 9, 64, 64, 64, 64, 2, 7)
	g, err := NewBaseGenerator(src, BaseOptions{MinZoom: 4})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := g.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if want := (Address{4, 5, 6}); r.Addr != want {
		t.Errorf("address = %v, want %v", r.Addr, want)
	}
	if r.Bands() != 2 {
		t.Errorf("bands = %d, want 2", r.Bands())
	}
	for b := 0; b < 2; b++ {
		for y := 0; y < 256; y++ {
			for x := 0; x < 256; x++ {
				want := 0.0
				if x >= 64 && x < 128 && y >= 64 && y < 128 {
					want = 7
				}
				if got := r.Data.At(b, y, x); got != want {
					t.Fatalf("band %d (%d, %d) = %v, want %v", b, x, y, got, want)
				}
			}
		}
	}
}

func TestBaseGenerator_Downsamples(t *testing.T) {
	// A 512 px raster at zoom 5 resolution tiled at a requested zoom 4.
	src := sourceOnTile(5, 4, 11, 512, 512, 0, 0, 1, 3)
	g, err := NewBaseGenerator(src, BaseOptions{MaxZoom: intPtr(4), MinZoom: 0})
	if err != nil {
		t.Fatal(err)
	}
	if g.MaxZoom() != 4 {
		t.Fatalf("MaxZoom = %d, want 4", g.MaxZoom())
	}
	recs, err := g.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Ancestor.Z != 0 || recs[0].Ancestor != (Address{}) {
		t.Errorf("ancestor = %v, want 0/0/0", recs[0].Ancestor)
	}
	for i, v := range recs[0].Data.Data {
		if v != 3 {
			t.Fatalf("sample %d = %v, want 3", i, v)
		}
	}
}

func TestBaseGenerator_ZoomClamping(t *testing.T) {
	src := sourceOnTile(6, 0, 0, 16, 16, 0, 0, 1, 1)
	tests := []struct {
		name            string
		opts            BaseOptions
		wantMin, wantMx int
	}{
		{"native", BaseOptions{MinZoom: 3}, 3, 6},
		{"request above native", BaseOptions{MaxZoom: intPtr(12), MinZoom: 3}, 3, 6},
		{"min above max", BaseOptions{MaxZoom: intPtr(4), MinZoom: 9}, 4, 4},
		{"ceiling", BaseOptions{MinZoom: 1, ZoomCeiling: 2}, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewBaseGenerator(src, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if g.MinZoom() != tt.wantMin || g.MaxZoom() != tt.wantMx {
				t.Errorf("zoom range = [%d, %d], want [%d, %d]", g.MinZoom(), g.MaxZoom(), tt.wantMin, tt.wantMx)
			}
		})
	}
}

func TestBaseGenerator_TMS(t *testing.T) {
	src := sourceOnTile(3, 2, 5, 256, 256, 0, 0, 1, 5)
	g, err := NewBaseGenerator(src, BaseOptions{MinZoom: 3, Convention: TMS})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := g.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Addr != (Address{3, 2, 5}) {
		t.Fatalf("records = %v, want one at 3/2/5", recs)
	}
}

func TestBaseGenerator_OutsideWorld(t *testing.T) {
	// East of the antimeridian: the clamped footprint cannot intersect.
	gt := raster.NewGeoTransform(coord.OriginShift+1000, 0, 10, 10)
	src := raster.NewMemorySource(raster.Fill(1, 100, 100, 1), gt)
	g, err := NewBaseGenerator(src, BaseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := g.Records()
	if err != nil {
		t.Fatalf("Records() error = %v, want none", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records, want 0", len(recs))
	}
}

func TestBaseGenerator_EmittedAddressesValid(t *testing.T) {
	g0 := coord.NewGrid(256)
	res := g0.Resolution(7) * 0.8
	gt := raster.NewGeoTransform(-300000, 250000, res, res)
	src := raster.NewMemorySource(raster.Fill(3, 700, 500, 2), gt)
	g, err := NewBaseGenerator(src, BaseOptions{MinZoom: 5})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := g.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 {
		t.Fatal("no records")
	}
	for _, r := range recs {
		if !r.Addr.Valid() {
			t.Errorf("invalid address %v", r.Addr)
		}
		if r.Bands() != 3 {
			t.Errorf("%v has %d bands, want 3", r.Addr, r.Bands())
		}
		tms := r.Addr.Flip()
		if _, ok := raster.Bounds(gt, 700, 500).Intersection(g0.TileBounds(tms.X, tms.Y, tms.Z)); !ok {
			t.Errorf("%v does not intersect the raster", r.Addr)
		}
	}
}

func TestBaseGenerator_NoData(t *testing.T) {
	buf := raster.Fill(1, 256, 256, 4)
	for i := 0; i < 256; i++ {
		buf.Data[i] = -9999
	}
	buf.Data[256+20] = math.NaN()
	g0 := coord.NewGrid(256)
	b := g0.TileBounds(1, 1, 2)
	src := raster.NewMemorySource(buf, raster.NewGeoTransform(b.MinX, b.MaxY, g0.Resolution(2), g0.Resolution(2)))
	nd := -9999.0
	g, err := NewBaseGenerator(src, BaseOptions{MinZoom: 2, NoData: &nd})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := g.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if v := recs[0].Data.At(0, 0, 10); v != 0 {
		t.Errorf("no-data sample = %v, want 0", v)
	}
	if v := recs[0].Data.At(0, 1, 10); v != 4 {
		t.Errorf("valid sample = %v, want 4", v)
	}
	if v := recs[0].Data.At(0, 1, 20); v != 0 {
		t.Errorf("NaN sample = %v, want 0", v)
	}
	if buf.Data[0] != -9999 {
		t.Error("source buffer was modified")
	}
}

type failingSource struct {
	*raster.MemorySource
}

func (failingSource) ReadWindow(x, y, w, h int) (*raster.Buffer, error) {
	return nil, errors.New("disk on fire")
}

func TestBaseGenerator_SourceReadFailure(t *testing.T) {
	src := failingSource{sourceOnTile(3, 2, 5, 256, 256, 0, 0, 1, 5)}
	g, err := NewBaseGenerator(src, BaseOptions{MinZoom: 3, Name: "broken.tif"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.Generate()
	var sre *SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("Generate() error = %v, want *SourceReadError", err)
	}
	if sre.Source != "broken.tif" {
		t.Errorf("Source = %q, want broken.tif", sre.Source)
	}
}

func TestNewBaseGenerator_RejectsRotation(t *testing.T) {
	src := raster.NewMemorySource(raster.Fill(1, 4, 4, 1), raster.GeoTransform{0, 10, 1, 0, 0, -10})
	if _, err := NewBaseGenerator(src, BaseOptions{}); !errors.Is(err, raster.ErrRotated) {
		t.Errorf("error = %v, want ErrRotated", err)
	}
}

func TestNewBaseGenerator_RejectsSouthUp(t *testing.T) {
	// Same footprint as the exact two-tile cover, but rows run northward
	// from the raster's southern edge.
	g := coord.NewGrid(256)
	res := g.Resolution(3)
	b := g.TileBounds(2, 5, 3)
	gt := raster.GeoTransform{b.MinX, res, 0, b.MaxY - 256*res, 0, res}
	src := raster.NewMemorySource(raster.Fill(1, 512, 256, 5), gt)
	if _, err := NewBaseGenerator(src, BaseOptions{MinZoom: 2}); !errors.Is(err, raster.ErrSouthUp) {
		t.Errorf("error = %v, want ErrSouthUp", err)
	}
}
