package sink

import (
	"fmt"

	"github.com/pspoerri/rasterpyramid/internal/pmtiles"
	"github.com/pspoerri/rasterpyramid/internal/render"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// PMTiles renders records into a PMTiles v3 archive written on Close.
type PMTiles struct {
	w    *pmtiles.Writer
	r    *render.Renderer
	conv tile.Convention
}

// NewPMTiles starts an archive at path. conv is the convention of the
// records that will be written; the archive is always XYZ.
func NewPMTiles(path string, r *render.Renderer, conv tile.Convention, name string) (*PMTiles, error) {
	tt, err := TileType(r.Encoder().Format())
	if err != nil {
		return nil, err
	}
	w, err := pmtiles.NewWriter(path, pmtiles.WriterOptions{TileType: tt, Name: name})
	if err != nil {
		return nil, err
	}
	return &PMTiles{w: w, r: r, conv: conv}, nil
}

// TileType maps an encoder format to the PMTiles tile type.
func TileType(format string) (uint8, error) {
	switch format {
	case "png", "terrarium":
		return pmtiles.TileTypePNG, nil
	case "jpeg", "jpg":
		return pmtiles.TileTypeJPEG, nil
	case "webp":
		return pmtiles.TileTypeWebP, nil
	}
	return 0, fmt.Errorf("no PMTiles tile type for format %q", format)
}

func (p *PMTiles) WriteRecord(rec tile.Record) error {
	data, err := p.r.Encode(rec)
	if err != nil {
		return err
	}
	return p.w.WriteTile(toXYZ(rec.Addr, p.conv), data)
}

// Len returns the number of tiles written.
func (p *PMTiles) Len() int { return p.w.Len() }

// Close assembles the archive.
func (p *PMTiles) Close() error { return p.w.Finalize() }

// Abort drops the spooled tiles without writing the archive.
func (p *PMTiles) Abort() { p.w.Abort() }
