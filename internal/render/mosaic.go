package render

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// Mosaic renders all records of one zoom level into a single preview image
// whose longer side is at most maxSide pixels. Records must share a zoom;
// conv tells which way their rows run.
func (r *Renderer) Mosaic(recs []tile.Record, conv tile.Convention, maxSide int) (*image.NRGBA, error) {
	if len(recs) == 0 || recs[0].Data == nil {
		return nil, fmt.Errorf("mosaic needs records with data")
	}
	// Placement uses XYZ rows so north is up.
	addrs := make([]tile.Address, len(recs))
	for i, rec := range recs {
		if rec.Addr.Z != recs[0].Addr.Z {
			return nil, fmt.Errorf("mosaic mixes zoom %d and %d", recs[0].Addr.Z, rec.Addr.Z)
		}
		addrs[i] = rec.Addr
		if conv == tile.TMS {
			addrs[i] = rec.Addr.Flip()
		}
	}
	minX, minY, maxX, maxY := addrs[0].X, addrs[0].Y, addrs[0].X, addrs[0].Y
	for _, a := range addrs[1:] {
		minX, maxX = min(minX, a.X), max(maxX, a.X)
		minY, maxY = min(minY, a.Y), max(maxY, a.Y)
	}

	size := recs[0].Data.Width
	fullW, fullH := (maxX-minX+1)*size, (maxY-minY+1)*size
	scale := 1.0
	if maxSide > 0 && max(fullW, fullH) > maxSide {
		scale = float64(maxSide) / float64(max(fullW, fullH))
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, max(1, int(float64(fullW)*scale)), max(1, int(float64(fullH)*scale))))

	for i, rec := range recs {
		img, err := r.Image(rec)
		if err != nil {
			return nil, err
		}
		a := addrs[i]
		x0 := int(float64((a.X-minX)*size) * scale)
		y0 := int(float64((a.Y-minY)*size) * scale)
		x1 := int(float64((a.X-minX+1)*size) * scale)
		y1 := int(float64((a.Y-minY+1)*size) * scale)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		draw.BiLinear.Scale(canvas, image.Rect(x0, y0, x1, y1), img, img.Bounds(), draw.Over, nil)
	}
	return canvas, nil
}
