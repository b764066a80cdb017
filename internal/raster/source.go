package raster

import "fmt"

// Source is a georeferenced raster in Web Mercator meters that can be read
// one pixel window at a time.
type Source interface {
	// Size returns the raster dimensions in pixels.
	Size() (width, height int)
	// Bands returns the number of samples per pixel.
	Bands() int
	// GeoTransform returns the pixel-to-meters transform.
	GeoTransform() GeoTransform
	// ReadWindow returns the w x h pixels whose top-left corner is (x, y).
	// The window lies inside the raster.
	ReadWindow(x, y, w, h int) (*Buffer, error)
}

// NoDataSource is implemented by sources that declare a no-data value.
type NoDataSource interface {
	NoDataValue() (float64, bool)
}

// MemorySource serves windows from an in-memory buffer.
type MemorySource struct {
	buf *Buffer
	gt  GeoTransform
}

// NewMemorySource wraps buf, placed on the map by gt.
func NewMemorySource(buf *Buffer, gt GeoTransform) *MemorySource {
	return &MemorySource{buf: buf, gt: gt}
}

func (m *MemorySource) Size() (int, int)           { return m.buf.Width, m.buf.Height }
func (m *MemorySource) Bands() int                 { return m.buf.Bands }
func (m *MemorySource) GeoTransform() GeoTransform { return m.gt }

func (m *MemorySource) ReadWindow(x, y, w, h int) (*Buffer, error) {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > m.buf.Width || y+h > m.buf.Height {
		return nil, fmt.Errorf("window (%d, %d, %d, %d) outside %dx%d raster", x, y, w, h, m.buf.Width, m.buf.Height)
	}
	return Crop(m.buf, x, y, w, h), nil
}

// Crop copies the w x h window at (x, y) out of src. The window must lie
// inside src.
func Crop(src *Buffer, x, y, w, h int) *Buffer {
	out := NewBuffer(src.Bands, w, h)
	for b := 0; b < src.Bands; b++ {
		for row := 0; row < h; row++ {
			from := src.index(b, y+row, x)
			to := out.index(b, row, 0)
			copy(out.Data[to:to+w], src.Data[from:from+w])
		}
	}
	return out
}
