// Package raster holds band-major numeric buffers, their affine
// georeferencing and the Source abstraction tiles are cut from.
package raster

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/pspoerri/rasterpyramid/internal/coord"
)

// ErrShapeMismatch is returned when two buffers that must share a shape do not.
var ErrShapeMismatch = errors.New("buffer shape mismatch")

// Buffer is a band-major numeric array of Bands x Height x Width samples.
// Zero is the no-data sentinel.
type Buffer struct {
	Bands  int
	Width  int
	Height int
	Data   []float64
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(bands, width, height int) *Buffer {
	return &Buffer{
		Bands:  bands,
		Width:  width,
		Height: height,
		Data:   make([]float64, bands*width*height),
	}
}

// FromSamples copies integer or float samples laid out band-major into a
// new Buffer.
func FromSamples[T constraints.Integer | constraints.Float](bands, width, height int, samples []T) (*Buffer, error) {
	if len(samples) != bands*width*height {
		return nil, fmt.Errorf("%w: %d samples for %dx%dx%d", ErrShapeMismatch, len(samples), bands, height, width)
	}
	b := NewBuffer(bands, width, height)
	for i, v := range samples {
		b.Data[i] = float64(v)
	}
	return b, nil
}

// Fill returns a buffer with every sample set to v.
func Fill(bands, width, height int, v float64) *Buffer {
	b := NewBuffer(bands, width, height)
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}

func (b *Buffer) index(band, y, x int) int {
	return (band*b.Height+y)*b.Width + x
}

// At returns the sample at (band, y, x).
func (b *Buffer) At(band, y, x int) float64 {
	return b.Data[b.index(band, y, x)]
}

// Set stores v at (band, y, x).
func (b *Buffer) Set(band, y, x int, v float64) {
	b.Data[b.index(band, y, x)] = v
}

// Band returns the plane of one band. The slice aliases b.Data.
func (b *Buffer) Band(band int) []float64 {
	n := b.Width * b.Height
	return b.Data[band*n : (band+1)*n]
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{Bands: b.Bands, Width: b.Width, Height: b.Height, Data: make([]float64, len(b.Data))}
	copy(c.Data, b.Data)
	return c
}

// SameShape reports whether b and o have identical dimensions.
func (b *Buffer) SameShape(o *Buffer) bool {
	return b.Bands == o.Bands && b.Width == o.Width && b.Height == o.Height
}

// IsZero reports whether every sample of band is zero.
func (b *Buffer) IsZero(band int) bool {
	for _, v := range b.Band(band) {
		if v != 0 {
			return false
		}
	}
	return true
}

// ReplaceValue sets every sample equal to from to the value to. A NaN from
// matches NaN samples.
func (b *Buffer) ReplaceValue(from, to float64) {
	nan := math.IsNaN(from)
	for i, v := range b.Data {
		if v == from || (nan && math.IsNaN(v)) {
			b.Data[i] = to
		}
	}
}

// String describes the shape of b.
func (b *Buffer) String() string {
	return fmt.Sprintf("(%d, %d, %d)", b.Bands, b.Height, b.Width)
}

// Bounds returns the extent in meters of a width x height raster placed by gt.
func Bounds(gt GeoTransform, width, height int) coord.Bounds {
	x0, y0 := gt.Apply(0, 0)
	x1, y1 := gt.Apply(float64(width), float64(height))
	return coord.Bounds{
		MinX: min(x0, x1),
		MinY: min(y0, y1),
		MaxX: max(x0, x1),
		MaxY: max(y0, y1),
	}
}
