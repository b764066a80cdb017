package raster

import (
	"errors"
	"fmt"
)

var (
	// ErrRotated is returned for affine transforms with non-zero rotation terms.
	ErrRotated = errors.New("rotated geotransform not supported")
	// ErrSouthUp is returned for transforms whose rows run south to north.
	ErrSouthUp = errors.New("south-up geotransform not supported")
)

// GeoTransform is an affine pixel-to-map transform in GDAL order:
//
//	Xmap = gt[0] + col*gt[1] + row*gt[2]
//	Ymap = gt[3] + col*gt[4] + row*gt[5]
//
// gt[5] is negative for north-up rasters.
type GeoTransform [6]float64

// NewGeoTransform returns a north-up transform for a raster whose top-left
// corner is (originX, originY) with square-or-not pixels of pixelW x pixelH.
func NewGeoTransform(originX, originY, pixelW, pixelH float64) GeoTransform {
	return GeoTransform{originX, pixelW, 0, originY, 0, -pixelH}
}

// OriginX returns the map X of the raster's left edge.
func (gt GeoTransform) OriginX() float64 { return gt[0] }

// OriginY returns the map Y of the raster's top edge.
func (gt GeoTransform) OriginY() float64 { return gt[3] }

// PixelWidth returns the pixel size along X.
func (gt GeoTransform) PixelWidth() float64 { return gt[1] }

// PixelHeight returns the signed pixel size along Y.
func (gt GeoTransform) PixelHeight() float64 { return gt[5] }

// Apply maps pixel coordinates to map coordinates.
func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	x = gt[0] + col*gt[1] + row*gt[2]
	y = gt[3] + col*gt[4] + row*gt[5]
	return
}

// Validate rejects transforms the tiler cannot use.
func (gt GeoTransform) Validate() error {
	if gt[2] != 0 || gt[4] != 0 {
		return fmt.Errorf("%w: %v", ErrRotated, gt)
	}
	if gt[1] <= 0 {
		return fmt.Errorf("geotransform pixel width must be positive, got %v", gt[1])
	}
	if gt[5] == 0 {
		return fmt.Errorf("geotransform pixel height must not be zero")
	}
	if gt[5] > 0 {
		return fmt.Errorf("%w: pixel height %v, flip the raster to north-up first", ErrSouthUp, gt[5])
	}
	return nil
}
