package geotiff

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// GeoTIFF GeoKey IDs.
const (
	gkModelType       = 1024
	gkRasterType      = 1025
	gkGeographicType  = 2048
	gkProjectedCSType = 3072

	rasterPixelIsArea  = 1
	rasterPixelIsPoint = 2
)

// webMercatorCodes lists the EPSG codes (official and legacy) that denote
// spherical Web Mercator.
var webMercatorCodes = map[int]bool{
	3857:   true,
	3785:   true,
	900913: true,
	102100: true,
	102113: true,
}

// IsWebMercator reports whether epsg denotes spherical Web Mercator.
func IsWebMercator(epsg int) bool { return webMercatorCodes[epsg] }

// geoKey returns the inline SHORT value of a GeoKey, or 0.
func geoKey(geoKeys []uint16, id uint16) uint16 {
	if len(geoKeys) < 4 {
		return 0
	}
	// Header: [KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys]
	numKeys := int(geoKeys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		// A non-zero location means the value lives in another tag.
		if geoKeys[base] == id && geoKeys[base+1] == 0 {
			return geoKeys[base+3]
		}
	}
	return 0
}

// parseEPSG extracts the EPSG code from the GeoKey directory, preferring the
// projected CRS over the geographic one.
func parseEPSG(geoKeys []uint16) int {
	if v := geoKey(geoKeys, gkProjectedCSType); v > 0 && v != 32767 {
		return int(v)
	}
	if v := geoKey(geoKeys, gkGeographicType); v > 0 && v != 32767 {
		return int(v)
	}
	return 0
}

// geoTransform derives the affine transform from ModelTransformation, or
// from ModelPixelScale + ModelTiepoint. ok is false when neither is present.
func geoTransform(ifd *IFD) (gt raster.GeoTransform, ok bool) {
	if m := ifd.ModelTransform; len(m) >= 16 {
		return raster.GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}, true
	}
	if len(ifd.ModelPixelScale) < 2 || len(ifd.ModelTiepoint) < 6 {
		return gt, false
	}
	sx, sy := ifd.ModelPixelScale[0], ifd.ModelPixelScale[1]
	// The tiepoint maps pixel (I, J) to world (X, Y).
	tp := ifd.ModelTiepoint
	originX := tp[3] - tp[0]*sx
	originY := tp[4] + tp[1]*sy
	if geoKey(ifd.GeoKeys, gkRasterType) == rasterPixelIsPoint {
		originX -= sx / 2
		originY += sy / 2
	}
	return raster.NewGeoTransform(originX, originY, sx, sy), true
}

// parseNoData parses the GDAL_NODATA tag. ok is false when it is absent.
func parseNoData(s string) (v float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("GDAL_NODATA %q: %w", s, err)
	}
	return v, true, nil
}

// inferEPSG guesses the CRS of a world-file georeferenced raster from its
// coordinate ranges: 4326 for lon/lat, 3857 for projected meters inside the
// Web Mercator square, 0 otherwise.
func inferEPSG(gt raster.GeoTransform, width, height int) int {
	b := raster.Bounds(gt, width, height)
	minX, minY, maxX, maxY := b.MinX, b.MinY, b.MaxX, b.MaxY

	if minX >= -180 && maxX <= 360 && minY >= -90 && maxY <= 90 {
		return 4326
	}
	if math.Abs(minX) > 100000 || math.Abs(maxY) > 100000 {
		if math.Abs(minX) <= 20037508.35 && math.Abs(maxY) <= 20048966.11 {
			return 3857
		}
	}
	return 0
}
