package geotiff

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// TFW holds the six parameters of a TIFF world file.
//
// Line 1: pixel width
// Line 2: rotation about the y axis
// Line 3: rotation about the x axis
// Line 4: pixel height (negative for north-up)
// Line 5: x of the centre of the upper-left pixel
// Line 6: y of the centre of the upper-left pixel
type TFW struct {
	PixelSizeX float64
	RotationY  float64
	RotationX  float64
	PixelSizeY float64
	OriginX    float64
	OriginY    float64
}

// parseTFW reads a world file.
func parseTFW(path string) (*TFW, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading TFW %s: %w", path, err)
	}

	lines := strings.Fields(string(data))
	if len(lines) < 6 {
		return nil, fmt.Errorf("TFW %s: expected 6 values, got %d", path, len(lines))
	}
	vals := make([]float64, 6)
	for i := range vals {
		v, err := strconv.ParseFloat(lines[i], 64)
		if err != nil {
			return nil, fmt.Errorf("TFW %s line %d: %w", path, i+1, err)
		}
		vals[i] = v
	}

	tfw := &TFW{
		PixelSizeX: vals[0],
		RotationY:  vals[1],
		RotationX:  vals[2],
		PixelSizeY: vals[3],
		OriginX:    vals[4],
		OriginY:    vals[5],
	}
	if tfw.RotationX != 0 || tfw.RotationY != 0 {
		return nil, fmt.Errorf("TFW %s: %w (rotation %g, %g)", path, raster.ErrRotated, tfw.RotationX, tfw.RotationY)
	}
	return tfw, nil
}

// findTFW looks for a world file next to tiffPath.
func findTFW(tiffPath string) string {
	ext := filepath.Ext(tiffPath)
	base := tiffPath[:len(tiffPath)-len(ext)]
	for _, c := range []string{".tfw", ".TFW", ".tifw", ".TIFW", ".wld"} {
		p := base + c
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// GeoTransform converts the world file to a corner-based transform. World
// files reference pixel centres.
func (tfw *TFW) GeoTransform() raster.GeoTransform {
	pw, ph := math.Abs(tfw.PixelSizeX), math.Abs(tfw.PixelSizeY)
	return raster.NewGeoTransform(tfw.OriginX-pw/2, tfw.OriginY+ph/2, pw, ph)
}
