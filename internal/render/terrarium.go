package render

import (
	"image"
	"image/color"
	"math"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// TerrariumEncoder writes PNG tiles whose RGB channels already carry
// Terrarium-encoded elevations.
type TerrariumEncoder struct{}

func (e *TerrariumEncoder) Encode(img image.Image) ([]byte, error) { return encodePNG(img) }
func (e *TerrariumEncoder) Format() string                         { return "terrarium" }
func (e *TerrariumEncoder) FileExtension() string                  { return ".png" }

// ElevationToTerrarium encodes meters as elevation = R*256 + G + B/256 - 32768.
// Values outside [-32768, 32767.996] are clamped; NaN and Inf are transparent.
func ElevationToTerrarium(elevation float64) color.NRGBA {
	if math.IsNaN(elevation) || math.IsInf(elevation, 0) {
		return color.NRGBA{}
	}
	v := math.Max(0, math.Min(65535.996, elevation+32768))
	r := min(int(v/256), 255)
	rem := v - float64(r)*256
	g := min(int(rem), 255)
	b := min(int((rem-float64(g))*256), 255)
	return color.NRGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
}

// TerrariumToElevation decodes a Terrarium pixel; transparent pixels are NaN.
func TerrariumToElevation(c color.NRGBA) float64 {
	if c.A == 0 {
		return math.NaN()
	}
	return float64(c.R)*256 + float64(c.G) + float64(c.B)/256 - 32768
}

// terrariumImage encodes band 0 of b. Zero samples are no-data and stay
// transparent.
func terrariumImage(b *raster.Buffer) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			v := b.At(0, y, x)
			if v == 0 {
				continue
			}
			img.SetNRGBA(x, y, ElevationToTerrarium(v))
		}
	}
	return img
}
