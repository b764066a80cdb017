package render

import (
	"fmt"
	"image/color"
	"math"
	"slices"
	"strconv"
)

// Colormap maps one band value to a colour. Gradient colormaps take values
// stretched to [0, 1]; palettes take raw class values.
type Colormap interface {
	Color(v float64) color.NRGBA
	// Raw reports whether the colormap expects unstretched values.
	Raw() bool
}

// Gradient is a linear ramp between two colours sampled into a fixed
// number of bins.
type Gradient struct {
	lut []color.NRGBA
}

// NewGradient builds a gradient from start to end, channels in [0, 1].
func NewGradient(start, end [3]float64, bins int) *Gradient {
	g := &Gradient{lut: make([]color.NRGBA, bins)}
	for i := range g.lut {
		t := float64(i) / float64(bins-1)
		var c [3]uint8
		for k := range c {
			c[k] = uint8((start[k] + (end[k]-start[k])*t) * 255)
		}
		g.lut[i] = color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
	}
	return g
}

func (g *Gradient) Color(v float64) color.NRGBA {
	if math.IsNaN(v) {
		return g.lut[0]
	}
	i := int(v * float64(len(g.lut)))
	return g.lut[max(0, min(i, len(g.lut)-1))]
}

func (g *Gradient) Raw() bool { return false }

// Palette assigns evenly spaced colours to the value range [Min, Max].
type Palette struct {
	Min, Max float64
	Colors   []color.NRGBA
}

// NewPalette parses hex colours such as "05450a".
func NewPalette(lo, hi float64, hex ...string) (*Palette, error) {
	p := &Palette{Min: lo, Max: hi}
	for _, h := range hex {
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil || len(h) != 6 {
			return nil, fmt.Errorf("invalid palette colour %q", h)
		}
		p.Colors = append(p.Colors, color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255})
	}
	return p, nil
}

func (p *Palette) Color(v float64) color.NRGBA {
	n := len(p.Colors)
	i := int((v - p.Min) / (p.Max - p.Min) * float64(n-1))
	return p.Colors[max(0, min(i, n-1))]
}

func (p *Palette) Raw() bool { return true }

var colormaps = map[string]func() Colormap{
	"white-green": func() Colormap { return NewGradient([3]float64{1, 1, 1}, [3]float64{0, 1, 0.5}, 256) },
	"greens":      func() Colormap { return NewGradient([3]float64{1, 1, 1}, [3]float64{0, 1, 0}, 256) },
	"ocean-blue":  func() Colormap { return NewGradient([3]float64{1, 1, 1}, [3]float64{0, 121.0 / 255, 158.0 / 255}, 256) },
	"black-white": func() Colormap { return NewGradient([3]float64{0, 0, 0}, [3]float64{1, 1, 1}, 256) },
	"blue-reds":   func() Colormap { return NewGradient([3]float64{0, 0, 1}, [3]float64{1, 0, 0}, 256) },
	// MODIS MCD12Q1 land cover classes 1..17.
	"mcd12q1": func() Colormap {
		p, _ := NewPalette(1, 17,
			"05450a", "086a10", "54a708", "78d203", "009900", "c6b044", "dcd159",
			"dade48", "fbff13", "b6ff05", "27ff87", "c24f44", "a5a5a5", "ff6d4c",
			"69fff8", "f9ffa4", "1c0dff")
		return p
	},
}

// ColormapNames lists the registered colormaps.
func ColormapNames() []string {
	names := make([]string, 0, len(colormaps))
	for n := range colormaps {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// LookupColormap returns the named colormap.
func LookupColormap(name string) (Colormap, error) {
	f, ok := colormaps[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q (available: %v)", name, ColormapNames())
	}
	return f(), nil
}
