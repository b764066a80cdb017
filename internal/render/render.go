// Package render turns numeric tile records into images: per-band
// stretching, colour mapping and encoding.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/pspoerri/rasterpyramid/internal/raster"
	"github.com/pspoerri/rasterpyramid/internal/stats"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// Options selects how records are rendered.
type Options struct {
	Stretch  string `default:"gaussian" validate:"oneof=gaussian 02-98 linear-stretch 0-1 ghs dem"`
	Colormap string `default:"black-white" validate:"required"`
	// Channels picks three bands rendered directly as RGB instead of
	// colour mapping band 0.
	Channels []int  `validate:"omitempty,len=3,dive,gte=0"`
	Format   string `default:"png" validate:"oneof=png jpeg jpg webp terrarium"`
	Quality  int    `default:"85" validate:"gte=1,lte=100"`
}

// NewOptions returns Options with defaults applied.
func NewOptions() Options {
	var o Options
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return o
}

// Validate checks option ranges.
func (o Options) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(o); err != nil {
		return err
	}
	if len(o.Channels) == 0 && o.Format != "terrarium" {
		if _, err := LookupColormap(o.Colormap); err != nil {
			return err
		}
	}
	return nil
}

// Renderer renders records of one dataset. It is safe for concurrent use.
type Renderer struct {
	opts   Options
	bands  int
	ranges []Range
	cmap   Colormap
	enc    Encoder
}

// New prepares a renderer for records with the given band count. s may be
// nil when neither the stretch nor the format needs statistics.
func New(opts Options, s *stats.Summary, bands int) (*Renderer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	for _, c := range opts.Channels {
		if c >= bands {
			return nil, fmt.Errorf("channel %d out of range for %d bands", c, bands)
		}
	}
	enc, err := NewEncoder(opts.Format, opts.Quality)
	if err != nil {
		return nil, err
	}
	r := &Renderer{opts: opts, bands: bands, enc: enc}
	if opts.Format == "terrarium" {
		return r, nil
	}
	if len(opts.Channels) == 0 {
		if r.cmap, err = LookupColormap(opts.Colormap); err != nil {
			return nil, err
		}
		if r.cmap.Raw() {
			return r, nil
		}
	}
	if r.ranges, err = StretchRanges(opts.Stretch, s, bands); err != nil {
		return nil, err
	}
	return r, nil
}

// Encoder returns the encoder selected by the options.
func (r *Renderer) Encoder() Encoder { return r.enc }

// Image renders rec. Pixels whose band 0 is zero are transparent.
func (r *Renderer) Image(rec tile.Record) (*image.NRGBA, error) {
	b := rec.Data
	if b == nil {
		return nil, fmt.Errorf("record %s has no data", rec.Addr)
	}
	if b.Bands != r.bands {
		return nil, fmt.Errorf("%w: record %s has %d bands, renderer expects %d", tile.ErrBandMismatch, rec.Addr, b.Bands, r.bands)
	}
	if r.opts.Format == "terrarium" {
		return terrariumImage(b), nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.At(0, y, x) == 0 {
				continue
			}
			img.SetNRGBA(x, y, r.pixel(b, x, y))
		}
	}
	return img, nil
}

func (r *Renderer) value(b *raster.Buffer, band, x, y int) float64 {
	v := b.At(band, y, x)
	if r.opts.Stretch == StretchGHS && v == ghsNoData {
		v = 0
	}
	return r.ranges[band].Normalize(v)
}

func (r *Renderer) pixel(b *raster.Buffer, x, y int) color.NRGBA {
	if len(r.opts.Channels) == 3 {
		var c [3]uint8
		for i, band := range r.opts.Channels {
			c[i] = uint8(r.value(b, band, x, y) * 255)
		}
		return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255}
	}
	if r.cmap.Raw() {
		return r.cmap.Color(b.At(0, y, x))
	}
	return r.cmap.Color(r.value(b, 0, x, y))
}

// Encode renders and encodes rec.
func (r *Renderer) Encode(rec tile.Record) ([]byte, error) {
	img, err := r.Image(rec)
	if err != nil {
		return nil, err
	}
	data, err := r.enc.Encode(img)
	if err != nil {
		return nil, fmt.Errorf("encoding %s as %s: %w", rec.Addr, r.enc.Format(), err)
	}
	return data, nil
}
