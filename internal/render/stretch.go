package render

import (
	"fmt"

	"github.com/pspoerri/rasterpyramid/internal/stats"
)

// Stretch methods.
const (
	StretchGaussian = "gaussian"
	StretchPercent  = "02-98"
	StretchLinear   = "linear-stretch"
	StretchUnit     = "0-1"
	StretchGHS      = "ghs"
	StretchDEM      = "dem"
)

// ghsNoData marks missing cells in GHS built-up grids.
const (
	ghsNoData = -32760
	ghsMax    = 32757
)

// Range is the value interval one band is clipped to before normalisation.
type Range struct {
	Lo, Hi float64
}

// Normalize clips v to the range and maps it to [0, 1]. An empty range
// maps everything to 0.
func (r Range) Normalize(v float64) float64 {
	if r.Hi <= r.Lo {
		return 0
	}
	v = max(r.Lo, min(r.Hi, v))
	return (v - r.Lo) / (r.Hi - r.Lo)
}

// StretchRanges derives the per-band ranges of method. Methods driven by
// statistics need s; the others accept nil.
func StretchRanges(method string, s *stats.Summary, bands int) ([]Range, error) {
	out := make([]Range, bands)
	needStats := method == StretchGaussian || method == StretchPercent || method == StretchLinear || method == StretchDEM
	if needStats {
		if s == nil {
			return nil, fmt.Errorf("stretch %q needs statistics", method)
		}
		if s.Bands() < bands {
			return nil, fmt.Errorf("statistics describe %d bands, data has %d", s.Bands(), bands)
		}
	}
	for b := range out {
		switch method {
		case StretchGaussian:
			out[b] = Range{max(s.Mean[b]-3*s.Std[b], 0), min(s.Mean[b]+3*s.Std[b], 1)}
		case StretchPercent:
			out[b] = Range{s.P02[b], s.P98[b]}
		case StretchLinear:
			out[b] = Range{s.Min[b], s.Max[b]}
		case StretchDEM:
			out[b] = Range{0, s.Max[b]}
		case StretchUnit:
			out[b] = Range{0, 1}
		case StretchGHS:
			out[b] = Range{0, ghsMax}
		default:
			return nil, fmt.Errorf("unknown stretch method %q", method)
		}
	}
	return out, nil
}
