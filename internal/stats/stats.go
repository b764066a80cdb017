// Package stats summarizes the non-zero samples of tile records per band.
// The summaries drive the stretch step of rendering.
package stats

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/pspoerri/rasterpyramid/internal/raster"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// Band holds statistics of the non-zero samples of one band. A band without
// non-zero samples has all fields zero.
type Band struct {
	Max  float64
	Min  float64
	Mean float64
	Std  float64
	P02  float64
	P25  float64
	P75  float64
	P98  float64
}

// OfBuffer computes per-band statistics over the non-zero samples of b.
func OfBuffer(b *raster.Buffer) []Band {
	out := make([]Band, b.Bands)
	vals := make([]float64, 0, b.Width*b.Height)
	for i := range out {
		vals = vals[:0]
		for _, v := range b.Band(i) {
			if v != 0 {
				vals = append(vals, v)
			}
		}
		out[i] = ofValues(vals)
	}
	return out
}

// ofValues sorts vals in place.
func ofValues(vals []float64) Band {
	if len(vals) == 0 {
		return Band{}
	}
	slices.Sort(vals)
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return Band{
		Max:  vals[len(vals)-1],
		Min:  vals[0],
		Mean: mean,
		Std:  math.Sqrt(ss / float64(len(vals))),
		P02:  percentile(vals, 2),
		P25:  percentile(vals, 25),
		P75:  percentile(vals, 75),
		P98:  percentile(vals, 98),
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := slices.Clone(vals)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Collector accumulates per-tile statistics. Add is safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	bands int
	tiles []TileStats
}

// NewCollector returns an empty collector.
func NewCollector() *Collector { return &Collector{} }

// Add computes and stores the statistics of rec. All records must have the
// same band count.
func (c *Collector) Add(rec tile.Record) error {
	if rec.Data == nil {
		return fmt.Errorf("record %s has no data", rec.Addr)
	}
	ts := TileStats{Address: rec.Addr.String(), Bands: OfBuffer(rec.Data)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bands == 0 {
		c.bands = rec.Bands()
	} else if rec.Bands() != c.bands {
		return fmt.Errorf("%w: record %s has %d bands, want %d", tile.ErrBandMismatch, rec.Addr, rec.Bands(), c.bands)
	}
	c.tiles = append(c.tiles, ts)
	return nil
}

// Len returns the number of tiles added.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tiles)
}

// Summary aggregates the collected tiles: the mean of the means and of the
// standard deviations, the extremes of max and min, and the median of each
// percentile. Empty bands contribute their zeros.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	tiles := slices.Clone(c.tiles)
	slices.SortFunc(tiles, func(a, b TileStats) int { return strings.Compare(a.Address, b.Address) })
	s := Summary{Nums: len(tiles), Tiles: tiles}
	if len(tiles) == 0 {
		return s
	}

	n := c.bands
	s.Max, s.Min = make([]float64, n), make([]float64, n)
	s.Mean, s.Std = make([]float64, n), make([]float64, n)
	s.P02, s.P25 = make([]float64, n), make([]float64, n)
	s.P75, s.P98 = make([]float64, n), make([]float64, n)
	col := make([]float64, len(tiles))
	for b := 0; b < n; b++ {
		s.Max[b], s.Min[b] = math.Inf(-1), math.Inf(1)
		for _, t := range tiles {
			s.Mean[b] += t.Bands[b].Mean
			s.Std[b] += t.Bands[b].Std
			s.Max[b] = max(s.Max[b], t.Bands[b].Max)
			s.Min[b] = min(s.Min[b], t.Bands[b].Min)
		}
		s.Mean[b] /= float64(len(tiles))
		s.Std[b] /= float64(len(tiles))

		for _, p := range []struct {
			dst *float64
			get func(Band) float64
		}{
			{&s.P02[b], func(x Band) float64 { return x.P02 }},
			{&s.P25[b], func(x Band) float64 { return x.P25 }},
			{&s.P75[b], func(x Band) float64 { return x.P75 }},
			{&s.P98[b], func(x Band) float64 { return x.P98 }},
		} {
			for i, t := range tiles {
				col[i] = p.get(t.Bands[b])
			}
			*p.dst = median(col)
		}
	}
	return s
}
