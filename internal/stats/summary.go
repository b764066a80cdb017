package stats

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/perimeterx/marshmallow"
)

// TileStats are the per-band statistics of one tile.
type TileStats struct {
	Address string `json:"address"`
	Bands   []Band `json:"bands"`
}

// MarshalJSON writes the band using the percentile key names of Summary.
func (b Band) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]float64{
		"max": b.Max, "min": b.Min, "mean": b.Mean, "std": b.Std,
		"02%": b.P02, "25%": b.P25, "75%": b.P75, "98%": b.P98,
	})
}

func (b *Band) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*b = Band{
		Max: m["max"], Min: m["min"], Mean: m["mean"], Std: m["std"],
		P02: m["02%"], P25: m["25%"], P75: m["75%"], P98: m["98%"],
	}
	return nil
}

// Summary is the dataset-wide statistics document. Every slice has one
// entry per band.
type Summary struct {
	DatasetName string      `json:"dataset_name"`
	Contact     string      `json:"contact"`
	Nums        int         `json:"nums"`
	MaxZoom     int         `json:"max_zoom"`
	Max         []float64   `json:"max"`
	Min         []float64   `json:"min"`
	Mean        []float64   `json:"mean"`
	Std         []float64   `json:"std"`
	P02         []float64   `json:"02%"`
	P25         []float64   `json:"25%"`
	P75         []float64   `json:"75%"`
	P98         []float64   `json:"98%"`
	Tiles       []TileStats `json:"statistics,omitempty"`

	// Extra keeps keys written by other tools so they survive Load and Save.
	Extra map[string]any `json:"-"`
}

// Bands returns the number of bands the summary describes.
func (s Summary) Bands() int { return len(s.Mean) }

// Validate checks that every per-band slice has the same length.
func (s Summary) Validate() error {
	n := len(s.Mean)
	for name, v := range map[string][]float64{
		"max": s.Max, "min": s.Min, "std": s.Std,
		"02%": s.P02, "25%": s.P25, "75%": s.P75, "98%": s.P98,
	} {
		if len(v) != n {
			return fmt.Errorf("statistics %q has %d bands, mean has %d", name, len(v), n)
		}
	}
	return nil
}

func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary // no methods, so no recursion
	data, err := json.Marshal(plain(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	type plain Summary
	var p plain
	extra, err := marshmallow.Unmarshal(data, &p, marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}
	*s = Summary(p)
	if len(extra) > 0 {
		s.Extra = extra
	}
	return s.Validate()
}

// Save writes s as indented JSON.
func Save(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding statistics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing statistics: %w", err)
	}
	return nil
}

// Load reads a statistics document written by Save.
func Load(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading statistics: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing statistics %s: %w", path, err)
	}
	return s, nil
}
