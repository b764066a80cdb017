// Package pyramid drives the tile generators over a batch of rasters and
// builds every overview level down to the stop zoom.
package pyramid

import (
	"fmt"
	"runtime"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// Config holds pyramid build configuration. Build a value with NewConfig
// so tag defaults are applied, then adjust fields and call Validate.
type Config struct {
	// MinZoom is the stop zoom of the overview recursion and the zoom of
	// each base record's ancestor.
	MinZoom int `default:"0" validate:"gte=0,lte=30"`
	// MaxZoom caps the base zoom. Nil tiles each raster at its native zoom.
	MaxZoom *int `validate:"omitempty,gte=0,lte=30"`
	// ZoomCeiling is a hard upper bound on any base zoom.
	ZoomCeiling int `default:"30" validate:"gte=1,lte=30"`
	TileSize    int `default:"256" validate:"gte=16,lte=4096"`

	Convention tile.Convention  `validate:"gte=0,lte=1"`
	Merge      tile.MergePolicy `validate:"gte=0,lte=1"`

	// NoData overrides the no-data value reported by the sources.
	NoData *float64

	// Concurrency is the worker count. Zero means runtime.NumCPU().
	Concurrency int `validate:"gte=0"`
	// SkipFailedSources logs and skips rasters that cannot be read instead
	// of aborting the build.
	SkipFailedSources bool
	// KeepEmpty keeps base records whose first band is all zero.
	KeepEmpty bool

	// MemoryLimitBytes bounds the resident size of one level before records
	// spill to TempDir. Zero keeps everything in memory; negative derives
	// the limit from physical RAM.
	MemoryLimitBytes int64
	TempDir          string

	Verbose  bool
	Progress bool
}

// NewConfig returns a Config with defaults applied.
func NewConfig() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("pyramid: applying config defaults: %v", err))
	}
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.MaxZoom != nil && *c.MaxZoom < c.MinZoom {
		return fmt.Errorf("invalid config: max zoom %d below min zoom %d", *c.MaxZoom, c.MinZoom)
	}
	if c.MaxZoom != nil && *c.MaxZoom > c.ZoomCeiling {
		return fmt.Errorf("invalid config: max zoom %d above zoom ceiling %d", *c.MaxZoom, c.ZoomCeiling)
	}
	return nil
}

func (c *Config) workers() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return runtime.NumCPU()
}
