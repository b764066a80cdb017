package pyramid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pspoerri/rasterpyramid/internal/raster"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// Sink receives every reduced record of every level exactly once.
// Implementations must be safe for concurrent use.
type Sink interface {
	WriteRecord(rec tile.Record) error
	Close() error
}

// Input is one raster of a batch.
type Input struct {
	Name   string
	Source raster.Source
}

// Stats holds build statistics.
type Stats struct {
	Sources       int
	FailedSources int
	// BaseRecords counts records cut from the sources, before reduction.
	BaseRecords   int64
	EmptyDropped  int64
	GeometryEmpty int64
	Degenerate    int64
	// Merged counts records folded into another record at the same address.
	Merged  int64
	Written int64
	// PerZoom is the number of records written at each zoom.
	PerZoom  map[int]int64
	MinZoom  int
	MaxZoom  int
	Duration time.Duration
}

// Builder turns a batch of rasters into a tile pyramid.
type Builder struct {
	cfg  Config
	sink Sink
}

// NewBuilder validates cfg and returns a builder writing to sink.
func NewBuilder(cfg Config, sink Sink) (*Builder, error) {
	if sink == nil {
		return nil, errors.New("pyramid: nil sink")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, sink: sink}, nil
}

// build is the state of one Build call.
type build struct {
	cfg      Config
	sink     Sink
	memLimit int64

	mu     sync.Mutex
	levels map[int]*tile.Index

	failed                        atomic.Int64
	base, empty, geomEmpty, degen atomic.Int64
	merged, written               atomic.Int64
}

// Build cuts every input at its base zoom, reduces overlapping records,
// and builds overview levels down to cfg.MinZoom. Every level is finished
// before the next lower one starts. The sink is not closed.
func (b *Builder) Build(ctx context.Context, inputs []Input) (Stats, error) {
	start := time.Now()
	if len(inputs) == 0 {
		return Stats{}, fmt.Errorf("no source rasters")
	}

	r := &build{
		cfg:    b.cfg,
		sink:   b.sink,
		levels: make(map[int]*tile.Index),
	}
	switch {
	case b.cfg.MemoryLimitBytes < 0:
		r.memLimit = tile.ComputeMemoryLimit(tile.DefaultMemoryFraction, b.cfg.Verbose)
	default:
		r.memLimit = b.cfg.MemoryLimitBytes
	}

	if err := r.cutBase(ctx, inputs); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Sources: len(inputs),
		PerZoom: make(map[int]int64),
	}
	top, bottom := -1, b.cfg.MinZoom
	for z := range r.levels {
		top = max(top, z)
		bottom = min(bottom, z)
	}
	if top < 0 && b.cfg.Verbose {
		log.Printf("No tiles produced from %d rasters", len(inputs))
	}
	stats.MaxZoom, stats.MinZoom = top, bottom

	for z := top; z >= bottom; z-- {
		r.mu.Lock()
		ix := r.levels[z]
		delete(r.levels, z)
		r.mu.Unlock()
		if ix == nil || ix.Len() == 0 {
			continue
		}
		n, err := r.buildLevel(ctx, z, ix)
		if err != nil {
			return Stats{}, err
		}
		stats.PerZoom[z] = n
	}

	stats.FailedSources = int(r.failed.Load())
	stats.BaseRecords = r.base.Load()
	stats.EmptyDropped = r.empty.Load()
	stats.GeometryEmpty = r.geomEmpty.Load()
	stats.Degenerate = r.degen.Load()
	stats.Merged = r.merged.Load()
	stats.Written = r.written.Load()
	stats.Duration = time.Since(start)
	return stats, nil
}

func (r *build) level(z int) *tile.Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	ix, ok := r.levels[z]
	if !ok {
		ix = tile.NewIndex()
		r.levels[z] = ix
	}
	return ix
}

// cutBase runs a BaseGenerator per input on the worker pool and files the
// records by zoom.
func (r *build) cutBase(ctx context.Context, inputs []Input) error {
	bar := NewBar(r.cfg.Progress, "Rasters", len(inputs), "rasters")
	err := ForEach(ctx, r.cfg.workers(), inputs, bar, func(in Input) error {
		err := r.cutSource(in)
		if err == nil {
			return nil
		}
		if r.cfg.SkipFailedSources {
			log.Printf("Skipping %s: %v", in.Name, err)
			r.failed.Add(1)
			return nil
		}
		return err
	})
	FinishBar(bar)
	return err
}

func (r *build) cutSource(in Input) error {
	opts := tile.BaseOptions{
		MaxZoom:     r.cfg.MaxZoom,
		MinZoom:     r.cfg.MinZoom,
		NoData:      r.cfg.NoData,
		TileSize:    r.cfg.TileSize,
		Convention:  r.cfg.Convention,
		ZoomCeiling: r.cfg.ZoomCeiling,
		Name:        in.Name,
	}
	if opts.NoData == nil {
		if nd, ok := in.Source.(raster.NoDataSource); ok {
			if v, has := nd.NoDataValue(); has {
				opts.NoData = &v
			}
		}
	}

	g, err := tile.NewBaseGenerator(in.Source, opts)
	if err != nil {
		return err
	}
	results, err := g.Generate()
	if err != nil {
		return err
	}

	ix := r.level(g.MaxZoom())
	var kept, dropped int
	for _, res := range results {
		switch res.Skip {
		case tile.GeometryEmpty:
			r.geomEmpty.Add(1)
			continue
		case tile.ResamplingDegenerate:
			r.degen.Add(1)
			continue
		}
		if !r.cfg.KeepEmpty && res.Record.Data.IsZero(0) {
			dropped++
			continue
		}
		ix.Add(res.Record)
		kept++
	}
	r.base.Add(int64(kept))
	r.empty.Add(int64(dropped))

	if r.cfg.Verbose {
		log.Printf("%s: zoom %d (ancestors at %d), %d footprint tiles, %d records, %d empty",
			in.Name, g.MaxZoom(), g.MinZoom(), len(results), kept, dropped)
	}
	return nil
}

// buildLevel reduces and writes the records of zoom z, then merges them
// into their parents at z-1 unless z is the stop zoom. It returns the
// number of records written.
func (r *build) buildLevel(ctx context.Context, z int, ix *tile.Index) (int64, error) {
	addrs := ix.Addresses()
	if err := hilbertSort(addrs); err != nil {
		return 0, err
	}
	overview := z > r.cfg.MinZoom && z > 0

	store := tile.NewStore(tile.StoreConfig{
		InitialCapacity:  len(addrs),
		TempDir:          r.cfg.TempDir,
		MemoryLimitBytes: r.memLimit,
		Verbose:          r.cfg.Verbose,
	})
	defer store.Close()

	r.merged.Add(int64(ix.Records() - len(addrs)))
	bar := NewBar(r.cfg.Progress, fmt.Sprintf("Zoom %2d", z), len(addrs), "tiles")
	err := ForEach(ctx, r.cfg.workers(), addrs, bar, func(a tile.Address) error {
		rec, err := tile.Reduce(ix.Get(a), r.cfg.Merge)
		if err != nil {
			return err
		}
		if err := r.sink.WriteRecord(rec); err != nil {
			return fmt.Errorf("writing tile %s: %w", a, err)
		}
		r.written.Add(1)
		if overview {
			return store.Put(rec)
		}
		return nil
	})
	FinishBar(bar)
	if err != nil {
		return 0, err
	}
	if r.cfg.Verbose {
		log.Printf("Zoom %d: %d tiles written, %s", z, len(addrs), store.Stats())
	}
	if !overview {
		return int64(len(addrs)), nil
	}

	next := r.level(z - 1)
	og := tile.NewOverviewGenerator(r.cfg.TileSize, r.cfg.Convention)
	err = ForEach(ctx, r.cfg.workers(), tile.Parents(addrs), nil, func(p tile.Address) error {
		sibs := make([]tile.Record, 0, 4)
		for _, k := range p.Children() {
			rec, ok, err := store.Get(k)
			if err != nil {
				return err
			}
			if ok {
				sibs = append(sibs, rec)
			}
		}
		if len(sibs) == 0 {
			return nil
		}
		parent, err := og.Merge(sibs)
		if err != nil {
			return fmt.Errorf("overview %s: %w", p, err)
		}
		next.Add(parent)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(addrs)), nil
}
