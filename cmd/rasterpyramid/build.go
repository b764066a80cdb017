package main

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pspoerri/rasterpyramid/internal/geotiff"
	"github.com/pspoerri/rasterpyramid/internal/pyramid"
	"github.com/pspoerri/rasterpyramid/internal/sink"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Cut GeoTIFFs into a raw tile pyramid",
		ArgsUsage: "<input.tif|dir> [...]",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     flagOut,
				Aliases:  []string{"o"},
				Usage:    "Output directory for raw tiles",
				Required: true,
				EnvVars:  envVars(flagOut),
			},
			&cli.IntFlag{
				Name:    flagMinZoom,
				Usage:   "Zoom the overview recursion stops at",
				EnvVars: envVars(flagMinZoom),
			},
			&cli.IntFlag{
				Name:    flagMaxZoom,
				Usage:   "Cap on the base zoom (-1 = native zoom of each raster)",
				Value:   -1,
				EnvVars: envVars(flagMaxZoom),
			},
			&cli.IntFlag{
				Name:    flagTileSize,
				Usage:   "Tile size in pixels",
				Value:   256,
				EnvVars: envVars(flagTileSize),
			},
			&cli.StringFlag{
				Name:    flagMerge,
				Usage:   "How records on one tile combine: additive, first-non-zero",
				Value:   tile.Additive.String(),
				EnvVars: envVars(flagMerge),
			},
			&cli.StringFlag{
				Name:    flagNoData,
				Usage:   "No-data value overriding the one stored in the rasters",
				EnvVars: envVars(flagNoData),
			},
			&cli.BoolFlag{
				Name:    flagSkipFailed,
				Usage:   "Skip rasters that cannot be read instead of aborting",
				EnvVars: envVars(flagSkipFailed),
			},
			&cli.BoolFlag{
				Name:    flagKeepEmpty,
				Usage:   "Keep base tiles whose first band is all zero",
				EnvVars: envVars(flagKeepEmpty),
			},
			&cli.Int64Flag{
				Name:    flagMemLimit,
				Usage:   "Per-level memory limit in MB before tiles spill to disk (0 = unlimited, -1 = auto)",
				Value:   -1,
				EnvVars: envVars(flagMemLimit),
			},
			&cli.StringFlag{
				Name:    flagTempDir,
				Usage:   "Directory for spill files",
				EnvVars: envVars(flagTempDir),
			},
		}, commonFlags()...),
		Action: runBuild,
	}
}

func runBuild(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("no input files given", 1)
	}
	cfg, err := buildConfig(c)
	if err != nil {
		return err
	}

	files, err := collectTIFFs(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no TIFF files found")
	}
	readers, err := geotiff.OpenAll(files)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	inputs := make([]pyramid.Input, len(readers))
	for i, r := range readers {
		inputs[i] = pyramid.Input{Name: r.Path(), Source: r}
		if cfg.Verbose {
			w, h := r.Size()
			log.Printf("%s: %dx%d, %d bands, EPSG:%d", r.Path(), w, h, r.Bands(), r.EPSG())
		}
	}

	out, err := sink.NewRawDir(c.String(flagOut))
	if err != nil {
		return err
	}

	fmt.Printf("rasterpyramid build %s\n", c.App.Version)
	setting("Input", fmt.Sprintf("%d files", len(files)))
	setting("Output", out.Root())
	maxZoom := "native"
	if cfg.MaxZoom != nil {
		maxZoom = fmt.Sprint(*cfg.MaxZoom)
	}
	setting("Zoom", fmt.Sprintf("%d - %s", cfg.MinZoom, maxZoom))
	setting("Tile size", cfg.TileSize)
	setting("Convention", cfg.Convention)
	setting("Merge", cfg.Merge)
	setting("Concurrency", cfg.Concurrency)
	if cfg.NoData != nil {
		setting("NoData", *cfg.NoData)
	}

	b, err := pyramid.NewBuilder(cfg, out)
	if err != nil {
		return err
	}
	st, err := b.Build(c.Context, inputs)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if cfg.Verbose {
		for z := st.MaxZoom; z >= st.MinZoom; z-- {
			log.Printf("  zoom %2d: %d tiles", z, st.PerZoom[z])
		}
		log.Printf("%d base records, %d merged, %d empty dropped, %d outside, %d degenerate",
			st.BaseRecords, st.Merged, st.EmptyDropped, st.GeometryEmpty, st.Degenerate)
	}
	if st.FailedSources > 0 {
		log.Printf("Skipped %d of %d rasters", st.FailedSources, st.Sources)
	}
	fmt.Printf("Done: %d tiles, %s, %v → %s\n",
		st.Written, humanSize(dirSize(out.Root())), st.Duration.Round(time.Millisecond), out.Root())
	return nil
}

func buildConfig(c *cli.Context) (pyramid.Config, error) {
	cfg := pyramid.NewConfig()
	cfg.MinZoom = c.Int(flagMinZoom)
	if z := c.Int(flagMaxZoom); z >= 0 {
		cfg.MaxZoom = &z
	}
	cfg.TileSize = c.Int(flagTileSize)
	if c.Bool(flagTMS) {
		cfg.Convention = tile.TMS
	}
	merge, err := tile.ParseMergePolicy(c.String(flagMerge))
	if err != nil {
		return cfg, err
	}
	cfg.Merge = merge
	if s := c.String(flagNoData); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid nodata value %q: %w", s, err)
		}
		cfg.NoData = &v
	}
	cfg.Concurrency = c.Int(flagConcurrency)
	cfg.SkipFailedSources = c.Bool(flagSkipFailed)
	cfg.KeepEmpty = c.Bool(flagKeepEmpty)
	if mb := c.Int64(flagMemLimit); mb < 0 {
		cfg.MemoryLimitBytes = -1
	} else {
		cfg.MemoryLimitBytes = mb << 20
	}
	cfg.TempDir = c.String(flagTempDir)
	cfg.Verbose = c.Bool(flagVerbose)
	cfg.Progress = !c.Bool(flagNoProgress)
	return cfg, cfg.Validate()
}
