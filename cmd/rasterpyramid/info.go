package main

import (
	"fmt"
	"path/filepath"

	"github.com/muesli/reflow/truncate"
	"github.com/urfave/cli/v2"

	"github.com/pspoerri/rasterpyramid/internal/coord"
	"github.com/pspoerri/rasterpyramid/internal/geotiff"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

const nameWidth = 32

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Describe GeoTIFFs and the tiles they would produce",
		ArgsUsage: "<input.tif|dir> [...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    flagTileSize,
				Usage:   "Tile size in pixels",
				Value:   coord.DefaultTileSize,
				EnvVars: envVars(flagTileSize),
			},
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "Print the full file structure",
				EnvVars: envVars(flagVerbose),
			},
		},
		Action: runInfo,
	}
}

func runInfo(c *cli.Context) error {
	files, err := collectTIFFs(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return cli.Exit("no TIFF files given", 1)
	}
	fmt.Printf("%-*s %11s %5s %-8s %6s %4s %s\n", nameWidth, "FILE", "SIZE", "BANDS", "TYPE", "EPSG", "ZOOM", "BOUNDS (lon/lat)")
	for _, path := range files {
		if err := describe(path, c.Int(flagTileSize), c.Bool(flagVerbose)); err != nil {
			fmt.Printf("%-*s ERROR: %v\n", nameWidth, shortName(path), err)
		}
	}
	return nil
}

func shortName(path string) string {
	return truncate.StringWithTail(filepath.Base(path), nameWidth, "...")
}

func describe(path string, tileSize int, verbose bool) error {
	r, err := geotiff.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	info := r.Info()

	g, err := tile.NewBaseGenerator(r, tile.BaseOptions{TileSize: tileSize, Name: path})
	if err != nil {
		return err
	}
	minLon, minLat, maxLon, maxLat := coord.BoundsToLonLat(g.Bounds())
	fmt.Printf("%-*s %11s %5d %-8s %6d %4d [%.4f, %.4f, %.4f, %.4f]\n",
		nameWidth, shortName(path), fmt.Sprintf("%dx%d", info.Width, info.Height), info.Bands,
		info.SampleType, info.EPSG, g.MaxZoom(), minLon, minLat, maxLon, maxLat)

	if verbose {
		setting("Compression", geotiff.CompressionName(info.Compression))
		if info.Tiled {
			setting("Tiles", fmt.Sprintf("%dx%d", info.ChunkWidth, info.ChunkHeight))
		} else {
			setting("Strips", fmt.Sprintf("%d rows", info.ChunkHeight))
		}
		setting("Planar", info.Planar)
		setting("BigTIFF", info.BigTIFF)
		setting("Overviews", info.Overviews)
		setting("Georef", info.Georef)
		setting("Pixel size", fmt.Sprintf("%g x %g m", info.GeoTransform.PixelWidth(), -info.GeoTransform.PixelHeight()))
		if info.NoData != nil {
			setting("NoData", *info.NoData)
		}
		setting("Base tiles", len(g.Tiles()))
	}
	return nil
}
