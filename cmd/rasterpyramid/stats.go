package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pspoerri/rasterpyramid/internal/pyramid"
	"github.com/pspoerri/rasterpyramid/internal/sink"
	"github.com/pspoerri/rasterpyramid/internal/stats"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

const statisticsFile = "statistics.json"

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Compute dataset statistics over the deepest level of a raw pyramid",
		ArgsUsage: "<raw-dir>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    flagOut,
				Aliases: []string{"o"},
				Usage:   "Statistics file (default <raw-dir>/" + statisticsFile + ")",
				EnvVars: envVars(flagOut),
			},
			&cli.StringFlag{
				Name:    flagName,
				Usage:   "Dataset name stored in the statistics",
				EnvVars: envVars(flagName),
			},
			&cli.StringFlag{
				Name:    flagContact,
				Usage:   "Contact stored in the statistics",
				EnvVars: envVars(flagContact),
			},
		}, commonFlags()...),
		Action: runStats,
	}
}

func runStats(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one raw tile directory", 1)
	}
	start := time.Now()
	raw, err := sink.OpenRawDir(c.Args().First())
	if err != nil {
		return err
	}
	top, err := raw.MaxZoom()
	if err != nil {
		return err
	}
	out := c.String(flagOut)
	if out == "" {
		out = filepath.Join(raw.Root(), statisticsFile)
	}

	col := stats.NewCollector()
	err = forEachRecord(c.Context, raw, top, c.Int(flagConcurrency), !c.Bool(flagNoProgress), func(rec tile.Record) error {
		return col.Add(rec)
	})
	if err != nil {
		return err
	}

	s := col.Summary()
	s.DatasetName = c.String(flagName)
	s.Contact = c.String(flagContact)
	s.MaxZoom = top
	if err := stats.Save(out, s); err != nil {
		return err
	}
	fmt.Printf("Done: %d tiles at zoom %d, %d bands, %v → %s\n",
		s.Nums, top, s.Bands(), time.Since(start).Round(time.Millisecond), out)
	return nil
}

// forEachRecord reads every record of zoom z in parallel and hands it to fn.
func forEachRecord(ctx context.Context, raw *sink.RawDir, z, workers int, progress bool, fn func(tile.Record) error) error {
	addrs, err := raw.Addresses(z)
	if err != nil {
		return err
	}
	bar := pyramid.NewBar(progress, fmt.Sprintf("Zoom %2d", z), len(addrs), "tiles")
	defer pyramid.FinishBar(bar)
	return pyramid.ForEach(ctx, workers, addrs, bar, func(a tile.Address) error {
		rec, err := raw.ReadRecord(a)
		if err != nil {
			return err
		}
		return fn(rec)
	})
}
