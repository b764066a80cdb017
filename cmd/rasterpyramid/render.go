package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pspoerri/rasterpyramid/internal/pyramid"
	"github.com/pspoerri/rasterpyramid/internal/render"
	"github.com/pspoerri/rasterpyramid/internal/sink"
	"github.com/pspoerri/rasterpyramid/internal/stats"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

func renderCommand() *cli.Command {
	opts := render.NewOptions()
	return &cli.Command{
		Name:      "render",
		Usage:     "Render a raw pyramid to image tiles, MBTiles or PMTiles",
		ArgsUsage: "<raw-dir>",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     flagOut,
				Aliases:  []string{"o"},
				Usage:    "Output: a directory, or a file ending in .mbtiles or .pmtiles",
				Required: true,
				EnvVars:  envVars(flagOut),
			},
			&cli.StringFlag{
				Name:    flagStats,
				Usage:   "Statistics file (default <raw-dir>/" + statisticsFile + ")",
				EnvVars: envVars(flagStats),
			},
			&cli.StringFlag{
				Name:    flagStretch,
				Usage:   "Value stretch: gaussian, 02-98, linear-stretch, 0-1, ghs, dem",
				Value:   opts.Stretch,
				EnvVars: envVars(flagStretch),
			},
			&cli.StringFlag{
				Name:    flagColormap,
				Usage:   "Colormap: " + strings.Join(render.ColormapNames(), ", "),
				Value:   opts.Colormap,
				EnvVars: envVars(flagColormap),
			},
			&cli.StringFlag{
				Name:    flagChannels,
				Usage:   "Three comma separated bands rendered as RGB, e.g. 3,2,1",
				EnvVars: envVars(flagChannels),
			},
			&cli.StringFlag{
				Name:    flagFormat,
				Usage:   "Tile format: " + strings.Join(render.Formats, ", "),
				Value:   opts.Format,
				EnvVars: envVars(flagFormat),
			},
			&cli.IntFlag{
				Name:    flagQuality,
				Usage:   "JPEG/WebP quality (1-100)",
				Value:   opts.Quality,
				EnvVars: envVars(flagQuality),
			},
			&cli.StringFlag{
				Name:    flagPattern,
				Usage:   "Path pattern of image tiles below the output directory; {-y} is the flipped row",
				Value:   sink.DefaultPattern,
				EnvVars: envVars(flagPattern),
			},
			&cli.IntFlag{
				Name:    flagMinZoom,
				Usage:   "Lowest zoom to render",
				EnvVars: envVars(flagMinZoom),
			},
			&cli.IntFlag{
				Name:    flagMaxZoom,
				Usage:   "Highest zoom to render (-1 = deepest available)",
				Value:   -1,
				EnvVars: envVars(flagMaxZoom),
			},
			&cli.StringFlag{
				Name:    flagName,
				Usage:   "Tileset name stored in MBTiles/PMTiles metadata",
				EnvVars: envVars(flagName),
			},
			&cli.StringFlag{
				Name:    flagPreview,
				Usage:   "Also write a PNG mosaic of one zoom level to this file",
				EnvVars: envVars(flagPreview),
			},
			&cli.IntFlag{
				Name:    flagPreviewZoom,
				Usage:   "Zoom of the preview mosaic (-1 = lowest rendered)",
				Value:   -1,
				EnvVars: envVars(flagPreviewZoom),
			},
			&cli.IntFlag{
				Name:    flagPreviewSize,
				Usage:   "Longest side of the preview in pixels",
				Value:   2048,
				EnvVars: envVars(flagPreviewSize),
			},
		}, commonFlags()...),
		Action: runRender,
	}
}

// countingSink is a pyramid.Sink that reports how many tiles it wrote.
type countingSink interface {
	pyramid.Sink
	Len() int
}

func runRender(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("expected exactly one raw tile directory", 1)
	}
	start := time.Now()
	raw, err := sink.OpenRawDir(c.Args().First())
	if err != nil {
		return err
	}
	zooms, err := renderZooms(raw, c.Int(flagMinZoom), c.Int(flagMaxZoom))
	if err != nil {
		return err
	}
	conv := tile.XYZ
	if c.Bool(flagTMS) {
		conv = tile.TMS
	}

	opts := render.NewOptions()
	opts.Stretch = c.String(flagStretch)
	opts.Colormap = c.String(flagColormap)
	opts.Format = c.String(flagFormat)
	opts.Quality = c.Int(flagQuality)
	if opts.Channels, err = parseChannels(c.String(flagChannels)); err != nil {
		return err
	}

	summary, err := loadStats(c.String(flagStats), raw.Root())
	if err != nil {
		return err
	}
	bands, err := pyramidBands(raw, zooms[0])
	if err != nil {
		return err
	}
	r, err := render.New(opts, summary, bands)
	if err != nil {
		return err
	}

	out := c.String(flagOut)
	name := c.String(flagName)
	if name == "" && summary != nil {
		name = summary.DatasetName
	}
	dst, err := openOutput(out, c.String(flagPattern), name, r, conv, c.Bool(flagVerbose))
	if err != nil {
		return err
	}

	fmt.Printf("rasterpyramid render %s\n", c.App.Version)
	setting("Input", raw.Root())
	setting("Output", out)
	setting("Zoom", fmt.Sprintf("%d - %d", zooms[0], zooms[len(zooms)-1]))
	setting("Format", r.Encoder().Format())
	if len(opts.Channels) > 0 {
		setting("Channels", opts.Channels)
	} else {
		setting("Colormap", opts.Colormap)
	}
	setting("Stretch", opts.Stretch)
	setting("Convention", conv)

	previewZoom := c.Int(flagPreviewZoom)
	if previewZoom < 0 {
		previewZoom = zooms[0]
	}
	var (
		mu      sync.Mutex
		preview []tile.Record
	)
	for _, z := range zooms {
		err := forEachRecord(c.Context, raw, z, c.Int(flagConcurrency), !c.Bool(flagNoProgress), func(rec tile.Record) error {
			if c.String(flagPreview) != "" && z == previewZoom {
				mu.Lock()
				preview = append(preview, rec)
				mu.Unlock()
			}
			return dst.WriteRecord(rec)
		})
		if err != nil {
			if a, ok := dst.(interface{ Abort() }); ok {
				a.Abort()
			} else {
				dst.Close()
			}
			return err
		}
	}
	if err := dst.Close(); err != nil {
		return err
	}

	if p := c.String(flagPreview); p != "" {
		if err := writePreview(p, r, preview, conv, c.Int(flagPreviewSize)); err != nil {
			return err
		}
		log.Printf("Preview of zoom %d written to %s", previewZoom, p)
	}

	size := dirSize(out)
	fmt.Printf("Done: %d tiles, %s, %v → %s\n",
		dst.Len(), humanSize(size), time.Since(start).Round(time.Millisecond), out)
	return nil
}

// renderZooms returns the zoom levels present in raw that fall in [lo, hi].
// A negative hi means no upper bound.
func renderZooms(raw *sink.RawDir, lo, hi int) ([]int, error) {
	all, err := raw.Zooms()
	if err != nil {
		return nil, err
	}
	zooms := slices.DeleteFunc(all, func(z int) bool { return z < lo || (hi >= 0 && z > hi) })
	if len(zooms) == 0 {
		return nil, fmt.Errorf("no zoom levels between %d and %d in %s", lo, hi, raw.Root())
	}
	return zooms, nil
}

func parseChannels(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("channels %q: need exactly three bands", s)
	}
	out := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("channels %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// loadStats reads the statistics file. Without an explicit path a missing
// default file yields nil, which is enough for stretches that need none.
func loadStats(path, root string) (*stats.Summary, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, statisticsFile)
	}
	s, err := stats.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// pyramidBands reads the band count from the first record of zoom z.
func pyramidBands(raw *sink.RawDir, z int) (int, error) {
	addrs, err := raw.Addresses(z)
	if err != nil {
		return 0, err
	}
	if len(addrs) == 0 {
		return 0, fmt.Errorf("no tiles at zoom %d in %s", z, raw.Root())
	}
	rec, err := raw.ReadRecord(addrs[0])
	if err != nil {
		return 0, err
	}
	return rec.Bands(), nil
}

// openOutput picks the sink from the output path's extension.
func openOutput(out, pattern, name string, r *render.Renderer, conv tile.Convention, verbose bool) (countingSink, error) {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".mbtiles":
		if _, err := os.Stat(out); err == nil {
			return nil, fmt.Errorf("%s already exists", out)
		}
		opts := []sink.MBTilesOption{}
		if name != "" {
			opts = append(opts, sink.WithMetadata(map[string]string{"name": name}))
		}
		if verbose {
			opts = append(opts, sink.WithLogger(slog.Default()))
		}
		return sink.NewMBTiles(out, r, conv, opts...)
	case ".pmtiles":
		return sink.NewPMTiles(out, r, conv, name)
	default:
		return sink.NewImageDir(out, pattern, r)
	}
}

func writePreview(path string, r *render.Renderer, recs []tile.Record, conv tile.Convention, maxSide int) error {
	img, err := r.Mosaic(recs, conv, maxSide)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	data, err := (&render.PNGEncoder{}).Encode(img)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
