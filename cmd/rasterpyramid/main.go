// Command rasterpyramid cuts Web Mercator GeoTIFFs into a tile pyramid,
// collects statistics over the deepest level and renders the pyramid to
// image tiles, MBTiles or PMTiles.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/urfave/cli/v2"
)

// Flag names shared by the subcommands. Each is also read from the
// environment, e.g. RASTERPYRAMID_TILE_SIZE.
const (
	flagOut         = `out`
	flagMinZoom     = `min-zoom`
	flagMaxZoom     = `max-zoom`
	flagTileSize    = `tile-size`
	flagMerge       = `merge`
	flagNoData      = `nodata`
	flagTMS         = `tms`
	flagConcurrency = `concurrency`
	flagSkipFailed  = `skip-failed`
	flagKeepEmpty   = `keep-empty`
	flagMemLimit    = `mem-limit`
	flagTempDir     = `tmp-dir`
	flagVerbose     = `verbose`
	flagNoProgress  = `no-progress`
	flagName        = `name`
	flagContact     = `contact`
	flagStats       = `stats`
	flagStretch     = `stretch`
	flagColormap    = `colormap`
	flagChannels    = `channels`
	flagFormat      = `format`
	flagQuality     = `quality`
	flagPattern     = `pattern`
	flagPreview     = `preview`
	flagPreviewZoom = `preview-zoom`
	flagPreviewSize = `preview-size`
)

func envVars(name string) []string {
	return []string{strcase.ToScreamingSnake("rasterpyramid_" + name)}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "rasterpyramid"
	app.Usage = "Cut Web Mercator rasters into tile pyramids and render them"
	app.Version = versioninfo.Short()
	app.Commands = []*cli.Command{
		buildCommand(),
		statsCommand(),
		renderCommand(),
		infoCommand(),
	}
	return app
}

// commonFlags are understood by every command that walks a pyramid.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    flagTMS,
			Usage:   "Tile rows count from the south edge (TMS) instead of the north edge (XYZ)",
			EnvVars: envVars(flagTMS),
		},
		&cli.IntFlag{
			Name:    flagConcurrency,
			Aliases: []string{"j"},
			Usage:   "Number of parallel workers",
			Value:   runtime.NumCPU(),
			EnvVars: envVars(flagConcurrency),
		},
		&cli.BoolFlag{
			Name:    flagVerbose,
			Aliases: []string{"v"},
			Usage:   "Verbose output",
			EnvVars: envVars(flagVerbose),
		},
		&cli.BoolFlag{
			Name:    flagNoProgress,
			Usage:   "Disable progress bars",
			EnvVars: envVars(flagNoProgress),
		},
	}
}

// collectTIFFs expands directories to the TIFF files directly inside them.
func collectTIFFs(paths []string) ([]string, error) {
	var result []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			entries, err := os.ReadDir(p)
			if err != nil {
				return nil, fmt.Errorf("readdir %s: %w", p, err)
			}
			for _, e := range entries {
				if !e.IsDir() && isTIFF(e.Name()) {
					result = append(result, filepath.Join(p, e.Name()))
				}
			}
		} else if isTIFF(p) {
			result = append(result, p)
		}
	}
	return result, nil
}

func isTIFF(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".tif") || strings.HasSuffix(lower, ".tiff")
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// dirSize sums the sizes of the regular files below root.
func dirSize(root string) int64 {
	var n int64
	filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			n += info.Size()
		}
		return nil
	})
	return n
}

func setting(name string, value any) {
	fmt.Printf("  %-14s %v\n", name+":", value)
}
