package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/rasterpyramid/internal/pmtiles"
	"github.com/pspoerri/rasterpyramid/internal/raster"
	"github.com/pspoerri/rasterpyramid/internal/sink"
	"github.com/pspoerri/rasterpyramid/internal/stats"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

func TestCollectTIFFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.tif", "b.TIFF", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.tif"), 0o755))

	got, err := collectTIFFs([]string{dir, filepath.Join(dir, "c.png")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.tif"), filepath.Join(dir, "b.TIFF")}, got)

	_, err = collectTIFFs([]string{filepath.Join(dir, "missing.tif")})
	assert.Error(t, err)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "2.0 MB", humanSize(2<<20))
	assert.Equal(t, "3.0 GB", humanSize(3<<30))
}

func TestParseChannels(t *testing.T) {
	got, err := parseChannels("2, 1,0")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, got)

	got, err = parseChannels("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseChannels("1,2")
	assert.Error(t, err)
	_, err = parseChannels("1,x,2")
	assert.Error(t, err)
}

func TestEnvVars(t *testing.T) {
	assert.Equal(t, []string{"RASTERPYRAMID_MIN_ZOOM"}, envVars(flagMinZoom))
}

// rawPyramid writes a two-level pyramid: four tiles at zoom 1 and their
// parent at zoom 0.
func rawPyramid(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "raw")
	d, err := sink.NewRawDir(root)
	require.NoError(t, err)
	write := func(a tile.Address, v float64) {
		b := raster.NewBuffer(1, 16, 16)
		for i := range b.Data {
			b.Data[i] = v + float64(i%16)
		}
		require.NoError(t, d.WriteRecord(tile.Record{Addr: a, Data: b, Ancestor: a.Ancestor(0)}))
	}
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			write(tile.Address{Z: 1, X: x, Y: y}, float64(1+x+2*y))
		}
	}
	write(tile.Address{Z: 0}, 10)
	require.NoError(t, d.Close())
	return root
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	return newApp().Run(append([]string{"rasterpyramid"}, args...))
}

func TestStatsAndRender(t *testing.T) {
	raw := rawPyramid(t)

	require.NoError(t, run(t, "stats", "--no-progress", "--name", "ramp", raw))
	s, err := stats.Load(filepath.Join(raw, statisticsFile))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Nums)
	assert.Equal(t, 1, s.MaxZoom)
	assert.Equal(t, "ramp", s.DatasetName)
	assert.Equal(t, 1, s.Bands())
	assert.Equal(t, 1.0, s.Min[0])
	assert.Equal(t, 19.0, s.Max[0])

	out := filepath.Join(t.TempDir(), "png")
	preview := filepath.Join(t.TempDir(), "preview.png")
	require.NoError(t, run(t, "render", "--no-progress", "-o", out, "--colormap", "greens",
		"--preview", preview, "--preview-zoom", "1", raw))
	for _, p := range []string{"0/0/0.png", "1/0/0.png", "1/1/1.png"} {
		assert.FileExists(t, filepath.Join(out, p))
	}
	assert.FileExists(t, preview)

	mb := filepath.Join(t.TempDir(), "out.mbtiles")
	require.NoError(t, run(t, "render", "--no-progress", "-o", mb, "--format", "jpeg", "--min-zoom", "1", raw))
	assert.FileExists(t, mb)
	assert.Error(t, run(t, "render", "--no-progress", "-o", mb, raw), "existing mbtiles is not overwritten")

	pm := filepath.Join(t.TempDir(), "out.pmtiles")
	require.NoError(t, run(t, "render", "--no-progress", "-o", pm, "--format", "webp", "--name", "ramp", raw))
	r, err := pmtiles.OpenReader(pm)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint8(0), r.Header().MinZoom)
	assert.Equal(t, uint8(1), r.Header().MaxZoom)
	data, err := r.ReadTile(tile.Address{Z: 1, X: 1, Y: 0})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestRender_NeedsStatistics(t *testing.T) {
	raw := rawPyramid(t)
	out := filepath.Join(t.TempDir(), "tiles")
	assert.Error(t, run(t, "render", "--no-progress", "-o", out, raw), "gaussian stretch without statistics")
	require.NoError(t, run(t, "render", "--no-progress", "-o", out, "--stretch", "0-1", "--max-zoom", "0", raw))
	assert.FileExists(t, filepath.Join(out, "0", "0", "0.png"))
	assert.NoFileExists(t, filepath.Join(out, "1", "0", "0.png"))
}

func TestRenderZooms(t *testing.T) {
	d, err := sink.OpenRawDir(rawPyramid(t))
	require.NoError(t, err)

	z, err := renderZooms(d, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, z)

	z, err = renderZooms(d, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, z)

	_, err = renderZooms(d, 3, -1)
	assert.Error(t, err)
}
