package stats

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/rasterpyramid/internal/raster"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

func TestOfBuffer_Constant(t *testing.T) {
	got := OfBuffer(raster.Fill(1, 4, 4, 7))
	assert.Equal(t, []Band{{Max: 7, Min: 7, Mean: 7, Std: 0, P02: 7, P25: 7, P75: 7, P98: 7}}, got)
}

func TestOfBuffer_IgnoresZeros(t *testing.T) {
	b, err := raster.FromSamples(2, 3, 2, []float64{
		0, 1, 2, 3, 4, 0, // band 0
		0, 0, 0, 0, 0, 0, // band 1
	})
	require.NoError(t, err)
	got := OfBuffer(b)

	assert.Equal(t, 4.0, got[0].Max)
	assert.Equal(t, 1.0, got[0].Min)
	assert.Equal(t, 2.5, got[0].Mean)
	assert.InDelta(t, 1.118034, got[0].Std, 1e-6)
	assert.InDelta(t, 1.06, got[0].P02, 1e-9)
	assert.InDelta(t, 1.75, got[0].P25, 1e-9)
	assert.InDelta(t, 3.25, got[0].P75, 1e-9)
	assert.InDelta(t, 3.94, got[0].P98, 1e-9)
	assert.Equal(t, Band{}, got[1], "band without data")
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}

func record(z, x, y int, b *raster.Buffer) tile.Record {
	a := tile.Address{Z: z, X: x, Y: y}
	return tile.Record{Addr: a, Data: b, Ancestor: a}
}

func TestCollector_Summary(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.Add(record(3, 0, 0, raster.Fill(1, 4, 4, 2))))
	require.NoError(t, c.Add(record(3, 1, 0, raster.Fill(1, 4, 4, 6))))
	require.NoError(t, c.Add(record(3, 2, 0, raster.Fill(1, 4, 4, 10))))
	assert.Equal(t, 3, c.Len())

	s := c.Summary()
	assert.Equal(t, 3, s.Nums)
	assert.Equal(t, []float64{6}, s.Mean)
	assert.Equal(t, []float64{0}, s.Std)
	assert.Equal(t, []float64{10}, s.Max)
	assert.Equal(t, []float64{2}, s.Min)
	assert.Equal(t, []float64{6}, s.P02)
	assert.Equal(t, []float64{6}, s.P98)
	require.Len(t, s.Tiles, 3)
	assert.Equal(t, "3/0/0", s.Tiles[0].Address)
	require.NoError(t, s.Validate())
}

func TestCollector_BandMismatch(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.Add(record(1, 0, 0, raster.Fill(1, 2, 2, 1))))
	err := c.Add(record(1, 1, 0, raster.Fill(2, 2, 2, 1)))
	assert.ErrorIs(t, err, tile.ErrBandMismatch)
	assert.Error(t, c.Add(tile.Record{}))
}

func TestCollector_ConcurrentAdd(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Add(record(5, i, 0, raster.Fill(2, 4, 4, float64(i+1)))))
		}(i)
	}
	wg.Wait()
	s := c.Summary()
	assert.Equal(t, 32, s.Nums)
	assert.Equal(t, []float64{32, 32}, s.Max)
	assert.Equal(t, []float64{1, 1}, s.Min)
}

func TestCollector_Empty(t *testing.T) {
	s := NewCollector().Summary()
	assert.Zero(t, s.Nums)
	assert.Zero(t, s.Bands())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	c := NewCollector()
	require.NoError(t, c.Add(record(2, 1, 1, raster.Fill(2, 4, 4, 3))))
	s := c.Summary()
	s.DatasetName = "NDVI Mean"
	s.MaxZoom = 2

	p := filepath.Join(t.TempDir(), "statistics.json")
	require.NoError(t, Save(p, s))
	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestLoad_KeepsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "statistics.json")
	doc := `{
		"dataset_name": "GHS", "contact": "", "nums": 1, "max_zoom": 4,
		"npy_dir": "/data/npy",
		"max": [9], "min": [1], "mean": [5], "std": [2],
		"02%": [1.5], "25%": [3], "75%": [7], "98%": [8.5]
	}`
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))

	s, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{8.5}, s.P98)
	assert.Equal(t, map[string]any{"npy_dir": "/data/npy"}, s.Extra)

	out := filepath.Join(dir, "copy.json")
	require.NoError(t, Save(out, s))
	again, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, s, again)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"mean": [1, 2], "max": [1]}`), 0o644))
	_, err := Load(p)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
