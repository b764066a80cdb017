package sink

import (
	"bytes"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/rasterpyramid/internal/pmtiles"
	"github.com/pspoerri/rasterpyramid/internal/raster"
	"github.com/pspoerri/rasterpyramid/internal/render"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

func record(z, x, y int, v float64) tile.Record {
	a := tile.Address{Z: z, X: x, Y: y}
	b := raster.NewBuffer(2, 8, 8)
	for i := range b.Data {
		b.Data[i] = v + float64(i)/100
	}
	return tile.Record{Addr: a, Data: b, Ancestor: a.Ancestor(0)}
}

func renderer(t *testing.T, format string) *render.Renderer {
	t.Helper()
	opts := render.NewOptions()
	opts.Stretch = render.StretchUnit
	opts.Format = format
	r, err := render.New(opts, nil, 2)
	require.NoError(t, err)
	return r
}

func TestPattern(t *testing.T) {
	p, err := ParsePattern("{z}/{x}/{y}")
	require.NoError(t, err)
	assert.Equal(t, "3/5/1", p.Expand(tile.Address{Z: 3, X: 5, Y: 1}))

	p, err = ParsePattern("tiles_{z}_{x}_{-y}")
	require.NoError(t, err)
	assert.Equal(t, "tiles_3_5_6", p.Expand(tile.Address{Z: 3, X: 5, Y: 1}))

	for _, bad := range []string{"", "{z}/{y}", "{x}/{y}", "{z}/{x}"} {
		_, err := ParsePattern(bad)
		assert.ErrorIs(t, err, ErrInvalidPattern, bad)
	}
}

func TestRawDir_RoundTrip(t *testing.T) {
	d, err := NewRawDir(filepath.Join(t.TempDir(), "raw"))
	require.NoError(t, err)

	var recs []tile.Record
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			recs = append(recs, record(2, x, y, float64(x*4+y)))
		}
	}
	recs = append(recs, record(1, 1, 0, -1.5))

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec tile.Record) {
			defer wg.Done()
			assert.NoError(t, d.WriteRecord(rec))
		}(rec)
	}
	wg.Wait()
	require.NoError(t, d.Close())
	assert.Equal(t, len(recs), d.Len())

	got, err := d.ReadRecord(tile.Address{Z: 2, X: 3, Y: 1})
	require.NoError(t, err)
	assert.Equal(t, record(2, 3, 1, 13), got)

	zs, err := d.Zooms()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, zs)
	top, err := d.MaxZoom()
	require.NoError(t, err)
	assert.Equal(t, 2, top)

	addrs, err := d.Addresses(2)
	require.NoError(t, err)
	require.Len(t, addrs, 16)
	assert.Equal(t, tile.Address{Z: 2, X: 0, Y: 0}, addrs[0])
	assert.Equal(t, tile.Address{Z: 2, X: 0, Y: 1}, addrs[1])
	assert.Equal(t, tile.Address{Z: 2, X: 3, Y: 3}, addrs[15])

	var n int
	require.NoError(t, d.Walk(1, func(rec tile.Record) error {
		n++
		assert.Equal(t, record(1, 1, 0, -1.5), rec)
		return nil
	}))
	assert.Equal(t, 1, n)

	reopened, err := OpenRawDir(d.Root())
	require.NoError(t, err)
	_, err = reopened.ReadRecord(tile.Address{Z: 2, X: 0, Y: 0})
	assert.NoError(t, err)
}

func TestRawDir_Errors(t *testing.T) {
	d, err := NewRawDir(t.TempDir())
	require.NoError(t, err)

	_, err = d.MaxZoom()
	assert.ErrorContains(t, err, "no tiles")

	a := tile.Address{Z: 1, X: 0, Y: 0}
	assert.Error(t, d.WriteRecord(tile.Record{Addr: a}))
	assert.ErrorContains(t, d.WriteRecord(tile.Record{Addr: a, Data: raster.NewBuffer(1, 4, 2)}), "square")

	require.NoError(t, d.WriteRecord(record(1, 0, 0, 1)))
	require.NoError(t, os.Truncate(filepath.Join(d.Root(), "1", "0", "0.bin"), 16))
	_, err = d.ReadRecord(a)
	assert.ErrorContains(t, err, "header implies")

	_, err = d.ReadRecord(tile.Address{Z: 1, X: 1, Y: 1})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = OpenRawDir(filepath.Join(d.Root(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImageDir(t *testing.T) {
	root := t.TempDir()
	d, err := NewImageDir(root, "{z}/{x}/{-y}", renderer(t, "png"))
	require.NoError(t, err)

	require.NoError(t, d.WriteRecord(record(2, 1, 0, 0.5)))
	require.NoError(t, d.Close())
	assert.Equal(t, 1, d.Len())

	p := filepath.Join(root, "2", "1", "3.png")
	assert.Equal(t, p, d.Path(tile.Address{Z: 2, X: 1, Y: 0}))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	img, err := render.DecodeImage(data, "png")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = NewImageDir(root, "{z}-{x}", renderer(t, "png"))
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func readMBTiles(t *testing.T, path string) (map[[3]int][]byte, map[string]string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	tiles := make(map[[3]int][]byte)
	rows, err := db.Query("SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles")
	require.NoError(t, err)
	for rows.Next() {
		var z, x, y int
		var data []byte
		require.NoError(t, rows.Scan(&z, &x, &y, &data))
		tiles[[3]int{z, x, y}] = data
	}
	require.NoError(t, rows.Err())
	rows.Close()

	meta := make(map[string]string)
	rows, err = db.Query("SELECT name, value FROM metadata")
	require.NoError(t, err)
	for rows.Next() {
		var k, v string
		require.NoError(t, rows.Scan(&k, &v))
		meta[k] = v
	}
	require.NoError(t, rows.Err())
	rows.Close()
	return tiles, meta
}

func TestMBTiles_StoresTMSRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mbtiles")
	m, err := NewMBTiles(path, renderer(t, "jpeg"), tile.XYZ, WithMetadata(map[string]string{"name": "ndvi"}))
	require.NoError(t, err)

	recs := []tile.Record{record(2, 1, 0, 0.2), record(2, 2, 1, 0.4), record(1, 0, 0, 0.6)}
	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec tile.Record) {
			defer wg.Done()
			assert.NoError(t, m.WriteRecord(rec))
		}(rec)
	}
	wg.Wait()
	assert.Equal(t, 3, m.Len())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "second close is a no-op")

	tiles, meta := readMBTiles(t, path)
	assert.Len(t, tiles, 3)
	assert.Contains(t, tiles, [3]int{2, 1, 3})
	assert.Contains(t, tiles, [3]int{2, 2, 2})
	assert.Contains(t, tiles, [3]int{1, 0, 1})

	assert.Equal(t, "ndvi", meta["name"])
	assert.Equal(t, "jpg", meta["format"])
	assert.Equal(t, "1", meta["minzoom"])
	assert.Equal(t, "2", meta["maxzoom"])
	assert.Equal(t, "-90.000000,0.000000,90.000000,85.051129", meta["bounds"])

	assert.Error(t, m.WriteRecord(recs[0]))
}

func TestMBTiles_TMSRecordsKeepRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tms.mbtiles")
	var logs bytes.Buffer
	m, err := NewMBTiles(path, renderer(t, "png"), tile.TMS, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	require.NoError(t, m.WriteRecord(record(3, 4, 6, 0.5)))
	require.NoError(t, m.Close())

	tiles, meta := readMBTiles(t, path)
	assert.Contains(t, tiles, [3]int{3, 4, 6})
	assert.Equal(t, "png", meta["format"])
	assert.Contains(t, logs.String(), "creating index")
	assert.Contains(t, logs.String(), "tiles=1")
}

func TestPMTiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pmtiles")
	p, err := NewPMTiles(path, renderer(t, "webp"), tile.TMS, "ndvi")
	require.NoError(t, err)
	require.NoError(t, p.WriteRecord(record(2, 1, 3, 0.5)))
	require.NoError(t, p.WriteRecord(record(2, 1, 2, 0.5)))
	assert.Equal(t, 2, p.Len())
	require.NoError(t, p.Close())

	r, err := pmtiles.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint8(pmtiles.TileTypeWebP), r.Header().TileType)

	data, err := r.ReadTile(tile.Address{Z: 2, X: 1, Y: 0})
	require.NoError(t, err)
	_, err = render.DecodeImage(data, "webp")
	assert.NoError(t, err)

	_, err = TileType("tiff")
	assert.Error(t, err)

	aborted := filepath.Join(t.TempDir(), "aborted.pmtiles")
	p, err = NewPMTiles(aborted, renderer(t, "png"), tile.XYZ, "")
	require.NoError(t, err)
	require.NoError(t, p.WriteRecord(record(1, 0, 0, 0.5)))
	p.Abort()
	assert.NoFileExists(t, aborted)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "jpg", Format("jpeg"))
	assert.Equal(t, "png", Format("terrarium"))
	assert.Equal(t, "webp", Format("webp"))
}
