package sink

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pspoerri/rasterpyramid/internal/raster"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// rawHeader sits next to each .bin file.
type rawHeader struct {
	Bands    int    `json:"bands"`
	Size     int    `json:"size"`
	Ancestor string `json:"ancestor"`
}

// RawDir stores records losslessly as {root}/{z}/{x}/{y}.bin, the samples as
// little-endian float64 in band-major order, plus a {y}.json header. It is
// safe for concurrent use.
type RawDir struct {
	root string
	n    atomic.Int64
}

// NewRawDir creates root if needed.
func NewRawDir(root string) (*RawDir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating raw tile directory: %w", err)
	}
	return &RawDir{root: root}, nil
}

// OpenRawDir opens an existing directory for reading.
func OpenRawDir(root string) (*RawDir, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return &RawDir{root: root}, nil
}

// Root returns the directory path.
func (d *RawDir) Root() string { return d.root }

func (d *RawDir) path(a tile.Address, ext string) string {
	return filepath.Join(d.root, strconv.Itoa(a.Z), strconv.Itoa(a.X), strconv.Itoa(a.Y)+ext)
}

// WriteRecord stores rec, replacing an earlier record at the same address.
func (d *RawDir) WriteRecord(rec tile.Record) error {
	b := rec.Data
	if b == nil {
		return fmt.Errorf("record %s has no data", rec.Addr)
	}
	if b.Width != b.Height {
		return fmt.Errorf("record %s is %dx%d, tiles must be square", rec.Addr, b.Width, b.Height)
	}
	if err := os.MkdirAll(filepath.Dir(d.path(rec.Addr, "")), 0o755); err != nil {
		return err
	}
	buf := make([]byte, 8*len(b.Data))
	for i, v := range b.Data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	if err := os.WriteFile(d.path(rec.Addr, ".bin"), buf, 0o644); err != nil {
		return err
	}
	hdr, err := json.Marshal(rawHeader{Bands: b.Bands, Size: b.Width, Ancestor: rec.Ancestor.String()})
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.path(rec.Addr, ".json"), hdr, 0o644); err != nil {
		return err
	}
	d.n.Add(1)
	return nil
}

// Len returns the number of records written through d.
func (d *RawDir) Len() int { return int(d.n.Load()) }

func (d *RawDir) Close() error { return nil }

// ReadRecord loads the record at a.
func (d *RawDir) ReadRecord(a tile.Address) (tile.Record, error) {
	data, err := os.ReadFile(d.path(a, ".json"))
	if err != nil {
		return tile.Record{}, err
	}
	var hdr rawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return tile.Record{}, fmt.Errorf("header of %s: %w", a, err)
	}
	anc, err := tile.ParseAddress(hdr.Ancestor)
	if err != nil {
		return tile.Record{}, fmt.Errorf("header of %s: %w", a, err)
	}
	raw, err := os.ReadFile(d.path(a, ".bin"))
	if err != nil {
		return tile.Record{}, err
	}
	want := 8 * hdr.Bands * hdr.Size * hdr.Size
	if len(raw) != want {
		return tile.Record{}, fmt.Errorf("tile %s: %d bytes, header implies %d", a, len(raw), want)
	}
	buf := raster.NewBuffer(hdr.Bands, hdr.Size, hdr.Size)
	for i := range buf.Data {
		buf.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return tile.Record{Addr: a, Data: buf, Ancestor: anc}, nil
}

// Zooms lists the zoom levels present, ascending.
func (d *RawDir) Zooms() ([]int, error) {
	ents, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var zs []int
	for _, e := range ents {
		if z, err := strconv.Atoi(e.Name()); err == nil && e.IsDir() {
			zs = append(zs, z)
		}
	}
	slices.Sort(zs)
	return zs, nil
}

// MaxZoom returns the deepest zoom present.
func (d *RawDir) MaxZoom() (int, error) {
	zs, err := d.Zooms()
	if err != nil {
		return 0, err
	}
	if len(zs) == 0 {
		return 0, fmt.Errorf("no tiles in %s", d.root)
	}
	return zs[len(zs)-1], nil
}

// Addresses lists the tiles of zoom z ordered by column, then row.
func (d *RawDir) Addresses(z int) ([]tile.Address, error) {
	base := filepath.Join(d.root, strconv.Itoa(z))
	var out []tile.Address
	err := filepath.WalkDir(base, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(p, ".bin") {
			return nil
		}
		rel, _ := filepath.Rel(d.root, strings.TrimSuffix(p, ".bin"))
		a, err := tile.ParseAddress(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("unexpected file %s: %w", p, err)
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b tile.Address) int {
		if a.X != b.X {
			return a.X - b.X
		}
		return a.Y - b.Y
	})
	return out, nil
}

// Walk calls fn for every record of zoom z in Addresses order.
func (d *RawDir) Walk(z int, fn func(tile.Record) error) error {
	addrs, err := d.Addresses(z)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		rec, err := d.ReadRecord(a)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
