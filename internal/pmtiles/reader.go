package pmtiles

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// Reader reads tiles from a PMTiles v3 archive. Leaf directories are loaded
// when first needed. Safe for concurrent use once opened.
type Reader struct {
	f      *os.File
	header Header
	root   []Entry
}

// OpenReader opens the archive at path and loads its root directory.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func newReader(f *os.File) (*Reader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	h, err := DeserializeHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.InternalCompression != CompressionGzip {
		return nil, fmt.Errorf("unsupported directory compression %d", h.InternalCompression)
	}
	data, err := readAt(f, h.RootDirOffset, h.RootDirLength)
	if err != nil {
		return nil, fmt.Errorf("reading root directory: %w", err)
	}
	root, err := DeserializeDirectory(data)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f, header: h, root: root}, nil
}

func readAt(f *os.File, off, n uint64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := f.ReadAt(buf, int64(off)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Header returns the parsed archive header.
func (r *Reader) Header() Header { return r.header }

func (r *Reader) leaf(e Entry) ([]Entry, error) {
	data, err := readAt(r.f, r.header.LeafDirOffset+e.Offset, uint64(e.Length))
	if err != nil {
		return nil, fmt.Errorf("reading leaf directory at %d: %w", e.Offset, err)
	}
	return DeserializeDirectory(data)
}

// ReadTile returns the bytes of the tile at a (XYZ), or nil when the archive
// has no such tile.
func (r *Reader) ReadTile(a tile.Address) ([]byte, error) {
	id, err := TileID(a)
	if err != nil {
		return nil, err
	}
	dir := r.root
	for depth := 0; depth < 4; depth++ {
		e, ok := findEntry(dir, id)
		if !ok {
			return nil, nil
		}
		if e.RunLength > 0 {
			data, err := readAt(r.f, r.header.TileDataOffset+e.Offset, uint64(e.Length))
			if err != nil {
				return nil, fmt.Errorf("reading tile %s: %w", a, err)
			}
			return data, nil
		}
		if dir, err = r.leaf(e); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("directory nesting too deep for tile %s", a)
}

// Addresses lists the addressed tiles of zoom z in tile ID order.
func (r *Reader) Addresses(z int) ([]tile.Address, error) {
	lo, hi := zoomBase(z), zoomBase(z+1)
	var out []tile.Address
	var walk func(dir []Entry) error
	walk = func(dir []Entry) error {
		for i, e := range dir {
			if e.RunLength == 0 {
				// A leaf covers IDs up to the next entry's first ID.
				if (i+1 < len(dir) && dir[i+1].TileID <= lo) || e.TileID >= hi {
					continue
				}
				sub, err := r.leaf(e)
				if err != nil {
					return err
				}
				if err := walk(sub); err != nil {
					return err
				}
				continue
			}
			for id := max(e.TileID, lo); id < min(e.TileID+uint64(e.RunLength), hi); id++ {
				a, err := AddressOf(id)
				if err != nil {
					return err
				}
				out = append(out, a)
			}
		}
		return nil
	}
	if err := walk(r.root); err != nil {
		return nil, err
	}
	return out, nil
}

// Metadata decodes the archive's JSON metadata.
func (r *Reader) Metadata() (map[string]any, error) {
	if r.header.MetadataLength == 0 {
		return nil, nil
	}
	data, err := readAt(r.f, r.header.MetadataOffset, r.header.MetadataLength)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	if data, err = gunzipBytes(data); err != nil {
		return nil, fmt.Errorf("decompressing metadata: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return meta, nil
}

// Close closes the archive file.
func (r *Reader) Close() error { return r.f.Close() }
