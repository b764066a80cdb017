package pmtiles

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// WriterOptions describes the archive being written. The zoom range and
// bounds are derived from the written tiles.
type WriterOptions struct {
	TileType    uint8
	Name        string
	Description string
	Attribution string
	// TempDir holds the spool file; defaults to the output's directory.
	TempDir string
}

type spooled struct {
	offset uint64
	length uint32
}

// Writer spools tiles to a temporary file and assembles the archive in
// Finalize. Identical tile bytes are stored once. Safe for concurrent use.
type Writer struct {
	path string
	opts WriterOptions

	mu        sync.Mutex
	spool     *os.File
	size      uint64
	entries   []Entry
	extent    tile.Extent
	seen      map[uint64]spooled // FNV-64a of the tile bytes
	ids       map[uint64]bool
	finalized bool
}

// NewWriter creates the spool file for an archive at path.
func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	dir := opts.TempDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	spool, err := os.CreateTemp(dir, "pmtiles-spool-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}
	return &Writer{
		path:  path,
		opts:  opts,
		spool: spool,
		seen:  make(map[uint64]spooled),
		ids:   make(map[uint64]bool),
	}, nil
}

// WriteTile stores the encoded bytes of the tile at a (XYZ). Empty data is
// ignored; writing an address twice is an error.
func (w *Writer) WriteTile(a tile.Address, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	id, err := TileID(a)
	if err != nil {
		return err
	}
	h := fnv.New64a()
	h.Write(data)
	sum := h.Sum64()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return errors.New("pmtiles: write after finalize")
	}
	if w.ids[id] {
		return fmt.Errorf("pmtiles: tile %s written twice", a)
	}
	w.ids[id] = true
	w.extent.Add(a)

	if s, ok := w.seen[sum]; ok && s.length == uint32(len(data)) {
		w.entries = append(w.entries, Entry{TileID: id, Offset: s.offset, Length: s.length, RunLength: 1})
		return nil
	}
	if _, err := w.spool.Write(data); err != nil {
		return fmt.Errorf("spooling tile %s: %w", a, err)
	}
	s := spooled{offset: w.size, length: uint32(len(data))}
	w.size += uint64(len(data))
	w.seen[sum] = s
	w.entries = append(w.entries, Entry{TileID: id, Offset: s.offset, Length: s.length, RunLength: 1})
	return nil
}

// Len returns the number of addressed tiles written so far.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Finalize writes the archive. Tile data is laid out in tile ID order so
// the archive is clustered.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return errors.New("pmtiles: already finalized")
	}
	w.finalized = true
	defer w.removeSpool()

	slices.SortFunc(w.entries, func(a, b Entry) int { return cmp.Compare(a.TileID, b.TileID) })

	// Assign final offsets in ID order; duplicates reuse the first copy.
	spoolAt := make([]spooled, 0, len(w.seen))
	moved := make(map[uint64]uint64, len(w.seen))
	var dataLen uint64
	for i := range w.entries {
		e := &w.entries[i]
		if off, ok := moved[e.Offset]; ok {
			e.Offset = off
			continue
		}
		spoolAt = append(spoolAt, spooled{offset: e.Offset, length: e.Length})
		moved[e.Offset] = dataLen
		e.Offset = dataLen
		dataLen += uint64(e.Length)
	}

	addressed := len(w.entries)
	entries := compactEntries(w.entries)
	root, leaves, err := buildDirectories(entries)
	if err != nil {
		return fmt.Errorf("building directories: %w", err)
	}
	meta, err := json.Marshal(w.metadata())
	if err != nil {
		return err
	}
	if meta, err = gzipBytes(meta); err != nil {
		return fmt.Errorf("compressing metadata: %w", err)
	}

	h := w.header()
	h.RootDirOffset = HeaderSize
	h.RootDirLength = uint64(len(root))
	h.MetadataOffset = h.RootDirOffset + h.RootDirLength
	h.MetadataLength = uint64(len(meta))
	h.LeafDirOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirLength = uint64(len(leaves))
	h.TileDataOffset = h.LeafDirOffset + h.LeafDirLength
	h.TileDataLength = dataLen
	h.NumAddressedTiles = uint64(addressed)
	h.NumTileEntries = uint64(len(entries))
	h.NumTileContents = uint64(len(spoolAt))

	out, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", w.path, err)
	}
	bw := bufio.NewWriterSize(out, 1<<20)
	for _, part := range [][]byte{h.Serialize(), root, meta, leaves} {
		if _, err := bw.Write(part); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", w.path, err)
		}
	}

	var buf []byte
	for _, src := range spoolAt {
		buf = slices.Grow(buf[:0], int(src.length))[:src.length]
		if _, err := w.spool.ReadAt(buf, int64(src.offset)); err != nil {
			out.Close()
			return fmt.Errorf("reading spooled tile at %d: %w", src.offset, err)
		}
		if _, err := bw.Write(buf); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", w.path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	return out.Close()
}

// Abort discards the spool without writing the archive.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	w.removeSpool()
}

func (w *Writer) removeSpool() {
	if w.spool == nil {
		return
	}
	name := w.spool.Name()
	w.spool.Close()
	os.Remove(name)
	w.spool = nil
}

func (w *Writer) header() Header {
	e := &w.extent
	lon, lat, z := e.Center()
	return Header{
		Clustered:           true,
		InternalCompression: CompressionGzip,
		TileCompression:     CompressionNone,
		TileType:            w.opts.TileType,
		MinZoom:             uint8(e.MinZoom),
		MaxZoom:             uint8(e.MaxZoom),
		MinLon:              e.MinLon,
		MinLat:              e.MinLat,
		MaxLon:              e.MaxLon,
		MaxLat:              e.MaxLat,
		CenterZoom:          uint8(z),
		CenterLon:           lon,
		CenterLat:           lat,
	}
}

func (w *Writer) metadata() map[string]string {
	e := &w.extent
	lon, lat, z := e.Center()
	name := w.opts.Name
	if name == "" {
		name = "rasterpyramid"
	}
	m := map[string]string{
		"name":    name,
		"format":  TileTypeName(w.opts.TileType),
		"type":    "overlay",
		"minzoom": strconv.Itoa(e.MinZoom),
		"maxzoom": strconv.Itoa(e.MaxZoom),
		"bounds":  fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", e.MinLon, e.MinLat, e.MaxLon, e.MaxLat),
		"center":  fmt.Sprintf("%.6f,%.6f,%d", lon, lat, z),
	}
	if w.opts.Description != "" {
		m["description"] = w.opts.Description
	}
	if w.opts.Attribution != "" {
		m["attribution"] = w.opts.Attribution
	}
	return m
}

// TileTypeName returns the metadata format string of a tile type.
func TileTypeName(t uint8) string {
	switch t {
	case TileTypePNG:
		return "png"
	case TileTypeJPEG:
		return "jpg"
	case TileTypeWebP:
		return "webp"
	}
	return "unknown"
}
