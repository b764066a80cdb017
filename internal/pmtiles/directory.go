package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"
	"slices"
	"sort"

	"github.com/google/hilbert"

	"github.com/pspoerri/rasterpyramid/internal/coord"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// TileID returns the archive-wide tile ID of an XYZ address: the number of
// tiles on all shallower zooms plus the Hilbert index within zoom a.Z.
func TileID(a tile.Address) (uint64, error) {
	d, err := coord.HilbertIndex(a.Z, a.X, a.Y)
	if err != nil {
		return 0, err
	}
	return zoomBase(a.Z) + d, nil
}

// AddressOf inverts TileID.
func AddressOf(id uint64) (tile.Address, error) {
	z := (bits.Len64(3*id+1) - 1) / 2
	h, err := hilbert.NewHilbert(1 << uint(z))
	if err != nil {
		return tile.Address{}, err
	}
	x, y, err := h.Map(int(id - zoomBase(z)))
	if err != nil {
		return tile.Address{}, fmt.Errorf("tile id %d: %w", id, err)
	}
	return tile.Address{Z: z, X: x, Y: y}, nil
}

// zoomBase is the first tile ID of zoom z, (4^z - 1) / 3.
func zoomBase(z int) uint64 { return (1<<(2*uint(z)) - 1) / 3 }

// Entry is one directory entry. RunLength 0 marks a pointer to a leaf
// directory; otherwise RunLength consecutive tile IDs share the data at
// Offset.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

func serializeDirectory(entries []Entry) ([]byte, error) {
	raw := binary.AppendUvarint(nil, uint64(len(entries)))
	var last uint64
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, e.TileID-last)
		last = e.TileID
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.RunLength))
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.Length))
	}
	var next uint64
	for i, e := range entries {
		if i > 0 && e.Offset == next {
			raw = binary.AppendUvarint(raw, 0)
		} else {
			raw = binary.AppendUvarint(raw, e.Offset+1)
		}
		next = e.Offset + uint64(e.Length)
	}
	return gzipBytes(raw)
}

// DeserializeDirectory parses a gzip-compressed directory.
func DeserializeDirectory(data []byte) ([]Entry, error) {
	raw, err := gunzipBytes(data)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	r := bytes.NewReader(raw)
	var rerr error
	read := func() uint64 {
		if rerr != nil {
			return 0
		}
		var v uint64
		v, rerr = binary.ReadUvarint(r)
		return v
	}

	n := read()
	if n > uint64(len(raw)) {
		return nil, fmt.Errorf("directory claims %d entries in %d bytes", n, len(raw))
	}
	entries := make([]Entry, n)
	var last uint64
	for i := range entries {
		last += read()
		entries[i].TileID = last
	}
	for i := range entries {
		entries[i].RunLength = uint32(read())
	}
	for i := range entries {
		entries[i].Length = uint32(read())
	}
	for i := range entries {
		v := read()
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	if rerr != nil {
		return nil, fmt.Errorf("directory truncated: %w", rerr)
	}
	return entries, nil
}

// compactEntries folds consecutive tile IDs that point at the same data into
// runs. entries must be sorted by TileID with RunLength 1.
func compactEntries(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}
	w := 0
	for _, e := range entries[1:] {
		cur := &entries[w]
		if e.Offset == cur.Offset && e.Length == cur.Length && e.TileID == cur.TileID+uint64(cur.RunLength) {
			cur.RunLength++
			continue
		}
		w++
		entries[w] = e
	}
	return entries[:w+1]
}

// buildDirectories serializes entries into a root directory that fits the
// header's first 16 KiB, spilling into leaf directories when needed.
func buildDirectories(entries []Entry) (root, leaves []byte, err error) {
	root, err = serializeDirectory(entries)
	if err != nil || len(root) <= maxRootSize {
		return root, nil, err
	}

	leafSize := 4096
	for {
		var rootEntries []Entry
		leaves = leaves[:0]
		for chunk := range slices.Chunk(entries, leafSize) {
			leaf, err := serializeDirectory(chunk)
			if err != nil {
				return nil, nil, err
			}
			rootEntries = append(rootEntries, Entry{
				TileID: chunk[0].TileID,
				Offset: uint64(len(leaves)),
				Length: uint32(len(leaf)),
			})
			leaves = append(leaves, leaf...)
		}
		if root, err = serializeDirectory(rootEntries); err != nil {
			return nil, nil, err
		}
		if len(root) <= maxRootSize {
			return root, leaves, nil
		}
		leafSize *= 2
	}
}

// findEntry returns the entry covering id: a tile run or a leaf pointer.
func findEntry(entries []Entry, id uint64) (Entry, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].TileID > id })
	if i == 0 {
		return Entry{}, false
	}
	e := entries[i-1]
	if e.RunLength == 0 || id < e.TileID+uint64(e.RunLength) {
		return e, true
	}
	return Entry{}, false
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
