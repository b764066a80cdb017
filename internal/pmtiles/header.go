// Package pmtiles writes and reads PMTiles v3 archives: a 127-byte header,
// gzip-compressed Hilbert-ordered directories, JSON metadata and the tile
// data, all in one file.
package pmtiles

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PMTiles v3 constants.
const (
	HeaderSize = 127

	// The root directory must end within the first 16 KiB.
	maxRootSize = 16<<10 - HeaderSize

	CompressionNone = 1
	CompressionGzip = 2

	TileTypeUnknown = 0
	TileTypePNG     = 2
	TileTypeJPEG    = 3
	TileTypeWebP    = 4
)

var ErrInvalidHeader = errors.New("pmtiles: invalid header")

// Header is the fixed-size archive header. Coordinates are WGS84 degrees.
type Header struct {
	RootDirOffset       uint64
	RootDirLength       uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirOffset       uint64
	LeafDirLength       uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	NumAddressedTiles   uint64
	NumTileEntries      uint64
	NumTileContents     uint64
	Clustered           bool
	InternalCompression uint8
	TileCompression     uint8
	TileType            uint8
	MinZoom             uint8
	MaxZoom             uint8
	MinLon, MinLat      float64
	MaxLon, MaxLat      float64
	CenterZoom          uint8
	CenterLon           float64
	CenterLat           float64
}

// Serialize encodes the 127-byte header.
func (h *Header) Serialize() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, "PMTiles"...)
	buf = append(buf, 3)
	for _, v := range []uint64{
		h.RootDirOffset, h.RootDirLength, h.MetadataOffset, h.MetadataLength,
		h.LeafDirOffset, h.LeafDirLength, h.TileDataOffset, h.TileDataLength,
		h.NumAddressedTiles, h.NumTileEntries, h.NumTileContents,
	} {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	var clustered uint8
	if h.Clustered {
		clustered = 1
	}
	buf = append(buf, clustered, h.InternalCompression, h.TileCompression, h.TileType, h.MinZoom, h.MaxZoom)
	for _, v := range []float64{h.MinLon, h.MinLat, h.MaxLon, h.MaxLat} {
		buf = binary.LittleEndian.AppendUint32(buf, toE7(v))
	}
	buf = append(buf, h.CenterZoom)
	buf = binary.LittleEndian.AppendUint32(buf, toE7(h.CenterLon))
	buf = binary.LittleEndian.AppendUint32(buf, toE7(h.CenterLat))
	return buf
}

// DeserializeHeader parses a v3 header.
func DeserializeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(buf))
	}
	if string(buf[:7]) != "PMTiles" {
		return h, fmt.Errorf("%w: bad magic", ErrInvalidHeader)
	}
	if buf[7] != 3 {
		return h, fmt.Errorf("%w: version %d", ErrInvalidHeader, buf[7])
	}
	u64 := func(i int) uint64 { return binary.LittleEndian.Uint64(buf[8+8*i:]) }
	h.RootDirOffset, h.RootDirLength = u64(0), u64(1)
	h.MetadataOffset, h.MetadataLength = u64(2), u64(3)
	h.LeafDirOffset, h.LeafDirLength = u64(4), u64(5)
	h.TileDataOffset, h.TileDataLength = u64(6), u64(7)
	h.NumAddressedTiles, h.NumTileEntries, h.NumTileContents = u64(8), u64(9), u64(10)
	h.Clustered = buf[96] == 1
	h.InternalCompression, h.TileCompression, h.TileType = buf[97], buf[98], buf[99]
	h.MinZoom, h.MaxZoom = buf[100], buf[101]
	e7 := func(off int) float64 { return fromE7(binary.LittleEndian.Uint32(buf[off:])) }
	h.MinLon, h.MinLat, h.MaxLon, h.MaxLat = e7(102), e7(106), e7(110), e7(114)
	h.CenterZoom = buf[118]
	h.CenterLon, h.CenterLat = e7(119), e7(123)
	return h, nil
}

func toE7(v float64) uint32 { return uint32(int32(math.Round(v * 1e7))) }

func fromE7(v uint32) float64 { return float64(int32(v)) / 1e7 }
