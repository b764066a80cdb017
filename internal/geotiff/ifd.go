package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// TIFF tag IDs.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
	tagGDALNoData          = 42113
)

// TIFF data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndef     = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtIFD       = 13
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

// Compression schemes.
const (
	compNone        = 1
	compLZW         = 5
	compJPEG        = 7
	compDeflate     = 8
	compDeflateOld  = 32946
	compPackBits    = 32773
	planarChunky    = 1
	planarSeparate  = 2
	predictorNone   = 1
	predictorHoriz  = 2
	predictorFloat  = 3
	sampleUint      = 1
	sampleInt       = 2
	sampleIEEEFloat = 3
)

// IFD is a parsed TIFF Image File Directory. Strip images are described
// with the same fields as tiled ones: a strip is a chunk TileWidth = Width
// pixels wide and RowsPerStrip rows high.
type IFD struct {
	Width           uint32
	Height          uint32
	TileWidth       uint32
	TileHeight      uint32
	RowsPerStrip    uint32
	Tiled           bool
	BitsPerSample   []uint16
	SampleFormat    []uint16
	SamplesPerPixel uint16
	Compression     uint16
	Photometric     uint16
	PlanarConfig    uint16
	Predictor       uint16
	Offsets         []uint64
	ByteCounts      []uint64
	ModelTiepoint   []float64
	ModelPixelScale []float64
	ModelTransform  []float64
	GeoKeys         []uint16
	GeoDoubleParams []float64
	GeoASCIIParams  string
	NoData          string
}

// ChunkSize returns the pixel dimensions of one tile or strip.
func (ifd *IFD) ChunkSize() (w, h int) {
	if ifd.Tiled {
		return int(ifd.TileWidth), int(ifd.TileHeight)
	}
	rps := ifd.RowsPerStrip
	if rps == 0 || rps > ifd.Height {
		rps = ifd.Height
	}
	return int(ifd.Width), int(rps)
}

// ChunksAcross returns the number of chunks in the horizontal direction.
func (ifd *IFD) ChunksAcross() int {
	w, _ := ifd.ChunkSize()
	return (int(ifd.Width) + w - 1) / w
}

// ChunksDown returns the number of chunks in the vertical direction.
func (ifd *IFD) ChunksDown() int {
	_, h := ifd.ChunkSize()
	return (int(ifd.Height) + h - 1) / h
}

// tiffEntry is a raw TIFF directory entry.
type tiffEntry struct {
	Tag      uint16
	DataType uint16
	Count    uint64
	Value    []byte
}

// parseTIFF reads all IFDs from a TIFF or BigTIFF stream.
func parseTIFF(r io.ReadSeeker) ([]IFD, binary.ByteOrder, bool, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, nil, false, fmt.Errorf("reading TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, false, fmt.Errorf("invalid TIFF byte order: %x", header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	isBigTIFF := magic == 43
	if magic != 42 && magic != 43 {
		return nil, nil, false, fmt.Errorf("invalid TIFF magic: %d", magic)
	}

	var offset uint64
	if isBigTIFF {
		// Bytes 4-5 hold the offset size (8), 6-7 are zero, 8-15 the first IFD offset.
		var bigHeader [8]byte
		if _, err := io.ReadFull(r, bigHeader[:]); err != nil {
			return nil, nil, false, fmt.Errorf("reading BigTIFF header: %w", err)
		}
		offset = bo.Uint64(bigHeader[:])
	} else {
		offset = uint64(bo.Uint32(header[4:8]))
	}

	var ifds []IFD
	seen := make(map[uint64]bool)
	for offset != 0 {
		if seen[offset] {
			return nil, nil, false, fmt.Errorf("IFD loop at offset %d", offset)
		}
		seen[offset] = true
		ifd, next, err := parseOneIFD(r, bo, offset, isBigTIFF)
		if err != nil {
			return nil, nil, false, fmt.Errorf("parsing IFD at offset %d: %w", offset, err)
		}
		ifds = append(ifds, ifd)
		offset = next
	}
	return ifds, bo, isBigTIFF, nil
}

func parseOneIFD(r io.ReadSeeker, bo binary.ByteOrder, offset uint64, bigTIFF bool) (IFD, uint64, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return IFD{}, 0, err
	}

	var numEntries uint64
	if bigTIFF {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return IFD{}, 0, err
		}
		numEntries = bo.Uint64(buf[:])
	} else {
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return IFD{}, 0, err
		}
		numEntries = uint64(bo.Uint16(buf[:]))
	}
	if numEntries > 4096 {
		return IFD{}, 0, fmt.Errorf("implausible entry count %d", numEntries)
	}

	entrySize := 12
	if bigTIFF {
		entrySize = 20
	}
	entries := make([]tiffEntry, numEntries)
	buf := make([]byte, entrySize)
	for i := range entries {
		if _, err := io.ReadFull(r, buf); err != nil {
			return IFD{}, 0, err
		}
		entries[i] = parseTiffEntry(buf, bo, bigTIFF)
	}

	var next uint64
	if bigTIFF {
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return IFD{}, 0, err
		}
		next = bo.Uint64(b[:])
	} else {
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return IFD{}, 0, err
		}
		next = uint64(bo.Uint32(b[:]))
	}

	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i], bigTIFF); err != nil {
			return IFD{}, 0, fmt.Errorf("resolving entry tag %d: %w", entries[i].Tag, err)
		}
	}
	return buildIFD(entries, bo), next, nil
}

func parseTiffEntry(buf []byte, bo binary.ByteOrder, bigTIFF bool) tiffEntry {
	e := tiffEntry{
		Tag:      bo.Uint16(buf[0:2]),
		DataType: bo.Uint16(buf[2:4]),
	}
	if bigTIFF {
		e.Count = bo.Uint64(buf[4:12])
		e.Value = append([]byte(nil), buf[12:20]...)
	} else {
		e.Count = uint64(bo.Uint32(buf[4:8]))
		e.Value = append([]byte(nil), buf[8:12]...)
	}
	return e
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat, dtIFD:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 1
	}
}

// resolveEntry reads the value of an entry that does not fit inline.
func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *tiffEntry, bigTIFF bool) error {
	if e.Count > 1<<28 {
		return fmt.Errorf("implausible value count %d", e.Count)
	}
	totalSize := int(e.Count) * dataTypeSize(e.DataType)

	inlineSize := 4
	if bigTIFF {
		inlineSize = 8
	}
	if totalSize <= inlineSize {
		return nil
	}

	var dataOffset uint64
	if bigTIFF {
		dataOffset = bo.Uint64(e.Value)
	} else {
		dataOffset = uint64(bo.Uint32(e.Value))
	}
	if _, err := r.Seek(int64(dataOffset), io.SeekStart); err != nil {
		return err
	}
	data := make([]byte, totalSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.Value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) IFD {
	ifd := IFD{
		SamplesPerPixel: 1,
		PlanarConfig:    planarChunky,
		Predictor:       predictorNone,
		Compression:     compNone,
	}
	for _, e := range entries {
		switch e.Tag {
		case tagImageWidth:
			ifd.Width = getUint32(e, bo)
		case tagImageLength:
			ifd.Height = getUint32(e, bo)
		case tagTileWidth:
			ifd.TileWidth = getUint32(e, bo)
			ifd.Tiled = true
		case tagTileLength:
			ifd.TileHeight = getUint32(e, bo)
		case tagRowsPerStrip:
			ifd.RowsPerStrip = getUint32(e, bo)
		case tagBitsPerSample:
			ifd.BitsPerSample = getUint16Slice(e, bo)
		case tagSampleFormat:
			ifd.SampleFormat = getUint16Slice(e, bo)
		case tagSamplesPerPixel:
			ifd.SamplesPerPixel = getUint16Val(e, bo)
		case tagCompression:
			ifd.Compression = getUint16Val(e, bo)
		case tagPhotometric:
			ifd.Photometric = getUint16Val(e, bo)
		case tagPlanarConfig:
			ifd.PlanarConfig = getUint16Val(e, bo)
		case tagPredictor:
			ifd.Predictor = getUint16Val(e, bo)
		case tagTileOffsets, tagStripOffsets:
			ifd.Offsets = getUint64Slice(e, bo)
		case tagTileByteCounts, tagStripByteCounts:
			ifd.ByteCounts = getUint64Slice(e, bo)
		case tagModelTiepoint:
			ifd.ModelTiepoint = getFloat64Slice(e, bo)
		case tagModelPixelScale:
			ifd.ModelPixelScale = getFloat64Slice(e, bo)
		case tagModelTransformation:
			ifd.ModelTransform = getFloat64Slice(e, bo)
		case tagGeoKeyDirectory:
			ifd.GeoKeys = getUint16Slice(e, bo)
		case tagGeoDoubleParams:
			ifd.GeoDoubleParams = getFloat64Slice(e, bo)
		case tagGeoASCIIParams:
			ifd.GeoASCIIParams = getASCII(e)
		case tagGDALNoData:
			ifd.NoData = getASCII(e)
		}
	}
	return ifd
}

func getASCII(e tiffEntry) string {
	n := min(int(e.Count), len(e.Value))
	return strings.TrimRight(string(e.Value[:n]), "\x00")
}

func getUint16Val(e tiffEntry, bo binary.ByteOrder) uint16 {
	switch e.DataType {
	case dtShort:
		return bo.Uint16(e.Value)
	case dtLong:
		return uint16(bo.Uint32(e.Value))
	default:
		return uint16(e.Value[0])
	}
}

func getUint32(e tiffEntry, bo binary.ByteOrder) uint32 {
	switch e.DataType {
	case dtShort:
		return uint32(bo.Uint16(e.Value))
	case dtLong:
		return bo.Uint32(e.Value)
	case dtLong8:
		return uint32(bo.Uint64(e.Value))
	default:
		return uint32(e.Value[0])
	}
}

func getUint16Slice(e tiffEntry, bo binary.ByteOrder) []uint16 {
	n := int(e.Count)
	result := make([]uint16, n)
	for i := 0; i < n; i++ {
		if e.DataType == dtByte {
			result[i] = uint16(e.Value[i])
			continue
		}
		result[i] = bo.Uint16(e.Value[i*2 : i*2+2])
	}
	return result
}

func getUint64Slice(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.Count)
	result := make([]uint64, n)
	switch e.DataType {
	case dtLong, dtIFD:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint32(e.Value[i*4 : i*4+4]))
		}
	case dtLong8, dtIFD8:
		for i := 0; i < n; i++ {
			result[i] = bo.Uint64(e.Value[i*8 : i*8+8])
		}
	case dtShort:
		for i := 0; i < n; i++ {
			result[i] = uint64(bo.Uint16(e.Value[i*2 : i*2+2]))
		}
	}
	return result
}

func getFloat64Slice(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.Count)
	result := make([]float64, n)
	for i := 0; i < n; i++ {
		switch e.DataType {
		case dtDouble:
			result[i] = math.Float64frombits(bo.Uint64(e.Value[i*8 : i*8+8]))
		case dtFloat:
			result[i] = float64(math.Float32frombits(bo.Uint32(e.Value[i*4 : i*4+4])))
		}
	}
	return result
}
