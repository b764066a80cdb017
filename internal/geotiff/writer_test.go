package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// fixture describes a synthetic GeoTIFF written by writeFixture.
type fixture struct {
	bo           binary.ByteOrder
	big          bool
	width        int
	height       int
	bands        int
	bits         int
	format       uint16
	tile         int // 0 writes strips
	rowsPerStrip int
	planar       bool
	compression  uint16
	predictor    bool
	sparse       map[int]bool // chunk indices written with a zero byte count

	geo          bool
	epsg         int
	pixelIsPoint bool
	originX      float64
	originY      float64
	pixel        float64
	nodata       string

	value func(b, x, y int) float64
}

func (f fixture) chunkDims() (cw, ch int) {
	if f.tile > 0 {
		return f.tile, f.tile
	}
	rps := f.rowsPerStrip
	if rps <= 0 || rps > f.height {
		rps = f.height
	}
	return f.width, rps
}

func (f fixture) putSample(buf []byte, v float64) []byte {
	var b [8]byte
	switch {
	case f.format == sampleIEEEFloat && f.bits == 32:
		f.bo.PutUint32(b[:], math.Float32bits(float32(v)))
	case f.format == sampleIEEEFloat && f.bits == 64:
		f.bo.PutUint64(b[:], math.Float64bits(v))
	case f.bits == 8:
		b[0] = byte(int64(v))
	case f.bits == 16:
		f.bo.PutUint16(b[:], uint16(int64(v)))
	case f.bits == 32:
		f.bo.PutUint32(b[:], uint32(int64(v)))
	}
	return append(buf, b[:f.bits/8]...)
}

// chunk encodes one tile or strip before compression.
func (f fixture) chunk(plane, row, col int) []byte {
	cw, ch := f.chunkDims()
	rows := ch
	if f.tile == 0 {
		rows = min(ch, f.height-row*ch)
	}
	spp := f.bands
	if f.planar {
		spp = 1
	}
	var out []byte
	for ly := 0; ly < rows; ly++ {
		for lx := 0; lx < cw; lx++ {
			x, y := col*cw+lx, row*ch+ly
			for s := 0; s < spp; s++ {
				b := s
				if f.planar {
					b = plane
				}
				v := 0.0
				if x < f.width && y < f.height {
					v = f.value(b, x, y)
				}
				out = f.putSample(out, v)
			}
		}
	}
	if f.predictor {
		nb := f.bits / 8
		rowLen := cw * spp * nb
		for r := 0; r < rows; r++ {
			line := out[r*rowLen : (r+1)*rowLen]
			for i := len(line) - nb; i >= spp*nb; i -= nb {
				switch nb {
				case 1:
					line[i] -= line[i-spp]
				case 2:
					f.bo.PutUint16(line[i:], f.bo.Uint16(line[i:])-f.bo.Uint16(line[i-spp*2:]))
				case 4:
					f.bo.PutUint32(line[i:], f.bo.Uint32(line[i:])-f.bo.Uint32(line[i-spp*4:]))
				}
			}
		}
	}
	if f.compression == compDeflate {
		var zb bytes.Buffer
		zw := zlib.NewWriter(&zb)
		zw.Write(out)
		zw.Close()
		return zb.Bytes()
	}
	return out
}

type fixtureEntry struct {
	tag   uint16
	dt    uint16
	count int
	data  []byte
}

func (f fixture) shorts(vs ...uint16) []byte {
	out := make([]byte, 2*len(vs))
	for i, v := range vs {
		f.bo.PutUint16(out[i*2:], v)
	}
	return out
}

func (f fixture) doubles(vs ...float64) []byte {
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		f.bo.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func (f fixture) offsets(vs []uint64) (uint16, []byte) {
	if f.big {
		out := make([]byte, 8*len(vs))
		for i, v := range vs {
			f.bo.PutUint64(out[i*8:], v)
		}
		return dtLong8, out
	}
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		f.bo.PutUint32(out[i*4:], uint32(v))
	}
	return dtLong, out
}

func (f fixture) appendUint(buf []byte, size int, v uint64) []byte {
	b := make([]byte, size)
	switch size {
	case 2:
		f.bo.PutUint16(b, uint16(v))
	case 4:
		f.bo.PutUint32(b, uint32(v))
	default:
		f.bo.PutUint64(b, v)
	}
	return append(buf, b...)
}

func (f fixture) encode() []byte {
	if f.bo == nil {
		f.bo = binary.LittleEndian
	}
	if f.compression == 0 {
		f.compression = compNone
	}

	headerLen := 8
	if f.big {
		headerLen = 16
	}
	body := make([]byte, headerLen)

	cw, ch := f.chunkDims()
	across := (f.width + cw - 1) / cw
	down := (f.height + ch - 1) / ch
	planes := 1
	if f.planar {
		planes = f.bands
	}
	var offs, counts []uint64
	for p := 0; p < planes; p++ {
		for r := 0; r < down; r++ {
			for c := 0; c < across; c++ {
				idx := p*across*down + r*across + c
				if f.sparse[idx] {
					offs = append(offs, 0)
					counts = append(counts, 0)
					continue
				}
				data := f.chunk(p, r, c)
				offs = append(offs, uint64(len(body)))
				counts = append(counts, uint64(len(data)))
				body = append(body, data...)
			}
		}
	}
	if len(body)%2 == 1 {
		body = append(body, 0)
	}

	bps := make([]uint16, f.bands)
	sf := make([]uint16, f.bands)
	for i := range bps {
		bps[i] = uint16(f.bits)
		sf[i] = f.format
		if sf[i] == 0 {
			sf[i] = sampleUint
		}
	}
	planar := uint16(planarChunky)
	if f.planar {
		planar = planarSeparate
	}
	predictor := uint16(predictorNone)
	if f.predictor {
		predictor = predictorHoriz
	}

	entries := []fixtureEntry{
		{tagImageWidth, dtShort, 1, f.shorts(uint16(f.width))},
		{tagImageLength, dtShort, 1, f.shorts(uint16(f.height))},
		{tagBitsPerSample, dtShort, f.bands, f.shorts(bps...)},
		{tagCompression, dtShort, 1, f.shorts(f.compression)},
		{tagPhotometric, dtShort, 1, f.shorts(1)},
		{tagSamplesPerPixel, dtShort, 1, f.shorts(uint16(f.bands))},
		{tagPlanarConfig, dtShort, 1, f.shorts(planar)},
		{tagPredictor, dtShort, 1, f.shorts(predictor)},
		{tagSampleFormat, dtShort, f.bands, f.shorts(sf...)},
	}
	odt, ob := f.offsets(offs)
	cdt, cb := f.offsets(counts)
	if f.tile > 0 {
		entries = append(entries,
			fixtureEntry{tagTileWidth, dtShort, 1, f.shorts(uint16(f.tile))},
			fixtureEntry{tagTileLength, dtShort, 1, f.shorts(uint16(f.tile))},
			fixtureEntry{tagTileOffsets, odt, len(offs), ob},
			fixtureEntry{tagTileByteCounts, cdt, len(counts), cb},
		)
	} else {
		entries = append(entries,
			fixtureEntry{tagStripOffsets, odt, len(offs), ob},
			fixtureEntry{tagRowsPerStrip, dtShort, 1, f.shorts(uint16(ch))},
			fixtureEntry{tagStripByteCounts, cdt, len(counts), cb},
		)
	}
	if f.geo {
		rasterType := uint16(rasterPixelIsArea)
		if f.pixelIsPoint {
			rasterType = rasterPixelIsPoint
		}
		crsKey := uint16(gkProjectedCSType)
		if f.epsg == 4326 {
			crsKey = gkGeographicType
		}
		entries = append(entries,
			fixtureEntry{tagModelPixelScale, dtDouble, 3, f.doubles(f.pixel, f.pixel, 0)},
			fixtureEntry{tagModelTiepoint, dtDouble, 6, f.doubles(0, 0, 0, f.originX, f.originY, 0)},
			fixtureEntry{tagGeoKeyDirectory, dtShort, 16, f.shorts(
				1, 1, 0, 3,
				gkModelType, 0, 1, 1,
				gkRasterType, 0, 1, rasterType,
				crsKey, 0, 1, uint16(f.epsg),
			)},
		)
	}
	if f.nodata != "" {
		s := append([]byte(f.nodata), 0)
		entries = append(entries, fixtureEntry{tagGDALNoData, dtASCII, len(s), s})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	entryLen, countLen, inline := 12, 2, 4
	if f.big {
		entryLen, countLen, inline = 20, 8, 8
	}
	ifdOff := len(body)
	extraOff := ifdOff + countLen + len(entries)*entryLen + inline
	var ifd, extra []byte
	if f.big {
		ifd = f.appendUint(ifd, 8, uint64(len(entries)))
	} else {
		ifd = f.appendUint(ifd, 2, uint64(len(entries)))
	}
	for _, e := range entries {
		ifd = f.appendUint(ifd, 2, uint64(e.tag))
		ifd = f.appendUint(ifd, 2, uint64(e.dt))
		if f.big {
			ifd = f.appendUint(ifd, 8, uint64(e.count))
		} else {
			ifd = f.appendUint(ifd, 4, uint64(e.count))
		}
		val := make([]byte, inline)
		if len(e.data) <= inline {
			copy(val, e.data)
		} else {
			off := uint64(extraOff + len(extra))
			if f.big {
				f.bo.PutUint64(val, off)
			} else {
				f.bo.PutUint32(val, uint32(off))
			}
			extra = append(extra, e.data...)
			if len(extra)%2 == 1 {
				extra = append(extra, 0)
			}
		}
		ifd = append(ifd, val...)
	}
	ifd = append(ifd, make([]byte, inline)...) // no next IFD

	if f.bo == binary.LittleEndian {
		copy(body, "II")
	} else {
		copy(body, "MM")
	}
	if f.big {
		f.bo.PutUint16(body[2:], 43)
		f.bo.PutUint16(body[4:], 8)
		f.bo.PutUint64(body[8:], uint64(ifdOff))
	} else {
		f.bo.PutUint16(body[2:], 42)
		f.bo.PutUint32(body[4:], uint32(ifdOff))
	}
	body = append(body, ifd...)
	return append(body, extra...)
}

// writeFixture writes f into dir and returns its path.
func writeFixture(t *testing.T, dir, name string, f fixture) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, f.encode(), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// writeTFW writes a world file next to tiffPath. originX/originY are the
// outer corner of the upper-left pixel.
func writeTFW(t *testing.T, tiffPath string, originX, originY, pixel, rotation float64) {
	t.Helper()
	ext := filepath.Ext(tiffPath)
	content := fmt.Sprintf("%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n",
		pixel, rotation, 0.0, -pixel, originX+pixel/2, originY-pixel/2)
	if err := os.WriteFile(tiffPath[:len(tiffPath)-len(ext)]+".tfw", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
