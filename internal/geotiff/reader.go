// Package geotiff reads numeric rasters from GeoTIFF files in Web Mercator.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// Georeferencing sources.
const (
	GeorefGeoKeys   = "geokeys"
	GeorefWorldFile = "worldfile"
)

// Reader provides windowed access to the full-resolution image of a
// GeoTIFF. The file is memory-mapped; reads are safe for concurrent use.
type Reader struct {
	data    []byte
	mapped  bool
	bo      binary.ByteOrder
	bigTIFF bool
	ifds    []IFD
	st      sampleType
	gt      raster.GeoTransform
	epsg    int
	georef  string
	nodata  float64
	hasND   bool
	path    string
	cache   *chunkCache
}

// Open memory-maps a GeoTIFF and parses its structure and georeferencing.
// Rasters in a CRS other than Web Mercator are rejected; an unknown CRS is
// accepted and reported by EPSG as 0.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := fi.Size()
	if size == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	data, mapped, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	r := &Reader{data: data, mapped: mapped, path: path, cache: newChunkCache(0)}
	if err := r.init(); err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) init() error {
	ifds, bo, big, err := parseTIFF(bytes.NewReader(r.data))
	if err != nil {
		return err
	}
	if len(ifds) == 0 {
		return fmt.Errorf("no IFDs found")
	}
	r.ifds, r.bo, r.bigTIFF = ifds, bo, big

	ifd := &r.ifds[0]
	if ifd.Width == 0 || ifd.Height == 0 {
		return fmt.Errorf("empty image %dx%d", ifd.Width, ifd.Height)
	}
	if ifd.Tiled && (ifd.TileWidth == 0 || ifd.TileHeight == 0) {
		return fmt.Errorf("tiled image without tile size")
	}
	if r.st, err = sampleTypeOf(ifd); err != nil {
		return err
	}
	switch ifd.Compression {
	case compNone, compLZW, compDeflate, compDeflateOld:
	default:
		_, err := decompress(ifd.Compression, nil)
		return err
	}
	switch ifd.Predictor {
	case predictorNone:
	case predictorHoriz:
		if r.st.format == sampleIEEEFloat {
			return fmt.Errorf("%w: horizontal predictor on float samples", ErrUnsupported)
		}
	default:
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, ifd.Predictor)
	}
	if ifd.PlanarConfig != planarChunky && ifd.PlanarConfig != planarSeparate {
		return fmt.Errorf("%w: planar configuration %d", ErrUnsupported, ifd.PlanarConfig)
	}
	want := ifd.ChunksAcross() * ifd.ChunksDown() * r.planes()
	if len(ifd.Offsets) < want || len(ifd.ByteCounts) < want {
		return fmt.Errorf("have %d chunk offsets and %d byte counts, want %d", len(ifd.Offsets), len(ifd.ByteCounts), want)
	}

	if gt, ok := geoTransform(ifd); ok {
		r.gt, r.georef = gt, GeorefGeoKeys
		r.epsg = parseEPSG(ifd.GeoKeys)
	} else if p := findTFW(r.path); p != "" {
		tfw, err := parseTFW(p)
		if err != nil {
			return err
		}
		r.gt, r.georef = tfw.GeoTransform(), GeorefWorldFile
		r.epsg = inferEPSG(r.gt, int(ifd.Width), int(ifd.Height))
	} else {
		return fmt.Errorf("no georeferencing (GeoTIFF tags or world file)")
	}
	if err := r.gt.Validate(); err != nil {
		return err
	}
	if r.epsg != 0 && !IsWebMercator(r.epsg) {
		return fmt.Errorf("%w: EPSG:%d, reproject to EPSG:3857 first", ErrUnsupported, r.epsg)
	}

	if r.nodata, r.hasND, err = parseNoData(ifd.NoData); err != nil {
		return err
	}
	return nil
}

// OpenAll opens several files, closing the ones already opened on error.
func OpenAll(paths []string) ([]*Reader, error) {
	readers := make([]*Reader, 0, len(paths))
	for _, p := range paths {
		r, err := Open(p)
		if err != nil {
			for _, rr := range readers {
				rr.Close()
			}
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}

// Close releases the file mapping.
func (r *Reader) Close() error {
	if r.data == nil {
		return nil
	}
	var err error
	if r.mapped {
		err = unmapFile(r.data)
	}
	r.data = nil
	return err
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// Size returns the full-resolution image size.
func (r *Reader) Size() (int, int) { return int(r.ifds[0].Width), int(r.ifds[0].Height) }

// Bands returns the number of samples per pixel.
func (r *Reader) Bands() int { return int(r.ifds[0].SamplesPerPixel) }

// GeoTransform returns the pixel-to-meters transform.
func (r *Reader) GeoTransform() raster.GeoTransform { return r.gt }

// NoDataValue returns the GDAL_NODATA value, if the file declares one.
func (r *Reader) NoDataValue() (float64, bool) { return r.nodata, r.hasND }

// EPSG returns the CRS code, or 0 when unknown.
func (r *Reader) EPSG() int { return r.epsg }

func (r *Reader) planes() int {
	if r.ifds[0].PlanarConfig == planarSeparate {
		return int(r.ifds[0].SamplesPerPixel)
	}
	return 1
}

// ReadWindow decodes the w x h pixels at (x, y) into a band-major buffer.
func (r *Reader) ReadWindow(x, y, w, h int) (*raster.Buffer, error) {
	ifd := &r.ifds[0]
	width, height := int(ifd.Width), int(ifd.Height)
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > width || y+h > height {
		return nil, fmt.Errorf("%s: window (%d, %d, %d, %d) outside %dx%d raster", r.path, x, y, w, h, width, height)
	}

	bands := r.Bands()
	out := raster.NewBuffer(bands, w, h)
	cw, ch := ifd.ChunkSize()
	across, down := ifd.ChunksAcross(), ifd.ChunksDown()
	planes := r.planes()
	spp := bands
	if planes > 1 {
		spp = 1
	}

	for plane := 0; plane < planes; plane++ {
		for row := y / ch; row <= (y+h-1)/ch; row++ {
			for col := x / cw; col <= (x+w-1)/cw; col++ {
				idx := plane*across*down + row*across + col
				samples, err := r.chunk(idx, row)
				if err != nil {
					return nil, err
				}

				x0, x1 := max(x, col*cw), min(x+w, (col+1)*cw)
				y0, y1 := max(y, row*ch), min(y+h, (row+1)*ch)
				for py := y0; py < y1; py++ {
					ly := py - row*ch
					for px := x0; px < x1; px++ {
						base := (ly*cw + px - col*cw) * spp
						if planes > 1 {
							out.Set(plane, py-y, px-x, samples[base])
							continue
						}
						for b := 0; b < bands; b++ {
							out.Set(b, py-y, px-x, samples[base+b])
						}
					}
				}
			}
		}
	}
	return out, nil
}

// chunk returns the decoded samples of tile or strip idx, which lies in
// chunk row row.
func (r *Reader) chunk(idx, row int) ([]float64, error) {
	if s := r.cache.get(idx); s != nil {
		return s, nil
	}
	ifd := &r.ifds[0]
	cw, ch := ifd.ChunkSize()
	rows := ch
	if !ifd.Tiled {
		rows = min(ch, int(ifd.Height)-row*ch)
	}
	spp := r.Bands()
	if r.planes() > 1 {
		spp = 1
	}
	n := cw * rows * spp

	off, cnt := ifd.Offsets[idx], ifd.ByteCounts[idx]
	if cnt == 0 {
		// Sparse chunk.
		s := make([]float64, n)
		r.cache.put(idx, s)
		return s, nil
	}
	end := off + cnt
	if end > uint64(len(r.data)) || end < off {
		return nil, fmt.Errorf("%s: chunk %d data [%d:%d] exceeds file size %d", r.path, idx, off, end, len(r.data))
	}

	raw, err := decompress(ifd.Compression, r.data[off:end])
	if err != nil {
		return nil, fmt.Errorf("%s: chunk %d: %w", r.path, idx, err)
	}
	if ifd.Predictor == predictorHoriz {
		if ifd.Compression == compNone {
			// The mapping is read-only.
			raw = append([]byte(nil), raw...)
		}
		if err := undoHorizontalPredictor(raw, r.bo, r.st, cw, spp, rows); err != nil {
			return nil, fmt.Errorf("%s: chunk %d: %w", r.path, idx, err)
		}
	}
	s, err := toFloats(raw, r.bo, r.st, n)
	if err != nil {
		return nil, fmt.Errorf("%s: chunk %d: %w", r.path, idx, err)
	}
	r.cache.put(idx, s)
	return s, nil
}

// Info summarizes the file structure for reporting.
type Info struct {
	Path         string
	Width        int
	Height       int
	Bands        int
	SampleType   string
	Compression  uint16
	Tiled        bool
	ChunkWidth   int
	ChunkHeight  int
	Planar       bool
	BigTIFF      bool
	Overviews    int
	EPSG         int
	Georef       string
	GeoTransform raster.GeoTransform
	NoData       *float64
}

// Info describes the opened file.
func (r *Reader) Info() Info {
	ifd := &r.ifds[0]
	cw, ch := ifd.ChunkSize()
	info := Info{
		Path:         r.path,
		Width:        int(ifd.Width),
		Height:       int(ifd.Height),
		Bands:        r.Bands(),
		SampleType:   r.st.String(),
		Compression:  ifd.Compression,
		Tiled:        ifd.Tiled,
		ChunkWidth:   cw,
		ChunkHeight:  ch,
		Planar:       r.planes() > 1,
		BigTIFF:      r.bigTIFF,
		Overviews:    len(r.ifds) - 1,
		EPSG:         r.epsg,
		Georef:       r.georef,
		GeoTransform: r.gt,
	}
	if r.hasND {
		v := r.nodata
		info.NoData = &v
	}
	return info
}

// CompressionName returns a readable name for a TIFF compression code.
func CompressionName(c uint16) string {
	switch c {
	case compNone:
		return "none"
	case compLZW:
		return "LZW"
	case compJPEG:
		return "JPEG"
	case compDeflate, compDeflateOld:
		return "deflate"
	case compPackBits:
		return "PackBits"
	default:
		return fmt.Sprintf("%d", c)
	}
}
