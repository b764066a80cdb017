package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/exp/constraints"
	"golang.org/x/image/tiff/lzw"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// ErrUnsupported is returned for TIFF features the reader does not decode.
var ErrUnsupported = errors.New("unsupported TIFF feature")

// sampleType describes how one sample is stored.
type sampleType struct {
	bits   int
	format uint16
}

func (s sampleType) bytes() int { return s.bits / 8 }

func (s sampleType) String() string {
	switch s.format {
	case sampleInt:
		return fmt.Sprintf("int%d", s.bits)
	case sampleIEEEFloat:
		return fmt.Sprintf("float%d", s.bits)
	default:
		return fmt.Sprintf("uint%d", s.bits)
	}
}

// sampleTypeOf validates the sample layout of ifd. All samples of a pixel
// must share one type.
func sampleTypeOf(ifd *IFD) (sampleType, error) {
	if len(ifd.BitsPerSample) == 0 {
		return sampleType{}, fmt.Errorf("%w: missing BitsPerSample", ErrUnsupported)
	}
	st := sampleType{bits: int(ifd.BitsPerSample[0]), format: sampleUint}
	if len(ifd.SampleFormat) > 0 {
		st.format = ifd.SampleFormat[0]
	}
	for _, b := range ifd.BitsPerSample[1:] {
		if int(b) != st.bits {
			return sampleType{}, fmt.Errorf("%w: mixed bits per sample %v", ErrUnsupported, ifd.BitsPerSample)
		}
	}
	for _, f := range ifd.SampleFormat {
		if f != st.format {
			return sampleType{}, fmt.Errorf("%w: mixed sample formats %v", ErrUnsupported, ifd.SampleFormat)
		}
	}

	switch st.format {
	case sampleUint, sampleInt:
		if st.bits == 8 || st.bits == 16 || st.bits == 32 {
			return st, nil
		}
	case sampleIEEEFloat:
		if st.bits == 32 || st.bits == 64 {
			return st, nil
		}
	}
	return sampleType{}, fmt.Errorf("%w: %d-bit samples with format %d", ErrUnsupported, st.bits, st.format)
}

// decompress expands one chunk.
func decompress(compression uint16, data []byte) ([]byte, error) {
	switch compression {
	case compNone:
		return data, nil
	case compLZW:
		rc := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer rc.Close()
		out, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("LZW: %w", err)
		}
		return out, nil
	case compDeflate, compDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return out, nil
	case compJPEG:
		return nil, fmt.Errorf("%w: JPEG compression is lossy and not read as numeric data", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, compression)
	}
}

// undoHorizontalPredictor reverses TIFF predictor 2 in place. Each row of
// width pixels of spp samples is a running difference per sample.
func undoHorizontalPredictor(buf []byte, bo binary.ByteOrder, st sampleType, width, spp, rows int) error {
	if st.format == sampleIEEEFloat {
		return fmt.Errorf("%w: horizontal predictor on float samples", ErrUnsupported)
	}
	nb := st.bytes()
	rowLen := width * spp * nb
	if len(buf) < rowLen*rows {
		return fmt.Errorf("chunk has %d bytes, want %d", len(buf), rowLen*rows)
	}
	for r := 0; r < rows; r++ {
		row := buf[r*rowLen : (r+1)*rowLen]
		switch nb {
		case 1:
			for i := spp; i < len(row); i++ {
				row[i] += row[i-spp]
			}
		case 2:
			for i := spp * 2; i < len(row); i += 2 {
				bo.PutUint16(row[i:], bo.Uint16(row[i:])+bo.Uint16(row[i-spp*2:]))
			}
		case 4:
			for i := spp * 4; i < len(row); i += 4 {
				bo.PutUint32(row[i:], bo.Uint32(row[i:])+bo.Uint32(row[i-spp*4:]))
			}
		}
	}
	return nil
}

// toFloats converts n raw samples to float64.
func toFloats(buf []byte, bo binary.ByteOrder, st sampleType, n int) ([]float64, error) {
	nb := st.bytes()
	if len(buf) < n*nb {
		return nil, fmt.Errorf("chunk has %d bytes, want %d", len(buf), n*nb)
	}
	buf = buf[:n*nb]
	switch {
	case st.format == sampleUint && nb == 1:
		return decodeSamples[uint8](buf, bo, n)
	case st.format == sampleInt && nb == 1:
		return decodeSamples[int8](buf, bo, n)
	case st.format == sampleUint && nb == 2:
		return decodeSamples[uint16](buf, bo, n)
	case st.format == sampleInt && nb == 2:
		return decodeSamples[int16](buf, bo, n)
	case st.format == sampleUint && nb == 4:
		return decodeSamples[uint32](buf, bo, n)
	case st.format == sampleInt && nb == 4:
		return decodeSamples[int32](buf, bo, n)
	case st.format == sampleIEEEFloat && nb == 4:
		return decodeSamples[float32](buf, bo, n)
	case st.format == sampleIEEEFloat && nb == 8:
		return decodeSamples[float64](buf, bo, n)
	}
	return nil, fmt.Errorf("%w: %v samples", ErrUnsupported, st)
}

// decodeSamples reads n samples of type T and widens them to float64.
func decodeSamples[T constraints.Integer | constraints.Float](buf []byte, bo binary.ByteOrder, n int) ([]float64, error) {
	typed := make([]T, n)
	if _, err := binary.Decode(buf, bo, typed); err != nil {
		return nil, fmt.Errorf("decoding %T samples: %w", typed, err)
	}
	b, err := raster.FromSamples(1, n, 1, typed)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}
