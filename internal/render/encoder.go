package render

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"
)

// Encoder turns a rendered tile into file bytes.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)

	// Format is the canonical format name: png, jpeg, webp or terrarium.
	Format() string

	// FileExtension includes the leading dot.
	FileExtension() string
}

// Formats lists the names NewEncoder accepts.
var Formats = []string{"png", "jpeg", "jpg", "webp", "terrarium"}

// NewEncoder returns the encoder for format. quality applies to lossy
// formats and defaults to 85.
func NewEncoder(format string, quality int) (Encoder, error) {
	if quality <= 0 {
		quality = 85
	}
	switch format {
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return &WebPEncoder{Quality: quality}, nil
	case "terrarium":
		return &TerrariumEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported tile format: %q (supported: jpeg, png, webp, terrarium)", format)
	}
}

// PNGEncoder encodes tiles as PNG.
type PNGEncoder struct{}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) { return encodePNG(img) }
func (e *PNGEncoder) Format() string                         { return "png" }
func (e *PNGEncoder) FileExtension() string                  { return ".png" }

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JPEGEncoder encodes tiles as JPEG. Transparency is lost.
type JPEGEncoder struct {
	Quality int // 1-100
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *JPEGEncoder) Format() string       { return "jpeg" }
func (e *JPEGEncoder) FileExtension() string { return ".jpg" }

// WebPEncoder encodes tiles as lossy WebP. The codec runs in WASM, or uses a
// system libwebp through purego when one is installed.
type WebPEncoder struct {
	Quality int
}

func (e *WebPEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: e.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) Format() string       { return "webp" }
func (e *WebPEncoder) FileExtension() string { return ".webp" }

// DecodeImage decodes tile bytes written by the encoder for format.
func DecodeImage(data []byte, format string) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case "png", "terrarium":
		return png.Decode(r)
	case "jpeg", "jpg":
		return jpeg.Decode(r)
	case "webp":
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported decode format: %q", format)
	}
}
