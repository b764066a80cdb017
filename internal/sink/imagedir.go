package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pspoerri/rasterpyramid/internal/render"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// ImageDir renders each record and writes it under root following a path
// pattern, with the encoder's file extension appended. Safe for concurrent
// use.
type ImageDir struct {
	root    string
	pattern Pattern
	r       *render.Renderer
	n       atomic.Int64
}

// NewImageDir validates pattern and creates root. An empty pattern means
// DefaultPattern.
func NewImageDir(root, pattern string, r *render.Renderer) (*ImageDir, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	p, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &ImageDir{root: root, pattern: p, r: r}, nil
}

// Path returns where the tile at a is written.
func (d *ImageDir) Path(a tile.Address) string {
	return filepath.Join(d.root, filepath.FromSlash(d.pattern.Expand(a))) + d.r.Encoder().FileExtension()
}

func (d *ImageDir) WriteRecord(rec tile.Record) error {
	data, err := d.r.Encode(rec)
	if err != nil {
		return err
	}
	p := d.Path(rec.Addr)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return err
	}
	d.n.Add(1)
	return nil
}

// Len returns the number of tiles written.
func (d *ImageDir) Len() int { return int(d.n.Load()) }

func (d *ImageDir) Close() error { return nil }
