package sink

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pspoerri/rasterpyramid/internal/render"
	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// MBTiles renders records into an MBTiles (SQLite) archive. Rows are stored
// in TMS order as the format requires. Safe for concurrent use.
type MBTiles struct {
	db     *sql.DB
	tx     *sql.Tx
	stmt   *sql.Stmt
	r      *render.Renderer
	conv   tile.Convention
	meta   map[string]string
	logger *slog.Logger

	mu     sync.Mutex
	extent tile.Extent
	n      int
	closed bool
}

type mbtilesConfig struct {
	meta   map[string]string
	logger *slog.Logger
}

// MBTilesOption configures NewMBTiles.
type MBTilesOption func(*mbtilesConfig)

// WithMetadata adds metadata rows. Keys derived from the tiles (bounds,
// center, minzoom, maxzoom, format) are overwritten.
func WithMetadata(m map[string]string) MBTilesOption {
	return func(c *mbtilesConfig) {
		for k, v := range m {
			c.meta[k] = v
		}
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(l *slog.Logger) MBTilesOption {
	return func(c *mbtilesConfig) { c.logger = l }
}

// NewMBTiles creates the archive at path. conv is the convention of the
// records that will be written.
func NewMBTiles(path string, r *render.Renderer, conv tile.Convention, opts ...MBTilesOption) (_ *MBTiles, err error) {
	cfg := mbtilesConfig{
		meta:   map[string]string{"name": "rasterpyramid", "type": "overlay", "version": "1.3"},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(&cfg)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(`
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE tiles (
			zoom_level INTEGER,
			tile_column INTEGER,
			tile_row INTEGER,
			tile_data BLOB
		);
	`); err != nil {
		return nil, fmt.Errorf("creating mbtiles schema: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	stmt, err := tx.Prepare("INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &MBTiles{db: db, tx: tx, stmt: stmt, r: r, conv: conv, meta: cfg.meta, logger: cfg.logger}, nil
}

// Format returns the MBTiles format name for an encoder format.
func Format(encoder string) string {
	switch encoder {
	case "jpeg", "jpg":
		return "jpg"
	case "terrarium":
		return "png"
	}
	return encoder
}

func (m *MBTiles) WriteRecord(rec tile.Record) error {
	data, err := m.r.Encode(rec)
	if err != nil {
		return err
	}
	a := toXYZ(rec.Addr, m.conv)
	row := a.Flip().Y

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("mbtiles: write after close")
	}
	if _, err := m.stmt.Exec(a.Z, a.X, row, data); err != nil {
		return fmt.Errorf("inserting tile %s: %w", a, err)
	}
	m.extent.Add(a)
	m.n++
	return nil
}

// Len returns the number of tiles written.
func (m *MBTiles) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// Close writes the metadata, indexes the tiles and closes the database.
func (m *MBTiles) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	err := m.finish()
	if err != nil {
		m.tx.Rollback()
	}
	return errors.Join(err, m.db.Close())
}

func (m *MBTiles) finish() error {
	if err := m.stmt.Close(); err != nil {
		return err
	}
	m.meta["format"] = Format(m.r.Encoder().Format())
	if !m.extent.Empty() {
		e := &m.extent
		lon, lat, z := e.Center()
		m.meta["bounds"] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", e.MinLon, e.MinLat, e.MaxLon, e.MaxLat)
		m.meta["center"] = fmt.Sprintf("%.6f,%.6f,%d", lon, lat, z)
		m.meta["minzoom"] = strconv.Itoa(e.MinZoom)
		m.meta["maxzoom"] = strconv.Itoa(e.MaxZoom)
	}
	for k, v := range m.meta {
		if _, err := m.tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("writing metadata %s: %w", k, err)
		}
	}
	if err := m.tx.Commit(); err != nil {
		return err
	}
	m.logger.Info("mbtiles: creating index", "tiles", m.n, "metadata", len(m.meta))
	if _, err := m.db.Exec("CREATE UNIQUE INDEX tile_index ON tiles (zoom_level, tile_column, tile_row)"); err != nil {
		return fmt.Errorf("indexing tiles: %w", err)
	}
	return nil
}
