package pyramid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/rasterpyramid/internal/tile"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 0, cfg.MinZoom)
	assert.Nil(t, cfg.MaxZoom)
	assert.Equal(t, 30, cfg.ZoomCeiling)
	assert.Equal(t, 256, cfg.TileSize)
	assert.Equal(t, tile.XYZ, cfg.Convention)
	assert.Equal(t, tile.Additive, cfg.Merge)
	assert.Nil(t, cfg.NoData)
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.workers(), 0)
}

func TestConfig_Validate(t *testing.T) {
	zoom := func(z int) *int { return &z }
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative min zoom", func(c *Config) { c.MinZoom = -1 }},
		{"min zoom too deep", func(c *Config) { c.MinZoom = 31 }},
		{"max below min", func(c *Config) { c.MinZoom = 5; c.MaxZoom = zoom(3) }},
		{"max above ceiling", func(c *Config) { c.ZoomCeiling = 10; c.MaxZoom = zoom(12) }},
		{"tiny tiles", func(c *Config) { c.TileSize = 8 }},
		{"negative workers", func(c *Config) { c.Concurrency = -2 }},
		{"unknown policy", func(c *Config) { c.Merge = tile.MergePolicy(7) }},
		{"unknown convention", func(c *Config) { c.Convention = tile.Convention(3) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := NewConfig()
	cfg.MinZoom, cfg.MaxZoom, cfg.TileSize = 2, zoom(14), 512
	assert.NoError(t, cfg.Validate())
}

func TestHilbertSort_SiblingsAdjacent(t *testing.T) {
	var addrs []tile.Address
	for y := 7; y >= 0; y-- {
		for x := 0; x < 8; x++ {
			addrs = append(addrs, tile.Address{Z: 3, X: x, Y: y})
		}
	}
	require.NoError(t, hilbertSort(addrs))

	seen := make(map[tile.Address]bool)
	for _, a := range addrs {
		seen[a] = true
	}
	assert.Len(t, seen, 64)

	for i := 0; i < len(addrs); i += 4 {
		p := addrs[i].Parent()
		for _, a := range addrs[i : i+4] {
			assert.Equal(t, p, a.Parent(), "block at %d", i)
		}
	}
}
