package geotiff

import "sync"

// chunkCache keeps recently decoded tiles or strips of one file so that
// neighbouring windows do not decompress the same chunk again. Eviction is
// first-in first-out.
type chunkCache struct {
	mu      sync.Mutex
	entries map[int][]float64
	order   []int
	maxSize int
}

func newChunkCache(maxEntries int) *chunkCache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &chunkCache{
		entries: make(map[int][]float64, maxEntries),
		order:   make([]int, 0, maxEntries),
		maxSize: maxEntries,
	}
}

// get returns the decoded samples of chunk idx, or nil.
func (c *chunkCache) get(idx int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[idx]
}

// put stores a decoded chunk, evicting the oldest entry if full.
func (c *chunkCache) put(idx int, samples []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[idx]; ok {
		return
	}
	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[idx] = samples
	c.order = append(c.order, idx)
}

func (c *chunkCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
