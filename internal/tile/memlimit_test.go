package tile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBudget(t *testing.T) {
	limit, ok := storeBudget(16<<30, 512<<20, 0.75)
	require.True(t, ok)
	assert.Equal(t, int64(12<<30-512<<20-1<<30), limit)

	_, ok = storeBudget(1<<30, 0, 0.75)
	assert.False(t, ok, "ceiling below the reserve")
	_, ok = storeBudget(2<<30, 700<<20, 0.75)
	assert.False(t, ok, "budget under the minimum")
}

func TestParseMemTotal(t *testing.T) {
	meminfo := "MemFree:         1024 kB\nMemTotal:       16318540 kB\nBuffers:  12 kB\n"
	got, err := parseMemTotal(strings.NewReader(meminfo))
	require.NoError(t, err)
	assert.Equal(t, uint64(16318540)<<10, got)

	_, err = parseMemTotal(strings.NewReader("MemFree: 1 kB\n"))
	assert.ErrorIs(t, err, errNoMemoryInfo)
	_, err = parseMemTotal(strings.NewReader("MemTotal: lots\n"))
	assert.Error(t, err)
}

func TestParseCgroupLimit(t *testing.T) {
	lim, ok, err := parseCgroupLimit("2147483648\n")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2<<30), lim)

	_, ok, err = parseCgroupLimit("max\n")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = parseCgroupLimit("")
	assert.Error(t, err)
}

func TestComputeMemoryLimit(t *testing.T) {
	limit := ComputeMemoryLimit(DefaultMemoryFraction, false)
	assert.True(t, limit == 0 || limit >= minStoreBudget, "limit %d", limit)
}
