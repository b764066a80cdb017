//go:build !unix

package geotiff

import (
	"io"
	"os"
)

// mapFile reads the whole file into memory where mmap is unavailable.
func mapFile(f *os.File, size int) ([]byte, bool, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func unmapFile(data []byte) error { return nil }
