//go:build unix

package geotiff

import (
	"os"
	"syscall"
)

// mapFile memory-maps f read-only. The file can be closed after mapping.
func mapFile(f *os.File, size int) ([]byte, bool, error) {
	data, err := syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ, syscall.MAP_PRIVATE)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// unmapFile releases a mapping created by mapFile.
func unmapFile(data []byte) error {
	return syscall.Munmap(data)
}
