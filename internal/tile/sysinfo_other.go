//go:build !darwin && !linux

package tile

import (
	"fmt"
	"runtime"
)

func memoryCeiling() (uint64, error) {
	return 0, fmt.Errorf("%w on %s", errNoMemoryInfo, runtime.GOOS)
}
