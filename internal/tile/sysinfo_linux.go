//go:build linux

package tile

import "os"

// cgroupLimitFiles are tried in order; the first readable one wins.
var cgroupLimitFiles = []string{
	"/sys/fs/cgroup/memory.max",
	"/sys/fs/cgroup/memory/memory.limit_in_bytes",
}

func memoryCeiling() (uint64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	total, err := parseMemTotal(f)
	if err != nil {
		return 0, err
	}

	for _, path := range cgroupLimitFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if lim, ok, err := parseCgroupLimit(string(data)); err == nil && ok {
			total = min(total, lim)
		}
		break
	}
	return total, nil
}
