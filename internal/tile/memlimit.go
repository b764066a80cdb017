package tile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"strconv"
	"strings"
)

// DefaultMemoryFraction is the share of the memory ceiling the level store
// may fill before spilling records to disk.
const DefaultMemoryFraction = 0.75

const (
	storeReserve   = 1 << 30
	minStoreBudget = 256 << 20
)

var errNoMemoryInfo = errors.New("memory ceiling unknown")

// ComputeMemoryLimit returns the resident byte budget for a Store. The
// ceiling is physical RAM, lowered to the cgroup limit when the process
// runs in a container. Zero disables spilling.
func ComputeMemoryLimit(fraction float64, verbose bool) int64 {
	ceiling, err := memoryCeiling()
	if err != nil {
		if verbose {
			log.Printf("Disk spilling disabled: %v", err)
		}
		return 0
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	limit, ok := storeBudget(ceiling, ms.Sys, fraction)
	if verbose {
		if ok {
			log.Printf("Record store memory limit: %.1f GB of a %.1f GB ceiling", float64(limit)/(1<<30), float64(ceiling)/(1<<30))
		} else {
			log.Printf("Disk spilling disabled: %.1f GB ceiling leaves no room for the record store", float64(ceiling)/(1<<30))
		}
	}
	return limit
}

// storeBudget takes fraction of ceiling and subtracts what the runtime
// already holds plus a reserve for decoding and sink buffers. Budgets
// under minStoreBudget are reported as (0, false).
func storeBudget(ceiling, inUse uint64, fraction float64) (int64, bool) {
	budget := fraction*float64(ceiling) - float64(inUse) - storeReserve
	if budget < minStoreBudget {
		return 0, false
	}
	return int64(budget), true
}

// parseMemTotal reads the MemTotal entry of a /proc/meminfo listing.
func parseMemTotal(r io.Reader) (uint64, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		rest, found := strings.CutPrefix(sc.Text(), "MemTotal:")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) != 2 || fields[1] != "kB" {
			return 0, fmt.Errorf("meminfo: malformed MemTotal %q", rest)
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("meminfo: %w", err)
		}
		return kb << 10, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("meminfo: %w", errNoMemoryInfo)
}

// parseCgroupLimit parses a cgroup memory limit file. ok is false when the
// group is unlimited.
func parseCgroupLimit(s string) (limit uint64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "max" {
		return 0, false, nil
	}
	limit, err = strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cgroup limit: %w", err)
	}
	return limit, true, nil
}
