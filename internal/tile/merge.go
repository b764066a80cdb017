package tile

import (
	"fmt"
	"strings"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

// MergePolicy decides how records landing on one address are combined.
type MergePolicy int

const (
	// Additive sums all records sample by sample. Correct when the
	// non-zero supports do not overlap.
	Additive MergePolicy = iota
	// FirstNonZero keeps the first non-zero sample seen for each cell.
	FirstNonZero
)

func (p MergePolicy) String() string {
	switch p {
	case Additive:
		return "additive"
	case FirstNonZero:
		return "first-non-zero"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// ParseMergePolicy parses the names returned by MergePolicy.String.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(s) {
	case "additive", "sum", "":
		return Additive, nil
	case "first-non-zero", "first":
		return FirstNonZero, nil
	default:
		return 0, fmt.Errorf("unknown merge policy %q (valid: additive, first-non-zero)", s)
	}
}

// Reduce combines records sharing one address into a single record. The
// address and ancestor come from the first record. Inputs are not modified.
func Reduce(records []Record, policy MergePolicy) (Record, error) {
	if len(records) == 0 {
		return Record{}, fmt.Errorf("reduce: no records")
	}
	first := records[0]
	if first.Data == nil {
		return Record{}, fmt.Errorf("reduce %s: record has no data", first.Addr)
	}
	for _, r := range records[1:] {
		if r.Addr != first.Addr {
			return Record{}, fmt.Errorf("reduce: address %s differs from %s", r.Addr, first.Addr)
		}
		if r.Data == nil || !r.Data.SameShape(first.Data) {
			return Record{}, fmt.Errorf("reduce %s: %w: %v vs %v", first.Addr, raster.ErrShapeMismatch, first.Data, r.Data)
		}
	}
	if len(records) == 1 {
		return first, nil
	}

	acc := first.Data.Clone()
	for _, r := range records[1:] {
		switch policy {
		case Additive:
			for i, v := range r.Data.Data {
				acc.Data[i] += v
			}
		case FirstNonZero:
			for i, v := range r.Data.Data {
				if acc.Data[i] == 0 {
					acc.Data[i] = v
				}
			}
		default:
			return Record{}, fmt.Errorf("reduce %s: unknown %v", first.Addr, policy)
		}
	}
	return Record{Addr: first.Addr, Data: acc, Ancestor: first.Ancestor}, nil
}
