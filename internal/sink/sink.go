// Package sink holds the pyramid.Sink implementations: a raw numeric tile
// directory that can be read back, a directory of rendered images, and
// MBTiles and PMTiles archives of rendered tiles.
package sink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pspoerri/rasterpyramid/internal/tile"
)

// ErrInvalidPattern is returned for path patterns missing a placeholder.
var ErrInvalidPattern = errors.New("invalid tile path pattern")

// DefaultPattern lays tiles out as {z}/{x}/{y}.
const DefaultPattern = "{z}/{x}/{y}"

// Pattern expands tile paths such as "{z}/{x}/{y}". {-y} is the row in the
// opposite convention.
type Pattern string

// ParsePattern checks that p names the zoom, the column and one of the row
// placeholders.
func ParsePattern(p string) (Pattern, error) {
	if !strings.Contains(p, "{z}") || !strings.Contains(p, "{x}") {
		return "", fmt.Errorf("%w: %q needs {z} and {x}", ErrInvalidPattern, p)
	}
	if !strings.Contains(p, "{y}") && !strings.Contains(p, "{-y}") {
		return "", fmt.Errorf("%w: %q needs {y} or {-y}", ErrInvalidPattern, p)
	}
	return Pattern(p), nil
}

// Expand fills in the placeholders for a.
func (p Pattern) Expand(a tile.Address) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(a.Z),
		"{x}", strconv.Itoa(a.X),
		"{y}", strconv.Itoa(a.Y),
		"{-y}", strconv.Itoa(a.Flip().Y),
	).Replace(string(p))
}

// toXYZ returns a in XYZ rows given the convention it was produced in.
func toXYZ(a tile.Address, c tile.Convention) tile.Address {
	if c == tile.TMS {
		return a.Flip()
	}
	return a
}
