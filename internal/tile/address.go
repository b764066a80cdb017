package tile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pspoerri/rasterpyramid/internal/coord"
)

// ErrInvalidAddress is returned for malformed or out-of-range tile addresses.
var ErrInvalidAddress = errors.New("invalid tile address")

// Convention selects where tile row 0 lies.
type Convention int

const (
	// XYZ counts rows from the top (north) edge, as slippy maps do.
	XYZ Convention = iota
	// TMS counts rows from the bottom (south) edge.
	TMS
)

func (c Convention) String() string {
	switch c {
	case XYZ:
		return "xyz"
	case TMS:
		return "tms"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// ParseConvention parses "xyz" or "tms".
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(s) {
	case "xyz", "":
		return XYZ, nil
	case "tms":
		return TMS, nil
	default:
		return 0, fmt.Errorf("unknown tile convention %q (valid: xyz, tms)", s)
	}
}

// Address identifies a tile in the pyramid.
type Address struct {
	Z, X, Y int
}

// String returns the canonical "z/x/y" form used as map key and path.
func (a Address) String() string {
	return strconv.Itoa(a.Z) + "/" + strconv.Itoa(a.X) + "/" + strconv.Itoa(a.Y)
}

// Valid reports whether 0 <= X, Y < 2^Z and Z is within the grid.
func (a Address) Valid() bool {
	if a.Z < 0 || a.Z > coord.MaxZoomLevel {
		return false
	}
	n := 1 << uint(a.Z)
	return a.X >= 0 && a.X < n && a.Y >= 0 && a.Y < n
}

// Flip converts the row between the XYZ and TMS conventions. Applying it
// twice returns the original address.
func (a Address) Flip() Address {
	return Address{Z: a.Z, X: a.X, Y: (1 << uint(a.Z)) - 1 - a.Y}
}

// Parent returns the tile one zoom up that contains a. The parent of a zoom
// 0 tile is the tile itself.
func (a Address) Parent() Address {
	if a.Z == 0 {
		return a
	}
	return Address{Z: a.Z - 1, X: a.X / 2, Y: a.Y / 2}
}

// Ancestor returns the tile at zoom z containing a. z greater than a.Z
// returns a unchanged.
func (a Address) Ancestor(z int) Address {
	if z >= a.Z {
		return a
	}
	if z < 0 {
		z = 0
	}
	d := uint(a.Z - z)
	return Address{Z: z, X: a.X >> d, Y: a.Y >> d}
}

// Children returns the four tiles one zoom down, ordered top-left,
// top-right, bottom-left, bottom-right in XYZ rows.
func (a Address) Children() [4]Address {
	z, x, y := a.Z+1, 2*a.X, 2*a.Y
	return [4]Address{
		{z, x, y},
		{z, x + 1, y},
		{z, x, y + 1},
		{z, x + 1, y + 1},
	}
}

// ParseAddress parses the canonical "z/x/y" form. Leading zeros, signs and
// out-of-range indices are rejected.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	var v [3]int
	for i, p := range parts {
		if p == "" || (len(p) > 1 && p[0] == '0') || p[0] < '0' || p[0] > '9' {
			return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
		}
		v[i] = n
	}
	a := Address{Z: v[0], X: v[1], Y: v[2]}
	if !a.Valid() {
		return Address{}, fmt.Errorf("%w: %q out of range", ErrInvalidAddress, s)
	}
	return a, nil
}
