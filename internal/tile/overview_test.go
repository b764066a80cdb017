package tile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/rasterpyramid/internal/raster"
)

func constRecord(a Address, bands, size int, v float64) Record {
	return Record{Addr: a, Data: raster.Fill(bands, size, size, v), Ancestor: a.Parent()}
}

func TestOverview_FourChildrenConstant(t *testing.T) {
	parent := Address{3, 2, 5}
	var kids []Record
	for _, c := range parent.Children() {
		kids = append(kids, constRecord(c, 2, 256, 6))
	}
	o := NewOverviewGenerator(256, XYZ)
	rec, err := o.Merge(kids)
	require.NoError(t, err)

	assert.Equal(t, parent, rec.Addr)
	assert.Equal(t, Address{2, 1, 2}, rec.Ancestor)
	require.Equal(t, 2, rec.Bands())
	require.Equal(t, 256, rec.Data.Width)
	require.Equal(t, 256, rec.Data.Height)
	for i, v := range rec.Data.Data {
		if v != 6 {
			t.Fatalf("sample %d = %v, want 6", i, v)
		}
	}
}

func TestOverview_TwoNorthernChildren(t *testing.T) {
	// Children 3/2/2 and 3/3/2 are the northern half of 2/1/1.
	kids := []Record{
		constRecord(Address{3, 2, 2}, 1, 256, 5),
		constRecord(Address{3, 3, 2}, 1, 256, 5),
	}
	rec, err := NewOverviewGenerator(256, XYZ).Merge(kids)
	require.NoError(t, err)
	assert.Equal(t, Address{2, 1, 1}, rec.Addr)
	assert.Equal(t, Address{1, 0, 0}, rec.Ancestor)

	for y := 0; y < 256; y++ {
		want := 0.0
		if y < 128 {
			want = 5
		}
		for x := 0; x < 256; x++ {
			if got := rec.Data.At(0, y, x); got != want {
				t.Fatalf("(%d, %d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestOverview_QuadrantPlacement(t *testing.T) {
	tests := []struct {
		name       string
		convention Convention
		child      Address
		col, row   int
	}{
		{"xyz north-west", XYZ, Address{1, 0, 0}, 0, 0},
		{"xyz south-east", XYZ, Address{1, 1, 1}, 1, 1},
		{"tms north-west", TMS, Address{1, 0, 1}, 0, 0},
		{"tms south-west", TMS, Address{1, 0, 0}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewOverviewGenerator(64, tt.convention).Merge([]Record{constRecord(tt.child, 1, 64, 9)})
			require.NoError(t, err)
			for y := 0; y < 64; y++ {
				for x := 0; x < 64; x++ {
					want := 0.0
					if x/32 == tt.col && y/32 == tt.row {
						want = 9
					}
					if got := rec.Data.At(0, y, x); got != want {
						t.Fatalf("(%d, %d) = %v, want %v", x, y, got, want)
					}
				}
			}
		})
	}
}

func TestOverview_RootAncestorIsItself(t *testing.T) {
	rec, err := NewOverviewGenerator(16, XYZ).Merge([]Record{constRecord(Address{1, 1, 0}, 1, 16, 1)})
	require.NoError(t, err)
	assert.Equal(t, Address{}, rec.Addr)
	assert.Equal(t, Address{}, rec.Ancestor)
}

func TestOverview_DoesNotModifyChildren(t *testing.T) {
	kid := constRecord(Address{2, 0, 0}, 1, 32, 4)
	_, err := NewOverviewGenerator(32, XYZ).Merge([]Record{kid})
	require.NoError(t, err)
	for _, v := range kid.Data.Data {
		require.Equal(t, 4.0, v)
	}
}

func TestOverview_Errors(t *testing.T) {
	o := NewOverviewGenerator(16, XYZ)
	tests := []struct {
		name string
		kids []Record
		want error
	}{
		{"empty", nil, ErrNoSiblings},
		{"root", []Record{constRecord(Address{}, 1, 16, 1)}, ErrNotSiblings},
		{"different parents", []Record{
			constRecord(Address{2, 0, 0}, 1, 16, 1),
			constRecord(Address{2, 2, 0}, 1, 16, 1),
		}, ErrNotSiblings},
		{"different zooms", []Record{
			constRecord(Address{2, 0, 0}, 1, 16, 1),
			constRecord(Address{1, 0, 0}, 1, 16, 1),
		}, ErrNotSiblings},
		{"duplicate quadrant", []Record{
			constRecord(Address{2, 0, 0}, 1, 16, 1),
			constRecord(Address{2, 0, 0}, 1, 16, 2),
		}, ErrNotSiblings},
		{"band mismatch", []Record{
			constRecord(Address{2, 0, 0}, 1, 16, 1),
			constRecord(Address{2, 1, 0}, 3, 16, 1),
		}, ErrBandMismatch},
		{"wrong tile size", []Record{constRecord(Address{2, 0, 0}, 1, 8, 1)}, raster.ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Merge(tt.kids)
			if !errors.Is(err, tt.want) {
				t.Errorf("Merge() error = %v, want %v", err, tt.want)
			}
		})
	}
}
