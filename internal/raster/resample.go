package raster

// nearestIndex maps destination sample i of an axis of length out onto a
// source axis of length in, sampling at the destination pixel centre.
func nearestIndex(i, in, out int) int {
	s := (2*i + 1) * in / (2 * out)
	if s >= in {
		s = in - 1
	}
	return s
}

// ResizeNearest resamples src to w x h with order-0 (nearest neighbour)
// interpolation. Every output sample is a copy of one input sample, so
// integer classes and the zero sentinel survive untouched.
func ResizeNearest(src *Buffer, w, h int) *Buffer {
	if w == src.Width && h == src.Height {
		return src.Clone()
	}
	dst := NewBuffer(src.Bands, w, h)

	// Precompute the column lookup once; it is shared by all rows and bands.
	cols := make([]int, w)
	for x := range cols {
		cols[x] = nearestIndex(x, src.Width, w)
	}
	for b := 0; b < src.Bands; b++ {
		for y := 0; y < h; y++ {
			sy := nearestIndex(y, src.Height, h)
			srow := src.Data[src.index(b, sy, 0):]
			drow := dst.Data[dst.index(b, y, 0) : dst.index(b, y, 0)+w]
			for x, sx := range cols {
				drow[x] = srow[sx]
			}
		}
	}
	return dst
}

// Paste copies src into dst with src's top-left corner at (x, y). Samples
// falling outside dst are dropped. Band counts must match.
func Paste(dst, src *Buffer, x, y int) {
	for b := 0; b < src.Bands && b < dst.Bands; b++ {
		for row := 0; row < src.Height; row++ {
			dy := y + row
			if dy < 0 || dy >= dst.Height {
				continue
			}
			x0, x1 := 0, src.Width
			if x < 0 {
				x0 = -x
			}
			if x+x1 > dst.Width {
				x1 = dst.Width - x
			}
			if x0 >= x1 {
				continue
			}
			from := src.index(b, row, x0)
			to := dst.index(b, dy, x+x0)
			copy(dst.Data[to:to+x1-x0], src.Data[from:from+x1-x0])
		}
	}
}
