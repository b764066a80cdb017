package tile

import "sync"

// floatPools maps slice length → *sync.Pool of *[]float64. Only a couple of
// lengths occur per run (one tile, one doubled tile per band count), so the
// map stays tiny.
var floatPools sync.Map

// GetFloats returns a zeroed slice of n samples from the pool, or
// allocates a new one.
func GetFloats(n int) []float64 {
	if p, ok := floatPools.Load(n); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			s := *(v.(*[]float64))
			clear(s)
			return s
		}
	}
	return make([]float64, n)
}

// PutFloats returns a slice to the pool for reuse. The caller must not
// touch s afterwards. Nil slices are ignored.
func PutFloats(s []float64) {
	if s == nil {
		return
	}
	p, _ := floatPools.LoadOrStore(len(s), &sync.Pool{})
	p.(*sync.Pool).Put(&s)
}
