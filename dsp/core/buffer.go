package core

// Zero sets all values in buf to 0.
func Zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}

// Clone returns a copy of src that does not share its backing array.
// A nil src yields nil.
func Clone(src []float64) []float64 {
	if src == nil {
		return nil
	}
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// ShortestLen returns the length of the shortest slice in bufs, or 0 if bufs is empty.
func ShortestLen(bufs [][]float64) int {
	if len(bufs) == 0 {
		return 0
	}
	n := len(bufs[0])
	for _, b := range bufs[1:] {
		if len(b) < n {
			n = len(b)
		}
	}
	return n
}
