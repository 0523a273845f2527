// Package smooth provides the moving-average smoother used ahead of peak
// detection, together with the index bookkeeping that ties smoothed samples
// back to the series they were computed from.
//
// A moving average over w samples only exists where the window fully overlaps
// the input ("valid" mode), so the output is w-1 samples shorter than the
// input. The missing samples are attributed symmetrically: Lead = (w-1)/2 at the
// front and Trail = w-1-Lead at the back. Every conversion between smoothed and
// original indices goes through [IndexMap].
package smooth

import (
	"errors"

	"github.com/cwbudde/algo-ringdown/dsp/conv"
)

// Errors returned by the smoother.
var (
	ErrInvalidWindow = errors.New("smooth: window must be >= 1")
	ErrTooShort      = errors.New("smooth: input shorter than window")
)

// IndexMap relates indices of a smoothed array to the array it was computed from.
type IndexMap struct {
	Lead  int // samples dropped at the front
	Trail int // samples dropped at the back
	N     int // length of the original array
}

// NewIndexMap returns the symmetric mapping for a window of w samples over n samples.
func NewIndexMap(w, n int) (IndexMap, error) {
	if w < 1 {
		return IndexMap{}, ErrInvalidWindow
	}
	if n < w {
		return IndexMap{}, ErrTooShort
	}
	lead := (w - 1) / 2
	return IndexMap{Lead: lead, Trail: w - 1 - lead, N: n}, nil
}

// Len returns the length of the smoothed array.
func (m IndexMap) Len() int {
	return m.N - m.Lead - m.Trail
}

// ToOriginal maps a smoothed index to the original index it is centred on.
func (m IndexMap) ToOriginal(j int) int {
	return j + m.Lead
}

// ToSmoothed maps an original index to the smoothed index centred on it.
// ok is false when the original sample lies in the trimmed margins.
func (m IndexMap) ToSmoothed(i int) (j int, ok bool) {
	j = i - m.Lead
	return j, j >= 0 && j < m.Len()
}

// Trim returns the part of xs (which must have length N) aligned with the
// smoothed array. The result shares xs' backing array.
func (m IndexMap) Trim(xs []float64) []float64 {
	return xs[m.Lead : len(xs)-m.Trail]
}

// MovingAverage returns the w-sample moving average of x in valid mode together
// with the index map for the result. Windows over identical samples yield
// identical averages, so plateaus stay flat for peak detection.
func MovingAverage(x []float64, w int) ([]float64, IndexMap, error) {
	m, err := NewIndexMap(w, len(x))
	if err != nil {
		return nil, IndexMap{}, err
	}

	box := make([]float64, w)
	for i := range box {
		box[i] = 1
	}

	out, err := conv.DirectMode(x, box, conv.ModeValid)
	if err != nil {
		return nil, IndexMap{}, err
	}
	if w > 1 {
		scale := 1 / float64(w)
		for i := range out {
			out[i] *= scale
		}
	}
	return out, m, nil
}
