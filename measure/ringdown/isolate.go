package ringdown

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-ringdown/dsp/core"
	"github.com/cwbudde/algo-ringdown/dsp/peaks"
	"github.com/cwbudde/algo-ringdown/dsp/smooth"
)

// PeakWindow is the slice of one aligned group around one canonical peak.
type PeakWindow struct {
	Group int // index into the aligned set
	Peak  int // index into Isolation.Peaks
	// Start and End give the requested range in group coordinates, before
	// clipping to the group.
	Start, End int
	Samples    []float64
	Truncated  bool
}

// Isolation is the output of IsolatePeaks.
type Isolation struct {
	Composite []float64 // elementwise sum of the aligned groups, truncated to the shortest
	Peaks     []int     // canonical peak indices in composite coordinates
	// Windows is indexed [group][peak].
	Windows [][]PeakWindow
}

// Count returns the number of windows.
func (iso Isolation) Count() int {
	n := 0
	for _, row := range iso.Windows {
		n += len(row)
	}
	return n
}

// Composite truncates every waveform to the shortest one and sums them.
func Composite(waveforms [][]float64) []float64 {
	n := core.ShortestLen(waveforms)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	for _, w := range waveforms {
		vecmath.AddBlockInPlace(out, w[:n])
	}
	return out
}

// IsolatePeaks builds the composite of the aligned groups, finds its peaks and
// slices a PeakWidth window around every peak from every group.
func IsolatePeaks(aligned AlignResult, cfg IsolateConfig) (Isolation, error) {
	return isolate(aligned.Waveforms(), cfg)
}

func isolate(groups [][]float64, cfg IsolateConfig) (Isolation, error) {
	if err := cfg.Validate(); err != nil {
		return Isolation{}, stageError(StageIsolate, err)
	}
	if len(groups) == 0 {
		return Isolation{}, stageError(StageIsolate, fmt.Errorf("%w: no aligned groups", ErrEmptySeries))
	}

	iso := Isolation{Composite: Composite(groups)}

	smoothed, imap, err := smooth.MovingAverage(iso.Composite, cfg.SmoothingWindow)
	if err != nil {
		if errors.Is(err, smooth.ErrTooShort) {
			return iso, stageError(StageIsolate, fmt.Errorf("%w: composite has %d samples, smoothing window %d",
				ErrNoPeaksFound, len(iso.Composite), cfg.SmoothingWindow))
		}
		return iso, stageError(StageIsolate, err)
	}

	half := cfg.PeakWidth / 2
	found := peaks.Find(smoothed, peaks.Options{
		MinHeight:     cfg.PeakMinHeight,
		MinProminence: cfg.PeakProminence,
		MinDistance:   max(1, half),
	})
	if len(found) == 0 {
		return iso, stageError(StageIsolate, ErrNoPeaksFound)
	}
	iso.Peaks = make([]int, len(found))
	for i, p := range found {
		iso.Peaks[i] = imap.ToOriginal(p.Index)
	}

	iso.Windows = make([][]PeakWindow, len(groups))
	for g, samples := range groups {
		row := make([]PeakWindow, len(iso.Peaks))
		for k, p := range iso.Peaks {
			row[k] = cutWindow(samples, g, k, p-half+cfg.TimeShift, p+half+cfg.TimeShift)
		}
		iso.Windows[g] = row
	}
	return iso, nil
}

// cutWindow slices x[start:end) clipped to x's extent. Clipped windows share
// x's backing array and are flagged; they are never padded.
func cutWindow(x []float64, group, peak, start, end int) PeakWindow {
	w := PeakWindow{Group: group, Peak: peak, Start: start, End: end}
	lo, clippedLo := core.ClampIndex(start, len(x))
	hi, clippedHi := core.ClampIndex(end, len(x))
	w.Truncated = clippedLo || clippedHi
	if lo >= hi {
		w.Samples = []float64{}
		w.Truncated = true
		return w
	}
	w.Samples = x[lo:hi]
	return w
}
