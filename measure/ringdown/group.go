package ringdown

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-ringdown/dsp/peaks"
	"github.com/cwbudde/algo-ringdown/dsp/smooth"
)

// PeakGroup is a slice of the amplitude column around the first peak of a
// cluster of peaks.
type PeakGroup struct {
	Order       int     // position of the cluster among all detected clusters
	AnchorIndex int     // series index of the anchor peak
	AnchorTime  float64 // time of the anchor peak
	Start       int     // series index of Samples[0]
	Samples     []float64
	Truncated   bool // window ran past the analysed range and was clipped
}

// Anchor identifies a cluster whose window could not be cut.
type Anchor struct {
	Order int
	Index int
	Time  float64
}

// GroupResult is the output of a grouping strategy.
type GroupResult struct {
	Groups []PeakGroup
	// Peaks lists every detected peak in series coordinates.
	Peaks []int
	// Discarded lists anchors whose window started before the analysed range.
	Discarded []Anchor
	// Range is the analysed half-open index range [Range[0], Range[1]).
	Range [2]int
	// HalfWidth is the window half-width in samples.
	HalfWidth int
}

// Waveforms returns the sample slices of the groups.
func (r GroupResult) Waveforms() [][]float64 {
	out := make([][]float64, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Samples
	}
	return out
}

// Strategy partitions a series into peak groups.
type Strategy interface {
	Name() string
	Group(ts *TimeSeries, cfg GroupConfig) (GroupResult, error)
}

// SpacedGroups clusters peaks separated by gaps of at least GroupLen.
type SpacedGroups struct{}

// VoltageThreshold is reserved for grouping on the voltage channel.
type VoltageThreshold struct{}

// GroupPeaks runs the SpacedGroups strategy.
func GroupPeaks(ts *TimeSeries, cfg GroupConfig) (GroupResult, error) {
	return SpacedGroups{}.Group(ts, cfg)
}

func (SpacedGroups) Name() string { return "spaced" }

// Group detects peaks on the smoothed amplitude, clusters them and cuts a
// window of ±GroupLen around the first peak of each kept cluster.
func (SpacedGroups) Group(ts *TimeSeries, cfg GroupConfig) (GroupResult, error) {
	if err := ts.Validate(); err != nil {
		return GroupResult{}, stageError(StageGroup, err)
	}
	if err := cfg.Validate(); err != nil {
		return GroupResult{}, stageError(StageGroup, err)
	}

	lo, hi, err := analysedRange(ts, cfg.Window)
	if err != nil {
		return GroupResult{}, stageError(StageGroup, err)
	}

	res := GroupResult{
		Range:     [2]int{lo, hi},
		HalfWidth: ts.Samples(cfg.GroupLen),
	}

	smoothed, imap, err := smooth.MovingAverage(ts.Amplitude[lo:hi], cfg.SmoothingWindow)
	if err != nil {
		if errors.Is(err, smooth.ErrTooShort) {
			return res, stageError(StageGroup, fmt.Errorf("%w: %d samples in range, smoothing window %d",
				ErrEmptyResult, hi-lo, cfg.SmoothingWindow))
		}
		return res, stageError(StageGroup, err)
	}

	found := peaks.Find(smoothed, peaks.Options{
		MinHeight:     cfg.PeakMinHeight,
		MinProminence: cfg.PeakProminence,
	})
	res.Peaks = make([]int, len(found))
	for i, p := range found {
		res.Peaks[i] = lo + imap.ToOriginal(p.Index)
	}

	for order, anchor := range clusterAnchors(ts.Time, res.Peaks, cfg.GroupLen) {
		if cfg.Mirrored && order%2 != 0 {
			continue
		}
		start, end := anchor-res.HalfWidth, anchor+res.HalfWidth
		if start < lo || start >= end {
			res.Discarded = append(res.Discarded, Anchor{Order: order, Index: anchor, Time: ts.Time[anchor]})
			continue
		}
		g := PeakGroup{
			Order:       order,
			AnchorIndex: anchor,
			AnchorTime:  ts.Time[anchor],
			Start:       start,
		}
		if end > hi {
			end = hi
			g.Truncated = true
		}
		g.Samples = append([]float64(nil), ts.Amplitude[start:end]...)
		res.Groups = append(res.Groups, g)
	}

	if len(res.Groups) == 0 {
		return res, stageError(StageGroup, fmt.Errorf("%w: %d peaks, %d discarded windows",
			ErrEmptyResult, len(res.Peaks), len(res.Discarded)))
	}
	return res, nil
}

func (VoltageThreshold) Name() string { return "voltage" }

// Group reports ErrNoVoltage for two-column data and ErrStrategyNotImplemented
// otherwise.
func (VoltageThreshold) Group(ts *TimeSeries, _ GroupConfig) (GroupResult, error) {
	if err := ts.Validate(); err != nil {
		return GroupResult{}, stageError(StageGroup, err)
	}
	if !ts.HasVoltage() {
		return GroupResult{}, stageError(StageGroup, ErrNoVoltage)
	}
	return GroupResult{}, stageError(StageGroup, ErrStrategyNotImplemented)
}

// analysedRange converts the optional time window into a half-open index
// range. The order check runs before clipping so that a window lying past the
// data yields an empty range rather than ErrInvalidRange.
func analysedRange(ts *TimeSeries, w *TimeWindow) (lo, hi int, err error) {
	n := ts.Len()
	if w == nil {
		return 0, n, nil
	}
	from, to := 0.0, float64(n)
	if !math.IsInf(w.Start, -1) {
		from = ts.position(w.Start)
	}
	if !math.IsInf(w.End, 1) {
		to = ts.position(w.End)
	}
	if from >= to {
		return 0, 0, fmt.Errorf("%w: indices %.0f..%.0f", ErrInvalidRange, from, to)
	}
	return int(min(from, float64(n))), int(min(to, float64(n))), nil
}

// clusterAnchors walks ascending peak indices and returns the first index of
// every run whose consecutive times differ by less than gap.
func clusterAnchors(times []float64, idx []int, gap float64) []int {
	var anchors []int
	for i, p := range idx {
		if i == 0 || times[p]-times[idx[i-1]] >= gap {
			anchors = append(anchors, p)
		}
	}
	return anchors
}
