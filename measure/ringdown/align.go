package ringdown

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-ringdown/dsp/conv"
)

// AlignedGroup is a group shifted onto the reference group.
type AlignedGroup struct {
	Source  PeakGroup
	Shift   int // > 0: zeros prepended, < 0: leading samples dropped
	Samples []float64
}

// AlignResult holds the aligned groups; the first one is the unmodified reference.
type AlignResult struct {
	Groups []AlignedGroup
}

// Waveforms returns the aligned sample slices.
func (r AlignResult) Waveforms() [][]float64 {
	out := make([][]float64, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Samples
	}
	return out
}

// Shifts returns the applied shift of every group.
func (r AlignResult) Shifts() []int {
	out := make([]int, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Shift
	}
	return out
}

// AlignGroups aligns every group to the first one.
func AlignGroups(groups GroupResult) (AlignResult, error) {
	return alignGroups(context.Background(), groups, 1)
}

func alignGroups(ctx context.Context, groups GroupResult, workers int) (AlignResult, error) {
	aligned, shifts, err := alignWith(ctx, groups.Waveforms(), workers)
	if err != nil {
		return AlignResult{}, err
	}
	out := AlignResult{Groups: make([]AlignedGroup, len(aligned))}
	for i := range aligned {
		out.Groups[i] = AlignedGroup{
			Source:  groups.Groups[i],
			Shift:   shifts[i],
			Samples: aligned[i],
		}
	}
	return out, nil
}

// Align shifts every waveform to maximize its full cross-correlation with the
// first one. The shift is the lag of the first correlation maximum; identical
// waveforms get a zero shift and aligning an aligned set changes nothing.
func Align(waveforms [][]float64) (aligned [][]float64, shifts []int, err error) {
	return alignWith(context.Background(), waveforms, 1)
}

func alignWith(ctx context.Context, waveforms [][]float64, workers int) ([][]float64, []int, error) {
	if len(waveforms) == 0 {
		return nil, nil, stageError(StageAlign, ErrInsufficientData)
	}
	ref := waveforms[0]
	if len(ref) == 0 {
		return nil, nil, stageError(StageAlign, fmt.Errorf("%w: reference group is empty", ErrInsufficientData))
	}

	aligned := make([][]float64, len(waveforms))
	shifts := make([]int, len(waveforms))
	aligned[0] = ref

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, workers))
	for i := 1; i < len(waveforms); i++ {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			cand := waveforms[i]
			if len(cand) == 0 {
				return stageError(StageAlign, fmt.Errorf("%w: group %d is empty", ErrInsufficientData, i))
			}
			lag, _, err := conv.BestLag(ref, cand)
			if err != nil {
				return stageError(StageAlign, err)
			}
			shifts[i] = lag
			aligned[i] = applyShift(cand, lag)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return aligned, shifts, nil
}

// applyShift prepends shift zeros, or drops -shift leading samples. The input
// is not modified.
func applyShift(x []float64, shift int) []float64 {
	switch {
	case shift == 0:
		return x
	case shift > 0:
		out := make([]float64, shift+len(x))
		copy(out[shift:], x)
		return out
	case -shift >= len(x):
		return []float64{}
	default:
		return x[-shift:]
	}
}
