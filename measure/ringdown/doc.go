// Package ringdown extracts exponential decay time constants from ring-down
// measurements with repeated excitation pulses.
//
// The analysis is a batch pipeline of pure stages:
//
//   - GroupPeaks: detect peaks on the smoothed amplitude and cut one window
//     around the first peak of each temporally separated cluster
//   - AlignGroups: shift every group onto the first by full cross-correlation
//   - IsolatePeaks: sum the aligned groups, find the canonical peaks of the
//     composite and slice a fixed-width window around each from every group
//   - FitDecays: fit y0 + a·exp(-(i-i0)/tau) to the tail of every window
//     with bounded Levenberg-Marquardt
//   - ExtractTimeConstants: convert tau from samples to seconds
//
// Stage failures are *Error values classified by Kind. A failed fit only
// invalidates its own window.
//
// # Usage
//
//	ts, err := ringdown.NewTimeSeries(t, amplitude, nil)
//	runner, err := ringdown.NewRunner(ringdown.DefaultConfig(), ringdown.WithLogger(logger))
//	res, err := runner.Run(ctx, ts)
//	s := res.TimeConstants.Summary()
//	fmt.Printf("tau = %.3g ± %.2g s (%d fits)\n", s.Mean, s.Std, s.Valid)
//
// Interactive front ends hold a Session, which caches the last Results and
// cancels runs on a series once a new one is loaded.
package ringdown
