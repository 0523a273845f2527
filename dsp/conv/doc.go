// Package conv provides linear convolution and cross-correlation routines.
//
// Two strategies are available:
//
//   - Direct convolution: O(N*M) time-domain convolution, vectorized with algo-vecmath
//   - FFT correlation: a single zero-padded transform through algo-fft
//
// Direct results sum every output in a fixed order, which keeps comparisons
// between outputs exact. FFT results carry round-off and are used for
// screening only.
//
// # Correlation
//
// Cross-correlation measures how similar two signals are as a function of
// displacement, and is the basis for aligning repeated pulse groups:
//
//	corr, err := conv.CorrelateDirect(reference, candidate)
//	peakIdx, peakVal := conv.FindPeak(corr)
//	lag := conv.LagFromIndex(peakIdx, len(candidate))
//
// [BestLag] combines the three steps and switches to FFT screening with exact
// refinement for inputs longer than 64 samples. Ties in the correlation
// maximum resolve to the lowest index, i.e. the most negative lag.
package conv
