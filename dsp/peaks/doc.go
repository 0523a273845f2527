// Package peaks locates local maxima in sampled signals.
//
// Detection follows the conventions of the widely used find_peaks routine:
//
//   - A peak is a sample (or the midpoint of a flat plateau) strictly higher
//     than both neighbours; the first and last samples are never peaks.
//   - Height keeps peaks whose value is at least MinHeight.
//   - Distance keeps the highest peaks first and suppresses any weaker peak
//     closer than MinDistance samples.
//   - Prominence keeps peaks that rise at least MinProminence above the higher
//     of their two surrounding minima, searched over the full signal.
//
// The filters run in that order.
//
// # Usage
//
//	opts := peaks.Options{MinHeight: 0.5, MinProminence: 1, MinDistance: 10}
//	found := peaks.Find(smoothed, opts)
//	for _, p := range found {
//		fmt.Println(p.Index, p.Height, p.Prominence)
//	}
package peaks
