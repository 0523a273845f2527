package ringdown

import (
	timestats "github.com/cwbudde/algo-ringdown/stats/time"
)

// TimeConstant is a fitted decay converted to seconds.
type TimeConstant struct {
	Group, Peak int
	Tau         float64 // seconds
	StdErr      float64 // seconds
	Err         error   // upstream fit failure
}

// Valid reports whether the underlying fit succeeded.
func (tc TimeConstant) Valid() bool {
	return tc.Err == nil
}

// TimeConstants is indexed [group][peak] like Fits.
type TimeConstants [][]TimeConstant

// ExtractTimeConstants scales every fitted tau by the sampling interval.
// Failed fits stay failed and keep their error.
func ExtractTimeConstants(fits Fits, interval float64) TimeConstants {
	out := make(TimeConstants, len(fits))
	for g, row := range fits {
		out[g] = make([]TimeConstant, len(row))
		for k, f := range row {
			tc := TimeConstant{Group: f.Group, Peak: f.Peak, Err: f.Err}
			if f.Valid() {
				tc.Tau = f.Params.Tau * interval
				tc.StdErr = f.StdErr.Tau * interval
			}
			out[g][k] = tc
		}
	}
	return out
}

// Summary aggregates a set of time constants.
type Summary struct {
	Valid, Invalid int
	Mean, Std      float64 // over valid entries; Std uses the n-1 denominator
}

// Summary aggregates all entries.
func (tcs TimeConstants) Summary() Summary {
	return summarize(tcs, -1)
}

// PeakSummaries aggregates the entries of each canonical peak across groups.
func (tcs TimeConstants) PeakSummaries() []Summary {
	n := 0
	for _, row := range tcs {
		n = max(n, len(row))
	}
	out := make([]Summary, n)
	for k := range out {
		out[k] = summarize(tcs, k)
	}
	return out
}

func summarize(tcs TimeConstants, peak int) Summary {
	var s Summary
	var taus []float64
	for _, row := range tcs {
		for k, tc := range row {
			if peak >= 0 && k != peak {
				continue
			}
			if tc.Valid() {
				taus = append(taus, tc.Tau)
				s.Valid++
			} else {
				s.Invalid++
			}
		}
	}
	s.Mean, s.Std = timestats.MeanStd(taus)
	return s
}
