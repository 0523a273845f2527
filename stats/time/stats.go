// Package time computes time-domain statistics of sample windows.
package time

import "math"

// Stats holds time-domain window statistics.
type Stats struct {
	Length   int
	Mean     float64
	Variance float64 // population variance
	StdDev   float64
	Max      float64
	MaxPos   int // first index of Max
	Min      float64
	MinPos   int // first index of Min
	Range    float64
}

// Calculate computes all statistics in a single pass using Welford's online
// algorithm for the variance.
func Calculate(signal []float64) Stats {
	n := len(signal)
	if n == 0 {
		return Stats{}
	}

	var (
		mean   float64
		m2     float64
		maxVal = signal[0]
		maxPos int
		minVal = signal[0]
		minPos int
	)

	for i, x := range signal {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)

		if x > maxVal {
			maxVal = x
			maxPos = i
		}
		if x < minVal {
			minVal = x
			minPos = i
		}
	}

	variance := m2 / float64(n)

	return Stats{
		Length:   n,
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Max:      maxVal,
		MaxPos:   maxPos,
		Min:      minVal,
		MinPos:   minPos,
		Range:    maxVal - minVal,
	}
}

// ArgMax returns the first index of the maximum of signal, or -1 if it is empty.
func ArgMax(signal []float64) int {
	if len(signal) == 0 {
		return -1
	}
	return Calculate(signal).MaxPos
}

// IsFlat reports whether every sample of signal equals the first one.
func IsFlat(signal []float64) bool {
	for _, x := range signal {
		if x != signal[0] {
			return false
		}
	}
	return true
}

// MeanStd returns the mean and sample standard deviation (n-1 denominator)
// of values. The deviation is 0 for fewer than two values.
func MeanStd(values []float64) (mean, std float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	s := Calculate(values)
	if n < 2 {
		return s.Mean, 0
	}
	return s.Mean, math.Sqrt(s.Variance * float64(n) / float64(n-1))
}
