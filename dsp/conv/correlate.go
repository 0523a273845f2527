package conv

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
	"gonum.org/v1/gonum/floats"
)

// fftLagThreshold is the shorter input length above which BestLag screens
// lags through the FFT before refining the candidates exactly.
const fftLagThreshold = 64

// screenTolerance bounds FFT round-off relative to ||a||*||b||.
const screenTolerance = 1e-9

// CorrelateDirect computes the full cross-correlation of a and b in the time
// domain. The result has length len(a) + len(b) - 1 and output index k
// corresponds to lag k - (len(b) - 1).
//
// Cross-correlation is convolution with the time-reversed second signal:
// corr(a,b) = conv(a, reverse(b)). Each value is summed in ascending order of
// a, so equal correlation values stay bit-identical.
func CorrelateDirect(a, b []float64) ([]float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, ErrEmptyInput
	}

	return Direct(a, reversed(b))
}

// CorrelateFFT computes cross-correlation using FFT.
// This is more efficient for longer signals. Results carry round-off, so equal
// correlation values are not guaranteed to compare equal.
func CorrelateFFT(a, b []float64) ([]float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, ErrEmptyInput
	}

	// IFFT(FFT(a) * conj(FFT(b)))
	n := len(a)
	m := len(b)
	fftSize := nextPowerOf2(n + m - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	aPadded := make([]complex128, fftSize)
	bPadded := make([]complex128, fftSize)
	for i := 0; i < n; i++ {
		aPadded[i] = complex(a[i], 0)
	}
	for i := 0; i < m; i++ {
		bPadded[i] = complex(b[i], 0)
	}

	aFreq := make([]complex128, fftSize)
	bFreq := make([]complex128, fftSize)

	if err := plan.Forward(aFreq, aPadded); err != nil {
		return nil, fmt.Errorf("conv: forward FFT failed: %w", err)
	}
	if err := plan.Forward(bFreq, bPadded); err != nil {
		return nil, fmt.Errorf("conv: forward FFT failed: %w", err)
	}

	resultFreq := make([]complex128, fftSize)
	for i := range resultFreq {
		bConj := complex(real(bFreq[i]), -imag(bFreq[i]))
		resultFreq[i] = aFreq[i] * bConj
	}

	resultTime := make([]complex128, fftSize)
	if err := plan.Inverse(resultTime, resultFreq); err != nil {
		return nil, fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	// Circular result: lags 0..n-1 at the front, negative lags wrap to the end.
	result := make([]float64, n+m-1)
	for i := 0; i < n; i++ {
		result[m-1+i] = real(resultTime[i])
	}
	for i := 0; i < m-1; i++ {
		result[i] = real(resultTime[fftSize-m+1+i])
	}

	return result, nil
}

func reversed(b []float64) []float64 {
	out := make([]float64, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

// FindPeak finds the index and value of the maximum in a correlation result.
// Ties resolve to the lowest index. Returns -1 for an empty input.
func FindPeak(corr []float64) (index int, value float64) {
	if len(corr) == 0 {
		return -1, 0
	}

	index = 0
	value = corr[0]

	for i, v := range corr {
		if v > value {
			index = i
			value = v
		}
	}

	return index, value
}

// LagFromIndex converts a correlation result index to a lag value.
// For a correlation of signals with lengths lenA and lenB,
// the lag at index i is i - (lenB - 1).
func LagFromIndex(index, lenB int) int {
	return index - (lenB - 1)
}

// BestLag returns the lag that maximizes the cross-correlation of a and b,
// together with the correlation value at that lag. A negative lag means b
// is delayed relative to a. Ties resolve to the lowest lag.
//
// Short inputs are correlated directly. Longer ones are screened with
// CorrelateFFT, and every lag within round-off of the screened maximum is
// recomputed exactly, so the result matches CorrelateDirect with FindPeak.
func BestLag(a, b []float64) (lag int, value float64, err error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, ErrEmptyInput
	}

	if min(len(a), len(b)) <= fftLagThreshold {
		corr, err := CorrelateDirect(a, b)
		if err != nil {
			return 0, 0, err
		}
		idx, value := FindPeak(corr)
		return LagFromIndex(idx, len(b)), value, nil
	}

	corr, err := CorrelateFFT(a, b)
	if err != nil {
		return 0, 0, err
	}
	_, approx := FindPeak(corr)
	tol := screenTolerance * floats.Norm(a, 2) * floats.Norm(b, 2)

	best := -1
	for i, v := range corr {
		if v < approx-tol {
			continue
		}
		exact := correlateAt(a, b, LagFromIndex(i, len(b)))
		if best < 0 || exact > value {
			best, value = i, exact
		}
	}
	return LagFromIndex(best, len(b)), value, nil
}

// correlateAt sums a[i]*b[i-lag] in ascending i, the order DirectTo
// accumulates them in.
func correlateAt(a, b []float64, lag int) float64 {
	lo := max(0, lag)
	hi := min(len(a), len(b)+lag)
	sum := 0.0
	for i := lo; i < hi; i++ {
		sum += float64(a[i] * b[i-lag])
	}
	return sum
}
