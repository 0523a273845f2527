package ringdown

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-ringdown/dsp/core"
	"github.com/cwbudde/algo-ringdown/dsp/peaks"
	"github.com/cwbudde/algo-ringdown/internal/lsq"
	timestats "github.com/cwbudde/algo-ringdown/stats/time"
)

const numParams = 4

// Params are the coefficients of y0 + a·exp(-(i-i0)/tau) with i and i0 in
// window samples and tau in samples.
type Params struct {
	I0, A, Y0, Tau float64
}

// At evaluates the decay at window index i.
func (p Params) At(i float64) float64 {
	return p.Y0 + p.A*math.Exp(-(i-p.I0)/p.Tau)
}

func (p Params) vector() []float64 {
	return []float64{p.I0, p.A, p.Y0, p.Tau}
}

func paramsOf(v []float64) Params {
	return Params{I0: v[0], A: v[1], Y0: v[2], Tau: v[3]}
}

// FitResult is the outcome of fitting one window. When Err is non-nil the
// numeric fields are undefined.
type FitResult struct {
	Group, Peak int
	Params      Params
	StdErr      Params
	Covariance  *mat.SymDense // 4×4 in Params order
	Onset       int           // onset guess in window samples
	TailStart   int           // first fitted sample
	TailClipped bool          // onset + TimeShift fell outside the window and was clamped
	Iterations  int
	Cost        float64 // residual sum of squares
	Err         error
}

// Valid reports whether the fit succeeded.
func (r FitResult) Valid() bool {
	return r.Err == nil
}

// Fits is indexed [group][peak] like Isolation.Windows.
type Fits [][]FitResult

// Count returns the number of valid and failed fits.
func (f Fits) Count() (valid, failed int) {
	for _, row := range f {
		for _, r := range row {
			if r.Valid() {
				valid++
			} else {
				failed++
			}
		}
	}
	return valid, failed
}

// FitDecays fits every window sequentially. Per-window failures are stored in
// the corresponding FitResult; the returned error is non-nil only when ctx is
// done.
func FitDecays(ctx context.Context, iso Isolation, cfg FitConfig) (Fits, error) {
	return fitAll(ctx, iso.Windows, cfg, 1, zap.NewNop())
}

// fitAll fits the windows on up to workers goroutines. Every goroutine writes
// only its own slot, so the result does not depend on scheduling.
func fitAll(ctx context.Context, windows [][]PeakWindow, cfg FitConfig, workers int, logger *zap.Logger) (Fits, error) {
	if err := cfg.Validate(); err != nil {
		return nil, stageError(StageFit, err)
	}

	out := make(Fits, len(windows))
	for g := range windows {
		out[g] = make([]FitResult, len(windows[g]))
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, workers))
	for g := range windows {
		for k := range windows[g] {
			eg.Go(func() error {
				res := FitWindow(egctx, windows[g][k], cfg)
				if isContextError(res.Err) {
					return res.Err
				}
				switch {
				case res.Err != nil:
					logger.Warn("fit failed",
						zap.Int("group", g),
						zap.Int("peak", k),
						zap.Error(res.Err))
				case res.TailClipped:
					logger.Warn("fit tail clipped to window",
						zap.Int("group", g),
						zap.Int("peak", k),
						zap.Int("onset", res.Onset),
						zap.Int("time_shift", cfg.TimeShift))
				}
				out[g][k] = res
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FitWindow fits the decay following the onset of w.
func FitWindow(ctx context.Context, w PeakWindow, cfg FitConfig) FitResult {
	res := FitResult{Group: w.Group, Peak: w.Peak}
	fail := func(err error) FitResult {
		res.Err = &Error{Stage: StageFit, Kind: KindFit, Err: err}
		return res
	}

	y := w.Samples
	if len(y) == 0 {
		return fail(fmt.Errorf("%w: empty window", ErrTailTooShort))
	}

	if cfg.AdvancedPeakDetection {
		p, ok := peaks.First(y, peaks.Options{
			MinHeight:     cfg.PeakMinHeight,
			MinProminence: cfg.PeakProminence,
		})
		if !ok {
			return fail(ErrNoPeaksFound)
		}
		res.Onset = p.Index
	} else {
		res.Onset = timestats.ArgMax(y)
	}

	res.TailStart, res.TailClipped = core.ClampIndex(res.Onset+cfg.TimeShift, len(y))
	tail := y[res.TailStart:]
	if len(tail) < numParams {
		return fail(fmt.Errorf("%w: %d samples after onset", ErrTailTooShort, len(tail)))
	}
	if timestats.IsFlat(tail) {
		return fail(fmt.Errorf("%w: window is flat", ErrFitDidNotConverge))
	}

	x := make([]float64, len(tail))
	for i := range x {
		x[i] = float64(res.TailStart + i)
	}

	tau := cfg.Tau
	if tau <= 0 {
		tau = estimateTau(tail)
	}
	start := Params{I0: float64(res.TailStart), A: cfg.A, Y0: cfg.Y0, Tau: tau}

	prob := lsq.Problem{
		X:        x,
		Y:        tail,
		Model:    decayModel,
		Gradient: decayGradient,
		Lower:    []float64{math.Inf(-1), 0, math.Inf(-1), 0},
		Upper:    []float64{math.Inf(1), math.Inf(1), math.Inf(1), math.Inf(1)},
	}
	settings := lsq.DefaultSettings()
	if cfg.MaxIterations > 0 {
		settings.MaxIterations = cfg.MaxIterations
	}

	fit, err := lsq.Fit(ctx, prob, start.vector(), settings)
	if err != nil {
		if isContextError(err) {
			res.Err = err
			return res
		}
		return fail(fmt.Errorf("%w: %w", ErrFitDidNotConverge, err))
	}
	if !core.AllFinite(fit.Params) {
		return fail(fmt.Errorf("%w: non-finite parameters", ErrFitDidNotConverge))
	}

	res.Params = paramsOf(fit.Params)
	res.Covariance = fit.Covariance
	res.StdErr = paramsOf(fit.StdErr())
	res.Iterations = fit.Iterations
	res.Cost = fit.Cost
	return res
}

func decayModel(x float64, p []float64) float64 {
	return p[2] + p[1]*math.Exp(-(x-p[0])/p[3])
}

func decayGradient(x float64, p, dst []float64) {
	i0, a, tau := p[0], p[1], p[3]
	e := math.Exp(-(x - i0) / tau)
	dst[0] = a * e / tau
	dst[1] = e
	dst[2] = 1
	dst[3] = a * e * (x - i0) / (tau * tau)
}

// estimateTau seeds tau from a log-linear regression of the tail above its
// minimum, over the stretch before it first falls to 5 % of its initial excess.
func estimateTau(y []float64) float64 {
	fallback := math.Max(1, float64(len(y))/4)

	base := floats.Min(y)
	first := y[0] - base
	if !(first > 0) {
		return fallback
	}

	var sumX, sumY, sumXX, sumXY float64
	n := 0
	for i, v := range y {
		z := v - base
		if z <= 0.05*first {
			break
		}
		x := float64(i)
		l := math.Log(z)
		sumX += x
		sumY += l
		sumXX += x * x
		sumXY += x * l
		n++
	}
	if n < 2 {
		return fallback
	}

	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return fallback
	}
	slope := (nf*sumXY - sumX*sumY) / denom
	if slope >= 0 {
		return fallback
	}
	return -1 / slope
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
