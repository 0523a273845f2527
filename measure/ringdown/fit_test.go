package ringdown

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cwbudde/algo-ringdown/dsp/signal"
	"github.com/cwbudde/algo-ringdown/internal/testutil"
)

func decayWindow(t *testing.T, a, y0, tau, i0 float64, n int) PeakWindow {
	t.Helper()
	y, err := signal.NewGenerator().ExponentialDecay(a, y0, tau, i0, n)
	if err != nil {
		t.Fatal(err)
	}
	return PeakWindow{Group: 1, Peak: 2, End: n, Samples: y}
}

func TestFitWindowRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  FitConfig
	}{
		{"estimated tau", FitConfig{A: 1}},
		{"given tau", FitConfig{A: 2, Y0: 0.1, Tau: 20}},
		{"zero amplitude seed", FitConfig{Tau: 5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := decayWindow(t, 3, 0.5, 12, 5, 80)
			res := FitWindow(context.Background(), w, tc.cfg)
			if res.Err != nil {
				t.Fatal(res.Err)
			}
			if res.Group != 1 || res.Peak != 2 || res.Onset != 0 || res.TailStart != 0 {
				t.Errorf("group=%d peak=%d onset=%d tail=%d", res.Group, res.Peak, res.Onset, res.TailStart)
			}
			testutil.RequireRelNear(t, "tau", res.Params.Tau, 12, 1e-4)
			testutil.RequireRelNear(t, "y0", res.Params.Y0, 0.5, 1e-4)
			// a and i0 are only determined jointly through the curve.
			testutil.RequireRelNear(t, "f(0)", res.Params.At(0), w.Samples[0], 1e-6)
			testutil.RequireRelNear(t, "f(40)", res.Params.At(40), w.Samples[40], 1e-6)
			if res.Params.A < 0 {
				t.Errorf("A = %v violates its bound", res.Params.A)
			}
			if res.Covariance == nil || res.Covariance.SymmetricDim() != 4 {
				t.Fatal("missing covariance")
			}
			if res.Iterations == 0 {
				t.Error("no iterations recorded")
			}
		})
	}
}

func TestFitWindowNoisyWithinFivePercent(t *testing.T) {
	gen := signal.NewGeneratorWithOptions(nil, signal.WithSeed(3))
	y, err := gen.ExponentialDecay(10, 0.2, 8, 29, 60)
	if err != nil {
		t.Fatal(err)
	}
	// Rising edge before the onset.
	for i := 0; i < 29; i++ {
		y[i] = 10 * math.Exp(-float64((i-29)*(i-29))/2)
	}
	if err := gen.AddNoise(y, 0.01); err != nil {
		t.Fatal(err)
	}

	res := FitWindow(context.Background(), PeakWindow{Samples: y}, FitConfig{A: 1})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Onset != 29 {
		t.Errorf("Onset = %d, want 29", res.Onset)
	}
	testutil.RequireRelNear(t, "tau", res.Params.Tau, 8, 0.05)
	testutil.RequireFinite(t, []float64{res.StdErr.Tau, res.StdErr.Y0})
	if res.StdErr.Tau <= 0 || res.StdErr.Tau > 0.4 {
		t.Errorf("StdErr.Tau = %v, want a small positive value", res.StdErr.Tau)
	}
}

func TestFitWindowTimeShift(t *testing.T) {
	w := decayWindow(t, 3, 0, 12, 0, 60)
	res := FitWindow(context.Background(), w, FitConfig{A: 1, TimeShift: 10})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.TailStart != 10 || res.TailClipped {
		t.Errorf("TailStart = %d clipped=%v, want 10 unclipped", res.TailStart, res.TailClipped)
	}
	testutil.RequireRelNear(t, "tau", res.Params.Tau, 12, 1e-4)
}

func TestFitWindowNegativeTimeShiftIsReported(t *testing.T) {
	w := decayWindow(t, 3, 0, 12, 0, 60)
	res := FitWindow(context.Background(), w, FitConfig{A: 1, TimeShift: -5})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.TailStart != 0 || !res.TailClipped {
		t.Fatalf("TailStart = %d clipped=%v, want 0 clipped", res.TailStart, res.TailClipped)
	}
	testutil.RequireRelNear(t, "tau", res.Params.Tau, 12, 1e-4)
}

func TestFitAllLogsClippedTail(t *testing.T) {
	obs, logs := observer.New(zap.WarnLevel)
	iso := [][]PeakWindow{{decayWindow(t, 3, 0, 12, 0, 60)}}

	fits, err := fitAll(context.Background(), iso, FitConfig{A: 1, TimeShift: -5}, 1, zap.New(obs))
	if err != nil {
		t.Fatal(err)
	}
	if !fits[0][0].Valid() || !fits[0][0].TailClipped {
		t.Fatalf("fit = %+v, want a valid fit with a clipped tail", fits[0][0])
	}
	entries := logs.FilterMessage("fit tail clipped to window").All()
	if len(entries) != 1 {
		t.Fatalf("%d clipped-tail warnings, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["time_shift"]; got != int64(-5) {
		t.Errorf("time_shift field = %v, want -5", got)
	}
}

func TestFitWindowAdvancedOnset(t *testing.T) {
	// A small spike precedes the main peak; advanced detection with a height
	// threshold skips it.
	y := make([]float64, 50)
	y[3] = 0.3
	for i := 10; i < len(y); i++ {
		y[i] = 5 * math.Exp(-float64(i-10)/6)
	}
	y[9] = 1

	cfg := FitConfig{A: 1, AdvancedPeakDetection: true, PeakMinHeight: 0.5}
	res := FitWindow(context.Background(), PeakWindow{Samples: y}, cfg)
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Onset != 10 {
		t.Errorf("Onset = %d, want 10", res.Onset)
	}
	testutil.RequireRelNear(t, "tau", res.Params.Tau, 6, 1e-4)

	cfg.PeakMinHeight = 10
	res = FitWindow(context.Background(), PeakWindow{Samples: y}, cfg)
	if !errors.Is(res.Err, ErrNoPeaksFound) || KindOf(res.Err) != KindFit {
		t.Fatalf("err = %v, want per-window NoPeaksFound", res.Err)
	}
}

func TestFitWindowFailures(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		cfg     FitConfig
		want    error
	}{
		{"empty", []float64{}, FitConfig{A: 1}, ErrTailTooShort},
		{"short tail", []float64{1, 5, 3, 2}, FitConfig{A: 1}, ErrTailTooShort},
		{"shift past end", []float64{5, 4, 3, 2, 1, 0.5}, FitConfig{A: 1, TimeShift: 4}, ErrTailTooShort},
		{"flat", testutil.DC(2, 40), FitConfig{A: 1}, ErrFitDidNotConverge},
		{"iteration limit", decayWindow(t, 3, 0.5, 12, 5, 80).Samples, FitConfig{A: 1, MaxIterations: 1}, ErrFitDidNotConverge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := FitWindow(context.Background(), PeakWindow{Samples: tc.samples}, tc.cfg)
			if !errors.Is(res.Err, tc.want) {
				t.Fatalf("err = %v, want %v", res.Err, tc.want)
			}
			if res.Valid() {
				t.Error("failed fit reported valid")
			}
			if KindOf(res.Err) != KindFit {
				t.Errorf("KindOf = %v, want fit", KindOf(res.Err))
			}
		})
	}
}

func TestFitDecaysKeepsShapeAndIsolatesFailures(t *testing.T) {
	good := decayWindow(t, 3, 0.5, 12, 5, 80)
	iso := Isolation{Windows: [][]PeakWindow{
		{good, {Samples: testutil.DC(1, 30)}},
		{{Samples: []float64{}}, good},
	}}

	fits, err := FitDecays(context.Background(), iso, FitConfig{A: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(fits) != 2 || len(fits[0]) != 2 || len(fits[1]) != 2 {
		t.Fatalf("shape = %d×?, want 2×2", len(fits))
	}
	valid, failed := fits.Count()
	if valid != 2 || failed != 2 {
		t.Fatalf("valid=%d failed=%d, want 2/2", valid, failed)
	}
	if !fits[0][0].Valid() || fits[0][1].Valid() || fits[1][0].Valid() || !fits[1][1].Valid() {
		t.Error("failures leaked into sibling slots")
	}
}

func TestFitDecaysCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	iso := Isolation{Windows: [][]PeakWindow{{decayWindow(t, 3, 0.5, 12, 5, 80)}}}
	if _, err := FitDecays(ctx, iso, FitConfig{A: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestEstimateTau(t *testing.T) {
	w := decayWindow(t, 4, 1, 7, 0, 60)
	if got := estimateTau(w.Samples); math.Abs(got-7) > 1 {
		t.Errorf("estimateTau = %v, want about 7", got)
	}
	if got := estimateTau([]float64{1, 2, 3, 4}); got != 1 {
		t.Errorf("estimateTau(rising) = %v, want fallback 1", got)
	}
}
