package conv

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-ringdown/internal/testutil"
)

func TestDirect(t *testing.T) {
	tests := []struct {
		name     string
		a        []float64
		b        []float64
		expected []float64
	}{
		{
			name:     "simple 3x3",
			a:        []float64{1, 2, 3},
			b:        []float64{1, 1, 1},
			expected: []float64{1, 3, 6, 5, 3},
		},
		{
			name:     "impulse",
			a:        []float64{1, 2, 3, 4, 5},
			b:        []float64{1},
			expected: []float64{1, 2, 3, 4, 5},
		},
		{
			name:     "delayed impulse",
			a:        []float64{1, 2, 3, 4, 5},
			b:        []float64{0, 0, 1},
			expected: []float64{0, 0, 1, 2, 3, 4, 5},
		},
		{
			name:     "symmetric",
			a:        []float64{1, 2, 1},
			b:        []float64{1, 2, 1},
			expected: []float64{1, 4, 6, 4, 1},
		},
		{
			name:     "simd path",
			a:        []float64{1, 0, 0, 0, 2},
			b:        []float64{1, 2, 3, 4},
			expected: []float64{1, 2, 3, 4, 2, 4, 6, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Direct(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.RequireSliceNearlyEqual(t, result, tt.expected, 1e-12)
		})
	}
}

func TestDirectErrors(t *testing.T) {
	if _, err := Direct(nil, []float64{1}); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if _, err := Direct([]float64{1}, nil); !errors.Is(err, ErrEmptyKernel) {
		t.Errorf("expected ErrEmptyKernel, got %v", err)
	}
}

func TestDirectModeValid(t *testing.T) {
	got, err := DirectMode([]float64{1, 2, 3, 4, 5}, []float64{1, 1, 1}, ModeValid)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireSliceNearlyEqual(t, got, []float64{6, 9, 12}, 1e-12)
}

func TestDirectModeEqualWindowsAreBitIdentical(t *testing.T) {
	x := make([]float64, 400)
	for i := 100; i < 300; i++ {
		x[i] = 0.7
	}
	box := make([]float64, 80)
	for i := range box {
		box[i] = 1
	}

	got, err := DirectMode(x, box, ModeValid)
	if err != nil {
		t.Fatal(err)
	}
	// Windows fully inside the plateau start at 100 and end at 220.
	for k := 101; k <= 220; k++ {
		if got[k] != got[100] {
			t.Fatalf("window %d = %v, window 100 = %v", k, got[k], got[100])
		}
	}
	for k := 0; k <= 20; k++ {
		if got[k] != 0 {
			t.Fatalf("baseline window %d = %v, want 0", k, got[k])
		}
	}
}

func TestCorrelateDirect(t *testing.T) {
	// Auto-correlation of a cosine peaks at zero lag.
	n := 256

	signal := make([]float64, n)
	for i := range signal {
		signal[i] = math.Cos(2 * math.Pi * float64(i) / 32)
	}

	result, err := CorrelateDirect(signal, signal)
	if err != nil {
		t.Fatalf("auto-correlation failed: %v", err)
	}

	peakIdx, _ := FindPeak(result)
	if peakIdx != n-1 {
		t.Errorf("peak at index %d, expected %d (lag %d)", peakIdx, n-1, LagFromIndex(peakIdx, n))
	}
}

func TestCorrelateFFT(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
	}{
		{"short", []float64{1, 2, 3, 4, 5}, []float64{1, 2, 3}},
		{"longer candidate", testutil.DeterministicNoise(3, 1, 70), testutil.DeterministicNoise(4, 1, 150)},
		{"longer reference", testutil.DeterministicNoise(5, 1, 200), testutil.DeterministicNoise(6, 1, 90)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CorrelateFFT(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CorrelateFFT failed: %v", err)
			}
			direct, _ := CorrelateDirect(tt.a, tt.b)
			testutil.RequireSliceNearlyEqual(t, result, direct, 1e-8)
		})
	}
}

func TestCorrelateErrors(t *testing.T) {
	fns := map[string]func(a, b []float64) ([]float64, error){
		"CorrelateDirect": CorrelateDirect,
		"CorrelateFFT":    CorrelateFFT,
	}
	for name, fn := range fns {
		if _, err := fn(nil, []float64{1, 2}); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("%s: expected ErrEmptyInput, got %v", name, err)
		}
	}
	if _, _, err := BestLag([]float64{1}, nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("BestLag: expected ErrEmptyInput, got %v", err)
	}
}

func TestFindPeak(t *testing.T) {
	idx, val := FindPeak([]float64{1, 3, 2, 3})
	if idx != 1 || val != 3 {
		t.Fatalf("FindPeak = (%d, %v), want (1, 3): ties must resolve to the lowest index", idx, val)
	}

	idx, _ = FindPeak(nil)
	if idx != -1 {
		t.Fatalf("FindPeak(nil) index = %d, want -1", idx)
	}
}

func TestLagFromIndex(t *testing.T) {
	// A 5-sample candidate puts lag 0 at index 4.
	for idx, want := range map[int]int{0: -4, 4: 0, 11: 7} {
		if got := LagFromIndex(idx, 5); got != want {
			t.Fatalf("LagFromIndex(%d, 5) = %d, want %d", idx, got, want)
		}
	}
}

func TestBestLag(t *testing.T) {
	ref := []float64{0, 0, 1, 3, 1, 0, 0, 0}

	tests := []struct {
		name      string
		candidate []float64
		want      int
	}{
		{name: "identical", candidate: ref, want: 0},
		{name: "delayed by two", candidate: []float64{0, 0, 0, 0, 1, 3, 1, 0}, want: -2},
		{name: "advanced by one", candidate: []float64{0, 1, 3, 1, 0, 0, 0, 0}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lag, _, err := BestLag(ref, tt.candidate)
			if err != nil {
				t.Fatal(err)
			}
			if lag != tt.want {
				t.Fatalf("lag = %d, want %d", lag, tt.want)
			}
		})
	}
}

func TestBestLagLongInputsMatchDirect(t *testing.T) {
	for _, n := range []int{65, 70, 120, 300} {
		x := testutil.DeterministicNoise(int64(n), 1, n)

		delayed := append(make([]float64, 17), x...)
		repeated := append(append([]float64{}, x...), x...)

		cases := map[string][]float64{
			"identical": x,
			"delayed":   delayed,
			// x repeated twice ties lag -n with lag 0.
			"repeated": repeated,
		}
		for name, cand := range cases {
			corr, _ := CorrelateDirect(x, cand)
			wantIdx, wantVal := FindPeak(corr)
			wantLag := LagFromIndex(wantIdx, len(cand))

			lag, val, err := BestLag(x, cand)
			if err != nil {
				t.Fatalf("n=%d %s: %v", n, name, err)
			}
			if lag != wantLag || math.Abs(val-wantVal) > 1e-12*math.Abs(wantVal) {
				t.Fatalf("n=%d %s: BestLag = (%d, %v), direct = (%d, %v)", n, name, lag, val, wantLag, wantVal)
			}
		}

		lag, _, _ := BestLag(x, repeated)
		if lag != -n {
			t.Fatalf("n=%d: tied lag = %d, want the lowest lag %d", n, lag, -n)
		}
		lag, _, _ = BestLag(x, delayed)
		if lag != -17 {
			t.Fatalf("n=%d: delayed lag = %d, want -17", n, lag)
		}
	}
}

func TestBestLagZeroInputs(t *testing.T) {
	lag, val, err := BestLag(make([]float64, 100), make([]float64, 100))
	if err != nil {
		t.Fatal(err)
	}
	if lag != -99 || val != 0 {
		t.Fatalf("BestLag(zeros) = (%d, %v), want (-99, 0)", lag, val)
	}
}
