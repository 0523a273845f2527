package smooth

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-ringdown/dsp/peaks"
	"github.com/cwbudde/algo-ringdown/internal/testutil"
)

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		w    int
		want []float64
		lead int
	}{
		{name: "identity", x: []float64{1, 2, 3}, w: 1, want: []float64{1, 2, 3}, lead: 0},
		{name: "odd window", x: []float64{3, 6, 9, 12, 15}, w: 3, want: []float64{6, 9, 12}, lead: 1},
		{name: "even window", x: []float64{1, 3, 5, 7}, w: 2, want: []float64{2, 4, 6}, lead: 0},
		{name: "full width", x: []float64{2, 4, 6, 8}, w: 4, want: []float64{5}, lead: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, m, err := MovingAverage(tt.x, tt.w)
			if err != nil {
				t.Fatal(err)
			}
			testutil.RequireSliceNearlyEqual(t, got, tt.want, 1e-12)
			if m.Lead != tt.lead {
				t.Fatalf("Lead = %d, want %d", m.Lead, tt.lead)
			}
			if m.Len() != len(got) {
				t.Fatalf("Len() = %d, smoothed length %d", m.Len(), len(got))
			}
		})
	}
}

func TestMovingAverageErrors(t *testing.T) {
	if _, _, err := MovingAverage([]float64{1, 2}, 0); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, _, err := MovingAverage([]float64{1, 2}, 3); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestIndexMapRoundTrip(t *testing.T) {
	m, err := NewIndexMap(5, 20)
	if err != nil {
		t.Fatal(err)
	}
	if m.Lead != 2 || m.Trail != 2 || m.Len() != 16 {
		t.Fatalf("unexpected map %+v (len %d)", m, m.Len())
	}

	for j := 0; j < m.Len(); j++ {
		back, ok := m.ToSmoothed(m.ToOriginal(j))
		if !ok || back != j {
			t.Fatalf("round trip %d -> %d (ok=%v)", j, back, ok)
		}
	}

	if _, ok := m.ToSmoothed(1); ok {
		t.Fatal("index inside the leading margin must not map")
	}
	if _, ok := m.ToSmoothed(18); ok {
		t.Fatal("index inside the trailing margin must not map")
	}
}

func TestIndexMapTrimMatchesCentre(t *testing.T) {
	// The moving average of a ramp equals the ramp value at the window centre,
	// so the trimmed ramp must equal the smoothed ramp for odd windows.
	x := testutil.Ramp(0, 1, 12)
	got, m, err := MovingAverage(x, 5)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireSliceNearlyEqual(t, got, m.Trim(x), 1e-12)
}

func TestIndexMapImpulseLocation(t *testing.T) {
	x := testutil.Impulse(15, 7)
	got, m, err := MovingAverage(x, 3)
	if err != nil {
		t.Fatal(err)
	}
	// The smoothed impulse is a plateau of width 3 centred on the original index.
	centre := m.ToOriginal(6)
	if centre != 7 {
		t.Fatalf("centre = %d, want 7", centre)
	}
	if got[6] == 0 || got[5] == 0 || got[7] == 0 {
		t.Fatalf("unexpected smoothed impulse %v", got)
	}
}

func TestMovingAverageWideWindowKeepsPlateauFlat(t *testing.T) {
	// A saturated pulse top: 200 samples at 0.7 on a zero baseline.
	x := make([]float64, 500)
	for i := 200; i < 400; i++ {
		x[i] = 0.7
	}

	for _, tt := range []struct {
		w        int
		from, to int // smoothed indices of windows fully on the plateau
	}{
		{w: 80, from: 200, to: 320},
		{w: 9, from: 200, to: 391},
	} {
		got, m, err := MovingAverage(x, tt.w)
		if err != nil {
			t.Fatal(err)
		}
		for j := tt.from; j <= tt.to; j++ {
			if got[j] != got[tt.from] {
				t.Fatalf("w=%d: smoothed[%d] = %v, smoothed[%d] = %v", tt.w, j, got[j], tt.from, got[tt.from])
			}
		}
		for j := 0; j < 100; j++ {
			if got[j] != 0 {
				t.Fatalf("w=%d: baseline smoothed[%d] = %v, want 0", tt.w, j, got[j])
			}
		}

		found := peaks.Find(got, peaks.Options{MinHeight: peaks.NoHeight})
		if len(found) != 1 {
			t.Fatalf("w=%d: %d maxima, want the plateau only: %v", tt.w, len(found), peaks.Indices(found))
		}
		want := m.ToOriginal((tt.from + tt.to) / 2)
		if got := m.ToOriginal(found[0].Index); got != want {
			t.Fatalf("w=%d: plateau midpoint at %d, want %d", tt.w, got, want)
		}
	}
}
