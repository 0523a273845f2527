package ringdown

import (
	"testing"

	"github.com/cwbudde/algo-ringdown/dsp/core"
	"github.com/cwbudde/algo-ringdown/dsp/signal"
)

const (
	testRate = 1000.0
	testTau  = 0.008 // seconds, 8 samples at testRate
)

// pulseSeries samples pulses at 1 kHz, optionally adding uniform noise.
func pulseSeries(t testing.TB, samples int, pulses []signal.Pulse, noise float64) *TimeSeries {
	t.Helper()
	gen := signal.NewGeneratorWithOptions(
		[]core.ProcessorOption{core.WithSampleRate(testRate)},
		signal.WithSeed(7),
	)
	tm, err := gen.Time(samples)
	if err != nil {
		t.Fatal(err)
	}
	amp, err := gen.PulseTrain(pulses, samples)
	if err != nil {
		t.Fatal(err)
	}
	if noise > 0 {
		if err := gen.AddNoise(amp, noise); err != nil {
			t.Fatal(err)
		}
	}
	ts, err := NewTimeSeries(tm, amp, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

// ringdownTrain returns ten pulses 100 ms apart alternating between a tall
// and a short excitation.
func ringdownTrain() []signal.Pulse {
	pulses := make([]signal.Pulse, 10)
	for k := range pulses {
		amp := 10.0
		if k%2 == 1 {
			amp = 4
		}
		pulses[k] = signal.Pulse{
			Center:    0.05 + 0.1*float64(k),
			Amplitude: amp,
			RiseSigma: 0.001,
			Tau:       testTau,
		}
	}
	return pulses
}

// ringdownConfig matches ringdownTrain.
func ringdownConfig() Config {
	cfg := DefaultConfig()
	cfg.Group = GroupConfig{
		GroupLen:        0.05,
		PeakMinHeight:   0.5,
		PeakProminence:  1,
		SmoothingWindow: 3,
		Mirrored:        true,
	}
	cfg.Isolate.PeakWidth = 60
	return cfg
}
