package ringdown

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// TimeSeries is one acquisition: uniformly sampled times with the measured
// amplitude and an optional synchronized voltage channel.
//
// A TimeSeries is treated as immutable once created; stages read it
// concurrently without copying.
type TimeSeries struct {
	ID        uuid.UUID
	Time      []float64
	Amplitude []float64
	Voltage   []float64 // nil for two-column data
}

// NewTimeSeries validates the columns and assigns a fresh identity.
func NewTimeSeries(time, amplitude, voltage []float64) (*TimeSeries, error) {
	ts := &TimeSeries{
		ID:        uuid.New(),
		Time:      time,
		Amplitude: amplitude,
		Voltage:   voltage,
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	return ts, nil
}

// Validate checks the column invariants.
func (ts *TimeSeries) Validate() error {
	if ts == nil || len(ts.Time) == 0 {
		return ErrEmptySeries
	}
	if len(ts.Time) < 2 {
		return fmt.Errorf("%w: need at least 2 samples, have %d", ErrEmptySeries, len(ts.Time))
	}
	if len(ts.Amplitude) != len(ts.Time) {
		return fmt.Errorf("%w: %d times, %d amplitudes", ErrSeriesShape, len(ts.Time), len(ts.Amplitude))
	}
	if ts.Voltage != nil && len(ts.Voltage) != len(ts.Time) {
		return fmt.Errorf("%w: %d times, %d voltages", ErrSeriesShape, len(ts.Time), len(ts.Voltage))
	}
	for i := 1; i < len(ts.Time); i++ {
		if !(ts.Time[i] > ts.Time[i-1]) {
			return fmt.Errorf("%w: sample %d", ErrNotIncreasing, i)
		}
	}
	return nil
}

// Len returns the number of samples.
func (ts *TimeSeries) Len() int {
	return len(ts.Time)
}

// HasVoltage reports whether the voltage channel is present.
func (ts *TimeSeries) HasVoltage() bool {
	return len(ts.Voltage) > 0
}

// SamplingInterval returns (last time - first time) / sample count.
func (ts *TimeSeries) SamplingInterval() float64 {
	n := len(ts.Time)
	if n == 0 {
		return 0
	}
	return (ts.Time[n-1] - ts.Time[0]) / float64(n)
}

// IndexAt converts an absolute time to a sample index, |t - Time[0]| / interval,
// truncated toward zero. Times before the first sample map to 0 and times past
// the end map to Len().
func (ts *TimeSeries) IndexAt(t float64) int {
	return int(min(ts.position(t), float64(ts.Len())))
}

// position is IndexAt before clipping, kept in float64 so that distant times
// still compare correctly.
func (ts *TimeSeries) position(t float64) float64 {
	if t <= ts.Time[0] {
		return 0
	}
	return math.Trunc((t - ts.Time[0]) / ts.SamplingInterval())
}

// Samples converts a duration in seconds to a whole number of samples, capped
// at Len().
func (ts *TimeSeries) Samples(d float64) int {
	if d <= 0 {
		return 0
	}
	return int(min(math.Trunc(d/ts.SamplingInterval()), float64(ts.Len())))
}
