package ringdown

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// TimeWindow restricts grouping to [Start, End) in seconds. Use math.Inf for
// an open side.
type TimeWindow struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// Between returns a window from start to end.
func Between(start, end float64) *TimeWindow {
	return &TimeWindow{Start: start, End: end}
}

// GroupConfig holds the PeakGrouper parameters.
type GroupConfig struct {
	GroupLen        float64     `yaml:"group_len"` // minimum gap between groups and half-width of a group window, in seconds
	PeakMinHeight   float64     `yaml:"peak_min_height"`
	PeakProminence  float64     `yaml:"peak_prominence"`
	SmoothingWindow int         `yaml:"smoothing_window"`
	Mirrored        bool        `yaml:"mirrored"` // keep every other group, starting with the first
	Window          *TimeWindow `yaml:"window"`   // nil analyses the whole series
}

// IsolateConfig holds the PeakIsolator parameters.
type IsolateConfig struct {
	PeakWidth       int     `yaml:"peak_width"` // window width in samples around each canonical peak
	SmoothingWindow int     `yaml:"smoothing_window"`
	PeakMinHeight   float64 `yaml:"peak_min_height"`
	PeakProminence  float64 `yaml:"peak_prominence"`
	TimeShift       int     `yaml:"time_shift"` // offset of every window in samples
}

// FitConfig holds the DecayFitter parameters.
type FitConfig struct {
	A  float64 `yaml:"a"`
	Y0 float64 `yaml:"y0"`
	// Tau is the decay seed in samples. Values <= 0 request an estimate from
	// the window itself.
	Tau       float64 `yaml:"tau"`
	TimeShift int     `yaml:"time_shift"` // samples skipped after the onset before fitting

	// AdvancedPeakDetection locates the onset as the first peak passing
	// PeakMinHeight and PeakProminence instead of the window maximum.
	AdvancedPeakDetection bool    `yaml:"advanced_peak_detection"`
	PeakMinHeight         float64 `yaml:"peak_min_height"`
	PeakProminence        float64 `yaml:"peak_prominence"`

	MaxIterations int `yaml:"max_iterations"` // 0 selects the default of 10000
}

// Config enumerates every parameter of the pipeline.
type Config struct {
	Group   GroupConfig   `yaml:"group"`
	Isolate IsolateConfig `yaml:"isolate"`
	Fit     FitConfig     `yaml:"fit"`
}

// DefaultConfig returns parameters suited to millisecond-scale ring-downs
// sampled at about 1 kHz.
func DefaultConfig() Config {
	return Config{
		Group: GroupConfig{
			GroupLen:        0.05,
			PeakMinHeight:   0.5,
			PeakProminence:  1,
			SmoothingWindow: 3,
		},
		Isolate: IsolateConfig{
			PeakWidth:       60,
			SmoothingWindow: 3,
			PeakMinHeight:   0.5,
			PeakProminence:  1,
		},
		Fit: FitConfig{
			A:             1,
			PeakMinHeight: 0.5,
			MaxIterations: 10000,
		},
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	if err := c.Group.Validate(); err != nil {
		return err
	}
	if err := c.Isolate.Validate(); err != nil {
		return err
	}
	return c.Fit.Validate()
}

// Validate checks the grouping parameters.
func (c GroupConfig) Validate() error {
	if !(c.GroupLen > 0) || math.IsInf(c.GroupLen, 0) {
		return fmt.Errorf("%w: group length must be > 0: %f", ErrInvalidParameter, c.GroupLen)
	}
	if c.SmoothingWindow < 1 {
		return fmt.Errorf("%w: smoothing window must be >= 1: %d", ErrInvalidParameter, c.SmoothingWindow)
	}
	if math.IsNaN(c.PeakMinHeight) || math.IsNaN(c.PeakProminence) {
		return fmt.Errorf("%w: peak thresholds must not be NaN", ErrInvalidParameter)
	}
	if c.Window != nil && (math.IsNaN(c.Window.Start) || math.IsNaN(c.Window.End)) {
		return fmt.Errorf("%w: time window bounds must not be NaN", ErrInvalidParameter)
	}
	return nil
}

// Validate checks the isolation parameters.
func (c IsolateConfig) Validate() error {
	if c.PeakWidth < 2 {
		return fmt.Errorf("%w: peak width must be >= 2: %d", ErrInvalidParameter, c.PeakWidth)
	}
	if c.SmoothingWindow < 1 {
		return fmt.Errorf("%w: smoothing window must be >= 1: %d", ErrInvalidParameter, c.SmoothingWindow)
	}
	if math.IsNaN(c.PeakMinHeight) || math.IsNaN(c.PeakProminence) {
		return fmt.Errorf("%w: peak thresholds must not be NaN", ErrInvalidParameter)
	}
	return nil
}

// Validate checks the fit parameters.
func (c FitConfig) Validate() error {
	if !(c.A >= 0) || math.IsInf(c.A, 0) {
		return fmt.Errorf("%w: amplitude guess must be finite and >= 0: %f", ErrInvalidParameter, c.A)
	}
	if math.IsNaN(c.Y0) || math.IsInf(c.Y0, 0) {
		return fmt.Errorf("%w: offset guess must be finite: %f", ErrInvalidParameter, c.Y0)
	}
	if math.IsNaN(c.Tau) || math.IsInf(c.Tau, 0) {
		return fmt.Errorf("%w: tau guess must be finite: %f", ErrInvalidParameter, c.Tau)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: iteration limit must be >= 0: %d", ErrInvalidParameter, c.MaxIterations)
	}
	return nil
}

// LoadConfig reads YAML parameters from r over a copy of base. Keys absent
// from the document keep their value in base; unknown keys are rejected.
func LoadConfig(r io.Reader, base Config) (Config, error) {
	cfg := base
	if base.Group.Window != nil {
		w := *base.Group.Window
		cfg.Group.Window = &w
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}
