package core

// ProcessorConfig defines common sampling settings shared by generators and analyzers.
type ProcessorConfig struct {
	SampleRate float64
}

// ProcessorOption mutates a ProcessorConfig.
type ProcessorOption func(*ProcessorConfig)

// DefaultProcessorConfig returns a 1 kHz configuration, a typical ring-down
// acquisition rate.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		SampleRate: 1000,
	}
}

// SampleInterval returns the sampling interval in seconds (1 / SampleRate).
// Returns 0 if the sample rate is not positive.
func (c ProcessorConfig) SampleInterval() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return 1 / c.SampleRate
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if sampleRate > 0 {
			cfg.SampleRate = sampleRate
		}
	}
}

// WithSampleInterval sets the sample rate from a sampling interval in seconds.
func WithSampleInterval(interval float64) ProcessorOption {
	return func(cfg *ProcessorConfig) {
		if interval > 0 {
			cfg.SampleRate = 1 / interval
		}
	}
}

// ApplyProcessorOptions applies zero or more options to the default config.
func ApplyProcessorOptions(opts ...ProcessorOption) ProcessorConfig {
	cfg := DefaultProcessorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
