package signal

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-ringdown/dsp/core"
)

// Generator creates deterministic signals from a shared configuration.
type Generator struct {
	cfg  core.ProcessorConfig
	seed int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets deterministic random seed for noise generation.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// NewGenerator creates a configured signal generator.
func NewGenerator(opts ...core.ProcessorOption) *Generator {
	return &Generator{
		cfg:  core.ApplyProcessorOptions(opts...),
		seed: 1,
	}
}

// NewGeneratorWithOptions creates a configured signal generator with signal-specific options.
func NewGeneratorWithOptions(coreOpts []core.ProcessorOption, opts ...Option) *Generator {
	g := &Generator{
		cfg:  core.ApplyProcessorOptions(coreOpts...),
		seed: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Config returns the generator processor configuration.
func (g *Generator) Config() core.ProcessorConfig {
	return g.cfg
}

// Pulse describes one excitation followed by its ring-down. All times are in seconds.
type Pulse struct {
	Center    float64 // time of the maximum
	Amplitude float64
	RiseSigma float64 // Gaussian width of the rising edge; 0 gives an instantaneous rise
	Tau       float64 // exponential decay constant of the falling edge; 0 gives a symmetric Gaussian
}

// At evaluates the pulse at time t.
func (p Pulse) At(t float64) float64 {
	d := t - p.Center
	if d >= 0 && p.Tau > 0 {
		return p.Amplitude * math.Exp(-d/p.Tau)
	}
	if p.RiseSigma <= 0 {
		if d == 0 {
			return p.Amplitude
		}
		return 0
	}
	return p.Amplitude * math.Exp(-d*d/(2*p.RiseSigma*p.RiseSigma))
}

// Time returns the sample times 0, 1/fs, 2/fs, ... for the given number of samples.
func (g *Generator) Time(samples int) ([]float64, error) {
	if err := g.check("time", samples); err != nil {
		return nil, err
	}
	out := make([]float64, samples)
	for i := range out {
		out[i] = float64(i) / g.cfg.SampleRate
	}
	return out, nil
}

// PulseTrain sums the given pulses over the sample grid.
func (g *Generator) PulseTrain(pulses []Pulse, samples int) ([]float64, error) {
	if err := g.check("pulse train", samples); err != nil {
		return nil, err
	}
	out := make([]float64, samples)
	for _, p := range pulses {
		if p.RiseSigma < 0 || p.Tau < 0 {
			return nil, fmt.Errorf("pulse widths must be >= 0: sigma=%f tau=%f", p.RiseSigma, p.Tau)
		}
		for i := range out {
			out[i] += p.At(float64(i) / g.cfg.SampleRate)
		}
	}
	return out, nil
}

// ExponentialDecay generates y0 + a·exp(-(i-i0)/tau) over sample indices,
// with tau and i0 expressed in samples.
func (g *Generator) ExponentialDecay(a, y0, tau, i0 float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("decay samples must be > 0: %d", samples)
	}
	if tau <= 0 {
		return nil, fmt.Errorf("decay tau must be > 0: %f", tau)
	}
	out := make([]float64, samples)
	for i := range out {
		out[i] = y0 + a*math.Exp(-(float64(i)-i0)/tau)
	}
	return out, nil
}

// WhiteNoise generates deterministic white noise in [-amplitude, amplitude].
func (g *Generator) WhiteNoise(amplitude float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("noise samples must be > 0: %d", samples)
	}
	if amplitude < 0 {
		return nil, fmt.Errorf("noise amplitude must be >= 0: %f", amplitude)
	}
	out := make([]float64, samples)
	rng := rand.New(rand.NewSource(g.seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out, nil
}

// AddNoise adds deterministic white noise of the given amplitude to x in place.
func (g *Generator) AddNoise(x []float64, amplitude float64) error {
	if len(x) == 0 {
		return nil
	}
	noise, err := g.WhiteNoise(amplitude, len(x))
	if err != nil {
		return err
	}
	for i := range x {
		x[i] += noise[i]
	}
	return nil
}

func (g *Generator) check(what string, samples int) error {
	if samples <= 0 {
		return fmt.Errorf("%s samples must be > 0: %d", what, samples)
	}
	if g.cfg.SampleRate <= 0 {
		return fmt.Errorf("%s sample rate must be > 0: %f", what, g.cfg.SampleRate)
	}
	return nil
}
