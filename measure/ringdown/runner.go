package ringdown

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Results caches the artifacts of one run. After a failure the field of the
// failing stage may hold partial diagnostics and later fields are zero.
type Results struct {
	SeriesID      uuid.UUID
	Interval      float64 // sampling interval of the series, seconds
	RawGroups     GroupResult
	AlignedGroups AlignResult
	Isolation     Isolation
	Fits          Fits
	TimeConstants TimeConstants
}

// pendingStage returns the first stage without output.
func (r *Results) pendingStage() Stage {
	switch {
	case len(r.RawGroups.Groups) == 0:
		return StageGroup
	case len(r.AlignedGroups.Groups) == 0:
		return StageAlign
	case r.Isolation.Windows == nil:
		return StageIsolate
	case r.Fits == nil:
		return StageFit
	default:
		return StageTimeConstants
	}
}

// Runner executes the pipeline stages with a fixed configuration.
type Runner struct {
	cfg      Config
	logger   *zap.Logger
	workers  int
	strategy Strategy
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithWorkers bounds the goroutines used for per-group and per-window work.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithStrategy selects the grouping strategy. The default is SpacedGroups.
func WithStrategy(s Strategy) Option {
	return func(r *Runner) {
		if s != nil {
			r.strategy = s
		}
	}
}

// NewRunner validates cfg and applies opts.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &Error{Stage: StageGroup, Kind: KindInput, Err: err}
	}
	r := &Runner{
		cfg:      cfg,
		logger:   zap.NewNop(),
		workers:  runtime.GOMAXPROCS(0),
		strategy: SpacedGroups{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the runner configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// Group runs the grouping strategy on ts.
func (r *Runner) Group(ctx context.Context, ts *TimeSeries) (GroupResult, error) {
	if err := ctx.Err(); err != nil {
		return GroupResult{}, err
	}
	res, err := r.strategy.Group(ts, r.cfg.Group)
	if err != nil {
		return res, err
	}

	log := r.logger.With(zap.String("series", ts.ID.String()))
	for _, d := range res.Discarded {
		log.Warn("group window starts before the analysed range",
			zap.Int("order", d.Order),
			zap.Float64("anchor_time", d.Time))
	}
	for _, g := range res.Groups {
		if g.Truncated {
			log.Warn("group window truncated",
				zap.Int("order", g.Order),
				zap.Int("samples", len(g.Samples)))
		}
	}
	log.Debug("grouped peaks",
		zap.String("strategy", r.strategy.Name()),
		zap.Int("peaks", len(res.Peaks)),
		zap.Int("groups", len(res.Groups)),
		zap.Int("half_width", res.HalfWidth))
	return res, nil
}

// Align aligns the groups to the first one.
func (r *Runner) Align(ctx context.Context, groups GroupResult) (AlignResult, error) {
	res, err := alignGroups(ctx, groups, r.workers)
	if err != nil {
		return res, err
	}
	r.logger.Debug("aligned groups", zap.Ints("shifts", res.Shifts()))
	return res, nil
}

// Isolate builds the composite and cuts the peak windows.
func (r *Runner) Isolate(ctx context.Context, aligned AlignResult) (Isolation, error) {
	if err := ctx.Err(); err != nil {
		return Isolation{}, err
	}
	iso, err := IsolatePeaks(aligned, r.cfg.Isolate)
	if err != nil {
		return iso, err
	}
	truncated := 0
	for _, row := range iso.Windows {
		for _, w := range row {
			if w.Truncated {
				truncated++
			}
		}
	}
	if truncated > 0 {
		r.logger.Warn("peak windows truncated", zap.Int("windows", truncated))
	}
	r.logger.Debug("isolated peaks",
		zap.Ints("canonical", iso.Peaks),
		zap.Int("composite_len", len(iso.Composite)))
	return iso, nil
}

// Fit fits every window on the worker pool.
func (r *Runner) Fit(ctx context.Context, iso Isolation) (Fits, error) {
	fits, err := fitAll(ctx, iso.Windows, r.cfg.Fit, r.workers, r.logger)
	if err != nil {
		return nil, err
	}
	valid, failed := fits.Count()
	r.logger.Debug("fitted decays", zap.Int("valid", valid), zap.Int("failed", failed))
	return fits, nil
}

// Run executes all stages on ts. The returned Results is never nil.
func (r *Runner) Run(ctx context.Context, ts *TimeSeries) (*Results, error) {
	res := &Results{}
	if ts != nil {
		res.SeriesID = ts.ID
		res.Interval = ts.SamplingInterval()
	}

	var err error
	if res.RawGroups, err = r.Group(ctx, ts); err != nil {
		return res, err
	}
	if res.AlignedGroups, err = r.Align(ctx, res.RawGroups); err != nil {
		return res, err
	}
	if res.Isolation, err = r.Isolate(ctx, res.AlignedGroups); err != nil {
		return res, err
	}
	if res.Fits, err = r.Fit(ctx, res.Isolation); err != nil {
		return res, err
	}
	res.TimeConstants = ExtractTimeConstants(res.Fits, res.Interval)

	s := res.TimeConstants.Summary()
	r.logger.Info("extracted time constants",
		zap.String("series", ts.ID.String()),
		zap.Int("valid", s.Valid),
		zap.Int("invalid", s.Invalid),
		zap.Float64("mean_tau", s.Mean),
		zap.Float64("std_tau", s.Std))
	return res, nil
}
