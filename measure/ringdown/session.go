package ringdown

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Session owns the current series and the cache of its last results. Series
// are identified by TimeSeries.ID: loading a series with a different ID starts
// a new version and cancels every run still working on the previous one.
type Session struct {
	runner *Runner

	mu      sync.Mutex
	series  *TimeSeries
	ctx     context.Context // done when a series with another ID is loaded
	cancel  context.CancelCauseFunc
	results *Results
}

// NewSession returns an empty session executing on r.
func NewSession(r *Runner) *Session {
	return &Session{runner: r}
}

// Load validates ts and makes it the current series. Reloading the current ID
// keeps runs in flight and the cached results.
func (s *Session) Load(ts *TimeSeries) error {
	if err := ts.Validate(); err != nil {
		return &Error{Stage: StageGroup, Kind: KindInput, Err: err}
	}

	s.mu.Lock()
	if s.series != nil && s.series.ID == ts.ID {
		s.series = ts
		s.mu.Unlock()
		s.runner.logger.Debug("series reloaded", zap.String("series", ts.ID.String()))
		return nil
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	prev := s.cancel
	s.series = ts
	s.ctx = ctx
	s.cancel = cancel
	s.results = nil
	s.mu.Unlock()

	if prev != nil {
		prev(ErrSuperseded)
	}
	s.runner.logger.Debug("series loaded",
		zap.String("series", ts.ID.String()),
		zap.Int("samples", ts.Len()),
		zap.Bool("voltage", ts.HasVoltage()))
	return nil
}

// Series returns the current series, or nil before the first Load.
func (s *Session) Series() *TimeSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series
}

// Results returns the results of the last successful run on the current
// series, or nil.
func (s *Session) Results() *Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Run analyses the current series. It fails with ErrSuperseded when another
// series is loaded before it finishes.
func (s *Session) Run(ctx context.Context) (*Results, error) {
	s.mu.Lock()
	ts, vctx := s.series, s.ctx
	s.mu.Unlock()
	if ts == nil {
		return nil, &Error{Stage: StageGroup, Kind: KindInput, Err: ErrEmptySeries}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(vctx, func() { cancel(context.Cause(vctx)) })
	defer stop()

	res, err := s.runner.Run(runCtx, ts)
	if vctx.Err() != nil {
		return nil, &Error{Stage: res.pendingStage(), Kind: KindInput, Err: fmt.Errorf("%w: series %s", ErrSuperseded, ts.ID)}
	}
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	if s.series.ID == res.SeriesID {
		s.results = res
	}
	s.mu.Unlock()
	return res, nil
}
