package ringdown

import (
	"errors"
	"fmt"
)

// Errors returned by the pipeline stages. Stage functions wrap them in *Error;
// test with errors.Is.
var (
	ErrEmptySeries            = errors.New("ringdown: time series is empty")
	ErrSeriesShape            = errors.New("ringdown: time series columns differ in length")
	ErrNotIncreasing          = errors.New("ringdown: time values are not strictly increasing")
	ErrInvalidRange           = errors.New("ringdown: start bound is not before end bound")
	ErrInvalidParameter       = errors.New("ringdown: invalid parameter")
	ErrNoVoltage              = errors.New("ringdown: series has no voltage channel")
	ErrStrategyNotImplemented = errors.New("ringdown: grouping strategy not implemented")
	ErrSuperseded             = errors.New("ringdown: input series was replaced")

	ErrEmptyResult  = errors.New("ringdown: no peak groups found")
	ErrNoPeaksFound = errors.New("ringdown: no peaks found")

	ErrInsufficientData = errors.New("ringdown: no groups to align")

	ErrFitDidNotConverge = errors.New("ringdown: fit did not converge")
	ErrTailTooShort      = errors.New("ringdown: decay tail too short to fit")
)

// Kind classifies errors by how the caller should react.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInput: malformed or missing upstream data; aborts the stage.
	KindInput
	// KindDetection: no groups or no composite peaks; aborts the raising stage.
	KindDetection
	// KindAlignment: nothing to align; aborts the stage.
	KindAlignment
	// KindFit: a single window failed; recorded in that window's slot.
	KindFit
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindDetection:
		return "detection"
	case KindAlignment:
		return "alignment"
	case KindFit:
		return "fit"
	default:
		return "unknown"
	}
}

// Stage names a pipeline stage.
type Stage string

const (
	StageGroup         Stage = "group"
	StageAlign         Stage = "align"
	StageIsolate       Stage = "isolate"
	StageFit           Stage = "fit"
	StageTimeConstants Stage = "time-constants"
)

// Error is a stage failure carrying its classification.
type Error struct {
	Stage Stage
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s stage (%s error): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hint returns an actionable message for the operator.
func (e *Error) Hint() string {
	switch {
	case errors.Is(e.Err, ErrEmptySeries):
		return "load a data file first"
	case errors.Is(e.Err, ErrSuperseded):
		return "a new data file was loaded; rerun the analysis"
	case errors.Is(e.Err, ErrInvalidRange):
		return "choose a start time before the end time"
	case errors.Is(e.Err, ErrNoVoltage), errors.Is(e.Err, ErrStrategyNotImplemented):
		return "use the spaced-groups strategy"
	case errors.Is(e.Err, ErrEmptyResult), errors.Is(e.Err, ErrInsufficientData):
		return "adjust grouping parameters"
	case errors.Is(e.Err, ErrNoPeaksFound):
		return "adjust peak width, height or prominence"
	case e.Kind == KindFit:
		return "adjust the initial guesses or the fit time shift"
	default:
		return "check the analysis parameters"
	}
}

// KindOf classifies err. Errors not produced by this package are KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return kindOfSentinel(err)
}

func kindOfSentinel(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrEmptySeries), errors.Is(err, ErrSeriesShape), errors.Is(err, ErrNotIncreasing),
		errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidParameter), errors.Is(err, ErrNoVoltage),
		errors.Is(err, ErrStrategyNotImplemented), errors.Is(err, ErrSuperseded):
		return KindInput
	case errors.Is(err, ErrEmptyResult), errors.Is(err, ErrNoPeaksFound):
		return KindDetection
	case errors.Is(err, ErrInsufficientData):
		return KindAlignment
	case errors.Is(err, ErrFitDidNotConverge), errors.Is(err, ErrTailTooShort):
		return KindFit
	default:
		return KindUnknown
	}
}

// stageError wraps err for stage, deriving the kind from the sentinel it wraps.
// Errors that already carry a stage are returned unchanged.
func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Stage: stage, Kind: kindOfSentinel(err), Err: err}
}
