// Command ringdown extracts exponential decay time constants from a ring-down
// acquisition.
//
// Usage:
//
//	ringdown [flags] -file data.csv
//	ringdown [flags] -synth
//
// The data file holds ';'-separated columns time, amplitude and an optional
// voltage; lines starting with '%' are comments. -synth analyses a generated
// pulse train instead, which -write can store for later runs.
//
// Examples:
//
//	ringdown -file run7.csv -mirrored
//	ringdown -file run7.csv -start 0.2 -end 1.4 -peak-width 80
//	ringdown -synth -noise 0.02 -write demo.csv
//	ringdown -config lab.yaml -file run7.csv -tau 8
//
// A -config file uses the keys group, isolate and fit with snake_case
// parameter names, for example:
//
//	group:
//	  group_len: 0.05
//	  mirrored: true
//	fit:
//	  advanced_peak_detection: true
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cwbudde/algo-ringdown/dsp/core"
	dspsignal "github.com/cwbudde/algo-ringdown/dsp/signal"
	"github.com/cwbudde/algo-ringdown/internal/datafile"
	"github.com/cwbudde/algo-ringdown/measure/ringdown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var re *ringdown.Error
		if errors.As(err, &re) {
			fmt.Fprintf(os.Stderr, "hint: %s\n", re.Hint())
		}
		os.Exit(1)
	}
}

type options struct {
	file      string
	config    string
	synth     bool
	noise     float64
	write     string
	start     float64
	end       float64
	workers   int
	verbose   bool
	logFormat string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := ringdown.DefaultConfig()
	var opts options

	fs := flag.NewFlagSet("ringdown", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.file, "file", "", "data file to analyse")
	fs.StringVar(&opts.config, "config", "", "YAML parameter file; flags given on the command line take precedence")
	fs.BoolVar(&opts.synth, "synth", false, "analyse a generated pulse train")
	fs.Float64Var(&opts.noise, "noise", 0.01, "noise amplitude of the generated pulse train")
	fs.StringVar(&opts.write, "write", "", "store the analysed series in this file")
	fs.Float64Var(&opts.start, "start", math.Inf(-1), "analyse from this time in seconds")
	fs.Float64Var(&opts.end, "end", math.Inf(1), "analyse up to this time in seconds")
	fs.IntVar(&opts.workers, "workers", 0, "parallel fits (0 uses all CPUs)")
	fs.BoolVar(&opts.verbose, "v", false, "log stage details")
	fs.StringVar(&opts.logFormat, "log-format", "console", "log encoding: console or json")

	fs.Float64Var(&cfg.Group.GroupLen, "group-len", cfg.Group.GroupLen, "minimum gap between groups and group half-width in seconds")
	fs.Float64Var(&cfg.Group.PeakMinHeight, "height", cfg.Group.PeakMinHeight, "minimum peak height for grouping")
	fs.Float64Var(&cfg.Group.PeakProminence, "prominence", cfg.Group.PeakProminence, "minimum peak prominence for grouping")
	fs.IntVar(&cfg.Group.SmoothingWindow, "smooth", cfg.Group.SmoothingWindow, "moving-average window for grouping")
	fs.BoolVar(&cfg.Group.Mirrored, "mirrored", cfg.Group.Mirrored, "keep every other group")

	fs.IntVar(&cfg.Isolate.PeakWidth, "peak-width", cfg.Isolate.PeakWidth, "window width around each canonical peak in samples")
	fs.IntVar(&cfg.Isolate.SmoothingWindow, "iso-smooth", cfg.Isolate.SmoothingWindow, "moving-average window for the composite")
	fs.Float64Var(&cfg.Isolate.PeakMinHeight, "iso-height", cfg.Isolate.PeakMinHeight, "minimum composite peak height")
	fs.Float64Var(&cfg.Isolate.PeakProminence, "iso-prominence", cfg.Isolate.PeakProminence, "minimum composite peak prominence")
	fs.IntVar(&cfg.Isolate.TimeShift, "iso-shift", cfg.Isolate.TimeShift, "window offset in samples")

	fs.Float64Var(&cfg.Fit.A, "a", cfg.Fit.A, "initial amplitude")
	fs.Float64Var(&cfg.Fit.Y0, "y0", cfg.Fit.Y0, "initial offset")
	fs.Float64Var(&cfg.Fit.Tau, "tau", cfg.Fit.Tau, "initial tau in samples (<= 0 estimates it)")
	fs.IntVar(&cfg.Fit.TimeShift, "fit-shift", cfg.Fit.TimeShift, "samples skipped after the onset")
	fs.BoolVar(&cfg.Fit.AdvancedPeakDetection, "advanced", cfg.Fit.AdvancedPeakDetection, "locate the onset with peak detection")
	fs.Float64Var(&cfg.Fit.PeakMinHeight, "fit-height", cfg.Fit.PeakMinHeight, "onset peak height (with -advanced)")
	fs.Float64Var(&cfg.Fit.PeakProminence, "fit-prominence", cfg.Fit.PeakProminence, "onset peak prominence (with -advanced)")
	fs.IntVar(&cfg.Fit.MaxIterations, "max-iter", cfg.Fit.MaxIterations, "fit iteration limit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: ringdown [flags] (-file data.csv | -synth)\n\n")
		fmt.Fprintf(stderr, "Extracts exponential decay time constants from a ring-down acquisition.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  ringdown -file run7.csv -mirrored\n")
		fmt.Fprintf(stderr, "  ringdown -synth -noise 0.02 -write demo.csv\n")
		fmt.Fprintf(stderr, "  ringdown -config lab.yaml -file run7.csv -tau 8\n")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.config != "" {
		loaded, err := loadConfig(opts.config, cfg)
		if err != nil {
			return err
		}
		cfg = loaded
		// re-apply explicit flags over the file
		if err := fs.Parse(args); err != nil {
			return err
		}
	}

	if !math.IsInf(opts.start, -1) || !math.IsInf(opts.end, 1) {
		cfg.Group.Window = ringdown.Between(opts.start, opts.end)
	}

	logger, err := newLogger(opts.logFormat, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cols, err := loadColumns(opts)
	if err != nil {
		return err
	}
	if opts.write != "" {
		if err := writeColumns(opts.write, cols); err != nil {
			return err
		}
	}

	runner, err := ringdown.NewRunner(cfg, ringdown.WithLogger(logger), ringdown.WithWorkers(opts.workers))
	if err != nil {
		return err
	}
	session := ringdown.NewSession(runner)

	ts, err := ringdown.NewTimeSeries(cols.Time, cols.Amplitude, cols.Voltage)
	if err != nil {
		return &ringdown.Error{Stage: ringdown.StageGroup, Kind: ringdown.KindInput, Err: err}
	}
	if err := session.Load(ts); err != nil {
		return err
	}

	res, err := session.Run(ctx)
	if err != nil {
		return err
	}

	printResults(stdout, res)
	return nil
}

func loadConfig(path string, base ringdown.Config) (ringdown.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, &ringdown.Error{Stage: ringdown.StageGroup, Kind: ringdown.KindInput, Err: err}
	}
	defer f.Close()

	cfg, err := ringdown.LoadConfig(f, base)
	if err != nil {
		return base, &ringdown.Error{Stage: ringdown.StageGroup, Kind: ringdown.KindInput, Err: fmt.Errorf("%s: %w", path, err)}
	}
	return cfg, nil
}

func newLogger(format string, verbose bool) (*zap.Logger, error) {
	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func loadColumns(opts options) (datafile.Columns, error) {
	switch {
	case opts.file != "" && opts.synth:
		return datafile.Columns{}, errors.New("-file and -synth are mutually exclusive")
	case opts.file != "":
		return datafile.ReadFile(opts.file)
	case opts.synth:
		return synthesize(opts.noise)
	default:
		return datafile.Columns{}, &ringdown.Error{Stage: ringdown.StageGroup, Kind: ringdown.KindInput, Err: ringdown.ErrEmptySeries}
	}
}

// synthesize generates ten 8 ms ring-downs 100 ms apart at 1 kHz, alternating
// between a tall and a short excitation.
func synthesize(noise float64) (datafile.Columns, error) {
	const samples = 1000
	gen := dspsignal.NewGenerator(core.WithSampleRate(1000))

	pulses := make([]dspsignal.Pulse, 10)
	for k := range pulses {
		amp := 10.0
		if k%2 == 1 {
			amp = 4
		}
		pulses[k] = dspsignal.Pulse{Center: 0.05 + 0.1*float64(k), Amplitude: amp, RiseSigma: 0.001, Tau: 0.008}
	}

	t, err := gen.Time(samples)
	if err != nil {
		return datafile.Columns{}, err
	}
	amp, err := gen.PulseTrain(pulses, samples)
	if err != nil {
		return datafile.Columns{}, err
	}
	if err := gen.AddNoise(amp, noise); err != nil {
		return datafile.Columns{}, err
	}
	return datafile.Columns{Time: t, Amplitude: amp}, nil
}

func writeColumns(path string, cols datafile.Columns) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := datafile.Write(f, cols); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printResults(w io.Writer, res *ringdown.Results) {
	fmt.Fprintf(w, "Series: %s\n", res.SeriesID)
	fmt.Fprintf(w, "Sampling interval: %.6g s\n", res.Interval)
	fmt.Fprintf(w, "Groups: %d (discarded %d)   Canonical peaks: %d\n\n",
		len(res.RawGroups.Groups), len(res.RawGroups.Discarded), len(res.Isolation.Peaks))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Group\tAnchor (s)\tShift\tPeak\tTau (ms)\tStdErr (ms)\tStatus\t\n")
	fmt.Fprintf(tw, "-----\t----------\t-----\t----\t--------\t-----------\t------\t\n")
	for g, row := range res.TimeConstants {
		group := res.AlignedGroups.Groups[g]
		for _, tc := range row {
			status := "ok"
			tau, stderr := fmt.Sprintf("%.4f", tc.Tau*1000), fmt.Sprintf("%.4f", tc.StdErr*1000)
			if !tc.Valid() {
				status, tau, stderr = "failed", "-", "-"
			}
			fmt.Fprintf(tw, "%d\t%.4f\t%d\t%d\t%s\t%s\t%s\t\n",
				group.Source.Order, group.Source.AnchorTime, group.Shift, tc.Peak, tau, stderr, status)
		}
	}
	tw.Flush()

	fmt.Fprintln(w)
	for k, s := range res.TimeConstants.PeakSummaries() {
		fmt.Fprintf(w, "Peak %d: tau = %.4f ± %.4f ms (%d ok, %d failed)\n", k, s.Mean*1000, s.Std*1000, s.Valid, s.Invalid)
	}
	s := res.TimeConstants.Summary()
	fmt.Fprintf(w, "All:    tau = %.4f ± %.4f ms (%d ok, %d failed)\n", s.Mean*1000, s.Std*1000, s.Valid, s.Invalid)
}
