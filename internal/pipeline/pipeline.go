// Package pipeline runs a synchronisation job end to end: decode the GNSS
// and IMU logs, stamp the IMU records from the first valid GNSS fix,
// resample the GNSS fixes onto the IMU clock and report how the alignment
// improved. Results can be written as CSV, GPX, JSON, SQLite and charts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/sensorsync/internal/align"
	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/fsutil"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/navresult"
	"github.com/banshee-data/sensorsync/internal/resample"
	"github.com/banshee-data/sensorsync/internal/stamp"
	"github.com/banshee-data/sensorsync/internal/timeutil"
)

// ErrNoOverlap is returned when no target timestamp falls inside the GNSS
// time range.
var ErrNoOverlap = errors.New("no imu timestamps inside the gnss time range")

// Results is everything a run produced.
type Results struct {
	RunID string

	Gnss      []frames.GnssRecord // decoded, including invalid dates
	Imu       []frames.ImuRecord  // stamped
	GnssStats frames.Stats
	ImuStats  frames.Stats

	Epoch    float64
	Method   resample.Method
	Targets  int
	Excluded int // IMU records outside the GNSS time range

	Interpolated []resample.InterpolatedGnssRecord

	// Sample is the number of leading IMU records both alignments use.
	Sample      int
	BeforePairs []align.Pair
	AfterPairs  []align.Pair
	Before      align.Report
	After       align.Report

	Navigation *navresult.Set
	NavReport  *align.Report // navigation result times against the interpolated fixes

	Outputs  []string
	Duration time.Duration
}

// Improved reports whether resampling tightened the alignment.
func (r *Results) Improved() bool {
	return r.After.ImprovedOver(r.Before)
}

// Pipeline holds a validated configuration and the sinks to write to.
type Pipeline struct {
	Config *config.PipelineConfig
	Clock  timeutil.Clock
	Sinks  []Sink
}

// New validates cfg and returns a Pipeline with the sinks it enables.
func New(cfg *config.PipelineConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{Config: cfg, Clock: timeutil.RealClock{}, Sinks: DefaultSinks(cfg, fsutil.OSFileSystem{})}, nil
}

// Run validates cfg, runs it and writes the configured outputs.
func Run(ctx context.Context, cfg *config.PipelineConfig) (*Results, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// Run executes every step. Sink failures are returned after the results
// are complete, so the caller still gets the computed data.
func (p *Pipeline) Run(ctx context.Context) (*Results, error) {
	cfg := p.Config
	if err := cfg.ValidateInputs(); err != nil {
		return nil, err
	}
	start := p.Clock.Now()
	res := &Results{RunID: uuid.NewString()}

	monitoring.Logf("[1/5] decoding %s and %s", cfg.GetGnssFile(), cfg.GetImuFile())
	if err := p.decode(ctx, res); err != nil {
		return nil, err
	}

	monitoring.Logf("[2/5] stamping imu records at %g Hz", cfg.GetImuRateHz())
	if err := p.stamp(res); err != nil {
		return nil, err
	}

	monitoring.Logf("[3/5] aligning before resampling")
	valid := resample.PrepareGnss(res.Gnss)
	if len(valid) < 2 {
		return nil, fmt.Errorf("%d valid gnss fixes: %w", len(valid), resample.ErrTooFewSamples)
	}
	reference := p.reference(res)
	pairs, before, err := align.AlignParallel(ctx, reference, gnssTimestamps(valid), cfg.GetWorkers())
	if err != nil {
		return nil, fmt.Errorf("aligning before resampling: %w", err)
	}
	res.BeforePairs, res.Before = pairs, before
	monitoring.Logf("  before: %s", before)

	monitoring.Logf("[4/5] resampling gnss (%s, %s grid)", cfg.GetInterpolation(), cfg.GetTargetGrid())
	if err := p.resample(ctx, res, valid); err != nil {
		return nil, err
	}

	monitoring.Logf("[5/5] aligning after resampling")
	pairs, after, err := align.AlignParallel(ctx, reference, resample.Timestamps(res.Interpolated), cfg.GetWorkers())
	if err != nil {
		return nil, fmt.Errorf("aligning after resampling: %w", err)
	}
	res.AfterPairs, res.After = pairs, after
	monitoring.Logf("  after: %s", after)
	if !res.Improved() {
		monitoring.Logf("alignment did not improve: before %s, after %s", before, after)
	}

	if path := cfg.GetResultFile(); path != "" {
		if err := p.navigation(res, path); err != nil {
			return nil, err
		}
	}

	res.Duration = p.Clock.Since(start)
	var errs []error
	for _, sink := range p.Sinks {
		outputs, err := sink.Write(ctx, res)
		res.Outputs = append(res.Outputs, outputs...)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	monitoring.Logf("run finished in %s, %d outputs", res.Duration.Round(time.Millisecond), len(res.Outputs))
	return res, errors.Join(errs...)
}

func (p *Pipeline) decode(ctx context.Context, res *Results) error {
	cfg := p.Config
	gnssEnc, err := frames.ParseEncoding(cfg.GetGnssEncoding())
	if err != nil {
		return err
	}
	imuEnc, err := frames.ParseEncoding(cfg.GetImuEncoding())
	if err != nil {
		return err
	}

	var gnss, imu frames.Decoded
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := frames.ReadAll(frames.FileSource(cfg.GetGnssFile()), gnssEnc)
		if err != nil {
			return fmt.Errorf("decoding gnss: %w", err)
		}
		gnss = d
		return ctx.Err()
	})
	g.Go(func() error {
		d, err := frames.ReadAll(frames.FileSource(cfg.GetImuFile()), imuEnc)
		if err != nil {
			return fmt.Errorf("decoding imu: %w", err)
		}
		imu = d
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if n := len(gnss.Imu); n > 0 {
		debugf("pipeline: ignoring %d imu frames in the gnss log", n)
	}
	if n := len(imu.Gnss); n > 0 {
		debugf("pipeline: ignoring %d gnss frames in the imu log", n)
	}
	res.Gnss, res.GnssStats = gnss.Gnss, gnss.Stats
	res.Imu, res.ImuStats = imu.Imu, imu.Stats
	logStats("gnss", len(res.Gnss), res.GnssStats)
	logStats("imu", len(res.Imu), res.ImuStats)
	return nil
}

func logStats(name string, kept int, s frames.Stats) {
	monitoring.Logf("  %s: %s records (%s checksum errors, %s invalid timestamps, %s skipped)",
		name, monitoring.Count(kept), monitoring.Count(s.ChecksumErrors),
		monitoring.Count(s.InvalidTimestamps), monitoring.Bytes(s.SkippedBytes))
}

func (p *Pipeline) stamp(res *Results) error {
	epoch, err := stamp.EpochFromGnss(res.Gnss)
	if err != nil {
		return err
	}
	imu, err := stamp.Assign(res.Imu, epoch, p.Config.GetImuRateHz())
	if err != nil {
		return err
	}
	res.Epoch, res.Imu = epoch, imu
	debugf("pipeline: epoch %.6f, %d imu records span %.3f s", epoch, len(imu), float64(len(imu))/p.Config.GetImuRateHz())
	return nil
}

// reference returns the IMU timestamps both alignments are measured on.
func (p *Pipeline) reference(res *Results) []float64 {
	n := len(res.Imu)
	if size := p.Config.GetAlignmentSampleSize(); size > 0 && size < n {
		n = size
	}
	res.Sample = n
	return stamp.Timestamps(res.Imu[:n])
}

func (p *Pipeline) resample(ctx context.Context, res *Results, valid []frames.GnssRecord) error {
	cfg := p.Config
	m, err := resample.ParseMethod(cfg.GetInterpolation())
	if err != nil {
		return err
	}
	lo, hi := valid[0].Timestamp, valid[len(valid)-1].Timestamp

	var targets []float64
	switch cfg.GetTargetGrid() {
	case config.TargetGridUniform:
		targets, err = stamp.UniformGrid(lo, hi, cfg.GetTargetRateHz())
		if err != nil {
			return err
		}
	default:
		targets = imuTargets(res.Imu, lo, hi)
		res.Excluded = len(res.Imu) - len(targets)
	}
	if len(targets) == 0 {
		return ErrNoOverlap
	}
	res.Targets = len(targets)

	start := p.Clock.Now()
	out, err := resample.GnssParallel(ctx, valid, targets, m, cfg.GetWorkers())
	if err != nil {
		return fmt.Errorf("resampling gnss: %w", err)
	}
	res.Interpolated, res.Method = out, m
	monitoring.Logf("  %s fixes from %s in %s (%s excluded outside [%.3f, %.3f])",
		monitoring.Count(len(out)), monitoring.Count(len(valid)),
		monitoring.Rate(len(out), p.Clock.Since(start)), monitoring.Count(res.Excluded), lo, hi)
	return nil
}

// imuTargets returns the IMU timestamps within [lo, hi]. Stamped IMU
// timestamps are increasing, so the result is a contiguous run.
func imuTargets(imu []frames.ImuRecord, lo, hi float64) []float64 {
	ts := stamp.Timestamps(imu)
	i, _ := slices.BinarySearch(ts, lo)
	j, found := slices.BinarySearch(ts, hi)
	if found {
		j++
	}
	if i >= j {
		return nil
	}
	return ts[i:j]
}

func gnssTimestamps(records []frames.GnssRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Timestamp
	}
	return out
}

// navigation loads the navigation solution file and measures how closely
// its epochs line up with the interpolated fixes.
func (p *Pipeline) navigation(res *Results, path string) error {
	set, err := navresult.ReadFile(path)
	if err != nil {
		return err
	}
	res.Navigation = &set
	monitoring.Logf("  navigation results: %s %s records (%s skipped)",
		monitoring.Count(set.Len()), set.Format, monitoring.Count(set.Stats.Skipped))

	var ts []float64
	for _, t := range set.Timestamps() {
		if !math.IsNaN(t) {
			ts = append(ts, t)
		}
	}
	if len(ts) == 0 {
		return nil
	}
	slices.Sort(ts)
	_, report, err := align.Align(ts, resample.Timestamps(res.Interpolated))
	if err != nil {
		return fmt.Errorf("aligning navigation results: %w", err)
	}
	res.NavReport = &report
	monitoring.Logf("  navigation: %s", report)
	return nil
}
