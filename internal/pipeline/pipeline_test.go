package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/export"
	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/fsutil"
	"github.com/banshee-data/sensorsync/internal/navresult"
	"github.com/banshee-data/sensorsync/internal/resample"
	"github.com/banshee-data/sensorsync/internal/store"
	"github.com/banshee-data/sensorsync/internal/testutil"
	"github.com/banshee-data/sensorsync/internal/timeutil"
)

const (
	fixCount = 30 // 10 Hz fixes over 2.9 s
	imuCount = 200
	imuRate  = 95.0
)

var epoch = testutil.Epoch

func ptr[T any](v T) *T { return &v }

func quiet(t *testing.T) { testutil.QuietLogs(t) }

// writeLogs writes a GNSS log of n fixes preceded by one fix with an
// invalid date, and an IMU log of m records.
func writeLogs(t *testing.T, dir string, n, m int) (gnssPath, imuPath string) {
	t.Helper()
	bad := testutil.Fix(0)
	bad.Time.Month = 0
	gnss := append(frames.EncodeGnss(bad), testutil.GnssLog(n)...)
	return testutil.WriteFile(t, dir, "gnss.bin", gnss), testutil.WriteFile(t, dir, "imu.bin", testutil.ImuLog(m))
}

func testConfig(t *testing.T, n, m int) *config.PipelineConfig {
	t.Helper()
	dir := t.TempDir()
	g, i := writeLogs(t, dir, n, m)
	cfg := config.NewPipelineConfig(g, i)
	cfg.OutputDir = ptr(filepath.Join(dir, "out"))
	cfg.ImuRateHz = ptr(imuRate)
	cfg.GeneratePlots = ptr(false)
	cfg.Workers = ptr(2)
	return cfg
}

func TestRunImuGrid(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, fixCount, imuCount)
	cfg.AlignmentSampleSize = ptr(100)
	cfg.SaveGPX = ptr(true)
	cfg.DatabasePath = ptr(filepath.Join(filepath.Dir(cfg.GetOutputDir()), "runs.db"))

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Len(t, res.Gnss, fixCount+1)
	assert.Equal(t, 1, res.GnssStats.InvalidTimestamps)
	assert.Len(t, res.Imu, imuCount)
	assert.Equal(t, epoch, res.Epoch, "epoch skips the invalid date")
	assert.Equal(t, epoch, res.Imu[0].Timestamp)
	assert.InDelta(t, epoch+10/imuRate, res.Imu[10].Timestamp, 1e-9)

	// 200 records at 95 Hz end well inside the 2.9 s of fixes.
	assert.Equal(t, imuCount, res.Targets)
	assert.Zero(t, res.Excluded)
	require.Len(t, res.Interpolated, imuCount)
	for k, r := range res.Interpolated {
		assert.Equal(t, res.Imu[k].Timestamp, r.Timestamp)
		assert.InDelta(t, 10+0.01*(r.Timestamp-epoch), r.Longitude, 1e-9)
	}

	assert.Equal(t, 100, res.Sample)
	assert.Equal(t, 100, res.Before.Count)
	assert.Equal(t, 100, res.After.Count)
	assert.Zero(t, res.After.MaxGap)
	assert.Equal(t, 100, res.After.Within5ms)
	assert.Greater(t, res.Before.MeanGap, 0.01)
	assert.True(t, res.Improved())
	assert.Equal(t, resample.Linear, res.Method)

	out := cfg.GetOutputDir()
	for _, name := range []string{export.AlignedFile, export.InterpolatedFile, export.TrajectoryFile, export.ReportFile} {
		assert.Contains(t, res.Outputs, filepath.Join(out, name))
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.Contains(t, res.Outputs, cfg.GetDatabasePath())

	raw, err := os.ReadFile(filepath.Join(out, export.ReportFile))
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, res.RunID, summary.RunID)
	assert.Equal(t, imuCount, summary.Interpolated)
	assert.True(t, summary.Improved)
	assert.Equal(t, res.After, summary.After)

	db, err := store.Open(cfg.GetDatabasePath())
	require.NoError(t, err)
	defer db.Close()
	run, err := db.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, fixCount+1, run.GnssRecords)
	assert.Equal(t, imuCount, run.InterpolatedRecords)
	reports, err := db.Reports(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Before, reports[store.StageBefore])
	assert.Equal(t, res.After, reports[store.StageAfter])
	stored, err := db.Interpolated(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, stored, imuCount)
}

func TestRunExcludesImuAfterLastFix(t *testing.T) {
	quiet(t)
	// 400 records at 95 Hz run past the last fix at 2.9 s.
	cfg := testConfig(t, fixCount, 400)
	p := &Pipeline{Config: cfg, Clock: timeutil.NewMockClock(time.Unix(0, 0))}

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	last := epoch + 2.9
	want := 0
	for _, r := range res.Imu {
		if r.Timestamp <= last {
			want++
		}
	}
	assert.Equal(t, want, res.Targets)
	assert.Equal(t, 400-want, res.Excluded)
	assert.LessOrEqual(t, res.Interpolated[len(res.Interpolated)-1].Timestamp, last)
	assert.Zero(t, res.Duration)
	assert.Empty(t, res.Outputs)
}

func TestRunUniformGrid(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, fixCount, imuCount)
	cfg.TargetGrid = ptr(config.TargetGridUniform)
	cfg.TargetRateHz = ptr(50.0)
	cfg.Interpolation = ptr("spline")
	p := &Pipeline{Config: cfg, Clock: timeutil.RealClock{}}

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, resample.CubicSpline, res.Method)
	assert.Zero(t, res.Excluded)
	assert.Equal(t, res.Targets, len(res.Interpolated))
	assert.InDelta(t, 146, len(res.Interpolated), 1)
	assert.Equal(t, epoch, res.Interpolated[0].Timestamp)
	for i := 1; i < len(res.Interpolated); i++ {
		assert.InDelta(t, 0.02, res.Interpolated[i].Timestamp-res.Interpolated[i-1].Timestamp, 1e-6)
	}
	// Every IMU time is at most half a 50 Hz period from a grid point.
	assert.LessOrEqual(t, res.After.MaxGap, 0.01+1e-6)
	assert.Equal(t, imuCount, res.After.Count)
}

func TestRunTooFewFixes(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, 1, imuCount)
	p := &Pipeline{Config: cfg, Clock: timeutil.RealClock{}}

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, resample.ErrTooFewSamples)
}

func TestRunNoImuRecords(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, fixCount, 0)
	p := &Pipeline{Config: cfg, Clock: timeutil.RealClock{}}

	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, ErrNoOverlap)
}

func TestRunMissingInput(t *testing.T) {
	quiet(t)
	cfg := config.NewPipelineConfig(filepath.Join(t.TempDir(), "missing.bin"), "imu.bin")
	_, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewPipelineConfig("g", "i")
	cfg.Interpolation = ptr("quadratic")
	_, err := New(cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfiguration)
}

type failingSink struct{}

func (failingSink) Name() string { return "broken" }
func (failingSink) Write(context.Context, *Results) ([]string, error) {
	return []string{"partial"}, errors.New("disk full")
}

func TestSinkErrorsKeepResults(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, fixCount, imuCount)
	mem := fsutil.NewMemoryFileSystem()
	p := &Pipeline{Config: cfg, Clock: timeutil.RealClock{}}
	p.Sinks = append(DefaultSinks(cfg, mem), failingSink{})

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: disk full")
	require.NotNil(t, res)
	assert.Contains(t, res.Outputs, "partial")
	assert.True(t, mem.Exists(filepath.Join(cfg.GetOutputDir(), export.ReportFile)))
}

func TestDefaultSinks(t *testing.T) {
	cfg := config.NewPipelineConfig("g", "i")
	names := func(sinks []Sink) []string {
		var out []string
		for _, s := range sinks {
			out = append(out, s.Name())
		}
		return out
	}
	mem := fsutil.NewMemoryFileSystem()
	assert.Equal(t, []string{"files", "plots"}, names(DefaultSinks(cfg, mem)))

	cfg.GeneratePlots = ptr(false)
	cfg.DatabasePath = ptr("runs.db")
	assert.Equal(t, []string{"files", "store"}, names(DefaultSinks(cfg, mem)))
}

func TestFileSinkSelectsExports(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, fixCount, imuCount)
	cfg.SaveAligned = ptr(false)
	p := &Pipeline{Config: cfg, Clock: timeutil.RealClock{}}
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	mem := fsutil.NewMemoryFileSystem()
	sink := &FileSink{Writer: &export.Writer{FS: mem, Dir: "out"}, Interpolated: true}
	paths, err := sink.Write(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("out", export.InterpolatedFile), filepath.Join("out", export.ReportFile)}, paths)

	raw, err := mem.ReadFile(filepath.Join("out", export.ReportFile))
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, paths, summary.Outputs)
}

func TestPlotSink(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, fixCount, imuCount)
	cfg.GeneratePlots = ptr(true)
	mem := fsutil.NewMemoryFileSystem()
	p := &Pipeline{Config: cfg, Clock: timeutil.RealClock{}, Sinks: DefaultSinks(cfg, mem)}

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	plots, err := mem.List(filepath.Join(cfg.GetOutputDir(), PlotDir))
	require.NoError(t, err)
	var png, html int
	for _, name := range plots {
		switch {
		case strings.HasSuffix(name, ".png"):
			png++
		case strings.HasSuffix(name, ".html"):
			html++
		}
	}
	assert.Equal(t, 6, png)
	assert.Equal(t, 1, html)
	assert.Len(t, res.Outputs, 3+7) // aligned, interpolated, report.json plus 6 figures and the html report
}

func TestRunWithNavigationResults(t *testing.T) {
	quiet(t)
	cfg := testConfig(t, fixCount, imuCount)
	var lines []string
	for i := 0; i < 10; i++ {
		r := navresult.Result{
			Time:     frames.GnssTime{Year: 2024, Month: 5, Day: 1, Hour: 12, Minute: 0, Microsecond: uint32(i) * 200_000},
			Status:   navresult.StatusLooseCoupling,
			Combined: navresult.Solution{Longitude: 10, Latitude: 50},
		}
		lines = append(lines, navresult.FormatTextLine(r))
	}
	lines = append(lines, "not a navigation line")
	navPath := filepath.Join(filepath.Dir(cfg.GetOutputDir()), "nav.txt")
	require.NoError(t, os.WriteFile(navPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	cfg.ResultFile = ptr(navPath)

	p := &Pipeline{Config: cfg, Clock: timeutil.RealClock{}}
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Navigation)
	assert.Equal(t, navresult.FormatText, res.Navigation.Format)
	assert.Equal(t, 10, res.Navigation.Len())
	assert.Equal(t, 1, res.Navigation.Stats.Skipped)
	require.NotNil(t, res.NavReport)
	assert.Equal(t, 10, res.NavReport.Count)

	s := res.Summary()
	require.NotNil(t, s.Navigation)
	assert.Equal(t, 10, s.Navigation.Records)
	assert.Equal(t, res.NavReport, s.Navigation.Report)
}
