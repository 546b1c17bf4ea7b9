package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/banshee-data/sensorsync/internal/charts"
	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/export"
	"github.com/banshee-data/sensorsync/internal/fsutil"
	"github.com/banshee-data/sensorsync/internal/store"
)

// PlotDir is the charts subdirectory of the output directory.
const PlotDir = "plots"

// Sink writes the results of a run somewhere and returns what it created.
type Sink interface {
	Name() string
	Write(ctx context.Context, res *Results) ([]string, error)
}

// DefaultSinks returns the sinks cfg enables, writing files on fsys.
func DefaultSinks(cfg *config.PipelineConfig, fsys fsutil.FileSystem) []Sink {
	w := &export.Writer{FS: fsys, Dir: cfg.GetOutputDir()}
	sinks := []Sink{&FileSink{
		Writer:       w,
		Aligned:      cfg.GetSaveAligned(),
		Interpolated: cfg.GetSaveInterpolated(),
		GPX:          cfg.GetSaveGPX(),
	}}
	if cfg.GetGeneratePlots() {
		sinks = append(sinks, &PlotSink{Plotter: &charts.Plotter{
			FS:         fsys,
			Dir:        filepath.Join(cfg.GetOutputDir(), PlotDir),
			MaxPoints:  cfg.GetPlotMaxPoints(),
			TimeWindow: cfg.GetPlotTimeWindowS(),
		}})
	}
	if path := cfg.GetDatabasePath(); path != "" {
		sinks = append(sinks, &StoreSink{Path: path, Config: cfg, SaveInterpolated: cfg.GetSaveInterpolated()})
	}
	return sinks
}

// FileSink writes the CSV, GPX and JSON exports.
type FileSink struct {
	Writer       *export.Writer
	Aligned      bool
	Interpolated bool
	GPX          bool
}

func (s *FileSink) Name() string { return "files" }

func (s *FileSink) Write(_ context.Context, res *Results) ([]string, error) {
	var out []string
	add := func(path string, err error) error {
		if err == nil {
			out = append(out, path)
		}
		return err
	}
	if s.Aligned && len(res.AfterPairs) > 0 {
		if err := add(s.Writer.Aligned(res.AfterPairs, res.Imu[:res.Sample], res.Interpolated)); err != nil {
			return out, err
		}
	}
	if s.Interpolated {
		if err := add(s.Writer.Interpolated(res.Interpolated)); err != nil {
			return out, err
		}
	}
	if s.GPX {
		if err := add(s.Writer.GPX(res.RunID, res.Interpolated)); err != nil {
			return out, err
		}
	}
	// Written last so the summary lists the files before it.
	summary := res.Summary()
	summary.Outputs = append(append(summary.Outputs, out...), s.Writer.Path(export.ReportFile))
	if err := add(s.Writer.Report(summary)); err != nil {
		return out, err
	}
	return out, nil
}

// PlotSink renders the PNG figures and the HTML report.
type PlotSink struct {
	Plotter *charts.Plotter
}

func (s *PlotSink) Name() string { return "plots" }

func (s *PlotSink) Write(_ context.Context, res *Results) ([]string, error) {
	paths, err := s.Plotter.All(res.Gnss, res.Imu, res.Interpolated)
	if err != nil {
		return paths, err
	}
	path, err := s.Plotter.HTMLReport(charts.ReportData{
		Title:        "sensorsync " + res.RunID,
		Before:       res.BeforePairs,
		After:        res.AfterPairs,
		Gnss:         res.Gnss,
		Interpolated: res.Interpolated,
	})
	if err != nil {
		return paths, err
	}
	return append(paths, path), nil
}

// StoreSink records the run in the SQLite database at Path.
type StoreSink struct {
	Path             string
	Config           *config.PipelineConfig
	SaveInterpolated bool
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, res *Results) ([]string, error) {
	db, err := store.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cfgJSON, err := json.Marshal(s.Config)
	if err != nil {
		return nil, err
	}
	run := &store.Run{
		RunID:               res.RunID,
		GnssFile:            s.Config.GetGnssFile(),
		ImuFile:             s.Config.GetImuFile(),
		Method:              res.Method,
		ImuRateHz:           s.Config.GetImuRateHz(),
		Epoch:               res.Epoch,
		GnssRecords:         len(res.Gnss),
		ImuRecords:          len(res.Imu),
		InterpolatedRecords: len(res.Interpolated),
		ConfigJSON:          cfgJSON,
	}
	if err := db.InsertRun(ctx, run); err != nil {
		return nil, err
	}
	if err := db.InsertReport(ctx, run.RunID, store.StageBefore, res.Before); err != nil {
		return nil, err
	}
	if err := db.InsertReport(ctx, run.RunID, store.StageAfter, res.After); err != nil {
		return nil, err
	}
	if res.NavReport != nil {
		if err := db.InsertReport(ctx, run.RunID, store.StageNavigation, *res.NavReport); err != nil {
			return nil, err
		}
	}
	if s.SaveInterpolated {
		if err := db.InsertInterpolated(ctx, run.RunID, res.Interpolated); err != nil {
			return nil, err
		}
	}
	return []string{s.Path}, nil
}
