package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/pipeline"
)

// pipelineFlags binds the command-line overrides of a PipelineConfig.
// Only flags that were set on the command line override the config file.
type pipelineFlags struct {
	configPath string
	gnss, imu  string
	result     string
	out        string
	db         string
	method     string
	grid       string
	gnssEnc    string
	imuEnc     string
	rate       float64
	targetRate float64
	workers    int
	sample     int
	plots      bool
	gpx        bool
}

func (p *pipelineFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.configPath, "config", "", "Pipeline config file (.json, .yaml or .yml)")
	fs.StringVar(&p.gnss, "gnss", "", "GNSS log file")
	fs.StringVar(&p.imu, "imu", "", "IMU log file")
	fs.StringVar(&p.result, "result", "", "Optional navigation result file")
	fs.StringVar(&p.out, "out", "output", "Output directory")
	fs.StringVar(&p.db, "db", "", "SQLite run database (empty disables)")
	fs.StringVar(&p.method, "method", "linear", "Interpolation method: linear or spline")
	fs.StringVar(&p.grid, "grid", config.TargetGridImu, "Resampling targets: imu or uniform")
	fs.StringVar(&p.gnssEnc, "gnss-encoding", "auto", "GNSS log encoding: auto, raw or hex")
	fs.StringVar(&p.imuEnc, "imu-encoding", "auto", "IMU log encoding: auto, raw or hex")
	fs.Float64Var(&p.rate, "rate", 95, "Nominal IMU rate in Hz")
	fs.Float64Var(&p.targetRate, "target-rate", 95, "Uniform grid rate in Hz")
	fs.IntVar(&p.workers, "workers", 0, "Worker goroutines (0 = one per CPU)")
	fs.IntVar(&p.sample, "sample", 0, "IMU records used for the alignment reports (0 = all)")
	fs.BoolVar(&p.plots, "plots", true, "Render PNG figures and the HTML report")
	fs.BoolVar(&p.gpx, "gpx", false, "Write the interpolated trajectory as GPX")
}

// config loads the config file, if any, and layers the flags set on fs
// over it.
func (p *pipelineFlags) config(fs *flag.FlagSet) (*config.PipelineConfig, error) {
	base := config.EmptyPipelineConfig()
	if p.configPath != "" {
		var err error
		if base, err = config.LoadPipelineConfig(p.configPath); err != nil {
			return nil, err
		}
	}
	o := config.EmptyPipelineConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gnss":
			o.GnssFile = &p.gnss
		case "imu":
			o.ImuFile = &p.imu
		case "result":
			o.ResultFile = &p.result
		case "out":
			o.OutputDir = &p.out
		case "db":
			o.DatabasePath = &p.db
		case "method":
			o.Interpolation = &p.method
		case "grid":
			o.TargetGrid = &p.grid
		case "gnss-encoding":
			o.GnssEncoding = &p.gnssEnc
		case "imu-encoding":
			o.ImuEncoding = &p.imuEnc
		case "rate":
			o.ImuRateHz = &p.rate
		case "target-rate":
			o.TargetRateHz = &p.targetRate
		case "workers":
			o.Workers = &p.workers
		case "sample":
			o.AlignmentSampleSize = &p.sample
		case "plots":
			o.GeneratePlots = &p.plots
		case "gpx":
			o.SaveGPX = &p.gpx
		}
	})
	cfg := base.WithOverrides(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runPipeline(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, verbose := newFlagSet("run", stderr)
	var pf pipelineFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 2 && pf.gnss == "" && pf.imu == "" {
		pf.gnss, pf.imu = fs.Arg(0), fs.Arg(1)
		_ = fs.Set("gnss", pf.gnss)
		_ = fs.Set("imu", pf.imu)
	}
	setupLogging(stderr, *verbose)

	cfg, err := pf.config(fs)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(ctx, cfg)
	if res != nil {
		printResults(stdout, res)
	}
	return err
}

func printResults(w io.Writer, res *pipeline.Results) {
	fmt.Fprintf(w, "run %s\n", res.RunID)
	fmt.Fprintf(w, "  gnss records:  %s (%s checksum errors, %s invalid dates)\n",
		monitoring.Count(len(res.Gnss)), monitoring.Count(res.GnssStats.ChecksumErrors), monitoring.Count(res.GnssStats.InvalidTimestamps))
	fmt.Fprintf(w, "  imu records:   %s (%s checksum errors)\n",
		monitoring.Count(len(res.Imu)), monitoring.Count(res.ImuStats.ChecksumErrors))
	fmt.Fprintf(w, "  interpolated:  %s %s fixes, %s outside the gnss range\n",
		monitoring.Count(len(res.Interpolated)), res.Method, monitoring.Count(res.Excluded))
	fmt.Fprintf(w, "  before:        %s\n", res.Before)
	fmt.Fprintf(w, "  after:         %s\n", res.After)
	if res.NavReport != nil {
		fmt.Fprintf(w, "  navigation:    %s\n", *res.NavReport)
	}
	verdict := "no"
	if res.Improved() {
		verdict = "yes"
	}
	fmt.Fprintf(w, "  improved:      %s\n", verdict)
	for _, o := range res.Outputs {
		fmt.Fprintf(w, "  wrote %s\n", o)
	}
}
