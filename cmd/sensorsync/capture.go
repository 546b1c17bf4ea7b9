package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/sensorsync/internal/capture"
	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/export"
	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/monitoring"
)

var frameHeader = []string{"kind", "timestamp", "utc", "a", "b", "c", "d", "e", "f"}

// frameRow renders a stamped frame: GNSS rows carry longitude, latitude,
// altitude and velocity, IMU rows gyro and accelerometer axes.
func frameRow(f frames.Frame) []string {
	g := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	switch f.Kind {
	case frames.KindGnss:
		r := f.Gnss
		return []string{"gnss", g(r.Timestamp), export.UTC(r.Timestamp), g(r.Longitude), g(r.Latitude), g(r.Altitude), g(r.VelX), g(r.VelY), g(r.VelZ)}
	default:
		r := f.Imu
		return []string{"imu", g(r.Timestamp), export.UTC(r.Timestamp), g(r.GyroX), g(r.GyroY), g(r.GyroZ), g(r.AccelX), g(r.AccelY), g(r.AccelZ)}
	}
}

func captureSerial(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, verbose := newFlagSet("capture", stderr)
	configPath := fs.String("config", "", "Pipeline config whose serial section names the port")
	port := fs.String("port", "", "Serial port device")
	baud := fs.Int("baud", 0, "Baud rate (default 115200)")
	dataBits := fs.Int("data-bits", 0, "Data bits (default 8)")
	stopBits := fs.Int("stop-bits", 0, "Stop bits: 1 or 2 (default 1)")
	parity := fs.String("parity", "", "Parity: N, E or O (default N)")
	rawOut := fs.String("out", "", "File receiving the raw bytes")
	csvOut := fs.String("csv", "", "File receiving the stamped frames as CSV")
	rate := fs.Float64("rate", 0, "Nominal IMU rate in Hz (default 95)")
	duration := fs.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(stderr, *verbose)

	serialCfg := &config.SerialConfig{}
	if *configPath != "" {
		cfg, err := config.LoadPipelineConfig(*configPath)
		if err != nil {
			return err
		}
		if cfg.Serial != nil {
			serialCfg = cfg.Serial
		}
		if *rate == 0 && cfg.ImuRateHz != nil {
			*rate = cfg.GetImuRateHz()
		}
	}
	opts := capture.OptionsFromConfig(serialCfg)
	path := serialCfg.Port
	if *port != "" {
		path = *port
	}
	if path == "" {
		return errors.New("a serial port is required (-port or serial.port in -config)")
	}
	if *baud != 0 {
		opts.BaudRate = *baud
	}
	if *dataBits != 0 {
		opts.DataBits = *dataBits
	}
	if *stopBits != 0 {
		opts.StopBits = *stopBits
	}
	if *parity != "" {
		opts.Parity = *parity
	}

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	sum, err := captureTo(ctx, path, opts, capture.OpenSerial, *rawOut, *csvOut, *rate)
	fmt.Fprintf(stdout, "captured %s bytes: %s gnss, %s imu frames, %s checksum errors, %s stamped, %s unstamped\n",
		monitoring.Bytes(sum.Bytes), monitoring.Count(sum.Stats.GnssFrames), monitoring.Count(sum.Stats.ImuFrames),
		monitoring.Count(sum.Stats.ChecksumErrors), monitoring.Count(sum.Stamped), monitoring.Count(sum.Unstamped))
	if sum.Epoch != 0 {
		fmt.Fprintf(stdout, "epoch %s\n", export.UTC(sum.Epoch))
	}
	return err
}

// captureTo runs one capture session. Stopping on ctx is a normal end.
func captureTo(ctx context.Context, path string, opts capture.PortOptions, opener capture.Opener, rawOut, csvOut string, rate float64) (capture.Summary, error) {
	port, err := capture.Open(path, opts, opener)
	if err != nil {
		return capture.Summary{}, err
	}

	var copts capture.Options
	copts.RateHz = rate
	if rawOut != "" {
		f, err := os.Create(rawOut)
		if err != nil {
			_ = port.Close()
			return capture.Summary{}, err
		}
		defer f.Close()
		copts.Tee = f
	}
	var w *csv.Writer
	if csvOut != "" {
		f, err := os.Create(csvOut)
		if err != nil {
			_ = port.Close()
			return capture.Summary{}, err
		}
		defer f.Close()
		w = csv.NewWriter(f)
		if err := w.Write(frameHeader); err != nil {
			_ = port.Close()
			return capture.Summary{}, err
		}
	}
	copts.OnFrame = func(f frames.Frame) error {
		if w == nil {
			return nil
		}
		return w.Write(frameRow(f))
	}

	start := time.Now()
	sum, err := capture.Run(ctx, port, copts)
	if w != nil {
		w.Flush()
		if ferr := w.Error(); err == nil {
			err = ferr
		}
	}
	monitoring.Logf("capture: %s in %s", monitoring.Bytes(sum.Bytes), time.Since(start).Round(time.Millisecond))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return sum, err
}
