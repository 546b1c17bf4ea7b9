// Package capture records raw GNSS/IMU frames from a serial receiver. The
// byte stream is optionally copied verbatim to a file and decoded live; IMU
// records are stamped as soon as the first valid GNSS fix fixes the epoch.
package capture

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/stamp"
)

// Opener opens the named port. Tests substitute their own.
type Opener func(path string, mode *serial.Mode) (io.ReadCloser, error)

// OpenSerial opens a real serial port.
func OpenSerial(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

// Open opens path with opts through opener, or OpenSerial when opener is nil.
func Open(path string, opts PortOptions, opener Opener) (io.ReadCloser, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if opener == nil {
		opener = OpenSerial
	}
	port, err := opener(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	monitoring.Logf("capture: opened %s at %d baud", path, mode.BaudRate)
	return port, nil
}

// Options controls a capture session.
type Options struct {
	// Tee receives every raw byte read from the port.
	Tee io.Writer
	// RateHz is the nominal IMU rate used for live stamping; zero means
	// stamp.DefaultRateHz.
	RateHz float64
	// OnFrame receives usable frames in stream order. IMU frames seen
	// before the epoch is known are held back and delivered stamped once
	// it is. Returning an error stops the capture.
	OnFrame func(frames.Frame) error
	// MaxPending bounds the IMU frames held back waiting for an epoch;
	// zero means DefaultMaxPending. When it is reached the held frames are
	// delivered unstamped and keep their slots on the grid.
	MaxPending int
}

// DefaultMaxPending is about ten minutes of IMU data at the default rate.
const DefaultMaxPending = 1 << 16

// Summary describes a finished capture.
type Summary struct {
	Bytes     int64
	Stats     frames.Stats
	Epoch     float64
	Stamped   int
	Unstamped int // IMU records delivered without an epoch
}

// Run reads from port until end of stream, an error, or ctx is cancelled.
// Cancellation closes the port to unblock a pending read; port is always
// closed when Run returns.
func Run(ctx context.Context, port io.ReadCloser, opts Options) (Summary, error) {
	rate := opts.RateHz
	if rate == 0 {
		rate = stamp.DefaultRateHz
	}
	live, err := newLiveStamper(rate, opts.MaxPending, opts.OnFrame)
	if err != nil {
		return Summary{}, err
	}

	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer func() {
		if stop() {
			_ = port.Close()
		}
	}()

	var r io.Reader = port
	if opts.Tee != nil {
		r = io.TeeReader(port, opts.Tee)
	}
	sc := frames.NewScanner(r)

	for sc.Next() {
		if err := live.push(sc.Frame()); err != nil {
			return live.summary(sc), err
		}
	}

	if ctx.Err() != nil {
		return live.summary(sc), ctx.Err()
	}
	if err := sc.Err(); err != nil {
		return live.summary(sc), err
	}
	if err := live.flush(); err != nil {
		return live.summary(sc), err
	}
	sum := live.summary(sc)
	monitoring.Logf("capture: %s bytes, %s gnss, %s imu frames, %s checksum errors",
		monitoring.Count(sum.Bytes), monitoring.Count(sum.Stats.GnssFrames),
		monitoring.Count(sum.Stats.ImuFrames), monitoring.Count(sum.Stats.ChecksumErrors))
	return sum, nil
}

type liveStamper struct {
	rate       float64
	maxPending int
	emit       func(frames.Frame) error
	assigner   *stamp.Assigner
	pending    []frames.Frame
	epoch      float64
	unstamped  int
}

func newLiveStamper(rate float64, maxPending int, emit func(frames.Frame) error) (*liveStamper, error) {
	// Validates rate before any byte is read.
	if _, err := stamp.NewAssigner(0, rate); err != nil {
		return nil, err
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	if emit == nil {
		emit = func(frames.Frame) error { return nil }
	}
	return &liveStamper{rate: rate, maxPending: maxPending, emit: emit}, nil
}

func (l *liveStamper) push(f frames.Frame) error {
	if !f.Usable() {
		return nil
	}
	switch f.Kind {
	case frames.KindImu:
		if l.assigner == nil {
			l.pending = append(l.pending, f)
			if len(l.pending) >= l.maxPending {
				return l.flush()
			}
			return nil
		}
		f.Imu = l.assigner.Next(f.Imu)
		return l.emit(f)
	case frames.KindGnss:
		if l.assigner == nil && f.Gnss.HasTimestamp() {
			a, err := stamp.NewAssigner(f.Gnss.Timestamp, l.rate)
			if err != nil {
				return err
			}
			// Frames already delivered unstamped still own their slots.
			a.Skip(l.unstamped)
			l.assigner = a
			l.epoch = f.Gnss.Timestamp
			monitoring.Logf("capture: epoch %.6f from gnss frame at offset %d", l.epoch, f.Offset)
			if err := l.release(); err != nil {
				return err
			}
		}
	}
	return l.emit(f)
}

// release delivers the held-back IMU frames now that the epoch is known.
func (l *liveStamper) release() error {
	for _, p := range l.pending {
		p.Imu = l.assigner.Next(p.Imu)
		if err := l.emit(p); err != nil {
			return err
		}
	}
	l.pending = nil
	return nil
}

// flush delivers IMU frames still waiting for an epoch, unstamped.
func (l *liveStamper) flush() error {
	if len(l.pending) > 0 {
		monitoring.Logf("capture: no valid gnss epoch, %d imu records left unstamped", len(l.pending))
	}
	pending := l.pending
	l.pending = nil
	for _, p := range pending {
		l.unstamped++
		if err := l.emit(p); err != nil {
			return err
		}
	}
	return nil
}

func (l *liveStamper) summary(sc *frames.Scanner) Summary {
	s := Summary{
		Bytes:     sc.Offset() + sc.Stats().TruncatedBytes,
		Stats:     sc.Stats(),
		Unstamped: l.unstamped,
	}
	if l.assigner != nil {
		s.Epoch = l.epoch
		s.Stamped = l.assigner.Count() - l.unstamped
	}
	return s
}
