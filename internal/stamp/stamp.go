// Package stamp gives IMU records timestamps. IMU frames carry no clock, so
// the k-th record of a stream is placed at epoch + k/rate, with the epoch
// taken from the first valid GNSS fix.
package stamp

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/frames"
)

// ErrNoValidEpoch is returned when no GNSS record has a usable timestamp.
var ErrNoValidEpoch = errors.New("no valid gnss timestamp to use as epoch")

// DefaultRateHz is the nominal output rate of the inertial unit.
const DefaultRateHz = 95.0

func checkRate(rateHz float64) error {
	if !(rateHz > 0) || math.IsInf(rateHz, 1) {
		return fmt.Errorf("%w: imu rate must be a positive finite number of hertz, got %v", config.ErrInvalidConfiguration, rateHz)
	}
	return nil
}

func checkEpoch(epoch float64) error {
	if math.IsNaN(epoch) || math.IsInf(epoch, 0) {
		return fmt.Errorf("%w: epoch must be finite, got %v", config.ErrInvalidConfiguration, epoch)
	}
	return nil
}

// Assign returns a copy of imu where the k-th record carries
// epoch + k/rateHz. The input slice is not modified.
func Assign(imu []frames.ImuRecord, epoch, rateHz float64) ([]frames.ImuRecord, error) {
	a, err := NewAssigner(epoch, rateHz)
	if err != nil {
		return nil, err
	}
	out := make([]frames.ImuRecord, len(imu))
	for i, rec := range imu {
		out[i] = a.Next(rec)
	}
	return out, nil
}

// Assigner stamps IMU records one at a time, for use directly on a decode
// stream. The zero value is not usable; call NewAssigner.
type Assigner struct {
	epoch  float64
	period float64
	rate   float64
	k      int
}

// NewAssigner validates epoch and rateHz before any record is seen.
func NewAssigner(epoch, rateHz float64) (*Assigner, error) {
	if err := checkRate(rateHz); err != nil {
		return nil, err
	}
	if err := checkEpoch(epoch); err != nil {
		return nil, err
	}
	return &Assigner{epoch: epoch, period: 1 / rateHz, rate: rateHz}, nil
}

// Next returns rec stamped with the next slot on the grid.
func (a *Assigner) Next(rec frames.ImuRecord) frames.ImuRecord {
	// epoch + k/rate, never a running sum.
	rec.Timestamp = a.epoch + float64(a.k)/a.rate
	a.k++
	return rec
}

// Skip advances the grid by n slots without stamping, for records that
// passed by before the epoch was known.
func (a *Assigner) Skip(n int) {
	if n > 0 {
		a.k += n
	}
}

// Count returns the number of slots used so far, skipped ones included.
func (a *Assigner) Count() int { return a.k }

// Period returns the nominal spacing between consecutive records in seconds.
func (a *Assigner) Period() float64 { return a.period }

// EpochFromGnss returns the timestamp of the first GNSS record with a valid
// date, in stream order.
func EpochFromGnss(gnss []frames.GnssRecord) (float64, error) {
	for _, r := range gnss {
		if r.HasTimestamp() {
			return r.Timestamp, nil
		}
	}
	return math.NaN(), ErrNoValidEpoch
}

// Timestamps extracts the timestamps of stamped IMU records.
func Timestamps(imu []frames.ImuRecord) []float64 {
	out := make([]float64, len(imu))
	for i, r := range imu {
		out[i] = r.Timestamp
	}
	return out
}

// UniformGrid returns start, start+1/rateHz, ... up to and including end
// (within a nanosecond of slack for float rounding). end < start yields an
// empty grid.
func UniformGrid(start, end, rateHz float64) ([]float64, error) {
	if err := checkRate(rateHz); err != nil {
		return nil, err
	}
	if err := checkEpoch(start); err != nil {
		return nil, err
	}
	if err := checkEpoch(end); err != nil {
		return nil, err
	}
	if end < start {
		return nil, nil
	}
	n := int(math.Floor((end-start)*rateHz+1e-9)) + 1
	out := make([]float64, 0, n)
	for k := 0; k < n; k++ {
		t := start + float64(k)/rateHz
		if t > end {
			t = end
		}
		out = append(out, t)
	}
	return out, nil
}
