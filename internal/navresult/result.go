// Package navresult reads the navigation solutions produced downstream of
// the sensors: the 26-field text record, its 160-byte binary form and the
// $BDFPD sentence stream. They are used to check synchronised output
// against the navigation computer's own solution.
package navresult

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/sensorsync/internal/frames"
)

var (
	// ErrFieldCount is returned for a text record without 26 fields.
	ErrFieldCount = errors.New("wrong number of fields")
	// ErrNavStatus is returned for a navigation status outside {0,2,3,4}.
	ErrNavStatus = errors.New("unknown navigation status")
	// ErrFrameIndex is returned for a frame index outside [0, 199].
	ErrFrameIndex = errors.New("frame index out of range")
	// ErrChecksumMismatch is returned when a sentence checksum is wrong.
	ErrChecksumMismatch = errors.New("sentence checksum mismatch")
	// ErrMalformedSentence is returned for a sentence that cannot be split.
	ErrMalformedSentence = errors.New("malformed sentence")
)

// MaxFrameIndex is the largest frame sequence number before wrap-around.
const MaxFrameIndex = 199

// NavStatus is the state of the navigation computer for a solution.
type NavStatus int

const (
	StatusInertialOnly  NavStatus = 0
	StatusLooseCoupling NavStatus = 2
	StatusAligning      NavStatus = 3
	StatusStandby       NavStatus = 4
)

// Valid reports whether s is one of the documented states.
func (s NavStatus) Valid() bool {
	switch s {
	case StatusInertialOnly, StatusLooseCoupling, StatusAligning, StatusStandby:
		return true
	}
	return false
}

func (s NavStatus) String() string {
	switch s {
	case StatusInertialOnly:
		return "inertial"
	case StatusLooseCoupling:
		return "loose-coupling"
	case StatusAligning:
		return "aligning"
	case StatusStandby:
		return "standby"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Solution is one position, velocity and attitude estimate.
type Solution struct {
	Longitude float64 `json:"longitude"` // degrees
	Latitude  float64 `json:"latitude"`  // degrees
	Altitude  float64 `json:"altitude"`  // metres
	VelX      float64 `json:"vel_x"`     // m/s
	VelY      float64 `json:"vel_y"`
	VelZ      float64 `json:"vel_z"`
	Roll      float64 `json:"roll"` // degrees
	Heading   float64 `json:"heading"`
	Pitch     float64 `json:"pitch"`
}

// Result is one navigation solution record: the combined GNSS/INS
// solution and the inertial-only solution for the same instant.
type Result struct {
	Time       frames.GnssTime `json:"time"`
	Timestamp  float64         `json:"timestamp"` // Unix seconds, NaN when Time is invalid
	Status     NavStatus       `json:"nav_status"`
	Combined   Solution        `json:"combined"`
	Inertial   Solution        `json:"inertial"`
	FrameIndex int             `json:"frame_index"`
}

// HasTimestamp reports whether the record's date was valid.
func (r Result) HasTimestamp() bool { return !math.IsNaN(r.Timestamp) }

// Timestamps extracts the timestamps of results in order.
func Timestamps(results []Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Timestamp
	}
	return out
}

// Stats counts what a read pass kept and skipped.
type Stats struct {
	Records           int
	Skipped           int
	InvalidTimestamps int
	TrailingBytes     int // binary only: incomplete record at end of input
}
