package frames

import (
	"fmt"
	"math"
	"time"
)

// GnssTime is the calendar timestamp embedded in a GNSS frame. There is no
// seconds field: Microsecond counts microseconds within the minute.
type GnssTime struct {
	Year        uint16
	Month       uint8
	Day         uint8
	Hour        uint8
	Minute      uint8
	Microsecond uint32
}

type timeError struct {
	reason string
}

func (e *timeError) Error() string { return fmt.Sprintf("%v: %s", ErrInvalidTimestamp, e.reason) }
func (e *timeError) Unwrap() error { return ErrInvalidTimestamp }

// Validate checks the calendar fields. It returns an error wrapping
// ErrInvalidTimestamp naming the first offending field.
func (t GnssTime) Validate() error {
	switch {
	case t.Year < MIN_VALID_YEAR || t.Year > MAX_VALID_YEAR:
		return &timeError{fmt.Sprintf("year %d outside [%d, %d]", t.Year, MIN_VALID_YEAR, MAX_VALID_YEAR)}
	case t.Month < 1 || t.Month > 12:
		return &timeError{fmt.Sprintf("month %d outside [1, 12]", t.Month)}
	case t.Day < 1 || int(t.Day) > daysIn(t.Year, t.Month):
		return &timeError{fmt.Sprintf("day %d outside [1, %d] for %04d-%02d", t.Day, daysIn(t.Year, t.Month), t.Year, t.Month)}
	case t.Hour > 23:
		return &timeError{fmt.Sprintf("hour %d outside [0, 23]", t.Hour)}
	case t.Minute > 59:
		return &timeError{fmt.Sprintf("minute %d outside [0, 59]", t.Minute)}
	case t.Microsecond >= MICROS_PER_MINUTE:
		return &timeError{fmt.Sprintf("microsecond %d exceeds one minute", t.Microsecond)}
	}
	return nil
}

func daysIn(year uint16, month uint8) int {
	return time.Date(int(year), time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Seconds converts the calendar fields to seconds since the Unix epoch (UTC).
// Invalid dates yield NaN together with the validation error.
func (t GnssTime) Seconds() (float64, error) {
	if err := t.Validate(); err != nil {
		return math.NaN(), err
	}
	minute := time.Date(int(t.Year), time.Month(t.Month), int(t.Day), int(t.Hour), int(t.Minute), 0, 0, time.UTC)
	return float64(minute.Unix()) + float64(t.Microsecond)/MICROS_PER_SECOND, nil
}

// GnssRecord is one decoded GNSS frame. Records are values and are never
// mutated after decoding.
type GnssRecord struct {
	Time GnssTime

	// Timestamp is seconds since the Unix epoch, NaN when Time is invalid.
	// NaN records are retained but excluded from time-ordered operations.
	Timestamp float64

	Longitude float64 // degrees
	Latitude  float64 // degrees
	Altitude  float64 // metres, float32 on the wire
	VelX      float64 // m/s, float32 on the wire
	VelY      float64
	VelZ      float64

	// ChecksumValid is false when the frame failed its checksum; such
	// records are only visible on the Frame that reported the mismatch.
	ChecksumValid bool
}

// HasTimestamp reports whether the record can take part in time-ordered
// processing.
func (r GnssRecord) HasTimestamp() bool {
	return !math.IsNaN(r.Timestamp)
}

// ImuRecord is one decoded IMU frame. The frame carries no clock; Timestamp
// is NaN until the stamp package assigns one.
type ImuRecord struct {
	GyroX  float64 // rad/s
	GyroY  float64
	GyroZ  float64
	AccelX float64 // m/s²
	AccelY float64
	AccelZ float64

	Timestamp float64

	ChecksumValid bool
}

// HasTimestamp reports whether a timestamp has been assigned.
func (r ImuRecord) HasTimestamp() bool {
	return !math.IsNaN(r.Timestamp)
}

// ValidGnss returns the records with usable timestamps, preserving order.
func ValidGnss(records []GnssRecord) []GnssRecord {
	out := make([]GnssRecord, 0, len(records))
	for _, r := range records {
		if r.HasTimestamp() {
			out = append(out, r)
		}
	}
	return out
}
