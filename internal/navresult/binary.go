package navresult

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/monitoring"
)

// Binary record layout. The 159 bytes of fields are padded to a 160-byte
// record; the last byte is reserved.
const (
	BINARY_RECORD_SIZE = 160

	BIN_YEAR_OFFSET        = 0  // u16
	BIN_MONTH_OFFSET       = 2  // u8
	BIN_DAY_OFFSET         = 3  // u8
	BIN_HOUR_OFFSET        = 4  // u8
	BIN_MINUTE_OFFSET      = 5  // u8
	BIN_MICROSECOND_OFFSET = 6  // u32
	BIN_STATUS_OFFSET      = 10 // i8
	BIN_COMBINED_OFFSET    = 11 // 9 x f64
	BIN_INERTIAL_OFFSET    = 83 // 9 x f64
	BIN_FRAME_INDEX_OFFSET = 155
)

// ErrInvalidYear marks a binary record whose year is outside 2000..2100;
// such records are dropped.
var ErrInvalidYear = errors.New("navigation record year out of range")

// DecodeBinary decodes one 160-byte record. An unexpected navigation status
// is logged but the record is kept.
func DecodeBinary(buf []byte) (Result, error) {
	if len(buf) < BINARY_RECORD_SIZE {
		return Result{}, fmt.Errorf("%w: need %d bytes, have %d", frames.ErrTruncatedFrame, BINARY_RECORD_SIZE, len(buf))
	}
	le := binary.LittleEndian
	r := Result{
		Time: frames.GnssTime{
			Year:        le.Uint16(buf[BIN_YEAR_OFFSET:]),
			Month:       buf[BIN_MONTH_OFFSET],
			Day:         buf[BIN_DAY_OFFSET],
			Hour:        buf[BIN_HOUR_OFFSET],
			Minute:      buf[BIN_MINUTE_OFFSET],
			Microsecond: le.Uint32(buf[BIN_MICROSECOND_OFFSET:]),
		},
		Status:     NavStatus(int8(buf[BIN_STATUS_OFFSET])),
		Combined:   binarySolution(buf[BIN_COMBINED_OFFSET:]),
		Inertial:   binarySolution(buf[BIN_INERTIAL_OFFSET:]),
		FrameIndex: int(int32(le.Uint32(buf[BIN_FRAME_INDEX_OFFSET:]))),
	}
	if y := r.Time.Year; y < frames.MIN_VALID_YEAR || y > frames.MAX_VALID_YEAR {
		return r, fmt.Errorf("%w: %d", ErrInvalidYear, y)
	}
	if !r.Status.Valid() {
		monitoring.Logf("navresult: unexpected navigation status %d at frame %d", int(r.Status), r.FrameIndex)
	}
	r.Timestamp, _ = r.Time.Seconds()
	return r, nil
}

func binarySolution(b []byte) Solution {
	f := func(i int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return Solution{
		Longitude: f(0), Latitude: f(1), Altitude: f(2),
		VelX: f(3), VelY: f(4), VelZ: f(5),
		Roll: f(6), Heading: f(7), Pitch: f(8),
	}
}

// EncodeBinary serialises r into a 160-byte record.
func EncodeBinary(r Result) []byte {
	buf := make([]byte, BINARY_RECORD_SIZE)
	le := binary.LittleEndian
	le.PutUint16(buf[BIN_YEAR_OFFSET:], r.Time.Year)
	buf[BIN_MONTH_OFFSET] = r.Time.Month
	buf[BIN_DAY_OFFSET] = r.Time.Day
	buf[BIN_HOUR_OFFSET] = r.Time.Hour
	buf[BIN_MINUTE_OFFSET] = r.Time.Minute
	le.PutUint32(buf[BIN_MICROSECOND_OFFSET:], r.Time.Microsecond)
	buf[BIN_STATUS_OFFSET] = byte(int8(r.Status))
	for i, s := range []Solution{r.Combined, r.Inertial} {
		off := BIN_COMBINED_OFFSET + i*(BIN_INERTIAL_OFFSET-BIN_COMBINED_OFFSET)
		for j, v := range []float64{s.Longitude, s.Latitude, s.Altitude, s.VelX, s.VelY, s.VelZ, s.Roll, s.Heading, s.Pitch} {
			le.PutUint64(buf[off+8*j:], math.Float64bits(v))
		}
	}
	le.PutUint32(buf[BIN_FRAME_INDEX_OFFSET:], uint32(int32(r.FrameIndex)))
	return buf
}

// ReadBinary reads consecutive 160-byte records from src, decoding hex
// text as needed. Records with an invalid year are skipped; an incomplete
// tail is counted in Stats.TrailingBytes.
func ReadBinary(src frames.Source, enc frames.Encoding) ([]Result, Stats, error) {
	rc, err := frames.OpenRaw(src, enc)
	if err != nil {
		return nil, Stats{}, err
	}
	defer rc.Close()

	var (
		out   []Result
		stats Stats
		buf   = make([]byte, BINARY_RECORD_SIZE)
	)
	for {
		n, err := io.ReadFull(rc, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			stats.TrailingBytes = n
			monitoring.Logf("navresult: %d trailing bytes ignored", n)
			break
		}
		if err != nil {
			return out, stats, fmt.Errorf("reading navigation records: %w", err)
		}
		res, err := DecodeBinary(buf)
		if err != nil {
			stats.Skipped++
			continue
		}
		if !res.HasTimestamp() {
			stats.InvalidTimestamps++
		}
		stats.Records++
		out = append(out, res)
	}
	return out, stats, nil
}
