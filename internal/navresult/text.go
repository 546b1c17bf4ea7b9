package navresult

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/monitoring"
)

// TEXT_FIELD_COUNT is the number of whitespace separated fields per line:
// six time fields, status, nine combined and nine inertial values, and the
// frame index.
const TEXT_FIELD_COUNT = 26

// ParseTextLine parses one whitespace separated navigation record.
func ParseTextLine(line string) (Result, error) {
	parts := strings.Fields(line)
	if len(parts) != TEXT_FIELD_COUNT {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(parts), TEXT_FIELD_COUNT)
	}

	var ints [6]uint64
	bits := [6]int{16, 8, 8, 8, 8, 32}
	for i := range ints {
		v, err := strconv.ParseUint(parts[i], 10, bits[i])
		if err != nil {
			return Result{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		ints[i] = v
	}
	status, err := strconv.Atoi(parts[6])
	if err != nil {
		return Result{}, fmt.Errorf("field 7: %w", err)
	}

	var vals [18]float64
	for i := range vals {
		v, err := strconv.ParseFloat(parts[7+i], 64)
		if err != nil {
			return Result{}, fmt.Errorf("field %d: %w", 8+i, err)
		}
		vals[i] = v
	}
	frameIndex, err := strconv.Atoi(parts[25])
	if err != nil {
		return Result{}, fmt.Errorf("field 26: %w", err)
	}

	r := Result{
		Time: frames.GnssTime{
			Year:        uint16(ints[0]),
			Month:       uint8(ints[1]),
			Day:         uint8(ints[2]),
			Hour:        uint8(ints[3]),
			Minute:      uint8(ints[4]),
			Microsecond: uint32(ints[5]),
		},
		Status:     NavStatus(status),
		Combined:   solution(vals[0:9]),
		Inertial:   solution(vals[9:18]),
		FrameIndex: frameIndex,
	}
	if !r.Status.Valid() {
		return r, fmt.Errorf("%w: %d", ErrNavStatus, status)
	}
	if frameIndex < 0 || frameIndex > MaxFrameIndex {
		return r, fmt.Errorf("%w: %d not in [0, %d]", ErrFrameIndex, frameIndex, MaxFrameIndex)
	}
	// An invalid date keeps the record with a NaN timestamp, as for GNSS frames.
	r.Timestamp, _ = r.Time.Seconds()
	return r, nil
}

func solution(v []float64) Solution {
	return Solution{
		Longitude: v[0], Latitude: v[1], Altitude: v[2],
		VelX: v[3], VelY: v[4], VelZ: v[5],
		Roll: v[6], Heading: v[7], Pitch: v[8],
	}
}

// ReadText parses every line of r. Blank lines are ignored; malformed
// lines are skipped and counted. Only read errors are returned.
func ReadText(r io.Reader) ([]Result, Stats, error) {
	var (
		out   []Result
		stats Stats
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		res, err := ParseTextLine(text)
		if err != nil {
			stats.Skipped++
			monitoring.Logf("navresult: line %d skipped: %v", line, err)
			continue
		}
		if !res.HasTimestamp() {
			stats.InvalidTimestamps++
		}
		stats.Records++
		out = append(out, res)
	}
	if err := sc.Err(); err != nil {
		return out, stats, fmt.Errorf("reading navigation text: %w", err)
	}
	return out, stats, nil
}

// FormatTextLine renders r in the 26-field text layout.
func FormatTextLine(r Result) string {
	var sb strings.Builder
	t := r.Time
	fmt.Fprintf(&sb, "%d %d %d %d %d %d %d", t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Microsecond, int(r.Status))
	for _, s := range []Solution{r.Combined, r.Inertial} {
		for _, v := range []float64{s.Longitude, s.Latitude, s.Altitude, s.VelX, s.VelY, s.VelZ, s.Roll, s.Heading, s.Pitch} {
			sb.WriteByte(' ')
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	fmt.Fprintf(&sb, " %d", r.FrameIndex)
	return sb.String()
}
