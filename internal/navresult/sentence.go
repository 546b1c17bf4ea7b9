package navresult

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/sensorsync/internal/monitoring"
)

// FPD_FIELD_COUNT is the number of comma separated fields after the
// sentence identifier.
const FPD_FIELD_COUNT = 15

// GPS time starts 1980-01-06T00:00:00Z and runs ahead of UTC by the leap
// seconds accumulated since then.
const (
	GPS_EPOCH_UNIX    = 315964800
	SECONDS_PER_WEEK  = 604800
	GPS_UTC_LEAP_SECS = 18
)

// Position is one $BDFPD sentence: attitude, position and velocity at a
// GPS week time.
type Position struct {
	Talker     string  `json:"talker"` // "BD", "GP" or "GN"
	GPSWeek    int     `json:"gps_week"`
	GPSSeconds float64 `json:"gps_seconds"` // seconds into the week
	Heading    float64 `json:"heading"`     // degrees
	Pitch      float64 `json:"pitch"`
	Roll       float64 `json:"roll"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Altitude   float64 `json:"altitude"`
	VelEast    float64 `json:"vel_east"`
	VelNorth   float64 `json:"vel_north"`
	VelUp      float64 `json:"vel_up"`
	Baseline   float64 `json:"baseline"`
	NSV1       int     `json:"nsv1"` // satellites, antenna 1
	NSV2       int     `json:"nsv2"` // satellites, antenna 2
	Status     string  `json:"status"`
}

// UnixSeconds converts the GPS week time to Unix seconds (UTC).
func (p Position) UnixSeconds() float64 {
	return GPS_EPOCH_UNIX + float64(p.GPSWeek)*SECONDS_PER_WEEK + p.GPSSeconds - GPS_UTC_LEAP_SECS
}

// SentenceChecksum is the XOR of every byte between '$' and '*'.
func SentenceChecksum(body string) byte {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

// ParseSentence parses one "$xxFPD,...*hh" sentence. The checksum is
// required.
func ParseSentence(line string) (Position, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Position{}, fmt.Errorf("%w: missing '$'", ErrMalformedSentence)
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || star+3 != len(line) {
		return Position{}, fmt.Errorf("%w: missing '*hh' checksum", ErrMalformedSentence)
	}
	body := line[1:star]
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return Position{}, fmt.Errorf("%w: checksum %q: %v", ErrMalformedSentence, line[star+1:], err)
	}
	if got := SentenceChecksum(body); got != byte(want) {
		return Position{}, fmt.Errorf("%w: computed %02X, sentence carries %02X", ErrChecksumMismatch, got, want)
	}

	parts := strings.Split(body, ",")
	id := parts[0]
	if len(id) != 5 || !strings.HasSuffix(id, "FPD") {
		return Position{}, fmt.Errorf("%w: unexpected sentence %q", ErrMalformedSentence, id)
	}
	if len(parts)-1 != FPD_FIELD_COUNT {
		return Position{}, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(parts)-1, FPD_FIELD_COUNT)
	}
	f := parts[1:]

	p := Position{Talker: id[:2], Status: f[14]}
	if p.GPSWeek, err = strconv.Atoi(f[0]); err != nil {
		return Position{}, fmt.Errorf("gps week: %w", err)
	}
	floats := []*float64{&p.GPSSeconds, &p.Heading, &p.Pitch, &p.Roll, &p.Latitude, &p.Longitude,
		&p.Altitude, &p.VelEast, &p.VelNorth, &p.VelUp, &p.Baseline}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(f[1+i], 64); err != nil {
			return Position{}, fmt.Errorf("field %d: %w", 2+i, err)
		}
	}
	if p.NSV1, err = strconv.Atoi(f[12]); err != nil {
		return Position{}, fmt.Errorf("nsv1: %w", err)
	}
	if p.NSV2, err = strconv.Atoi(f[13]); err != nil {
		return Position{}, fmt.Errorf("nsv2: %w", err)
	}
	return p, nil
}

// EncodeSentence renders p as a $BDFPD sentence (or p.Talker's) with its
// checksum.
func EncodeSentence(p Position) string {
	talker := p.Talker
	if talker == "" {
		talker = "BD"
	}
	ff := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	body := strings.Join([]string{
		talker + "FPD",
		strconv.Itoa(p.GPSWeek),
		ff(p.GPSSeconds, 3),
		ff(p.Heading, 2), ff(p.Pitch, 2), ff(p.Roll, 2),
		ff(p.Latitude, 7), ff(p.Longitude, 7), ff(p.Altitude, 2),
		ff(p.VelEast, 3), ff(p.VelNorth, 3), ff(p.VelUp, 3),
		ff(p.Baseline, 3),
		strconv.Itoa(p.NSV1), strconv.Itoa(p.NSV2),
		p.Status,
	}, ",")
	return fmt.Sprintf("$%s*%02X", body, SentenceChecksum(body))
}

// ReadSentences parses every sentence in r. Lines that are not FPD
// sentences or fail their checksum are skipped and counted.
func ReadSentences(r io.Reader) ([]Position, Stats, error) {
	var (
		out   []Position
		stats Stats
	)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		p, err := ParseSentence(text)
		if err != nil {
			stats.Skipped++
			monitoring.Logf("navresult: sentence on line %d skipped: %v", line, err)
			continue
		}
		stats.Records++
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return out, stats, fmt.Errorf("reading sentences: %w", err)
	}
	return out, stats, nil
}
