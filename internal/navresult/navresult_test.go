package navresult

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func sampleResult(i int) Result {
	r := Result{
		Time:       frames.GnssTime{Year: 2024, Month: 3, Day: 15, Hour: 10, Minute: 30, Microsecond: uint32(i) * 10_000},
		Status:     StatusLooseCoupling,
		Combined:   Solution{Longitude: 116.39, Latitude: 39.9, Altitude: 52.5, VelX: 1.25, VelY: -0.5, VelZ: 0.125, Roll: 0.5, Heading: 271.25, Pitch: -1.5},
		Inertial:   Solution{Longitude: 116.3901, Latitude: 39.9001, Altitude: 52.75, VelX: 1.5, VelY: -0.25, VelZ: 0, Roll: 0.25, Heading: 271.5, Pitch: -1.25},
		FrameIndex: i % (MaxFrameIndex + 1),
	}
	r.Timestamp, _ = r.Time.Seconds()
	return r
}

func TestTextRoundTrip(t *testing.T) {
	want := sampleResult(7)
	got, err := ParseTextLine(FormatTextLine(want))
	if err != nil {
		t.Fatalf("ParseTextLine: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTextLineErrors(t *testing.T) {
	good := strings.Fields(FormatTextLine(sampleResult(1)))
	with := func(i int, v string) string {
		f := append([]string(nil), good...)
		f[i] = v
		return strings.Join(f, " ")
	}

	tests := []struct {
		name string
		line string
		want error
	}{
		{"too few fields", strings.Join(good[:25], " "), ErrFieldCount},
		{"status 1", with(6, "1"), ErrNavStatus},
		{"status 5", with(6, "5"), ErrNavStatus},
		{"frame index 200", with(25, "200"), ErrFrameIndex},
		{"frame index negative", with(25, "-1"), ErrFrameIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTextLine(tt.line); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if _, err := ParseTextLine(with(9, "high")); err == nil {
		t.Error("non numeric altitude accepted")
	}
}

func TestReadTextSkipsBadLines(t *testing.T) {
	bad := sampleResult(3)
	bad.Time.Month = 13

	input := strings.Join([]string{
		FormatTextLine(sampleResult(0)),
		"",
		"garbage line",
		FormatTextLine(sampleResult(1)),
		FormatTextLine(bad),
	}, "\n")

	results, stats, err := ReadText(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 || stats.Records != 3 || stats.Skipped != 1 || stats.InvalidTimestamps != 1 {
		t.Errorf("results=%d stats=%+v", len(results), stats)
	}
	if !math.IsNaN(results[2].Timestamp) {
		t.Errorf("invalid month should give NaN timestamp, got %v", results[2].Timestamp)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	want := sampleResult(42)
	buf := EncodeBinary(want)
	if len(buf) != BINARY_RECORD_SIZE {
		t.Fatalf("len = %d", len(buf))
	}
	got, err := DecodeBinary(buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeBinary(buf[:100]); !errors.Is(err, frames.ErrTruncatedFrame) {
		t.Errorf("short buffer: %v", err)
	}
}

func TestReadBinary(t *testing.T) {
	old := sampleResult(1)
	old.Time.Year = 1999
	odd := sampleResult(2)
	odd.Status = NavStatus(9) // kept with a warning

	var raw bytes.Buffer
	raw.Write(EncodeBinary(sampleResult(0)))
	raw.Write(EncodeBinary(old))
	raw.Write(EncodeBinary(odd))
	raw.Write([]byte{1, 2, 3})

	for _, enc := range []frames.Encoding{frames.EncodingRaw, frames.EncodingHex} {
		data := raw.Bytes()
		if enc == frames.EncodingHex {
			data = []byte(hex.EncodeToString(data))
		}
		results, stats, err := ReadBinary(frames.BytesSource(data), enc)
		if err != nil {
			t.Fatalf("%v: %v", enc, err)
		}
		want := Stats{Records: 2, Skipped: 1, TrailingBytes: 3}
		if stats != want {
			t.Errorf("%v: stats = %+v, want %+v", enc, stats, want)
		}
		if len(results) != 2 || results[1].Status != NavStatus(9) {
			t.Errorf("%v: results = %+v", enc, results)
		}
	}
}

func samplePosition() Position {
	return Position{
		Talker: "BD", GPSWeek: 2306, GPSSeconds: 266400.5,
		Heading: 271.25, Pitch: -1.5, Roll: 0.5,
		Latitude: 39.9071234, Longitude: 116.3912345, Altitude: 52.25,
		VelEast: 1.25, VelNorth: -0.5, VelUp: 0.125, Baseline: 1.2,
		NSV1: 14, NSV2: 12, Status: "0B",
	}
}

func TestSentenceRoundTrip(t *testing.T) {
	want := samplePosition()
	line := EncodeSentence(want)
	if !strings.HasPrefix(line, "$BDFPD,2306,266400.500,") {
		t.Errorf("unexpected sentence %q", line)
	}
	got, err := ParseSentence(line + "\r\n")
	if err != nil {
		t.Fatalf("ParseSentence(%q): %v", line, err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSentenceChecksum(t *testing.T) {
	// XOR of "AB" is 0x41 ^ 0x42.
	if got := SentenceChecksum("AB"); got != 0x03 {
		t.Errorf("SentenceChecksum = %02X", got)
	}

	line := EncodeSentence(samplePosition())
	corrupt := strings.Replace(line, "2306", "2307", 1)
	if _, err := ParseSentence(corrupt); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("corrupt sentence: %v", err)
	}

	star := strings.LastIndexByte(line, '*')
	if _, err := ParseSentence(line[:star]); !errors.Is(err, ErrMalformedSentence) {
		t.Errorf("no checksum: %v", err)
	}
	if _, err := ParseSentence(line[1:]); !errors.Is(err, ErrMalformedSentence) {
		t.Errorf("no dollar: %v", err)
	}

	body := "BDGGA,1,2"
	if _, err := ParseSentence("$" + body + "*" + strings.ToUpper(hex.EncodeToString([]byte{SentenceChecksum(body)}))); !errors.Is(err, ErrMalformedSentence) {
		t.Errorf("other sentence type: %v", err)
	}
}

func TestUnixSeconds(t *testing.T) {
	p := Position{GPSWeek: 0, GPSSeconds: GPS_UTC_LEAP_SECS}
	if got := p.UnixSeconds(); got != GPS_EPOCH_UNIX {
		t.Errorf("UnixSeconds = %v, want %v", got, GPS_EPOCH_UNIX)
	}
}

func TestDetectFormatAndRead(t *testing.T) {
	text := FormatTextLine(sampleResult(0)) + "\n" + FormatTextLine(sampleResult(1)) + "\n"
	sentences := EncodeSentence(samplePosition()) + "\n"
	raw := append(EncodeBinary(sampleResult(0)), EncodeBinary(sampleResult(1))...)
	hexText := hex.EncodeToString(raw[:BINARY_RECORD_SIZE]) + "\n" + hex.EncodeToString(raw[BINARY_RECORD_SIZE:]) + "\n"

	tests := []struct {
		name   string
		input  []byte
		format Format
		count  int
	}{
		{"text", []byte(text), FormatText, 2},
		{"sentence", []byte(sentences), FormatSentence, 1},
		{"binary", raw, FormatBinary, 2},
		{"hex", []byte(hexText), FormatBinaryHex, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.input); got != tt.format {
				t.Fatalf("DetectFormat = %v, want %v", got, tt.format)
			}
			set, err := Read(bytes.NewReader(tt.input))
			if err != nil {
				t.Fatal(err)
			}
			if set.Format != tt.format || set.Len() != tt.count || len(set.Timestamps()) != tt.count {
				t.Errorf("set = %v with %d records", set.Format, set.Len())
			}
		})
	}
}

func TestNavStatus(t *testing.T) {
	for _, s := range []NavStatus{0, 2, 3, 4} {
		if !s.Valid() {
			t.Errorf("%v should be valid", s)
		}
	}
	if NavStatus(1).Valid() || NavStatus(1).String() != "status(1)" {
		t.Error("status 1 should be invalid")
	}
	if StatusLooseCoupling.String() != "loose-coupling" {
		t.Errorf("String = %q", StatusLooseCoupling.String())
	}
}
