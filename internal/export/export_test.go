package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensorsync/internal/align"
	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/fsutil"
	"github.com/banshee-data/sensorsync/internal/resample"
	"github.com/banshee-data/sensorsync/internal/stamp"
)

const t0 = 1_710_498_600.0 // 2024-03-15T10:30:00Z

func fixes() []resample.InterpolatedGnssRecord {
	return []resample.InterpolatedGnssRecord{
		{Timestamp: t0, Longitude: 116.0, Latitude: 39.9, Altitude: 50, VelX: 1, Method: resample.Linear},
		{Timestamp: t0 + 0.5, Longitude: 116.05, Latitude: 39.95, Altitude: 51, VelX: 1.5, Method: resample.Linear},
	}
}

func imuRecords() []frames.ImuRecord {
	return []frames.ImuRecord{
		{Timestamp: t0 + 0.001, GyroZ: 0.1, AccelZ: 9.8},
		{Timestamp: t0 + 0.49, GyroZ: 0.2, AccelZ: 9.7},
	}
}

func TestUTC(t *testing.T) {
	assert.Equal(t, "2024-03-15T10:30:00.000000Z", UTC(t0))
	assert.Equal(t, "2024-03-15T10:30:00.500000Z", UTC(t0+0.5))
	assert.Equal(t, "2024-03-15T10:30:01.000000Z", UTC(t0+0.9999999))
}

func TestWriteAligned(t *testing.T) {
	pairs := []align.Pair{{Reference: 0, Match: 0, Gap: 0.001}, {Reference: 1, Match: 1, Gap: 0.01}}

	var buf bytes.Buffer
	require.NoError(t, WriteAligned(&buf, pairs, imuRecords(), fixes()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, AlignedHeader, rows[0])
	assert.Equal(t, "116.05", rows[2][3])
	assert.Equal(t, "0.2", rows[2][10])
	assert.Equal(t, "1", rows[1][14])
	assert.Equal(t, "10", rows[2][14])

	err = WriteAligned(&bytes.Buffer{}, []align.Pair{{Reference: 5}}, imuRecords(), fixes())
	assert.Error(t, err)
}

func TestWriteInterpolated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInterpolated(&buf, fixes()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, InterpolatedHeader, rows[0])
	assert.Equal(t, []string{"1710498600.5", "2024-03-15T10:30:00.500000Z", "39.95", "116.05", "51", "1.5", "0", "0", "linear"}, rows[2])
}

func TestWriteGPX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGPX(&buf, "run-1", fixes()))
	assert.True(t, strings.HasPrefix(buf.String(), xml.Header))

	var doc gpxDoc
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.Track.Name)
	require.Len(t, doc.Track.Segment.Points, 2)
	assert.Equal(t, 39.95, doc.Track.Segment.Points[1].Lat)
	assert.Equal(t, 116.05, doc.Track.Segment.Points[1].Lon)
	assert.Equal(t, "2024-03-15T10:30:00.500000Z", doc.Track.Segment.Points[1].Time)
}

func TestWriterFiles(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	w := &Writer{FS: mem, Dir: "/out/run"}

	pairs, report, err := align.Align(stamp.Timestamps(imuRecords()), resample.Timestamps(fixes()))
	require.NoError(t, err)

	path, err := w.Aligned(pairs, imuRecords(), fixes())
	require.NoError(t, err)
	assert.Equal(t, "/out/run/"+AlignedFile, path)

	_, err = w.Interpolated(fixes())
	require.NoError(t, err)
	_, err = w.GPX("run", fixes())
	require.NoError(t, err)
	_, err = w.Report(map[string]align.Report{"after": report})
	require.NoError(t, err)

	names, err := mem.List("/out/run")
	require.NoError(t, err)
	assert.Equal(t, []string{AlignedFile, InterpolatedFile, ReportFile, TrajectoryFile}, names)

	raw, err := mem.ReadFile(w.Path(ReportFile))
	require.NoError(t, err)
	var decoded map[string]align.Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, 2, decoded["after"].Count)
	assert.False(t, math.IsNaN(decoded["after"].MeanGap))
}
