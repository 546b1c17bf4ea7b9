package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/sensorsync/internal/align"
	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/resample"
)

// AlignedHeader is the column layout of AlignedFile.
var AlignedHeader = []string{
	"imu_timestamp", "gnss_timestamp",
	"gnss_latitude", "gnss_longitude", "gnss_altitude",
	"gnss_vel_x", "gnss_vel_y", "gnss_vel_z",
	"imu_gyro_x", "imu_gyro_y", "imu_gyro_z",
	"imu_accel_x", "imu_accel_y", "imu_accel_z",
	"gap_ms",
}

// InterpolatedHeader is the column layout of InterpolatedFile.
var InterpolatedHeader = []string{
	"timestamp", "utc",
	"latitude", "longitude", "altitude",
	"vel_x", "vel_y", "vel_z",
	"method",
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// UTC renders Unix seconds as an RFC 3339 timestamp rounded to the
// microsecond.
func UTC(ts float64) string {
	sec := math.Floor(ts)
	usec := math.Round((ts - sec) * 1e6)
	return time.Unix(int64(sec), int64(usec)*1000).UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

// WriteAligned writes one row per pair: pair.Reference indexes imu and
// pair.Match indexes gnss.
func WriteAligned(w io.Writer, pairs []align.Pair, imu []frames.ImuRecord, gnss []resample.InterpolatedGnssRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AlignedHeader); err != nil {
		return err
	}
	row := make([]string, len(AlignedHeader))
	for _, p := range pairs {
		if p.Reference >= len(imu) || p.Match >= len(gnss) {
			return fmt.Errorf("pair %d/%d outside %d imu and %d gnss records", p.Reference, p.Match, len(imu), len(gnss))
		}
		i, g := imu[p.Reference], gnss[p.Match]
		row[0], row[1] = ftoa(i.Timestamp), ftoa(g.Timestamp)
		row[2], row[3], row[4] = ftoa(g.Latitude), ftoa(g.Longitude), ftoa(g.Altitude)
		row[5], row[6], row[7] = ftoa(g.VelX), ftoa(g.VelY), ftoa(g.VelZ)
		row[8], row[9], row[10] = ftoa(i.GyroX), ftoa(i.GyroY), ftoa(i.GyroZ)
		row[11], row[12], row[13] = ftoa(i.AccelX), ftoa(i.AccelY), ftoa(i.AccelZ)
		row[14] = ftoa(p.Gap * 1e3)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteInterpolated writes one row per interpolated fix.
func WriteInterpolated(w io.Writer, records []resample.InterpolatedGnssRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(InterpolatedHeader); err != nil {
		return err
	}
	row := make([]string, len(InterpolatedHeader))
	for _, r := range records {
		row[0], row[1] = ftoa(r.Timestamp), UTC(r.Timestamp)
		row[2], row[3], row[4] = ftoa(r.Latitude), ftoa(r.Longitude), ftoa(r.Altitude)
		row[5], row[6], row[7] = ftoa(r.VelX), ftoa(r.VelY), ftoa(r.VelZ)
		row[8] = r.Method.String()
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Aligned writes AlignedFile and returns its path.
func (w *Writer) Aligned(pairs []align.Pair, imu []frames.ImuRecord, gnss []resample.InterpolatedGnssRecord) (string, error) {
	return w.write(AlignedFile, func(out io.Writer) error {
		return WriteAligned(out, pairs, imu, gnss)
	})
}

// Interpolated writes InterpolatedFile and returns its path.
func (w *Writer) Interpolated(records []resample.InterpolatedGnssRecord) (string, error) {
	return w.write(InterpolatedFile, func(out io.Writer) error {
		return WriteInterpolated(out, records)
	})
}
