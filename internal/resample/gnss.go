package resample

import (
	"context"
	"math"
	"slices"

	"github.com/banshee-data/sensorsync/internal/frames"
)

// DuplicateTolerance is the spacing below which two GNSS fixes count as the
// same instant; the first one is kept.
const DuplicateTolerance = 1e-9

// GnssFieldNames lists the interpolated GNSS fields in Series order.
var GnssFieldNames = []string{"longitude", "latitude", "altitude", "vel_x", "vel_y", "vel_z"}

// InterpolatedGnssRecord is a GNSS fix synthesised at a target timestamp.
type InterpolatedGnssRecord struct {
	Timestamp float64 `json:"timestamp"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Altitude  float64 `json:"altitude"`
	VelX      float64 `json:"vel_x"`
	VelY      float64 `json:"vel_y"`
	VelZ      float64 `json:"vel_z"`
	Method    Method  `json:"method"`
}

// PrepareGnss returns the records usable as interpolation samples: valid
// timestamps only, sorted by time, near-duplicate instants collapsed.
func PrepareGnss(records []frames.GnssRecord) []frames.GnssRecord {
	out := frames.ValidGnss(records)
	slices.SortStableFunc(out, func(a, b frames.GnssRecord) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return slices.CompactFunc(out, func(a, b frames.GnssRecord) bool {
		return math.Abs(b.Timestamp-a.Timestamp) < DuplicateTolerance
	})
}

// GnssSeries converts prepared records into a Series in GnssFieldNames order.
func GnssSeries(records []frames.GnssRecord) Series {
	s := Series{
		Times:  make([]float64, len(records)),
		Fields: make([][]float64, len(GnssFieldNames)),
	}
	for f := range s.Fields {
		s.Fields[f] = make([]float64, len(records))
	}
	for i, r := range records {
		s.Times[i] = r.Timestamp
		s.Fields[0][i] = r.Longitude
		s.Fields[1][i] = r.Latitude
		s.Fields[2][i] = r.Altitude
		s.Fields[3][i] = r.VelX
		s.Fields[4][i] = r.VelY
		s.Fields[5][i] = r.VelZ
	}
	return s
}

func gnssRecords(s Series, m Method) []InterpolatedGnssRecord {
	out := make([]InterpolatedGnssRecord, s.Len())
	for i, t := range s.Times {
		out[i] = InterpolatedGnssRecord{
			Timestamp: t,
			Longitude: s.Fields[0][i],
			Latitude:  s.Fields[1][i],
			Altitude:  s.Fields[2][i],
			VelX:      s.Fields[3][i],
			VelY:      s.Fields[4][i],
			VelZ:      s.Fields[5][i],
			Method:    m,
		}
	}
	return out
}

// Gnss interpolates GNSS fixes at targets. Records are passed through
// PrepareGnss first, so NaN timestamps and duplicates are tolerated.
func Gnss(records []frames.GnssRecord, targets []float64, m Method) ([]InterpolatedGnssRecord, error) {
	s, err := Resample(GnssSeries(PrepareGnss(records)), targets, m)
	if err != nil {
		return nil, err
	}
	return gnssRecords(s, m), nil
}

// GnssParallel is Gnss evaluated with ResampleParallel.
func GnssParallel(ctx context.Context, records []frames.GnssRecord, targets []float64, m Method, workers int) ([]InterpolatedGnssRecord, error) {
	s, err := ResampleParallel(ctx, GnssSeries(PrepareGnss(records)), targets, m, workers)
	if err != nil {
		return nil, err
	}
	return gnssRecords(s, m), nil
}

// Timestamps extracts the timestamps of interpolated records.
func Timestamps(records []InterpolatedGnssRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.Timestamp
	}
	return out
}
