package pipeline

import (
	"github.com/banshee-data/sensorsync/internal/align"
	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/resample"
)

// Summary is the JSON view of a run: counts and reports without the
// record slices.
type Summary struct {
	RunID        string          `json:"run_id"`
	Epoch        float64         `json:"epoch"`
	Method       resample.Method `json:"method"`
	GnssRecords  int             `json:"gnss_records"`
	ImuRecords   int             `json:"imu_records"`
	GnssStats    frames.Stats    `json:"gnss_stats"`
	ImuStats     frames.Stats    `json:"imu_stats"`
	Targets      int             `json:"targets"`
	Excluded     int             `json:"excluded"`
	Interpolated int             `json:"interpolated"`
	Sample       int             `json:"alignment_sample"`
	Before       align.Report    `json:"before"`
	After        align.Report    `json:"after"`
	Improved     bool            `json:"improved"`
	Navigation   *NavSummary     `json:"navigation,omitempty"`
	Outputs      []string        `json:"outputs,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
}

// NavSummary describes the optional navigation result file.
type NavSummary struct {
	Format  string        `json:"format"`
	Records int           `json:"records"`
	Skipped int           `json:"skipped"`
	Report  *align.Report `json:"report,omitempty"`
}

// Summary returns the JSON view of r.
func (r *Results) Summary() Summary {
	s := Summary{
		RunID:        r.RunID,
		Epoch:        r.Epoch,
		Method:       r.Method,
		GnssRecords:  len(r.Gnss),
		ImuRecords:   len(r.Imu),
		GnssStats:    r.GnssStats,
		ImuStats:     r.ImuStats,
		Targets:      r.Targets,
		Excluded:     r.Excluded,
		Interpolated: len(r.Interpolated),
		Sample:       r.Sample,
		Before:       r.Before,
		After:        r.After,
		Improved:     r.Improved(),
		Outputs:      r.Outputs,
		DurationMs:   r.Duration.Milliseconds(),
	}
	if r.Navigation != nil {
		s.Navigation = &NavSummary{
			Format:  r.Navigation.Format.String(),
			Records: r.Navigation.Len(),
			Skipped: r.Navigation.Stats.Skipped,
			Report:  r.NavReport,
		}
	}
	return s
}
