// Package store persists pipeline runs in SQLite: one row per run, its
// before/after alignment reports and the interpolated GNSS series.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/sensorsync/internal/align"
	"github.com/banshee-data/sensorsync/internal/resample"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run id has no row.
var ErrNotFound = errors.New("run not found")

// Report stages.
const (
	StageBefore     = "before"
	StageAfter      = "after"
	StageNavigation = "navigation"
)

type Store struct {
	*sql.DB
}

// Run is the summary row of one pipeline execution.
type Run struct {
	RunID               string          `json:"run_id"`
	GnssFile            string          `json:"gnss_file"`
	ImuFile             string          `json:"imu_file"`
	Method              resample.Method `json:"method"`
	ImuRateHz           float64         `json:"imu_rate_hz"`
	Epoch               float64         `json:"epoch"`
	GnssRecords         int             `json:"gnss_records"`
	ImuRecords          int             `json:"imu_records"`
	InterpolatedRecords int             `json:"interpolated_records"`
	ConfigJSON          json.RawMessage `json:"config_json,omitempty"`
	CreatedAt           int64           `json:"created_at"`
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// foreign_keys is per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InsertRun persists run. An empty RunID is replaced with a new UUID and a
// zero CreatedAt with the current time.
func (s *Store) InsertRun(ctx context.Context, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var configStr interface{}
	if len(run.ConfigJSON) > 0 {
		configStr = string(run.ConfigJSON)
	}

	_, err := s.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, gnss_file, imu_file, method, imu_rate_hz, epoch,
			gnss_records, imu_records, interpolated_records, config_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.GnssFile, run.ImuFile, run.Method.String(), run.ImuRateHz, run.Epoch,
		run.GnssRecords, run.ImuRecords, run.InterpolatedRecords, configStr, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `run_id, gnss_file, imu_file, method, imu_rate_hz, epoch,
	gnss_records, imu_records, interpolated_records, config_json, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var method string
	var configStr sql.NullString
	err := row.Scan(
		&r.RunID, &r.GnssFile, &r.ImuFile, &method, &r.ImuRateHz, &r.Epoch,
		&r.GnssRecords, &r.ImuRecords, &r.InterpolatedRecords, &configStr, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := r.Method.UnmarshalText([]byte(method)); err != nil {
		return nil, fmt.Errorf("run %s: %w", r.RunID, err)
	}
	if configStr.Valid {
		r.ConfigJSON = json.RawMessage(configStr.String)
	}
	return &r, nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. A nonpositive limit
// returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run together with its reports and series.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	return nil
}

// InsertReport stores the alignment report of a run for stage, replacing any
// previous report for the same stage.
func (s *Store) InsertReport(ctx context.Context, runID, stage string, r align.Report) error {
	_, err := s.ExecContext(ctx, `
		INSERT OR REPLACE INTO alignment_reports (
			run_id, stage, pair_count, mean_gap, median_gap, min_gap, max_gap,
			within_5ms, within_10ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, stage, r.Count, r.MeanGap, r.MedianGap, r.MinGap, r.MaxGap,
		r.Within5ms, r.Within10ms,
	)
	if err != nil {
		return fmt.Errorf("insert %s report: %w", stage, err)
	}
	return nil
}

// Reports returns the stored reports of a run keyed by stage.
func (s *Store) Reports(ctx context.Context, runID string) (map[string]align.Report, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT stage, pair_count, mean_gap, median_gap, min_gap, max_gap, within_5ms, within_10ms
		FROM alignment_reports WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := make(map[string]align.Report)
	for rows.Next() {
		var stage string
		var r align.Report
		if err := rows.Scan(&stage, &r.Count, &r.MeanGap, &r.MedianGap, &r.MinGap, &r.MaxGap, &r.Within5ms, &r.Within10ms); err != nil {
			return nil, err
		}
		out[stage] = r
	}
	return out, rows.Err()
}

// InsertInterpolated stores records for a run in a single transaction.
func (s *Store) InsertInterpolated(ctx context.Context, runID string, records []resample.InterpolatedGnssRecord) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO interpolated_gnss (
			run_id, seq, timestamp, longitude, latitude, altitude, vel_x, vel_y, vel_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare interpolated insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, runID, i, r.Timestamp, r.Longitude, r.Latitude, r.Altitude, r.VelX, r.VelY, r.VelZ); err != nil {
			return fmt.Errorf("insert interpolated record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Interpolated returns the stored series of a run in insertion order. The
// method is taken from the run row.
func (s *Store) Interpolated(ctx context.Context, runID string) ([]resample.InterpolatedGnssRecord, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows, err := s.QueryContext(ctx, `
		SELECT timestamp, longitude, latitude, altitude, vel_x, vel_y, vel_z
		FROM interpolated_gnss WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query interpolated: %w", err)
	}
	defer rows.Close()

	var out []resample.InterpolatedGnssRecord
	for rows.Next() {
		r := resample.InterpolatedGnssRecord{Method: run.Method}
		if err := rows.Scan(&r.Timestamp, &r.Longitude, &r.Latitude, &r.Altitude, &r.VelX, &r.VelY, &r.VelZ); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
