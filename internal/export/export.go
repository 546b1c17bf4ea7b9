// Package export writes the products of a run into its output directory:
// aligned GNSS/IMU pairs and interpolated fixes as CSV, the interpolated
// trajectory as GPX, and the alignment reports as JSON.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/sensorsync/internal/fsutil"
)

// File names inside the output directory.
const (
	AlignedFile      = "aligned_gnss_imu.csv"
	InterpolatedFile = "interpolated_gnss.csv"
	TrajectoryFile   = "trajectory.gpx"
	ReportFile       = "report.json"
)

// Writer places export files under Dir on FS.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewWriter returns a Writer for dir on the local disk.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir}
}

// Path returns the full path of name inside the output directory.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// write creates name and hands it to fn, closing it afterwards.
func (w *Writer) write(name string, fn func(io.Writer) error) (string, error) {
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	path := w.Path(name)
	f, err := w.FS.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", name, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", name, err)
	}
	return path, nil
}

// Report writes v as indented JSON to ReportFile.
func (w *Writer) Report(v any) (string, error) {
	return w.write(ReportFile, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}
