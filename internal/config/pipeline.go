// Package config loads the settings of a synchronisation run.
//
// Files are JSON or YAML. Every field is optional: omitted fields fall
// back to the defaults returned by the Get* accessors, so partial configs
// are safe.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the example configuration shipped with the repo.
const DefaultConfigPath = "config/pipeline.example.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Target grids for resampling.
const (
	TargetGridImu     = "imu"     // IMU timestamps inside the GNSS time range
	TargetGridUniform = "uniform" // evenly spaced at target_rate_hz
)

// PipelineConfig configures one run from raw logs to aligned output.
type PipelineConfig struct {
	// Inputs
	GnssFile     *string `json:"gnss_file,omitempty" yaml:"gnss_file,omitempty"`
	ImuFile      *string `json:"imu_file,omitempty" yaml:"imu_file,omitempty"`
	ResultFile   *string `json:"result_file,omitempty" yaml:"result_file,omitempty"` // optional navigation solution text
	GnssEncoding *string `json:"gnss_encoding,omitempty" yaml:"gnss_encoding,omitempty"`
	ImuEncoding  *string `json:"imu_encoding,omitempty" yaml:"imu_encoding,omitempty"`

	// Processing
	ImuRateHz           *float64 `json:"imu_rate_hz,omitempty" yaml:"imu_rate_hz,omitempty"`
	Interpolation       *string  `json:"interpolation,omitempty" yaml:"interpolation,omitempty"` // linear or spline
	TargetGrid          *string  `json:"target_grid,omitempty" yaml:"target_grid,omitempty"`
	TargetRateHz        *float64 `json:"target_rate_hz,omitempty" yaml:"target_rate_hz,omitempty"`
	Workers             *int     `json:"workers,omitempty" yaml:"workers,omitempty"`
	AlignmentSampleSize *int     `json:"alignment_sample_size,omitempty" yaml:"alignment_sample_size,omitempty"` // 0 = every IMU record

	// Outputs
	OutputDir        *string  `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	DatabasePath     *string  `json:"database_path,omitempty" yaml:"database_path,omitempty"`
	GeneratePlots    *bool    `json:"generate_plots,omitempty" yaml:"generate_plots,omitempty"`
	PlotMaxPoints    *int     `json:"plot_max_points,omitempty" yaml:"plot_max_points,omitempty"`
	PlotTimeWindowS  *float64 `json:"plot_time_window_s,omitempty" yaml:"plot_time_window_s,omitempty"` // 0 = whole run
	SaveInterpolated *bool    `json:"save_interpolated,omitempty" yaml:"save_interpolated,omitempty"`
	SaveAligned      *bool    `json:"save_aligned,omitempty" yaml:"save_aligned,omitempty"`
	SaveGPX          *bool    `json:"save_gpx,omitempty" yaml:"save_gpx,omitempty"`

	// Live capture
	Serial *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
}

// SerialConfig describes a serial port carrying raw frames.
type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity   string `json:"parity,omitempty" yaml:"parity,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// NewPipelineConfig returns a config for the two input logs, everything
// else defaulted.
func NewPipelineConfig(gnssFile, imuFile string) *PipelineConfig {
	return &PipelineConfig{GnssFile: ptrString(gnssFile), ImuFile: ptrString(imuFile)}
}

// LoadPipelineConfig loads a PipelineConfig from a .json, .yaml or .yml
// file no larger than 1MB, then validates it.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfiguration, filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// interpolationNames are the method names accepted by the resampler.
var interpolationNames = []string{"linear", "spline", "cubic", "cubic_spline", "cubicspline"}

// encodingNames are the frame encodings accepted by the decoder.
var encodingNames = []string{"", "auto", "hex", "text", "raw", "bin", "binary"}

func oneOf(v string, allowed []string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks that the configuration values are valid. Every error
// wraps ErrInvalidConfiguration.
func (c *PipelineConfig) Validate() error {
	if c.ImuRateHz != nil && !positiveFinite(*c.ImuRateHz) {
		return invalid("imu_rate_hz must be positive and finite, got %v", *c.ImuRateHz)
	}
	if c.TargetRateHz != nil && !positiveFinite(*c.TargetRateHz) {
		return invalid("target_rate_hz must be positive and finite, got %v", *c.TargetRateHz)
	}
	if c.Interpolation != nil && !oneOf(*c.Interpolation, interpolationNames) {
		return invalid("unknown interpolation method %q: expected linear or spline", *c.Interpolation)
	}
	if c.TargetGrid != nil {
		if g := strings.ToLower(*c.TargetGrid); g != TargetGridImu && g != TargetGridUniform {
			return invalid("target_grid must be %q or %q, got %q", TargetGridImu, TargetGridUniform, *c.TargetGrid)
		}
	}
	if c.GnssEncoding != nil && !oneOf(*c.GnssEncoding, encodingNames) {
		return invalid("unknown gnss_encoding %q", *c.GnssEncoding)
	}
	if c.ImuEncoding != nil && !oneOf(*c.ImuEncoding, encodingNames) {
		return invalid("unknown imu_encoding %q", *c.ImuEncoding)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return invalid("workers must be non-negative, got %d", *c.Workers)
	}
	if c.AlignmentSampleSize != nil && *c.AlignmentSampleSize < 0 {
		return invalid("alignment_sample_size must be non-negative, got %d", *c.AlignmentSampleSize)
	}
	if c.PlotMaxPoints != nil && *c.PlotMaxPoints < 2 {
		return invalid("plot_max_points must be at least 2, got %d", *c.PlotMaxPoints)
	}
	if c.PlotTimeWindowS != nil && !(*c.PlotTimeWindowS >= 0 && !math.IsInf(*c.PlotTimeWindowS, 1)) {
		return invalid("plot_time_window_s must be non-negative, got %v", *c.PlotTimeWindowS)
	}
	if c.Serial != nil && c.Serial.Port == "" {
		return invalid("serial.port is required when serial is set")
	}
	return nil
}

// ValidateInputs checks that the input files exist. It is separate from
// Validate so that configs can be checked before the logs are in place.
func (c *PipelineConfig) ValidateInputs() error {
	if c.GetGnssFile() == "" || c.GetImuFile() == "" {
		return invalid("gnss_file and imu_file are required")
	}
	for _, p := range []string{c.GetGnssFile(), c.GetImuFile(), c.GetResultFile()} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("input file: %w", err)
		}
	}
	return nil
}

func getString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

// GetGnssFile returns the gnss_file value or "".
func (c *PipelineConfig) GetGnssFile() string { return getString(c.GnssFile, "") }

// GetImuFile returns the imu_file value or "".
func (c *PipelineConfig) GetImuFile() string { return getString(c.ImuFile, "") }

// GetResultFile returns the result_file value or "" when there is none.
func (c *PipelineConfig) GetResultFile() string { return getString(c.ResultFile, "") }

// GetGnssEncoding returns the gnss_encoding value or "auto".
func (c *PipelineConfig) GetGnssEncoding() string { return getString(c.GnssEncoding, "auto") }

// GetImuEncoding returns the imu_encoding value or "auto".
func (c *PipelineConfig) GetImuEncoding() string { return getString(c.ImuEncoding, "auto") }

// GetImuRateHz returns the imu_rate_hz value or the default.
func (c *PipelineConfig) GetImuRateHz() float64 {
	if c.ImuRateHz == nil {
		return 95.0
	}
	return *c.ImuRateHz
}

// GetInterpolation returns the interpolation value or "linear".
func (c *PipelineConfig) GetInterpolation() string { return getString(c.Interpolation, "linear") }

// GetTargetGrid returns the target_grid value or TargetGridImu.
func (c *PipelineConfig) GetTargetGrid() string {
	return strings.ToLower(getString(c.TargetGrid, TargetGridImu))
}

// GetTargetRateHz returns the target_rate_hz value or the default.
func (c *PipelineConfig) GetTargetRateHz() float64 {
	if c.TargetRateHz == nil {
		return 95.0
	}
	return *c.TargetRateHz
}

// GetWorkers returns the workers value; 0 means one per CPU.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetAlignmentSampleSize returns the alignment_sample_size value; 0 means all.
func (c *PipelineConfig) GetAlignmentSampleSize() int {
	if c.AlignmentSampleSize == nil {
		return 0
	}
	return *c.AlignmentSampleSize
}

// GetOutputDir returns the output_dir value or "output".
func (c *PipelineConfig) GetOutputDir() string { return getString(c.OutputDir, "output") }

// GetDatabasePath returns the database_path value; "" disables persistence.
func (c *PipelineConfig) GetDatabasePath() string { return getString(c.DatabasePath, "") }

// GetGeneratePlots returns the generate_plots value or the default.
func (c *PipelineConfig) GetGeneratePlots() bool {
	if c.GeneratePlots == nil {
		return true
	}
	return *c.GeneratePlots
}

// GetPlotMaxPoints returns the plot_max_points value or the default.
func (c *PipelineConfig) GetPlotMaxPoints() int {
	if c.PlotMaxPoints == nil {
		return 10000
	}
	return *c.PlotMaxPoints
}

// GetPlotTimeWindowS returns the plot_time_window_s value or the default.
func (c *PipelineConfig) GetPlotTimeWindowS() float64 {
	if c.PlotTimeWindowS == nil {
		return 1000
	}
	return *c.PlotTimeWindowS
}

// GetSaveInterpolated returns the save_interpolated value or the default.
func (c *PipelineConfig) GetSaveInterpolated() bool {
	if c.SaveInterpolated == nil {
		return true
	}
	return *c.SaveInterpolated
}

// GetSaveAligned returns the save_aligned value or the default.
func (c *PipelineConfig) GetSaveAligned() bool {
	if c.SaveAligned == nil {
		return true
	}
	return *c.SaveAligned
}

// GetSaveGPX returns the save_gpx value or the default.
func (c *PipelineConfig) GetSaveGPX() bool {
	if c.SaveGPX == nil {
		return false
	}
	return *c.SaveGPX
}

// WithOverrides returns a copy of c where every field set in o replaces
// the corresponding field of c. It is how command-line flags are layered
// over a config file.
func (c *PipelineConfig) WithOverrides(o *PipelineConfig) *PipelineConfig {
	out := *c
	if o == nil {
		return &out
	}
	merge := func(dst **string, src *string) {
		if src != nil {
			*dst = src
		}
	}
	merge(&out.GnssFile, o.GnssFile)
	merge(&out.ImuFile, o.ImuFile)
	merge(&out.ResultFile, o.ResultFile)
	merge(&out.GnssEncoding, o.GnssEncoding)
	merge(&out.ImuEncoding, o.ImuEncoding)
	merge(&out.Interpolation, o.Interpolation)
	merge(&out.TargetGrid, o.TargetGrid)
	merge(&out.OutputDir, o.OutputDir)
	merge(&out.DatabasePath, o.DatabasePath)
	if o.ImuRateHz != nil {
		out.ImuRateHz = o.ImuRateHz
	}
	if o.TargetRateHz != nil {
		out.TargetRateHz = o.TargetRateHz
	}
	if o.Workers != nil {
		out.Workers = o.Workers
	}
	if o.AlignmentSampleSize != nil {
		out.AlignmentSampleSize = o.AlignmentSampleSize
	}
	if o.GeneratePlots != nil {
		out.GeneratePlots = o.GeneratePlots
	}
	if o.PlotMaxPoints != nil {
		out.PlotMaxPoints = o.PlotMaxPoints
	}
	if o.PlotTimeWindowS != nil {
		out.PlotTimeWindowS = o.PlotTimeWindowS
	}
	if o.SaveInterpolated != nil {
		out.SaveInterpolated = o.SaveInterpolated
	}
	if o.SaveAligned != nil {
		out.SaveAligned = o.SaveAligned
	}
	if o.SaveGPX != nil {
		out.SaveGPX = o.SaveGPX
	}
	if o.Serial != nil {
		out.Serial = o.Serial
	}
	return &out
}
