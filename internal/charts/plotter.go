// Package charts renders run diagnostics: static PNG figures with
// gonum/plot and an interactive HTML report with go-echarts.
package charts

import (
	"fmt"
	"image/color"
	"io"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/sensorsync/internal/fsutil"
	"github.com/banshee-data/sensorsync/internal/monitoring"
)

// Figure file names inside the plot directory.
const (
	TimestampAlignmentFile = "timestamp_alignment.png"
	ImuDataFile            = "imu_data.png"
	GnssTrajectoryFile     = "gnss_trajectory.png"
	ReportFile             = "report.html"
)

// ComparisonFields are the GNSS fields drawn by InterpolationComparisons.
var ComparisonFields = []string{"longitude", "latitude", "altitude"}

// InterpolationFile returns the comparison figure name for field.
func InterpolationFile(field string) string {
	return fmt.Sprintf("interpolation_%s.png", field)
}

const (
	DefaultMaxPoints  = 10000
	DefaultTimeWindow = 1000.0

	// comparisonMaxOriginal caps the original fixes drawn in a comparison.
	comparisonMaxOriginal = 500
	// zoomSeconds is the span of the zoomed comparison panel.
	zoomSeconds = 100.0
)

var (
	red   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	green = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	blue  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// Plotter writes PNG figures into Dir on FS.
type Plotter struct {
	FS  fsutil.FileSystem
	Dir string

	// MaxPoints bounds the samples drawn per series; larger inputs are
	// downsampled evenly.
	MaxPoints int
	// TimeWindow limits the IMU figure to the first TimeWindow seconds.
	// Zero draws everything.
	TimeWindow float64
}

// NewPlotter returns a Plotter writing to dir on the local disk with the
// default limits.
func NewPlotter(dir string) *Plotter {
	return &Plotter{
		FS:         fsutil.OSFileSystem{},
		Dir:        dir,
		MaxPoints:  DefaultMaxPoints,
		TimeWindow: DefaultTimeWindow,
	}
}

func (p *Plotter) maxPoints() int {
	if p.MaxPoints <= 0 {
		return DefaultMaxPoints
	}
	return p.MaxPoints
}

// Downsample returns up to max indices spread evenly over [0, n), always
// including the first and last index.
func Downsample(n, max int) []int {
	if n <= 0 {
		return nil
	}
	if max <= 0 || n <= max {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if max == 1 {
		return []int{0}
	}
	idx := make([]int, max)
	for i := range idx {
		idx[i] = i * (n - 1) / (max - 1)
	}
	return idx
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color, width float64) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("line %q: %w", label, err)
	}
	line.Color = c
	line.Width = vg.Points(width)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func addPoints(p *plot.Plot, label string, pts plotter.XYs, c color.Color, radius float64) (*plotter.Scatter, error) {
	if len(pts) == 0 {
		return nil, nil
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("scatter %q: %w", label, err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(radius)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(s)
	if label != "" {
		p.Legend.Add(label, s)
	}
	return s, nil
}

// writeStack renders plots as vertically stacked panels into w.
func writeStack(w io.Writer, width, height vg.Length, plots ...*plot.Plot) error {
	rows := make([][]*plot.Plot, len(plots))
	for i, p := range plots {
		rows[i] = []*plot.Plot{p}
	}
	return writeGrid(w, width, height, rows)
}

func writeGrid(w io.Writer, width, height vg.Length, rows [][]*plot.Plot) error {
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(rows),
		Cols: len(rows[0]),
		PadX: vg.Millimeter * 4,
		PadY: vg.Millimeter * 4,
	}
	canvases := plot.Align(rows, tiles, dc)
	for i := range rows {
		for j, p := range rows[i] {
			p.Draw(canvases[i][j])
		}
	}
	_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

// save creates name under Dir and hands it to render.
func (p *Plotter) save(name string, render func(io.Writer) error) (string, error) {
	if err := p.FS.MkdirAll(p.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating plot directory: %w", err)
	}
	path := filepath.Join(p.Dir, name)
	f, err := p.FS.Create(path)
	if err != nil {
		return "", err
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	monitoring.Logf("saved plot %s", path)
	return path, nil
}
