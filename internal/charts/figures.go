package charts

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/resample"
)

// ErrNoData is returned when a figure has nothing to draw.
var ErrNoData = errors.New("no data to plot")

// ErrUnknownField is returned for a comparison field outside ComparisonFields
// and the velocity components.
var ErrUnknownField = errors.New("unknown gnss field")

func gnssField(r frames.GnssRecord, field string) (float64, error) {
	switch field {
	case "longitude":
		return r.Longitude, nil
	case "latitude":
		return r.Latitude, nil
	case "altitude":
		return r.Altitude, nil
	case "vel_x":
		return r.VelX, nil
	case "vel_y":
		return r.VelY, nil
	case "vel_z":
		return r.VelZ, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

func interpolatedField(r resample.InterpolatedGnssRecord, field string) float64 {
	switch field {
	case "longitude":
		return r.Longitude
	case "latitude":
		return r.Latitude
	case "altitude":
		return r.Altitude
	case "vel_x":
		return r.VelX
	case "vel_y":
		return r.VelY
	}
	return r.VelZ
}

func validTimestamps(gnss []frames.GnssRecord, imu []frames.ImuRecord) (g, i []float64) {
	for _, r := range gnss {
		if r.HasTimestamp() {
			g = append(g, r.Timestamp)
		}
	}
	for _, r := range imu {
		if r.HasTimestamp() {
			i = append(i, r.Timestamp)
		}
	}
	return g, i
}

func pick(ts []float64, max int) []float64 {
	idx := Downsample(len(ts), max)
	out := make([]float64, len(idx))
	for k, j := range idx {
		out[k] = ts[j]
	}
	return out
}

func indexed(ts []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ts))
	for i, t := range ts {
		pts[i] = plotter.XY{X: float64(i), Y: t}
	}
	return pts
}

func intervals(ts []float64) plotter.XYs {
	if len(ts) < 2 {
		return nil
	}
	pts := make(plotter.XYs, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		pts[i-1] = plotter.XY{X: float64(i - 1), Y: ts[i] - ts[i-1]}
	}
	return pts
}

func meanInterval(pts plotter.XYs) float64 {
	if len(pts) == 0 {
		return math.NaN()
	}
	ys := make([]float64, len(pts))
	for i, p := range pts {
		ys[i] = p.Y
	}
	return stat.Mean(ys, nil)
}

// TimestampAlignment draws both timestamp sequences against their index and
// the successive sampling intervals of each stream.
func (p *Plotter) TimestampAlignment(gnss []frames.GnssRecord, imu []frames.ImuRecord) (string, error) {
	gts, its := validTimestamps(gnss, imu)
	if len(gts) == 0 && len(its) == 0 {
		return "", fmt.Errorf("timestamp alignment: %w", ErrNoData)
	}
	gts, its = pick(gts, p.maxPoints()), pick(its, p.maxPoints())

	dist := newPlot("GNSS vs IMU Timestamp Distribution", "Data Index", "Unix Timestamp (s)")
	if _, err := addPoints(dist, fmt.Sprintf("GNSS (%d points)", len(gnss)), indexed(gts), blue, 1.5); err != nil {
		return "", err
	}
	if _, err := addPoints(dist, fmt.Sprintf("IMU (%d points)", len(imu)), indexed(its), red, 0.5); err != nil {
		return "", err
	}

	gdt, idt := intervals(gts), intervals(its)
	rate := newPlot("Timestamp Interval (Sampling Rate Check)", "Interval Index", "Interval (s)")
	if _, err := addPoints(rate, fmt.Sprintf("GNSS Δt (mean=%.3fs)", meanInterval(gdt)), gdt, blue, 1); err != nil {
		return "", err
	}
	if _, err := addPoints(rate, fmt.Sprintf("IMU Δt (mean=%.4fs)", meanInterval(idt)), idt, red, 0.5); err != nil {
		return "", err
	}

	return p.save(TimestampAlignmentFile, func(w io.Writer) error {
		return writeStack(w, 12*vg.Inch, 8*vg.Inch, dist, rate)
	})
}

// ImuData draws gyroscope and accelerometer axes over time relative to the
// first stamped record, limited to TimeWindow seconds.
func (p *Plotter) ImuData(imu []frames.ImuRecord) (string, error) {
	var window []frames.ImuRecord
	for _, r := range imu {
		if !r.HasTimestamp() {
			continue
		}
		if p.TimeWindow > 0 && len(window) > 0 && r.Timestamp > window[0].Timestamp+p.TimeWindow {
			break
		}
		window = append(window, r)
	}
	if len(window) == 0 {
		return "", fmt.Errorf("imu data: %w", ErrNoData)
	}

	idx := Downsample(len(window), p.maxPoints())
	t0 := window[0].Timestamp
	axes := [6]plotter.XYs{}
	for a := range axes {
		axes[a] = make(plotter.XYs, len(idx))
	}
	for k, j := range idx {
		r := window[j]
		x := r.Timestamp - t0
		for a, v := range [6]float64{r.GyroX, r.GyroY, r.GyroZ, r.AccelX, r.AccelY, r.AccelZ} {
			axes[a][k] = plotter.XY{X: x, Y: v}
		}
	}

	gyro := newPlot(fmt.Sprintf("IMU Gyroscope Data (%d points)", len(idx)), "Time (s)", "Angular Velocity (rad/s)")
	accel := newPlot(fmt.Sprintf("IMU Accelerometer Data (%d points)", len(idx)), "Time (s)", "Acceleration (m/s²)")
	palette := [3]struct {
		name string
		c    color.Color
	}{{"X", red}, {"Y", green}, {"Z", blue}}
	for a, entry := range palette {
		if err := addLine(gyro, "Gyro "+entry.name, axes[a], entry.c, 0.8); err != nil {
			return "", err
		}
		if err := addLine(accel, "Accel "+entry.name, axes[a+3], entry.c, 0.8); err != nil {
			return "", err
		}
	}

	return p.save(ImuDataFile, func(w io.Writer) error {
		return writeStack(w, 14*vg.Inch, 10*vg.Inch, gyro, accel)
	})
}

// GnssTrajectory draws the valid fixes in longitude/latitude coloured by
// speed, next to the altitude profile.
func (p *Plotter) GnssTrajectory(gnss []frames.GnssRecord) (string, error) {
	valid := frames.ValidGnss(gnss)
	if len(valid) == 0 {
		return "", fmt.Errorf("gnss trajectory: %w", ErrNoData)
	}

	track := make(plotter.XYs, len(valid))
	alts := make(plotter.XYs, len(valid))
	speeds := make([]float64, len(valid))
	altValues := make([]float64, len(valid))
	for i, r := range valid {
		track[i] = plotter.XY{X: r.Longitude, Y: r.Latitude}
		alts[i] = plotter.XY{X: float64(i), Y: r.Altitude}
		altValues[i] = r.Altitude
		speeds[i] = math.Sqrt(r.VelX*r.VelX + r.VelY*r.VelY + r.VelZ*r.VelZ)
	}

	cmap := moreland.SmoothBlueRed()
	lo, hi := floats.Min(speeds), floats.Max(speeds)
	if hi <= lo {
		hi = lo + 1
	}
	cmap.SetMin(lo)
	cmap.SetMax(hi)

	traj := newPlot(fmt.Sprintf("GNSS Trajectory (%d points, speed %.1f-%.1f m/s)", len(valid), lo, floats.Max(speeds)), "Longitude (°)", "Latitude (°)")
	s, err := addPoints(traj, "", track, blue, 1.5)
	if err != nil {
		return "", err
	}
	s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		style := s.GlyphStyle
		if c, err := cmap.At(speeds[i]); err == nil {
			style.Color = c
		}
		return style
	}
	if _, err := addPoints(traj, "Start", track[:1], green, 4); err != nil {
		return "", err
	}
	if _, err := addPoints(traj, "End", track[len(track)-1:], red, 4); err != nil {
		return "", err
	}

	alt := newPlot(fmt.Sprintf("Altitude Profile (mean=%.2fm)", stat.Mean(altValues, nil)), "Data Index", "Altitude (m)")
	if err := addLine(alt, "altitude", alts, blue, 0.8); err != nil {
		return "", err
	}

	return p.save(GnssTrajectoryFile, func(w io.Writer) error {
		return writeGrid(w, 14*vg.Inch, 6*vg.Inch, [][]*plot.Plot{{traj, alt}})
	})
}

// InterpolationComparison draws the interpolated series for field over the
// original fixes, in full and zoomed to the first 100 s.
func (p *Plotter) InterpolationComparison(original []frames.GnssRecord, interpolated []resample.InterpolatedGnssRecord, field string) (string, error) {
	valid := resample.PrepareGnss(original)
	if len(valid) == 0 || len(interpolated) == 0 {
		return "", fmt.Errorf("interpolation comparison: %w", ErrNoData)
	}
	if _, err := gnssField(valid[0], field); err != nil {
		return "", err
	}

	idx := Downsample(len(valid), comparisonMaxOriginal)
	orig := make(plotter.XYs, len(idx))
	t0 := math.Min(valid[idx[0]].Timestamp, interpolated[0].Timestamp)
	for k, j := range idx {
		v, _ := gnssField(valid[j], field)
		orig[k] = plotter.XY{X: valid[j].Timestamp - t0, Y: v}
	}
	lo, hi := orig[0].X, orig[len(orig)-1].X

	var interp plotter.XYs
	for _, j := range Downsample(len(interpolated), p.maxPoints()) {
		r := interpolated[j]
		x := r.Timestamp - t0
		if x < lo || x > hi {
			continue
		}
		interp = append(interp, plotter.XY{X: x, Y: interpolatedField(r, field)})
	}

	full := newPlot("Interpolation Comparison: "+field, "Time (s)", field)
	if err := addLine(full, fmt.Sprintf("Interpolated (%d pts)", len(interpolated)), interp, blue, 0.5); err != nil {
		return "", err
	}
	if _, err := addPoints(full, fmt.Sprintf("Original (%d pts)", len(valid)), orig, red, 2); err != nil {
		return "", err
	}

	zoom := math.Min(zoomSeconds, hi)
	zoomed := newPlot(fmt.Sprintf("Zoomed View (first %.0fs)", zoom), "Time (s)", field)
	if err := addLine(zoomed, "Interpolated", until(interp, zoom), blue, 0.8); err != nil {
		return "", err
	}
	if _, err := addPoints(zoomed, "Original", until(orig, zoom), red, 2.5); err != nil {
		return "", err
	}

	return p.save(InterpolationFile(field), func(w io.Writer) error {
		return writeStack(w, 14*vg.Inch, 10*vg.Inch, full, zoomed)
	})
}

func until(pts plotter.XYs, x float64) plotter.XYs {
	for i, p := range pts {
		if p.X > x {
			return pts[:i]
		}
	}
	return pts
}

// All renders every figure. Figures without data are skipped; the paths of
// the written files are returned.
func (p *Plotter) All(gnss []frames.GnssRecord, imu []frames.ImuRecord, interpolated []resample.InterpolatedGnssRecord) ([]string, error) {
	var paths []string
	keep := func(path string, err error) error {
		if errors.Is(err, ErrNoData) {
			return nil
		}
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	if err := keep(p.TimestampAlignment(gnss, imu)); err != nil {
		return paths, err
	}
	if err := keep(p.ImuData(imu)); err != nil {
		return paths, err
	}
	if err := keep(p.GnssTrajectory(gnss)); err != nil {
		return paths, err
	}
	if len(interpolated) > 0 {
		for _, field := range ComparisonFields {
			if err := keep(p.InterpolationComparison(gnss, interpolated, field)); err != nil {
				return paths, err
			}
		}
	}
	return paths, nil
}
