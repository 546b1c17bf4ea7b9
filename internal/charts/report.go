package charts

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sensorsync/internal/align"
	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/resample"
)

const (
	histogramBins = 20
	reportPoints  = 2000
)

// ReportData is everything drawn by the HTML report.
type ReportData struct {
	Title        string
	Before       []align.Pair
	After        []align.Pair
	Gnss         []frames.GnssRecord
	Interpolated []resample.InterpolatedGnssRecord
	// Field is the GNSS field of the comparison chart; empty means
	// longitude.
	Field string
}

// GapHistogram bins the before and after gaps, in milliseconds, into bins
// equal-width buckets spanning zero to the largest gap of either set.
func GapHistogram(before, after []align.Pair, bins int) (labels []string, b, a []int) {
	if bins <= 0 {
		bins = histogramBins
	}
	maxMs := 0.0
	for _, set := range [][]align.Pair{before, after} {
		for _, p := range set {
			maxMs = math.Max(maxMs, p.Gap*1e3)
		}
	}
	width := maxMs / float64(bins)
	if width == 0 {
		width = 1
	}

	labels = make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.1f-%.1f", float64(i)*width, float64(i+1)*width)
	}
	count := func(set []align.Pair) []int {
		out := make([]int, bins)
		for _, p := range set {
			i := int(p.Gap * 1e3 / width)
			if i >= bins {
				i = bins - 1
			}
			out[i]++
		}
		return out
	}
	return labels, count(before), count(after)
}

func barData(counts []int) []opts.BarData {
	out := make([]opts.BarData, len(counts))
	for i, c := range counts {
		out[i] = opts.BarData{Value: c}
	}
	return out
}

func gapChart(d ReportData) *charts.Bar {
	labels, before, after := GapHistogram(d.Before, d.After, histogramBins)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Alignment Gap Distribution",
			Subtitle: fmt.Sprintf("before=%s after=%s", align.NewReport(d.Before), align.NewReport(d.After)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "gap (ms)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "pairs"}),
	)
	bar.SetXAxis(labels).
		AddSeries("before", barData(before)).
		AddSeries("after", barData(after))
	return bar
}

func comparisonChart(d ReportData) (*charts.Scatter, error) {
	field := d.Field
	if field == "" {
		field = "longitude"
	}
	valid := resample.PrepareGnss(d.Gnss)
	var t0 float64
	switch {
	case len(valid) > 0:
		t0 = valid[0].Timestamp
	case len(d.Interpolated) > 0:
		t0 = d.Interpolated[0].Timestamp
	}

	orig := make([]opts.ScatterData, 0, len(valid))
	for _, j := range Downsample(len(valid), reportPoints) {
		v, err := gnssField(valid[j], field)
		if err != nil {
			return nil, err
		}
		orig = append(orig, opts.ScatterData{Value: []interface{}{valid[j].Timestamp - t0, v}})
	}
	interp := make([]opts.ScatterData, 0, reportPoints)
	for _, j := range Downsample(len(d.Interpolated), reportPoints) {
		r := d.Interpolated[j]
		interp = append(interp, opts.ScatterData{Value: []interface{}{r.Timestamp - t0, interpolatedField(r, field)}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Interpolation Comparison: " + field, Subtitle: fmt.Sprintf("original=%d interpolated=%d", len(valid), len(d.Interpolated))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: field, Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	scatter.AddSeries("interpolated", interp, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	scatter.AddSeries("original", orig, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter, nil
}

// RenderReport writes the interactive HTML report to w.
func RenderReport(w io.Writer, d ReportData) error {
	comparison, err := comparisonChart(d)
	if err != nil {
		return err
	}
	page := components.NewPage()
	if d.Title != "" {
		page.SetPageTitle(d.Title)
	}
	page.AddCharts(gapChart(d), comparison)
	return page.Render(w)
}

// HTMLReport writes ReportFile under Dir.
func (p *Plotter) HTMLReport(d ReportData) (string, error) {
	return p.save(ReportFile, func(w io.Writer) error {
		return RenderReport(w, d)
	})
}
