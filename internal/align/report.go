package align

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Gap thresholds used by the report, in seconds. Both are inclusive.
const (
	Threshold5ms  = 0.005
	Threshold10ms = 0.010
)

// Report summarises the gaps of an alignment. It is a value computed once
// from the pairs.
type Report struct {
	Count      int     `json:"count"`
	MeanGap    float64 `json:"mean_gap_s"`
	MedianGap  float64 `json:"median_gap_s"`
	MinGap     float64 `json:"min_gap_s"`
	MaxGap     float64 `json:"max_gap_s"`
	Within5ms  int     `json:"within_5ms"`
	Within10ms int     `json:"within_10ms"`
}

// NewReport aggregates the gaps of pairs. No pairs gives the zero Report.
func NewReport(pairs []Pair) Report {
	if len(pairs) == 0 {
		return Report{}
	}
	gaps := make([]float64, len(pairs))
	r := Report{Count: len(pairs)}
	for i, p := range pairs {
		gaps[i] = p.Gap
		if p.Gap <= Threshold5ms {
			r.Within5ms++
		}
		if p.Gap <= Threshold10ms {
			r.Within10ms++
		}
	}
	r.MeanGap = stat.Mean(gaps, nil)
	r.MinGap = floats.Min(gaps)
	r.MaxGap = floats.Max(gaps)
	sort.Float64s(gaps)
	r.MedianGap = median(gaps)
	return r
}

// median of sorted values; an even count averages the two middle values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Fraction5ms is the share of pairs with a gap of at most 5 ms.
func (r Report) Fraction5ms() float64 { return fraction(r.Within5ms, r.Count) }

// Fraction10ms is the share of pairs with a gap of at most 10 ms.
func (r Report) Fraction10ms() float64 { return fraction(r.Within10ms, r.Count) }

func fraction(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

// ImprovedOver reports whether r is a strictly better alignment than
// before: a lower mean gap and a larger share of pairs within 5 ms.
func (r Report) ImprovedOver(before Report) bool {
	if r.Count == 0 || before.Count == 0 {
		return false
	}
	return r.MeanGap < before.MeanGap && r.Fraction5ms() > before.Fraction5ms()
}

func (r Report) String() string {
	return fmt.Sprintf("pairs=%d mean=%.3fms median=%.3fms max=%.3fms <=5ms=%d (%.1f%%) <=10ms=%d (%.1f%%)",
		r.Count, r.MeanGap*1e3, r.MedianGap*1e3, r.MaxGap*1e3,
		r.Within5ms, 100*r.Fraction5ms(), r.Within10ms, 100*r.Fraction10ms())
}
