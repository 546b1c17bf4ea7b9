package align

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func gapsToPairs(gaps ...float64) []Pair {
	out := make([]Pair, len(gaps))
	for i, g := range gaps {
		out[i] = Pair{Reference: i, Gap: g}
	}
	return out
}

func TestNewReport(t *testing.T) {
	got := NewReport(gapsToPairs(0.001, 0.005, 0.010, 0.0101, 0.2))
	want := Report{
		Count:      5,
		MeanGap:    (0.001 + 0.005 + 0.010 + 0.0101 + 0.2) / 5,
		MedianGap:  0.010,
		MinGap:     0.001,
		MaxGap:     0.2,
		Within5ms:  2, // thresholds are inclusive
		Within10ms: 3,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if math.Abs(got.Fraction5ms()-0.4) > 1e-12 || math.Abs(got.Fraction10ms()-0.6) > 1e-12 {
		t.Errorf("fractions = %v, %v", got.Fraction5ms(), got.Fraction10ms())
	}
}

func TestNewReportEvenCountMedian(t *testing.T) {
	got := NewReport(gapsToPairs(0.004, 0.001, 0.003, 0.002))
	if math.Abs(got.MedianGap-0.0025) > 1e-12 {
		t.Errorf("MedianGap = %v, want 0.0025", got.MedianGap)
	}

	single := NewReport(gapsToPairs(0.007))
	if single.MedianGap != 0.007 {
		t.Errorf("single pair MedianGap = %v, want 0.007", single.MedianGap)
	}
}

func TestReportDoesNotReorderPairs(t *testing.T) {
	pairs := gapsToPairs(0.3, 0.1, 0.2)
	NewReport(pairs)
	if pairs[0].Gap != 0.3 || pairs[2].Gap != 0.2 {
		t.Errorf("pairs mutated: %+v", pairs)
	}
}

func TestImprovedOver(t *testing.T) {
	before := NewReport(gapsToPairs(0.2, 0.3, 0.004, 0.5))
	after := NewReport(gapsToPairs(0.001, 0.002, 0.004, 0.02))
	if !after.ImprovedOver(before) {
		t.Errorf("after %v should improve on before %v", after, before)
	}
	if before.ImprovedOver(after) {
		t.Error("before should not improve on after")
	}
	if after.ImprovedOver(after) {
		t.Error("a report is not a strict improvement over itself")
	}
	if after.ImprovedOver(Report{}) {
		t.Error("comparison against an empty report must be false")
	}
}
