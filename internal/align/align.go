// Package align matches each timestamp of a reference sequence to the
// nearest timestamp of a sorted target sequence and summarises the gaps.
package align

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptySequence is returned when the target sequence has no elements.
	ErrEmptySequence = errors.New("empty target sequence")

	// ErrUnsortedInput is returned when an input is not ascending or holds NaN.
	// Inputs are checked, never re-sorted.
	ErrUnsortedInput = errors.New("input is not sorted ascending")
)

// Pair matches reference[Reference] with target[Match].
type Pair struct {
	Reference int
	Match     int
	Gap       float64 // |reference - target| in seconds
}

// CheckSorted returns an error wrapping ErrUnsortedInput naming the first
// position where ts is NaN or decreases.
func CheckSorted(name string, ts []float64) error {
	for i, v := range ts {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: %s[%d] is NaN", ErrUnsortedInput, name, i)
		}
		if i > 0 && v < ts[i-1] {
			return fmt.Errorf("%w: %s[%d]=%v follows %v", ErrUnsortedInput, name, i, v, ts[i-1])
		}
	}
	return nil
}

func checkInputs(reference, target []float64) error {
	if len(target) == 0 {
		return ErrEmptySequence
	}
	if err := CheckSorted("target", target); err != nil {
		return err
	}
	return CheckSorted("reference", reference)
}

// Nearest returns the index of the element of target closest to t. target
// must be non-empty and sorted. On a tie the earlier index wins; values
// outside the target range match the nearest boundary element.
func Nearest(target []float64, t float64) int {
	i := sort.SearchFloat64s(target, t)
	switch {
	case i == 0:
		return 0
	case i == len(target):
		return sort.SearchFloat64s(target, target[len(target)-1])
	}
	if t-target[i-1] <= target[i]-t {
		// First of any run of equal values.
		return sort.SearchFloat64s(target[:i], target[i-1])
	}
	return i
}

// Align pairs every reference timestamp with its nearest target timestamp.
// Pairs are in reference order. An empty reference yields no pairs and a
// zero Report.
func Align(reference, target []float64) ([]Pair, Report, error) {
	if err := checkInputs(reference, target); err != nil {
		return nil, Report{}, err
	}
	pairs := make([]Pair, len(reference))
	alignRange(pairs, reference, target, 0, len(reference))
	return pairs, NewReport(pairs), nil
}

func alignRange(pairs []Pair, reference, target []float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		j := Nearest(target, reference[i])
		pairs[i] = Pair{Reference: i, Match: j, Gap: math.Abs(reference[i] - target[j])}
	}
}

// minChunk keeps tiny inputs on a single goroutine.
const minChunk = 4096

// AlignParallel is Align with the reference split into chunks searched by
// up to workers goroutines (GOMAXPROCS when workers <= 0). The result is
// identical to Align.
func AlignParallel(ctx context.Context, reference, target []float64, workers int) ([]Pair, Report, error) {
	if err := checkInputs(reference, target); err != nil {
		return nil, Report{}, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pairs := make([]Pair, len(reference))
	chunk := max((len(reference)+workers-1)/workers, minChunk)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(reference); lo += chunk {
		hi := min(lo+chunk, len(reference))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			alignRange(pairs, reference, target, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}
	return pairs, NewReport(pairs), nil
}
