// Package resample interpolates sampled fields onto new timestamps. Each
// field is fitted on its own, either piecewise linearly or with a natural
// cubic spline, and targets outside the sample range are rejected.
package resample

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Series holds field-major samples: Fields[f][i] is field f at Times[i].
type Series struct {
	Times  []float64
	Fields [][]float64
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Times) }

// Field returns column f.
func (s Series) Field(f int) []float64 { return s.Fields[f] }

// fit builds one curve per field. This is the only sequential barrier:
// every curve is complete before any target is evaluated.
func fit(samples Series, m Method) ([]*Curve, error) {
	if err := m.valid(); err != nil {
		return nil, err
	}
	if err := checkTimes(samples.Times); err != nil {
		return nil, err
	}
	curves := make([]*Curve, len(samples.Fields))
	for f, values := range samples.Fields {
		if len(values) != len(samples.Times) {
			return nil, fmt.Errorf("%w: field %d has %d values for %d times", ErrFieldLength, f, len(values), len(samples.Times))
		}
		c, err := Fit(samples.Times, values, m)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", f, err)
		}
		curves[f] = c
	}
	return curves, nil
}

func prepare(samples Series, targets []float64, m Method) ([]*Curve, Series, error) {
	curves, err := fit(samples, m)
	if err != nil {
		return nil, Series{}, err
	}
	lo, hi := samples.Times[0], samples.Times[len(samples.Times)-1]
	if err := checkTargets(targets, lo, hi); err != nil {
		return nil, Series{}, err
	}
	out := Series{
		Times:  append([]float64(nil), targets...),
		Fields: make([][]float64, len(curves)),
	}
	for f := range out.Fields {
		out.Fields[f] = make([]float64, len(targets))
	}
	return curves, out, nil
}

func evaluate(curves []*Curve, out Series, lo, hi int) {
	for f, c := range curves {
		col := out.Fields[f]
		for i := lo; i < hi; i++ {
			col[i] = c.predict(out.Times[i])
		}
	}
}

// Resample evaluates every field of samples at each target. Sample times
// must be strictly increasing and targets ascending within the closed
// sample range; the first target outside it fails the whole call with a
// *DomainError.
func Resample(samples Series, targets []float64, m Method) (Series, error) {
	curves, out, err := prepare(samples, targets, m)
	if err != nil {
		return Series{}, err
	}
	evaluate(curves, out, 0, len(targets))
	return out, nil
}

const minChunk = 2048

// ResampleParallel is Resample with target evaluation spread over up to
// workers goroutines (GOMAXPROCS when workers <= 0). Output is identical
// to Resample.
func ResampleParallel(ctx context.Context, samples Series, targets []float64, m Method, workers int) (Series, error) {
	curves, out, err := prepare(samples, targets, m)
	if err != nil {
		return Series{}, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := max((len(targets)+workers-1)/workers, minChunk)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(targets); lo += chunk {
		hi := min(lo+chunk, len(targets))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			evaluate(curves, out, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Series{}, err
	}
	return out, nil
}
