package resample

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/sensorsync/internal/align"
)

var (
	// ErrEmptySequence and ErrUnsortedInput are shared with the aligner so
	// callers can test for either with a single errors.Is.
	ErrEmptySequence = align.ErrEmptySequence
	ErrUnsortedInput = align.ErrUnsortedInput

	// ErrTooFewSamples is returned when a single sample cannot define a curve.
	ErrTooFewSamples = errors.New("at least two samples are required")

	// ErrOutOfDomainTarget is returned for a target outside the closed
	// sample range. Targets are never clamped or extrapolated.
	ErrOutOfDomainTarget = errors.New("target outside sample range")

	// ErrFieldLength is returned when a field does not have one value per
	// sample time.
	ErrFieldLength = errors.New("field length does not match sample times")
)

// DomainError reports the first target outside [Min, Max].
type DomainError struct {
	Index  int
	Target float64
	Min    float64
	Max    float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%v: targets[%d]=%.9f not in [%.9f, %.9f]", ErrOutOfDomainTarget, e.Index, e.Target, e.Min, e.Max)
}

func (e *DomainError) Unwrap() error { return ErrOutOfDomainTarget }

// checkTimes requires strictly increasing, NaN free sample times.
func checkTimes(times []float64) error {
	switch len(times) {
	case 0:
		return fmt.Errorf("%w: no samples", ErrEmptySequence)
	case 1:
		return ErrTooFewSamples
	}
	for i, v := range times {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: times[%d] is %v", ErrUnsortedInput, i, v)
		}
		if i > 0 && v <= times[i-1] {
			return fmt.Errorf("%w: times[%d]=%v does not increase on %v", ErrUnsortedInput, i, v, times[i-1])
		}
	}
	return nil
}

// checkTargets requires ascending targets inside [lo, hi].
func checkTargets(targets []float64, lo, hi float64) error {
	if err := align.CheckSorted("targets", targets); err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}
	if targets[0] < lo {
		return &DomainError{Index: 0, Target: targets[0], Min: lo, Max: hi}
	}
	if last := len(targets) - 1; targets[last] > hi {
		i := sort.Search(len(targets), func(i int) bool { return targets[i] > hi })
		return &DomainError{Index: i, Target: targets[i], Min: lo, Max: hi}
	}
	return nil
}

type derivativePredictor interface {
	PredictDerivative(x float64) float64
}

// Curve is one field fitted over its sample times. It is immutable once
// built and safe for concurrent evaluation.
type Curve struct {
	method Method
	xs     []float64
	ys     []float64
	pred   interp.Predictor
}

// Fit builds a curve through (times[i], values[i]). times must be strictly
// increasing. A spline through exactly two samples is the straight line
// between them.
func Fit(times, values []float64, m Method) (*Curve, error) {
	if err := m.valid(); err != nil {
		return nil, err
	}
	if err := checkTimes(times); err != nil {
		return nil, err
	}
	if len(values) != len(times) {
		return nil, fmt.Errorf("%w: %d values for %d times", ErrFieldLength, len(values), len(times))
	}
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("sample value %d is NaN", i)
		}
	}

	c := &Curve{method: m, xs: times, ys: values}
	if m == CubicSpline && len(times) > 2 {
		var nc interp.NaturalCubic
		if err := nc.Fit(times, values); err != nil {
			return nil, fmt.Errorf("fitting natural cubic spline: %w", err)
		}
		c.pred = &nc
		return c, nil
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(times, values); err != nil {
		return nil, fmt.Errorf("fitting piecewise linear: %w", err)
	}
	c.pred = &pl
	return c, nil
}

// Method returns the interpolation method of the curve.
func (c *Curve) Method() Method { return c.method }

// Domain returns the closed interval the curve may be evaluated on.
func (c *Curve) Domain() (lo, hi float64) {
	return c.xs[0], c.xs[len(c.xs)-1]
}

func (c *Curve) inDomain(t float64) error {
	lo, hi := c.Domain()
	if t < lo || t > hi || math.IsNaN(t) {
		return &DomainError{Target: t, Min: lo, Max: hi}
	}
	return nil
}

// At evaluates the curve at t.
func (c *Curve) At(t float64) (float64, error) {
	if err := c.inDomain(t); err != nil {
		return math.NaN(), err
	}
	return c.pred.Predict(t), nil
}

// Derivative evaluates the first derivative at t. For linear curves at an
// interior knot this is the slope of the segment to the right.
func (c *Curve) Derivative(t float64) (float64, error) {
	if err := c.inDomain(t); err != nil {
		return math.NaN(), err
	}
	if dp, ok := c.pred.(derivativePredictor); ok && c.method == CubicSpline {
		return dp.PredictDerivative(t), nil
	}
	i := sort.SearchFloat64s(c.xs, t)
	if i == len(c.xs) || c.xs[i] > t || i == len(c.xs)-1 {
		i--
	}
	if i < 0 {
		i = 0
	}
	return (c.ys[i+1] - c.ys[i]) / (c.xs[i+1] - c.xs[i]), nil
}

// predict skips the domain check for callers that validated all targets.
func (c *Curve) predict(t float64) float64 {
	return c.pred.Predict(t)
}
