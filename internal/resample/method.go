package resample

import (
	"fmt"
	"strings"

	"github.com/banshee-data/sensorsync/internal/config"
)

// Method selects the interpolation scheme. The two methods share no state.
type Method int

const (
	// Linear interpolates between the two bracketing samples.
	Linear Method = iota
	// CubicSpline fits a natural cubic spline: C2 continuous with zero
	// second derivative at both ends.
	CubicSpline
)

// ErrInvalidMethod is returned for an unknown method name.
var ErrInvalidMethod = fmt.Errorf("unknown interpolation method: %w", config.ErrInvalidConfiguration)

func (m Method) String() string {
	switch m {
	case Linear:
		return "linear"
	case CubicSpline:
		return "spline"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod accepts "linear", "spline", "cubic" or "cubic_spline".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear":
		return Linear, nil
	case "spline", "cubic", "cubic_spline", "cubicspline":
		return CubicSpline, nil
	default:
		return Linear, fmt.Errorf("%w %q: expected linear or spline", ErrInvalidMethod, s)
	}
}

func (m Method) valid() error {
	if m != Linear && m != CubicSpline {
		return fmt.Errorf("%w %v", ErrInvalidMethod, m)
	}
	return nil
}

// MarshalText lets a Method round-trip through JSON and YAML as its name.
func (m Method) MarshalText() ([]byte, error) {
	if err := m.valid(); err != nil {
		return nil, err
	}
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(b []byte) error {
	parsed, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
