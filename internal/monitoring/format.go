package monitoring

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Count renders n with thousands separators, e.g. 1,234,567.
func Count[T ~int | ~int64](n T) string {
	return humanize.Comma(int64(n))
}

// Bytes renders a byte size in SI units, e.g. 4.2 MB.
func Bytes[T ~int | ~int64](n T) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	return humanize.Bytes(uint64(n))
}

// Percent renders a fraction as a percentage with at most one decimal.
func Percent(f float64) string {
	return humanize.FtoaWithDigits(f*100, 1) + "%"
}

// Rate renders n items processed over d as items per second.
func Rate(n int, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return humanize.CommafWithDigits(float64(n)/d.Seconds(), 0) + "/s"
}
