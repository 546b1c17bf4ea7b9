package monitoring

import (
	"testing"
	"time"
)

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"count", Count(1234567), "1,234,567"},
		{"count int64", Count(int64(-42)), "-42"},
		{"bytes", Bytes(4_200_000), "4.2 MB"},
		{"bytes zero", Bytes(0), "0 B"},
		{"percent", Percent(0.125), "12.5%"},
		{"percent whole", Percent(1), "100%"},
		{"rate", Rate(1500, 3*time.Second), "500/s"},
		{"rate zero duration", Rate(10, 0), "n/a"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
