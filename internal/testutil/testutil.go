// Package testutil builds the synthetic GNSS and IMU logs shared by the
// package tests.
package testutil

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensorsync/internal/frames"
	"github.com/banshee-data/sensorsync/internal/monitoring"
)

// FixRateHz is the rate of the synthetic GNSS fixes.
const FixRateHz = 10

// Epoch is the timestamp of Fix(0): 2024-05-01 12:00:00 UTC.
var Epoch = float64(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Unix())

// Fix returns the i-th fix of a receiver moving east at a steady rate.
// Longitude is linear in time: 10 + 0.01 degrees per second.
func Fix(i int) frames.GnssRecord {
	return frames.GnssRecord{
		Time: frames.GnssTime{
			Year: 2024, Month: 5, Day: 1, Hour: 12,
			Microsecond: uint32(i) * 1_000_000 / FixRateHz,
		},
		Longitude: 10 + 0.001*float64(i),
		Latitude:  50 + 0.0005*float64(i),
		Altitude:  100 + float64(i),
		VelX:      1 + 0.1*float64(i%3),
		VelY:      0.5,
	}
}

// GnssLog encodes fixes 0..n-1 as raw frames.
func GnssLog(n int) []byte {
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, frames.EncodeGnss(Fix(i))...)
	}
	return out
}

// ImuLog encodes m IMU records; record k has GyroX = k.
func ImuLog(m int) []byte {
	var out []byte
	for k := 0; k < m; k++ {
		out = append(out, frames.EncodeImu(frames.ImuRecord{GyroX: float64(k), AccelZ: 9.81})...)
	}
	return out
}

// WriteFile writes data to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// WriteLogs writes GnssLog(n) and ImuLog(m) into dir.
func WriteLogs(t testing.TB, dir string, n, m int) (gnssPath, imuPath string) {
	t.Helper()
	return WriteFile(t, dir, "gnss.bin", GnssLog(n)), WriteFile(t, dir, "imu.bin", ImuLog(m))
}

// QuietLogs mutes monitoring.Logf for the rest of the test.
func QuietLogs(t testing.TB) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(log.Printf) })
}
