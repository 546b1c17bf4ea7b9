package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensorsync/internal/frames"
)

func TestFixTimes(t *testing.T) {
	for _, i := range []int{0, 1, 59} {
		ts, err := Fix(i).Time.Seconds()
		require.NoError(t, err)
		assert.InDelta(t, Epoch+float64(i)/FixRateHz, ts, 1e-9)
	}
}

func TestWriteLogsDecode(t *testing.T) {
	g, i := WriteLogs(t, t.TempDir(), 5, 7)

	gnss, err := frames.ReadAll(frames.FileSource(g), frames.EncodingRaw)
	require.NoError(t, err)
	require.Len(t, gnss.Gnss, 5)
	assert.Equal(t, Epoch, gnss.Gnss[0].Timestamp)
	assert.InDelta(t, 10.004, gnss.Gnss[4].Longitude, 1e-12)

	imu, err := frames.ReadAll(frames.FileSource(i), frames.EncodingRaw)
	require.NoError(t, err)
	require.Len(t, imu.Imu, 7)
	assert.Equal(t, 6.0, imu.Imu[6].GyroX)

	info, err := os.Stat(i)
	require.NoError(t, err)
	assert.EqualValues(t, 7*frames.IMU_FRAME_SIZE, info.Size())
}
