package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensorsync/internal/timeutil"
)

func TestJobTableRemoveRefusesProcessing(t *testing.T) {
	table := NewJobTable(timeutil.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	table.Add("a", JobFiles{Gnss: "g", Imu: "i"})

	_, err := table.Start("a", "out")
	require.NoError(t, err)

	job, err := table.Remove("a")
	assert.ErrorIs(t, err, errJobState)
	assert.Equal(t, StatusProcessing, job.Status)
	_, ok := table.Get("a")
	assert.True(t, ok, "processing job must stay registered")

	table.Finish("a", nil, nil, nil)
	job, err = table.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)

	_, err = table.Remove("a")
	assert.ErrorIs(t, err, errJobNotFound)
}

func TestJobTableStartRemoveRace(t *testing.T) {
	table := NewJobTable(timeutil.RealClock{})
	for i := 0; i < 200; i++ {
		id := table.NewID()
		table.Add(id, JobFiles{})

		var startErr, removeErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, startErr = table.Start(id, "out")
		}()
		go func() {
			defer wg.Done()
			_, removeErr = table.Remove(id)
		}()
		wg.Wait()

		if startErr == nil {
			// The run owns the job; deletion must have been refused.
			require.ErrorIs(t, removeErr, errJobState)
			_, ok := table.Get(id)
			require.True(t, ok)
			continue
		}
		require.ErrorIs(t, startErr, errJobNotFound)
		require.NoError(t, removeErr)
	}
}
