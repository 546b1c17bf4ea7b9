package api

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sensorsync/internal/pipeline"
	"github.com/banshee-data/sensorsync/internal/timeutil"
)

// Job states. A job moves uploaded -> processing -> completed or failed.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	errJobNotFound = errors.New("job not found")
	errJobState    = errors.New("invalid job status")
)

// JobFiles are the uploaded inputs of a job.
type JobFiles struct {
	Gnss   string `json:"gnss"`
	Imu    string `json:"imu"`
	Result string `json:"result,omitempty"`
}

// Job is one upload and its processing run.
type Job struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Files       JobFiles          `json:"files"`
	OutputDir   string            `json:"output_dir,omitempty"`
	Results     *pipeline.Summary `json:"results,omitempty"`
	Plots       []string          `json:"plots,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// JobTable is the in-memory job registry. Jobs are returned by value so
// callers never share state with the table.
type JobTable struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	clock timeutil.Clock
}

// NewJobTable returns an empty table stamping jobs with clock.
func NewJobTable(clock timeutil.Clock) *JobTable {
	return &JobTable{jobs: make(map[string]*Job), clock: clock}
}

// NewID returns a fresh job id.
func (t *JobTable) NewID() string { return uuid.NewString() }

// Add registers an uploaded job under id.
func (t *JobTable) Add(id string, files JobFiles) Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := &Job{ID: id, Status: StatusUploaded, CreatedAt: t.clock.Now(), Files: files}
	t.jobs[id] = j
	return *j
}

// Get returns a copy of the job.
func (t *JobTable) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns every job, oldest first.
func (t *JobTable) List() []Job {
	t.mu.RLock()
	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, *j)
	}
	t.mu.RUnlock()
	slices.SortFunc(out, func(a, b Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Start moves an uploaded job to processing. Any other state is an error
// so a job is processed at most once.
func (t *JobTable) Start(id, outputDir string) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, errJobNotFound
	}
	if j.Status != StatusUploaded {
		return *j, errJobState
	}
	now := t.clock.Now()
	j.Status, j.StartedAt, j.OutputDir = StatusProcessing, &now, outputDir
	return *j, nil
}

// Finish records the outcome of a run. A nil err completes the job; a
// summary is kept either way when the run got far enough to produce one.
func (t *JobTable) Finish(id string, summary *pipeline.Summary, plots []string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		// Deleted while running.
		return
	}
	now := t.clock.Now()
	j.CompletedAt, j.Results, j.Plots = &now, summary, plots
	if err != nil {
		j.Status, j.Error = StatusFailed, err.Error()
		return
	}
	j.Status = StatusCompleted
}

// Remove deletes the job and returns what it was. A processing job is
// kept and errJobState returned; the check and the delete share the lock so
// a concurrent Start cannot slip in between.
func (t *JobTable) Remove(id string) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return Job{}, errJobNotFound
	}
	if j.Status == StatusProcessing {
		return *j, errJobState
	}
	delete(t.jobs, id)
	return *j, nil
}
