package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/pipeline"
	"github.com/banshee-data/sensorsync/internal/store"
	"github.com/banshee-data/sensorsync/internal/testutil"
	"github.com/banshee-data/sensorsync/internal/timeutil"
)

// logs returns 2.9 s of fixes and 150 IMU records, all inside them.
func logs() (gnss, imu []byte) {
	return testutil.GnssLog(30), testutil.ImuLog(150)
}

type testServer struct {
	*Server
	srv   *httptest.Server
	clock *timeutil.MockClock
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	testutil.QuietLogs(t)
	dir := t.TempDir()
	clock := timeutil.NewMockClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	opts.UploadDir = filepath.Join(dir, "uploads")
	opts.OutputDir = filepath.Join(dir, "output")
	opts.Clock = clock
	s := NewServer(opts)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return &testServer{Server: s, srv: srv, clock: clock}
}

func (ts *testServer) upload(t *testing.T, files map[string][]byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".bin")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	resp, err := http.Post(ts.srv.URL+"/api/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) uploadLogs(t *testing.T) string {
	t.Helper()
	gnss, imu := logs()
	resp := ts.upload(t, map[string][]byte{"gnss_file": gnss, "imu_file": imu})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, StatusUploaded, out["status"])
	return out["job_id"]
}

func (ts *testServer) process(t *testing.T, id string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(ts.srv.URL+"/api/process/"+id, form)
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, rawURL string, v any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestUploadProcessResults(t *testing.T) {
	ts := newTestServer(t, Options{})
	id := ts.uploadLogs(t)

	var job Job
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/status/"+id, &job))
	assert.Equal(t, StatusUploaded, job.Status)
	assert.FileExists(t, job.Files.Gnss)
	assert.FileExists(t, job.Files.Imu)
	assert.Empty(t, job.Files.Result)
	assert.True(t, ts.clock.Now().Equal(job.CreatedAt))

	// Results are refused until the job completes.
	require.Equal(t, http.StatusConflict, getJSON(t, ts.srv.URL+"/api/results/"+id, nil))

	resp := ts.process(t, id, url.Values{"interpolation": {"spline"}, "imu_rate_hz": {"95"}})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ts.Wait()

	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/status/"+id, &job))
	require.Equal(t, StatusCompleted, job.Status, job.Error)
	require.NotNil(t, job.Results)
	assert.Equal(t, 150, job.Results.Interpolated)
	assert.True(t, job.Results.Improved)
	assert.Len(t, job.Plots, 6)

	var results struct {
		JobID   string            `json:"job_id"`
		Results *pipeline.Summary `json:"results"`
		Plots   []string          `json:"plots"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/results/"+id, &results))
	assert.Equal(t, id, results.JobID)
	assert.Equal(t, job.Results.After, results.Results.After)

	resp, err := http.Get(ts.srv.URL + "/api/plots/" + id + "/" + job.Plots[0])
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, err = http.Get(ts.srv.URL + "/api/charts/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	// A job runs once.
	resp = ts.process(t, id, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPlotNameCannotEscape(t *testing.T) {
	ts := newTestServer(t, Options{Runner: func(ctx context.Context, cfg *config.PipelineConfig) (*pipeline.Results, error) {
		return &pipeline.Results{RunID: "r"}, nil
	}})
	id := ts.uploadLogs(t)
	resp := ts.process(t, id, nil)
	resp.Body.Close()
	ts.Wait()

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.srv.URL+"/api/plots/"+id+"/missing.png", nil))

	req := httptest.NewRequest(http.MethodGet, "/api/plots/x/y", nil)
	req.SetPathValue("id", id)
	req.SetPathValue("file", "../../uploads")
	rec := httptest.NewRecorder()
	ts.handlePlot(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRequiresBothLogs(t *testing.T) {
	ts := newTestServer(t, Options{})
	gnss, _ := logs()
	resp := ts.upload(t, map[string][]byte{"gnss_file": gnss})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "imu_file is required")
	assert.Empty(t, ts.Jobs().List())

	entries, err := os.ReadDir(ts.opts.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial uploads are removed")
}

func TestUploadKeepsResultFile(t *testing.T) {
	ts := newTestServer(t, Options{})
	gnss, imu := logs()
	resp := ts.upload(t, map[string][]byte{"gnss_file": gnss, "imu_file": imu, "result_file": []byte("nav")})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	jobs := ts.Jobs().List()
	require.Len(t, jobs, 1)
	data, err := os.ReadFile(jobs[0].Files.Result)
	require.NoError(t, err)
	assert.Equal(t, "nav", string(data))
}

func TestProcessValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := ts.process(t, "nope", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	id := ts.uploadLogs(t)
	for _, form := range []url.Values{
		{"imu_rate_hz": {"fast"}},
		{"imu_rate_hz": {"-1"}},
		{"interpolation": {"quadratic"}},
		{"generate_plots": {"maybe"}},
	} {
		resp := ts.process(t, id, form)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, form.Encode())
	}

	job, ok := ts.Jobs().Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusUploaded, job.Status)
}

func TestProcessPassesSettings(t *testing.T) {
	var got *config.PipelineConfig
	ts := newTestServer(t, Options{
		Defaults: &config.PipelineConfig{Workers: func() *int { n := 3; return &n }()},
		Runner: func(ctx context.Context, cfg *config.PipelineConfig) (*pipeline.Results, error) {
			got = cfg
			return &pipeline.Results{}, nil
		},
	})
	id := ts.uploadLogs(t)
	resp := ts.process(t, id, url.Values{
		"target_grid":    {"uniform"},
		"target_rate_hz": {"20"},
		"generate_plots": {"false"},
	})
	resp.Body.Close()
	ts.Wait()

	require.NotNil(t, got)
	assert.Equal(t, "uniform", got.GetTargetGrid())
	assert.Equal(t, 20.0, got.GetTargetRateHz())
	assert.False(t, got.GetGeneratePlots())
	assert.Equal(t, 3, got.GetWorkers())
	assert.Equal(t, filepath.Join(ts.opts.OutputDir, id), got.GetOutputDir())
	assert.True(t, strings.HasPrefix(got.GetGnssFile(), ts.opts.UploadDir))
}

func TestFailedRunIsReported(t *testing.T) {
	ts := newTestServer(t, Options{Runner: func(ctx context.Context, cfg *config.PipelineConfig) (*pipeline.Results, error) {
		return nil, errors.New("no valid gnss fix")
	}})
	id := ts.uploadLogs(t)
	resp := ts.process(t, id, nil)
	resp.Body.Close()
	ts.Wait()

	var job Job
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/status/"+id, &job))
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "no valid gnss fix", job.Error)
	assert.Nil(t, job.Results)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, http.StatusConflict, getJSON(t, ts.srv.URL+"/api/results/"+id, nil))
}

func TestCloseCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	ts := newTestServer(t, Options{Runner: func(ctx context.Context, cfg *config.PipelineConfig) (*pipeline.Results, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	id := ts.uploadLogs(t)
	resp := ts.process(t, id, nil)
	resp.Body.Close()
	<-started

	// Running jobs cannot be deleted.
	req, err := http.NewRequest(http.MethodDelete, ts.srv.URL+"/api/jobs/"+id, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	ts.Close()
	job, ok := ts.Jobs().Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, context.Canceled.Error(), job.Error)
}

func TestListAndDeleteJobs(t *testing.T) {
	ts := newTestServer(t, Options{})
	first := ts.uploadLogs(t)
	ts.clock.Advance(time.Minute)
	second := ts.uploadLogs(t)

	var list struct {
		Jobs []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		} `json:"jobs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/jobs", &list))
	require.Len(t, list.Jobs, 2)
	assert.Equal(t, first, list.Jobs[0].ID)
	assert.Equal(t, second, list.Jobs[1].ID)
	assert.Equal(t, "2024-05-01T12:01:00Z", list.Jobs[1].CreatedAt)

	req, err := http.NewRequest(http.MethodDelete, ts.srv.URL+"/api/jobs/"+first, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoDirExists(t, filepath.Join(ts.opts.UploadDir, first))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.srv.URL+"/api/status/"+first, nil))

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.srv.URL+"/api/runs", nil))

	dbPath := filepath.Join(t.TempDir(), "runs.db")
	db, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	defaults := config.EmptyPipelineConfig()
	defaults.DatabasePath = &dbPath
	ts = newTestServer(t, Options{DB: db, Defaults: defaults})

	id := ts.uploadLogs(t)
	resp := ts.process(t, id, url.Values{"generate_plots": {"false"}})
	resp.Body.Close()
	ts.Wait()
	job, _ := ts.Jobs().Get(id)
	require.Equal(t, StatusCompleted, job.Status, job.Error)

	var runs struct {
		Runs []store.Run `json:"runs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/runs?limit=5", &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, job.Results.RunID, runs.Runs[0].RunID)

	var run struct {
		Run     store.Run                  `json:"run"`
		Reports map[string]json.RawMessage `json:"reports"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/runs/"+job.Results.RunID, &run))
	assert.Equal(t, 150, run.Run.ImuRecords)
	assert.Contains(t, run.Reports, store.StageBefore)
	assert.Contains(t, run.Reports, store.StageAfter)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.srv.URL+"/api/runs/unknown", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.srv.URL+"/api/runs?limit=x", nil))
}

func TestIndexAndVersion(t *testing.T) {
	ts := newTestServer(t, Options{})
	var index map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/", &index))
	assert.Equal(t, "sensorsync", index["service"])

	var v map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts.srv.URL+"/api/version", &v))
	assert.Contains(t, v, "git_sha")

	resp, err := http.Get(ts.srv.URL + "/api/upload")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(log.Printf)

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	h := LoggingMiddleware(clock, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clock.Advance(5 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, lines, 1)
	assert.Equal(t, colorBoldRed+"418"+colorReset, statusCodeColor(http.StatusTeapot))
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(http.StatusOK))
	assert.Equal(t, "100", statusCodeColor(100))
}
