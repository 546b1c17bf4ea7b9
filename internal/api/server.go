// Package api serves the synchronisation pipeline over HTTP: upload a
// GNSS log, an IMU log and optionally a navigation result file, start a
// run, poll its status and fetch the summary, plots and HTML report.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/banshee-data/sensorsync/internal/charts"
	"github.com/banshee-data/sensorsync/internal/config"
	"github.com/banshee-data/sensorsync/internal/httputil"
	"github.com/banshee-data/sensorsync/internal/monitoring"
	"github.com/banshee-data/sensorsync/internal/pipeline"
	"github.com/banshee-data/sensorsync/internal/security"
	"github.com/banshee-data/sensorsync/internal/store"
	"github.com/banshee-data/sensorsync/internal/timeutil"
	"github.com/banshee-data/sensorsync/internal/version"
)

const (
	maxUploadBytes = 512 << 20
	maxMemoryBytes = 32 << 20
)

// Runner executes one pipeline run. It is pipeline.Run outside tests.
type Runner func(ctx context.Context, cfg *config.PipelineConfig) (*pipeline.Results, error)

// Options configures a Server.
type Options struct {
	UploadDir string
	OutputDir string
	// Defaults is layered under the form values of each process request.
	Defaults *config.PipelineConfig
	// DB, when set, backs /api/runs. Runs are written to it only when
	// Defaults names the same database_path.
	DB     *store.Store
	Clock  timeutil.Clock
	Runner Runner
}

// Server owns the job table and the background runs.
type Server struct {
	opts Options
	jobs *JobTable

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer returns a Server, filling unset options with defaults.
func NewServer(opts Options) *Server {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "output"
	}
	if opts.Defaults == nil {
		opts.Defaults = config.EmptyPipelineConfig()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Runner == nil {
		opts.Runner = pipeline.Run
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{opts: opts, jobs: NewJobTable(opts.Clock), ctx: ctx, cancel: cancel}
}

// Jobs exposes the job table.
func (s *Server) Jobs() *JobTable { return s.jobs }

// Wait blocks until every background run has finished.
func (s *Server) Wait() { s.wg.Wait() }

// Close cancels running jobs and waits for them.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// ServeMux returns the routes of the service.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/process/{id}", s.handleProcess)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/results/{id}", s.handleResults)
	mux.HandleFunc("GET /api/plots/{id}/{file}", s.handlePlot)
	mux.HandleFunc("GET /api/charts/{id}", s.handleCharts)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"service": "sensorsync",
		"version": version.Version,
		"endpoints": map[string]string{
			"upload":  "POST /api/upload",
			"process": "POST /api/process/{job_id}",
			"status":  "GET /api/status/{job_id}",
			"results": "GET /api/results/{job_id}",
			"plots":   "GET /api/plots/{job_id}/{filename}",
			"charts":  "GET /api/charts/{job_id}",
			"jobs":    "GET /api/jobs",
			"runs":    "GET /api/runs",
		},
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("parsing upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	id := s.jobs.NewID()
	dir := filepath.Join(s.opts.UploadDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		httputil.InternalServerError(w, "creating upload directory")
		return
	}

	var files JobFiles
	var err error
	if files.Gnss, err = saveUpload(r, "gnss_file", dir, "gnss.dat", true); err == nil {
		if files.Imu, err = saveUpload(r, "imu_file", dir, "imu.dat", true); err == nil {
			files.Result, err = saveUpload(r, "result_file", dir, "result.dat", false)
		}
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		httputil.BadRequest(w, err.Error())
		return
	}

	job := s.jobs.Add(id, files)
	monitoring.Logf("api: job %s uploaded", id)
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "files uploaded",
	})
}

// saveUpload copies form file field into dir/name and returns its path.
// A missing optional field returns "".
func saveUpload(r *http.Request, field, dir, name string, required bool) (string, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		if required {
			return "", fmt.Errorf("%s is required", field)
		}
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", field, err)
	}
	defer f.Close()
	return writeUpload(f, hdr, filepath.Join(dir, name))
}

func writeUpload(src multipart.File, hdr *multipart.FileHeader, path string) (string, error) {
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("saving %s: %w", security.SanitizeFilename(hdr.Filename), err)
	}
	monitoring.Logf("api: saved %s as %s (%s)", security.SanitizeFilename(hdr.Filename), filepath.Base(path), monitoring.Bytes(n))
	return path, nil
}

// processOverrides reads the optional run settings of a process request.
func processOverrides(r *http.Request) (*config.PipelineConfig, error) {
	o := config.EmptyPipelineConfig()
	float := func(name string, dst **float64) error {
		v := r.FormValue(name)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = &f
		return nil
	}
	str := func(name string, dst **string) {
		if v := r.FormValue(name); v != "" {
			*dst = &v
		}
	}
	if err := float("imu_rate_hz", &o.ImuRateHz); err != nil {
		return nil, err
	}
	if err := float("target_rate_hz", &o.TargetRateHz); err != nil {
		return nil, err
	}
	str("interpolation", &o.Interpolation)
	str("target_grid", &o.TargetGrid)
	if v := r.FormValue("generate_plots"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("generate_plots: %w", err)
		}
		o.GeneratePlots = &b
	}
	return o, o.Validate()
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	overrides, err := processOverrides(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	job, ok := s.jobs.Get(id)
	if !ok {
		httputil.NotFound(w, errJobNotFound.Error())
		return
	}

	cfg := s.opts.Defaults.WithOverrides(overrides)
	outDir := filepath.Join(s.opts.OutputDir, id)
	cfg.GnssFile, cfg.ImuFile, cfg.OutputDir = &job.Files.Gnss, &job.Files.Imu, &outDir
	if job.Files.Result != "" {
		cfg.ResultFile = &job.Files.Result
	}

	job, err = s.jobs.Start(id, outDir)
	switch {
	case errors.Is(err, errJobNotFound):
		httputil.NotFound(w, err.Error())
		return
	case errors.Is(err, errJobState):
		httputil.Conflict(w, fmt.Sprintf("%v: %s", err, job.Status))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(id, cfg)
	}()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  id,
		"status":  StatusProcessing,
		"message": "processing started",
	})
}

func (s *Server) process(id string, cfg *config.PipelineConfig) {
	monitoring.Logf("api: job %s processing", id)
	res, err := s.opts.Runner(s.ctx, cfg)
	var summary *pipeline.Summary
	var plots []string
	if res != nil {
		sum := res.Summary()
		summary = &sum
		plots = listPlots(filepath.Join(cfg.GetOutputDir(), pipeline.PlotDir))
	}
	if err != nil {
		monitoring.Logf("api: job %s failed: %v", id, err)
	} else {
		monitoring.Logf("api: job %s completed", id)
	}
	s.jobs.Finish(id, summary, plots, err)
}

func listPlots(dir string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.png"))
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.Base(m)
	}
	slices.Sort(out)
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		httputil.NotFound(w, errJobNotFound.Error())
		return
	}
	httputil.WriteJSONOK(w, job)
}

// completedJob writes the error response and returns false unless the
// job exists and has completed.
func (s *Server) completedJob(w http.ResponseWriter, id string) (Job, bool) {
	job, ok := s.jobs.Get(id)
	if !ok {
		httputil.NotFound(w, errJobNotFound.Error())
		return Job{}, false
	}
	if job.Status != StatusCompleted {
		httputil.Conflict(w, fmt.Sprintf("job not completed, current status: %s", job.Status))
		return Job{}, false
	}
	return job, true
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.completedJob(w, r.PathValue("id"))
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"results":    job.Results,
		"plots":      job.Plots,
		"output_dir": job.OutputDir,
	})
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	job, ok := s.completedJob(w, r.PathValue("id"))
	if !ok {
		return
	}
	s.serveOutput(w, r, filepath.Join(job.OutputDir, pipeline.PlotDir), r.PathValue("file"))
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	job, ok := s.completedJob(w, r.PathValue("id"))
	if !ok {
		return
	}
	s.serveOutput(w, r, filepath.Join(job.OutputDir, pipeline.PlotDir), charts.ReportFile)
}

func (s *Server) serveOutput(w http.ResponseWriter, r *http.Request, dir, name string) {
	path, err := security.ResolveWithin(dir, name)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if fi, err := os.Stat(path); err != nil || fi.IsDir() {
		httputil.NotFound(w, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		CreatedAt string `json:"created_at"`
	}
	jobs := s.jobs.List()
	out := make([]entry, len(jobs))
	for i, j := range jobs {
		out[i] = entry{ID: j.ID, Status: j.Status, CreatedAt: j.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")}
	}
	httputil.WriteJSONOK(w, map[string]any{"jobs": out})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch _, err := s.jobs.Remove(id); {
	case errors.Is(err, errJobNotFound):
		httputil.NotFound(w, err.Error())
		return
	case errors.Is(err, errJobState):
		httputil.Conflict(w, "job is still processing")
		return
	}
	for _, dir := range []string{filepath.Join(s.opts.UploadDir, id), filepath.Join(s.opts.OutputDir, id)} {
		if err := os.RemoveAll(dir); err != nil {
			monitoring.Logf("api: removing %s: %v", dir, err)
		}
	}
	httputil.WriteJSONOK(w, map[string]string{"message": "job deleted"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		httputil.NotFound(w, "no run database configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.BadRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}
	runs, err := s.opts.DB.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		httputil.NotFound(w, "no run database configured")
		return
	}
	id := r.PathValue("id")
	run, err := s.opts.DB.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	reports, err := s.opts.DB.Reports(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"run": run, "reports": reports})
}
