package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/uuid"

	"github.com/couchcryptid/location-enrichment/internal/domain"
	"github.com/couchcryptid/location-enrichment/internal/pipeline"
)

const maxUploadBytes = 256 << 20

// Analysis states.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Runner executes one analysis. *pipeline.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// LogLine is one progress message with its wall-clock time.
type LogLine struct {
	Time    string `json:"timestamp"`
	Message string `json:"message"`
}

// AnalysisStatus is the polled view of one analysis.
type AnalysisStatus struct {
	ID        string                  `json:"id"`
	Status    string                  `json:"status"`
	Progress  int                     `json:"progress"`
	Phase     domain.Phase            `json:"phase,omitempty"`
	Message   string                  `json:"message"`
	Logs      []LogLine               `json:"logs"`
	Summary   *domain.AnalysisSummary `json:"result,omitempty"`
	Files     []string                `json:"generated_files,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Complete  bool                    `json:"complete"`
	Filename  string                  `json:"filename"`
	DateRange string                  `json:"date_range,omitempty"`
}

// AnalysesConfig holds the web shell's run defaults.
type AnalysesConfig struct {
	UploadDir   string
	OutputDir   string
	Credentials domain.Credentials
	Delay       time.Duration
	BatchSize   int
}

// Analyses accepts uploads, runs each on its own goroutine, and serves the
// shared status table.
type Analyses struct {
	runner Runner
	cfg    AnalysesConfig
	logger *slog.Logger

	// ctx bounds background runs; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// runMu serializes runs; the engine shares one cache store.
	runMu sync.Mutex

	mu     sync.RWMutex
	status map[string]*AnalysisStatus
}

// NewAnalyses creates the analysis handlers.
func NewAnalyses(runner Runner, cfg AnalysesConfig, logger *slog.Logger) *Analyses {
	ctx, cancel := context.WithCancel(context.Background())
	return &Analyses{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		status: make(map[string]*AnalysisStatus),
	}
}

// Close cancels in-flight analyses and waits for them to return.
func (a *Analyses) Close() {
	a.cancel()
	a.wg.Wait()
}

// Get returns a copy of an analysis status.
func (a *Analyses) Get(id string) (AnalysisStatus, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.status[id]
	if !ok {
		return AnalysisStatus{}, false
	}
	out := *st
	out.Logs = slices.Clone(st.Logs)
	out.Files = slices.Clone(st.Files)
	return out, true
}

func (a *Analyses) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}

	creds := domain.Credentials{
		Geoapify: formOr(r, "geoapify_key", a.cfg.Credentials.Geoapify),
		Google:   formOr(r, "google_key", a.cfg.Credentials.Google),
		OnWater:  formOr(r, "onwater_key", a.cfg.Credentials.OnWater),
	}
	if err := creds.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start, err := parseDate(r.FormValue("start_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("start_date: %w", err))
		return
	}
	end, err := parseDate(r.FormValue("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("end_date: %w", err))
		return
	}
	mode, err := domain.ParseGroupMode(r.FormValue("group_by"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := uuid.NewString()
	filename, path, err := a.saveUpload(r, id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := pipeline.Request{
		ID:              id,
		FilePath:        path,
		Start:           start,
		End:             end,
		OutputDir:       filepath.Join(a.cfg.OutputDir, id),
		GroupBy:         mode,
		Credentials:     creds,
		Delay:           a.cfg.Delay,
		BatchSize:       a.cfg.BatchSize,
		Cancelled:       domain.NeverCancel,
		IncludeDistance: true,
		ClassifyWater:   r.FormValue("classify_water") == "true",
	}

	a.mu.Lock()
	a.status[id] = &AnalysisStatus{
		ID:        id,
		Status:    StatusQueued,
		Message:   "Analysis queued",
		Logs:      []LogLine{},
		Filename:  filename,
		DateRange: dateRange(start, end),
	}
	a.mu.Unlock()

	a.wg.Add(1)
	go a.run(req)

	a.logger.Info("analysis accepted", "id", id, "file", filename, "group_by", mode)
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": StatusQueued,
		"url":    "/analyses/" + id,
	})
}

func (a *Analyses) run(req pipeline.Request) {
	defer a.wg.Done()

	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.update(req.ID, func(st *AnalysisStatus) {
		st.Status = StatusRunning
		st.Message = "Processing location data..."
	})
	req.Progress = func(ev domain.ProgressEvent) {
		a.update(req.ID, func(st *AnalysisStatus) {
			st.Progress = ev.Percent()
			st.Phase = ev.Phase
			st.Message = ev.Message
			st.Logs = append(st.Logs, LogLine{Time: time.Now().Format(time.TimeOnly), Message: ev.Message})
		})
	}

	res, err := a.runner.Run(a.ctx, req)
	if err != nil {
		a.logger.Error("analysis failed", "id", req.ID, "error", err)
		a.update(req.ID, func(st *AnalysisStatus) {
			st.Status = StatusError
			st.Progress = 0
			st.Message = "Analysis failed: " + err.Error()
			st.Error = err.Error()
			st.Complete = true
		})
		return
	}

	summary := res.Summary
	a.update(req.ID, func(st *AnalysisStatus) {
		st.Status = StatusCompleted
		st.Progress = 100
		st.Message = "Analysis completed successfully!"
		st.Summary = &summary
		st.Files = res.Files
		st.Complete = true
	})
}

func (a *Analyses) update(id string, fn func(*AnalysisStatus)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.status[id]; ok {
		fn(st)
	}
}

func (a *Analyses) handleGet(w http.ResponseWriter, r *http.Request) {
	st, ok := a.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("analysis not found"))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, st)
}

func (a *Analyses) handleFile(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("name")
	st, ok := a.Get(id)
	if !ok || !slices.Contains(st.Files, name) {
		writeError(w, http.StatusNotFound, errors.New("file not found"))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, filepath.Join(a.cfg.OutputDir, id, name))
}

// saveUpload stores the "file" form part as <UploadDir>/<id>_<name>.
func (a *Analyses) saveUpload(r *http.Request, id string) (filename, path string, err error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", fmt.Errorf("file: %w", err)
	}
	defer file.Close() //nolint:errcheck // multipart part

	filename = filepath.Base(header.Filename)
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		return "", "", errors.New("file: missing file name")
	}
	if !strings.EqualFold(filepath.Ext(filename), ".json") {
		return "", "", errors.New("file: only .json location exports are accepted")
	}

	if err := os.MkdirAll(a.cfg.UploadDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create upload dir: %w", err)
	}
	path = filepath.Join(a.cfg.UploadDir, id+"_"+filename)
	dst, err := os.Create(path) //nolint:gosec // name is sanitized above
	if err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close() //nolint:errcheck,gosec // copy error takes precedence
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	return filename, path, nil
}

func formOr(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return fallback
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

func dateRange(start, end time.Time) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "any"
		}
		return t.Format(time.DateOnly)
	}
	return format(start) + " to " + format(end)
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
