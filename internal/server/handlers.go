package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/fetcher"
	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BinaryChecker reports the fetcher's external binaries.
type BinaryChecker interface {
	Health(ctx context.Context) []fetcher.Status
}

// BreakerState reports the remote lister's circuit breaker state.
type BreakerState interface {
	State() string
}

// ScanReporter returns the most recent scan.
type ScanReporter interface {
	Last() (*tasks.ScanSummary, error)
}

// JobStore looks up persisted reconcile jobs.
type JobStore interface {
	Get(id string) (*models.SyncJob, error)
	List(criteria map[string]any) ([]*models.SyncJob, error)
}

// Deps are the sources the status endpoints read from. Nil sources are omitted from reports.
type Deps struct {
	Binaries BinaryChecker
	Breaker  BreakerState
	Scans    ScanReporter
	Jobs     JobStore
	Logger   *log.Logger
	Now      func() time.Time
}

// NewRouter registers /healthz, /metrics, /jobs and /jobs/{id}.
func NewRouter(deps Deps) *BasicRouter {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := NewBasicRouter()
	r.Use(Recoverer(deps.Logger), RequestLogger(deps.Logger))

	r.HandleFunc(http.MethodGet, "/healthz", deps.health)
	r.Handle(http.MethodGet, "/metrics", promhttp.Handler())
	r.HandleFunc(http.MethodGet, "/jobs", deps.listJobs)
	r.HandleFunc(http.MethodGet, "/jobs/{id}", deps.getJob)
	return r
}

// BuildHealth assembles the readiness report from whichever sources are configured.
func BuildHealth(ctx context.Context, deps Deps) *formatter.Health {
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	var statuses []fetcher.Status
	if deps.Binaries != nil {
		statuses = deps.Binaries.Health(ctx)
	}
	h := formatter.NewHealth(statuses, now())
	if deps.Breaker != nil {
		h.Breaker = deps.Breaker.State()
	}
	if deps.Scans != nil {
		last, err := deps.Scans.Last()
		h.LastScan = last
		if err != nil {
			h.LastScanError = err.Error()
		}
	}
	return h
}

func (d Deps) health(w http.ResponseWriter, req *http.Request) {
	h := BuildHealth(req.Context(), d)
	status := http.StatusOK
	if !h.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (d Deps) getJob(w http.ResponseWriter, req *http.Request) {
	if d.Jobs == nil {
		writeError(w, http.StatusNotFound, "job tracking is not enabled")
		return
	}

	job, err := d.Jobs.Get(req.PathValue("id"))
	switch {
	case errors.Is(err, shared.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		d.Logger.Error("job lookup failed", "id", req.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "job lookup failed")
	default:
		writeJSON(w, http.StatusOK, formatter.NewJobView(job))
	}
}

// listJobs accepts owner, playlist_id, status and limit query parameters.
func (d Deps) listJobs(w http.ResponseWriter, req *http.Request) {
	if d.Jobs == nil {
		writeJSON(w, http.StatusOK, []formatter.JobView{})
		return
	}

	q := req.URL.Query()
	criteria := map[string]any{
		"owner":       q.Get("owner"),
		"playlist_id": q.Get("playlist_id"),
		"status":      models.JobStatus(q.Get("status")),
		"limit":       50,
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		criteria["limit"] = limit
	}

	jobs, err := d.Jobs.List(criteria)
	if err != nil {
		d.Logger.Error("job listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job listing failed")
		return
	}

	views := make([]formatter.JobView, len(jobs))
	for i, j := range jobs {
		views[i] = formatter.NewJobView(j)
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := formatter.ToJSON(v, false)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
