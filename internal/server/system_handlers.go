package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/launchpad/internal/di"
	"github.com/aristath/launchpad/internal/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SystemHandlers handles system-wide monitoring and maintenance endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	container   *di.Container
	startupTime time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(container *di.Container, startupTime time.Time, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		container:   container,
		startupTime: startupTime,
	}
}

// SystemStatusResponse summarizes the running engine
type SystemStatusResponse struct {
	Status         string         `json:"status"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	Pools          int            `json:"pools"`
	Tokens         map[string]int `json:"tokens"`
	Subscribers    int            `json:"bus_subscribers"`
	Jobs           int            `json:"jobs"`
	FailingJobs    int            `json:"failing_jobs"`
	LastChecked    string         `json:"last_checked"`
	BaseToken      string         `json:"base_token"`
	BaseTokenTotal string         `json:"base_token_supply"`
}

// DatabaseStatsResponse reports ledger database size and page usage
type DatabaseStatsResponse struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count"`
	PageSize      int64   `json:"page_size"`
	FreelistCount int64   `json:"freelist_count"`
}

// JobsStatusResponse lists registered maintenance jobs
type JobsStatusResponse struct {
	TotalJobs int                   `json:"total_jobs"`
	Jobs      []scheduler.JobStatus `json:"jobs"`
}

// RegisterRoutes registers all system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database", h.HandleDatabaseStats)
		r.Get("/jobs", h.HandleJobsStatus)
		r.Post("/jobs/{name}/run", h.HandleTriggerJob)
	})
}

// HandleSystemStatus returns an overview of the engine
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	c := h.container
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Tokens:        map[string]int{},
		Subscribers:   c.EventBus.SubscriberCount(),
		LastChecked:   time.Now().Format(time.RFC3339),
	}

	err := c.Host.Execute(func() error {
		response.Pools = len(c.Router.Pools())
		response.BaseToken = c.BaseToken.Address().Hex()
		response.BaseTokenTotal = c.BaseToken.TotalSupply().String()
		return nil
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read engine state")
		writeJSON(w, h.log, http.StatusInternalServerError, map[string]string{"error": "Failed to read engine state"})
		return
	}

	if stats, err := c.GraduationService.GetStats(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count token profiles")
	} else {
		for status, n := range stats {
			response.Tokens[string(status)] = n
		}
	}

	if c.Scheduler != nil {
		for _, job := range c.Scheduler.Status() {
			response.Jobs++
			if job.LastError != "" {
				response.FailingJobs++
			}
		}
	}
	if response.FailingJobs > 0 {
		response.Status = "degraded"
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// HandleDatabaseStats returns ledger database statistics
// GET /api/system/database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	db := h.container.LedgerDB
	stats, err := db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		writeJSON(w, h.log, http.StatusInternalServerError, map[string]string{"error": "Failed to get database stats"})
		return
	}
	writeJSON(w, h.log, http.StatusOK, DatabaseStatsResponse{
		Name:          db.Name(),
		Path:          db.Path(),
		SizeMB:        float64(stats.SizeBytes) / 1024 / 1024,
		WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
		PageCount:     stats.PageCount,
		PageSize:      stats.PageSize,
		FreelistCount: stats.FreelistCount,
	})
}

// HandleJobsStatus returns the last outcome of every maintenance job
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.container.Scheduler != nil {
		jobs = h.container.Scheduler.Status()
	}
	writeJSON(w, h.log, http.StatusOK, JobsStatusResponse{TotalJobs: len(jobs), Jobs: jobs})
}

// HandleTriggerJob runs a maintenance job immediately
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.container.Scheduler == nil {
		writeJSON(w, h.log, http.StatusServiceUnavailable, map[string]string{"error": "Scheduler not available"})
		return
	}

	err := h.container.Scheduler.RunNow(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeJSON(w, h.log, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		h.log.Error().Err(err).Str("job", name).Msg("Triggered job failed")
		writeJSON(w, h.log, http.StatusInternalServerError, map[string]string{"status": "error", "job": name, "error": err.Error()})
	default:
		writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "success", "job": name})
	}
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
