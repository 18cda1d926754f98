package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/archivepanel/buildinfo"
	"github.com/nomis52/archivepanel/server/cron"
)

// NextRunResponse describes the next maintenance run.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Build         buildinfo.Properties `json:"build"`
	MountedPanels int                  `json:"mounted_panels"`
	StoredPages   int                  `json:"stored_pages"`
	LogLevel      string               `json:"log_level"`
	NextRun       NextRunResponse      `json:"next_run"`
	Jobs          []cron.JobStatus     `json:"jobs"`
}

// APIStatusProvider aggregates all the providers needed for the status endpoint.
type APIStatusProvider interface {
	MountedPanels() int
	StoredPages() int
	LogLevel() string
	NextRun() *time.Time
	Jobs() []cron.JobStatus
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()

	writeJSON(w, http.StatusOK, APIStatusResponse{
		Build:         buildinfo.Get(),
		MountedPanels: h.provider.MountedPanels(),
		StoredPages:   h.provider.StoredPages(),
		LogLevel:      h.provider.LogLevel(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
		Jobs: h.provider.Jobs(),
	})
}
