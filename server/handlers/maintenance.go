package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ReloadableStore is a property store that can re-read its backing files.
type ReloadableStore interface {
	Reload() error
}

// MaintenanceHandler runs one operator task per POST and answers 204 when it
// succeeds. Reloading config, reloading the property store and refreshing
// stored statuses all go through it.
type MaintenanceHandler struct {
	logger     *slog.Logger
	task       string
	failStatus int
	run        func(ctx context.Context) error
}

// NewReloadHandler reloads the panel configuration. Panels mounted before
// the reload keep the configuration they were activated with.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *MaintenanceHandler {
	return &MaintenanceHandler{
		logger:     logger,
		task:       "reload panel configuration",
		failStatus: http.StatusInternalServerError,
		run:        func(context.Context) error { return reloader.Reload() },
	}
}

// NewStoreReloadHandler re-indexes the property bag from disk.
func NewStoreReloadHandler(logger *slog.Logger, store ReloadableStore) *MaintenanceHandler {
	return &MaintenanceHandler{
		logger:     logger,
		task:       "reload property store",
		failStatus: http.StatusInternalServerError,
		run:        func(context.Context) error { return store.Reload() },
	}
}

// NewRefreshHandler re-reads the status of every stored page. A failure
// means SharePoint did not answer for at least one page, hence 502.
func NewRefreshHandler(logger *slog.Logger, refresher Refresher) *MaintenanceHandler {
	return &MaintenanceHandler{
		logger:     logger,
		task:       "refresh stored properties",
		failStatus: http.StatusBadGateway,
		run:        refresher.RunContext,
	}
}

// ServeHTTP implements http.Handler.
func (h *MaintenanceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.run(r.Context()); err != nil {
		h.logger.Error("maintenance task failed", "task", h.task, "error", err)
		writeError(w, h.failStatus, "failed to %s: %v", h.task, err)
		return
	}
	h.logger.Info("maintenance task done", "task", h.task, "duration", time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}
