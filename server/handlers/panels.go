package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/nomis52/archivepanel/logging"
	"github.com/nomis52/archivepanel/panel"
)

// MountRequest is the JSON body of a mount request.
type MountRequest struct {
	PageURL string `json:"page_url"`
}

// PanelsHandler serves the mounted panels.
type PanelsHandler struct {
	logger  *slog.Logger
	service PanelService
}

// NewPanelsHandler creates a new PanelsHandler.
func NewPanelsHandler(logger *slog.Logger, service PanelService) *PanelsHandler {
	return &PanelsHandler{
		logger:  logger,
		service: service,
	}
}

// Register adds the panel routes to mux.
func (h *PanelsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /panels", h.Mount)
	mux.HandleFunc("GET /panels/{id}", h.Show)
	mux.HandleFunc("GET /panels/{id}/state", h.State)
	mux.HandleFunc("GET /panels/{id}/log", h.Log)
	mux.HandleFunc("POST /panels/{id}/{action}", h.Action)
	mux.HandleFunc("DELETE /panels/{id}", h.Unmount)
}

// Mount activates a panel for the posted page URL and redirects to it.
func (h *PanelsHandler) Mount(w http.ResponseWriter, r *http.Request) {
	pageURL, err := readPageURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	id, err := h.service.Mount(r.Context(), pageURL, bearerToken(r))
	if err != nil {
		h.logger.Error("failed to mount panel", "page_url", pageURL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mount panel: %v", err)
		return
	}

	http.Redirect(w, r, panelPath(id), http.StatusSeeOther)
}

// Show renders the panel. With ?fragment=1 only the panel markup is written.
func (h *PanelsHandler) Show(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctrl, ok := h.lookup(w, id)
	if !ok {
		return
	}

	var buf bytes.Buffer
	var err error
	if r.URL.Query().Get("fragment") != "" {
		err = ctrl.Render(&buf, panelPath(id))
	} else {
		err = ctrl.RenderDocument(&buf, panelPath(id))
	}
	if err != nil {
		h.logger.Error("failed to render panel", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render panel")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// State returns the panel snapshot as JSON.
func (h *PanelsHandler) State(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// Log returns the recent log entries of the panel's page.
func (h *PanelsHandler) Log(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.lookup(w, r.PathValue("id"))
	if !ok {
		return
	}
	entries := h.service.PanelLog(ctrl.Snapshot().PageURL)
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Action dispatches a button action and redirects back to the panel.
func (h *PanelsHandler) Action(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action, ok := panel.ParseAction(r.PathValue("action"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action %q", r.PathValue("action"))
		return
	}

	ctrl, ok := h.lookup(w, id)
	if !ok {
		return
	}

	if err := ctrl.Dispatch(r.Context(), action); err != nil {
		if errors.Is(err, panel.ErrActionUnavailable) {
			writeError(w, http.StatusConflict, "%s: %v", action, err)
			return
		}
		h.logger.Error("panel action failed", "id", id, "action", action, "error", err)
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	http.Redirect(w, r, panelPath(id), http.StatusSeeOther)
}

// Unmount discards a mounted panel.
func (h *PanelsHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unmount(r.PathValue("id")); err != nil {
		writeNotMounted(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PanelsHandler) lookup(w http.ResponseWriter, id string) (*panel.Controller, bool) {
	ctrl, err := h.service.Panel(id)
	if err != nil {
		writeNotMounted(w, err)
		return nil, false
	}
	return ctrl, true
}

func writeNotMounted(w http.ResponseWriter, err error) {
	if errors.Is(err, panel.ErrNotMounted) {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "%v", err)
}

func panelPath(id string) string {
	return "/panels/" + url.PathEscape(id)
}

// readPageURL reads page_url from a JSON body or a form.
func readPageURL(r *http.Request) (string, error) {
	var pageURL string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req MountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", fmt.Errorf("invalid JSON body: %w", err)
		}
		pageURL = req.PageURL
	} else {
		pageURL = r.FormValue("page_url")
	}

	if pageURL == "" {
		return "", errors.New("page_url is required")
	}
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("page_url must be an absolute http(s) URL: %q", pageURL)
	}
	return pageURL, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
