package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/archivepanel/panel"
	serverconfig "github.com/nomis52/archivepanel/server/config"
	"github.com/nomis52/archivepanel/server/handlers"
)

// fakeSharePoint answers the current user, permission and list item calls
// and records trigger posts.
type fakeSharePoint struct {
	mu           sync.Mutex
	status       string
	auth         []string
	triggerBody  []string
	triggerPaths []string
}

func (f *fakeSharePoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/trigger/"):
		body, _ := io.ReadAll(r.Body)
		f.triggerPaths = append(f.triggerPaths, path)
		f.triggerBody = append(f.triggerBody, string(body))
		w.WriteHeader(http.StatusAccepted)
	case strings.HasSuffix(path, "/_api/web/currentuser"):
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"Id":7,"LoginName":"i:0#.f|membership|ann@contoso.com","Title":"Ann"}`)
	case strings.Contains(path, "/_api/web/getusereffectivepermissions"):
		fmt.Fprint(w, `{"High":"432","Low":"1011030767"}`)
	case strings.HasSuffix(path, "/items"):
		fmt.Fprintf(w, `{"value":[{"Status":%q}]}`, f.status)
	default:
		http.NotFound(w, r)
	}
}

func newTestServer(t *testing.T, status string) (*Server, *fakeSharePoint, string) {
	t.Helper()
	sp := &fakeSharePoint{status: status}
	ts := httptest.NewServer(sp)
	t.Cleanup(ts.Close)

	t.Setenv("TEST_ARCHIVE_ENDPOINT", ts.URL+"/trigger/archive?sig=secret")

	dir := t.TempDir()
	panelPath := filepath.Join(dir, "panel.yaml")
	require.NoError(t, os.WriteFile(panelPath, []byte(fmt.Sprintf(`
profiles:
  production:
    site_url: %[1]s/sites/Projects
    archive_endpoint: ${TEST_ARCHIVE_ENDPOINT}
    reactivate_endpoint: %[1]s/trigger/reactivate
  secondary:
    site_url: %[1]s/sites/Test-Projects
sharepoint:
  access_token: configured-token
logging:
  level: warn
`, ts.URL)), 0o600))

	cfg := &serverconfig.ServerConfig{
		PanelConfig: panelPath,
		StateDir:    filepath.Join(dir, "state"),
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	srv, err := New(cfg)
	require.NoError(t, err)
	return srv, sp, ts.URL
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func mount(t *testing.T, srv *Server, pageURL, token string) string {
	t.Helper()
	form := url.Values{"page_url": {pageURL}}
	req := httptest.NewRequest(http.MethodPost, "/panels", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := serve(srv, req)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	return w.Header().Get("Location")
}

func TestServer_ArchiveFlow(t *testing.T) {
	srv, sp, base := newTestServer(t, "Active")

	loc := mount(t, srv, base+"/sites/test-project-4521", "user-token")
	assert.Equal(t, []string{"Bearer user-token"}, sp.auth)

	w := serve(srv, httptest.NewRequest(http.MethodGet, loc, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `id="archiveButton"`)
	assert.Contains(t, w.Body.String(), `href="/static/panel.css"`)

	w = serve(srv, httptest.NewRequest(http.MethodPost, loc+"/archive", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Empty(t, sp.triggerBody)

	w = serve(srv, httptest.NewRequest(http.MethodPost, loc+"/confirm", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Len(t, sp.triggerBody, 1)
	assert.Equal(t, "/trigger/archive", sp.triggerPaths[0])
	assert.JSONEq(t, `{"pipedriveID":"4521"}`, sp.triggerBody[0])

	w = serve(srv, httptest.NewRequest(http.MethodGet, loc+"/state", nil))
	var snap panel.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.True(t, snap.ProjectArchived)
	assert.True(t, snap.UserCanEdit)
	assert.Equal(t, "production", snap.Profile)

	w = serve(srv, httptest.NewRequest(http.MethodPost, loc+"/reactivate", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Len(t, sp.triggerPaths, 2)
	assert.Equal(t, "/trigger/reactivate", sp.triggerPaths[1])
}

func TestServer_PanelLog(t *testing.T) {
	srv, _, base := newTestServer(t, "Active")
	page := base + "/sites/solar-roof-4521"
	loc := mount(t, srv, page, "")

	// Info entries are captured even though the server logs at warn.
	w := serve(srv, httptest.NewRequest(http.MethodGet, loc+"/log", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "panel activated")
	assert.NotEmpty(t, srv.PanelLog(page))
}

func TestServer_UsesConfiguredTokenWithoutBearer(t *testing.T) {
	srv, sp, base := newTestServer(t, "Active")
	mount(t, srv, base+"/sites/solar-roof-4521", "")
	assert.Equal(t, []string{"Bearer configured-token"}, sp.auth)
}

func TestServer_StatusAndConfig(t *testing.T) {
	srv, _, base := newTestServer(t, "Archived")
	mount(t, srv, base+"/sites/solar-roof-4521", "")

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status handlers.APIStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, 1, status.MountedPanels)
	assert.Equal(t, 1, status.StoredPages)
	assert.Equal(t, "WARN", status.LogLevel)
	assert.True(t, status.NextRun.Scheduled)
	require.NotEmpty(t, status.Jobs)
	assert.Equal(t, "expire", status.Jobs[0].Name)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sig=secret")
	assert.NotContains(t, w.Body.String(), "configured-token")

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "panel_activations_total")

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/static/panel.css", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ".archive-panel")

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "ok", w.Body.String())
}

func TestServer_ReloadAndRefresh(t *testing.T) {
	srv, sp, base := newTestServer(t, "Active")
	page := base + "/sites/solar-roof-4521"
	mount(t, srv, page, "")

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/reload", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	sp.mu.Lock()
	sp.status = "Archived"
	sp.mu.Unlock()

	w = serve(srv, httptest.NewRequest(http.MethodPost, "/properties/refresh", nil))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	props, ok, err := srv.store.Load(page)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, props.ProjectArchived)

	w = serve(srv, httptest.NewRequest(http.MethodPost, "/properties/reload", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, srv.StoredPages())
}

func TestServer_Unmount(t *testing.T) {
	srv, _, base := newTestServer(t, "Active")
	loc := mount(t, srv, base+"/sites/solar-roof-4521", "")
	assert.Equal(t, 1, srv.MountedPanels())

	w := serve(srv, httptest.NewRequest(http.MethodDelete, loc, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, srv.MountedPanels())
}

func TestNew_MissingPanelConfig(t *testing.T) {
	cfg := &serverconfig.ServerConfig{PanelConfig: filepath.Join(t.TempDir(), "missing.yaml")}
	cfg.SetDefaults()
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load panel config")
}

func TestNew_InvalidSchedule(t *testing.T) {
	srv, _, _ := newTestServer(t, "Active")

	cfg := *srv.cfg
	cfg.Schedules.Refresh = "every hour"
	_, err := New(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh")
}
