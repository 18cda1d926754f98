package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/archivepanel/config"
)

type mockConfigProvider struct {
	config *config.Config
}

func (m *mockConfigProvider) Config() *config.Config {
	return m.config
}

func TestConfigHandler(t *testing.T) {
	cfg := &config.Config{
		Profiles: config.ProfilesConfig{
			Production: config.Profile{
				SiteURL:         "https://contoso.sharepoint.com/sites/Projects",
				ArchiveEndpoint: "https://prod-01.westeurope.logic.azure.com/workflows/abc/triggers/manual/paths/invoke?sig=secret",
			},
			Secondary: config.Profile{
				SiteURL: "https://contoso.sharepoint.com/sites/Test-Projects",
			},
		},
		SharePoint: config.SharePointConfig{AccessToken: "eyJ.secret.token"},
	}
	cfg.SetDefaults()

	provider := &mockConfigProvider{config: cfg}
	handler := NewConfigHandler(provider)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/yaml", w.Header().Get("Content-Type"))
	assert.NotContains(t, w.Body.String(), "sig=secret")
	assert.NotContains(t, w.Body.String(), "eyJ.secret.token")

	var resp config.Config
	err := yaml.NewDecoder(w.Body).Decode(&resp)
	require.NoError(t, err)

	assert.Equal(t, "https://contoso.sharepoint.com/sites/Projects", resp.Profiles.Production.SiteURL)
	assert.Equal(t, "https://prod-01.westeurope.logic.azure.com/<redacted>", resp.Profiles.Production.ArchiveEndpoint)
	assert.Empty(t, resp.Profiles.Secondary.ArchiveEndpoint)
	assert.Equal(t, "<redacted>", resp.SharePoint.AccessToken)
	assert.Equal(t, "Project Sites", resp.List.Title)
}

func TestConfigHandler_NotModified(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()
	handler := NewConfigHandler(&mockConfigProvider{config: cfg})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	cfg.List.Title = "Archived Sites"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, etag, w.Header().Get("ETag"))
}
