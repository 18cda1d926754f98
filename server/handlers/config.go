package handlers

import (
	"bytes"
	"encoding/hex"
	"net/http"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ConfigHandler serves the current panel configuration as YAML with
// endpoint paths and the access token redacted. The ETag changes whenever
// a reload changes the effective configuration.
type ConfigHandler struct {
	configProvider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{
		configProvider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(h.configProvider.Config().Redacted()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode config: %v", err)
		return
	}
	enc.Close()

	sum := blake3.Sum256(buf.Bytes())
	etag := `"` + hex.EncodeToString(sum[:8]) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
