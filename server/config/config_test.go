package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
listener:
  addr: ":9443"
  tls_cert: /etc/archivepanel/tls.crt
  tls_key: /etc/archivepanel/tls.key
panel_config: /etc/archivepanel/panel.yaml
state_dir: /var/lib/archivepanel
log_level: debug
session_ttl: 10m
schedules:
  expire: "* * * * *"
  refresh: "0 * * * *"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9443", cfg.Listener.Addr)
	assert.True(t, cfg.TLSEnabled())
	assert.Equal(t, "/etc/archivepanel/panel.yaml", cfg.PanelConfig)
	assert.Equal(t, "/var/lib/archivepanel", cfg.StateDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "* * * * *", cfg.Schedules.Expire)
	assert.Equal(t, "0 * * * *", cfg.Schedules.Refresh)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "panel_config: panel.yaml\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listener.Addr)
	assert.False(t, cfg.TLSEnabled())
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "*/5 * * * *", cfg.Schedules.Expire)
	assert.Empty(t, cfg.Schedules.Refresh)
	assert.Empty(t, cfg.StateDir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing panel config", "listener:\n  addr: \":80\"\n", "panel_config is required"},
		{"half tls pair", "panel_config: p.yaml\nlistener:\n  tls_cert: c.pem\n", "must be set together"},
		{"negative ttl", "panel_config: p.yaml\nsession_ttl: -1m\n", "session_ttl"},
		{"bad yaml", "panel_config: [", "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open server config file")
}
