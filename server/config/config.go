package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr = ":8080"
	defaultSessionTTL = 30 * time.Minute
	defaultExpire     = "*/5 * * * *"
)

// ServerConfig represents the server runtime configuration.
type ServerConfig struct {
	Listener  ListenerConfig  `yaml:"listener"`
	Schedules SchedulesConfig `yaml:"schedules"`
	// The directory the panel property bag is stored in. Empty keeps
	// properties in memory only.
	StateDir string `yaml:"state_dir"`
	// Overrides the panel config's logging.level when set.
	LogLevel string `yaml:"log_level"`
	// The path to the panel config file
	PanelConfig string `yaml:"panel_config"`
	// How long an untouched mounted panel is kept.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ListenerConfig holds HTTP server listener settings.
type ListenerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`
	// TLSCert and TLSKey enable HTTPS. The pair is re-read when the files change.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// SchedulesConfig holds the cron specs of the maintenance jobs. An empty spec
// disables the job.
type SchedulesConfig struct {
	// Unmount panels idle for longer than the session TTL.
	Expire string `yaml:"expire"`
	// Re-read the project status of every page in the property bag.
	Refresh string `yaml:"refresh"`
}

// TLSEnabled reports whether a certificate pair is configured.
func (c *ServerConfig) TLSEnabled() bool {
	return c.Listener.TLSCert != "" && c.Listener.TLSKey != ""
}

// LoadConfig reads the YAML config file at the given path and returns a ServerConfig struct.
func LoadConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open server config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML server config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultListenAddr
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = defaultSessionTTL
	}
	if c.Schedules.Expire == "" {
		c.Schedules.Expire = defaultExpire
	}
}

// Validate checks the configuration for required fields.
func (c *ServerConfig) Validate() error {
	if c.PanelConfig == "" {
		return errors.New("panel_config is required")
	}
	if c.SessionTTL < 0 {
		return errors.New("session_ttl must not be negative")
	}
	if (c.Listener.TLSCert == "") != (c.Listener.TLSKey == "") {
		return errors.New("listener.tls_cert and listener.tls_key must be set together")
	}
	return nil
}
