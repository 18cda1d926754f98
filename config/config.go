package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default profile selection
	defaultProfileMatch = "project"

	// Default list lookup settings
	defaultListTitle   = "Project Sites"
	defaultFilterField = "URL_x0020_Name"
	defaultStatusField = "Status"

	// Default timeouts
	defaultSharePointTimeout = 30 * time.Second
	defaultTriggerTimeout    = 30 * time.Second

	// Default monitoring settings
	defaultMetricsPrefix = "archivepanel"
	defaultJobName       = "archivepanel"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"

	redactedValue = "<redacted>"
)

// Profile names.
const (
	ProfileProduction = "production"
	ProfileSecondary  = "secondary"
)

// Config represents the complete panel configuration
type Config struct {
	Profiles     ProfilesConfig   `yaml:"profiles"`
	ProfileMatch string           `yaml:"profile_match"`
	List         ListConfig       `yaml:"list"`
	SharePoint   SharePointConfig `yaml:"sharepoint"`
	Triggers     TriggersConfig   `yaml:"triggers"`
	Behavior     BehaviorConfig   `yaml:"behavior"`
	Messages     Messages         `yaml:"messages"`
	Styles       Styles           `yaml:"styles"`
	Monitoring   MonitoringConfig `yaml:"monitoring"`
	Logging      LoggingConfig    `yaml:"logging"`
}

// ProfilesConfig holds the two site profiles a page can resolve to.
type ProfilesConfig struct {
	Production Profile `yaml:"production"`
	Secondary  Profile `yaml:"secondary"`
}

// Profile is an external site plus its pair of trigger endpoints.
// An empty endpoint disables the corresponding trigger.
type Profile struct {
	SiteURL            string `yaml:"site_url"`
	ArchiveEndpoint    string `yaml:"archive_endpoint"`
	ReactivateEndpoint string `yaml:"reactivate_endpoint"`
}

// ListConfig describes where project status lives in the external list store.
type ListConfig struct {
	Title       string `yaml:"title"`
	FilterField string `yaml:"filter_field"`
	StatusField string `yaml:"status_field"`
}

// SharePointConfig holds REST API connection settings
type SharePointConfig struct {
	// AccessToken is used when the mount request carries no bearer token.
	AccessToken string        `yaml:"access_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TriggersConfig holds settings for the outbound automation calls.
type TriggersConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// BehaviorConfig defines panel behavior settings
type BehaviorConfig struct {
	// RollbackOnTriggerFailure restores the previous status when an archive
	// or reactivate call fails. Off by default: the panel stays optimistic.
	RollbackOnTriggerFailure bool `yaml:"rollback_on_trigger_failure"`
}

// Messages holds the user-visible panel text.
type Messages struct {
	ArchivedNotice   string `yaml:"archived_notice"`
	ReactivateButton string `yaml:"reactivate_button"`
	StatusLabel      string `yaml:"status_label"`
	ActiveLabel      string `yaml:"active_label"`
	ConfirmPrompt    string `yaml:"confirm_prompt"`
	ConfirmHint      string `yaml:"confirm_hint"`
	ConfirmYes       string `yaml:"confirm_yes"`
	ConfirmNo        string `yaml:"confirm_no"`
}

// Styles maps panel elements to CSS class names.
type Styles struct {
	Panel             string `yaml:"panel"`
	Container         string `yaml:"container"`
	ArchivedMessage   string `yaml:"archived_message"`
	ReactivateButton  string `yaml:"reactivate_button"`
	StatusButton      string `yaml:"status_button"`
	ActiveStatus      string `yaml:"active_status"`
	Overlay           string `yaml:"overlay"`
	ConfirmationPopup string `yaml:"confirmation_popup"`
	ConfirmHint       string `yaml:"confirm_hint"`
	ConfirmButton     string `yaml:"confirm_button"`
	CancelButton      string `yaml:"cancel_button"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	// VictoriaMetricsURL enables push mode in addition to the /metrics endpoint.
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// DefaultMessages returns the panel text used when none is configured.
func DefaultMessages() Messages {
	return Messages{
		ArchivedNotice:   "This project has been archived. Please contact the IT department if you want to reactivate it.",
		ReactivateButton: "Reactivate Project",
		StatusLabel:      "Project Status:",
		ActiveLabel:      "Active",
		ConfirmPrompt:    "Möchten Sie dieses Projekt wirklich archivieren?",
		ConfirmHint:      "Nicht mehr bearbeitbar, weiterhin auffindbar. Reaktivierung über IT möglich.",
		ConfirmYes:       "Ja",
		ConfirmNo:        "Nein",
	}
}

// DefaultStyles returns the class names used by the embedded stylesheet.
func DefaultStyles() Styles {
	return Styles{
		Panel:             "archive-panel",
		Container:         "archive-container",
		ArchivedMessage:   "archive-message",
		ReactivateButton:  "reactivate-button",
		StatusButton:      "status-message",
		ActiveStatus:      "status-active",
		Overlay:           "overlay",
		ConfirmationPopup: "confirmation-popup",
		ConfirmHint:       "confirmation-hint",
		ConfirmButton:     "confirm-button",
		CancelButton:      "cancel-button",
	}
}

// ResolveProfile picks the profile for a page from its path identifier.
// Identifiers containing the match substring, ignoring case, belong to the
// production site.
func (c *Config) ResolveProfile(pathID string) (string, Profile) {
	match := c.ProfileMatch
	if match == "" {
		match = defaultProfileMatch
	}
	if strings.Contains(strings.ToLower(pathID), strings.ToLower(match)) {
		return ProfileProduction, c.Profiles.Production
	}
	return ProfileSecondary, c.Profiles.Secondary
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if c.Profiles.Production.SiteURL == "" {
		return fmt.Errorf("production site URL is required")
	}
	if c.Profiles.Secondary.SiteURL == "" {
		return fmt.Errorf("secondary site URL is required")
	}
	for name, p := range map[string]Profile{
		ProfileProduction: c.Profiles.Production,
		ProfileSecondary:  c.Profiles.Secondary,
	} {
		if err := validateURL(p.SiteURL); err != nil {
			return fmt.Errorf("%s site URL: %w", name, err)
		}
		if p.ArchiveEndpoint != "" {
			if err := validateURL(p.ArchiveEndpoint); err != nil {
				return fmt.Errorf("%s archive endpoint: %w", name, err)
			}
		}
		if p.ReactivateEndpoint != "" {
			if err := validateURL(p.ReactivateEndpoint); err != nil {
				return fmt.Errorf("%s reactivate endpoint: %w", name, err)
			}
		}
	}
	if c.SharePoint.Timeout <= 0 {
		return fmt.Errorf("sharepoint timeout must be positive")
	}
	if c.Triggers.Timeout <= 0 {
		return fmt.Errorf("trigger timeout must be positive")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.ProfileMatch == "" {
		c.ProfileMatch = defaultProfileMatch
	}
	if c.List.Title == "" {
		c.List.Title = defaultListTitle
	}
	if c.List.FilterField == "" {
		c.List.FilterField = defaultFilterField
	}
	if c.List.StatusField == "" {
		c.List.StatusField = defaultStatusField
	}
	if c.SharePoint.Timeout == 0 {
		c.SharePoint.Timeout = defaultSharePointTimeout
	}
	if c.Triggers.Timeout == 0 {
		c.Triggers.Timeout = defaultTriggerTimeout
	}
	c.Messages = mergeMessages(c.Messages, DefaultMessages())
	c.Styles = mergeStyles(c.Styles, DefaultStyles())
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// ExpandEnv replaces ${VAR} references in secret-bearing fields with values
// from the environment.
func (c *Config) ExpandEnv() {
	for _, p := range []*Profile{&c.Profiles.Production, &c.Profiles.Secondary} {
		p.SiteURL = os.ExpandEnv(p.SiteURL)
		p.ArchiveEndpoint = os.ExpandEnv(p.ArchiveEndpoint)
		p.ReactivateEndpoint = os.ExpandEnv(p.ReactivateEndpoint)
	}
	c.SharePoint.AccessToken = os.ExpandEnv(c.SharePoint.AccessToken)
	c.Monitoring.VictoriaMetricsURL = os.ExpandEnv(c.Monitoring.VictoriaMetricsURL)
}

// Redacted returns a copy of the config with secrets removed.
// Trigger endpoints carry their signature in the query string, so only the
// scheme and host are kept.
func (c Config) Redacted() Config {
	c.Profiles.Production = c.Profiles.Production.Redacted()
	c.Profiles.Secondary = c.Profiles.Secondary.Redacted()
	if c.SharePoint.AccessToken != "" {
		c.SharePoint.AccessToken = redactedValue
	}
	return c
}

// Redacted returns a copy of the profile with endpoint secrets removed.
func (p Profile) Redacted() Profile {
	p.ArchiveEndpoint = RedactEndpoint(p.ArchiveEndpoint)
	p.ReactivateEndpoint = RedactEndpoint(p.ReactivateEndpoint)
	return p
}

// RedactEndpoint reduces an endpoint URL to its scheme and host.
func RedactEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return redactedValue
	}
	return u.Scheme + "://" + u.Host + "/" + redactedValue
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode YAML panel config: %w", err)
	}
	cfg.ExpandEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func mergeMessages(m, d Messages) Messages {
	fill(&m.ArchivedNotice, d.ArchivedNotice)
	fill(&m.ReactivateButton, d.ReactivateButton)
	fill(&m.StatusLabel, d.StatusLabel)
	fill(&m.ActiveLabel, d.ActiveLabel)
	fill(&m.ConfirmPrompt, d.ConfirmPrompt)
	fill(&m.ConfirmHint, d.ConfirmHint)
	fill(&m.ConfirmYes, d.ConfirmYes)
	fill(&m.ConfirmNo, d.ConfirmNo)
	return m
}

func mergeStyles(s, d Styles) Styles {
	fill(&s.Panel, d.Panel)
	fill(&s.Container, d.Container)
	fill(&s.ArchivedMessage, d.ArchivedMessage)
	fill(&s.ReactivateButton, d.ReactivateButton)
	fill(&s.StatusButton, d.StatusButton)
	fill(&s.ActiveStatus, d.ActiveStatus)
	fill(&s.Overlay, d.Overlay)
	fill(&s.ConfirmationPopup, d.ConfirmationPopup)
	fill(&s.ConfirmHint, d.ConfirmHint)
	fill(&s.ConfirmButton, d.ConfirmButton)
	fill(&s.CancelButton, d.CancelButton)
	return s
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
