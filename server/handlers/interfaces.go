// Package handlers provides HTTP handlers for the archivepanel server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"

	"github.com/nomis52/archivepanel/config"
	"github.com/nomis52/archivepanel/logging"
	"github.com/nomis52/archivepanel/panel"
)

// ConfigProvider provides access to the current panel configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// PanelService mounts, looks up and unmounts panels.
type PanelService interface {
	// Mount activates a panel for pageURL as the user identified by token
	// and returns its mount ID. An empty token uses the configured identity.
	Mount(ctx context.Context, pageURL, token string) (string, error)
	Panel(id string) (*panel.Controller, error)
	Unmount(id string) error
	// PanelLog returns the recent log entries of a page.
	PanelLog(pageURL string) []logging.LogEntry
}

// Refresher re-reads the status of all stored pages.
type Refresher interface {
	RunContext(ctx context.Context) error
}
