// Package server provides the HTTP server for the archivepanel service.
//
// The server mounts archive panels for SharePoint pages, renders them and
// dispatches their button actions. Each mounted panel is a panel.Controller
// held in a panel.Registry under a random mount ID.
//
// # Endpoints
//
//   - GET /health - Returns "ok", or 503 when the state dir is unavailable
//   - GET /api/status - Build info, panel and page counts, maintenance jobs
//   - GET /config - Returns the panel configuration as YAML, secrets redacted
//   - POST /reload - Reloads the panel configuration from disk
//   - GET /metrics - Prometheus scrape endpoint
//   - POST /panels - Mounts a panel for a page URL
//   - GET /panels/{id} - Renders a mounted panel
//   - GET /panels/{id}/state - Returns a panel snapshot as JSON
//   - GET /panels/{id}/log - Returns the page's recent log entries
//   - POST /panels/{id}/{action} - archive, confirm, cancel or reactivate
//   - DELETE /panels/{id} - Unmounts a panel
//   - POST /properties/refresh - Re-reads the status of every stored page
//   - POST /properties/reload - Re-indexes the property store (disk only)
//
// # Architecture
//
// Config-derived dependencies (the panel config, SharePoint client, trigger
// client and renderer) are swapped atomically on reload. Mounted panels keep
// the dependencies they were activated with; new mounts use the new ones.
//
// # Example
//
//	srv, err := server.New(serverCfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/archivepanel/clients/spclient"
	"github.com/nomis52/archivepanel/clients/trigger"
	"github.com/nomis52/archivepanel/config"
	"github.com/nomis52/archivepanel/logging"
	"github.com/nomis52/archivepanel/metrics"
	"github.com/nomis52/archivepanel/panel"
	"github.com/nomis52/archivepanel/propertybag"
	serverconfig "github.com/nomis52/archivepanel/server/config"
	"github.com/nomis52/archivepanel/server/cron"
	"github.com/nomis52/archivepanel/server/handlers"
)

//go:embed static
var staticFiles embed.FS

const (
	defaultReadTimeout     = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultRefreshTimeout  = 5 * time.Minute
	stylesheetPath         = "/static/panel.css"
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config     *config.Config
	sharepoint *spclient.Client
	triggers   *trigger.Client
	renderer   *panel.Renderer
}

// Server is the HTTP server for archive panels.
type Server struct {
	cfg        *serverconfig.ServerConfig
	log        *logging.Logger
	logger     *slog.Logger
	deps       atomic.Pointer[serverDeps]
	httpServer *http.Server

	scrape    *metrics.ScrapeRegistry
	push      *metrics.PushRegistry
	metrics   *panel.Metrics
	store     propertybag.Store
	panelLogs *logging.LogCollector
	logHook   logging.LoggerHook
	registry  *panel.Registry
	refresher *panel.Refresher
	cron      *cron.CronTriggerManager
}

// New creates a new Server from the server config. It loads the panel
// configuration and initializes all dependencies.
func New(cfg *serverconfig.ServerConfig) (*Server, error) {
	panelCfg, err := config.LoadConfig(cfg.PanelConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load panel config %s: %w", cfg.PanelConfig, err)
	}

	logCfg := logging.Config(panelCfg.Logging)
	if cfg.LogLevel != "" {
		logCfg.Level = cfg.LogLevel
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	panelLogs := logging.NewLogCollector(logging.DefaultMaxEntries)
	s := &Server{
		cfg:       cfg,
		log:       log,
		logger:    log.Logger,
		panelLogs: panelLogs,
		logHook:   logging.NewCapturingLoggerHook(panelLogs),
	}

	if err := s.setupMetrics(&panelCfg); err != nil {
		return nil, err
	}
	if err := s.setupStore(); err != nil {
		return nil, err
	}
	if err := s.apply(&panelCfg); err != nil {
		return nil, err
	}

	s.registry = panel.NewRegistry(cfg.SessionTTL, s.logger, s.metrics)
	s.refresher = panel.NewRefresher(s.Config, currentItems{s}, s.store, defaultRefreshTimeout, s.logger.With("job", "refresh"), s.metrics)

	s.cron, err = cron.NewCronTriggerManager([]cron.Job{
		{Name: "expire", Spec: cfg.Schedules.Expire, Runnable: cron.RunnableFunc(func() error {
			s.registry.Expire()
			return nil
		})},
		{Name: "refresh", Spec: cfg.Schedules.Refresh, Runnable: s.refresher},
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating cron triggers: %w", err)
	}

	return s, nil
}

func (s *Server) setupMetrics(cfg *config.Config) error {
	scrape, err := metrics.NewScrapeRegistry(metrics.WithNamespace(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}
	s.scrape = scrape

	var reg metrics.Registry = scrape
	if url := cfg.Monitoring.VictoriaMetricsURL; url != "" {
		hostname, _ := os.Hostname()
		s.push = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      url,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
			Logger:   s.logger,
		})
		reg = metrics.Tee(scrape, s.push)
		s.logger.Info("pushing metrics", "url", url)
	}

	m, err := panel.NewMetrics(reg)
	if err != nil {
		return err
	}
	s.metrics = m
	return nil
}

func (s *Server) setupStore() error {
	if s.cfg.StateDir == "" {
		s.logger.Warn("no state_dir configured, panel properties are kept in memory")
		s.store = propertybag.NewMemoryStore()
		return nil
	}
	store, err := propertybag.NewDiskStore(s.cfg.StateDir, s.logger)
	if err != nil {
		return fmt.Errorf("creating property store: %w", err)
	}
	s.store = store
	return nil
}

// Close releases the log file, if any. Call it after Run returns.
func (s *Server) Close() error {
	return s.log.Close()
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Reload reads the panel config from disk and rebuilds server dependencies.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.cfg.PanelConfig)
	if err != nil {
		return err
	}
	return s.apply(&cfg)
}

func (s *Server) apply(cfg *config.Config) error {
	renderer, err := panel.NewRenderer(cfg.Styles, cfg.Messages, stylesheetPath)
	if err != nil {
		return err
	}

	if s.cfg.LogLevel == "" && cfg.Logging.Level != "" {
		if err := s.log.SetLevel(cfg.Logging.Level); err != nil {
			s.logger.Warn("ignoring invalid log level", "level", cfg.Logging.Level, "error", err)
		}
	}
	s.checkToken(cfg.SharePoint.AccessToken)

	s.deps.Store(&serverDeps{
		config: cfg,
		sharepoint: spclient.New(
			spclient.WithToken(cfg.SharePoint.AccessToken),
			spclient.WithTimeout(cfg.SharePoint.Timeout),
			spclient.WithLogger(s.logger),
		),
		triggers: trigger.New(cfg.Triggers.Timeout, s.logger),
		renderer: renderer,
	})

	s.logger.Info("configuration loaded",
		"config_path", s.cfg.PanelConfig,
		"production_site", cfg.Profiles.Production.SiteURL,
		"secondary_site", cfg.Profiles.Secondary.SiteURL,
	)
	return nil
}

// checkToken warns about a configured access token that has expired.
func (s *Server) checkToken(token string) {
	if token == "" {
		s.logger.Warn("no sharepoint access token configured, requests need a bearer token")
		return
	}
	exp, err := spclient.TokenExpiry(token)
	if err != nil {
		s.logger.Debug("access token is not a readable JWT", "error", err)
		return
	}
	if !exp.IsZero() && exp.Before(time.Now()) {
		s.logger.Warn("configured sharepoint access token has expired", "expired_at", exp)
	}
}

// Config returns the current panel configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Mount activates a panel for pageURL and returns its mount ID.
func (s *Server) Mount(ctx context.Context, pageURL, token string) (string, error) {
	deps := s.deps.Load()
	sp := deps.sharepoint
	if token != "" {
		sp = sp.WithToken(token)
	}

	ctrl := panel.NewController(pageURL, deps.config, panel.Deps{
		Permissions: sp,
		Items:       sp,
		Triggers:    deps.triggers,
		Properties:  s.store,
		Renderer:    deps.renderer,
		Metrics:     s.metrics,
		Logger:      s.logHook.LoggerFor(s.logger, pageURL),
	})
	ctrl.Activate(ctx)

	id := s.registry.Mount(ctrl)
	s.logger.Debug("panel mounted", "id", id, "page_url", pageURL)
	return id, nil
}

// Panel returns the controller mounted under id.
func (s *Server) Panel(id string) (*panel.Controller, error) {
	return s.registry.Get(id)
}

// Unmount discards the panel mounted under id.
func (s *Server) Unmount(id string) error {
	return s.registry.Unmount(id)
}

// PanelLog returns the recent log entries of a page.
func (s *Server) PanelLog(pageURL string) []logging.LogEntry {
	return s.panelLogs.GetLogs(pageURL)
}

// MountedPanels returns the number of mounted panels.
func (s *Server) MountedPanels() int {
	return s.registry.Len()
}

// StoredPages returns the number of pages in the property store.
func (s *Server) StoredPages() int {
	return len(s.store.Pages())
}

// LogLevel returns the current log level.
func (s *Server) LogLevel() string {
	return s.log.Level().String()
}

// NextRun returns the next maintenance run, or nil if nothing is scheduled.
func (s *Server) NextRun() *time.Time {
	next := s.cron.NextRun()
	if next.IsZero() {
		return nil
	}
	return &next
}

// Healthy reports an error when the state directory has gone away. Without
// it property writes fail and every panel falls back to stale defaults.
func (s *Server) Healthy() error {
	if s.cfg.StateDir == "" {
		return nil
	}
	if _, err := os.Stat(s.cfg.StateDir); err != nil {
		return fmt.Errorf("state dir unavailable: %w", err)
	}
	return nil
}

// Jobs reports the maintenance schedule.
func (s *Server) Jobs() []cron.JobStatus {
	return s.cron.Status()
}

// currentItems reads list items with the SharePoint client of the current config.
type currentItems struct {
	s *Server
}

func (c currentItems) FirstFieldValue(ctx context.Context, siteURL string, q spclient.ItemQuery) (string, bool, error) {
	return c.s.deps.Load().sharepoint.FirstFieldValue(ctx, siteURL, q)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        s.cfg.Listener.Addr,
		Handler:     s.Handler(),
		ReadTimeout: defaultReadTimeout,
	}

	if s.cfg.TLSEnabled() {
		loader, err := NewCertLoader(s.cfg.Listener.TLSCert, s.cfg.Listener.TLSKey, s.logger)
		if err != nil {
			return err
		}
		s.httpServer.TLSConfig = &tls.Config{
			GetCertificate: loader.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}
	}

	if s.push != nil {
		go s.push.Run(ctx)
	}
	s.cron.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.cfg.Listener.Addr,
			"tls", s.cfg.TLSEnabled(),
			"config_path", s.cfg.PanelConfig,
		)
		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("GET /health", handlers.NewHealthHandler(s))
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))
	mux.Handle("GET /metrics", s.scrape.Handler())
	mux.Handle("POST /properties/refresh", handlers.NewRefreshHandler(s.logger, s.refresher))
	if store, ok := s.store.(handlers.ReloadableStore); ok {
		mux.Handle("POST /properties/reload", handlers.NewStoreReloadHandler(s.logger, store))
	}

	handlers.NewPanelsHandler(s.logger, s).Register(mux)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		s.logger.Error("failed to create static file system", "error", err)
		return
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
}
