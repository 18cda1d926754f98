package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nomis52/archivepanel/config"
	"github.com/nomis52/archivepanel/propertybag"
)

// Refresher re-reads the status of every page in the property bag and
// updates the stored archive flag. Pages whose read fails keep their flag.
type Refresher struct {
	config  func() *config.Config
	items   ItemReader
	store   propertybag.Store
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// NewRefresher creates a Refresher. cfg is called on every run so reloaded
// configuration takes effect.
func NewRefresher(cfg func() *config.Config, items ItemReader, store propertybag.Store, timeout time.Duration, logger *slog.Logger, m *Metrics) *Refresher {
	return &Refresher{
		config:  cfg,
		items:   items,
		store:   store,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Run refreshes all stored pages. It returns the joined errors of pages that
// could not be refreshed.
func (r *Refresher) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.RunContext(ctx)
}

// RunContext is Run with a caller-supplied context.
func (r *Refresher) RunContext(ctx context.Context) error {
	cfg := r.config()
	pages := r.store.Pages()

	var errs []error
	changed := 0
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		pathID := PathIdentifier(page)
		_, profile := cfg.ResolveProfile(pathID)

		status, result, err := ReadStatus(ctx, r.items, cfg.List, profile.SiteURL, pathID)
		r.metrics.statusFetch(result)
		if err != nil {
			r.logger.Warn("failed to refresh project status", "page_url", page, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", page, err))
			continue
		}

		archived := status == StatusArchived
		prev, ok, err := r.store.Load(page)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", page, err))
			continue
		}
		if ok && prev.ProjectArchived == archived {
			continue
		}
		if err := r.store.Save(propertybag.Properties{PageURL: page, ProjectArchived: archived}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", page, err))
			continue
		}
		changed++
		r.logger.Info("refreshed archive flag", "page_url", page, "project_status", status, "project_archived", archived)
	}

	r.logger.Info("property refresh finished", "pages", len(pages), "changed", changed, "failed", len(errs))
	return errors.Join(errs...)
}
