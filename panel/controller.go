package panel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/archivepanel/clients/spclient"
	"github.com/nomis52/archivepanel/clients/trigger"
	"github.com/nomis52/archivepanel/config"
	"github.com/nomis52/archivepanel/propertybag"
)

// ErrActionUnavailable is returned for an action whose button is not part of
// the current view.
var ErrActionUnavailable = errors.New("action not available in current view")

// PermissionChecker answers whether the current user may edit list items on a web.
type PermissionChecker interface {
	CanEditListItems(ctx context.Context, webURL string) (bool, error)
}

// ItemReader reads one field of the first matching list item.
type ItemReader interface {
	FirstFieldValue(ctx context.Context, siteURL string, q spclient.ItemQuery) (string, bool, error)
}

// TriggerPoster posts a correlation ID to a trigger endpoint.
type TriggerPoster interface {
	Post(ctx context.Context, endpoint, pipedriveID string) error
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Permissions PermissionChecker
	Items       ItemReader
	Triggers    TriggerPoster
	Properties  propertybag.Store
	Renderer    *Renderer
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Snapshot is a point-in-time copy of a controller's state.
// Endpoint URLs are reduced to whether they are configured.
type Snapshot struct {
	PageURL           string    `json:"page_url"`
	PathID            string    `json:"path_id"`
	CorrelationID     string    `json:"correlation_id"`
	Profile           string    `json:"profile"`
	ExternalSiteURL   string    `json:"external_site_url"`
	ArchiveEnabled    bool      `json:"archive_enabled"`
	ReactivateEnabled bool      `json:"reactivate_enabled"`
	UserCanEdit       bool      `json:"user_can_edit"`
	ProjectStatus     Status    `json:"project_status"`
	ProjectArchived   bool      `json:"project_archived"`
	ShowConfirmation  bool      `json:"show_confirmation"`
	Actions           []Action  `json:"actions"`
	ActivatedAt       time.Time `json:"activated_at"`
}

// Controller drives one mounted panel.
type Controller struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	mu              sync.Mutex
	rc              RuntimeContext
	status          Status
	projectArchived bool
	state           State
	activatedAt     time.Time
}

// NewController creates a controller for the page at pageURL. The config must
// not be modified afterwards; reloads hand new controllers a new config.
func NewController(pageURL string, cfg *config.Config, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("page_url", pageURL),
		rc:     RuntimeContext{PageURL: pageURL},
		status: StatusUnknown,
	}
}

// Activate derives the runtime context: site profile, edit permission and
// project status. Failures degrade to a read-only panel; Activate never fails.
func (c *Controller) Activate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pathID := PathIdentifier(c.rc.PageURL)
	profileName, profile := c.cfg.ResolveProfile(pathID)
	c.rc.PathID = pathID
	c.rc.CorrelationID = CorrelationID(pathID)
	c.rc.Profile = profileName
	c.rc.ExternalSiteURL = profile.SiteURL
	c.rc.ArchiveEndpoint = profile.ArchiveEndpoint
	c.rc.ReactivateEndpoint = profile.ReactivateEndpoint
	c.logger = c.logger.With("profile", profileName)

	stored := c.loadArchived()
	c.rc.UserCanEdit = c.checkPermission(ctx)

	status, result, err := ReadStatus(ctx, c.deps.Items, c.cfg.List, c.rc.ExternalSiteURL, pathID)
	if err != nil {
		c.logger.Error("error fetching project status", "error", err)
	}
	c.deps.Metrics.statusFetch(result)
	c.setStatusLocked(status)

	if stored != c.projectArchived {
		c.logger.Info("stored archive flag was stale",
			"stored", stored,
			"project_archived", c.projectArchived,
		)
	}

	c.activatedAt = time.Now()
	c.deps.Metrics.activation(profileName)
	c.logger.Info("panel activated",
		"path_id", pathID,
		"user_can_edit", c.rc.UserCanEdit,
		"project_status", c.status,
	)
}

// ReadStatus reads a project's status from the external list. A missing
// record or any failure yields StatusUnknown; result is the metrics outcome.
func ReadStatus(ctx context.Context, items ItemReader, list config.ListConfig, siteURL, pathID string) (status Status, result string, err error) {
	value, found, err := items.FirstFieldValue(ctx, siteURL, spclient.ItemQuery{
		ListTitle:   list.Title,
		FilterField: list.FilterField,
		FilterValue: pathID,
		SelectField: list.StatusField,
	})
	switch {
	case err != nil:
		return StatusUnknown, resultError, err
	case !found:
		return StatusUnknown, resultNoMatch, nil
	default:
		return Status(value), resultOK, nil
	}
}

func (c *Controller) checkPermission(ctx context.Context) bool {
	canEdit, err := c.deps.Permissions.CanEditListItems(ctx, c.rc.PageURL)
	switch {
	case errors.Is(err, spclient.ErrAccessDenied):
		c.deps.Metrics.permission(resultDenied)
		c.logger.Debug("permission check denied, treating user as non-editor")
		return false
	case err != nil:
		c.deps.Metrics.permission(resultError)
		c.logger.Error("error checking permissions", "error", err)
		return false
	case canEdit:
		c.deps.Metrics.permission(resultEditor)
		return true
	default:
		c.deps.Metrics.permission(resultNonEditor)
		return false
	}
}

func (c *Controller) loadArchived() bool {
	if c.deps.Properties == nil {
		return false
	}
	props, ok, err := c.deps.Properties.Load(c.rc.PageURL)
	if err != nil {
		c.logger.Warn("failed to load panel properties", "error", err)
		return false
	}
	return ok && props.ProjectArchived
}

// setStatusLocked records a status and its derived archive flag.
func (c *Controller) setStatusLocked(status Status) {
	c.status = status
	c.projectArchived = status == StatusArchived

	if c.deps.Properties == nil {
		return
	}
	err := c.deps.Properties.Save(propertybag.Properties{
		PageURL:         c.rc.PageURL,
		ProjectArchived: c.projectArchived,
	})
	if err != nil {
		c.logger.Warn("failed to save panel properties", "error", err)
	}
}

// Dispatch routes an action to its handler.
func (c *Controller) Dispatch(ctx context.Context, a Action) error {
	switch a {
	case ActionArchive:
		return c.Archive()
	case ActionConfirm:
		return c.Confirm(ctx)
	case ActionCancel:
		return c.Cancel()
	case ActionReactivate:
		return c.Reactivate(ctx)
	default:
		return ErrActionUnavailable
	}
}

// Archive opens the confirmation overlay. It does not call the trigger.
func (c *Controller) Archive() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.viewLocked().Allows(ActionArchive) {
		return ErrActionUnavailable
	}
	c.state.ShowConfirmation = true
	return nil
}

// Cancel closes the confirmation overlay.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.viewLocked().Allows(ActionCancel) {
		return ErrActionUnavailable
	}
	c.state.ShowConfirmation = false
	return nil
}

// Confirm archives the project: the panel switches to archived at once and
// the archive trigger is called afterwards. Trigger failures are not returned.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if !c.viewLocked().Allows(ActionConfirm) {
		c.mu.Unlock()
		return ErrActionUnavailable
	}
	prev := c.status
	c.state.ShowConfirmation = false
	c.setStatusLocked(StatusArchived)
	endpoint := c.rc.ArchiveEndpoint
	c.mu.Unlock()

	c.fire(ctx, ActionArchive, endpoint, prev, StatusArchived)
	return nil
}

// Reactivate switches the panel back to active and calls the reactivate
// trigger. Trigger failures are not returned.
func (c *Controller) Reactivate(ctx context.Context) error {
	c.mu.Lock()
	if !c.viewLocked().Allows(ActionReactivate) {
		c.mu.Unlock()
		return ErrActionUnavailable
	}
	prev := c.status
	c.setStatusLocked(StatusActive)
	endpoint := c.rc.ReactivateEndpoint
	c.mu.Unlock()

	c.fire(ctx, ActionReactivate, endpoint, prev, StatusActive)
	return nil
}

// fire calls the trigger for action. The call outlives a cancelled request
// context; the trigger client's timeout bounds it.
func (c *Controller) fire(ctx context.Context, action Action, endpoint string, prev, next Status) {
	logger := c.logger.With("action", action, "pipedrive_id", c.rc.CorrelationID)

	start := time.Now()
	err := c.deps.Triggers.Post(context.WithoutCancel(ctx), endpoint, c.rc.CorrelationID)
	took := time.Since(start)
	if err == nil {
		c.deps.Metrics.triggerCall(action, resultOK, took)
		logger.Info("trigger call succeeded")
		return
	}

	if errors.Is(err, trigger.ErrTriggerDisabled) {
		c.deps.Metrics.triggerCall(action, resultDisabled, took)
	} else {
		c.deps.Metrics.triggerCall(action, resultError, took)
	}
	logger.Error("error making API call", "error", err)

	if !c.cfg.Behavior.RollbackOnTriggerFailure {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != next {
		// Another action already moved the panel on.
		return
	}
	c.setStatusLocked(prev)
	logger.Warn("rolled back panel status", "project_status", prev)
}

func (c *Controller) viewLocked() View {
	return BuildView(c.state, c.projectArchived, c.rc.UserCanEdit, c.status)
}

// View returns the current view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		PageURL:           c.rc.PageURL,
		PathID:            c.rc.PathID,
		CorrelationID:     c.rc.CorrelationID,
		Profile:           c.rc.Profile,
		ExternalSiteURL:   c.rc.ExternalSiteURL,
		ArchiveEnabled:    c.rc.ArchiveEndpoint != "",
		ReactivateEnabled: c.rc.ReactivateEndpoint != "",
		UserCanEdit:       c.rc.UserCanEdit,
		ProjectStatus:     c.status,
		ProjectArchived:   c.projectArchived,
		ShowConfirmation:  c.state.ShowConfirmation,
		Actions:           c.viewLocked().Actions(),
		ActivatedAt:       c.activatedAt,
	}
}

// Render writes the panel fragment with forms posting to actionBase.
func (c *Controller) Render(w io.Writer, actionBase string) error {
	return c.deps.Renderer.Render(w, c.View(), actionBase)
}

// RenderDocument writes the panel as a standalone HTML document.
func (c *Controller) RenderDocument(w io.Writer, actionBase string) error {
	c.mu.Lock()
	title := c.rc.PathID
	c.mu.Unlock()
	return c.deps.Renderer.RenderDocument(w, c.View(), actionBase, title)
}
