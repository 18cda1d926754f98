// Package spclient provides a small client for the SharePoint REST API.
//
// It covers the calls the archive panel needs: resolving the current user,
// reading their effective permissions on a web, and reading a single field
// from the first matching item of a list.
//
// Example usage:
//
//	client := spclient.New(spclient.WithToken(token), spclient.WithTimeout(30*time.Second))
//	user, err := client.CurrentUser(ctx, "https://contoso.sharepoint.com/sites/x")
package spclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nomis52/archivepanel/buildinfo"
)

const (
	defaultTimeout = 30 * time.Second
	acceptHeader   = "application/json;odata=nometadata"
	maxErrorBody   = 512
)

// ErrAccessDenied is returned when SharePoint answers 403.
var ErrAccessDenied = errors.New("access denied")

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client is a SharePoint REST API client.
// Use New() to create one. A Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a new Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// CurrentUser returns the user the client is authenticated as on the given web.
func (c *Client) CurrentUser(ctx context.Context, webURL string) (User, error) {
	var user User
	endpoint := strings.TrimRight(webURL, "/") + "/_api/web/currentuser"
	if err := c.getJSON(ctx, endpoint, &user); err != nil {
		return User{}, fmt.Errorf("fetching current user: %w", err)
	}
	return user, nil
}

// EffectivePermissions returns the permissions loginName holds on the given web.
func (c *Client) EffectivePermissions(ctx context.Context, webURL, loginName string) (BasePermissions, error) {
	var perms BasePermissions
	query := url.Values{}
	query.Set("@u", odataString(loginName))
	endpoint := strings.TrimRight(webURL, "/") + "/_api/web/getusereffectivepermissions(@u)?" + query.Encode()
	if err := c.getJSON(ctx, endpoint, &perms); err != nil {
		return BasePermissions{}, fmt.Errorf("fetching effective permissions: %w", err)
	}
	return perms, nil
}

// CanEditListItems reports whether the authenticated user may edit list items
// on the given web.
func (c *Client) CanEditListItems(ctx context.Context, webURL string) (bool, error) {
	user, err := c.CurrentUser(ctx, webURL)
	if err != nil {
		return false, err
	}
	perms, err := c.EffectivePermissions(ctx, webURL, user.LoginName)
	if err != nil {
		return false, err
	}
	return perms.Has(PermissionEditListItems), nil
}

// ItemQuery selects a single field from the items of a list whose filter
// field equals a value.
type ItemQuery struct {
	ListTitle   string
	FilterField string
	FilterValue string
	SelectField string
}

// FirstFieldValue returns the select field of the first matching item.
// found is false when no item matches or the field is empty.
func (c *Client) FirstFieldValue(ctx context.Context, siteURL string, q ItemQuery) (value string, found bool, err error) {
	endpoint := ItemsURL(siteURL, q)

	var resp listItemsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return "", false, fmt.Errorf("fetching items of list %q: %w", q.ListTitle, err)
	}
	if len(resp.Value) == 0 {
		return "", false, nil
	}

	raw, ok := resp.Value[0][q.SelectField]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("decoding field %q: %w", q.SelectField, err)
	}
	if s == "" {
		return "", false, nil
	}
	return s, true, nil
}

// ItemsURL builds the list items query URL for q.
func ItemsURL(siteURL string, q ItemQuery) string {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("%s eq %s", q.FilterField, odataString(q.FilterValue)))
	query.Set("$select", q.SelectField)
	return fmt.Sprintf("%s/_api/web/lists/getByTitle(%s)/items?%s",
		strings.TrimRight(siteURL, "/"),
		url.PathEscape(odataString(q.ListTitle)),
		query.Encode(),
	)
}

// odataString quotes s as an OData string literal.
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("sharepoint request",
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusForbidden {
		return ErrAccessDenied
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
