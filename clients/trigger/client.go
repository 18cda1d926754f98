// Package trigger posts project correlation IDs to automation webhooks.
//
// Trigger endpoints are fire-and-forget: the caller only learns whether the
// endpoint accepted the request.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nomis52/archivepanel/buildinfo"
	"github.com/nomis52/archivepanel/config"
)

const (
	// DefaultTimeout is the default timeout for trigger requests
	DefaultTimeout = 30 * time.Second
	maxDrainBody   = 4096
)

// ErrTriggerDisabled is returned when the endpoint is empty.
var ErrTriggerDisabled = errors.New("trigger endpoint not configured")

// Payload is the JSON body sent to a trigger endpoint.
type Payload struct {
	PipedriveID string `json:"pipedriveID"`
}

// StatusError is returned when the endpoint answers with a non-2xx status.
// The response body is not kept.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API call failed with status code %d", e.StatusCode)
}

// Client posts payloads to trigger endpoints.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new Client with the given request timeout.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Post sends {"pipedriveID": id} to endpoint and expects a 2xx answer.
func (c *Client) Post(ctx context.Context, endpoint, pipedriveID string) error {
	if endpoint == "" {
		return ErrTriggerDisabled
	}

	body, err := json.Marshal(Payload{PipedriveID: pipedriveID})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", redactURLError(err, endpoint))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", redactURLError(err, endpoint))
	}
	defer resp.Body.Close()

	c.logger.Debug("trigger request",
		"host", req.URL.Host,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBody))

	if resp.StatusCode/100 != 2 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	return nil
}

// redactURLError strips the path and query from the URL carried by a
// *url.Error. Trigger endpoints embed their signature in the query string.
func redactURLError(err error, endpoint string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = config.RedactEndpoint(endpoint)
	}
	return err
}
