// Package gateway is the HTTP client for the remote hike service. It creates,
// updates, deletes and lists hikes and observations on behalf of the
// authenticated user, converting between the service's JSON representation
// and [model.Hike] / [model.Observation].
//
// Every request is tried once by default. [Client.SetMaxAttempts] enables
// [Retry] with backoff for idempotent requests (GET, PUT, DELETE); creates are
// always sent once so a lost response can never duplicate a remote record.
package gateway

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
	"strings"
	"time"

	"github.com/njoerd114/trailsync/internal/model"
)

var (
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("remote service rejected credentials")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("remote resource not found")
	// ErrMalformedResponse wraps bodies that could not be decoded or lack an id.
	ErrMalformedResponse = errors.New("malformed response from remote service")
)

// StatusError reports any other non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote service status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("remote service status %d", e.StatusCode)
}

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// Client talks to the remote hike service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userID      string
	maxAttempts int
	log         *slog.Logger
}

// NewClient returns a Client for the service at baseURL acting as userID.
// A nil httpClient is replaced by one with the given timeout.
func NewClient(httpClient *http.Client, baseURL, userID string, timeout time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userID:      strings.TrimSpace(userID),
		maxAttempts: defaultMaxAttempts,
		log:         logger,
	}
}

// SetMaxAttempts sets how often idempotent requests are tried before giving
// up. Values below 1 mean a single attempt.
func (c *Client) SetMaxAttempts(n int) {
	c.maxAttempts = max(n, 1)
}

// CreateHike posts h and returns the remote id assigned by the service.
func (c *Client) CreateHike(ctx context.Context, token string, h *model.Hike) (string, error) {
	var out createdResponse
	if err := c.do(ctx, token, http.MethodPost, "/hikes", toHikeRequest(c.userID, h), &out); err != nil {
		return "", fmt.Errorf("creating hike %q: %w", h.Name, err)
	}
	id := out.id()
	if id == "" {
		return "", fmt.Errorf("creating hike %q: %w: response has no id", h.Name, ErrMalformedResponse)
	}
	return id, nil
}

// UpdateHike replaces the content of the remote hike identified by remoteID.
func (c *Client) UpdateHike(ctx context.Context, token, remoteID string, h *model.Hike) error {
	path := "/hikes/" + url.PathEscape(remoteID)
	body := toHikeRequest(c.userID, h)
	err := Retry(ctx, c.maxAttempts, func() error {
		return c.do(ctx, token, http.MethodPut, path, body, nil)
	})
	if err != nil {
		return fmt.Errorf("updating hike %s: %w", remoteID, err)
	}
	return nil
}

// DeleteHike deletes the remote hike identified by remoteID. A hike that is
// already gone remotely counts as deleted.
func (c *Client) DeleteHike(ctx context.Context, token, remoteID string) error {
	path := "/hikes/" + url.PathEscape(remoteID)
	err := Retry(ctx, c.maxAttempts, func() error {
		return c.do(ctx, token, http.MethodDelete, path, nil, nil)
	})
	if errors.Is(err, ErrNotFound) {
		c.log.Debug("remote hike already deleted", "remote_id", remoteID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting hike %s: %w", remoteID, err)
	}
	return nil
}

// ListMyHikes returns every hike owned by the authenticated user, in the
// order the service lists them.
func (c *Client) ListMyHikes(ctx context.Context, token string) ([]*model.Hike, error) {
	var raw []remoteHike
	err := Retry(ctx, c.maxAttempts, func() error {
		raw = nil
		return c.do(ctx, token, http.MethodGet, "/hikes/my", nil, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("listing hikes: %w", err)
	}

	hikes := make([]*model.Hike, 0, len(raw))
	for _, r := range raw {
		hikes = append(hikes, r.toModel())
	}
	return hikes, nil
}

// CreateObservation posts o under the remote hike remoteHikeID and returns the
// remote id assigned by the service. An empty imageURL is omitted.
func (c *Client) CreateObservation(ctx context.Context, token, remoteHikeID, imageURL string, o *model.Observation) (string, error) {
	var out createdResponse
	body := toObservationRequest(c.userID, remoteHikeID, imageURL, o)
	if err := c.do(ctx, token, http.MethodPost, "/observations", body, &out); err != nil {
		return "", fmt.Errorf("creating observation %q: %w", o.Title, err)
	}
	id := out.id()
	if id == "" {
		return "", fmt.Errorf("creating observation %q: %w: response has no id", o.Title, ErrMalformedResponse)
	}
	return id, nil
}

// ListObservations returns the observations attached to the remote hike.
func (c *Client) ListObservations(ctx context.Context, token, remoteHikeID string) ([]*model.Observation, error) {
	path := "/observations/hike/" + url.PathEscape(remoteHikeID)
	var raw []remoteObservation
	err := Retry(ctx, c.maxAttempts, func() error {
		raw = nil
		return c.do(ctx, token, http.MethodGet, path, nil, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("listing observations for hike %s: %w", remoteHikeID, err)
	}

	obs := make([]*model.Observation, 0, len(raw))
	for _, r := range raw {
		obs = append(obs, r.toModel())
	}
	return obs, nil
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		req.Header.Set("Authorization", token)
	}

	c.log.Debug("remote request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
		}
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{StatusCode: resp.StatusCode, Body: errorMessage(msg)}
	}
}

// errorMessage extracts {"error": "..."} when present, falling back to the
// raw body text.
func errorMessage(body []byte) string {
	var eb struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &eb); err == nil && strings.TrimSpace(eb.Error) != "" {
		return strings.TrimSpace(eb.Error)
	}
	return strings.TrimSpace(string(body))
}
