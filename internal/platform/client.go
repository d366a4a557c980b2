// Package platform is a thin client for the Voyage REST API
// (applications, versions, runs, item results).
//
// Authentication is delegated to a token-provider callback: the provider
// returns "" (not an error) when no usable token exists, and the client
// maps that to ErrNotAuthenticated so every command surfaces the same
// "please log in" failure.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"
)

// ErrNotAuthenticated reports that the token provider had no usable
// access token.
var ErrNotAuthenticated = errors.New("not authenticated, run `voyage login`")

// TokenProvider supplies a bearer token per request. An empty token with
// a nil error means "no usable token".
type TokenProvider func(ctx context.Context) (string, error)

// RequestEditorFn modifies outgoing requests before they are sent.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("platform API error (status %d)", e.StatusCode)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRequestEditor appends a request editor applied to every request.
func WithRequestEditor(fn RequestEditorFn) ClientOption {
	return func(c *Client) {
		c.requestEditors = append(c.requestEditors, fn)
	}
}

// Client talks to one environment's platform API.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	tokenProvider  TokenProvider
	requestEditors []RequestEditorFn
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, provider TokenProvider, opts ...ClientOption) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("missing token provider")
	}

	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	c := &Client{
		baseURL:       parsed,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tokenProvider: provider,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ListApplications returns all applications visible to the caller.
func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	var apps []Application
	if err := c.get(ctx, "applications", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// GetApplication returns one application by ID.
func (c *Client) GetApplication(ctx context.Context, applicationID string) (*Application, error) {
	path, err := pathWithID("applications/%s", applicationID)
	if err != nil {
		return nil, err
	}
	var app Application
	if err := c.get(ctx, path, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListVersions returns the versions of an application.
func (c *Client) ListVersions(ctx context.Context, applicationID string) ([]Version, error) {
	path, err := pathWithID("applications/%s/versions", applicationID)
	if err != nil {
		return nil, err
	}
	var versions []Version
	if err := c.get(ctx, path, nil, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// ListRuns returns runs, optionally filtered by application.
func (c *Client) ListRuns(ctx context.Context, applicationID string) ([]Run, error) {
	query := url.Values{}
	if applicationID != "" {
		query.Set("application_id", applicationID)
	}
	var runs []Run
	if err := c.get(ctx, "runs", query, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun returns one run by ID.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	path, err := pathWithID("runs/%s", runID)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := c.get(ctx, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRunResults returns the per-item results of a run.
func (c *Client) ListRunResults(ctx context.Context, runID string) ([]ItemResult, error) {
	path, err := pathWithID("runs/%s/results", runID)
	if err != nil {
		return nil, err
	}
	var results []ItemResult
	if err := c.get(ctx, path, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// pathWithID encodes a single path parameter into a route template.
func pathWithID(template, id string) (string, error) {
	encoded, err := runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return "", fmt.Errorf("encoding path parameter: %w", err)
	}
	return fmt.Sprintf(template, encoded), nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path: %w", err)
	}
	target := c.baseURL.ResolveReference(ref)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.tokenProvider(ctx)
	if err != nil {
		return fmt.Errorf("resolving access token: %w", err)
	}
	if token == "" {
		return ErrNotAuthenticated
	}
	req.Header.Set("Authorization", "Bearer "+token)

	for _, edit := range c.requestEditors {
		if err := edit(ctx, req); err != nil {
			return fmt.Errorf("editing request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling platform API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding platform API response: %w", err)
	}
	return nil
}

// newAPIError extracts the error message from a non-2xx response body.
func newAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if payload.Error != "" {
				apiErr.Message = payload.Error
			} else {
				apiErr.Message = payload.Message
			}
		}
	}

	return apiErr
}
