// Package api provides the HTTP and WebSocket clients for the DealDesk backend.
//
// client.go holds the REST client used for job status snapshots and token
// validation. job_ws.go holds the WebSocket push channel, an alternative to
// the SSE stream for networks that buffer event streams.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dealdesk/dealstream/internal/config"
	"github.com/dealdesk/dealstream/internal/errors"
	"github.com/dealdesk/dealstream/internal/jobstream"
	"github.com/dealdesk/dealstream/internal/util"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an unstructured error body is kept.
	maxErrorBody = 200
)

// UserAgent is sent with every request. The CLI stamps its version here.
var UserAgent = "dealstream-cli/dev"

// Client is the DealDesk API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client using the production backend.
//
// Parameters:
//   - token: The bearer token for authentication
//
// Returns:
//   - *Client: A new client instance
func NewClient(token string) *Client {
	return NewClientWithBaseURL(token, config.ProdBackendURL)
}

// NewClientWithDevMode creates a new API client with dev mode support.
// When devMode is true, the client talks to a local backend.
//
// Parameters:
//   - token: The bearer token for authentication
//   - devMode: If true, use the local development server URL
//
// Returns:
//   - *Client: A new client instance
func NewClientWithDevMode(token string, devMode bool) *Client {
	return NewClientWithBaseURL(token, config.GetBackendURL(devMode))
}

// NewClientWithBaseURL creates a new API client with a custom base URL.
//
// Parameters:
//   - token: The bearer token for authentication
//   - baseURL: The base URL for the API
//
// Returns:
//   - *Client: A new client instance
func NewClientWithBaseURL(token, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// BaseURL returns the backend URL this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

// Error returns a human-readable error message.
//
// Returns:
//   - string: The error message, with fallback to HTTP status if no message available
func (e *APIError) Error() string {
	if e.Message != "" && e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}

// doRequest performs an HTTP request with authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}

	return resp, nil
}

// parseResponse parses the response body into the target struct.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)

		// Supports the error field names the backend has used over time
		var errResp struct {
			Error   string `json:"error"`
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &errResp)

		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		detail := errResp.Detail

		// Fallback to raw body if no structured error found
		if message == "" && detail == "" {
			detail = util.Truncate(strings.TrimSpace(string(body)), maxErrorBody)
		}

		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Detail:     detail,
		}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return errors.Wrap(err, "failed to parse response")
		}
	}

	return nil
}

// GetJobStatus fetches a point-in-time snapshot of a job.
//
// Parameters:
//   - ctx: Context for cancellation
//   - jobID: The job identifier
//
// Returns:
//   - *jobstream.JobStatus: The current job status
//   - error: Any error that occurred
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*jobstream.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.WithStack(errors.ErrInvalidJobID)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID)+"/status", nil)
	if err != nil {
		return nil, err
	}

	var status jobstream.JobStatus
	if err := parseResponse(resp, &status); err != nil {
		return nil, errors.Wrapf(err, "failed to get status for job %s", jobID)
	}
	return &status, nil
}

// TokenInfo describes the identity behind a token.
type TokenInfo struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	OrgID  string `json:"org_id"`
}

// ValidateToken checks the client's token against the backend.
//
// Returns:
//   - *TokenInfo: The identity the token belongs to
//   - error: An *APIError with status 401 if the token is invalid
func (c *Client) ValidateToken(ctx context.Context) (*TokenInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/me", nil)
	if err != nil {
		return nil, err
	}

	var info TokenInfo
	if err := parseResponse(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// StatusFunc adapts GetJobStatus to jobstream.StatusFunc. Each call obtains a
// fresh token from the provider, so rotated credentials are picked up.
func StatusFunc(baseURL string) jobstream.StatusFunc {
	return func(ctx context.Context, jobID string, tokens jobstream.TokenProvider) (*jobstream.JobStatus, error) {
		token, err := tokens(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to obtain token for status request")
		}
		return NewClientWithBaseURL(token, baseURL).GetJobStatus(ctx, jobID)
	}
}
