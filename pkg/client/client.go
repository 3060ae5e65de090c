// Package client is the Go SDK for the fiscore HTTP API.
//
// All calls carry the tenant headers the API gateway normally injects, so
// the SDK works both behind the gateway and against a bare server in
// development.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Version is the SDK version reported in the User-Agent header.
const Version = "0.1.0"

// Tenant headers expected by the API.
const (
	headerOrgID  = "X-Org-ID"
	headerUserID = "X-User-ID"
)

// Client is the fiscore SDK client.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	orgID        string
	userID       string
	userAgent    string
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	instances      *InstancesClient
	instancesOnce  sync.Once
	uploads        *UploadsClient
	uploadsOnce    sync.Once
	documents      *DocumentsClient
	documentsOnce  sync.Once
	deliveries     *DeliveriesClient
	deliveriesOnce sync.Once
}

// APIError is an error response from the API.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fiscore: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound reports whether the server answered 404.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsConflict reports whether the server rejected a state transition.
func (e *APIError) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// IsValidation reports whether the request payload was rejected.
func (e *APIError) IsValidation() bool { return e.StatusCode == http.StatusUnprocessableEntity }

// IsServerError reports whether the failure is on the server side.
func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// envelope mirrors the API's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error,omitempty"`
}

// Page is a paginated listing.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// NewClient creates a fiscore SDK client.  orgID identifies the tenant and
// is sent on every request.
func NewClient(baseURL, orgID string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("fiscore: baseURL is required")
	}
	if orgID == "" {
		return nil, fmt.Errorf("fiscore: orgID is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("fiscore: invalid baseURL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("fiscore: baseURL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		orgID:        orgID,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    fmt.Sprintf("fiscore-go-sdk/%s", Version),
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Instances returns the obligation-instance sub-client.
func (c *Client) Instances() *InstancesClient {
	c.instancesOnce.Do(func() { c.instances = &InstancesClient{client: c} })
	return c.instances
}

// Uploads returns the staging-upload sub-client.
func (c *Client) Uploads() *UploadsClient {
	c.uploadsOnce.Do(func() { c.uploads = &UploadsClient{client: c} })
	return c.uploads
}

// Documents returns the promoted-document sub-client.
func (c *Client) Documents() *DocumentsClient {
	c.documentsOnce.Do(func() { c.documents = &DocumentsClient{client: c} })
	return c.documents
}

// Deliveries returns the delivery-queue sub-client.
func (c *Client) Deliveries() *DeliveriesClient {
	c.deliveriesOnce.Do(func() { c.deliveries = &DeliveriesClient{client: c} })
	return c.deliveries
}

// do performs a JSON request with retries on transport and 5xx failures.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("fiscore: failed to marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return fmt.Errorf("fiscore: failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set(headerOrgID, c.orgID)
		if c.userID != "" {
			req.Header.Set(headerUserID, c.userID)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("fiscore: failed to read response body: %w", err)
		}

		if resp.StatusCode >= 500 && attempt < c.retryMax {
			lastErr = decodeError(resp.StatusCode, respBody)
			continue
		}
		if resp.StatusCode >= 400 {
			return decodeError(resp.StatusCode, respBody)
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return fmt.Errorf("fiscore: failed to decode response: %w", err)
		}
		if len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("fiscore: failed to decode response data: %w", err)
		}
		return nil
	}

	return fmt.Errorf("fiscore: request failed after %d attempts: %w", c.retryMax+1, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.retryWaitMin << uint(attempt-1)
	if d > c.retryWaitMax {
		d = c.retryWaitMax
	}
	// Jitter spreads out synchronized retries.
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	var env envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Detail = env.Error.Detail
	}
	if apiErr.Code == "" {
		apiErr.Code = "UNKNOWN"
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
