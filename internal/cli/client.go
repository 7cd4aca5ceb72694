package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shiptrack/internal/carriers"
)

// Client talks to a running `shiptrack serve` instance
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError represents an error response from the API
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Carrier string `json:"carrier,omitempty"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
}

// carrierError turns tracking failures reported by the server back into the
// error values a local Tracker would return
func (e *APIError) carrierError() error {
	switch e.Code {
	case carriers.CodeStatusNotAvailable, carriers.CodeSessionAcquisitionFailed,
		carriers.CodeHTTPError, carriers.CodeRateLimit:
		return &carriers.CarrierError{
			Carrier:   e.Carrier,
			Code:      e.Code,
			Message:   e.Message,
			RateLimit: e.Code == carriers.CodeRateLimit,
		}
	}
	return e
}

type addPackageRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

type removePackageResponse struct {
	Removed int `json:"removed"`
}

// doRequest performs an HTTP request and decodes a JSON reply into out
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			// If we can't decode the error, create a generic one
			apiErr = &APIError{Message: resp.Status}
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck checks if the API server is healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/api/health", nil, nil)
}

// TrackPackage runs one tracking query on the server
func (c *Client) TrackPackage(ctx context.Context, trackingNumber string) (*carriers.Package, error) {
	var pkg carriers.Package
	err := c.doRequest(ctx, http.MethodGet, "/api/track/"+url.PathEscape(trackingNumber), nil, &pkg)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			err = apiErr.carrierError()
		}
		return nil, fmt.Errorf("track %s: %w", trackingNumber, err)
	}
	return &pkg, nil
}

// ListPackages returns the saved tracking numbers in order
func (c *Client) ListPackages(ctx context.Context) ([]string, error) {
	var numbers []string
	if err := c.doRequest(ctx, http.MethodGet, "/api/packages", nil, &numbers); err != nil {
		return nil, err
	}
	return numbers, nil
}

// AddPackage appends a tracking number to the saved list
func (c *Client) AddPackage(ctx context.Context, trackingNumber string) error {
	return c.doRequest(ctx, http.MethodPost, "/api/packages", addPackageRequest{TrackingNumber: trackingNumber}, nil)
}

// RemovePackage drops every occurrence of a tracking number and reports how
// many were removed. A number that was not saved is not an error.
func (c *Client) RemovePackage(ctx context.Context, trackingNumber string) (int, error) {
	var resp removePackageResponse
	err := c.doRequest(ctx, http.MethodDelete, "/api/packages/"+url.PathEscape(trackingNumber), nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound && apiErr.Code == "NOT_FOUND" {
			return 0, nil
		}
		return 0, err
	}
	return resp.Removed, nil
}
