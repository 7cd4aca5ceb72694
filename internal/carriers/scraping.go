package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// DefaultUserAgent is sent on direct requests unless configured otherwise
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0"

// headers never replayed from captured browser requests
var skipReplayHeaders = map[string]bool{
	"content-length": true,
	"content-type":   true,
	"cookie":         true,
	"host":           true,
}

// ScrapingClient issues direct HTTP requests that look like a browser and
// carry session credentials
type ScrapingClient struct {
	carrier   string
	userAgent string
	client    *http.Client
}

// NewScrapingClient creates a client for carrier. A nil httpClient gets a
// 30 second timeout.
func NewScrapingClient(carrier, userAgent string, httpClient *http.Client) *ScrapingClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ScrapingClient{
		carrier:   carrier,
		userAgent: userAgent,
		client:    httpClient,
	}
}

// fetchPage fetches a web page with browser-like headers and the session
// credentials. A 401 or 403 is returned as a status code, not an error, so
// callers can treat it as a rejected session.
func (c *ScrapingClient) fetchPage(ctx context.Context, pageURL string, creds *Credentials) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	c.applyCredentials(req, creds)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if isRejected(resp.StatusCode) {
		return "", resp.StatusCode, nil
	}
	if err := c.checkStatus(resp); err != nil {
		return "", resp.StatusCode, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), resp.StatusCode, nil
}

// postJSON sends payload as JSON and decodes the JSON reply into out. The
// HTTP status code is returned alongside so callers can tell a rejected
// session from other failures.
func (c *ScrapingClient) postJSON(ctx context.Context, endpoint string, creds *Credentials, extra http.Header, payload, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	c.applyCredentials(req, creds)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to post request: %w", err)
	}
	defer resp.Body.Close()

	if isRejected(resp.StatusCode) {
		return resp.StatusCode, nil
	}
	if err := c.checkStatus(resp); err != nil {
		return resp.StatusCode, err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// primeCookies performs an unauthenticated GET and returns every cookie the
// server set for pageURL, following redirects.
func (c *ScrapingClient) primeCookies(ctx context.Context, pageURL string) (map[string]string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := *c.client
	client.Jar = jar

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to prime session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid priming URL: %w", err)
	}

	cookies := make(map[string]string)
	for _, ck := range jar.Cookies(u) {
		cookies[ck.Name] = ck.Value
	}
	return cookies, nil
}

func (c *ScrapingClient) applyCredentials(req *http.Request, creds *Credentials) {
	if creds != nil {
		for k, v := range creds.Headers {
			if skipReplayHeaders[strings.ToLower(k)] {
				continue
			}
			req.Header.Set(k, v)
		}
		for name, value := range creds.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
}

func isRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func (c *ScrapingClient) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &CarrierError{
			Carrier:   c.carrier,
			Code:      CodeRateLimit,
			Message:   "Rate limited by carrier website",
			Retryable: true,
			RateLimit: true,
		}
	}
	return &CarrierError{
		Carrier:   c.carrier,
		Code:      CodeHTTPError,
		Message:   fmt.Sprintf("HTTP error %d", resp.StatusCode),
		Retryable: resp.StatusCode >= 500,
	}
}
