package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default per-call timeouts. Every request runs under one of them.
const (
	DefaultProbeTimeout  = 3 * time.Second
	DefaultFetchTimeout  = 5 * time.Second
	DefaultUploadTimeout = 15 * time.Second

	defaultUserAgent = "edge-datahub/0.1"

	// maxErrorBody caps how much of an error response is kept in APIError.
	maxErrorBody = 4096
)

// TokenSource provides bearer tokens. A nil TokenSource sends requests
// without an Authorization header.
type TokenSource interface {
	Token() (string, error)
}

// Timeouts bounds each class of cloud call.
type Timeouts struct {
	Probe  time.Duration
	Fetch  time.Duration
	Upload time.Duration
}

// DefaultTimeouts returns the stock timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{Probe: DefaultProbeTimeout, Fetch: DefaultFetchTimeout, Upload: DefaultUploadTimeout}
}

// Client talks to the cloud API. It does not retry: a failed call is
// reported to the caller, and the sync scheduler's period is the retry
// cadence.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
	timeouts   Timeouts
}

// NewClient creates a cloud API client. An empty baseURL yields a client
// whose calls fail with ErrNotConfigured and whose probe reports offline.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
		timeouts:   DefaultTimeouts(),
	}
}

// SetTimeouts replaces the per-call timeouts. Zero fields keep their
// current value.
func (c *Client) SetTimeouts(t Timeouts) {
	if t.Probe > 0 {
		c.timeouts.Probe = t.Probe
	}

	if t.Fetch > 0 {
		c.timeouts.Fetch = t.Fetch
	}

	if t.Upload > 0 {
		c.timeouts.Upload = t.Upload
	}
}

// Configured reports whether an API base URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// BaseURL returns the configured API base.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doJSON sends one request with the given timeout. A non-nil in is encoded
// as the JSON body; a non-nil out receives the decoded 2xx response.
func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path string, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("cloud: encoding %s %s: %w", method, path, err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("cloud: creating request: %w", err)
	}

	if err := c.authorize(req); err != nil {
		return err
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cloud: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    strings.TrimSpace(string(errBody)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	c.logger.Debug("cloud request succeeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cloud: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.token == nil {
		return nil
	}

	tok, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("cloud: obtaining token: %w", err)
	}

	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	return nil
}
