// Package httpclient provides the HTTP fetch layer shared by the extractor,
// the media pipeline, and the model ranker: automatic retries with
// exponential backoff, response size limits, redirect tracking (callers see
// the final post-redirect URL), and structured logging.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/summarize/internal/version"
)

// Common errors returned by the client.
var (
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

// Default configuration values.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 2
	DefaultRetryDelay    = 1 * time.Second
	DefaultRetryMaxDelay = 15 * time.Second
	DefaultMaxBodyBytes  = 20 * 1024 * 1024
)

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout is the overall request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests.
	RetryAttempts int

	// RetryDelay is the initial delay between retries; each retry doubles
	// it up to RetryMaxDelay.
	RetryDelay time.Duration

	// RetryMaxDelay is the maximum delay between retries.
	RetryMaxDelay time.Duration

	// MaxBodyBytes caps response bodies read into memory. 0 means no limit.
	MaxBodyBytes int64

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Logger is the structured logger for request/response logging.
	Logger *slog.Logger

	// BaseClient is the underlying http.Client. If nil, one is created with
	// the configured timeout.
	BaseClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       DefaultTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryDelay:    DefaultRetryDelay,
		RetryMaxDelay: DefaultRetryMaxDelay,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		UserAgent:     version.UserAgent(),
		Logger:        slog.Default(),
	}
}

// Client wraps http.Client with retries and redirect tracking.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := cfg.BaseClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		config: cfg,
		client: base,
		logger: cfg.Logger.With("component", "httpclient"),
	}
}

// StandardClient returns the underlying http.Client.
func (c *Client) StandardClient() *http.Client {
	return c.client
}

// FetchResult is the outcome of a Fetch.
type FetchResult struct {
	// FinalURL is the post-redirect URL; this is what callers surface.
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Do executes req with retries on network errors and retryable status
// codes (429, 502, 503, 504). The caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	delay := c.config.RetryDelay
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				"url", req.URL.String(), "attempt", attempt)
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.config.RetryMaxDelay {
				delay = c.config.RetryMaxDelay
			}
		}

		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("replaying request body: %w", bodyErr)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Body != nil && req.GetBody == nil {
				// Non-replayable body; cannot retry.
				return nil, err
			}
			continue
		}

		if retryableStatus(resp.StatusCode) && attempt < c.config.RetryAttempts {
			lastErr = fmt.Errorf("status %d from %s", resp.StatusCode, req.URL)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

// Fetch GETs url and reads the body, enforcing the size cap. The result's
// FinalURL reflects any redirects followed.
func (c *Client) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Download GETs url into destPath (written via a temp file then rename) and
// returns the final URL, content type, and byte count.
func (c *Client) Download(ctx context.Context, url, destPath string) (finalURL, contentType string, size int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return "", "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", 0, fmt.Errorf("status %d downloading %s", resp.StatusCode, url)
	}

	tmp := destPath + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return "", "", 0, fmt.Errorf("creating download file: %w", err)
	}

	var reader io.Reader = resp.Body
	if c.config.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxBodyBytes+1)
	}
	size, err = io.Copy(f, reader)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return "", "", 0, fmt.Errorf("writing download: %w", err)
	}
	if c.config.MaxBodyBytes > 0 && size > c.config.MaxBodyBytes {
		os.Remove(tmp)
		return "", "", 0, ErrResponseTooLarge
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return "", "", 0, fmt.Errorf("finalizing download: %w", err)
	}

	return resp.Request.URL.String(), resp.Header.Get("Content-Type"), size, nil
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if c.config.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if c.config.MaxBodyBytes > 0 && int64(len(body)) > c.config.MaxBodyBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// LooksLikeHTML sniffs the first bytes of a body for HTML markers. The
// classifier uses this to demote a supposed asset URL that actually serves
// a web page.
func LooksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := body
	if len(head) > 512 {
		head = head[:512]
	}
	s := strings.ToLower(strings.TrimSpace(string(head)))
	return strings.HasPrefix(s, "<!doctype html") ||
		strings.HasPrefix(s, "<html") ||
		strings.Contains(s, "<head") ||
		strings.Contains(s, "<body")
}
