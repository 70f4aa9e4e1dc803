// Package httpclient provides a small HTTP client with exponential backoff
// used to download fonts and media.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Static errors for HTTP operations.
var (
	// ErrRequestFailed is returned for non-retryable non-2xx responses.
	ErrRequestFailed = errors.New("httpclient: request failed")
	// ErrServerError is returned for 5xx responses.
	ErrServerError = errors.New("httpclient: server error")
	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("httpclient: rate limited")
)

// Client performs GET requests with retry on transport errors, 5xx and 429.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxRetries  int
	baseBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(cl *Client) {
		cl.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) Option {
	return func(cl *Client) {
		cl.baseBackoff = d
	}
}

// New creates a Client. Defaults: 60s timeout, 3 retries, 1s base backoff.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the response body of url.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, url, func(r io.Reader) error {
			b, err := io.ReadAll(r)
			if err != nil {
				return &retryableError{err: fmt.Errorf("httpclient: read response: %w", err)}
			}
			body = b
			return nil
		})
	})
	return body, err
}

// Download streams url into destPath. A partially written file is removed
// before each retry and on failure.
func (c *Client) Download(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return fmt.Errorf("httpclient: create destination dir: %w", err)
	}
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, url, func(r io.Reader) error {
			f, err := os.Create(destPath) // #nosec G304 - destPath is built by the caller
			if err != nil {
				return fmt.Errorf("httpclient: create file: %w", err)
			}
			if _, err := io.Copy(f, r); err != nil {
				_ = f.Close()
				_ = os.Remove(destPath)
				return &retryableError{err: fmt.Errorf("httpclient: write file: %w", err)}
			}
			return f.Close()
		})
	})
	if err != nil {
		_ = os.Remove(destPath)
	}
	return err
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("httpclient: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("httpclient: max retries exceeded: %w", lastErr)
}

func (c *Client) do(ctx context.Context, url string, consume func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("httpclient: %w", ctx.Err())
		}
		return &retryableError{err: fmt.Errorf("httpclient: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch {
		case resp.StatusCode >= 500:
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, snippet)}
		case resp.StatusCode == http.StatusTooManyRequests:
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, snippet)}
		default:
			return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, snippet)
		}
	}

	return consume(resp.Body)
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
