package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
)

// ErrNotFound reports a 404 response. Callers that need to distinguish a
// missing resource from a transport failure match it with errors.Is.
var ErrNotFound = errors.New("resource not found")

// HTTPClient defines an interface for HTTP client operations to enable mocking
type HTTPClient interface {
	// Get performs a GET request and unmarshals the response into result
	Get(ctx context.Context, url string, result interface{}) error

	// Post performs a POST request and returns the response body
	Post(ctx context.Context, url string, contentType string, body io.Reader) ([]byte, error)
}

// RealHTTPClient implements HTTPClient using the standard http package
type RealHTTPClient struct {
	client        *http.Client
	maxElapsed    time.Duration
	retryInterval time.Duration
}

// NewHTTPClient creates a new real HTTP client with a per-request timeout and
// a total retry budget of maxElapsed
func NewHTTPClient(timeout time.Duration, maxElapsed time.Duration) HTTPClient {
	if maxElapsed == 0 {
		maxElapsed = time.Minute
	}
	return &RealHTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		maxElapsed:    maxElapsed,
		retryInterval: 2 * time.Second,
	}
}

// doRequestWithRetry executes an HTTP request with exponential backoff for
// transient failures and rate limiting
func (c *RealHTTPClient) doRequestWithRetry(ctx context.Context, req *http.Request) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		// A consumed body cannot be resent; rebuild it for every attempt
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("failed to rewind request body: %w", err))
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Network errors are retryable
			return fmt.Errorf("failed to perform request: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Warn("failed to close response body", zap.Error(err), zap.String("url", req.URL.String()))
			}
		}()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("retryable status code %d", resp.StatusCode)
		}

		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("%s: %w", req.URL.String(), ErrNotFound))
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body)))
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}

		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = c.maxElapsed
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5 // jitter

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("request failed after retries: %w", err)
	}

	return respBody, nil
}

// Get performs a GET request and unmarshals the response into result
func (c *RealHTTPClient) Get(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	respBody, err := c.doRequestWithRetry(ctx, req)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Post performs a POST request and returns the response body
func (c *RealHTTPClient) Post(ctx context.Context, url string, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.doRequestWithRetry(ctx, req)
}
