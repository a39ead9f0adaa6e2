package share

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	pkgerrors "xprobe/pkg/errors"
)

// Fetcher downloads subscription bodies with retry.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
}

// FetcherConfig represents fetcher configuration
type FetcherConfig struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultFetcherConfig returns default fetcher configuration
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:  "xprobe/1.0",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

// NewFetcher creates a new subscription fetcher
func NewFetcher(config FetcherConfig) *Fetcher {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		userAgent:  config.UserAgent,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}
}

// Fetch downloads url, retrying transport errors and 5xx responses with
// exponential backoff. Client errors (4xx) are not retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.retryDelay

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		body, err := f.doFetch(ctx, url)
		if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return body, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(f.maxRetries+1)),
	)
	if err != nil {
		return nil, &pkgerrors.SubscriptionError{
			URL: url,
			Err: fmt.Errorf("%w: %v", pkgerrors.ErrSubscriptionFetchFailed, err),
		}
	}
	return body, nil
}

func (f *Fetcher) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        url,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// HTTPError represents an HTTP error
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s for %s", e.StatusCode, e.Status, e.URL)
}
