package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	MaxRetries int           // Maximum number of retry attempts
	BaseDelay  time.Duration // Initial backoff delay
	MaxDelay   time.Duration // Cap on backoff and on a server's Retry-After
	Logger     *slog.Logger  // Debug log of each retry (default: slog.Default())
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}

	return false
}

// retryDelay returns how long to wait before retry number attempt+1, and
// false when the error should not be retried. A server asking to back off
// for longer than MaxDelay is not retried: the caller is better served by
// failing fast and reading from the cache.
func (cfg RetryConfig) retryDelay(attempt int, err error) (time.Duration, bool) {
	if !IsRetryable(err) {
		return 0, false
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		if cfg.MaxDelay > 0 && apiErr.RetryAfter > cfg.MaxDelay {
			return 0, false
		}
		return apiErr.RetryAfter, true
	}

	delay := cfg.BaseDelay << attempt
	if apiErr != nil && apiErr.StatusCode == http.StatusTooManyRequests {
		// Throttled without a hint: back off harder than for a flaky upstream.
		delay *= 2
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay, true
}

// RetryableSource retries retryable failures of the wrapped source with
// exponential backoff, honoring the server's Retry-After.
type RetryableSource struct {
	source Source
	config RetryConfig
	logger *slog.Logger
}

// NewRetryableSource creates a new source with retry logic.
func NewRetryableSource(source Source, cfg RetryConfig) *RetryableSource {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryableSource{
		source: source,
		config: cfg,
		logger: logger,
	}
}

// Fetch implements Source with retry logic.
func (s *RetryableSource) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := s.source.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= s.config.MaxRetries {
			return nil, err
		}

		delay, ok := s.config.retryDelay(attempt, err)
		if !ok {
			return nil, err
		}
		s.logger.Debug("retrying commerce request", "endpoint", req.Endpoint, "attempt", attempt+1, "delay", delay, "err", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
