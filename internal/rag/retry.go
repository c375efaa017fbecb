package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for generation calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category. Matched
// case-insensitively against err.Error().
//
// String matching because the provider SDK does not expose typed errors
// for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(errStr, pattern) {
				return true
			}
		}
	}
	return false
}

// withRetry runs fn with exponential backoff on transient errors.
// Non-retryable errors fail immediately.
func withRetry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, fn func() (string, error)) (string, error) {
	var lastErr error
	delay := cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Debug("call succeeded after retry",
					"attempts", attempt+1, "elapsed", time.Since(start))
			}
			return result, nil
		}

		lastErr = err
		if !retryableError(err) {
			return "", err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		logger.Debug("retrying after transient error",
			"attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return "", fmt.Errorf("after %d retries (elapsed %v): %w",
		cfg.MaxRetries, time.Since(start), lastErr)
}
