// Package embed turns text into vector embeddings through a remote
// embedding model, batching requests and rate limiting upstream calls.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Defaults for the batching client.
const (
	DefaultBatchSize         = 100
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerMinute = 60
)

// Provider performs one upstream embedding call for a batch of texts.
// It must return exactly one vector per input text.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchError reports which slice of the input failed upstream.
type BatchError struct {
	Start int
	End   int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batch [%d:%d]: %v", e.Start, e.End, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Client batches embedding requests against a Provider. A failing batch
// fails the whole call; no partial results are returned.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	provider  Provider
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBatchSize sets the maximum number of texts per upstream call.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithTimeout sets the per-batch upstream timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRequestsPerMinute caps the upstream call rate.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
		}
	}
}

// New creates a batching Client over the given provider.
func New(provider Provider, logger *slog.Logger, opts ...Option) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		provider:  provider,
		batchSize: DefaultBatchSize,
		timeout:   DefaultTimeout,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/DefaultRequestsPerMinute), DefaultRequestsPerMinute),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EmbedTexts embeds all texts, splitting them into batches of at most
// the configured batch size. Either every text gets a vector or an
// error is returned.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		batchCtx, cancel := context.WithTimeout(ctx, c.timeout)
		batch, err := c.provider.EmbedBatch(batchCtx, texts[start:end])
		cancel()
		if err != nil {
			return nil, &BatchError{Start: start, End: end, Err: err}
		}
		if len(batch) != end-start {
			return nil, &BatchError{Start: start, End: end,
				Err: fmt.Errorf("got %d vectors for %d texts", len(batch), end-start)}
		}

		vectors = append(vectors, batch...)
		c.logger.Debug("embedded batch", "start", start, "end", end, "total", len(texts))
	}

	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
