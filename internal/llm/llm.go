// Package llm wraps the Gemini generation API behind a small interface
// so the answering pipeline can be tested without network access.
package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Defaults for generation.
const (
	DefaultTemperature     float32 = 0.3
	DefaultMaxOutputTokens int32   = 1024
	DefaultTimeout                 = 30 * time.Second
)

// Generator produces a completion for a prompt under a fixed system
// instruction.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Client calls a Gemini generation model.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *Client) {
		if t >= 0 && t <= 2 {
			c.temperature = t
		}
	}
}

// WithMaxOutputTokens caps the completion length.
func WithMaxOutputTokens(n int32) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTimeout sets the per-call upstream timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a generation Client for the given model. The API key is
// read from the environment by the genai client when apiKey is empty.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	c := &Client{
		client:      client,
		model:       model,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxOutputTokens,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate produces a completion for prompt under the system
// instruction. Returns an error on upstream failure or an empty
// completion.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := c.temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: c.maxTokens,
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(callCtx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("calling generation model %s: %w", c.model, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model %s returned an empty completion", c.model)
	}
	return text, nil
}
