package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// MockEmbedder produces deterministic vectors derived from the text
// content, so identical text always maps to the identical vector and
// similarity ordering is stable across test runs. Implements the
// store.Embedder interface.
type MockEmbedder struct {
	Dimension int

	mu    sync.Mutex
	calls int
}

// NewMockEmbedder creates a MockEmbedder with the given dimensionality.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 1536
	}
	return &MockEmbedder{Dimension: dimension}
}

// EmbedTexts returns one deterministic vector per text.
func (m *MockEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.vector(text)
	}
	return vectors, nil
}

// EmbedQuery returns the deterministic vector for a single text.
func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Calls reports how many embedding calls were made.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// vector expands the sha256 of the text into Dimension float32 values
// in [0, 1).
func (m *MockEmbedder) vector(text string) []float32 {
	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, m.Dimension)
	block := seed
	for i := range vec {
		if i%32 == 0 && i > 0 {
			block = sha256.Sum256(block[:])
		}
		b := block[(i*4)%28 : (i*4)%28+4]
		vec[i] = float32(binary.BigEndian.Uint32(b)%10_000) / 10_000
	}
	return vec
}

// MockGenerator returns a scripted answer and records every prompt it
// was asked to complete. Implements the llm.Generator interface.
type MockGenerator struct {
	Answer string
	Err    error

	mu      sync.Mutex
	prompts []string
	systems []string
}

// Generate records the call and returns the scripted answer.
func (m *MockGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.systems = append(m.systems, system)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if m.Answer == "" {
		return "MOCK_ANSWER", nil
	}
	return m.Answer, nil
}

// Calls reports how many generation calls were made.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// LastPrompt returns the most recent prompt, or an error if none exist.
func (m *MockGenerator) LastPrompt() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return "", fmt.Errorf("no generation calls recorded")
	}
	return m.prompts[len(m.prompts)-1], nil
}

// LastSystem returns the most recent system instruction, or an error if
// none exist.
func (m *MockGenerator) LastSystem() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.systems) == 0 {
		return "", fmt.Errorf("no generation calls recorded")
	}
	return m.systems[len(m.systems)-1], nil
}
