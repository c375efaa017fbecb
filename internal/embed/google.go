package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// VectorDimension is the embedding dimensionality requested from the
// model and the width of the vector column in PostgreSQL. The two must
// match or inserts fail.
const VectorDimension = 1536

// GoogleProvider embeds text through the Gemini embedding API.
type GoogleProvider struct {
	client *genai.Client
	model  string
	dim    int32
}

// NewGoogleProvider creates a provider for the given embedding model.
// The API key is read from the environment by the genai client when
// apiKey is empty.
func NewGoogleProvider(ctx context.Context, apiKey, model string) (*GoogleProvider, error) {
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
	return &GoogleProvider{client: client, model: model, dim: VectorDimension}, nil
}

// EmbedBatch embeds all texts in a single upstream call.
func (p *GoogleProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := p.dim
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("calling embedding model %s: %w", p.model, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("model returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
