// Package rag orchestrates the answering pipeline: validate the
// question, retrieve similar chunks, assemble context and generate a
// grounded answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/duvidaki/duvidaki/internal/chunk"
	"github.com/duvidaki/duvidaki/internal/store"
	"github.com/duvidaki/duvidaki/internal/validate"
)

// DefaultMaxResults bounds how many chunks feed the prompt context.
const DefaultMaxResults = 5

// Store is the persistence surface the pipeline needs. Satisfied by
// *store.Store.
type Store interface {
	Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) error
	Search(ctx context.Context, query string, topK int) ([]store.Result, error)
	DeleteBySource(ctx context.Context, source string) (int64, error)
	Count(ctx context.Context) (int, error)
	CountBySource(ctx context.Context) (map[string]int, error)
	Reset(ctx context.Context) error
}

// Generator produces a completion for a prompt under a system
// instruction. Satisfied by *llm.Client.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Stats summarizes the knowledge base.
type Stats struct {
	TotalChunks int
	Sources     map[string]int
}

// Service ties the pipeline together.
//
// Query never returns an error: validation failures surface their own
// message and every later failure collapses to a generic one, so
// internal detail never reaches the end user.
type Service struct {
	store      Store
	generator  Generator
	validator  *validate.Validator
	splitter   *chunk.Splitter
	logger     *slog.Logger
	maxResults int
	retry      RetryConfig
}

// Option configures a Service.
type Option func(*Service)

// WithMaxResults sets how many chunks are retrieved per query.
func WithMaxResults(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithRetryConfig overrides the generation retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithValidator overrides the query validator, e.g. to apply
// configured length limits and blocked patterns.
func WithValidator(v *validate.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithSplitter overrides the chunker used for indexing.
func WithSplitter(sp *chunk.Splitter) Option {
	return func(s *Service) {
		if sp != nil {
			s.splitter = sp
		}
	}
}

// New creates a Service.
func New(st Store, gen Generator, logger *slog.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      st,
		generator:  gen,
		validator:  validate.New(),
		splitter:   chunk.NewSplitter(chunk.DefaultChunkSize, chunk.DefaultChunkOverlap),
		logger:     logger,
		maxResults: DefaultMaxResults,
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Query answers a question from the knowledge base. The returned string
// is always safe to show to the end user.
//
// An empty search result short-circuits to the no-results message
// without calling the generation model; a failed search is treated the
// same way.
func (s *Service) Query(ctx context.Context, question string) string {
	logger := s.logger.With("trace_id", uuid.NewString())

	sanitized, err := s.validator.SanitizeQuery(question)
	if err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			logger.Warn("query rejected", "kind", verr.Kind)
			if verr.Kind == validate.KindEmpty {
				return ErrorMessage
			}
			return verr.Message
		}
		logger.Error("query validation failed", "error", err)
		return ErrorMessage
	}

	results, err := s.store.Search(ctx, sanitized, s.maxResults)
	if err != nil {
		logger.Error("search failed", "error", err)
		return NoResultsMessage
	}
	if len(results) == 0 {
		logger.Info("no relevant chunks found")
		return NoResultsMessage
	}

	prompt := fmt.Sprintf(queryTemplate, BuildContext(results), sanitized)

	answer, err := withRetry(ctx, s.retry, logger, func() (string, error) {
		return s.generator.Generate(ctx, SystemPrompt, prompt)
	})
	if err != nil {
		logger.Error("generation failed", "error", err)
		return ErrorMessage
	}

	logger.Info("query answered", "chunks", len(results))
	return answer
}

// Index chunks the documents and stores them with their embeddings.
// Returns the number of chunks stored. Re-indexing identical content
// is an idempotent upsert.
func (s *Service) Index(ctx context.Context, docs []chunk.Document) (int, error) {
	if len(docs) == 0 {
		return 0, fmt.Errorf("no documents to index")
	}

	texts, metadatas, ids := s.splitter.Process(docs)
	if len(texts) == 0 {
		return 0, fmt.Errorf("documents produced no chunks")
	}

	if err := s.store.Add(ctx, texts, metadatas, ids); err != nil {
		return 0, fmt.Errorf("indexing %d chunks: %w", len(texts), err)
	}

	s.logger.Info("indexed documents", "documents", len(docs), "chunks", len(texts))
	return len(texts), nil
}

// Stats reports the size and composition of the knowledge base.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting chunks: %w", err)
	}
	sources, err := s.store.CountBySource(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting chunks by source: %w", err)
	}
	return Stats{TotalChunks: total, Sources: sources}, nil
}

// PurgeSource removes every chunk indexed from the given source tag.
func (s *Service) PurgeSource(ctx context.Context, source string) (int64, error) {
	deleted, err := s.store.DeleteBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("purging source %s: %w", source, err)
	}
	s.logger.Info("purged source", "source", source, "chunks", deleted)
	return deleted, nil
}

// Reset wipes the whole knowledge base.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting knowledge base: %w", err)
	}
	return nil
}
