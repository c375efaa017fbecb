// Package store persists document chunks and their embeddings in
// PostgreSQL with pgvector, and serves cosine-similarity search.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Embedder turns text into vectors. Satisfied by *embed.Client.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

const (
	// DefaultTopK limits search results when the caller passes no bound.
	DefaultTopK = 5
	// MaxTopK is the hard ceiling on search results.
	MaxTopK = 20

	// indexMinRows defers ivfflat index creation until enough rows exist
	// for the list clustering to be useful.
	indexMinRows = 1000

	embedTimeout = 60 * time.Second
)

// upsertSQL makes re-indexing idempotent: identical content keeps its
// deterministic id and the row is refreshed in place.
const upsertSQL = `INSERT INTO embeddings (id, document, embedding, metadata)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE
	SET document = EXCLUDED.document,
	    embedding = EXCLUDED.embedding,
	    metadata = EXCLUDED.metadata,
	    created_at = now()`

// Result is one search hit.
type Result struct {
	ID         string
	Document   string
	Metadata   map[string]any
	Similarity float64
}

// Store manages the embeddings table backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
	logger   *slog.Logger

	connString string
	mu         sync.Mutex // guards reconnect

	indexMu    sync.Mutex
	indexReady bool
}

// New connects to PostgreSQL and verifies the connection.
func New(ctx context.Context, connString string, embedder Embedder, logger *slog.Logger) (*Store, error) {
	if connString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{
		pool:       pool,
		embedder:   embedder,
		logger:     logger,
		connString: connString,
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db().Close()
}

// db returns the current pool. The pool pointer is swapped during
// reconnect, so callers take a snapshot instead of reading the field.
func (s *Store) db() *pgxpool.Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// ensure verifies the pool is live and rebuilds it if not. Pooled
// connections go stale when the database restarts underneath us.
// Returns the pool to use for the operation.
func (s *Store) ensure(ctx context.Context) (*pgxpool.Pool, error) {
	if pool := s.db(); pool.Ping(ctx) == nil {
		return pool, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have reconnected while we waited for the lock.
	if err := s.pool.Ping(ctx); err == nil {
		return s.pool, nil
	}

	s.logger.Warn("database connection lost, reconnecting")
	pool, err := pgxpool.New(ctx, s.connString)
	if err != nil {
		return nil, fmt.Errorf("reconnecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging after reconnect: %w", err)
	}

	s.pool.Close()
	s.pool = pool
	return pool, nil
}

// Add embeds the texts and upserts one row per chunk inside a single
// transaction. texts, metadatas and ids must be the same length; either
// every chunk is stored or none are.
func (s *Store) Add(ctx context.Context, texts []string, metadatas []map[string]any, ids []string) error {
	if len(texts) == 0 {
		return nil
	}
	if len(texts) != len(metadatas) || len(texts) != len(ids) {
		return fmt.Errorf("mismatched lengths: %d texts, %d metadatas, %d ids",
			len(texts), len(metadatas), len(ids))
	}

	pool, err := s.ensure(ctx)
	if err != nil {
		return err
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vectors, err := s.embedder.EmbedTexts(embedCtx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for i := range texts {
		if _, err := tx.Exec(ctx, upsertSQL,
			ids[i], texts[i], pgvector.NewVector(vectors[i]), metadatas[i],
		); err != nil {
			return fmt.Errorf("upserting chunk %s: %w", ids[i], err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %d chunks: %w", len(texts), err)
	}

	s.logger.Info("stored chunks", "count", len(texts))
	s.maybeCreateIndex(ctx)
	return nil
}

// maybeCreateIndex creates the ivfflat index once the table holds enough
// rows to cluster. Creating it on an empty table produces useless lists,
// so index creation waits for data. Best-effort.
func (s *Store) maybeCreateIndex(ctx context.Context) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if s.indexReady {
		return
	}

	pool := s.db()

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		s.logger.Warn("counting rows for index creation", "error", err)
		return
	}
	if count < indexMinRows {
		// Too few rows to cluster; retry on a later Add.
		return
	}

	_, err := pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS embeddings_embedding_idx
		 ON embeddings USING ivfflat (embedding vector_cosine_ops)
		 WITH (lists = 100)`,
	)
	if err != nil {
		s.logger.Warn("creating ivfflat index", "error", err)
		return
	}
	s.indexReady = true
	s.logger.Info("created ivfflat index", "rows", count)
}

// Search embeds the query and returns up to topK chunks ordered by
// cosine similarity descending.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	pool, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	vec, err := s.embedder.EmbedQuery(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := pool.Query(ctx,
		`SELECT id, document, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM embeddings
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(vec), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// DeleteBySource removes every chunk whose metadata source matches.
// Returns the number of rows deleted.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}
	pool, err := s.ensure(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := pool.Exec(ctx,
		`DELETE FROM embeddings WHERE metadata->>'source' = $1`, source,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for source %s: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	pool, err := s.ensure(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// CountBySource returns chunk counts grouped by metadata source.
func (s *Store) CountBySource(ctx context.Context) (map[string]int, error) {
	pool, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx,
		`SELECT COALESCE(metadata->>'source', 'unknown'), COUNT(*)
		 FROM embeddings
		 GROUP BY 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("counting chunks by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scanning source count: %w", err)
		}
		counts[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source counts: %w", err)
	}
	return counts, nil
}

// Reset removes all stored chunks. Safe to call on an empty table.
func (s *Store) Reset(ctx context.Context) error {
	pool, err := s.ensure(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `TRUNCATE embeddings`); err != nil {
		return fmt.Errorf("truncating embeddings: %w", err)
	}
	s.logger.Info("knowledge base reset")
	return nil
}

// scanResults reads Result rows from a search query.
func scanResults(rows pgx.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Document, &r.Metadata, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}
