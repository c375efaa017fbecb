package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/duvidaki/duvidaki/db"
	"github.com/duvidaki/duvidaki/internal/chunk"
	"github.com/duvidaki/duvidaki/internal/config"
	"github.com/duvidaki/duvidaki/internal/crawler/confluence"
	"github.com/duvidaki/duvidaki/internal/crawler/github"
	"github.com/duvidaki/duvidaki/internal/embed"
	"github.com/duvidaki/duvidaki/internal/llm"
	"github.com/duvidaki/duvidaki/internal/log"
	"github.com/duvidaki/duvidaki/internal/rag"
	"github.com/duvidaki/duvidaki/internal/store"
	"github.com/duvidaki/duvidaki/internal/validate"
)

// app holds the wired pipeline shared by the commands.
type app struct {
	cfg     *config.Config
	logger  log.Logger
	store   *store.Store
	service *rag.Service
}

// buildApp loads configuration, migrates the schema and wires the full
// pipeline. The returned cleanup closes the store.
func buildApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("migrating schema: %w", err)
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second

	provider, err := embed.NewGoogleProvider(ctx, apiKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	embedder, err := embed.New(provider, logger.With("component", "embed"),
		embed.WithBatchSize(cfg.EmbedBatchSize),
		embed.WithTimeout(timeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding client: %w", err)
	}

	st, err := store.New(ctx, cfg.PostgresConnectionString(), embedder,
		logger.With("component", "store"))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to the vector store: %w", err)
	}

	generator, err := llm.New(ctx, apiKey, cfg.GenerationModel,
		llm.WithTemperature(cfg.Temperature),
		llm.WithMaxOutputTokens(int32(cfg.MaxTokens)),
		llm.WithTimeout(timeout),
	)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("creating generation client: %w", err)
	}

	validator := validate.New(
		validate.WithMaxQueryLength(cfg.MaxQueryLength),
		validate.WithPatterns(cfg.DangerousPatterns),
	)

	service, err := rag.New(st, generator, logger.With("component", "rag"),
		rag.WithMaxResults(cfg.MaxResults),
		rag.WithValidator(validator),
		rag.WithSplitter(chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)),
	)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("creating answering service: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: st, service: service}
	return a, st.Close, nil
}

// confluenceCrawler builds the Confluence crawler, or nil when not
// configured.
func (a *app) confluenceCrawler() (*confluence.Crawler, error) {
	if !a.cfg.IsConfluenceConfigured() {
		return nil, nil
	}
	return confluence.New(confluence.Config{
		BaseURL:  a.cfg.ConfluenceURL,
		Email:    a.cfg.ConfluenceEmail,
		APIToken: a.cfg.ConfluenceAPIToken,
		SpaceKey: a.cfg.ConfluenceSpaceKey,
	}, a.logger.With("component", "confluence"))
}

// githubCrawler builds the GitHub crawler, or nil when not configured.
func (a *app) githubCrawler(ctx context.Context) (*github.Crawler, error) {
	if !a.cfg.IsGitHubConfigured() {
		return nil, nil
	}
	return github.New(ctx, github.Config{
		Token: a.cfg.GitHubToken,
		Repos: a.cfg.GitHubRepos,
	}, a.logger.With("component", "github"))
}
