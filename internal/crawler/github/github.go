// Package github crawls repository documentation (README plus the
// conventional docs directories) and hands it to the indexing pipeline.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/duvidaki/duvidaki/internal/chunk"
)

// Documentation locations, matching what repositories conventionally use.
var (
	docExtensions = []string{".md", ".rst", ".txt"}
	docPaths      = []string{"docs", "doc", "documentation", ".github"}
)

// Config holds the GitHub connection settings.
type Config struct {
	Token string
	Repos []string // "owner/repo"
}

// Configured reports whether a token and at least one repository are set.
func (c Config) Configured() bool {
	return c.Token != "" && len(c.Repos) > 0
}

// Crawler fetches documentation files from GitHub repositories.
type Crawler struct {
	client *gh.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a Crawler authenticated with the configured token.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Crawler, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("github is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := gh.NewClient(oauth2.NewClient(ctx, ts))

	return &Crawler{client: client, cfg: cfg, logger: logger}, nil
}

// SetBaseURL points the crawler at a different API endpoint. Used by
// tests and GitHub Enterprise installs. The URL must end with a slash.
func (c *Crawler) SetBaseURL(rawURL string) error {
	u, err := gh.NewClient(nil).BaseURL.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing base URL: %w", err)
	}
	c.client.BaseURL = u
	return nil
}

// CrawlRepositories crawls every configured repository. A repository
// that fails is logged and skipped so one bad repo does not sink the
// whole indexing run.
func (c *Crawler) CrawlRepositories(ctx context.Context, repos []string) ([]chunk.Document, error) {
	if len(repos) == 0 {
		repos = c.cfg.Repos
	}

	var docs []chunk.Document
	for _, name := range repos {
		repoDocs, err := c.CrawlRepository(ctx, name)
		if err != nil {
			c.logger.Error("crawling repository failed", "repo", name, "error", err)
			continue
		}
		docs = append(docs, repoDocs...)
	}

	c.logger.Info("crawled github repositories", "repos", len(repos), "documents", len(docs))
	return docs, nil
}

// CrawlRepository collects the README and documentation files of one
// repository given as "owner/repo".
func (c *Crawler) CrawlRepository(ctx context.Context, name string) ([]chunk.Document, error) {
	owner, repo, err := splitRepoName(name)
	if err != nil {
		return nil, err
	}

	var docs []chunk.Document

	if readme, err := c.fetchReadme(ctx, owner, repo); err != nil {
		c.logger.Warn("no readme", "repo", name, "error", err)
	} else {
		docs = append(docs, readme)
	}

	for _, path := range docPaths {
		found, err := c.walkPath(ctx, owner, repo, path)
		if err != nil {
			// Missing docs directories are the normal case.
			continue
		}
		docs = append(docs, found...)
	}

	c.logger.Info("crawled repository", "repo", name, "documents", len(docs))
	return docs, nil
}

// splitRepoName parses "owner/repo".
func splitRepoName(name string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(name, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("repository name %q must be owner/repo", name)
	}
	return owner, repo, nil
}

// fetchReadme fetches and decodes the repository README.
func (c *Crawler) fetchReadme(ctx context.Context, owner, repo string) (chunk.Document, error) {
	readme, _, err := c.client.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return chunk.Document{}, fmt.Errorf("fetching readme: %w", err)
	}
	content, err := readme.GetContent()
	if err != nil {
		return chunk.Document{}, fmt.Errorf("decoding readme: %w", err)
	}

	return chunk.Document{
		Content: content,
		Source:  "github",
		Metadata: map[string]any{
			"repo_name": owner + "/" + repo,
			"file_path": readme.GetPath(),
			"url":       readme.GetHTMLURL(),
			"type":      "readme",
		},
	}, nil
}

// walkPath recursively collects documentation files under path.
func (c *Crawler) walkPath(ctx context.Context, owner, repo, path string) ([]chunk.Document, error) {
	file, dir, _, err := c.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	// A file path returns a single entry instead of a listing.
	if file != nil {
		if !documentationFile(file.GetName()) {
			return nil, nil
		}
		doc, err := c.toDocument(owner, repo, file)
		if err != nil {
			return nil, err
		}
		return []chunk.Document{doc}, nil
	}

	var docs []chunk.Document
	for _, entry := range dir {
		switch entry.GetType() {
		case "dir":
			sub, err := c.walkPath(ctx, owner, repo, entry.GetPath())
			if err != nil {
				c.logger.Warn("skipping directory", "path", entry.GetPath(), "error", err)
				continue
			}
			docs = append(docs, sub...)
		case "file":
			if !documentationFile(entry.GetName()) {
				continue
			}
			// Directory listings carry no file content; fetch the
			// entry itself.
			sub, err := c.walkPath(ctx, owner, repo, entry.GetPath())
			if err != nil {
				c.logger.Warn("skipping file", "path", entry.GetPath(), "error", err)
				continue
			}
			docs = append(docs, sub...)
		}
	}
	return docs, nil
}

// documentationFile reports whether the file name has a documentation
// extension.
func documentationFile(name string) bool {
	for _, ext := range docExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// toDocument decodes a fetched file into an indexable document.
func (c *Crawler) toDocument(owner, repo string, file *gh.RepositoryContent) (chunk.Document, error) {
	content, err := file.GetContent()
	if err != nil {
		return chunk.Document{}, fmt.Errorf("decoding %s: %w", file.GetPath(), err)
	}

	return chunk.Document{
		Content: content,
		Source:  "github",
		Metadata: map[string]any{
			"repo_name": owner + "/" + repo,
			"file_path": file.GetPath(),
			"url":       file.GetHTMLURL(),
			"type":      "documentation",
		},
	}, nil
}
