// Package confluence crawls Confluence Cloud spaces through the REST
// API and hands page text to the indexing pipeline.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/duvidaki/duvidaki/internal/chunk"
)

// pageLimit is the Confluence REST pagination window.
const pageLimit = 50

// Config holds the Confluence connection settings.
type Config struct {
	BaseURL  string // e.g. https://example.atlassian.net
	Email    string
	APIToken string
	SpaceKey string // default space for CrawlSpace("")
}

// Configured reports whether all required settings are present.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.Email != "" && c.APIToken != ""
}

// Crawler fetches pages from one Confluence instance.
type Crawler struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Crawler. Returns an error when the configuration is
// incomplete; callers gate on Config.Configured first.
func New(cfg Config, logger *slog.Logger) (*Crawler, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("confluence is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Crawler{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

// page mirrors the fields we need from the content API.
type page struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		Number int `json:"number"`
	} `json:"version"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
}

type contentResponse struct {
	Results []page `json:"results"`
}

// CrawlSpace fetches every page of the space and returns one document
// per page. An empty spaceKey falls back to the configured default.
// Pages that fail to extract are skipped, not fatal.
func (c *Crawler) CrawlSpace(ctx context.Context, spaceKey string) ([]chunk.Document, error) {
	if spaceKey == "" {
		spaceKey = c.cfg.SpaceKey
	}
	if spaceKey == "" {
		return nil, fmt.Errorf("space key is required")
	}

	var docs []chunk.Document
	for start := 0; ; start += pageLimit {
		query := url.Values{
			"spaceKey": {spaceKey},
			"start":    {fmt.Sprint(start)},
			"limit":    {fmt.Sprint(pageLimit)},
			"expand":   {"body.storage,version,space"},
		}
		var resp contentResponse
		if err := c.get(ctx, "/wiki/rest/api/content?"+query.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("listing pages of space %s: %w", spaceKey, err)
		}

		for _, p := range resp.Results {
			doc, err := c.toDocument(p, spaceKey)
			if err != nil {
				c.logger.Warn("skipping page", "page_id", p.ID, "error", err)
				continue
			}
			docs = append(docs, doc)
		}

		if len(resp.Results) < pageLimit {
			break
		}
	}

	c.logger.Info("crawled confluence space", "space", spaceKey, "pages", len(docs))
	return docs, nil
}

// CrawlPage fetches a single page by id.
func (c *Crawler) CrawlPage(ctx context.Context, pageID string) (chunk.Document, error) {
	var p page
	path := fmt.Sprintf("/wiki/rest/api/content/%s?expand=body.storage,version,space", url.PathEscape(pageID))
	if err := c.get(ctx, path, &p); err != nil {
		return chunk.Document{}, fmt.Errorf("fetching page %s: %w", pageID, err)
	}
	return c.toDocument(p, p.Space.Key)
}

// SearchPages runs a CQL text search and returns the matching pages as
// documents. An empty spaceKey searches all spaces.
func (c *Crawler) SearchPages(ctx context.Context, text, spaceKey string) ([]chunk.Document, error) {
	if text == "" {
		return nil, fmt.Errorf("search text is required")
	}

	cql := fmt.Sprintf(`text ~ %q`, text)
	if spaceKey != "" {
		cql += fmt.Sprintf(` AND space = %q`, spaceKey)
	}
	query := url.Values{
		"cql":   {cql},
		"limit": {fmt.Sprint(pageLimit)},
	}

	var resp struct {
		Results []struct {
			Content struct {
				ID string `json:"id"`
			} `json:"content"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/wiki/rest/api/search?"+query.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("searching pages: %w", err)
	}

	var docs []chunk.Document
	for _, r := range resp.Results {
		doc, err := c.CrawlPage(ctx, r.Content.ID)
		if err != nil {
			c.logger.Warn("skipping search result", "page_id", r.Content.ID, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Crawler) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling confluence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("confluence returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// toDocument converts a page into an indexable document. The title is
// prepended as a heading so it lands in the first chunk.
func (c *Crawler) toDocument(p page, spaceKey string) (chunk.Document, error) {
	if p.ID == "" || p.Title == "" {
		return chunk.Document{}, fmt.Errorf("page missing id or title")
	}
	if spaceKey == "" {
		spaceKey = p.Space.Key
	}

	text, err := htmlToText(p.Body.Storage.Value)
	if err != nil {
		return chunk.Document{}, fmt.Errorf("extracting text: %w", err)
	}

	version := p.Version.Number
	if version == 0 {
		version = 1
	}

	return chunk.Document{
		Content: fmt.Sprintf("# %s\n\n%s", p.Title, text),
		Source:  "confluence",
		Metadata: map[string]any{
			"page_id":   p.ID,
			"title":     p.Title,
			"space_key": spaceKey,
			"url":       fmt.Sprintf("%s/wiki/spaces/%s/pages/%s", c.cfg.BaseURL, spaceKey, p.ID),
			"version":   version,
			"type":      "confluence_page",
		},
	}, nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// htmlToText strips Confluence storage-format HTML down to plain text.
// Script and style bodies are dropped; block elements become line
// breaks so paragraph boundaries survive for the chunker.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Remove()

	// Force paragraph breaks so the chunker sees block structure.
	doc.Find("p, div, li, h1, h2, h3, h4, h5, h6, tr, br").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})

	text := doc.Text()
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
