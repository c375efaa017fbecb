package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duvidaki/duvidaki/internal/chunk"
)

var (
	indexConfluence  bool
	indexGitHub      bool
	indexAll         bool
	indexReset       bool
	indexPurgeSource string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Crawl configured sources into the knowledge base",
	Long: `Crawl documentation sources and index them into the vector store.

Re-indexing identical content is an idempotent upsert: chunk ids are
derived from the content, so unchanged pages do not produce duplicates.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexConfluence, "confluence", false, "index the configured Confluence space")
	indexCmd.Flags().BoolVar(&indexGitHub, "github", false, "index the configured GitHub repositories")
	indexCmd.Flags().BoolVar(&indexAll, "all", false, "index every configured source")
	indexCmd.Flags().BoolVar(&indexReset, "reset", false, "wipe the knowledge base before indexing")
	indexCmd.Flags().StringVar(&indexPurgeSource, "purge-source", "", "delete all chunks from the given source tag and exit")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if indexPurgeSource != "" {
		deleted, err := a.service.PurgeSource(ctx, indexPurgeSource)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d chunks from source %q\n", deleted, indexPurgeSource)
		return nil
	}

	if !indexConfluence && !indexGitHub && !indexAll {
		return fmt.Errorf("nothing to index: pass --confluence, --github or --all")
	}

	if indexReset {
		if err := a.service.Reset(ctx); err != nil {
			return err
		}
		fmt.Println("Knowledge base reset")
	}

	var total int
	if indexConfluence || indexAll {
		n, err := a.indexConfluence(ctx)
		if err != nil {
			return err
		}
		total += n
	}
	if indexGitHub || indexAll {
		n, err := a.indexGitHub(ctx)
		if err != nil {
			return err
		}
		total += n
	}

	fmt.Printf("Indexed %d chunks\n", total)
	return nil
}

func (a *app) indexConfluence(ctx context.Context) (int, error) {
	crawler, err := a.confluenceCrawler()
	if err != nil {
		return 0, err
	}
	if crawler == nil {
		fmt.Println("Confluence not configured, skipping")
		return 0, nil
	}

	docs, err := crawler.CrawlSpace(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("crawling confluence: %w", err)
	}
	return a.indexDocuments(ctx, "confluence", docs)
}

func (a *app) indexGitHub(ctx context.Context) (int, error) {
	crawler, err := a.githubCrawler(ctx)
	if err != nil {
		return 0, err
	}
	if crawler == nil {
		fmt.Println("GitHub not configured, skipping")
		return 0, nil
	}

	docs, err := crawler.CrawlRepositories(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("crawling github: %w", err)
	}
	return a.indexDocuments(ctx, "github", docs)
}

func (a *app) indexDocuments(ctx context.Context, source string, docs []chunk.Document) (int, error) {
	if len(docs) == 0 {
		fmt.Printf("No documents found for %s\n", source)
		return 0, nil
	}
	n, err := a.service.Index(ctx, docs)
	if err != nil {
		return 0, err
	}
	fmt.Printf("Indexed %d chunks from %d %s documents\n", n, len(docs), source)
	return n, nil
}
