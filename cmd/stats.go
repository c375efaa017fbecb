package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := a.service.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Total chunks: %d\n", stats.TotalChunks)

	sources := make([]string, 0, len(stats.Sources))
	for source := range stats.Sources {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		fmt.Printf("  %-12s %d\n", source, stats.Sources[source])
	}

	fmt.Printf("Confluence configured: %v\n", a.cfg.IsConfluenceConfigured())
	fmt.Printf("GitHub configured: %v\n", a.cfg.IsGitHubConfigured())
	fmt.Printf("Slack configured: %v\n", a.cfg.IsSlackConfigured())
	return nil
}
