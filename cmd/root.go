// Package cmd wires the pipeline into a CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "duvidaki",
	Short: "DuvidAKI answers questions from the company documentation",
	Long: `DuvidAKI is a retrieval-augmented chatbot. It indexes documentation
from Confluence and GitHub into a pgvector knowledge base and answers
natural-language questions grounded in the retrieved chunks.

Typical usage:

  duvidaki index --all          index every configured source
  duvidaki ask "your question"  answer a question from the terminal
  duvidaki serve                run the Slack bot
  duvidaki stats                show knowledge base statistics`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
