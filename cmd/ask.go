package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	question := strings.Join(args, " ")
	fmt.Println(a.service.Query(ctx, question))
	return nil
}
