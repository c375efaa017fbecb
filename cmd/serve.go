package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duvidaki/duvidaki/internal/slackbot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Slack bot",
	Long: `Connect to Slack over Socket Mode and answer mentions, direct
messages and slash commands until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.cfg.IsSlackConfigured() {
		return fmt.Errorf("slack is not configured: set SLACK_BOT_TOKEN and SLACK_APP_TOKEN")
	}

	bot, err := slackbot.New(slackbot.Config{
		BotToken:             a.cfg.SlackBotToken,
		AppToken:             a.cfg.SlackAppToken,
		ConfluenceConfigured: a.cfg.IsConfluenceConfigured(),
		GitHubConfigured:     a.cfg.IsGitHubConfigured(),
	}, a.service, a.logger.With("component", "slackbot"))
	if err != nil {
		return err
	}

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	a.logger.Info("slack bot stopped")
	return nil
}
