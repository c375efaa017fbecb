// Package slackbot connects the answering pipeline to Slack over
// Socket Mode: mentions, direct messages and slash commands.
package slackbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/duvidaki/duvidaki/internal/rag"
	"github.com/duvidaki/duvidaki/internal/validate"
)

// Config holds the Slack connection settings.
type Config struct {
	BotToken string // xoxb-...
	AppToken string // xapp-..., required for Socket Mode

	// ConfluenceConfigured and GitHubConfigured feed the stats command.
	ConfluenceConfigured bool
	GitHubConfigured     bool
}

// Configured reports whether both tokens are present.
func (c Config) Configured() bool {
	return c.BotToken != "" && c.AppToken != ""
}

// Answerer is the pipeline surface the bot needs. Satisfied by
// *rag.Service.
type Answerer interface {
	Query(ctx context.Context, question string) string
	Stats(ctx context.Context) (rag.Stats, error)
}

// Bot serves Slack events.
type Bot struct {
	api      *slack.Client
	socket   *socketmode.Client
	answerer Answerer
	cfg      Config
	logger   *slog.Logger
	dedup    *recencyCache
	handlers sync.WaitGroup
	apiURL   string
}

// Option configures a Bot.
type Option func(*Bot)

// WithDedupCapacity sets how many recent event keys are remembered for
// redelivery suppression.
func WithDedupCapacity(n int) Option {
	return func(b *Bot) { b.dedup = newRecencyCache(n) }
}

// WithAPIURL points the Web API client at a different base URL. Used by
// tests.
func WithAPIURL(url string) Option {
	return func(b *Bot) { b.apiURL = url }
}

// New creates a Bot. The Socket Mode connection is not opened until Run.
func New(cfg Config, answerer Answerer, logger *slog.Logger, opts ...Option) (*Bot, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("slack is not configured")
	}
	if answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bot{
		answerer: answerer,
		cfg:      cfg,
		logger:   logger,
		dedup:    newRecencyCache(0),
	}
	for _, opt := range opts {
		opt(b)
	}

	apiOpts := []slack.Option{slack.OptionAppLevelToken(cfg.AppToken)}
	if b.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(b.apiURL))
	}
	b.api = slack.New(cfg.BotToken, apiOpts...)
	b.socket = socketmode.New(b.api)
	return b, nil
}

// Run opens the Socket Mode connection and serves events until the
// context is cancelled. In-flight handlers are drained before Run
// returns.
func (b *Bot) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	served := make(chan struct{})
	go func() {
		defer close(served)
		b.serve(ctx, b.socket.Events, b.socket.Ack)
	}()

	b.logger.Info("slack bot starting")
	err := b.socket.RunContext(ctx)
	cancel()
	<-served
	b.handlers.Wait()

	if err != nil && parent.Err() == nil {
		return fmt.Errorf("socket mode connection: %w", err)
	}
	return nil
}

// serve acks and dispatches incoming Socket Mode events. Each event is
// handled in its own goroutine so one slow generation does not delay
// the events queued behind it.
func (b *Bot) serve(ctx context.Context, events <-chan socketmode.Event, ack func(socketmode.Request, ...interface{})) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				// Ack before processing: generation can outlast
				// Slack's retry window.
				ack(*evt.Request)
				b.spawn(func() { b.handleEventsAPI(ctx, apiEvent) })

			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				ack(*evt.Request)
				b.spawn(func() { b.handleSlashCommand(ctx, cmd) })

			case socketmode.EventTypeConnectionError:
				b.logger.Warn("slack connection error", "data", evt.Data)
			}
		}
	}
}

func (b *Bot) spawn(fn func()) {
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		fn()
	}()
}

// handleEventsAPI routes mentions and direct messages.
func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if b.dedup.Seen(eventKey(ev.Channel, ev.TimeStamp)) {
			return
		}
		b.handleMention(ctx, ev)

	case *slackevents.MessageEvent:
		// Only direct messages from humans; mentions arrive separately.
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" {
			return
		}
		if b.dedup.Seen(eventKey(ev.Channel, ev.TimeStamp)) {
			return
		}
		b.handleDirectMessage(ctx, ev)
	}
}

func (b *Bot) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	thread := threadTS(ev.ThreadTimeStamp, ev.TimeStamp)
	question := validate.SanitizeSlackMessage(ev.Text)

	if question == "" {
		b.post(ctx, ev.Channel, thread, rag.HelpMessage)
		return
	}

	b.logger.Info("mention received", "user", ev.User, "channel", ev.Channel)
	b.post(ctx, ev.Channel, thread, rag.ProcessingMessage)
	b.post(ctx, ev.Channel, thread, b.answerer.Query(ctx, question))
}

func (b *Bot) handleDirectMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	question := validate.SanitizeSlackMessage(ev.Text)
	if question == "" {
		return
	}
	thread := threadTS(ev.ThreadTimeStamp, ev.TimeStamp)

	b.logger.Info("direct message received", "user", ev.User)
	b.post(ctx, ev.Channel, thread, rag.ProcessingMessage)
	b.post(ctx, ev.Channel, thread, b.answerer.Query(ctx, question))
}

// handleSlashCommand serves /duvidaki and /duvidaki-stats.
func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/duvidaki":
		if strings.TrimSpace(cmd.Text) == "" {
			b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, "Use: `/duvidaki your question here`")
			return
		}
		b.logger.Info("slash command received", "user", cmd.UserID)
		b.post(ctx, cmd.ChannelID, "", b.answerer.Query(ctx, cmd.Text))

	case "/duvidaki-stats":
		stats, err := b.answerer.Stats(ctx)
		if err != nil {
			b.logger.Error("stats failed", "error", err)
			b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, "Failed to fetch statistics.")
			return
		}
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, b.statsMessage(stats))
	}
}

// statsMessage renders the stats template with crawler status markers.
func (b *Bot) statsMessage(stats rag.Stats) string {
	status := func(configured bool) string {
		if configured {
			return "✅ Configured"
		}
		return "❌ Not configured"
	}
	return fmt.Sprintf(rag.StatsTemplate, stats.TotalChunks,
		status(b.cfg.ConfluenceConfigured), status(b.cfg.GitHubConfigured))
}

// maxMessageLength is Slack's hard cap on message text.
const maxMessageLength = 40000

func (b *Bot) post(ctx context.Context, channel, thread, text string) {
	text = validate.TruncateText(text, maxMessageLength, "\n\n_(truncated)_")
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if thread != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}
	if _, _, err := b.api.PostMessageContext(ctx, channel, opts...); err != nil {
		b.logger.Error("posting message failed", "channel", channel, "error", err)
	}
}

func (b *Bot) postEphemeral(ctx context.Context, channel, user, text string) {
	if _, err := b.api.PostEphemeralContext(ctx, channel, user, slack.MsgOptionText(text, false)); err != nil {
		b.logger.Error("posting ephemeral message failed", "channel", channel, "error", err)
	}
}

// threadTS picks the thread to reply in: the existing thread if the
// message is already in one, otherwise the message itself.
func threadTS(threadTimeStamp, timeStamp string) string {
	if threadTimeStamp != "" {
		return threadTimeStamp
	}
	return timeStamp
}

// eventKey identifies an event for redelivery suppression.
func eventKey(channel, ts string) string {
	return channel + ":" + ts
}
