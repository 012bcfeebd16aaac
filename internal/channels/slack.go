package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/KafClaw/taskclaw/internal/bus"
	"github.com/KafClaw/taskclaw/internal/config"
)

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// SlackChannel receives commands over Slack Socket Mode and posts results
// back into the originating conversation.
type SlackChannel struct {
	BaseChannel
	config config.SlackConfig
	api    *slack.Client
	cancel context.CancelFunc
}

// NewSlackChannel builds a Slack channel. httpClient may be nil.
func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus, httpClient *http.Client) (*SlackChannel, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("missing slack bot token")
	}
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = "https://slack.com/api"
	}
	base = strings.TrimRight(base, "/") + "/"
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []slack.Option{
		slack.OptionHTTPClient(httpClient),
		slack.OptionAPIURL(base),
	}
	if appToken := strings.TrimSpace(cfg.AppToken); appToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(appToken))
	}
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus, AllowFrom: cfg.AllowFrom},
		config:      cfg,
		api:         slack.New(token, opts...),
	}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

// Start subscribes to outbound results and, when an app token is configured,
// opens a Socket Mode connection in the background.
func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			slog.Warn("SlackChannel: send failed", "chat_id", msg.ChatID, "trace_id", msg.TraceID, "error", err)
		}
	})
	if strings.TrimSpace(c.config.AppToken) == "" {
		slog.Info("SlackChannel: no app token, socket mode disabled")
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	client := socketmode.New(c.api)
	go c.handleEvents(runCtx, client)
	go func() {
		if err := client.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("SlackChannel: socket mode stopped", "error", err)
		}
	}()
	slog.Info("SlackChannel: socket mode started")
	return nil
}

func (c *SlackChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *SlackChannel) handleEvents(ctx context.Context, client *socketmode.Client) {
	for {
		var evt socketmode.Event
		select {
		case <-ctx.Done():
			return
		case evt = <-client.Events:
		}
		switch evt.Type {
		case socketmode.EventTypeEventsAPI:
			if evt.Request != nil {
				client.Ack(*evt.Request)
			}
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || ev.Type != slackevents.CallbackEvent {
				continue
			}
			switch in := ev.InnerEvent.Data.(type) {
			case *slackevents.MessageEvent:
				// Only direct messages; channel traffic arrives as app mentions.
				if in == nil || in.BotID != "" || in.SubType != "" || in.ChannelType != "im" {
					continue
				}
				c.HandleInbound(in.User, in.Channel, in.ThreadTimeStamp, in.Text)
			case *slackevents.AppMentionEvent:
				if in == nil || in.BotID != "" {
					continue
				}
				thread := in.ThreadTimeStamp
				if thread == "" {
					thread = in.TimeStamp
				}
				c.HandleInbound(in.User, in.Channel, thread, in.Text)
			}
		case socketmode.EventTypeSlashCommand:
			if evt.Request != nil {
				client.Ack(*evt.Request, map[string]any{"response_type": "ephemeral", "text": "Working on it..."})
			}
			if cmd, ok := evt.Data.(slack.SlashCommand); ok {
				c.HandleInbound(cmd.UserID, cmd.ChannelID, "", cmd.Text)
			}
		}
	}
}

// HandleInbound turns a Slack message into a command on the bus. It returns
// false when the message was dropped.
func (c *SlackChannel) HandleInbound(senderID, channelID, threadTS, text string) bool {
	text = strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
	if text == "" || strings.TrimSpace(channelID) == "" {
		return false
	}
	if !c.IsAllowed(senderID) {
		slog.Warn("SlackChannel: sender not allowed", "sender", senderID, "channel", channelID)
		return false
	}
	meta := map[string]any{}
	if threadTS != "" {
		meta[bus.MetaKeyThreadTS] = threadTS
	}
	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: senderID,
		ChatID:   channelID,
		Content:  text,
		Metadata: meta,
	})
	return true
}

// Send posts a result into the chat, threaded when the command was.
func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	channelID := strings.TrimSpace(msg.ChatID)
	if channelID == "" {
		return errors.New("slack send: missing chat id")
	}
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if ts, _ := msg.Metadata[bus.MetaKeyThreadTS].(string); ts != "" {
		opts = append(opts, slack.MsgOptionTS(ts))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channelID, opts...); err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}
