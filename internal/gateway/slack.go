package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// SlackAdapter implements Adapter for Slack using Socket Mode. The
// persona's display name and icon ride on each message, so profile
// changes apply without touching the bot user itself.
type SlackAdapter struct {
	botToken    string
	appToken    string
	homeChannel string
	client      *slack.Client
	socket      *socketmode.Client
	handler     MessageHandler
	displayName string
	iconURL     string
	threads     map[string]string // channelID:userID -> thread_ts for conversation continuity
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack gateway adapter.
// botToken is the Bot User OAuth Token (xoxb-...).
// appToken is the App-Level Token (xapp-...) for Socket Mode.
// homeChannel is where the persona posts its feed.
func NewSlackAdapter(botToken, appToken, homeChannel, displayName string, logger *zap.Logger) *SlackAdapter {
	client := slack.New(botToken,
		slack.OptionAppLevelToken(appToken),
	)

	socket := socketmode.New(client,
		socketmode.OptionLog(zap.NewStdLog(logger)),
	)

	return &SlackAdapter{
		botToken:    botToken,
		appToken:    appToken,
		homeChannel: homeChannel,
		client:      client,
		socket:      socket,
		displayName: displayName,
		threads:     make(map[string]string),
		logger:      logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

func (a *SlackAdapter) OnMessage(h MessageHandler) { a.handler = h }

// Connect starts the Socket Mode event loop in a background goroutine.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	go a.handleEvents(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil {
			a.logger.Error("slack socket mode error", zap.Error(err))
		}
	}()
	a.logger.Info("slack adapter connected via socket mode")
	return nil
}

// handleEvents processes incoming Socket Mode events.
func (a *SlackAdapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.processEvent(evt)
		}
	}
}

func (a *SlackAdapter) processEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		a.socket.Ack(*evt.Request)

		if eventsAPI.Type == slackevents.CallbackEvent {
			switch inner := eventsAPI.InnerEvent.Data.(type) {
			case *slackevents.MessageEvent:
				// Ignore bot messages to avoid loops
				if inner.BotID != "" {
					return
				}
				a.handleSlackMessage(inner)
			}
		}
	}
}

func (a *SlackAdapter) handleSlackMessage(ev *slackevents.MessageEvent) {
	if a.handler == nil {
		return
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	key := fmt.Sprintf("%s:%s", ev.Channel, ev.User)
	a.mu.Lock()
	a.threads[key] = threadTS
	a.mu.Unlock()

	a.handler(&InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		UserID:    ev.User,
		UserName:  ev.User,
		Content:   ev.Text,
		Timestamp: time.Now(),
		ReplyTo:   threadTS,
	})
}

// Send posts a reply to a Slack channel with persona styling.
func (a *SlackAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(a.withImages(msg.Content, msg.ImageURLs), false),
	}

	// Thread reply if we have a tracked thread
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}

	opts = append(opts, a.personaOpts()...)

	_, _, err := a.client.PostMessage(msg.ChannelID, opts...)
	if err != nil {
		a.logger.Error("slack send failed",
			zap.String("channel", msg.ChannelID), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// Publish posts a feed post to the home channel, or to every channel
// the bot is a member of when none is configured.
func (a *SlackAdapter) Publish(_ context.Context, post *FeedPost) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(a.withImages(post.Content, post.ImageURLs), false),
	}
	opts = append(opts, a.personaOpts()...)

	if a.homeChannel != "" {
		if _, _, err := a.client.PostMessage(a.homeChannel, opts...); err != nil {
			return fmt.Errorf("slack publish: %w", err)
		}
		return nil
	}

	params := &slack.GetConversationsForUserParameters{
		Types: []string{"public_channel", "private_channel"},
		Limit: 200,
	}
	channels, _, err := a.client.GetConversationsForUser(params)
	if err != nil {
		return fmt.Errorf("slack list channels: %w", err)
	}

	for _, ch := range channels {
		if _, _, err := a.client.PostMessage(ch.ID, opts...); err != nil {
			a.logger.Warn("slack publish to channel failed",
				zap.String("channel", ch.ID), zap.Error(err))
		}
	}
	return nil
}

// SetNickname changes the display name used on outgoing messages.
func (a *SlackAdapter) SetNickname(_ context.Context, nickname string) error {
	a.mu.Lock()
	a.displayName = nickname
	a.mu.Unlock()
	return nil
}

// SetSignature shows the signature as the bot user's custom status.
func (a *SlackAdapter) SetSignature(ctx context.Context, signature string) error {
	if err := a.client.SetUserCustomStatusContext(ctx, signature, "", 0); err != nil {
		return fmt.Errorf("slack status: %w", err)
	}
	return nil
}

// SetAvatar changes the icon used on outgoing messages.
func (a *SlackAdapter) SetAvatar(_ context.Context, imageURL string) error {
	a.mu.Lock()
	a.iconURL = imageURL
	a.mu.Unlock()
	return nil
}

// personaOpts builds Slack message options for persona display.
func (a *SlackAdapter) personaOpts() []slack.MsgOption {
	a.mu.RLock()
	name, icon := a.displayName, a.iconURL
	a.mu.RUnlock()

	var opts []slack.MsgOption
	if name != "" {
		opts = append(opts, slack.MsgOptionUsername(name))
	}
	if icon != "" {
		opts = append(opts, slack.MsgOptionIconURL(icon))
	}
	return opts
}

func (a *SlackAdapter) withImages(content string, urls []string) string {
	for _, u := range urls {
		content += "\n" + u
	}
	return content
}

// Close is a no-op; the socket context cancellation handles shutdown.
func (a *SlackAdapter) Close() error {
	return nil
}
