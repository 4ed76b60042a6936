package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter implements Adapter for Discord using the bot gateway.
// The persona's feed posts go to the configured home channel; when a
// home channel is not set they go to the first writable text channel
// of each guild.
type DiscordAdapter struct {
	token       string
	homeChannel string
	session     *discordgo.Session
	handler     MessageHandler
	connected   bool
	connectedAt time.Time
	lastError   string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewDiscordAdapter creates a Discord gateway adapter. homeChannel is
// the channel ID the persona posts its feed to; empty means every
// guild's first text channel.
func NewDiscordAdapter(token, homeChannel string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:       token,
		homeChannel: homeChannel,
		logger:      logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) OnMessage(h MessageHandler) { a.handler = h }

// Connect opens the Discord gateway websocket and verifies guild membership.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("session create: %v", err)
		a.mu.Unlock()
		return fmt.Errorf("discord session: %w", err)
	}
	a.session = session

	a.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	a.session.AddHandler(a.onMessageCreate)

	if err := a.session.Open(); err != nil {
		a.mu.Lock()
		a.lastError = fmt.Sprintf("open failed: %v", err)
		a.connected = false
		a.mu.Unlock()
		return fmt.Errorf("discord open: %w", err)
	}

	now := time.Now()
	a.mu.Lock()
	a.connected = true
	a.connectedAt = now
	a.lastError = ""
	a.mu.Unlock()

	guildCount := len(a.session.State.Guilds)
	if guildCount == 0 {
		a.logger.Warn("discord bot not added to any server — invite it first")
	}

	a.logger.Info("discord adapter connected",
		zap.String("user", a.session.State.User.Username),
		zap.Int("guilds", guildCount))
	return nil
}

// onMessageCreate handles incoming Discord messages.
func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore messages from the bot itself
	if m.Author.ID == s.State.User.ID {
		return
	}
	if a.handler == nil {
		return
	}

	a.handler(&InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		ReplyTo:   m.ChannelID,
	})
}

// Send posts a reply to a Discord channel.
func (a *DiscordAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	content := msg.Content
	for _, u := range msg.ImageURLs {
		content += "\n" + u
	}
	if _, err := a.session.ChannelMessageSend(msg.ChannelID, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Publish posts a feed post to the home channel, or to the first
// writable text channel of each guild when none is configured.
func (a *DiscordAdapter) Publish(_ context.Context, post *FeedPost) error {
	content := post.Content
	for _, u := range post.ImageURLs {
		content += "\n" + u
	}

	if a.homeChannel != "" {
		if _, err := a.session.ChannelMessageSend(a.homeChannel, content); err != nil {
			return fmt.Errorf("discord publish: %w", err)
		}
		return nil
	}

	for _, guild := range a.session.State.Guilds {
		channels, err := a.session.GuildChannels(guild.ID)
		if err != nil {
			a.logger.Warn("discord list channels failed",
				zap.String("guild", guild.ID), zap.Error(err))
			continue
		}
		for _, ch := range channels {
			if ch.Type == discordgo.ChannelTypeGuildText {
				if _, err := a.session.ChannelMessageSend(ch.ID, content); err == nil {
					break
				}
			}
		}
	}
	return nil
}

// SetNickname renames the bot member in every guild.
func (a *DiscordAdapter) SetNickname(_ context.Context, nickname string) error {
	var errs []error
	for _, guild := range a.session.State.Guilds {
		if err := a.session.GuildMemberNickname(guild.ID, "@me", nickname); err != nil {
			a.logger.Warn("discord nickname failed",
				zap.String("guild", guild.ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("discord nickname failed in %d guild(s)", len(errs))
	}
	return nil
}

// SetSignature shows the signature as the bot's custom status.
func (a *DiscordAdapter) SetSignature(_ context.Context, signature string) error {
	if err := a.session.UpdateCustomStatus(signature); err != nil {
		return fmt.Errorf("discord status: %w", err)
	}
	return nil
}

// SetAvatar downloads the image and uploads it as the bot's avatar.
func (a *DiscordAdapter) SetAvatar(ctx context.Context, imageURL string) error {
	dataURI, err := fetchImageDataURI(ctx, imageURL)
	if err != nil {
		return fmt.Errorf("discord avatar: %w", err)
	}
	if _, err := a.session.UserUpdate("", dataURI, ""); err != nil {
		return fmt.Errorf("discord avatar: %w", err)
	}
	return nil
}

// fetchImageDataURI downloads an image and encodes it as the data URI
// the Discord API expects for avatar uploads.
func fetchImageDataURI(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType,
		base64.StdEncoding.EncodeToString(data)), nil
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}
