// Package chat runs the persona's conversation pipeline: every inbound
// message is read for emotional tone, answered in character with
// recalled memories as context, recorded in working memory, and fed
// back into the psyche, relationship graph and profile updater.
package chat

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/archive"
	"github.com/nidhogg/eidolon/internal/command"
	"github.com/nidhogg/eidolon/internal/experience"
	"github.com/nidhogg/eidolon/internal/gateway"
	"github.com/nidhogg/eidolon/internal/imagegen"
	"github.com/nidhogg/eidolon/internal/memory"
	"github.com/nidhogg/eidolon/internal/profile"
	"github.com/nidhogg/eidolon/internal/provider"
	"github.com/nidhogg/eidolon/internal/psyche"
	"github.com/nidhogg/eidolon/internal/recall"
)

// PurposeChat is the provider routing purpose for conversation.
const PurposeChat = "chat"

// Chance of an emotion-triggered selfie when the trigger allows one.
const selfieChance = 0.25

// relationBoost is how much one conversation strengthens a tie.
const relationBoost = 0.05

// Persona is the character the pipeline speaks as.
type Persona struct {
	Name        string
	Description string
}

// sender is the slice of the gateway the pipeline replies through.
type sender interface {
	Send(ctx context.Context, msg *gateway.OutboundMessage) error
}

// Pipeline wires the conversation path. Optional collaborators may be
// nil; the pipeline skips what it doesn't have.
type Pipeline struct {
	persona   Persona
	providers *provider.Router
	store     *memory.Store
	drives    *psyche.Engine
	emotions  *psyche.History
	updater   *profile.Updater
	recaller  *recall.Recaller
	relations *experience.RelationGraph
	archive   *archive.Archive
	images    *imagegen.Client
	commands  *command.Registry
	evolution *psyche.Evolution
	gw        sender
	rng       *rand.Rand
	logger    *zap.Logger
}

// Options carries the optional collaborators.
type Options struct {
	Updater   *profile.Updater
	Recaller  *recall.Recaller
	Relations *experience.RelationGraph
	Archive   *archive.Archive
	Images    *imagegen.Client
	Commands  *command.Registry
	Evolution *psyche.Evolution
}

// New creates the pipeline. providers, store, drives and gw are
// required.
func New(persona Persona, providers *provider.Router, store *memory.Store,
	drives *psyche.Engine, gw sender, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		persona:   persona,
		providers: providers,
		store:     store,
		drives:    drives,
		emotions:  psyche.NewHistory(),
		updater:   opts.Updater,
		recaller:  opts.Recaller,
		relations: opts.Relations,
		archive:   opts.Archive,
		images:    opts.Images,
		commands:  opts.Commands,
		evolution: opts.Evolution,
		gw:        gw,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
	}
}

// Handle processes an inbound message end to end.
// Signature matches gateway.MessageHandler.
func (p *Pipeline) Handle(msg *gateway.InboundMessage) {
	ctx := context.Background()
	p.logger.Info("handling message",
		zap.String("platform", msg.Platform),
		zap.String("channel", msg.ChannelID),
		zap.String("user", msg.UserName),
	)

	if p.commands != nil && command.IsCommand(msg.Content) {
		p.handleCommand(ctx, msg)
		return
	}

	reply, images, err := p.Respond(ctx, msg)
	if err != nil {
		p.logger.Error("respond failed", zap.Error(err))
		p.sendReply(ctx, msg, "...sorry, I lost my train of thought. Say that again?", nil)
		return
	}
	p.sendReply(ctx, msg, reply, images)
}

// handleCommand dispatches a slash command and replies with its output.
func (p *Pipeline) handleCommand(ctx context.Context, msg *gateway.InboundMessage) {
	result, err := p.commands.Dispatch(ctx, msg.Content, &command.Context{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
	})
	if err != nil {
		p.logger.Error("command failed", zap.String("input", msg.Content), zap.Error(err))
		p.sendReply(ctx, msg, "That command fell apart on me, sorry.", nil)
		return
	}
	p.sendReply(ctx, msg, result.Content, nil)
}

// Respond produces the persona's reply and any attached image URLs.
func (p *Pipeline) Respond(ctx context.Context, msg *gateway.InboundMessage) (string, []string, error) {
	emotion, detected := psyche.Analyze(msg.Content)
	if detected {
		p.emotions.Add(emotion, time.Now())
	}
	if err := p.drives.Interact(); err != nil {
		p.logger.Warn("drive update failed", zap.Error(err))
	}

	var sessionID string
	if p.archive != nil {
		sid, err := p.archive.FindOrCreateSession(ctx, msg.Platform, msg.ChannelID, msg.UserID)
		if err != nil {
			p.logger.Error("find/create session failed", zap.Error(err))
		} else {
			sessionID = sid
			if err := p.archive.AppendMessage(ctx, sessionID, "user", msg.Content); err != nil {
				p.logger.Warn("archive user message failed", zap.Error(err))
			}
		}
	}

	req := &provider.ChatRequest{
		Messages: p.buildMessages(ctx, msg, emotion, detected, sessionID),
	}
	resp, err := p.providers.Route(ctx, PurposeChat, req)
	if err != nil {
		return "", nil, fmt.Errorf("chat completion: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)

	rec, err := p.store.Record(msg.UserID, msg.Content, reply, memory.RecordOptions{SessionID: sessionID})
	if err != nil {
		p.logger.Error("record memory failed", zap.Error(err))
	}
	if rec != nil && p.recaller != nil {
		if err := p.recaller.IndexRecord(ctx, rec); err != nil {
			p.logger.Warn("index memory failed", zap.Error(err))
		}
	}

	if sessionID != "" {
		if err := p.archive.AppendMessage(ctx, sessionID, "assistant", reply); err != nil {
			p.logger.Warn("archive reply failed", zap.Error(err))
		}
	}

	if p.evolution != nil {
		if err := p.evolution.RecordInteraction(reply); err != nil {
			p.logger.Warn("record trait manifestation failed", zap.Error(err))
		}
	}

	if p.relations != nil {
		summary := truncate(msg.Content, 80)
		if err := p.relations.RecordInteraction(ctx, msg.UserID, summary, relationBoost); err != nil {
			p.logger.Warn("record interaction failed", zap.Error(err))
		}
	}

	if p.updater != nil && detected {
		if _, err := p.updater.CheckAndUpdate(ctx, emotion, psyche.Intensity(emotion)); err != nil {
			p.logger.Warn("profile update failed", zap.Error(err))
		}
	}

	images := p.maybeSelfie(ctx, msg.Content, emotion, detected)
	return reply, images, nil
}

// buildMessages assembles the system prompt and conversation history.
func (p *Pipeline) buildMessages(ctx context.Context, msg *gateway.InboundMessage,
	emotion psyche.Emotion, detected bool, sessionID string) []provider.Message {

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are %s. %s\n", p.persona.Name, p.persona.Description)
	sys.WriteString("Stay in character. Reply the way a person chats, not an assistant.\n")

	if detected {
		fmt.Fprintf(&sys, "\nThe user sounds %s.", emotion)
		if trigger, ok := psyche.TriggerFor(emotion); ok && trigger.ResponseStyle != "" {
			fmt.Fprintf(&sys, " Respond in a %s tone.", trigger.ResponseStyle)
		}
		sys.WriteString("\n")
	}
	if trend := p.emotions.Trend(); trend != "" {
		fmt.Fprintf(&sys, "Their recent mood has been %s.\n", trend)
	}

	need := p.drives.CheckConnection()
	if need.Lonely {
		sys.WriteString("You have been missing company; let some warmth show.\n")
	}

	if p.evolution != nil {
		sum := p.evolution.Summary()
		if len(sum.Traits) > 0 {
			fmt.Fprintf(&sys, "Your current traits: %s.\n", strings.Join(sum.Traits, ", "))
		}
		if p.evolution.ShouldSurprise() {
			sys.WriteString("Break your usual pattern a little this time; do something unexpected but in character.\n")
			if err := p.evolution.RecordSurprise(); err != nil {
				p.logger.Warn("record surprise failed", zap.Error(err))
			}
		}
	}

	if p.recaller != nil {
		memories, err := p.recaller.Recall(ctx, msg.Content, 3)
		if err != nil {
			p.logger.Warn("recall failed", zap.Error(err))
		} else if len(memories) > 0 {
			sys.WriteString("\nThings you remember about this person:\n")
			for _, m := range memories {
				fmt.Fprintf(&sys, "- %s\n", m.Summary)
			}
		}
	}

	if core, err := p.store.CoreMemories(msg.UserID); err == nil && len(core) > 0 {
		sys.WriteString("\nMoments you will never forget:\n")
		for i, cm := range core {
			if i == 3 {
				break
			}
			fmt.Fprintf(&sys, "- %s\n", truncate(cm.Summary, 100))
		}
	}

	messages := []provider.Message{{Role: "system", Content: sys.String()}}

	if p.archive != nil && sessionID != "" {
		history, err := p.archive.RecentMessages(ctx, sessionID, 10)
		if err != nil {
			p.logger.Warn("load history failed", zap.Error(err))
		} else {
			turns := make([]provider.Message, 0, len(history))
			for _, h := range history {
				turns = append(turns, provider.Message{Role: h.Role, Content: h.Content})
			}
			messages = append(messages, p.compactHistory(ctx, turns)...)
		}
	}

	// The current message is already archived; only append it when it
	// isn't the last history entry.
	if n := len(messages); n == 1 || messages[n-1].Content != msg.Content {
		messages = append(messages, provider.Message{Role: "user", Content: msg.Content})
	}
	return messages
}

// maybeSelfie generates a selfie when the user asked for one or the
// detected emotion rolls one.
func (p *Pipeline) maybeSelfie(ctx context.Context, content string, emotion psyche.Emotion, detected bool) []string {
	if p.images == nil {
		return nil
	}
	wants := psyche.IsSelfieRequest(content)
	if !wants && detected {
		wants = psyche.ShouldSelfie(emotion, selfieChance, p.rng)
	}
	if !wants {
		return nil
	}

	url, err := p.images.Generate(ctx, psyche.SelfiePrompt(emotion, p.persona.Description))
	if err != nil {
		p.logger.Warn("selfie generation failed", zap.Error(err))
		return nil
	}
	return []string{url}
}

// sendReply sends a text reply back to the originating platform/channel.
func (p *Pipeline) sendReply(ctx context.Context, orig *gateway.InboundMessage, text string, images []string) {
	err := p.gw.Send(ctx, &gateway.OutboundMessage{
		Platform:  orig.Platform,
		ChannelID: orig.ChannelID,
		Content:   text,
		ReplyTo:   orig.ReplyTo,
		ImageURLs: images,
	})
	if err != nil {
		p.logger.Error("send reply failed", zap.Error(err))
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
