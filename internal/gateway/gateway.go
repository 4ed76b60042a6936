// Package gateway connects the persona to chat platforms. Each
// platform has an adapter that normalizes inbound messages, carries
// replies back, and publishes the persona's feed posts. Adapters that
// can change the persona's displayed profile also implement
// ProfileSetter.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Gateway manages all platform adapters and routes messages.
type Gateway struct {
	adapters map[string]Adapter
	handler  MessageHandler
	mu       sync.RWMutex
	logger   *zap.Logger
}

// New creates a gateway manager.
func New(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// SetHandler sets the callback for all inbound messages.
func (g *Gateway) SetHandler(h MessageHandler) {
	g.handler = h
}

// Register adds an adapter and wires its message handler.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()

	platform := adapter.Platform()
	g.adapters[platform] = adapter
	adapter.OnMessage(func(msg *InboundMessage) {
		if g.handler != nil {
			g.handler(msg)
		}
	})
	g.logger.Info("registered gateway adapter", zap.String("platform", platform))
}

// ConnectAll starts all registered adapters.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return nil
}

// Send sends a message to a specific platform channel.
func (g *Gateway) Send(ctx context.Context, msg *OutboundMessage) error {
	g.mu.RLock()
	adapter, ok := g.adapters[msg.Platform]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no adapter for platform: %s", msg.Platform)
	}
	return adapter.Send(ctx, msg)
}

// Publish posts to all matching platform adapters.
func (g *Gateway) Publish(ctx context.Context, post *FeedPost) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	targets := g.adapters
	if len(post.Platforms) > 0 {
		targets = make(map[string]Adapter)
		for _, p := range post.Platforms {
			if a, ok := g.adapters[p]; ok {
				targets[p] = a
			}
		}
	}

	var errs []error
	for platform, adapter := range targets {
		if err := adapter.Publish(ctx, post); err != nil {
			g.logger.Error("publish failed",
				zap.String("platform", platform), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish failed on %d platform(s)", len(errs))
	}
	return nil
}

// SetNickname applies the nickname on every adapter that supports it.
func (g *Gateway) SetNickname(ctx context.Context, nickname string) error {
	return g.eachSetter(ctx, "nickname", func(ctx context.Context, s ProfileSetter) error {
		return s.SetNickname(ctx, nickname)
	})
}

// SetSignature applies the signature on every adapter that supports it.
func (g *Gateway) SetSignature(ctx context.Context, signature string) error {
	return g.eachSetter(ctx, "signature", func(ctx context.Context, s ProfileSetter) error {
		return s.SetSignature(ctx, signature)
	})
}

// SetAvatar applies the avatar on every adapter that supports it.
func (g *Gateway) SetAvatar(ctx context.Context, imageURL string) error {
	return g.eachSetter(ctx, "avatar", func(ctx context.Context, s ProfileSetter) error {
		return s.SetAvatar(ctx, imageURL)
	})
}

func (g *Gateway) eachSetter(ctx context.Context, field string, apply func(context.Context, ProfileSetter) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for platform, adapter := range g.adapters {
		setter, ok := adapter.(ProfileSetter)
		if !ok {
			continue
		}
		if err := apply(ctx, setter); err != nil {
			g.logger.Warn("profile update failed",
				zap.String("platform", platform),
				zap.String("field", field), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("set %s failed on %d platform(s)", field, len(errs))
	}
	return nil
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Platforms returns the list of registered platform names.
func (g *Gateway) Platforms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	return names
}
