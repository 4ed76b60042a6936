package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FeedRecord tracks a published post for history.
type FeedRecord struct {
	Post    *FeedPost `json:"post"`
	SentAt  time.Time `json:"sent_at"`
	Targets []string  `json:"targets"`
}

// Feed publishes the persona's posts through the gateway and keeps a
// short history of what went out.
type Feed struct {
	gateway *Gateway
	history []FeedRecord
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewFeed creates a feed backed by the given gateway.
func NewFeed(gw *Gateway, logger *zap.Logger) *Feed {
	return &Feed{
		gateway: gw,
		logger:  logger,
	}
}

// Publish sends a post to all or selected platforms via the gateway.
func (f *Feed) Publish(ctx context.Context, post *FeedPost) error {
	if post.Kind == "" {
		return fmt.Errorf("post kind is required")
	}

	f.logger.Info("publishing feed post",
		zap.String("kind", string(post.Kind)),
		zap.Int("images", len(post.ImageURLs)),
	)

	if err := f.gateway.Publish(ctx, post); err != nil {
		return err
	}

	targets := post.Platforms
	if len(targets) == 0 {
		targets = f.gateway.Platforms()
	}

	f.mu.Lock()
	f.history = append(f.history, FeedRecord{
		Post:    post,
		SentAt:  time.Now(),
		Targets: targets,
	})
	if len(f.history) > 100 {
		f.history = f.history[len(f.history)-100:]
	}
	f.mu.Unlock()

	return nil
}

// History returns recent feed records.
func (f *Feed) History(limit int) []FeedRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.history) {
		limit = len(f.history)
	}
	start := len(f.history) - limit
	out := make([]FeedRecord, limit)
	copy(out, f.history[start:])
	return out
}
