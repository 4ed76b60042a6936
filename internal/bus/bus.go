// Package bus carries feed events between the persona's components
// over Redis Streams, and keeps the shared daily publish counter.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	feedStream      = "eidolon:feed"
	publishCountKey = "eidolon:publish:"
	publishCountTTL = 48 * time.Hour
	subscribeBlock  = 2 * time.Second
)

// FeedEvent is one thing the persona did on its feed.
type FeedEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "post", "comment", "insomnia_post", "profile_update"
	UserID    string    `json:"user_id,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus is the Redis-backed event stream plus the daily publish
// counter used by the scheduler.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Publish appends an event to the feed stream.
func (b *Bus) Publish(ctx context.Context, ev *FeedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: feedStream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", feedStream, err)
	}

	b.logger.Debug("feed event published",
		zap.String("kind", ev.Kind),
		zap.String("id", ev.ID))
	return nil
}

// Subscribe emits feed events as they arrive. Cancel the context to
// stop; the channel closes on exit.
func (b *Bus) Subscribe(ctx context.Context) <-chan *FeedEvent {
	ch := make(chan *FeedEvent, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{feedStream, lastID},
				Count:   10,
				Block:   subscribeBlock,
			}).Result()
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev FeedEvent
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}

// Get returns the publish count for a day ("2006-01-02").
// Implements scheduler.Counter so multiple instances share one quota.
func (b *Bus) Get(ctx context.Context, day string) (int, error) {
	n, err := b.rdb.Get(ctx, publishCountKey+day).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get publish count: %w", err)
	}
	return n, nil
}

// Incr bumps the publish count for a day. The key expires on its own
// so stale days don't accumulate.
func (b *Bus) Incr(ctx context.Context, day string) (int, error) {
	key := publishCountKey + day
	n, err := b.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr publish count: %w", err)
	}
	if n == 1 {
		b.rdb.Expire(ctx, key, publishCountTTL)
	}
	return int(n), nil
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
