package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ThinkingConfig tunes the background thinking loop.
type ThinkingConfig struct {
	ThoughtInterval  time.Duration // idle thought generation
	ActivityInterval time.Duration // daily-activity record
	ReviewSpec       string        // cron line for the daily review
	Location         *time.Location
}

// ThinkingHooks are the callbacks the loop drives. Nil hooks are
// skipped.
type ThinkingHooks struct {
	Thought  TaskFunc
	Activity TaskFunc
	Review   TaskFunc
}

// ThinkingScheduler runs the persona's idle mind: a periodic thought,
// a periodic activity record, and a daily review in the evening.
type ThinkingScheduler struct {
	cfg    ThinkingConfig
	hooks  ThinkingHooks
	runner *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewThinkingScheduler(cfg ThinkingConfig, hooks ThinkingHooks, logger *zap.Logger) *ThinkingScheduler {
	if cfg.ThoughtInterval <= 0 {
		cfg.ThoughtInterval = 20 * time.Minute
	}
	if cfg.ActivityInterval <= 0 {
		cfg.ActivityInterval = 25 * time.Minute
	}
	if cfg.ReviewSpec == "" {
		cfg.ReviewSpec = "0 21 * * *"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &ThinkingScheduler{cfg: cfg, hooks: hooks, logger: logger}
}

// Start launches the thought and activity tickers and arms the daily
// review.
func (s *ThinkingScheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.runner = cron.New(cron.WithLocation(s.cfg.Location))
	if s.hooks.Review != nil {
		if _, err := s.runner.AddFunc(s.cfg.ReviewSpec, func() {
			s.run(ctx, "daily_review", s.hooks.Review)
		}); err != nil {
			return fmt.Errorf("arm daily review: %w", err)
		}
	}
	s.runner.Start()

	if s.hooks.Thought != nil {
		s.tick(ctx, "thought", s.cfg.ThoughtInterval, s.hooks.Thought)
	}
	if s.hooks.Activity != nil {
		s.tick(ctx, "activity", s.cfg.ActivityInterval, s.hooks.Activity)
	}

	s.logger.Info("thinking scheduler started",
		zap.Duration("thought_interval", s.cfg.ThoughtInterval),
		zap.Duration("activity_interval", s.cfg.ActivityInterval),
		zap.String("review_spec", s.cfg.ReviewSpec))
	return nil
}

// Stop halts the tickers and waits for in-flight hooks.
func (s *ThinkingScheduler) Stop() {
	if s.runner != nil {
		s.runner.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("thinking scheduler stopped")
}

func (s *ThinkingScheduler) tick(ctx context.Context, name string, every time.Duration, task TaskFunc) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(ctx, name, task)
			}
		}
	}()
}

func (s *ThinkingScheduler) run(ctx context.Context, name string, task TaskFunc) {
	if err := task(ctx); err != nil {
		s.logger.Warn("thinking hook failed", zap.String("hook", name), zap.Error(err))
		return
	}
	s.logger.Debug("thinking hook ran", zap.String("hook", name))
}
