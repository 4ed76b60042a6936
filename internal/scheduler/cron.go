// Package scheduler provides the randomized timing layer: cron-period
// tasks that fire at a random instant inside each period, the daily
// multi-publish planner with its late-night insomnia check, and the
// background thinking loop.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TaskFunc is the unit of scheduled work. Errors are logged, never
// fatal to the scheduler.
type TaskFunc func(ctx context.Context) error

// RandomCronTask runs a task once per cron period at a uniformly random
// instant inside that period. Nothing persists across restarts; a
// restarted task simply waits for the next natural period boundary.
type RandomCronTask struct {
	name   string
	sched  cron.Schedule
	task   TaskFunc
	rng    *rand.Rand
	now    func() time.Time
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewRandomCronTask parses a standard 5-field cron expression and
// returns a task wrapper. The expression defines period boundaries; the
// actual run instant is drawn per period.
func NewRandomCronTask(name, cronExpr string, loc *time.Location, task TaskFunc, logger *zap.Logger) (*RandomCronTask, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cronExpr, err)
	}
	return &RandomCronTask{
		name:   name,
		sched:  sched,
		task:   task,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    func() time.Time { return time.Now().In(loc) },
		logger: logger,
	}, nil
}

// randomTarget computes the next period boundary after now and a random
// instant inside the period that follows it.
func randomTarget(sched cron.Schedule, now time.Time, rng *rand.Rand) (boundary, target time.Time) {
	boundary = sched.Next(now)
	period := sched.Next(boundary).Sub(boundary)
	delay := time.Duration(rng.Int63n(int64(period) + 1))
	return boundary, boundary.Add(delay)
}

// Start launches the period loop. Stop or cancel the context to halt.
func (t *RandomCronTask) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.loop(ctx)
	t.logger.Info("random cron task started", zap.String("task", t.name))
}

// Stop halts the loop. In-flight task runs finish on their own.
func (t *RandomCronTask) Stop() {
	if t.cancel != nil {
		t.cancel()
		t.logger.Info("random cron task stopped", zap.String("task", t.name))
	}
}

func (t *RandomCronTask) loop(ctx context.Context) {
	for {
		boundary, target := randomTarget(t.sched, t.now(), t.rng)
		t.logger.Info("next run scheduled",
			zap.String("task", t.name),
			zap.Time("period_start", boundary),
			zap.Time("run_at", target))

		if !t.sleepUntil(ctx, target) {
			return
		}
		if err := t.task(ctx); err != nil {
			t.logger.Warn("task run failed", zap.String("task", t.name), zap.Error(err))
		}
		// Re-arm from the end of this period.
		if !t.sleepUntil(ctx, t.sched.Next(boundary)) {
			return
		}
	}
}

// sleepUntil blocks until the target instant or context cancellation.
// Returns false when cancelled.
func (t *RandomCronTask) sleepUntil(ctx context.Context, target time.Time) bool {
	d := target.Sub(t.now())
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
