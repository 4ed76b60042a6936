package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PublishFunc performs one post. insomnia marks the late-night extra
// post that bypasses the daily quota.
type PublishFunc func(ctx context.Context, insomnia bool) error

// Counter tracks posts per calendar day. Keys are "2006-01-02" day
// strings so a new day starts at zero without an explicit reset.
type Counter interface {
	Get(ctx context.Context, day string) (int, error)
	Incr(ctx context.Context, day string) (int, error)
}

// MemoryCounter is an in-process Counter, used when Redis is not
// configured and in tests.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int)}
}

func (c *MemoryCounter) Get(_ context.Context, day string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[day], nil
}

func (c *MemoryCounter) Incr(_ context.Context, day string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[day]++
	return c.counts[day], nil
}

// PublishConfig tunes the daily publisher.
type PublishConfig struct {
	TimesPerDay         int
	Windows             []string // "9-12" hour ranges or "20:00-20:20" clock ranges
	InsomniaProbability float64
	Location            *time.Location
}

// DailyPublisher spreads a configured number of posts across the day's
// time windows, picking one random instant per window, plus a
// half-hourly insomnia check active between 23:00 and 02:00.
type DailyPublisher struct {
	cfg     PublishConfig
	windows []window
	publish PublishFunc
	counter Counter

	rng *rand.Rand
	now func() time.Time

	runner *cron.Cron

	mu      sync.Mutex
	timers  []*time.Timer
	planned string // day already planned, "2006-01-02"

	logger *zap.Logger
}

// NewDailyPublisher validates the window list and returns a publisher.
func NewDailyPublisher(cfg PublishConfig, publish PublishFunc, counter Counter, logger *zap.Logger) (*DailyPublisher, error) {
	if cfg.TimesPerDay <= 0 {
		cfg.TimesPerDay = 1
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = []string{"9-12", "14-18", "19-22"}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if counter == nil {
		counter = NewMemoryCounter()
	}

	windows := make([]window, 0, len(cfg.Windows))
	for _, s := range cfg.Windows {
		w, err := parseWindow(s)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}

	loc := cfg.Location
	return &DailyPublisher{
		cfg:     cfg,
		windows: windows,
		publish: publish,
		counter: counter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     func() time.Time { return time.Now().In(loc) },
		logger:  logger,
	}, nil
}

// Start plans today's posts and arms the daily reset and insomnia
// checks. Cancel the context or call Stop to halt.
func (p *DailyPublisher) Start(ctx context.Context) error {
	p.scheduleToday(ctx)

	p.runner = cron.New(cron.WithLocation(p.cfg.Location))
	if _, err := p.runner.AddFunc("0 0 * * *", func() {
		p.mu.Lock()
		p.planned = ""
		p.mu.Unlock()
		p.logger.Info("new day, publish counter reset")
		p.scheduleToday(ctx)
	}); err != nil {
		return fmt.Errorf("arm daily reset: %w", err)
	}
	if _, err := p.runner.AddFunc("*/30 * * * *", func() {
		p.checkInsomnia(ctx)
	}); err != nil {
		return fmt.Errorf("arm insomnia check: %w", err)
	}
	p.runner.Start()

	p.logger.Info("daily publisher started",
		zap.Int("times_per_day", p.cfg.TimesPerDay),
		zap.Strings("windows", p.cfg.Windows))
	return nil
}

// Stop cancels all pending one-shot jobs and the cron runner.
func (p *DailyPublisher) Stop() {
	if p.runner != nil {
		p.runner.Stop()
	}
	p.mu.Lock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	p.mu.Unlock()
	p.logger.Info("daily publisher stopped")
}

// planDay picks one random instant per window, cycling windows when
// TimesPerDay exceeds the window count. Instants already in the past
// are dropped, not rescheduled.
func (p *DailyPublisher) planDay(now time.Time) []time.Time {
	var targets []time.Time
	for i := 0; i < p.cfg.TimesPerDay; i++ {
		w := p.windows[i%len(p.windows)]
		target := atMinute(now, w.randomMinute(p.rng))
		if !target.After(now) {
			p.logger.Info("slot already passed, skipping",
				zap.Time("target", target))
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

// scheduleToday arms one-shot timers for the rest of today. Calling it
// twice on the same day is a no-op.
func (p *DailyPublisher) scheduleToday(ctx context.Context) {
	now := p.now()
	day := now.Format("2006-01-02")

	p.mu.Lock()
	if p.planned == day {
		p.mu.Unlock()
		return
	}
	p.planned = day
	// Yesterday's timers have all fired; drop them so the slice does
	// not grow across days.
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = p.timers[:0]
	p.mu.Unlock()

	for i, target := range p.planDay(now) {
		target := target
		timer := time.AfterFunc(target.Sub(now), func() {
			p.publishOnce(ctx, false)
		})
		p.mu.Lock()
		p.timers = append(p.timers, timer)
		p.mu.Unlock()
		p.logger.Info("post scheduled",
			zap.Int("slot", i+1),
			zap.Time("at", target))
	}
}

// checkInsomnia fires an extra post with the configured probability,
// only between 23:00 and 02:00. Insomnia posts bypass the daily quota.
func (p *DailyPublisher) checkInsomnia(ctx context.Context) {
	now := p.now()
	if now.Hour() < 23 && now.Hour() >= 2 {
		return
	}
	if p.rng.Float64() >= p.cfg.InsomniaProbability {
		return
	}
	p.logger.Info("insomnia triggered", zap.Time("at", now))
	p.publishOnce(ctx, true)
}

// TriggerNow publishes immediately, counted against the daily quota.
func (p *DailyPublisher) TriggerNow(ctx context.Context) {
	p.publishOnce(ctx, false)
}

func (p *DailyPublisher) publishOnce(ctx context.Context, insomnia bool) {
	day := p.now().Format("2006-01-02")

	if !insomnia {
		n, err := p.counter.Get(ctx, day)
		if err != nil {
			p.logger.Warn("publish counter unavailable", zap.Error(err))
		} else if n >= p.cfg.TimesPerDay {
			p.logger.Info("daily publish quota reached, skipping",
				zap.Int("count", n))
			return
		}
		if _, err := p.counter.Incr(ctx, day); err != nil {
			p.logger.Warn("publish counter increment failed", zap.Error(err))
		}
	}

	if err := p.publish(ctx, insomnia); err != nil {
		p.logger.Warn("publish failed",
			zap.Bool("insomnia", insomnia),
			zap.Error(err))
		return
	}
	p.logger.Info("post published", zap.Bool("insomnia", insomnia))
}
