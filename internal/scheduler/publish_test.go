package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type publishRecorder struct {
	mu    sync.Mutex
	calls []bool // insomnia flag per call
}

func (r *publishRecorder) publish(_ context.Context, insomnia bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, insomnia)
	return nil
}

func (r *publishRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestPublisher(t *testing.T, cfg PublishConfig, rec *publishRecorder, at time.Time) *DailyPublisher {
	t.Helper()
	p, err := NewDailyPublisher(cfg, rec.publish, NewMemoryCounter(), zap.NewNop())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	p.rng = rand.New(rand.NewSource(42))
	p.now = func() time.Time { return at }
	return p
}

func TestPlanDayOnePerWindow(t *testing.T) {
	rec := &publishRecorder{}
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	p := newTestPublisher(t, PublishConfig{
		TimesPerDay: 2,
		Windows:     []string{"9-12", "14-18"},
		Location:    time.UTC,
	}, rec, now)

	targets := p.planDay(now)
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	for i, target := range targets {
		minute := target.Hour()*60 + target.Minute()
		if !p.windows[i].contains(minute) {
			t.Errorf("target %d (%v) outside window %d", i, target, i)
		}
		if !target.After(now) {
			t.Errorf("target %d (%v) not after now", i, target)
		}
	}
}

func TestPlanDayCyclesWindows(t *testing.T) {
	rec := &publishRecorder{}
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	p := newTestPublisher(t, PublishConfig{
		TimesPerDay: 5,
		Windows:     []string{"9-12", "14-18"},
		Location:    time.UTC,
	}, rec, now)

	targets := p.planDay(now)
	if len(targets) != 5 {
		t.Fatalf("got %d targets, want 5", len(targets))
	}
	for i, target := range targets {
		minute := target.Hour()*60 + target.Minute()
		w := p.windows[i%2]
		if !w.contains(minute) {
			t.Errorf("target %d (%v) outside cycled window", i, target)
		}
	}
}

func TestPlanDaySkipsPastSlots(t *testing.T) {
	rec := &publishRecorder{}
	// Midday: the morning window is already over.
	now := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)
	p := newTestPublisher(t, PublishConfig{
		TimesPerDay: 2,
		Windows:     []string{"9-12", "14-18"},
		Location:    time.UTC,
	}, rec, now)

	targets := p.planDay(now)
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1 (morning slot skipped)", len(targets))
	}
	if h := targets[0].Hour(); h < 14 || h >= 18 {
		t.Errorf("surviving target %v not in afternoon window", targets[0])
	}
}

func TestPublishOnceRespectsQuota(t *testing.T) {
	rec := &publishRecorder{}
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	p := newTestPublisher(t, PublishConfig{
		TimesPerDay: 2,
		Windows:     []string{"9-12"},
		Location:    time.UTC,
	}, rec, now)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p.publishOnce(ctx, false)
	}
	if got := rec.count(); got != 2 {
		t.Errorf("published %d times, want quota of 2", got)
	}
}

func TestInsomniaBypassesQuota(t *testing.T) {
	rec := &publishRecorder{}
	now := time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)
	p := newTestPublisher(t, PublishConfig{
		TimesPerDay:         1,
		Windows:             []string{"9-12"},
		InsomniaProbability: 1.0,
		Location:            time.UTC,
	}, rec, now)

	ctx := context.Background()
	p.publishOnce(ctx, false) // exhaust the quota
	p.checkInsomnia(ctx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 2 {
		t.Fatalf("got %d publishes, want 2", len(rec.calls))
	}
	if rec.calls[0] || !rec.calls[1] {
		t.Errorf("insomnia flags: got %v, want [false true]", rec.calls)
	}
}

func TestInsomniaOnlyLateNight(t *testing.T) {
	for _, tc := range []struct {
		hour, min int
		want      int
	}{
		{23, 0, 1},
		{23, 30, 1},
		{0, 30, 1},
		{1, 30, 1},
		{2, 0, 0},
		{12, 0, 0},
		{22, 30, 0},
	} {
		rec := &publishRecorder{}
		now := time.Date(2026, 5, 1, tc.hour, tc.min, 0, 0, time.UTC)
		p := newTestPublisher(t, PublishConfig{
			TimesPerDay:         1,
			Windows:             []string{"9-12"},
			InsomniaProbability: 1.0,
			Location:            time.UTC,
		}, rec, now)

		p.checkInsomnia(context.Background())
		if got := rec.count(); got != tc.want {
			t.Errorf("at %02d:%02d: got %d publishes, want %d", tc.hour, tc.min, got, tc.want)
		}
	}
}

func TestInsomniaZeroProbabilityNeverFires(t *testing.T) {
	rec := &publishRecorder{}
	now := time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)
	p := newTestPublisher(t, PublishConfig{
		TimesPerDay: 1,
		Windows:     []string{"9-12"},
		Location:    time.UTC,
	}, rec, now)

	for i := 0; i < 50; i++ {
		p.checkInsomnia(context.Background())
	}
	if got := rec.count(); got != 0 {
		t.Errorf("got %d publishes, want 0", got)
	}
}

func TestScheduleTodayPrunesOldTimers(t *testing.T) {
	rec := &publishRecorder{}
	day1 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	p := newTestPublisher(t, PublishConfig{
		TimesPerDay: 2,
		Windows:     []string{"9-12", "14-18"},
		Location:    time.UTC,
	}, rec, day1)

	ctx := context.Background()
	p.scheduleToday(ctx)
	p.mu.Lock()
	firstDay := len(p.timers)
	p.mu.Unlock()
	if firstDay != 2 {
		t.Fatalf("day 1 timers: got %d, want 2", firstDay)
	}

	// Same day again is a no-op.
	p.scheduleToday(ctx)
	p.mu.Lock()
	sameDay := len(p.timers)
	p.mu.Unlock()
	if sameDay != firstDay {
		t.Errorf("replan same day: got %d timers, want %d", sameDay, firstDay)
	}

	day2 := day1.AddDate(0, 0, 1)
	p.now = func() time.Time { return day2 }
	p.scheduleToday(ctx)
	p.mu.Lock()
	nextDay := len(p.timers)
	p.mu.Unlock()
	if nextDay != 2 {
		t.Errorf("day 2 timers: got %d, want 2 (old timers pruned)", nextDay)
	}
	p.Stop()
}

func TestNewDailyPublisherRejectsBadWindow(t *testing.T) {
	_, err := NewDailyPublisher(PublishConfig{
		Windows: []string{"18-9"},
	}, func(context.Context, bool) error { return nil }, nil, zap.NewNop())
	if err == nil {
		t.Fatal("want error for inverted window")
	}
}

func TestMemoryCounterPerDay(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()
	if _, err := c.Incr(ctx, "2026-05-01"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if _, err := c.Incr(ctx, "2026-05-01"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	n, err := c.Get(ctx, "2026-05-01")
	if err != nil || n != 2 {
		t.Errorf("get: got %d, %v; want 2", n, err)
	}
	n, err = c.Get(ctx, "2026-05-02")
	if err != nil || n != 0 {
		t.Errorf("next day: got %d, %v; want 0", n, err)
	}
}
