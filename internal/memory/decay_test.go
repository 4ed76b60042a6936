package memory

import (
	"context"
	"testing"
	"time"
)

func recordAt(t *testing.T, s *Store, userID string, importance float64, age time.Duration, now time.Time) *ConversationRecord {
	t.Helper()
	imp := importance
	rec, err := s.Record(userID, "an old conversation", "a reply", RecordOptions{
		Importance: &imp,
		Now:        now.Add(-age),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return rec
}

func TestSweepInvariant(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	ctx := context.Background()

	days := func(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

	recordAt(t, s, "u", 0.3, days(10), now)  // young: untouched
	recordAt(t, s, "u", 0.9, days(200), now) // old but important: untouched
	recordAt(t, s, "u", 0.3, days(60), now)  // old and unimportant: decays, kept
	recordAt(t, s, "u", 0.2, days(150), now) // far past the window: archived

	res, err := s.Sweep(ctx, SweepOptions{ThresholdDays: 30, Now: now})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Archived != 1 {
		t.Errorf("archived: got %d, want 1", res.Archived)
	}
	if res.Kept != 3 {
		t.Errorf("kept: got %d, want 3", res.Kept)
	}
	if res.Decayed != 2 {
		t.Errorf("decayed: got %d, want 2", res.Decayed)
	}

	// No retained record may violate the decay invariant.
	rows, err := s.ImportantMemories(QueryOptions{Threshold: 0, Limit: 100})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d live records, want 3", len(rows))
	}
	for _, rec := range rows {
		ageDays := now.Sub(rec.CreatedAt).Hours() / 24
		if ageDays > 30 && rec.Importance < 0.4 && rec.DecayFactor < 0.1 {
			t.Errorf("record %s violates decay invariant: age=%.0f importance=%v decay=%v",
				rec.ID, ageDays, rec.Importance, rec.DecayFactor)
		}
	}
}

func TestSweepDecayFactorValue(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	rec := recordAt(t, s, "u", 0.3, 60*24*time.Hour, now)
	if _, err := s.Sweep(context.Background(), SweepOptions{ThresholdDays: 30, Now: now}); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// age 60d, threshold 30d: factor = 1 - 30/90.
	want := 1 - 30.0/90.0
	if got.DecayFactor < want-0.01 || got.DecayFactor > want+0.01 {
		t.Errorf("decay factor: got %v, want %v", got.DecayFactor, want)
	}
}

func TestSweepArchivesToLog(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	rec := recordAt(t, s, "u", 0.2, 200*24*time.Hour, now)
	if _, err := s.Sweep(context.Background(), SweepOptions{ThresholdDays: 30, Now: now}); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := s.Get(rec.ID); err != ErrNotFound {
		t.Errorf("archived record still live: %v", err)
	}
	archived, err := s.Archive(10)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("got %d archived, want 1", len(archived))
	}
	if archived[0].SourceID != rec.ID {
		t.Errorf("source: got %q, want %q", archived[0].SourceID, rec.ID)
	}
	if archived[0].Reason != "low_importance_timeout" {
		t.Errorf("reason: got %q", archived[0].Reason)
	}
}

func TestSweepReinforcementExtendsGrace(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	// Both records are 130 days old with low importance. Unreinforced
	// this means factor = 1 - 100/90 < 0.1, i.e. archived. Two manual
	// recalls (0.9 each) buy back 18 days: factor = 1 - 82/90 ≈ 0.089,
	// still archived; four recalls buy 36 → capped at 30: 1 - 70/90 ≈
	// 0.22, kept.
	doomed := recordAt(t, s, "u", 0.2, 130*24*time.Hour, now)
	saved := recordAt(t, s, "u", 0.2, 130*24*time.Hour, now)
	for i := 0; i < 4; i++ {
		if _, err := s.Reinforce(saved.ID, ReinforceManualRecall); err != nil {
			t.Fatalf("reinforce: %v", err)
		}
	}

	if _, err := s.Sweep(context.Background(), SweepOptions{ThresholdDays: 30, Now: now}); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := s.Get(doomed.ID); err != ErrNotFound {
		t.Errorf("unreinforced record survived: %v", err)
	}
	got, err := s.Get(saved.ID)
	if err != nil {
		t.Fatalf("reinforced record was archived: %v", err)
	}
	if got.DecayFactor < 0.1 {
		t.Errorf("decay factor: got %v, want >= 0.1", got.DecayFactor)
	}
}

func TestSweepEmptyStore(t *testing.T) {
	s := newTestStore(t)
	res, err := s.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Decayed != 0 || res.Kept != 0 || res.Archived != 0 {
		t.Errorf("got %+v, want zeroes", res)
	}
}
