package experience

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
)

func newTestVerifier(t *testing.T) (*Verifier, *memory.Store) {
	t.Helper()
	store, err := memory.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	v := NewVerifier(store, zap.NewNop())
	v.now = func() time.Time { return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC) }
	return v, store
}

func TestVerifyAndRecordCleanExperience(t *testing.T) {
	v, store := newTestVerifier(t)

	ev, conflicts, err := v.VerifyAndRecord("milestone", "first gallery showing", "",
		map[string]string{"event_date": "2024-05", "duration_days": "14"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("conflicts: got %v, want none", conflicts)
	}
	if ev == nil || ev.Kind != "milestone" {
		t.Fatalf("event: got %+v", ev)
	}

	logged, err := store.EventsSince(conflictKind, time.Time{})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(logged) != 0 {
		t.Errorf("conflict log: got %d entries, want 0", len(logged))
	}
}

func TestVerifyFlagsFutureAndImplausibleDates(t *testing.T) {
	v, store := newTestVerifier(t)

	tests := []struct {
		name string
		meta map[string]string
		want int
	}{
		{"future date", map[string]string{"event_date": "2027-01-01"}, 1},
		{"planned future date", map[string]string{"event_date": "2027-01-01", "planned": "true"}, 0},
		{"garbage date", map[string]string{"event_date": "someday"}, 1},
		{"overlong duration", map[string]string{"event_date": "2020", "duration_days": "3000"}, 1},
		{"both wrong", map[string]string{"event_date": "2099", "duration_days": "oops"}, 2},
	}
	var wantLogged int
	for _, tt := range tests {
		_, conflicts, err := v.VerifyAndRecord("milestone", tt.name, "", tt.meta)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(conflicts) != tt.want {
			t.Errorf("%s: got %d conflicts %v, want %d", tt.name, len(conflicts), conflicts, tt.want)
		}
		wantLogged += tt.want
	}

	logged, err := store.EventsSince(conflictKind, time.Time{})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(logged) != wantLogged {
		t.Errorf("conflict log: got %d entries, want %d", len(logged), wantLogged)
	}
}

func TestCoherenceScoring(t *testing.T) {
	v, _ := newTestVerifier(t)

	// Three kinds spread over a few years, no conflicts: 0.7 + 0.1 + 0.1.
	for i, tc := range []struct{ kind, date string }{
		{"milestone", "2022-06"},
		{"achievement", "2024-01-15"},
		{"decision", "2025-11"},
	} {
		desc := fmt.Sprintf("experience %d", i)
		if _, conflicts, err := v.VerifyAndRecord(tc.kind, desc, "",
			map[string]string{"event_date": tc.date}); err != nil || len(conflicts) != 0 {
			t.Fatalf("record %d: %v %v", i, err, conflicts)
		}
	}

	report, err := v.Coherence(time.Time{})
	if err != nil {
		t.Fatalf("coherence: %v", err)
	}
	if report.TotalEvents != 3 || report.ConflictCount != 0 {
		t.Fatalf("counts: %+v", report)
	}
	if report.TimeSpanYears < 3 || report.TimeSpanYears > 4 {
		t.Errorf("span: got %v years", report.TimeSpanYears)
	}
	if report.Score < 0.899 || report.Score > 0.901 {
		t.Errorf("score: got %v, want ~0.9", report.Score)
	}
	if report.Assessment != "highly coherent" {
		t.Errorf("assessment: got %q", report.Assessment)
	}
	if report.HasIssues() {
		t.Error("clean log should have no issues")
	}
}

func TestCoherencePenalizesConflicts(t *testing.T) {
	v, _ := newTestVerifier(t)

	if _, _, err := v.VerifyAndRecord("milestone", "solid memory", "",
		map[string]string{"event_date": "2023-03"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Two future-dated claims, two conflicts on record.
	for i := 0; i < 2; i++ {
		desc := fmt.Sprintf("dubious claim %d", i)
		if _, conflicts, err := v.VerifyAndRecord("milestone", desc, "",
			map[string]string{"event_date": "2030"}); err != nil || len(conflicts) != 1 {
			t.Fatalf("record: %v %v", err, conflicts)
		}
	}

	report, err := v.Coherence(time.Time{})
	if err != nil {
		t.Fatalf("coherence: %v", err)
	}
	if report.ConflictCount != 2 {
		t.Errorf("conflicts: got %d, want 2", report.ConflictCount)
	}
	if !report.HasIssues() {
		t.Error("conflicted log should report issues")
	}
	// Span includes the 2030 claims: 0.7 + 0.1 span - 0.1 conflicts.
	if report.Score < 0.699 || report.Score > 0.701 {
		t.Errorf("score: got %v, want ~0.7", report.Score)
	}
}
