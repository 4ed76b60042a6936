package experience

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
)

func newTestTracker(t *testing.T) (*Tracker, *memory.Store) {
	t.Helper()
	store, err := memory.OpenMemory(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tr, err := NewTracker(store, zap.NewNop())
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	return tr, store
}

func TestNewSkillStartsAtOne(t *testing.T) {
	tr, _ := newTestTracker(t)
	if err := tr.UpdateSkill("watercolor", 0); err != nil {
		t.Fatalf("update: %v", err)
	}
	s, ok := tr.Skill("watercolor")
	if !ok || s.Level != 1 {
		t.Errorf("got %+v, %v; want level 1", s, ok)
	}
	if s.FirstLearned.IsZero() {
		t.Error("first_learned not set")
	}
}

func TestSkillJumpFlattened(t *testing.T) {
	tr, _ := newTestTracker(t)
	if err := tr.UpdateSkill("go", 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	// 2 -> 9 is implausible; it becomes 2+3.
	if err := tr.UpdateSkill("go", 9); err != nil {
		t.Fatalf("update: %v", err)
	}
	s, _ := tr.Skill("go")
	if s.Level != 5 {
		t.Errorf("level: got %d, want 5", s.Level)
	}
	if len(s.History) != 1 || s.History[0].From != 2 || s.History[0].To != 5 {
		t.Errorf("history: got %+v", s.History)
	}

	// Downward jumps flatten too.
	if err := tr.UpdateSkill("go", 0); err != nil { // level 0 means "just used"
		t.Fatalf("update: %v", err)
	}
	s, _ = tr.Skill("go")
	if s.Level != 5 {
		t.Errorf("level after use: got %d, want unchanged 5", s.Level)
	}
}

func TestSkillGradualChangeKept(t *testing.T) {
	tr, _ := newTestTracker(t)
	if err := tr.UpdateSkill("piano", 3); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tr.UpdateSkill("piano", 5); err != nil {
		t.Fatalf("update: %v", err)
	}
	s, _ := tr.Skill("piano")
	if s.Level != 5 {
		t.Errorf("level: got %d, want 5", s.Level)
	}
}

func TestInterestsDeduplicated(t *testing.T) {
	tr, _ := newTestTracker(t)
	for i := 0; i < 3; i++ {
		if err := tr.AddInterest("astronomy"); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if sum := tr.Summary(); sum.InterestCount != 1 {
		t.Errorf("interests: got %d, want 1", sum.InterestCount)
	}
}

func TestViewsRecorded(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.now = func() time.Time { return time.Now() }
	if err := tr.AddView("mornings are overrated"); err != nil {
		t.Fatalf("add view: %v", err)
	}
	if err := tr.AddView("tea beats coffee"); err != nil {
		t.Fatalf("add view: %v", err)
	}
	if sum := tr.Summary(); sum.ViewCount != 2 {
		t.Errorf("views: got %d, want 2", sum.ViewCount)
	}
}

func TestSummaryTopSkill(t *testing.T) {
	tr, _ := newTestTracker(t)
	if err := tr.UpdateSkill("cooking", 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tr.UpdateSkill("sketching", 4); err != nil {
		t.Fatalf("update: %v", err)
	}
	sum := tr.Summary()
	if sum.SkillCount != 2 {
		t.Errorf("skills: got %d", sum.SkillCount)
	}
	if len(sum.TopSkills) != 1 || sum.TopSkills[0] != "sketching" {
		t.Errorf("top skills: got %v", sum.TopSkills)
	}
}

func TestGrowthPersistsAcrossRestart(t *testing.T) {
	tr, store := newTestTracker(t)
	if err := tr.UpdateSkill("baking", 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := tr.AddInterest("orbital mechanics"); err != nil {
		t.Fatalf("interest: %v", err)
	}

	reloaded, err := NewTracker(store, zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s, ok := reloaded.Skill("baking"); !ok || s.Level != 2 {
		t.Errorf("skill not persisted: %+v, %v", s, ok)
	}
	if sum := reloaded.Summary(); sum.InterestCount != 1 {
		t.Errorf("interest not persisted: %+v", sum)
	}
}
