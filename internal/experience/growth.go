// Package experience accumulates the persona's lived history: skills
// and interests that grow over time, opinions formed, and the social
// graph of people it knows.
package experience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
)

const growthStateKey = "experience.growth"

// A skill may not jump more than this many levels at once; bigger
// jumps are flattened so growth stays believable.
const maxLevelJump = 3

// viewSpacing is the shortest believable gap between newly formed
// opinions.
const viewSpacing = 7 * 24 * time.Hour

type stateStore interface {
	SaveState(key string, value any) error
	LoadState(key string, out any) error
}

// Skill is one learnable ability with a growth history.
type Skill struct {
	Level        int           `json:"level"`
	FirstLearned time.Time     `json:"first_learned"`
	LastUsed     time.Time     `json:"last_used"`
	History      []LevelChange `json:"history,omitempty"`
}

type LevelChange struct {
	From int       `json:"from"`
	To   int       `json:"to"`
	At   time.Time `json:"at"`
}

type Interest struct {
	Name         string    `json:"name"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

type View struct {
	Text     string    `json:"text"`
	FormedAt time.Time `json:"formed_at"`
}

type growthState struct {
	Skills    map[string]Skill `json:"skills"`
	Interests []Interest       `json:"interests,omitempty"`
	Views     []View           `json:"views,omitempty"`
	UpdatedAt time.Time        `json:"updated_at,omitzero"`
}

// GrowthSummary is the aggregate view handed to the API and the
// daily review.
type GrowthSummary struct {
	SkillCount    int            `json:"skill_count"`
	InterestCount int            `json:"interest_count"`
	ViewCount     int            `json:"view_count"`
	TopSkills     []string       `json:"top_skills,omitempty"`
	Levels        map[string]int `json:"levels,omitempty"`
}

// Tracker records growth, smoothing out implausible jumps.
type Tracker struct {
	mu     sync.Mutex
	store  stateStore
	state  growthState
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker loads persisted growth state.
func NewTracker(store stateStore, logger *zap.Logger) (*Tracker, error) {
	t := &Tracker{store: store, now: time.Now, logger: logger}
	err := store.LoadState(growthStateKey, &t.state)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return nil, fmt.Errorf("load growth state: %w", err)
	}
	if t.state.Skills == nil {
		t.state.Skills = make(map[string]Skill)
	}
	return t, nil
}

// UpdateSkill sets a skill's level, clamping the change to at most
// maxLevelJump in either direction. New skills start at level 1 when
// no level is given.
func (t *Tracker) UpdateSkill(name string, level int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	skill, exists := t.state.Skills[name]
	if !exists {
		if level <= 0 {
			level = 1
		}
		t.state.Skills[name] = Skill{Level: level, FirstLearned: now, LastUsed: now}
		t.logger.Info("new skill learned", zap.String("skill", name), zap.Int("level", level))
		return t.save()
	}

	if level > 0 && level != skill.Level {
		if jump := level - skill.Level; jump > maxLevelJump {
			t.logger.Warn("skill jump flattened",
				zap.String("skill", name),
				zap.Int("from", skill.Level),
				zap.Int("requested", level))
			level = skill.Level + maxLevelJump
		} else if jump < -maxLevelJump {
			level = skill.Level - maxLevelJump
		}
		skill.History = append(skill.History, LevelChange{From: skill.Level, To: level, At: now})
		skill.Level = level
	}
	skill.LastUsed = now
	t.state.Skills[name] = skill
	return t.save()
}

// AddInterest records a newly discovered interest. Duplicates are
// ignored.
func (t *Tracker) AddInterest(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, it := range t.state.Interests {
		if it.Name == name {
			return nil
		}
	}
	t.state.Interests = append(t.state.Interests, Interest{Name: name, DiscoveredAt: t.now()})
	t.logger.Info("new interest", zap.String("interest", name))
	return t.save()
}

// AddView records a formed opinion. Views arriving inside the spacing
// window are still recorded but logged, so rapid flip-flopping shows
// up in the logs.
func (t *Tracker) AddView(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	recent := t.state.Views
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	for _, v := range recent {
		if now.Sub(v.FormedAt) < viewSpacing {
			t.logger.Debug("views forming faster than usual",
				zap.Time("previous", v.FormedAt))
			break
		}
	}
	t.state.Views = append(t.state.Views, View{Text: text, FormedAt: now})
	return t.save()
}

// Skill returns a copy of one skill's record.
func (t *Tracker) Skill(name string) (Skill, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state.Skills[name]
	if ok {
		s.History = append([]LevelChange(nil), s.History...)
	}
	return s, ok
}

// Summary aggregates the current growth state.
func (t *Tracker) Summary() GrowthSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	sum := GrowthSummary{
		SkillCount:    len(t.state.Skills),
		InterestCount: len(t.state.Interests),
		ViewCount:     len(t.state.Views),
		Levels:        make(map[string]int, len(t.state.Skills)),
	}
	best, bestLevel := "", 0
	for name, skill := range t.state.Skills {
		sum.Levels[name] = skill.Level
		if skill.Level > bestLevel {
			best, bestLevel = name, skill.Level
		}
	}
	if best != "" {
		sum.TopSkills = append(sum.TopSkills, best)
	}
	return sum
}

func (t *Tracker) save() error {
	t.state.UpdatedAt = t.now()
	if err := t.store.SaveState(growthStateKey, t.state); err != nil {
		return fmt.Errorf("save growth state: %w", err)
	}
	return nil
}
