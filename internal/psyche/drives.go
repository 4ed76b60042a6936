package psyche

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
)

const (
	driveStateKey  = "psyche.drives"
	valuesStateKey = "psyche.values"

	driveMin = 1
	driveMax = 10

	// An hour without interaction and the persona feels lonely.
	defaultLonelinessThreshold = time.Hour
)

// stateStore is the slice of the memory store the engine persists
// through.
type stateStore interface {
	SaveState(key string, value any) error
	LoadState(key string, out any) error
}

// Drives are the persona's inner motivations on a 1-10 scale.
// Curiosity rises with exploration, expression falls when satisfied,
// connection falls when interaction happens and loneliness builds
// while it doesn't.
type Drives struct {
	Curiosity        float64   `json:"curiosity"`
	Expression       float64   `json:"expression"`
	Connection       float64   `json:"connection"`
	Explorations     []Topic   `json:"explorations,omitempty"`
	ExpressionCount  int       `json:"expression_count"`
	InteractionCount int       `json:"interaction_count"`
	LastExploration  time.Time `json:"last_exploration,omitzero"`
	LastExpression   time.Time `json:"last_expression,omitzero"`
	LastInteraction  time.Time `json:"last_interaction,omitzero"`
}

// Topic is one explored subject.
type Topic struct {
	Name  string    `json:"name"`
	Depth string    `json:"depth"` // light, medium, deep
	At    time.Time `json:"at"`
}

// Values are the persona's accumulated beliefs and preferences.
type Values struct {
	Beliefs    []Belief            `json:"beliefs,omitempty"`
	Principles []Principle         `json:"principles,omitempty"`
	Aesthetics map[string][]string `json:"aesthetics,omitempty"` // beauty, humor, wisdom
	UpdatedAt  time.Time           `json:"updated_at,omitzero"`
}

type Belief struct {
	Text       string    `json:"text"`
	Conviction int       `json:"conviction"` // 1-10
	AddedAt    time.Time `json:"added_at"`
}

type Principle struct {
	Text    string    `json:"text"`
	Context string    `json:"context,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// ConnectionNeed is the loneliness read-out.
type ConnectionNeed struct {
	Lonely           bool          `json:"lonely"`
	SinceInteraction time.Duration `json:"since_interaction"`
	Level            float64       `json:"level"`
	InteractionCount int           `json:"interaction_count"`
}

// Engine manages drives and values, persisting both through the
// memory store's state table.
type Engine struct {
	mu     sync.Mutex
	store  stateStore
	drives Drives
	values Values
	now    func() time.Time
	logger *zap.Logger

	lonelinessThreshold time.Duration
}

// NewEngine loads persisted drives and values, seeding defaults on
// first run.
func NewEngine(store stateStore, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		store:               store,
		now:                 time.Now,
		logger:              logger,
		lonelinessThreshold: defaultLonelinessThreshold,
	}

	err := store.LoadState(driveStateKey, &e.drives)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		e.drives = Drives{Curiosity: 7, Expression: 6, Connection: 8}
	case err != nil:
		return nil, fmt.Errorf("load drives: %w", err)
	}

	err = store.LoadState(valuesStateKey, &e.values)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		e.values = Values{Aesthetics: map[string][]string{}}
	case err != nil:
		return nil, fmt.Errorf("load values: %w", err)
	}
	if e.values.Aesthetics == nil {
		e.values.Aesthetics = map[string][]string{}
	}
	return e, nil
}

// Explore records a curiosity-driven exploration. Curiosity rises a
// little with each one.
func (e *Engine) Explore(topic, depth string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.drives.Explorations = append(e.drives.Explorations, Topic{Name: topic, Depth: depth, At: now})
	e.drives.LastExploration = now
	e.drives.Curiosity = clampDrive(e.drives.Curiosity + 0.5)
	e.logger.Debug("exploration recorded", zap.String("topic", topic))
	return e.saveDrives()
}

// Express records a satisfied urge to express. Expression drops once
// the urge is released.
func (e *Engine) Express(kind string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drives.ExpressionCount++
	e.drives.LastExpression = e.now()
	e.drives.Expression = clampDrive(e.drives.Expression - 0.5)
	e.logger.Debug("expression recorded", zap.String("kind", kind))
	return e.saveDrives()
}

// Interact records an interaction, easing the connection drive.
func (e *Engine) Interact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.drives.InteractionCount++
	e.drives.LastInteraction = e.now()
	e.drives.Connection = clampDrive(e.drives.Connection - 0.3)
	return e.saveDrives()
}

// CheckConnection reports whether the persona currently feels lonely.
func (e *Engine) CheckConnection() ConnectionNeed {
	e.mu.Lock()
	defer e.mu.Unlock()

	var since time.Duration
	lonely := true
	if !e.drives.LastInteraction.IsZero() {
		since = e.now().Sub(e.drives.LastInteraction)
		lonely = since > e.lonelinessThreshold
	}
	return ConnectionNeed{
		Lonely:           lonely,
		SinceInteraction: since,
		Level:            e.drives.Connection,
		InteractionCount: e.drives.InteractionCount,
	}
}

// AddBelief records a held belief.
func (e *Engine) AddBelief(text string, conviction int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.values.Beliefs = append(e.values.Beliefs, Belief{
		Text: text, Conviction: conviction, AddedAt: e.now(),
	})
	return e.saveValues()
}

// AddPrinciple records a moral principle.
func (e *Engine) AddPrinciple(text, context string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.values.Principles = append(e.values.Principles, Principle{
		Text: text, Context: context, AddedAt: e.now(),
	})
	return e.saveValues()
}

// AddAesthetic records an aesthetic preference under a category
// (beauty, humor, wisdom). Duplicates are ignored.
func (e *Engine) AddAesthetic(category, item string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.values.Aesthetics[category] {
		if existing == item {
			return nil
		}
	}
	e.values.Aesthetics[category] = append(e.values.Aesthetics[category], item)
	return e.saveValues()
}

// Snapshot returns a copy of the current drives.
func (e *Engine) Snapshot() Drives {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.drives
	d.Explorations = append([]Topic(nil), e.drives.Explorations...)
	return d
}

// ValuesSnapshot returns a copy of the current values.
func (e *Engine) ValuesSnapshot() Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.values
	v.Beliefs = append([]Belief(nil), e.values.Beliefs...)
	v.Principles = append([]Principle(nil), e.values.Principles...)
	aes := make(map[string][]string, len(e.values.Aesthetics))
	for k, items := range e.values.Aesthetics {
		aes[k] = append([]string(nil), items...)
	}
	v.Aesthetics = aes
	return v
}

func (e *Engine) saveDrives() error {
	if err := e.store.SaveState(driveStateKey, e.drives); err != nil {
		return fmt.Errorf("save drives: %w", err)
	}
	return nil
}

func (e *Engine) saveValues() error {
	e.values.UpdatedAt = e.now()
	if err := e.store.SaveState(valuesStateKey, e.values); err != nil {
		return fmt.Errorf("save values: %w", err)
	}
	return nil
}

func clampDrive(v float64) float64 {
	if v < driveMin {
		return driveMin
	}
	if v > driveMax {
		return driveMax
	}
	return v
}
