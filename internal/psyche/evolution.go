package psyche

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
)

const (
	evolutionStateKey = "psyche.evolution"

	// A trait manifesting in under 10% of replies is drifting away
	// from who the persona actually is.
	underperformRate  = 0.1
	minInteractions   = 10
	stablePhaseDays   = 14
	changingPhaseDays = 7

	surpriseMaxPer24h = 3
	surpriseMinGap    = 6 * time.Hour
	surpriseCeiling   = 0.5
)

// traitIndicators maps a trait to words in the persona's own replies
// that count as the trait showing itself.
var traitIndicators = map[string][]string{
	"curious":    {"why", "how come", "wonder", "what if", "tell me more"},
	"friendly":   {"glad", "happy for you", "welcome", "of course", "~"},
	"thoughtful": {"let me think", "hmm", "on the other hand", "i suppose", "maybe"},
	"playful":    {"haha", "hehe", "just kidding", "teasing", "!"},
	"caring":     {"are you okay", "take care", "rest", "i'm here", "hope you"},
}

// evolutionState is the persisted shape.
type evolutionState struct {
	Traits         []string          `json:"traits"`
	Forming        map[string]string `json:"forming,omitempty"` // trait -> reason
	Manifestations map[string]int    `json:"manifestations"`
	Interactions   int               `json:"interactions"`

	Phase     string    `json:"phase"` // stable or changing
	PhaseDays int       `json:"phase_days"`
	LastDay   time.Time `json:"last_day,omitzero"`

	LastSurprise  time.Time `json:"last_surprise,omitzero"`
	SurpriseCount int       `json:"surprise_count_24h"`
	SurpriseReset time.Time `json:"surprise_reset,omitzero"`
}

// ConsistencyReport compares the persona's self-description with how
// it actually behaves.
type ConsistencyReport struct {
	Enough          bool               `json:"enough_data"`
	Interactions    int                `json:"interactions"`
	TraitRates      map[string]float64 `json:"trait_rates,omitempty"`
	Underperforming []string           `json:"underperforming,omitempty"`
}

// EvolutionSummary is the read-out handed to the API and prompts.
type EvolutionSummary struct {
	Traits  []string `json:"traits"`
	Forming []string `json:"forming,omitempty"`
	Phase   string   `json:"phase"`
}

// Evolution keeps the persona's self-description honest: traits that
// stop showing up in behavior fade out, new ones form gradually, and
// long stable stretches give way to short changing phases that keep
// the character from going stale.
type Evolution struct {
	mu     sync.Mutex
	store  stateStore
	state  evolutionState
	now    func() time.Time
	rng    *rand.Rand
	logger *zap.Logger
}

// NewEvolution loads persisted evolution state, seeding defaults on
// first run.
func NewEvolution(store stateStore, logger *zap.Logger) (*Evolution, error) {
	ev := &Evolution{
		store:  store,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger,
	}

	err := store.LoadState(evolutionStateKey, &ev.state)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		ev.state = evolutionState{
			Traits:         []string{"curious", "friendly", "thoughtful"},
			Manifestations: map[string]int{},
			Phase:          "stable",
		}
	case err != nil:
		return nil, fmt.Errorf("load evolution state: %w", err)
	}
	if ev.state.Manifestations == nil {
		ev.state.Manifestations = map[string]int{}
	}
	if ev.state.Phase == "" {
		ev.state.Phase = "stable"
	}
	return ev, nil
}

// RecordInteraction counts one conversational turn and tallies which
// traits showed up in the persona's reply.
func (ev *Evolution) RecordInteraction(reply string) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	ev.state.Interactions++
	lower := strings.ToLower(reply)
	for _, trait := range ev.state.Traits {
		for _, ind := range traitIndicators[trait] {
			if strings.Contains(lower, ind) {
				ev.state.Manifestations[trait]++
				break
			}
		}
	}
	return ev.save()
}

// Consistency reports how often each claimed trait actually manifests.
func (ev *Evolution) Consistency() ConsistencyReport {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	report := ConsistencyReport{Interactions: ev.state.Interactions}
	if ev.state.Interactions < minInteractions {
		return report
	}
	report.Enough = true
	report.TraitRates = make(map[string]float64, len(ev.state.Traits))
	for _, trait := range ev.state.Traits {
		rate := float64(ev.state.Manifestations[trait]) / float64(ev.state.Interactions)
		report.TraitRates[trait] = rate
		if rate < underperformRate {
			report.Underperforming = append(report.Underperforming, trait)
		}
	}
	return report
}

// SuggestTrait records a potential new trait. Traits form gradually:
// a suggestion sits in the forming list until AdoptTrait promotes it.
func (ev *Evolution) SuggestTrait(trait, reason string) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	for _, t := range ev.state.Traits {
		if t == trait {
			return nil
		}
	}
	if ev.state.Forming == nil {
		ev.state.Forming = map[string]string{}
	}
	ev.state.Forming[trait] = reason
	ev.logger.Info("potential trait forming",
		zap.String("trait", trait), zap.String("reason", reason))
	return ev.save()
}

// AdoptTrait promotes a forming trait into the self-description.
func (ev *Evolution) AdoptTrait(trait string) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	if _, ok := ev.state.Forming[trait]; !ok {
		return fmt.Errorf("trait %q is not forming", trait)
	}
	delete(ev.state.Forming, trait)
	ev.state.Traits = append(ev.state.Traits, trait)
	ev.logger.Info("trait adopted", zap.String("trait", trait))
	return ev.save()
}

// DropTrait removes a trait that no longer fits.
func (ev *Evolution) DropTrait(trait, reason string) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	for i, t := range ev.state.Traits {
		if t == trait {
			ev.state.Traits = append(ev.state.Traits[:i], ev.state.Traits[i+1:]...)
			delete(ev.state.Manifestations, trait)
			ev.logger.Info("trait dropped",
				zap.String("trait", trait), zap.String("reason", reason))
			return ev.save()
		}
	}
	return nil
}

// DailyCheck advances the stable/changing phase cycle and drops one
// underperforming trait per changing phase so the self-description
// erodes gradually rather than all at once.
func (ev *Evolution) DailyCheck() error {
	ev.mu.Lock()
	today := dateOf(ev.now())
	if !ev.state.LastDay.IsZero() && !today.After(ev.state.LastDay) {
		ev.mu.Unlock()
		return nil
	}
	if !ev.state.LastDay.IsZero() {
		ev.state.PhaseDays += int(today.Sub(ev.state.LastDay).Hours() / 24)
	}
	ev.state.LastDay = today

	entered := ""
	switch {
	case ev.state.Phase == "stable" && ev.state.PhaseDays >= stablePhaseDays:
		ev.state.Phase = "changing"
		ev.state.PhaseDays = 0
		entered = "changing"
	case ev.state.Phase == "changing" && ev.state.PhaseDays >= changingPhaseDays:
		ev.state.Phase = "stable"
		ev.state.PhaseDays = 0
		entered = "stable"
	}
	if err := ev.save(); err != nil {
		ev.mu.Unlock()
		return err
	}
	ev.mu.Unlock()

	if entered != "" {
		ev.logger.Info("personality phase change", zap.String("phase", entered))
	}
	if entered == "changing" {
		report := ev.Consistency()
		if len(report.Underperforming) > 0 {
			return ev.DropTrait(report.Underperforming[0], "rarely manifests")
		}
	}
	return nil
}

// ShouldSurprise rolls whether the persona breaks pattern this turn.
// Probability grows with time since the last surprise, capped at 50%,
// with at most three surprises per 24h and a six hour minimum gap.
func (ev *Evolution) ShouldSurprise() bool {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	now := ev.now()
	if now.Sub(ev.state.SurpriseReset) > 24*time.Hour {
		ev.state.SurpriseCount = 0
		ev.state.SurpriseReset = now
	}
	if ev.state.SurpriseCount >= surpriseMaxPer24h {
		return false
	}

	sinceLast := 24 * time.Hour
	if !ev.state.LastSurprise.IsZero() {
		sinceLast = now.Sub(ev.state.LastSurprise)
		if sinceLast < surpriseMinGap {
			return false
		}
	}

	probability := sinceLast.Hours() / 24
	if probability > surpriseCeiling {
		probability = surpriseCeiling
	}
	return ev.rng.Float64() < probability
}

// RecordSurprise marks that a surprise fired.
func (ev *Evolution) RecordSurprise() error {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	ev.state.LastSurprise = ev.now()
	ev.state.SurpriseCount++
	ev.logger.Debug("surprise fired", zap.Int("count_24h", ev.state.SurpriseCount))
	return ev.save()
}

// Summary returns the current self-description.
func (ev *Evolution) Summary() EvolutionSummary {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	sum := EvolutionSummary{
		Traits: append([]string(nil), ev.state.Traits...),
		Phase:  ev.state.Phase,
	}
	for t := range ev.state.Forming {
		sum.Forming = append(sum.Forming, t)
	}
	return sum
}

func (ev *Evolution) save() error {
	if err := ev.store.SaveState(evolutionStateKey, &ev.state); err != nil {
		return fmt.Errorf("save evolution state: %w", err)
	}
	return nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
