package experience

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
)

// conflictKind marks detected timeline problems in the event log.
const conflictKind = "timeline_conflict"

// maxExperienceDays bounds how long a single claimed experience may
// plausibly last.
const maxExperienceDays = 5 * 365

// eventDateLayouts are the accepted precisions for a claimed date,
// tried most-specific first.
var eventDateLayouts = []string{"2006-01-02", "2006-01", "2006"}

type eventLog interface {
	RecordEvent(kind, description, userID string, metadata map[string]string) (*memory.Event, error)
	EventsSince(kind string, since time.Time) ([]*memory.Event, error)
}

// Verifier keeps the persona's claimed experiences internally
// consistent: dated entries may not sit in the future unless planned,
// durations stay plausible, and the log as a whole gets a coherence
// read. Conflicts are recorded in the log itself so the daily review
// can surface them.
type Verifier struct {
	store  eventLog
	now    func() time.Time
	logger *zap.Logger
}

// CoherenceReport is the aggregate consistency read over the log.
type CoherenceReport struct {
	Score            float64        `json:"score"`
	Assessment       string         `json:"assessment"`
	TimeSpanYears    float64        `json:"time_span_years"`
	TotalEvents      int            `json:"total_events"`
	KindDistribution map[string]int `json:"kind_distribution,omitempty"`
	ConflictCount    int            `json:"conflict_count"`
}

// HasIssues reports whether any timeline conflict is on record.
func (r CoherenceReport) HasIssues() bool { return r.ConflictCount > 0 }

func NewVerifier(store eventLog, logger *zap.Logger) *Verifier {
	return &Verifier{store: store, now: time.Now, logger: logger}
}

// VerifyAndRecord checks a dated experience and appends it to the log.
// Metadata may carry "event_date" (YYYY-MM-DD, YYYY-MM or YYYY, when
// the experience happened), "planned" ("true" allows future dates) and
// "duration_days". Conflicting experiences are still recorded, each
// conflict alongside as its own entry.
func (v *Verifier) VerifyAndRecord(kind, description, userID string, metadata map[string]string) (*memory.Event, []string, error) {
	conflicts := v.check(metadata)
	for _, c := range conflicts {
		if _, err := v.store.RecordEvent(conflictKind, c, userID, map[string]string{"source_kind": kind}); err != nil {
			return nil, conflicts, fmt.Errorf("record timeline conflict: %w", err)
		}
		v.logger.Warn("timeline conflict", zap.String("kind", kind), zap.String("conflict", c))
	}
	ev, err := v.store.RecordEvent(kind, description, userID, metadata)
	if err != nil {
		return nil, conflicts, err
	}
	return ev, conflicts, nil
}

func (v *Verifier) check(metadata map[string]string) []string {
	var conflicts []string
	if raw, ok := metadata["event_date"]; ok {
		date, err := parseEventDate(raw)
		if err != nil {
			conflicts = append(conflicts, fmt.Sprintf("unreadable event date %q", raw))
		} else if date.After(v.now()) && metadata["planned"] != "true" {
			conflicts = append(conflicts, fmt.Sprintf("event date %s is in the future", raw))
		}
	}
	if raw, ok := metadata["duration_days"]; ok {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			conflicts = append(conflicts, fmt.Sprintf("unreadable duration %q", raw))
		} else if days > maxExperienceDays {
			conflicts = append(conflicts, fmt.Sprintf("implausible duration of %d days", days))
		}
	}
	return conflicts
}

// Coherence scores the log recorded since the given time. The score
// starts at 0.7 and moves with the spread of claimed dates, the variety
// of event kinds and the number of conflicts on record.
func (v *Verifier) Coherence(since time.Time) (CoherenceReport, error) {
	events, err := v.store.EventsSince("", since)
	if err != nil {
		return CoherenceReport{}, fmt.Errorf("read event log: %w", err)
	}

	report := CoherenceReport{KindDistribution: make(map[string]int)}
	var earliest, latest time.Time
	for _, ev := range events {
		if ev.Kind == conflictKind {
			report.ConflictCount++
			continue
		}
		report.TotalEvents++
		report.KindDistribution[ev.Kind]++

		at := ev.CreatedAt
		if raw, ok := ev.Metadata["event_date"]; ok {
			if date, err := parseEventDate(raw); err == nil {
				at = date
			}
		}
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
		if latest.IsZero() || at.After(latest) {
			latest = at
		}
	}
	if !earliest.IsZero() {
		report.TimeSpanYears = latest.Sub(earliest).Hours() / (24 * 365.25)
	}

	score := 0.7
	switch {
	case report.TimeSpanYears >= 1 && report.TimeSpanYears <= 10:
		score += 0.1
	case report.TimeSpanYears > 20:
		score -= 0.05
	}
	switch kinds := len(report.KindDistribution); {
	case kinds >= 3:
		score += 0.1
	case kinds == 2:
		score += 0.05
	}
	penalty := float64(report.ConflictCount) * 0.05
	if penalty > 0.3 {
		penalty = 0.3
	}
	score -= penalty
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	report.Score = score
	report.Assessment = assessCoherence(score)
	return report, nil
}

func assessCoherence(score float64) string {
	switch {
	case score >= 0.85:
		return "highly coherent"
	case score >= 0.7:
		return "coherent"
	case score >= 0.5:
		return "mostly coherent, some timeline drift"
	default:
		return "incoherent, timeline needs review"
	}
}

func parseEventDate(raw string) (time.Time, error) {
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
