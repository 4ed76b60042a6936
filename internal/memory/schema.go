package memory

import (
	"time"
)

// ConversationRecord is a single weighted conversational turn.
type ConversationRecord struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	UserID        string     `json:"user_id"`
	SessionID     string     `json:"session_id,omitempty"`
	UserMessage   string     `json:"user_message"`
	BotResponse   string     `json:"bot_response"`
	MessageLength int        `json:"message_length"`
	ResponseLen   int        `json:"response_length"`
	Importance    float64    `json:"importance_score"`
	ReviewCount   int        `json:"review_count"`
	LastReviewed  *time.Time `json:"last_reviewed,omitempty"`
	DecayFactor   float64    `json:"decay_factor"`
	Trivial       bool       `json:"is_trivial,omitempty"`
	TrivialReason string     `json:"trivial_reason,omitempty"`
}

// CoreMemory is a conversation turn promoted above the core threshold.
// Core memories are never decayed or mutated after promotion.
type CoreMemory struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	UserID     string    `json:"user_id"`
	Summary    string    `json:"summary"`
	Importance float64   `json:"importance"`
	Category   string    `json:"category"`
	PromotedAt time.Time `json:"promoted_at"`
}

// ReinforcementType classifies how a memory was recalled.
type ReinforcementType string

const (
	ReinforceManualRecall   ReinforcementType = "manual_recall"
	ReinforceContextTrigger ReinforcementType = "context_trigger"
	ReinforceAnniversary    ReinforcementType = "anniversary"
	ReinforceMilestone      ReinforcementType = "milestone"
	ReinforcePassiveRecall  ReinforcementType = "passive_recall"
)

// effectiveness maps reinforcement types to a retention coefficient.
var effectiveness = map[ReinforcementType]float64{
	ReinforceManualRecall:   0.9,
	ReinforceContextTrigger: 0.7,
	ReinforceAnniversary:    0.8,
	ReinforceMilestone:      0.85,
	ReinforcePassiveRecall:  0.5,
}

// Effectiveness returns the retention coefficient for a reinforcement type.
// Unknown types get the passive-recall baseline.
func (t ReinforcementType) Effectiveness() float64 {
	if e, ok := effectiveness[t]; ok {
		return e
	}
	return 0.5
}

// ReinforcementEvent is an append-only record of a memory recall.
type ReinforcementEvent struct {
	ID            string            `json:"id"`
	MemoryID      string            `json:"memory_id"`
	Type          ReinforcementType `json:"type"`
	Effectiveness float64           `json:"effectiveness"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ArchivedRecord is a decayed conversation moved out of the live store.
type ArchivedRecord struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	UserID     string    `json:"user_id"`
	Summary    string    `json:"summary"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Stats summarizes the live memory store.
type Stats struct {
	Total             int     `json:"total_memories"`
	Important         int     `json:"important_memories"`
	Trivial           int     `json:"trivial_memories"`
	AverageImportance float64 `json:"average_importance"`
	RetentionRate     float64 `json:"memory_retention_rate"`
}

// ReinforcementSummary aggregates the reinforcement log.
type ReinforcementSummary struct {
	CoreMemories        int            `json:"core_memories_count"`
	TotalReinforcements int            `json:"total_reinforcements"`
	LastReview          *time.Time     `json:"last_review,omitempty"`
	CoreCategories      map[string]int `json:"core_categories"`
}

// SweepResult reports what a decay sweep did.
type SweepResult struct {
	Decayed  int `json:"decayed"`
	Kept     int `json:"kept"`
	Archived int `json:"archived"`
}
