package recall

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/memory"
)

// Payload keys stored alongside each memory vector.
const (
	payloadUserID  = "user_id"
	payloadSummary = "summary"
)

// reinforcer is the slice of the memory store recall feeds back into.
type reinforcer interface {
	Reinforce(memoryID string, kind memory.ReinforcementType) (*memory.ReinforcementEvent, error)
}

// Memory is one recalled conversation.
type Memory struct {
	RecordID string  `json:"record_id"`
	UserID   string  `json:"user_id"`
	Summary  string  `json:"summary"`
	Score    float32 `json:"score"`
}

// Recaller embeds conversation turns into the index and surfaces
// similar memories on demand. Every surfaced memory is reinforced as
// a context trigger, so remembering keeps memories alive.
type Recaller struct {
	embed  Embedder
	index  Index
	store  reinforcer
	logger *zap.Logger
}

// New wires the recaller. Call Init once before use.
func New(embed Embedder, index Index, store reinforcer, logger *zap.Logger) *Recaller {
	return &Recaller{embed: embed, index: index, store: store, logger: logger}
}

// Init makes sure the vector collection exists.
func (r *Recaller) Init(ctx context.Context) error {
	dim := r.embed.Dimension()
	if dim <= 0 {
		return fmt.Errorf("embedder dimension unknown")
	}
	if err := r.index.Ensure(ctx, uint64(dim)); err != nil {
		return fmt.Errorf("init recall index: %w", err)
	}
	return nil
}

// IndexRecord embeds one conversation and stores its vector under the
// record's ID.
func (r *Recaller) IndexRecord(ctx context.Context, rec *memory.ConversationRecord) error {
	text := rec.UserMessage
	if rec.BotResponse != "" {
		text += "\n" + rec.BotResponse
	}

	vectors, err := r.embed.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("index record %s: %w", rec.ID, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("index record %s: empty embedding", rec.ID)
	}

	summary := rec.UserMessage
	if len([]rune(summary)) > 120 {
		summary = string([]rune(summary)[:120])
	}
	err = r.index.Upsert(ctx, rec.ID, vectors[0], map[string]string{
		payloadUserID:  rec.UserID,
		payloadSummary: summary,
	})
	if err != nil {
		return fmt.Errorf("index record %s: %w", rec.ID, err)
	}
	return nil
}

// Recall returns up to topK memories similar to the query and
// reinforces each one. Reinforcement failures are logged, not fatal;
// the recall itself already succeeded.
func (r *Recaller) Recall(ctx context.Context, query string, topK int) ([]Memory, error) {
	vectors, err := r.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("recall: empty embedding")
	}

	hits, err := r.index.Search(ctx, vectors[0], uint64(topK))
	if err != nil {
		return nil, fmt.Errorf("recall: %w", err)
	}

	memories := make([]Memory, 0, len(hits))
	for _, hit := range hits {
		memories = append(memories, Memory{
			RecordID: hit.ID,
			UserID:   hit.Payload[payloadUserID],
			Summary:  hit.Payload[payloadSummary],
			Score:    hit.Score,
		})
		if _, err := r.store.Reinforce(hit.ID, memory.ReinforceContextTrigger); err != nil {
			r.logger.Warn("recall reinforcement failed",
				zap.String("record", hit.ID), zap.Error(err))
		}
	}
	return memories, nil
}
