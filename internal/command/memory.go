package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nidhogg/eidolon/internal/memory"
)

// MemoryStore is the slice of the memory store the commands need.
type MemoryStore interface {
	Statistics() (*memory.Stats, error)
	ImportantMemories(opts memory.QueryOptions) ([]*memory.ConversationRecord, error)
	Reinforce(memoryID string, kind memory.ReinforcementType) (*memory.ReinforcementEvent, error)
	MarkTrivial(id, reason string) error
}

// RegisterMemoryCommands registers /stats, /memories, /recall and /forget.
func RegisterMemoryCommands(reg *Registry, store MemoryStore) {
	reg.Register(statsCommand(store))
	reg.Register(memoriesCommand(store))
	reg.Register(recallCommand(store))
	reg.Register(forgetCommand(store))
}

func statsCommand(store MemoryStore) *Command {
	return &Command{
		Name:        "stats",
		Description: "Show memory store statistics",
		Usage:       "/stats",
		Handler: func(_ context.Context, _ string, _ *Context) (*Result, error) {
			stats, err := store.Statistics()
			if err != nil {
				return nil, fmt.Errorf("memory stats: %w", err)
			}
			var b strings.Builder
			b.WriteString("Memory:\n")
			fmt.Fprintf(&b, "  total: %d, important: %d, trivial: %d\n",
				stats.Total, stats.Important, stats.Trivial)
			fmt.Fprintf(&b, "  average importance: %.2f\n", stats.AverageImportance)
			fmt.Fprintf(&b, "  retention rate: %.0f%%\n", stats.RetentionRate*100)
			return &Result{Content: b.String(), Data: stats}, nil
		},
	}
}

func memoriesCommand(store MemoryStore) *Command {
	return &Command{
		Name:        "memories",
		Description: "List what the persona remembers about you",
		Usage:       "/memories",
		Handler: func(_ context.Context, _ string, cc *Context) (*Result, error) {
			records, err := store.ImportantMemories(memory.QueryOptions{
				UserID:    cc.UserID,
				Threshold: memory.ImportantThreshold,
				Limit:     10,
			})
			if err != nil {
				return nil, fmt.Errorf("list memories: %w", err)
			}
			if len(records) == 0 {
				return &Result{Content: "Nothing memorable yet — keep talking!"}, nil
			}
			var b strings.Builder
			b.WriteString("Things I remember:\n")
			for _, r := range records {
				fmt.Fprintf(&b, "  [%s] (%.2f) %s\n",
					shortID(r.ID), r.Importance, clip(r.UserMessage, 60))
			}
			b.WriteString("Use /recall <id> to bring one back up, /forget <id> to drop it.\n")
			return &Result{Content: b.String(), Data: records}, nil
		},
	}
}

func recallCommand(store MemoryStore) *Command {
	return &Command{
		Name:        "recall",
		Description: "Deliberately revisit a memory, strengthening it",
		Usage:       "/recall <memory_id>",
		Handler: func(_ context.Context, args string, cc *Context) (*Result, error) {
			id := strings.TrimSpace(args)
			if id == "" {
				return &Result{Content: "Usage: /recall <memory_id>"}, nil
			}
			id = resolveID(store, cc.UserID, id)
			ev, err := store.Reinforce(id, memory.ReinforceManualRecall)
			if errors.Is(err, memory.ErrNotFound) {
				return &Result{Content: fmt.Sprintf("No memory with id %q.", id)}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("reinforce %s: %w", id, err)
			}
			return &Result{
				Content: fmt.Sprintf("Remembered. (effectiveness %.2f)", ev.Effectiveness),
				Data:    ev,
			}, nil
		},
	}
}

func forgetCommand(store MemoryStore) *Command {
	return &Command{
		Name:        "forget",
		Description: "Mark a memory as trivial so it fades",
		Usage:       "/forget <memory_id> [reason]",
		Handler: func(_ context.Context, args string, cc *Context) (*Result, error) {
			parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
			if parts[0] == "" {
				return &Result{Content: "Usage: /forget <memory_id> [reason]"}, nil
			}
			reason := "user request"
			if len(parts) > 1 {
				reason = parts[1]
			}
			id := resolveID(store, cc.UserID, parts[0])
			if err := store.MarkTrivial(id, reason); err != nil {
				if errors.Is(err, memory.ErrNotFound) {
					return &Result{Content: fmt.Sprintf("No memory with id %q.", id)}, nil
				}
				return nil, fmt.Errorf("forget %s: %w", id, err)
			}
			return &Result{Content: "Alright, letting that one fade."}, nil
		},
	}
}

// resolveID expands a short id prefix (as shown by /memories) into the
// full record id. Unresolvable or ambiguous prefixes pass through
// unchanged and fail downstream with ErrNotFound.
func resolveID(store MemoryStore, userID, prefix string) string {
	if len(prefix) >= 36 {
		return prefix
	}
	records, err := store.ImportantMemories(memory.QueryOptions{UserID: userID, Limit: 50})
	if err != nil {
		return prefix
	}
	match := ""
	for _, r := range records {
		if strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = r.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
