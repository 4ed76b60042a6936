package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/eidolon/internal/provider"
)

// PurposeSummary is the provider routing purpose for history compaction.
const PurposeSummary = "summary"

// historyTokenBudget bounds how much archived history enters the
// prompt before the older half gets summarized.
const historyTokenBudget = 1500

// compactHistory keeps recent turns verbatim and replaces older ones
// with an LLM summary once the history outgrows the token budget.
// Falls back to plain truncation when summarization fails.
func (p *Pipeline) compactHistory(ctx context.Context, history []provider.Message) []provider.Message {
	if len(history) <= 2 || estimateTokens(history) <= historyTokenBudget {
		return history
	}

	cutpoint := len(history) / 2
	older := history[:cutpoint]

	var content strings.Builder
	for _, msg := range older {
		fmt.Fprintf(&content, "[%s]: %s\n", msg.Role, msg.Content)
	}

	summary, err := p.summarize(ctx, content.String())
	if err != nil {
		p.logger.Warn("history summarization failed, truncating", zap.Error(err))
		return history[cutpoint:]
	}

	summaryMsg := provider.Message{
		Role:    "system",
		Content: "Earlier in this conversation (condensed):\n" + summary,
	}
	return append([]provider.Message{summaryMsg}, history[cutpoint:]...)
}

// summarize condenses text through the provider router.
func (p *Pipeline) summarize(ctx context.Context, text string) (string, error) {
	req := &provider.ChatRequest{
		Messages: []provider.Message{
			{Role: "user", Content: "Condense the following conversation into a short summary. " +
				"Keep names, plans and anything emotionally significant:\n\n" + text},
		},
		MaxTokens: 512,
	}
	resp, err := p.providers.Route(ctx, PurposeSummary, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// estimateTokens is a rough heuristic, ~4 chars per token for mixed
// CJK/English text.
func estimateTokens(msgs []provider.Message) int {
	total := 0
	for _, m := range msgs {
		total += (len(m.Content) + 3) / 4
	}
	return total
}
