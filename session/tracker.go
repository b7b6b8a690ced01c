package session

import (
	"sync"
	"time"

	"github.com/BaSui01/agentpipe/types"
)

// UsageTracker accumulates the token usage of one run. Entries are
// append-only; totals are derived on demand. It satisfies the backend
// layer's usage-recorder contract.
type UsageTracker struct {
	mu      sync.Mutex
	entries []types.TokenUsageEntry
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// RecordUsage appends one invocation's usage.
func (t *UsageTracker) RecordUsage(role types.AgentRole, model string, usage types.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, types.TokenUsageEntry{
		Role:             role,
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Timestamp:        time.Now(),
	})
}

// Entries returns a copy of the recorded log.
func (t *UsageTracker) Entries() []types.TokenUsageEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.TokenUsageEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Restore seeds the tracker from a persisted log, replacing current entries.
func (t *UsageTracker) Restore(entries []types.TokenUsageEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make([]types.TokenUsageEntry, len(entries))
	copy(t.entries, entries)
}

// Total sums all recorded usage.
func (t *UsageTracker) Total() types.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total types.TokenUsage
	for _, e := range t.entries {
		total.Add(types.TokenUsage{
			PromptTokens:     e.PromptTokens,
			CompletionTokens: e.CompletionTokens,
			TotalTokens:      e.TotalTokens,
		})
	}
	return total
}

// TotalByRole sums usage per agent role.
func (t *UsageTracker) TotalByRole() map[types.AgentRole]types.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.AgentRole]types.TokenUsage)
	for _, e := range t.entries {
		u := out[e.Role]
		u.Add(types.TokenUsage{
			PromptTokens:     e.PromptTokens,
			CompletionTokens: e.CompletionTokens,
			TotalTokens:      e.TotalTokens,
		})
		out[e.Role] = u
	}
	return out
}
