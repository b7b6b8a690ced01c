package context

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

// OptimizerConfig configures window optimization.
type OptimizerConfig struct {
	MaxTokens          int  `yaml:"max_tokens" json:"max_tokens"`
	MinRecentTokens    int  `yaml:"min_recent_tokens" json:"min_recent_tokens"`
	KeepSystemMessages bool `yaml:"keep_system_messages" json:"keep_system_messages"`
}

// DefaultOptimizerConfig returns the defaults used for agent histories.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		MaxTokens:          8000,
		MinRecentTokens:    2000,
		KeepSystemMessages: true,
	}
}

// Result is the outcome of one optimization pass.
type Result struct {
	Messages        []types.Message
	TokenCount      int
	MessagesRemoved int
}

// messageScore is transient scoring state for one optimization pass.
type messageScore struct {
	index      int
	score      float64
	tokenCount int
}

// Optimizer reduces an oversized message history to fit a token budget.
// Rather than truncating the end, it keeps system messages, reserves the
// longest affordable trailing run of recent messages, and fills the
// remaining budget with the highest-scoring older messages in their
// original order.
type Optimizer struct {
	config    OptimizerConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewOptimizer creates an Optimizer. A nil tokenizer selects estimation.
func NewOptimizer(config OptimizerConfig, tokenizer Tokenizer, logger *zap.Logger) *Optimizer {
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultOptimizerConfig().MaxTokens
	}
	if config.MinRecentTokens <= 0 {
		config.MinRecentTokens = DefaultOptimizerConfig().MinRecentTokens
	}
	if tokenizer == nil {
		tokenizer = NewEstimateTokenizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger.With(zap.String("component", "context_optimizer")),
	}
}

// CountTokens estimates total tokens in msgs.
func (o *Optimizer) CountTokens(msgs []types.Message) int {
	return o.tokenizer.CountMessagesTokens(msgs)
}

// Optimize fits msgs into the configured budget. An already-fitting history
// is returned unchanged with MessagesRemoved zero, which also makes the
// pass idempotent.
func (o *Optimizer) Optimize(msgs []types.Message) Result {
	total := o.CountTokens(msgs)
	if total <= o.config.MaxTokens {
		return Result{Messages: msgs, TokenCount: total, MessagesRemoved: 0}
	}

	var system []types.Message
	var rest []types.Message

	for _, msg := range msgs {
		if o.config.KeepSystemMessages && msg.Role == types.RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	systemTokens := o.CountTokens(system)

	// Longest trailing run of non-system messages affordable within the
	// recent-message reservation.
	recentStart := len(rest)
	recentTokens := 0
	for i := len(rest) - 1; i >= 0; i-- {
		msgTokens := o.tokenizer.CountMessageTokens(rest[i])
		if recentTokens+msgTokens > o.config.MinRecentTokens {
			break
		}
		recentTokens += msgTokens
		recentStart = i
	}
	recent := rest[recentStart:]

	// Score the older messages and greedily fill what budget remains.
	budget := o.config.MaxTokens - systemTokens - recentTokens

	scores := make([]messageScore, 0, recentStart)
	for i := 0; i < recentStart; i++ {
		scores = append(scores, messageScore{
			index:      i,
			score:      o.scoreMessage(rest[i], i, recentStart),
			tokenCount: o.tokenizer.CountMessageTokens(rest[i]),
		})
	}

	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})

	selected := make([]int, 0, len(scores))
	used := 0
	for _, s := range scores {
		if used+s.tokenCount > budget {
			continue
		}
		used += s.tokenCount
		selected = append(selected, s.index)
	}
	sort.Ints(selected) // back to chronological order

	result := make([]types.Message, 0, len(system)+len(selected)+len(recent))
	result = append(result, system...)
	for _, idx := range selected {
		result = append(result, rest[idx])
	}
	result = append(result, recent...)

	finalTokens := o.CountTokens(result)
	removed := len(msgs) - len(result)

	o.logger.Debug("history optimized",
		zap.Int("original_messages", len(msgs)),
		zap.Int("kept_messages", len(result)),
		zap.Int("removed", removed),
		zap.Int("tokens", finalTokens),
		zap.Int("budget", o.config.MaxTokens),
	)

	return Result{Messages: result, TokenCount: finalTokens, MessagesRemoved: removed}
}

// TruncateToTokens is the simple prefix-fill variant used when no scoring is
// needed: it keeps messages from the front until the budget is exhausted.
func (o *Optimizer) TruncateToTokens(msgs []types.Message, budget int) []types.Message {
	result := make([]types.Message, 0, len(msgs))
	used := 0
	for _, msg := range msgs {
		msgTokens := o.tokenizer.CountMessageTokens(msg)
		if used+msgTokens > budget {
			break
		}
		used += msgTokens
		result = append(result, msg)
	}
	return result
}

// scoreMessage ranks an older message for retention. Higher is more
// important.
func (o *Optimizer) scoreMessage(msg types.Message, index, total int) float64 {
	score := 0.0
	content := strings.ToLower(msg.Content)

	switch msg.Role {
	case types.RoleSystem:
		// System messages that reach scoring (KeepSystemMessages off)
		// still rank above everything else.
		score += 100
	case types.RoleAssistant:
		if strings.Contains(content, "error") || strings.Contains(content, "fail") {
			score += 30
		}
	case types.RoleUser:
		if len(msg.Content) > 200 {
			score += 20
		}
	}

	if strings.Contains(content, "instruction") || strings.Contains(content, "requirement") {
		score += 15
	}

	// Recency bonus: later messages score higher.
	if total > 1 {
		score += 10 * float64(index) / float64(total-1)
	}

	// Length bonus: longer messages tend to carry more context.
	if len(msg.Content) > 500 {
		score += 5
	}

	return score
}
