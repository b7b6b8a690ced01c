package context

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpipe/types"
)

func msg(role types.Role, content string) types.Message {
	return types.Message{Role: role, Content: content}
}

func TestEstimateTokenizer(t *testing.T) {
	tok := NewEstimateTokenizer()

	assert.Equal(t, 0, tok.CountTokens(""))
	// ceil(4 × 0.25) = 1
	assert.Equal(t, 1, tok.CountTokens("abcd"))
	// ceil(5 × 0.25) = 2
	assert.Equal(t, 2, tok.CountTokens("abcde"))

	// overhead 10 + ceil(8 × 0.25)
	assert.Equal(t, 12, tok.CountMessageTokens(msg(types.RoleUser, "12345678")))
}

func TestOptimizer_FittingHistoryUnchanged(t *testing.T) {
	o := NewOptimizer(OptimizerConfig{MaxTokens: 1000, MinRecentTokens: 100, KeepSystemMessages: true}, nil, zap.NewNop())

	msgs := []types.Message{
		msg(types.RoleSystem, "be helpful"),
		msg(types.RoleUser, "hello"),
		msg(types.RoleAssistant, "hi"),
	}

	result := o.Optimize(msgs)
	assert.Equal(t, msgs, result.Messages)
	assert.Equal(t, 0, result.MessagesRemoved)
}

func TestOptimizer_KeepsSystemAndRecent(t *testing.T) {
	o := NewOptimizer(OptimizerConfig{MaxTokens: 120, MinRecentTokens: 40, KeepSystemMessages: true}, nil, zap.NewNop())

	filler := strings.Repeat("x", 200) // 60 tokens each with overhead
	msgs := []types.Message{
		msg(types.RoleSystem, "rules"),
		msg(types.RoleUser, filler),
		msg(types.RoleAssistant, filler),
		msg(types.RoleUser, filler),
		msg(types.RoleUser, "latest question"),
	}

	result := o.Optimize(msgs)
	require.Greater(t, result.MessagesRemoved, 0)
	assert.LessOrEqual(t, result.TokenCount, 120)

	// System message survives.
	assert.Equal(t, types.RoleSystem, result.Messages[0].Role)
	// The trailing recent message survives.
	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, "latest question", last.Content)
}

func TestOptimizer_Idempotent(t *testing.T) {
	o := NewOptimizer(OptimizerConfig{MaxTokens: 100, MinRecentTokens: 30, KeepSystemMessages: true}, nil, zap.NewNop())

	filler := strings.Repeat("y", 120)
	msgs := make([]types.Message, 0, 10)
	msgs = append(msgs, msg(types.RoleSystem, "rules"))
	for i := 0; i < 9; i++ {
		msgs = append(msgs, msg(types.RoleUser, filler))
	}

	first := o.Optimize(msgs)
	require.Greater(t, first.MessagesRemoved, 0)

	second := o.Optimize(first.Messages)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, 0, second.MessagesRemoved, "second pass must be a no-op")
}

func TestOptimizer_PreservesChronologicalOrder(t *testing.T) {
	o := NewOptimizer(OptimizerConfig{MaxTokens: 250, MinRecentTokens: 50, KeepSystemMessages: true}, nil, zap.NewNop())

	filler := strings.Repeat("z", 100)
	msgs := []types.Message{
		msg(types.RoleSystem, "rules"),
		msg(types.RoleUser, "first "+filler),
		msg(types.RoleAssistant, "error: build failed "+filler), // scores high
		msg(types.RoleUser, "third "+filler),
		msg(types.RoleAssistant, "error: again "+filler), // scores high
		msg(types.RoleUser, "recent tail"),
	}

	result := o.Optimize(msgs)

	// Whatever subset was kept, its relative order must match the input.
	positions := make([]int, 0, len(result.Messages))
	for _, kept := range result.Messages {
		for i, original := range msgs {
			if original.Content == kept.Content {
				positions = append(positions, i)
				break
			}
		}
	}
	for i := 1; i < len(positions); i++ {
		assert.Greater(t, positions[i], positions[i-1], "kept messages out of order")
	}
}

func TestOptimizer_ScoresErrorMessagesHigher(t *testing.T) {
	o := NewOptimizer(DefaultOptimizerConfig(), nil, zap.NewNop())

	plain := o.scoreMessage(msg(types.RoleAssistant, "looks good"), 0, 10)
	erroring := o.scoreMessage(msg(types.RoleAssistant, "error: tests fail"), 0, 10)
	assert.Greater(t, erroring, plain)

	short := o.scoreMessage(msg(types.RoleUser, "ok"), 0, 10)
	long := o.scoreMessage(msg(types.RoleUser, strings.Repeat("detail ", 40)), 0, 10)
	assert.Greater(t, long, short)
}

func TestTruncateToTokens(t *testing.T) {
	o := NewOptimizer(DefaultOptimizerConfig(), nil, zap.NewNop())

	msgs := []types.Message{
		msg(types.RoleUser, strings.Repeat("a", 40)), // 20 tokens
		msg(types.RoleUser, strings.Repeat("b", 40)), // 20 tokens
		msg(types.RoleUser, strings.Repeat("c", 40)), // 20 tokens
	}

	kept := o.TruncateToTokens(msgs, 45)
	require.Len(t, kept, 2)
	assert.Equal(t, msgs[0].Content, kept[0].Content)
	assert.Equal(t, msgs[1].Content, kept[1].Content)

	assert.Empty(t, o.TruncateToTokens(msgs, 5))
}

func TestTiktokenTokenizer_FallsBackWithoutEncoding(t *testing.T) {
	// An unknown encoding cannot initialize; counting must still work via
	// the estimate fallback instead of erroring.
	tok := NewTiktokenTokenizer("no_such_encoding")
	assert.Greater(t, tok.CountTokens("hello world"), 0)
	assert.Greater(t, tok.CountMessageTokens(msg(types.RoleUser, "hello")), 10)
}
