// Package context fits message histories into model token budgets. It
// provides token estimation (approximate or tiktoken-backed) and an
// importance-scored sliding-window optimizer that keeps system messages and
// a trailing run of recent messages instead of simply truncating the end.
package context

import (
	"math"

	"github.com/BaSui01/agentpipe/types"
)

// Tokenizer counts tokens in text and messages.
type Tokenizer interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) int
	// CountMessageTokens counts tokens in a single message, including
	// per-message formatting overhead.
	CountMessageTokens(msg types.Message) int
	// CountMessagesTokens counts total tokens in a message slice.
	CountMessagesTokens(msgs []types.Message) int
}

// EstimateTokenizer approximates token counts from character length. It is
// deliberately not an exact tokenizer; the optimizer only needs a
// consistent, slightly conservative estimate.
type EstimateTokenizer struct {
	tokensPerChar float64
	msgOverhead   int
}

// NewEstimateTokenizer creates an EstimateTokenizer with the default ratio
// of 0.25 tokens per character and 10 tokens of per-message overhead.
func NewEstimateTokenizer() *EstimateTokenizer {
	return &EstimateTokenizer{
		tokensPerChar: 0.25,
		msgOverhead:   10,
	}
}

// CountTokens estimates tokens in text.
func (t *EstimateTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) * t.tokensPerChar))
}

// CountMessageTokens estimates tokens in a message.
func (t *EstimateTokenizer) CountMessageTokens(msg types.Message) int {
	return t.msgOverhead + t.CountTokens(msg.Content)
}

// CountMessagesTokens estimates total tokens in msgs.
func (t *EstimateTokenizer) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}
