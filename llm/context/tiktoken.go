package context

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/agentpipe/types"
)

// TiktokenTokenizer counts tokens with a real BPE encoding. It satisfies the
// same Tokenizer interface as EstimateTokenizer and falls back to estimation
// when the encoding cannot be initialized (tiktoken may download data on
// first use).
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
	fallback *EstimateTokenizer
	once     sync.Once
	initErr  error

	msgOverhead int
}

// NewTiktokenTokenizer creates a tokenizer for the given encoding name.
// The empty string selects cl100k_base.
func NewTiktokenTokenizer(encoding string) *TiktokenTokenizer {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{
		encoding:    encoding,
		fallback:    NewEstimateTokenizer(),
		msgOverhead: 10,
	}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens counts tokens in text.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessageTokens counts tokens in a message including formatting overhead.
func (t *TiktokenTokenizer) CountMessageTokens(msg types.Message) int {
	return t.msgOverhead + t.CountTokens(msg.Content)
}

// CountMessagesTokens counts total tokens in msgs.
func (t *TiktokenTokenizer) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}
