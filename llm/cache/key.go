package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/agentpipe/types"
)

// Fingerprint captures everything that makes two backend requests logically
// identical: the ordered (role, content) pairs plus sampling parameters.
// Identical logical requests always produce identical keys.
type Fingerprint struct {
	Messages    []FingerprintMessage `json:"messages"`
	Model       string               `json:"model"`
	Temperature float32              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

// FingerprintMessage is the (role, content) projection of a message.
// Timestamps and names are deliberately excluded so that re-sent requests
// hash identically.
type FingerprintMessage struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

// NewFingerprint projects messages and sampling parameters into a Fingerprint.
func NewFingerprint(msgs []types.Message, model string, temperature float32, maxTokens int) Fingerprint {
	fp := Fingerprint{
		Messages:    make([]FingerprintMessage, len(msgs)),
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	for i, m := range msgs {
		fp.Messages[i] = FingerprintMessage{Role: m.Role, Content: m.Content}
	}
	return fp
}

// Key returns the stable cache key for the fingerprint.
func (f Fingerprint) Key() string {
	data, err := json.Marshal(f)
	if err != nil {
		// fallback: deterministic string to avoid key collisions
		data = []byte(fmt.Sprintf("%v", f))
	}
	hash := sha256.Sum256(data)
	return "response:" + hex.EncodeToString(hash[:16])
}
