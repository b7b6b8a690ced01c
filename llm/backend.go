// Package llm defines the agent backend contract and the resilience
// decorator that wraps every backend call with caching, connection pooling,
// context-window budgeting, rate limiting, and retry.
//
// Concrete wire protocols (HTTP, SSE) live outside this module; anything
// satisfying AgentBackend can drive the pipeline.
package llm

import (
	"context"

	"github.com/BaSui01/agentpipe/types"
)

// InvokeRequest is one role-bound backend invocation.
type InvokeRequest struct {
	Role        types.AgentRole `json:"role"`
	Messages    []types.Message `json:"messages"`
	Model       string          `json:"model,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// NewInvokeRequest builds a request from a system prompt and a user prompt.
func NewInvokeRequest(role types.AgentRole, systemPrompt, userPrompt string) *InvokeRequest {
	return &InvokeRequest{
		Role: role,
		Messages: []types.Message{
			types.NewSystemMessage(systemPrompt),
			types.NewUserMessage(userPrompt),
		},
	}
}

// InvokeResponse is the backend's answer to one invocation.
type InvokeResponse struct {
	Content string           `json:"content"`
	Usage   types.TokenUsage `json:"usage"`
	Cached  bool             `json:"cached,omitempty"`
}

// ChunkFunc receives incremental text chunks during a streaming invocation.
type ChunkFunc func(chunk string)

// AgentBackend is the uniform interface over model backends. Implementations
// must return a *types.Error with a PROVIDER_* code on failure and must not
// fail for a merely low-quality response.
type AgentBackend interface {
	// Invoke performs a synchronous completion call.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)

	// Name returns the backend's unique identifier, used as its pool key.
	Name() string

	// SupportsStreaming reports whether InvokeStream is available.
	SupportsStreaming() bool
}

// StreamingBackend is implemented by backends that can deliver incremental
// output. The full response is still returned once the stream ends.
type StreamingBackend interface {
	AgentBackend

	// InvokeStream performs a streaming completion call, invoking onChunk
	// for every increment.
	InvokeStream(ctx context.Context, req *InvokeRequest, onChunk ChunkFunc) (*InvokeResponse, error)
}

// UsageRecorder receives the token usage of every successful invocation.
type UsageRecorder interface {
	RecordUsage(role types.AgentRole, model string, usage types.TokenUsage)
}
