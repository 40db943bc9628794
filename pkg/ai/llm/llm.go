// Package llm provides the streaming large-language-model port adapter.
// The interface is a tagged-sum event stream (spec.md §9: "Dataclass-style
// message objects ... re-architect as tagged sums") merged from two
// teacher shapes: pkg/ai/llm's narrow Chat-only interface and
// services/llm's ChatStream/ChatCompletionChunk streaming types, needed
// for the spec's Token/ToolCall/Done/Error LLM event sum type.
package llm

import (
	"context"

	"github.com/voiceagent/runtime/pkg/ai"
)

// LLM-specific error variables for backward compatibility with the
// teacher's port-adapter error convention.
var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// MessageRole mirrors chatctx.Role for the provider-facing wire format.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCall is a function invocation the LLM is requesting.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// Message is one entry of the conversation sent to the provider.
type Message struct {
	Role       MessageRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolDefinition declares a function tool available to the LLM.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// CompletionOptions tunes a single Complete call.
type CompletionOptions struct {
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// EventKind discriminates the LLMEvent tagged union.
type EventKind int

const (
	EventToken EventKind = iota
	EventToolCall
	EventDone
	EventError
)

// Event is the tagged-sum LLMEvent: Token{text} | ToolCall{id,name,args} |
// Done{finishReason} | Error{err}.
type Event struct {
	Kind         EventKind
	Token        string
	ToolCall     ToolCall
	FinishReason string
	Err          error
}

// LLM is the main interface for large-language-model providers.
type LLM interface {
	// Complete streams a chat completion. The returned channel is closed
	// after a Done or Error event. Tool calls are assembled from provider
	// deltas internally and emitted whole as a single EventToolCall.
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition, opts CompletionOptions) (<-chan Event, error)

	// Capabilities returns the provider's capabilities.
	Capabilities() Capabilities
}

// Capabilities describes what an LLM provider supports.
type Capabilities struct {
	SupportsTools     bool
	SupportsStreaming bool
	MaxTokens         int
	SupportedModels   []string
}
