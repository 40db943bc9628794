// Package fake provides an in-memory LLM test double that streams
// pre-scripted token/tool-call sequences, used the way pkg/ai/*/fake
// doubles are used throughout the teacher's test suite.
package fake

import (
	"context"
	"strings"

	"github.com/voiceagent/runtime/pkg/ai/llm"
)

// FakeLLM is a scriptable streaming LLM test double. Responses cycle
// through the configured list; if any user message contains
// "function" and tools were advertised, the first tool is called once
// instead of streaming text.
type FakeLLM struct {
	responses []string
	callCount int
}

// NewFakeLLM creates a fake LLM with cycling canned responses.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{
			"This is a fake response from the fake LLM provider.",
			"I'm a fake AI assistant. How can I help you?",
		}
	}
	return &FakeLLM{responses: responses}
}

// Complete streams a scripted response as a sequence of Token events
// followed by Done, or a single ToolCall event followed by Done.
func (f *FakeLLM) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts llm.CompletionOptions) (<-chan llm.Event, error) {
	events := make(chan llm.Event, 8)

	response := f.responses[f.callCount%len(f.responses)]
	f.callCount++

	wantsFunction := false
	for _, m := range messages {
		if m.Role == llm.RoleUser && strings.Contains(strings.ToLower(m.Content), "function") {
			wantsFunction = true
		}
	}

	go func() {
		defer close(events)

		if wantsFunction && len(tools) > 0 {
			select {
			case events <- llm.Event{Kind: llm.EventToolCall, ToolCall: llm.ToolCall{
				ID:        "fake_call_1",
				Name:      tools[0].Name,
				Arguments: `{"param":"fake_value"}`,
			}}:
			case <-ctx.Done():
				return
			}
			select {
			case events <- llm.Event{Kind: llm.EventDone, FinishReason: "tool_calls"}:
			case <-ctx.Done():
			}
			return
		}

		for _, word := range strings.Fields(response) {
			select {
			case events <- llm.Event{Kind: llm.EventToken, Token: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case events <- llm.Event{Kind: llm.EventDone, FinishReason: "stop"}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

// Capabilities returns the fake LLM capabilities.
func (f *FakeLLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		MaxTokens:         4096,
		SupportedModels:   []string{"fake-model-1"},
	}
}
