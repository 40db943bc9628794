package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/voiceagent/runtime/pkg/ai/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAILLM implements the streaming llm.LLM interface using OpenAI GPT
// chat completion models.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// newOpenAILLM creates a new OpenAI LLM instance
func newOpenAILLM(config map[string]any) (any, error) {
	var apiKey string

	// Get API key from config or environment
	if key, ok := config["api_key"].(string); ok {
		apiKey = key
	} else {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}

	model, ok := config["model"].(string)
	if !ok || model == "" {
		model = "gpt-4o-mini" // default model
	}

	return &OpenAILLM{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Complete streams a chat completion, translating OpenAI's
// ChatCompletionStream deltas into the Token/ToolCall/Done/Error tagged
// union llm.Event expects. Tool-call argument fragments are accumulated
// per index and emitted whole once the stream finishes that call, since
// the session only consumes complete tool calls (pkg/session.runOneCompletion).
func (o *OpenAILLM) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, opts llm.CompletionOptions) (<-chan llm.Event, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(messages),
		Tools:       toOpenAITools(tools),
		Stream:      true,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat stream failed: %w", err)
	}

	events := make(chan llm.Event, 16)
	go func() {
		defer close(events)
		defer stream.Close()

		type pendingCall struct {
			id   string
			name string
			args string
		}
		pending := map[int]*pendingCall{}
		var order []int

		flushToolCalls := func(finish string) {
			for _, idx := range order {
				pc := pending[idx]
				events <- llm.Event{Kind: llm.EventToolCall, ToolCall: llm.ToolCall{ID: pc.id, Name: pc.name, Arguments: pc.args}}
			}
			events <- llm.Event{Kind: llm.EventDone, FinishReason: finish}
		}

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				flushToolCalls("stop")
				return
			}
			if err != nil {
				log.Printf("openai chat stream error: %v", err)
				events <- llm.Event{Kind: llm.EventError, Err: err}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				events <- llm.Event{Kind: llm.EventToken, Token: choice.Delta.Content}
			}

			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				pc, ok := pending[idx]
				if !ok {
					pc = &pendingCall{}
					pending[idx] = pc
					order = append(order, idx)
				}
				if tc.ID != "" {
					pc.id = tc.ID
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args += tc.Function.Arguments
			}

			if choice.FinishReason != "" {
				flushToolCalls(string(choice.FinishReason))
				return
			}
		}
	}()

	return events, nil
}

func toOpenAIMessages(messages []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = msg
	}
	return out
}

func toOpenAITools(tools []llm.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// Capabilities returns the OpenAI provider's capabilities.
func (o *OpenAILLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		MaxTokens:         128000,
		SupportedModels:   []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo"},
	}
}
