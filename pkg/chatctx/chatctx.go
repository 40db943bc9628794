// Package chatctx holds the ordered conversation log a session exchanges
// with the LLM: system/user/assistant/tool messages, with the invariant
// that every tool-result message immediately follows the assistant
// message containing its matching tool-call id.
package chatctx

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Role is a closed enum for chat message roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single function invocation requested by the LLM.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in the chat context.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Context is the ordered, append-only (outside of Truncate) message log
// for one session. It is safe for concurrent use; per spec.md §3 it is
// mutated only by the session's orchestration loop or by tool handlers
// running under the session's cancellation scope, but tests exercise it
// directly so it guards its own state.
type Context struct {
	mu       sync.RWMutex
	messages []Message
	nextID   int
}

// New creates an empty chat context, optionally seeded with a system prompt.
func New(systemPrompt string) *Context {
	c := &Context{}
	if systemPrompt != "" {
		c.Append(Message{Role: RoleSystem, Content: systemPrompt})
	}
	return c
}

// Append adds a message to the end of the log, stamping an id and
// timestamp if they are not already set.
func (c *Context) Append(msg Message) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.ID == "" {
		c.nextID++
		msg.ID = fmt.Sprintf("msg_%d", c.nextID)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.messages = append(c.messages, msg)
	return msg
}

// AppendToolCalls appends an assistant message carrying one or more
// pending tool calls.
func (c *Context) AppendToolCalls(content string, calls []ToolCall) Message {
	return c.Append(Message{Role: RoleAssistant, Content: content, ToolCalls: calls})
}

// AppendToolResult appends a tool-result message paired to toolCallID.
// Callers are responsible for ensuring the id was issued by a preceding
// assistant tool-call message; Snapshot/validity checks enforce it.
func (c *Context) AppendToolResult(toolCallID, toolName, content string) Message {
	return c.Append(Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		ToolName:   toolName,
	})
}

// Snapshot returns an immutable copy of the current message log.
func (c *Context) Snapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// TruncatePredicate decides whether a message should be dropped.
type TruncatePredicate func(Message) bool

// Truncate removes every message for which pred returns true, then drops
// any now-orphaned tool-result messages so the pairing invariant holds.
// Calling Truncate again with a predicate that matches nothing already
// removed is a no-op, satisfying the idempotence property in spec.md §8.
func (c *Context) Truncate(pred TruncatePredicate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.messages[:0:0]
	for _, m := range c.messages {
		if !pred(m) {
			kept = append(kept, m)
		}
	}
	c.messages = dropOrphanedToolResults(kept)
}

// TruncateAssistantContent rewrites the most recent assistant message's
// content to the given prefix, used on barge-in to reflect only the
// portion of the utterance actually spoken. It never removes the
// message itself, so tool-call pairing is unaffected.
func (c *Context) TruncateAssistantContent(spoken string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			c.messages[i].Content = spoken
			return
		}
	}
}

// MessagesForLLM returns the message slice in provider order: exactly
// the stored order, since the log is already maintained in the order
// providers expect (system first, tool results immediately following
// their assistant tool-call message).
func (c *Context) MessagesForLLM() []Message {
	return c.Snapshot()
}

// Valid reports whether the tool-call/tool-result pairing invariant
// holds: every tool message is immediately preceded (ignoring other tool
// messages from the same batch) by an assistant message whose ToolCalls
// contains the tool message's ToolCallID, and no id is used twice.
func (c *Context) Valid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return validSequence(c.messages)
}

func validSequence(messages []Message) bool {
	seen := map[string]bool{}
	var pending map[string]bool
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				pending = map[string]bool{}
				for _, tc := range m.ToolCalls {
					pending[tc.ID] = true
				}
			} else {
				pending = nil
			}
		case RoleTool:
			if seen[m.ToolCallID] {
				return false
			}
			if pending == nil || !pending[m.ToolCallID] {
				return false
			}
			seen[m.ToolCallID] = true
		default:
			pending = nil
		}
	}
	return true
}

func dropOrphanedToolResults(messages []Message) []Message {
	out := messages[:0:0]
	var pending map[string]bool
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				pending = map[string]bool{}
				for _, tc := range m.ToolCalls {
					pending[tc.ID] = true
				}
			} else {
				pending = nil
			}
			out = append(out, m)
		case RoleTool:
			if pending != nil && pending[m.ToolCallID] {
				out = append(out, m)
			}
		default:
			out = append(out, m)
		}
	}
	return out
}

// MarshalJSON round-trips the full message log.
func (c *Context) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.messages)
}

// UnmarshalJSON restores a message log previously produced by
// MarshalJSON. The nextID counter is reset to continue after the
// highest numeric suffix found, so further Appends don't collide.
func (c *Context) UnmarshalJSON(data []byte) error {
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = messages
	c.nextID = 0
	for _, m := range messages {
		var n int
		if _, err := fmt.Sscanf(m.ID, "msg_%d", &n); err == nil && n > c.nextID {
			c.nextID = n
		}
	}
	return nil
}
