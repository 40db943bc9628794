package chatctx

import (
	"encoding/json"
	"testing"

	"github.com/matryer/is"
)

func TestAppendAndSnapshot(t *testing.T) {
	is := is.New(t)

	c := New("you are a helpful voice agent")
	c.Append(Message{Role: RoleUser, Content: "hello"})
	c.Append(Message{Role: RoleAssistant, Content: "hi there"})

	snap := c.Snapshot()
	is.Equal(len(snap), 3)        // system + user + assistant
	is.Equal(snap[0].Role, RoleSystem)
	is.True(c.Valid())
}

func TestToolCallPairingInvariant(t *testing.T) {
	is := is.New(t)

	c := New("")
	c.AppendToolCalls("", []ToolCall{{ID: "call_1", Name: "endCall", Arguments: "{}"}})
	c.AppendToolResult("call_1", "endCall", `{"ok":true}`)

	is.True(c.Valid()) // paired tool result is valid

	// A dangling tool result with no matching call is invalid.
	bad := New("")
	bad.Append(Message{Role: RoleTool, Content: "oops", ToolCallID: "call_missing"})
	is.True(!bad.Valid())
}

func TestTruncateIsIdempotent(t *testing.T) {
	is := is.New(t)

	c := New("sys")
	c.Append(Message{Role: RoleUser, Content: "drop me"})
	c.Append(Message{Role: RoleAssistant, Content: "keep me"})

	pred := func(m Message) bool { return m.Content == "drop me" }
	c.Truncate(pred)
	first := c.Snapshot()

	c.Truncate(pred)
	second := c.Snapshot()

	is.Equal(len(first), len(second))
	for i := range first {
		is.Equal(first[i].Content, second[i].Content)
	}
}

func TestTruncateDropsOrphanedToolResult(t *testing.T) {
	is := is.New(t)

	c := New("")
	c.AppendToolCalls("", []ToolCall{{ID: "call_1", Name: "endCall"}})
	c.AppendToolResult("call_1", "endCall", "{}")

	c.Truncate(func(m Message) bool { return len(m.ToolCalls) > 0 })

	snap := c.Snapshot()
	is.Equal(len(snap), 0) // orphaned tool result dropped along with its call
	is.True(c.Valid())
}

func TestJSONRoundTrip(t *testing.T) {
	is := is.New(t)

	c := New("sys")
	c.Append(Message{Role: RoleUser, Content: "what's my balance"})
	c.AppendToolCalls("", []ToolCall{{ID: "call_1", Name: "lookup", Arguments: `{"id":42}`}})
	c.AppendToolResult("call_1", "lookup", `{"balance":10}`)

	data, err := json.Marshal(c)
	is.NoErr(err)

	restored := &Context{}
	is.NoErr(json.Unmarshal(data, restored))

	is.Equal(len(restored.Snapshot()), len(c.Snapshot()))
	is.True(restored.Valid())

	for i, m := range restored.Snapshot() {
		is.Equal(m.Role, c.Snapshot()[i].Role)
		is.Equal(m.Content, c.Snapshot()[i].Content)
	}
}
