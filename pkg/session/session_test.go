package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voiceagent/runtime/pkg/ai/llm"
	llmfake "github.com/voiceagent/runtime/pkg/ai/llm/fake"
	sttfake "github.com/voiceagent/runtime/pkg/ai/stt/fake"
	ttsfake "github.com/voiceagent/runtime/pkg/ai/tts/fake"
	vadfake "github.com/voiceagent/runtime/pkg/ai/vad/fake"
	"github.com/voiceagent/runtime/pkg/rtc"
	"github.com/voiceagent/runtime/pkg/tools"
	"github.com/voiceagent/runtime/pkg/turn"
)

func turnEventUserTurnStarted() turn.Event {
	return turn.Event{Kind: turn.EventUserTurnStarted}
}

func turnEventUserTurnEnded(text string) turn.Event {
	return turn.Event{Kind: turn.EventUserTurnEnded, Text: text}
}

func turnEventBargeIn() turn.Event {
	return turn.Event{Kind: turn.EventAgentBargeInRequested}
}

func llmToolCall(name string) llm.ToolCall {
	return llm.ToolCall{ID: "call_1", Name: name, Arguments: "{}"}
}

func validDeps() Deps {
	return Deps{
		STT:    sttfake.NewFakeSTT("hello there"),
		TTS:    ttsfake.NewFakeTTS(),
		LLM:    llmfake.NewFakeLLM("hi, how can I help"),
		VAD:    vadfake.NewFakeVAD(0.3),
		MicIn:  make(<-chan rtc.AudioFrame),
		TTSOut: make(chan<- rtc.AudioFrame),
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	is := is.New(t)

	deps := validDeps()
	deps.LLM = nil
	_, err := New("sess_1", Config{}, deps)
	is.True(err != nil)
}

func TestNewDefaultsToRegistryAndStartsIdle(t *testing.T) {
	is := is.New(t)

	s, err := New("sess_1", Config{Instructions: "be helpful"}, validDeps())
	is.NoErr(err)
	is.Equal(s.State(), StateIdle)
	is.Equal(len(s.ChatContext().Snapshot()), 1) // system prompt only
}

func TestConfigWithDefaults(t *testing.T) {
	is := is.New(t)

	cfg := Config{}.withDefaults()
	is.Equal(cfg.LLMTimeout, 30*time.Second)
	is.Equal(cfg.TTSTimeout, 5*time.Second)
	is.Equal(cfg.ToolShutdownGrace, 2*time.Second)
	is.Equal(cfg.ShutdownGrace, 5*time.Second)
	is.Equal(cfg.Language, "en-US")
}

func TestStateString(t *testing.T) {
	is := is.New(t)
	is.Equal(StateListening.String(), "Listening")
	is.Equal(StateToolRunning.String(), "ToolRunning")
	is.Equal(State(99).String(), "Unknown(99)")
}

func TestHandleEventUserTurnStartedFromListening(t *testing.T) {
	is := is.New(t)

	s, err := New("sess_1", Config{}, validDeps())
	is.NoErr(err)
	s.setState(StateListening)

	s.handleEvent(context.Background(), turnEventUserTurnStarted())
	is.Equal(s.State(), StateUserSpeaking)
}

func TestHandleEventEmptyTurnReturnsToListening(t *testing.T) {
	is := is.New(t)

	s, err := New("sess_1", Config{}, validDeps())
	is.NoErr(err)
	s.setState(StateUserSpeaking)

	s.handleEvent(context.Background(), turnEventUserTurnEnded(""))
	is.Equal(s.State(), StateListening)
}

func TestHandleBargeInCancelsActiveTurnAndReturnsToListening(t *testing.T) {
	is := is.New(t)

	s, err := New("sess_1", Config{}, validDeps())
	is.NoErr(err)
	s.setState(StateSpeaking)

	cancelled := false
	s.turnMu.Lock()
	s.turnCancel = func() { cancelled = true }
	s.turnMu.Unlock()

	s.handleEvent(context.Background(), turnEventBargeIn())
	is.True(cancelled)
	is.Equal(s.State(), StateListening)
}

func TestDispatchToolWithGraceDiscardsSlowTool(t *testing.T) {
	is := is.New(t)

	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Name:       "slow",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, params json.RawMessage) (tools.Result, error) {
			time.Sleep(50 * time.Millisecond)
			return tools.Result{OK: true, Value: "too late"}, nil
		},
	})

	deps := validDeps()
	deps.Tools = reg
	s, err := New("sess_1", Config{ToolShutdownGrace: 5 * time.Millisecond}, deps)
	is.NoErr(err)

	result := s.dispatchToolWithGrace(context.Background(), llmToolCall("slow"))
	is.True(contains(result, `"timeout"`))
}

func TestDispatchToolWithGraceReturnsFastResult(t *testing.T) {
	is := is.New(t)

	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Name:       "fast",
		Parameters: map[string]any{"type": "object"},
		Handler: func(ctx context.Context, params json.RawMessage) (tools.Result, error) {
			return tools.Result{OK: true, Value: "done"}, nil
		},
	})

	deps := validDeps()
	deps.Tools = reg
	s, err := New("sess_1", Config{ToolShutdownGrace: 2 * time.Second}, deps)
	is.NoErr(err)

	result := s.dispatchToolWithGrace(context.Background(), llmToolCall("fast"))
	is.True(contains(result, `"ok":true`))
}

func TestTruncatedWords(t *testing.T) {
	is := is.New(t)

	words := []string{"one", "two", "three"}
	is.Equal(truncatedWords(words, 2), "one two")
	is.Equal(truncatedWords(words, 0), "")
	is.Equal(truncatedWords(words, 10), "one two three")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
