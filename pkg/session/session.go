// Package session implements the per-call conversation orchestrator:
// the state machine that drives STT, VAD-based turn detection, LLM
// inference with tool calls, and TTS playout, with barge-in and
// cancellation semantics. Grounded on pkg/agent/agent.go's Agent struct
// and run/handleVADEvent/handleSTTEvent/processLLMResponse/startSpeaking
// methods, generalized from that file's 4-state {Idle,Listening,
// Thinking,Speaking} machine to the 8-state machine in spec.md §3, and
// from its ad hoc `map[string]Tool` to pkg/tools.Registry. Retains the
// teacher's pattern of state held in an atomic.Int32 and per-turn
// goroutines that call setState directly once they own the active turn.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voiceagent/runtime/pkg/ai"
	"github.com/voiceagent/runtime/pkg/ai/llm"
	"github.com/voiceagent/runtime/pkg/ai/stt"
	"github.com/voiceagent/runtime/pkg/ai/tts"
	"github.com/voiceagent/runtime/pkg/ai/vad"
	"github.com/voiceagent/runtime/pkg/chatctx"
	"github.com/voiceagent/runtime/pkg/metrics"
	"github.com/voiceagent/runtime/pkg/rtc"
	"github.com/voiceagent/runtime/pkg/tools"
	"github.com/voiceagent/runtime/pkg/turn"
	"github.com/voiceagent/runtime/pkg/voiceadapt"
)

// State is the session's finite-state-machine position, per spec.md §3.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateUserSpeaking
	StateThinking
	StateSpeaking
	StateToolRunning
	StateEnding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateUserSpeaking:
		return "UserSpeaking"
	case StateThinking:
		return "Thinking"
	case StateSpeaking:
		return "Speaking"
	case StateToolRunning:
		return "ToolRunning"
	case StateEnding:
		return "Ending"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// EndReason is the outcome the dispatcher reports when a session exits,
// per spec.md §4.1.
type EndReason string

const (
	ReasonNormal          EndReason = "normal"
	ReasonParticipantLeft EndReason = "participantLeft"
	ReasonTimeout         EndReason = "timeout"
	ReasonFatalError      EndReason = "fatalError"
)

// Config tunes the session's timeouts, all with spec.md-documented
// defaults applied by withDefaults.
type Config struct {
	Instructions      string
	Language          string
	LLMTimeout        time.Duration
	TTSTimeout        time.Duration
	ToolShutdownGrace time.Duration
	ShutdownGrace     time.Duration
	Endpointing       turn.Config
	VoiceAdaptation   voiceadapt.Config
	VoiceAdaptationOn bool
}

func (c Config) withDefaults() Config {
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 30 * time.Second
	}
	if c.TTSTimeout <= 0 {
		c.TTSTimeout = 5 * time.Second
	}
	if c.ToolShutdownGrace <= 0 {
		c.ToolShutdownGrace = 2 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	return c
}

// Deps bundles the provider adapters and supporting components a
// Session needs. All fields are required except VoiceAdaptation.
type Deps struct {
	STT        stt.STT
	TTS        tts.TTS
	LLM        llm.LLM
	VAD        vad.VAD
	Tools      *tools.Registry
	Metrics    *metrics.Aggregator
	VoiceAdapt *voiceadapt.Engine

	MicIn  <-chan rtc.AudioFrame
	TTSOut chan<- rtc.AudioFrame
}

const maxToolCallsPerTurn = 10

// cannedApology is spoken when the LLM or a provider call fails twice
// within a turn, per spec.md §7.
const cannedApology = "I'm having trouble hearing you; could you repeat that?"

// cannedFarewell is the final utterance attempted before a fatal-error
// hangup, per spec.md §7.
const cannedFarewell = "I'm sorry, something went wrong; goodbye."

// cannedFallback is spoken when the LLM finishes a turn with no text and
// no pending tool call, per spec.md §8's boundary case.
const cannedFallback = "Sorry, could you say that again?"

// Session is the per-call orchestrator. One goroutine (run) owns state
// transitions driven by Endpointer events; a second, per-turn goroutine
// drives LLM/tool/TTS orchestration for the active turn and calls
// setState directly once it owns the turn, mirroring the teacher's
// pattern of dedicated per-phase goroutines updating shared atomic state.
type Session struct {
	id  string
	cfg Config
	log *slog.Logger

	deps Deps
	chat *chatctx.Context

	state     atomic.Int32
	turnCount atomic.Int32

	turnMu     sync.Mutex
	turnCancel context.CancelFunc

	endpointer *turn.Endpointer

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	sessionStart time.Time
	endReason    EndReason
}

// New constructs a Session. The ChatContext is seeded with cfg.Instructions
// as the system prompt.
func New(id string, cfg Config, deps Deps) (*Session, error) {
	if deps.STT == nil || deps.TTS == nil || deps.LLM == nil || deps.VAD == nil {
		return nil, fmt.Errorf("session %s: STT, TTS, LLM and VAD are all required", id)
	}
	if deps.MicIn == nil || deps.TTSOut == nil {
		return nil, fmt.Errorf("session %s: MicIn and TTSOut channels are required", id)
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewRegistry()
	}

	cfg = cfg.withDefaults()

	s := &Session{
		id:         id,
		cfg:        cfg,
		log:        slog.Default().With(slog.String("session_id", id)),
		deps:       deps,
		chat:       chatctx.New(cfg.Instructions),
		endpointer: turn.NewEndpointer(cfg.Endpointing),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.setState(StateIdle)
	return s, nil
}

// State returns the session's current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ChatContext exposes the session's chat log, primarily for tests and
// transcript inspection; tool handlers should use the registry instead.
func (s *Session) ChatContext() *chatctx.Context {
	return s.chat
}

// Done returns a channel closed once the session reaches Terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// EndReason returns the outcome recorded when the session ended.
func (s *Session) EndReason() EndReason {
	return s.endReason
}

func (s *Session) setState(next State) {
	s.state.Store(int32(next))
	s.log.Debug("state transition", slog.String("state", next.String()))
}

// Start runs the session to completion: it never returns until ctx is
// cancelled, Shutdown is called, or a fatal error ends the call.
func (s *Session) Start(ctx context.Context) error {
	s.sessionStart = time.Now()
	if s.deps.Metrics != nil {
		s.deps.Metrics.EmitSessionStarted(s.id)
	}
	defer close(s.done)
	defer s.emitSessionEnded()

	vadEvents, err := s.deps.VAD.Detect(ctx, s.deps.MicIn)
	if err != nil {
		return fmt.Errorf("failed to start VAD: %w", err)
	}

	sttStream, err := s.deps.STT.NewStream(ctx, stt.StreamConfig{
		SampleRate:  48000,
		NumChannels: 1,
		Lang:        s.cfg.Language,
		MaxRetry:    3,
	})
	if err != nil {
		return fmt.Errorf("failed to start STT: %w", err)
	}
	defer sttStream.CloseSend()

	feederCtx, feederCancel := context.WithCancel(ctx)
	defer feederCancel()
	go feedMicToSTT(feederCtx, s.deps.MicIn, sttStream)

	events := s.endpointer.Run(ctx, vadEvents, sttStream.Events())

	s.setState(StateListening)
	s.endReason = s.run(ctx, events)
	s.setState(StateEnding)
	s.drainForShutdown()
	s.setState(StateTerminated)
	return nil
}

// Shutdown requests the session end with the given reason. Idempotent.
func (s *Session) Shutdown(reason EndReason) {
	s.shutdownOnce.Do(func() {
		s.endReason = reason
		close(s.shutdown)
	})
}

func (s *Session) run(ctx context.Context, events <-chan turn.Event) EndReason {
	for {
		select {
		case <-ctx.Done():
			return s.endReasonOr(ReasonTimeout)
		case <-s.shutdown:
			return s.endReasonOr(ReasonNormal)
		case ev, ok := <-events:
			if !ok {
				return s.endReasonOr(ReasonNormal)
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Session) endReasonOr(fallback EndReason) EndReason {
	if s.endReason == "" {
		return fallback
	}
	return s.endReason
}

func (s *Session) handleEvent(ctx context.Context, ev turn.Event) {
	switch ev.Kind {
	case turn.EventUserTurnStarted:
		if s.State() == StateListening {
			s.setState(StateUserSpeaking)
		}

	case turn.EventPartialTranscript:
		// Forwarded for observability only; never triggers a turn end.

	case turn.EventUserTurnEnded:
		if ev.Text == "" {
			// Pure silence: no turn started, no LLM call, per spec.md §8.
			s.setState(StateListening)
			return
		}
		if s.State() != StateUserSpeaking && s.State() != StateListening {
			return
		}
		s.beginTurn(ctx, ev.Text)

	case turn.EventAgentBargeInRequested:
		if s.State() == StateSpeaking || s.State() == StateThinking {
			s.handleBargeIn()
		}
	}
}

// handleBargeIn cancels the active turn's context (stopping TTS/LLM
// within the cancellation propagation bound of spec.md §4.4), truncates
// the assistant message to the spoken prefix, and returns to Listening.
func (s *Session) handleBargeIn() {
	s.turnMu.Lock()
	cancel := s.turnCancel
	s.turnMu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.endpointer.SetAgentSpeaking(false)
	s.setState(StateListening)
}

// beginTurn appends the user message and spawns the per-turn goroutine
// that drives LLM inference, tool calls, and TTS playout. Per spec.md
// §4.4, no two turns overlap: the previous turn's cancel func is always
// cleared before a new one starts, and UserTurnEnded is only honored
// from Listening/UserSpeaking (never from Thinking/Speaking).
func (s *Session) beginTurn(ctx context.Context, userText string) {
	s.chat.Append(chatctx.Message{Role: chatctx.RoleUser, Content: userText})
	s.setState(StateThinking)

	turnCtx, cancel := context.WithCancel(ctx)
	s.turnMu.Lock()
	s.turnCancel = cancel
	s.turnMu.Unlock()

	record := metrics.TurnRecord{
		SessionID:  s.id,
		SpeechID:   fmt.Sprintf("%s_turn_%d", s.id, s.turnCount.Add(1)),
		UserText:   userText,
		SttFinalAt: time.Now(),
	}

	go func() {
		defer func() {
			s.turnMu.Lock()
			if s.turnCancel != nil {
				s.turnCancel()
				s.turnCancel = nil
			}
			s.turnMu.Unlock()
		}()
		s.processTurn(turnCtx, record)
	}()
}

func (s *Session) processTurn(ctx context.Context, record metrics.TurnRecord) {
	assistantText, interrupted := s.runLLMAndSpeak(ctx, &record)
	record.AssistantText = assistantText
	record.Interrupted = interrupted
	record.TTSDoneAt = time.Now()

	if s.deps.Metrics != nil {
		s.deps.Metrics.EmitTurn(record)
	}

	s.endpointer.SetAgentSpeaking(false)
	if s.State() != StateEnding && s.State() != StateTerminated {
		s.setState(StateListening)
	}
}

// runLLMAndSpeak drives the tool-calling loop and TTS playout for one
// turn. It returns the final assistant text spoken (possibly truncated
// by barge-in) and whether the turn was interrupted.
func (s *Session) runLLMAndSpeak(ctx context.Context, record *metrics.TurnRecord) (string, bool) {
	toolDefs := s.deps.Tools.Definitions()
	llmToolDefs := make([]llm.ToolDefinition, len(toolDefs))
	for i, d := range toolDefs {
		llmToolDefs[i] = llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}

	for attempt := 0; attempt < maxToolCallsPerTurn; attempt++ {
		text, toolCalls, _, err := s.completeWithRetry(ctx, llmToolDefs, record)
		if err != nil {
			if ctx.Err() != nil {
				return "", true // cancelled by barge-in or shutdown
			}
			s.speakCanned(ctx, cannedApology)
			return "", false
		}

		if len(toolCalls) == 0 {
			if text == "" {
				text = cannedFallback
			}
			s.chat.Append(chatctx.Message{Role: chatctx.RoleAssistant, Content: text})
			return s.speakAssistantText(ctx, text, record)
		}

		s.setState(StateToolRunning)
		s.chat.AppendToolCalls(text, toChatCtxCalls(toolCalls))
		for _, tc := range toolCalls {
			result := s.dispatchToolWithGrace(ctx, tc)
			s.chat.AppendToolResult(tc.ID, tc.Name, result)
		}
		s.setState(StateThinking)
	}

	s.log.Warn("max tool calls reached, forcing final response")
	text, _, _, err := s.completeWithRetry(ctx, nil, record)
	if err != nil || text == "" {
		text = cannedFallback
	}
	s.chat.Append(chatctx.Message{Role: chatctx.RoleAssistant, Content: text})
	return s.speakAssistantText(ctx, text, record)
}

func toChatCtxCalls(calls []llm.ToolCall) []chatctx.ToolCall {
	out := make([]chatctx.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = chatctx.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	return out
}

// completeWithRetry wraps runOneCompletion with the "transient provider
// error: retry at most once within the same turn" policy of spec.md §7.
// A fatal error or one caused by ctx cancellation (barge-in/shutdown)
// is never retried; only one retry is attempted even if it also fails.
func (s *Session) completeWithRetry(ctx context.Context, toolDefs []llm.ToolDefinition, record *metrics.TurnRecord) (string, []llm.ToolCall, string, error) {
	text, toolCalls, finishReason, err := s.runOneCompletion(ctx, toolDefs, record)
	if err == nil || ctx.Err() != nil || ai.IsFatal(err) {
		return text, toolCalls, finishReason, err
	}
	s.log.Warn("llm completion failed, retrying once this turn", slog.String("error", err.Error()))
	return s.runOneCompletion(ctx, toolDefs, record)
}

// runOneCompletion streams one LLM completion, buffering text tokens
// until Done (per spec.md §4.9's "buffer until complete text is
// available" fallback for TTS adapters that do not accept an ongoing
// text stream) and assembling any tool calls in arrival order.
func (s *Session) runOneCompletion(ctx context.Context, toolDefs []llm.ToolDefinition, record *metrics.TurnRecord) (string, []llm.ToolCall, string, error) {
	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	events, err := s.deps.LLM.Complete(llmCtx, messagesForLLM(s.chat), toolDefs, llm.CompletionOptions{})
	if err != nil {
		return "", nil, "", err
	}

	var text strings.Builder
	var toolCalls []llm.ToolCall
	var finishReason string
	gotFirstToken := false

	for ev := range events {
		switch ev.Kind {
		case llm.EventToken:
			if !gotFirstToken {
				gotFirstToken = true
				if record.LLMFirstTokenAt.IsZero() {
					record.LLMFirstTokenAt = time.Now()
				}
			}
			text.WriteString(ev.Token)
		case llm.EventToolCall:
			toolCalls = append(toolCalls, ev.ToolCall)
		case llm.EventDone:
			finishReason = ev.FinishReason
			record.LLMDoneAt = time.Now()
		case llm.EventError:
			return "", nil, "", ev.Err
		}
	}

	if llmCtx.Err() != nil {
		record.Error = "llm_timeout"
		return "", nil, "", llmCtx.Err()
	}

	return text.String(), toolCalls, finishReason, nil
}

func messagesForLLM(chat *chatctx.Context) []llm.Message {
	snap := chat.MessagesForLLM()
	out := make([]llm.Message, len(snap))
	for i, m := range snap {
		out[i] = llm.Message{
			Role:       llm.MessageRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
		}
		for _, tc := range m.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
	}
	return out
}

// dispatchToolWithGrace invokes the tool under ctx; if it does not
// return within ToolShutdownGrace, its result is discarded per spec.md
// §4.4.
func (s *Session) dispatchToolWithGrace(ctx context.Context, call llm.ToolCall) string {
	type outcome struct {
		result tools.Result
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		r, err := s.deps.Tools.Dispatch(ctx, call.Name, call.Arguments)
		resultCh <- outcome{r, err}
	}()

	select {
	case o := <-resultCh:
		if o.err != nil {
			return resultToJSON(tools.Result{ErrKind: "internal", Message: o.err.Error()})
		}
		return resultToJSON(o.result)
	case <-time.After(s.cfg.ToolShutdownGrace):
		return resultToJSON(tools.Result{ErrKind: "timeout", Message: "tool call discarded after grace period"})
	}
}

// resultToJSON renders a Result as the JSON object the LLM sees as a
// tool-result message, per spec.md §9's explicit {ok,value}|{err,kind,
// message} wire shape.
func resultToJSON(r tools.Result) string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"ok":false,"error_kind":"internal","message":"failed to encode tool result"}`
	}
	return string(b)
}

// speakAssistantText applies voice adaptation, transitions to Speaking,
// and streams TTS audio to ttsOut. It returns the text actually spoken
// (truncated on barge-in) and whether the turn was interrupted.
func (s *Session) speakAssistantText(ctx context.Context, text string, record *metrics.TurnRecord) (string, bool) {
	params := voiceadapt.DefaultParams()
	if s.deps.VoiceAdapt != nil {
		if p, applied := s.deps.VoiceAdapt.Derive(text, voiceadapt.StageConversation, time.Now()); applied {
			params = p
		}
	}

	s.setState(StateSpeaking)
	s.endpointer.SetAgentSpeaking(true)

	frames, err := s.deps.TTS.Synthesize(ctx, tts.SynthesizeRequest{
		Text:     text,
		Language: s.cfg.Language,
		Speed:    float32(params.Speed),
	})
	if err != nil {
		s.endpointer.SetAgentSpeaking(false)
		s.speakCanned(ctx, cannedApology)
		return "", false
	}

	// TTSTimeout bounds only the wait for the first audio byte, per
	// spec.md §5; once speech starts, playout is bounded solely by
	// ctx (barge-in or session shutdown), not by a fixed deadline.
	firstByteCtx, cancelFirstByte := context.WithTimeout(ctx, s.cfg.TTSTimeout)
	defer cancelFirstByte()

	full, interrupted, timedOut := s.streamFrames(ctx, firstByteCtx, frames, text, record)
	s.endpointer.SetAgentSpeaking(false)
	if timedOut {
		record.Error = "tts_timeout"
		s.speakCanned(ctx, cannedApology)
		return "", false
	}
	if interrupted {
		s.chat.TruncateAssistantContent(full)
	}
	return full, interrupted
}

// streamFrames forwards synthesized audio to ttsOut until the stream
// closes or ctx is cancelled (barge-in or shutdown). It approximates how
// much of text was actually spoken as one word per frame played, good
// enough to record a non-empty truncated transcript on interrupt.
func (s *Session) streamFrames(ctx, firstByteCtx context.Context, frames <-chan rtc.AudioFrame, fullText string, record *metrics.TurnRecord) (spoken string, interrupted bool, timedOut bool) {
	words := strings.Fields(fullText)
	framesSent := 0
	gotFirstFrame := false

	waitCtx := firstByteCtx
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return fullText, false, false
			}
			if !gotFirstFrame {
				gotFirstFrame = true
				record.TTSFirstByteAt = time.Now()
				waitCtx = ctx // first byte arrived; drop the TTSTimeout bound
			}
			select {
			case s.deps.TTSOut <- frame:
				framesSent++
			case <-ctx.Done():
				return truncatedWords(words, framesSent), true, false
			}
		case <-waitCtx.Done():
			if !gotFirstFrame && firstByteCtx.Err() != nil && ctx.Err() == nil {
				return "", false, true
			}
			return truncatedWords(words, framesSent), true, false
		}
	}
}

func truncatedWords(words []string, n int) string {
	if n >= len(words) {
		return strings.Join(words, " ")
	}
	if n <= 0 {
		return ""
	}
	return strings.Join(words[:n], " ")
}

// speakCanned synthesizes and plays a short fixed utterance (apology or
// farewell), best-effort: failures are swallowed since by the time this
// is called the session is already degrading gracefully.
func (s *Session) speakCanned(ctx context.Context, text string) {
	ttsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	frames, err := s.deps.TTS.Synthesize(ttsCtx, tts.SynthesizeRequest{Text: text, Language: s.cfg.Language})
	if err != nil {
		return
	}
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			select {
			case s.deps.TTSOut <- frame:
			case <-ttsCtx.Done():
				return
			}
		case <-ttsCtx.Done():
			return
		}
	}
}

// drainForShutdown gives the active turn up to ShutdownGrace to notice
// cancellation before Start returns, satisfying spec.md §8's "cancelling
// the session context results in all child tasks returning within
// shutdownGraceMs".
func (s *Session) drainForShutdown() {
	s.turnMu.Lock()
	cancel := s.turnCancel
	s.turnMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	deadline := time.Now().Add(s.cfg.ShutdownGrace)
	for time.Now().Before(deadline) {
		s.turnMu.Lock()
		done := s.turnCancel == nil
		s.turnMu.Unlock()
		if done {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *Session) emitSessionEnded() {
	if s.deps.Metrics == nil {
		return
	}
	reason := s.endReason
	if reason == "" {
		reason = ReasonNormal
	}
	s.deps.Metrics.EmitSessionEnded(s.id, string(reason), time.Since(s.sessionStart), int(s.turnCount.Load()))
}

func feedMicToSTT(ctx context.Context, micIn <-chan rtc.AudioFrame, stream stt.STTStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-micIn:
			if !ok {
				return
			}
			if err := stream.Push(frame); err != nil {
				return
			}
		}
	}
}
