package turn

import (
	"context"
	"sync"
	"time"

	"github.com/voiceagent/runtime/pkg/ai/stt"
	"github.com/voiceagent/runtime/pkg/ai/vad"
)

// EventKind discriminates the Endpointer's tagged-sum output, per
// spec.md §4.3: UserTurnStarted | PartialTranscript | UserTurnEnded |
// AgentBargeInRequested.
type EventKind int

const (
	EventUserTurnStarted EventKind = iota
	EventPartialTranscript
	EventUserTurnEnded
	EventAgentBargeInRequested
)

// Event is one signal the Endpointer emits for the session to consume.
type Event struct {
	Kind    EventKind
	Text    string
	EndedAt time.Time
}

// Config tunes the Endpointer's hangover/debounce timers. Zero values
// are replaced with spec.md's documented defaults.
type Config struct {
	// EndpointingSilenceMs is how long VAD must report silence before a
	// turn end is declared, absent an STT final. Default/spec range:
	// 50-300ms; this implementation defaults to 200ms.
	EndpointingSilenceMs int
	// FinalDebounceMs holds an STT final for this long, in case a new
	// partial arrives proving the speaker paused rather than finished.
	FinalDebounceMs int
}

func (c Config) withDefaults() Config {
	if c.EndpointingSilenceMs <= 0 {
		c.EndpointingSilenceMs = 200
	}
	if c.FinalDebounceMs <= 0 {
		c.FinalDebounceMs = 200
	}
	return c
}

// speaking is the Endpointer's notion of whether the agent is currently
// speaking, fed in by the session so barge-in can be detected.
type speakingState struct {
	mu       sync.RWMutex
	speaking bool
}

func (s *speakingState) set(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}

func (s *speakingState) get() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

// Endpointer fuses VAD voice/silence events with STT partial/final
// events into the turn-taking signals the session state machine acts
// on, per spec.md §4.3's algorithm.
type Endpointer struct {
	cfg Config

	agentSpeaking speakingState

	mu             sync.Mutex
	silenceTimer   *time.Timer
	debounceTimer  *time.Timer
	pendingFinal   string
	voiceActive    bool
	sawFinal       bool
}

// NewEndpointer creates an Endpointer with the given configuration.
func NewEndpointer(cfg Config) *Endpointer {
	return &Endpointer{cfg: cfg.withDefaults()}
}

// SetAgentSpeaking tells the Endpointer whether the agent is currently
// streaming TTS audio, so a VAD speech-start during that window is
// surfaced as a barge-in rather than a new user turn.
func (e *Endpointer) SetAgentSpeaking(speaking bool) {
	e.agentSpeaking.set(speaking)
}

// Run fuses vadEvents and sttEvents into the Endpointer's output event
// stream until ctx is cancelled or either input channel closes.
func (e *Endpointer) Run(ctx context.Context, vadEvents <-chan vad.VADEvent, sttEvents <-chan stt.SpeechEvent) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		defer e.stopTimers()

		emit := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case v, ok := <-vadEvents:
				if !ok {
					vadEvents = nil
					if sttEvents == nil {
						return
					}
					continue
				}
				switch v.Type {
				case vad.VADEventSpeechStart:
					if e.agentSpeaking.get() {
						if !emit(Event{Kind: EventAgentBargeInRequested}) {
							return
						}
						continue
					}
					e.mu.Lock()
					e.voiceActive = true
					e.sawFinal = false
					e.stopTimersLocked()
					e.mu.Unlock()
					if !emit(Event{Kind: EventUserTurnStarted}) {
						return
					}
				case vad.VADEventSpeechEnd:
					e.mu.Lock()
					e.voiceActive = false
					e.mu.Unlock()
					e.armSilenceTimer(ctx, out)
				}

			case s, ok := <-sttEvents:
				if !ok {
					sttEvents = nil
					if vadEvents == nil {
						return
					}
					continue
				}
				switch s.Type {
				case stt.SpeechEventInterim:
					if !emit(Event{Kind: EventPartialTranscript, Text: s.Text}) {
						return
					}
				case stt.SpeechEventFinal:
					e.handleFinal(ctx, s.Text, out)
				}
			}
		}
	}()

	return out
}

// handleFinal implements the "final short-circuits the hangover timer,
// but if VAD still reports voice, hold for finalDebounceMs" edge case.
func (e *Endpointer) handleFinal(ctx context.Context, text string, out chan<- Event) {
	e.mu.Lock()
	e.sawFinal = true
	stillVoiceActive := e.voiceActive
	e.stopTimersLocked()
	e.mu.Unlock()

	if !stillVoiceActive {
		select {
		case out <- Event{Kind: EventUserTurnEnded, Text: text, EndedAt: time.Now()}:
		case <-ctx.Done():
		}
		return
	}

	e.mu.Lock()
	e.pendingFinal = text
	e.debounceTimer = time.AfterFunc(time.Duration(e.cfg.FinalDebounceMs)*time.Millisecond, func() {
		e.mu.Lock()
		pending := e.pendingFinal
		e.pendingFinal = ""
		e.mu.Unlock()
		if pending == "" {
			return
		}
		select {
		case out <- Event{Kind: EventUserTurnEnded, Text: pending, EndedAt: time.Now()}:
		case <-ctx.Done():
		}
	})
	e.mu.Unlock()
}

// armSilenceTimer starts the hangover timer on VAD speech-end, declaring
// turn end after EndpointingSilenceMs unless STT already produced a
// final (handleFinal short-circuits it).
func (e *Endpointer) armSilenceTimer(ctx context.Context, out chan<- Event) {
	e.mu.Lock()
	if e.sawFinal {
		e.mu.Unlock()
		return
	}
	if e.silenceTimer != nil {
		e.silenceTimer.Stop()
	}
	e.silenceTimer = time.AfterFunc(time.Duration(e.cfg.EndpointingSilenceMs)*time.Millisecond, func() {
		e.mu.Lock()
		alreadyFinal := e.sawFinal
		e.mu.Unlock()
		if alreadyFinal {
			return
		}
		select {
		case out <- Event{Kind: EventUserTurnEnded, EndedAt: time.Now()}:
		case <-ctx.Done():
		}
	})
	e.mu.Unlock()
}

func (e *Endpointer) stopTimersLocked() {
	if e.silenceTimer != nil {
		e.silenceTimer.Stop()
		e.silenceTimer = nil
	}
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
}

func (e *Endpointer) stopTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimersLocked()
}
