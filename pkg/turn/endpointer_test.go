package turn

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voiceagent/runtime/pkg/ai/stt"
	"github.com/voiceagent/runtime/pkg/ai/vad"
)

func TestEndpointerSilenceTimerEndsTurn(t *testing.T) {
	is := is.New(t)

	e := NewEndpointer(Config{EndpointingSilenceMs: 20, FinalDebounceMs: 20})
	vadCh := make(chan vad.VADEvent, 4)
	sttCh := make(chan stt.SpeechEvent, 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := e.Run(ctx, vadCh, sttCh)

	vadCh <- vad.VADEvent{Type: vad.VADEventSpeechStart}
	vadCh <- vad.VADEvent{Type: vad.VADEventSpeechEnd}

	var sawStart, sawEnd bool
	for ev := range events {
		if ev.Kind == EventUserTurnStarted {
			sawStart = true
		}
		if ev.Kind == EventUserTurnEnded {
			sawEnd = true
			cancel()
		}
	}
	is.True(sawStart)
	is.True(sawEnd)
}

func TestEndpointerFinalShortCircuits(t *testing.T) {
	is := is.New(t)

	e := NewEndpointer(Config{EndpointingSilenceMs: 5000, FinalDebounceMs: 10})
	vadCh := make(chan vad.VADEvent, 4)
	sttCh := make(chan stt.SpeechEvent, 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := e.Run(ctx, vadCh, sttCh)

	vadCh <- vad.VADEvent{Type: vad.VADEventSpeechStart}
	vadCh <- vad.VADEvent{Type: vad.VADEventSpeechEnd}
	sttCh <- stt.SpeechEvent{Type: stt.SpeechEventFinal, Text: "yes I'll be there"}

	var endedText string
	for ev := range events {
		if ev.Kind == EventUserTurnEnded {
			endedText = ev.Text
			cancel()
		}
	}
	is.Equal(endedText, "yes I'll be there")
}

func TestEndpointerBargeIn(t *testing.T) {
	is := is.New(t)

	e := NewEndpointer(Config{})
	e.SetAgentSpeaking(true)

	vadCh := make(chan vad.VADEvent, 4)
	sttCh := make(chan stt.SpeechEvent, 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := e.Run(ctx, vadCh, sttCh)
	vadCh <- vad.VADEvent{Type: vad.VADEventSpeechStart}

	var sawBargeIn bool
	for ev := range events {
		if ev.Kind == EventAgentBargeInRequested {
			sawBargeIn = true
			cancel()
		}
	}
	is.True(sawBargeIn)
}
