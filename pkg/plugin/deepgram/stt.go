// Package deepgram adapts Deepgram's real-time streaming transcription
// API to the pkg/ai/stt.STT interface, grounded on plugins/deepgram/stt.go's
// websocket client but rewritten against the current streaming port
// adapter (pkg/ai/stt.STTStream emitting stt.SpeechEvent) instead of the
// teacher's superseded Recognition/RecognitionStream shape.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voiceagent/runtime/pkg/ai/stt"
	"github.com/voiceagent/runtime/pkg/plugin"
	"github.com/voiceagent/runtime/pkg/rtc"
)

// Config tunes the Deepgram client.
type Config struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// DeepgramSTT implements stt.STT over Deepgram's streaming endpoint.
type DeepgramSTT struct {
	cfg Config
}

// NewDeepgramSTT constructs a DeepgramSTT with the given configuration,
// applying defaults for Model/Language/BaseURL.
func NewDeepgramSTT(cfg Config) (*DeepgramSTT, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://api.deepgram.com/v1/listen"
	}
	return &DeepgramSTT{cfg: cfg}, nil
}

func newDeepgramSTT(cfg map[string]any) (any, error) {
	config := Config{}
	if key, ok := cfg["api_key"].(string); ok {
		config.APIKey = key
	} else {
		config.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if model, ok := cfg["model"].(string); ok {
		config.Model = model
	}
	if lang, ok := cfg["language"].(string); ok {
		config.Language = lang
	}
	return NewDeepgramSTT(config)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        "stt",
		Name:        "deepgram",
		Factory:     newDeepgramSTT,
		Description: "Deepgram real-time streaming speech-to-text",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "Deepgram API key (or set DEEPGRAM_API_KEY env var)",
			"model":    "nova-2",
			"language": "en-US",
		},
	})
}

// NewStream opens a websocket connection to Deepgram and returns a
// stream that forwards Push'd frames as binary audio messages and
// translates Deepgram's JSON result messages into stt.SpeechEvent.
func (d *DeepgramSTT) NewStream(ctx context.Context, streamCfg stt.StreamConfig) (stt.STTStream, error) {
	u, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram base url: %w", err)
	}

	sampleRate := streamCfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 48000
	}
	lang := streamCfg.Lang
	if lang == "" {
		lang = d.cfg.Language
	}

	params := url.Values{}
	params.Add("model", d.cfg.Model)
	params.Add("language", lang)
	params.Add("encoding", "linear16")
	params.Add("sample_rate", fmt.Sprintf("%d", sampleRate))
	params.Add("channels", fmt.Sprintf("%d", max(1, streamCfg.NumChannels)))
	params.Add("interim_results", "true")
	params.Add("endpointing", "300")
	params.Add("utterance_end_ms", "1000")
	u.RawQuery = params.Encode()

	headers := map[string][]string{
		"Authorization": {"Token " + d.cfg.APIKey},
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("deepgram connect failed (status %d): %w", status, err)
	}

	s := &dgStream{
		conn:   conn,
		events: make(chan stt.SpeechEvent, 32),
		done:   make(chan struct{}),
	}
	go s.receiveLoop()
	return s, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (d *DeepgramSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		InterimResults:     true,
		SupportedLanguages: []string{"en-US", "en-GB", "es", "fr", "de", "it", "pt", "ja", "ko", "zh"},
		SampleRates:        []int{16000, 48000},
	}
}

type dgStream struct {
	conn   *websocket.Conn
	events chan stt.SpeechEvent

	mu         sync.Mutex
	closed     bool
	sendClosed bool
	done       chan struct{}
}

// Push forwards one PCM frame to Deepgram as a binary websocket message.
func (s *dgStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.sendClosed {
		return fmt.Errorf("deepgram stream is closed")
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
		return fmt.Errorf("deepgram send audio failed: %w", err)
	}
	return nil
}

func (s *dgStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend signals Deepgram that no more audio is coming; it does not
// close the receive side, which still needs to drain the trailing
// Results/UtteranceEnd messages.
func (s *dgStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.sendClosed {
		return nil
	}
	s.sendClosed = true
	if err := s.conn.WriteJSON(map[string]string{"type": "CloseStream"}); err != nil {
		slog.Warn("deepgram close-stream message failed", slog.String("error", err.Error()))
	}
	return nil
}

func (s *dgStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.conn.Close()
	close(s.events)
}

type dgResultsChannel struct {
	Alternatives []struct {
		Transcript string `json:"transcript"`
	} `json:"alternatives"`
}

type dgMessage struct {
	Type    string          `json:"type"`
	Channel json.RawMessage `json:"channel"`
	IsFinal bool            `json:"is_final"`
}

func (s *dgStream) receiveLoop() {
	defer s.close()
	for {
		s.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("deepgram read failed", slog.String("error", err.Error()))
			}
			return
		}

		var msg dgMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "Results" {
			continue
		}
		var channel dgResultsChannel
		if err := json.Unmarshal(msg.Channel, &channel); err != nil || len(channel.Alternatives) == 0 {
			continue
		}

		text := channel.Alternatives[0].Transcript
		if text == "" && !msg.IsFinal {
			continue
		}
		evType := stt.SpeechEventInterim
		if msg.IsFinal {
			evType = stt.SpeechEventFinal
		}
		ev := stt.SpeechEvent{
			Type:      evType,
			Text:      text,
			IsFinal:   msg.IsFinal,
			Timestamp: time.Now().UnixMilli(),
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
