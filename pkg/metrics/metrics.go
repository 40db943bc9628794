// Package metrics aggregates per-turn and per-session timing into
// Prometheus metrics. Grounded on pkg/agent/agent.go's AgentMetrics
// (expvar-based first-word-latency/state-transition/EOU-probability
// counters for a single in-process agent); this expansion replaces the
// process-global expvar surface with github.com/prometheus/client_golang
// metrics labeled by session ID, the natural multi-tenant upgrade path
// (see DESIGN.md).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TurnRecord is built incrementally during one turn and emitted once
// complete, per spec.md §3/§4.8.
type TurnRecord struct {
	SessionID       string
	SpeechID        string
	UserText        string
	AssistantText   string
	SttFinalAt      time.Time
	LLMFirstTokenAt time.Time
	LLMDoneAt       time.Time
	TTSFirstByteAt  time.Time
	TTSDoneAt       time.Time
	Interrupted     bool
	Error           string
}

// TotalLatencyMs is ttsFirstByteAt - sttFinalAt, per spec.md §4.8, or
// zero if either timestamp is unset.
func (r TurnRecord) TotalLatencyMs() int64 {
	if r.SttFinalAt.IsZero() || r.TTSFirstByteAt.IsZero() {
		return 0
	}
	return r.TTSFirstByteAt.Sub(r.SttFinalAt).Milliseconds()
}

// SessionLifecycleEvent mirrors spec.md §6's sessionStarted/sessionEnded
// metrics events.
type SessionLifecycleEvent struct {
	SessionID   string
	Started     bool
	Reason      string
	DurationMs  int64
	TurnCount   int
}

// Aggregator registers Prometheus collectors and exposes a channel of
// completed TurnRecords and lifecycle events for the dispatcher to
// forward, per spec.md §6 "metrics events (emitted on the metrics
// channel; consumer-defined transport)".
type Aggregator struct {
	turnLatency      *prometheus.HistogramVec
	sttFinalLatency  *prometheus.HistogramVec
	llmTTFT          *prometheus.HistogramVec
	ttsTTFB          *prometheus.HistogramVec
	turnsTotal       *prometheus.CounterVec
	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec

	turns     chan TurnRecord
	lifecycle chan SessionLifecycleEvent
}

// NewAggregator creates an Aggregator and registers its collectors with
// reg. Pass prometheus.NewRegistry() in tests to avoid collisions with
// the default global registry.
func NewAggregator(reg prometheus.Registerer) *Aggregator {
	a := &Aggregator{
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceagent_turn_total_latency_ms",
			Help:    "End-to-end turn latency from STT final to TTS first byte.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		}, []string{"session_id"}),
		sttFinalLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceagent_stt_final_latency_ms",
			Help:    "Latency from turn-end detection to STT final.",
			Buckets: prometheus.ExponentialBuckets(20, 2, 8),
		}, []string{"session_id"}),
		llmTTFT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceagent_llm_ttft_ms",
			Help:    "LLM time-to-first-token.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		}, []string{"session_id"}),
		ttsTTFB: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceagent_tts_ttfb_ms",
			Help:    "TTS time-to-first-byte.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10),
		}, []string{"session_id"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_turns_total",
			Help: "Completed turns, labeled by whether they were interrupted.",
		}, []string{"interrupted"}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voiceagent_sessions_started_total",
			Help: "Sessions started.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceagent_sessions_ended_total",
			Help: "Sessions ended, labeled by reason.",
		}, []string{"reason"}),
		turns:     make(chan TurnRecord, 64),
		lifecycle: make(chan SessionLifecycleEvent, 64),
	}

	reg.MustRegister(a.turnLatency, a.sttFinalLatency, a.llmTTFT, a.ttsTTFB, a.turnsTotal, a.sessionsStarted, a.sessionsEnded)
	return a
}

// Turns returns the channel of completed TurnRecords for a dispatcher to
// forward as the external "metrics events" interface.
func (a *Aggregator) Turns() <-chan TurnRecord {
	return a.turns
}

// Lifecycle returns the channel of session lifecycle events.
func (a *Aggregator) Lifecycle() <-chan SessionLifecycleEvent {
	return a.lifecycle
}

// EmitTurn records a completed turn's Prometheus observations and
// forwards it on the Turns channel. Non-blocking: if the channel is
// full the record is dropped from the external feed but still recorded
// in Prometheus, since Prometheus scraping must never be starved by a
// slow consumer.
func (a *Aggregator) EmitTurn(r TurnRecord) {
	interrupted := "false"
	if r.Interrupted {
		interrupted = "true"
	}
	a.turnsTotal.WithLabelValues(interrupted).Inc()

	if total := r.TotalLatencyMs(); total > 0 {
		a.turnLatency.WithLabelValues(r.SessionID).Observe(float64(total))
	}
	if !r.SttFinalAt.IsZero() && !r.LLMFirstTokenAt.IsZero() {
		a.sttFinalLatency.WithLabelValues(r.SessionID).Observe(float64(r.LLMFirstTokenAt.Sub(r.SttFinalAt).Milliseconds()))
		a.llmTTFT.WithLabelValues(r.SessionID).Observe(float64(r.LLMFirstTokenAt.Sub(r.SttFinalAt).Milliseconds()))
	}
	if !r.LLMDoneAt.IsZero() && !r.TTSFirstByteAt.IsZero() {
		a.ttsTTFB.WithLabelValues(r.SessionID).Observe(float64(r.TTSFirstByteAt.Sub(r.LLMDoneAt).Milliseconds()))
	}

	select {
	case a.turns <- r:
	default:
	}
}

// EmitSessionStarted records a session start.
func (a *Aggregator) EmitSessionStarted(sessionID string) {
	a.sessionsStarted.Inc()
	select {
	case a.lifecycle <- SessionLifecycleEvent{SessionID: sessionID, Started: true}:
	default:
	}
}

// EmitSessionEnded records a session end.
func (a *Aggregator) EmitSessionEnded(sessionID, reason string, duration time.Duration, turnCount int) {
	a.sessionsEnded.WithLabelValues(reason).Inc()
	select {
	case a.lifecycle <- SessionLifecycleEvent{
		SessionID:  sessionID,
		Started:    false,
		Reason:     reason,
		DurationMs: duration.Milliseconds(),
		TurnCount:  turnCount,
	}:
	default:
	}
}
