// Package voiceadapt implements the Voice Adaptation Engine: it analyzes
// the most recent user utterance and derives TTS speed/emotion/delay
// parameters. It has no teacher equivalent — the teacher has no
// sentiment/prosody layer — so it is grounded instead in the teacher's
// general "derive parameters, degrade to defaults on error, never fail
// the session" pattern used by pkg/agent/background_audio.go's optional
// subsystem (see DESIGN.md). Scoring is stdlib-only lexicon matching, no
// ML dependency, per spec.md §4.6.
package voiceadapt

import (
	"strings"
	"sync"
	"time"
)

// Stage is the conversation stage, which gates which tools/prompt
// variant the session advertises per spec.md §9's single-agent
// "stage-scoped tool subsets" design note.
type Stage string

const (
	StageGreeting     Stage = "greeting"
	StageConversation Stage = "conversation"
	StageAppAction    Stage = "appAction"
	StageEndCall      Stage = "endCall"
)

// Emotion is a named affect with an intensity in [0,1].
type Emotion struct {
	Kind      string
	Intensity float64
}

// Params is the TTS parameter vector the engine derives.
type Params struct {
	Speed           float64 // clamped to [0.7, 1.4]
	Emotions        []Emotion
	PreSpeechDelayMs int
	Stage           Stage
}

// DefaultParams is the advisory fallback used whenever the engine fails
// or is disabled; voice adaptation is never fatal to the session.
func DefaultParams() Params {
	return Params{Speed: 1.0, PreSpeechDelayMs: 0, Stage: StageConversation}
}

// Config tunes rate limiting and history mirroring.
type Config struct {
	// RateLimitSeconds bounds updates to at most one per this many
	// seconds; skipped decisions coalesce into the next allowed update.
	RateLimitSeconds float64
	// MemoryLimit bounds the per-session history used for mirroring.
	MemoryLimit int
}

func (c Config) withDefaults() Config {
	if c.RateLimitSeconds <= 0 {
		c.RateLimitSeconds = 2.0
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 20
	}
	return c
}

// Engine derives voice-adaptation parameters from utterance text,
// rate-limited and blended with recent history. Safe for concurrent use
// by a single session (one call per turn is expected, but guarded
// anyway since tool handlers may also inspect state).
type Engine struct {
	cfg Config

	mu         sync.Mutex
	history    []Params
	lastUpdate time.Time
	pending    *Params
}

// NewEngine creates a voice adaptation engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Derive analyzes text and the current conversation stage and returns
// the parameter vector to apply, or DefaultParams() if the rate limit
// suppressed this update (the session should keep using its last
// applied params in that case — Derive reports via the bool whether a
// new value should be applied).
func (e *Engine) Derive(text string, stage Stage, now time.Time) (Params, bool) {
	sentiment := scoreSentiment(text)
	urgency := scoreUrgency(text)
	complexity := scoreComplexity(text)

	decision := deriveParams(sentiment, urgency, complexity, stage)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastUpdate.IsZero() && now.Sub(e.lastUpdate).Seconds() < e.cfg.RateLimitSeconds {
		e.pending = &decision
		return DefaultParams(), false
	}

	blended := e.mirror(decision)
	e.lastUpdate = now
	e.pending = nil
	e.history = append(e.history, blended)
	if len(e.history) > e.cfg.MemoryLimit {
		e.history = e.history[len(e.history)-e.cfg.MemoryLimit:]
	}
	return blended, true
}

// mirror blends the new decision with the moving average of recent
// history, 30% history / 70% new, per spec.md §4.6.
func (e *Engine) mirror(decision Params) Params {
	if len(e.history) == 0 {
		return decision
	}

	var avgSpeed float64
	var avgDelay float64
	for _, h := range e.history {
		avgSpeed += h.Speed
		avgDelay += float64(h.PreSpeechDelayMs)
	}
	n := float64(len(e.history))
	avgSpeed /= n
	avgDelay /= n

	blended := decision
	blended.Speed = clamp(0.3*avgSpeed+0.7*decision.Speed, 0.7, 1.4)
	blended.PreSpeechDelayMs = int(0.3*avgDelay + 0.7*float64(decision.PreSpeechDelayMs))
	return blended
}

func deriveParams(sentiment string, urgency, complexity float64, stage Stage) Params {
	speed := 1.0
	speed += urgency * 0.2
	speed -= complexity * 0.15
	if sentiment == "negative" {
		speed -= 0.1
	}
	speed = clamp(speed, 0.7, 1.4)

	var emotions []Emotion
	switch sentiment {
	case "positive":
		emotions = append(emotions, Emotion{Kind: "warm", Intensity: 0.6})
	case "negative":
		emotions = append(emotions, Emotion{Kind: "empathetic", Intensity: 0.7})
	default:
		emotions = append(emotions, Emotion{Kind: "neutral", Intensity: 0.3})
	}
	if urgency > 0.5 {
		emotions = append(emotions, Emotion{Kind: "urgent", Intensity: urgency})
	}

	delay := 0
	if sentiment == "negative" {
		delay = 300
	}

	return Params{Speed: speed, Emotions: emotions, PreSpeechDelayMs: delay, Stage: stage}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

var positiveWords = []string{"great", "thanks", "thank you", "awesome", "perfect", "good", "yes", "sure"}
var negativeWords = []string{"angry", "upset", "frustrated", "terrible", "bad", "no", "never", "cancel", "complaint"}
var urgentWords = []string{"now", "immediately", "urgent", "asap", "emergency", "right away"}

func scoreSentiment(text string) string {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	switch {
	case neg > pos:
		return "negative"
	case pos > neg:
		return "positive"
	default:
		return "neutral"
	}
}

func scoreUrgency(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range urgentWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	score := float64(hits) / 3.0
	return clamp(score, 0, 1)
}

func scoreComplexity(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	sentences := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '?' || r == '!' })
	avgWordsPerSentence := float64(len(words))
	if len(sentences) > 0 {
		avgWordsPerSentence = float64(len(words)) / float64(len(sentences))
	}
	questionDensity := float64(strings.Count(text, "?")) / float64(max(len(sentences), 1))
	score := (avgWordsPerSentence/20.0)*0.7 + questionDensity*0.3
	return clamp(score, 0, 1)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
