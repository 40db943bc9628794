package voiceadapt

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDeriveAppliesFirstUpdateImmediately(t *testing.T) {
	is := is.New(t)

	e := NewEngine(Config{RateLimitSeconds: 2, MemoryLimit: 5})
	params, applied := e.Derive("I need this cancelled immediately, this is terrible!", StageConversation, time.Now())
	is.True(applied)
	is.True(params.Speed >= 0.7 && params.Speed <= 1.4)
}

func TestDeriveRateLimitsUpdates(t *testing.T) {
	is := is.New(t)

	e := NewEngine(Config{RateLimitSeconds: 2, MemoryLimit: 5})
	now := time.Now()

	_, applied := e.Derive("hello there", StageConversation, now)
	is.True(applied)

	_, applied = e.Derive("another message right away", StageConversation, now.Add(500*time.Millisecond))
	is.True(!applied) // within rate limit window, update suppressed

	_, applied = e.Derive("a third message", StageConversation, now.Add(3*time.Second))
	is.True(applied) // rate limit window elapsed
}

func TestDefaultParamsUsedOnFailureIsAdvisory(t *testing.T) {
	is := is.New(t)

	d := DefaultParams()
	is.Equal(d.Speed, 1.0)
	is.Equal(d.Stage, StageConversation)
}

func TestSentimentScoring(t *testing.T) {
	is := is.New(t)
	is.Equal(scoreSentiment("thanks so much, that's great"), "positive")
	is.Equal(scoreSentiment("I'm really upset and angry about this"), "negative")
	is.Equal(scoreSentiment("what time is the meeting"), "neutral")
}
