package metrics

import (
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
)

func TestEmitTurnOrdering(t *testing.T) {
	is := is.New(t)

	now := time.Now()
	r := TurnRecord{
		SessionID:       "sess_1",
		SttFinalAt:      now,
		LLMFirstTokenAt: now.Add(100 * time.Millisecond),
		LLMDoneAt:       now.Add(300 * time.Millisecond),
		TTSFirstByteAt:  now.Add(350 * time.Millisecond),
		TTSDoneAt:       now.Add(900 * time.Millisecond),
	}

	is.True(!r.SttFinalAt.After(r.LLMFirstTokenAt))
	is.True(!r.LLMFirstTokenAt.After(r.TTSFirstByteAt))
	is.True(!r.TTSFirstByteAt.After(r.TTSDoneAt))
	is.Equal(r.TotalLatencyMs(), int64(350))
}

func TestAggregatorForwardsTurnsNonBlocking(t *testing.T) {
	is := is.New(t)

	reg := prometheus.NewRegistry()
	agg := NewAggregator(reg)

	agg.EmitTurn(TurnRecord{SessionID: "sess_1"})
	select {
	case r := <-agg.Turns():
		is.Equal(r.SessionID, "sess_1")
	default:
		t.Fatal("expected a turn record to be forwarded")
	}
}

func TestAggregatorLifecycleEvents(t *testing.T) {
	is := is.New(t)

	reg := prometheus.NewRegistry()
	agg := NewAggregator(reg)

	agg.EmitSessionStarted("sess_2")
	started := <-agg.Lifecycle()
	is.True(started.Started)

	agg.EmitSessionEnded("sess_2", "normal", 5*time.Second, 3)
	ended := <-agg.Lifecycle()
	is.True(!ended.Started)
	is.Equal(ended.Reason, "normal")
	is.Equal(ended.TurnCount, 3)
}
