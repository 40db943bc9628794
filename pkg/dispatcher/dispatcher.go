// Package dispatcher is the Worker Dispatcher of spec.md §4.1: it owns
// the control-plane websocket loop (internal/worker.Worker), accepts
// startJob signals, resolves each job's AgentConfig, wires provider
// adapters from pkg/plugin, and runs one pkg/session.Session per job to
// completion — reporting the outcome back to the control plane.
//
// Grounded on internal/worker.go's reconnect loop (kept as-is) plus
// pkg/job's Job/JobContext/Room/Metadata family, which this package
// finally exercises end to end.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voiceagent/runtime/internal/worker"
	"github.com/voiceagent/runtime/pkg/ai/llm"
	"github.com/voiceagent/runtime/pkg/ai/stt"
	"github.com/voiceagent/runtime/pkg/ai/tts"
	"github.com/voiceagent/runtime/pkg/ai/vad"
	"github.com/voiceagent/runtime/pkg/config"
	"github.com/voiceagent/runtime/pkg/dialer"
	"github.com/voiceagent/runtime/pkg/job"
	"github.com/voiceagent/runtime/pkg/metrics"
	"github.com/voiceagent/runtime/pkg/plugin"
	"github.com/voiceagent/runtime/pkg/session"
	"github.com/voiceagent/runtime/pkg/tools"
	"github.com/voiceagent/runtime/pkg/turn"
	"github.com/voiceagent/runtime/pkg/voiceadapt"
)

// Deps bundles the shared, process-lifetime collaborators every spawned
// session is built from.
type Deps struct {
	Config  config.Config
	Store   config.AgentConfigStore
	Metrics *metrics.Aggregator
	Dialer  *dialer.Dialer // required for a job to place its outbound call; also backs the transferCall tool
	Logger  *slog.Logger
}

// Dispatcher runs the worker control loop and turns startJob signals
// into live sessions.
type Dispatcher struct {
	deps Deps
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
	worker   *worker.Worker
}

// New constructs a Dispatcher. deps.Logger defaults to slog.Default()
// if nil.
func New(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Dispatcher{
		deps:     deps,
		log:      deps.Logger,
		sessions: make(map[string]*session.Session),
	}
}

// Run connects to the control plane at url/token and processes signals
// until ctx is cancelled, reconnecting with backoff on transport
// failures (internal/worker.Worker's responsibility).
func (d *Dispatcher) Run(ctx context.Context, url, token string) error {
	w := worker.New(worker.Config{
		URL:        url,
		Token:      token,
		OnStartJob: d.handleStartJobSignal,
	}, d.log)
	d.mu.Lock()
	d.worker = w
	d.mu.Unlock()
	return w.Run(ctx)
}

// reportJobStatus pushes a JobStatus command to the control plane for
// the given job, per spec.md §4.1/§6. It is a no-op before Run has
// connected a worker, which only matters for tests that exercise
// buildSession/runJob directly without a live control-plane socket.
func (d *Dispatcher) reportJobStatus(jobID string, reason session.EndReason) {
	d.mu.RLock()
	w := d.worker
	d.mu.RUnlock()
	if w == nil {
		return
	}
	w.SendJobStatus(jobID, "completed", string(reason))
}

// ActiveSessions returns the number of jobs currently being handled,
// for health/metrics reporting.
func (d *Dispatcher) ActiveSessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// jobPayload is the shape this dispatcher expects in a startJob
// signal's Data field. The control plane is assumed to have already
// minted a room-join token scoped to the agent's identity.
type jobPayload struct {
	JobID     string
	RoomName  string
	RoomToken string
	Metadata  string
}

func parseJobPayload(data map[string]any) (jobPayload, error) {
	var p jobPayload
	var ok bool
	if p.JobID, ok = data["job_id"].(string); !ok || p.JobID == "" {
		return p, fmt.Errorf("startJob signal missing job_id")
	}
	if p.RoomName, ok = data["room_name"].(string); !ok || p.RoomName == "" {
		return p, fmt.Errorf("startJob signal missing room_name")
	}
	if p.RoomToken, ok = data["room_token"].(string); !ok || p.RoomToken == "" {
		return p, fmt.Errorf("startJob signal missing room_token")
	}
	p.Metadata, _ = data["metadata"].(string)
	return p, nil
}

// handleStartJobSignal is internal/worker.Config.OnStartJob: it must
// not block the signal-processing loop longer than it takes to spawn
// the job's goroutine.
func (d *Dispatcher) handleStartJobSignal(ctx context.Context, signal *worker.Signal) {
	payload, err := parseJobPayload(signal.Data)
	if err != nil {
		d.log.Error("rejecting malformed startJob signal", slog.String("error", err.Error()))
		return
	}

	log := d.log.With(slog.String("job_id", payload.JobID), slog.String("room", payload.RoomName))

	md, err := job.ParseMetadata(payload.Metadata)
	if err != nil {
		log.Error("rejecting job with invalid metadata", slog.String("error", err.Error()))
		d.reportJobStatus(payload.JobID, session.ReasonFatalError)
		return
	}

	jobCtx := job.NewJobContext(ctx)
	go d.runJob(jobCtx, log, payload, md)
}

// runJob builds the session for one job and runs it to completion,
// recovering from any panic so one bad job never takes down the
// dispatcher (spec.md §4.1).
func (d *Dispatcher) runJob(jobCtx *job.JobContext, log *slog.Logger, payload jobPayload, md job.Metadata) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("session panicked", slog.Any("panic", r))
		}
		d.mu.Lock()
		delete(d.sessions, payload.JobID)
		d.mu.Unlock()
	}()

	agentCfg, found := d.deps.Store.Lookup(md.AgentConfigID)
	if !found {
		log.Warn("agent_config_id did not resolve, using bundled default", slog.String("agent_config_id", md.AgentConfigID))
	}
	agentCfg = agentCfg.Merge(md)

	sess, room, err := d.buildSession(jobCtx, log, payload, md, agentCfg)
	if err != nil {
		log.Error("failed to build session", slog.String("error", err.Error()))
		d.reportJobStatus(payload.JobID, session.ReasonFatalError)
		return
	}

	d.mu.Lock()
	d.sessions[payload.JobID] = sess
	d.mu.Unlock()

	startedAt := time.Now()
	if err := sess.Start(jobCtx.Ctx); err != nil {
		log.Error("session ended with error", slog.String("error", err.Error()))
	}
	room.Disconnect()

	log.Info("job completed",
		slog.String("end_reason", string(sess.EndReason())),
		slog.Duration("duration", time.Since(startedAt)))
	d.reportJobStatus(payload.JobID, sess.EndReason())
}

// buildSession dials the callee, connects the room, resolves provider
// adapters, wires the audio bridge, and constructs the session.Session
// for one job.
func (d *Dispatcher) buildSession(jobCtx *job.JobContext, log *slog.Logger, payload jobPayload, md job.Metadata, agentCfg job.AgentConfig) (*session.Session, *roomConn, error) {
	room, err := connectRoom(jobCtx.Ctx, d.deps.Config, payload.RoomName, payload.RoomToken)
	if err != nil {
		return nil, nil, fmt.Errorf("connect room: %w", err)
	}

	if err := d.dialCallee(jobCtx.Ctx, log, payload, md); err != nil {
		room.Disconnect()
		return nil, nil, fmt.Errorf("dial callee: %w", err)
	}

	sttProvider, err := newSTT(agentCfg.STT)
	if err != nil {
		room.Disconnect()
		return nil, nil, err
	}
	ttsProvider, err := newTTS(agentCfg.TTS)
	if err != nil {
		room.Disconnect()
		return nil, nil, err
	}
	llmProvider, err := newLLM(agentCfg.LLM)
	if err != nil {
		room.Disconnect()
		return nil, nil, err
	}
	vadProvider, err := newVAD(agentCfg.VAD)
	if err != nil {
		room.Disconnect()
		return nil, nil, err
	}

	bridge := NewRoomAudioBridge(log)
	room.attachAudio(jobCtx.Ctx, bridge)

	// sess is assigned below, after session.New; the tool callbacks
	// close over the pointer itself so they can reach the session that
	// doesn't exist yet when the registry is built.
	var sess *session.Session
	toolRegistry := d.buildTools(log, payload, md, &sess)

	var adaptEngine *voiceadapt.Engine
	if agentCfg.VoiceAdaptation != nil {
		adaptEngine = voiceadapt.NewEngine(voiceadapt.Config{
			RateLimitSeconds: agentCfg.VoiceAdaptation.RateLimitSeconds,
			MemoryLimit:      agentCfg.VoiceAdaptation.MemoryLimit,
		})
	}

	sess, err = session.New(payload.JobID, session.Config{
		Instructions: agentCfg.Instructions,
		Language:     agentCfg.STT.Language,
		LLMTimeout:   time.Duration(agentCfg.LLM.TimeoutMs) * time.Millisecond,
		Endpointing: turn.Config{
			EndpointingSilenceMs: agentCfg.STT.EndpointingMs,
		},
		VoiceAdaptationOn: agentCfg.VoiceAdaptation != nil,
	}, session.Deps{
		STT:        sttProvider,
		TTS:        ttsProvider,
		LLM:        llmProvider,
		VAD:        vadProvider,
		Tools:      toolRegistry,
		Metrics:    d.deps.Metrics,
		VoiceAdapt: adaptEngine,
		MicIn:      bridge.MicIn(),
		TTSOut:     bridge.TTSOut(),
	})
	if err != nil {
		room.Disconnect()
		return nil, nil, fmt.Errorf("construct session: %w", err)
	}

	go room.watchParticipantLeft(jobCtx.Ctx, func() {
		log.Info("remote participant left, ending session")
		sess.Shutdown(session.ReasonParticipantLeft)
	})

	return sess, room, nil
}

// dialCallee places the outbound SIP call spec.md §4.1's data flow
// requires before a session starts: "Worker Dispatcher receives a Job
// -> Outbound Dialer requests SIP participant -> remote answers ->
// Session State Machine starts." Retry policy is the dispatcher's per
// pkg/dialer's doc comment; this runtime does not redial automatically
// (spec.md §4.1 non-goal), it just surfaces the failure as a fatal
// build error so the job is reported and abandoned.
func (d *Dispatcher) dialCallee(ctx context.Context, log *slog.Logger, payload jobPayload, md job.Metadata) error {
	if d.deps.Dialer == nil {
		return fmt.Errorf("no outbound dialer configured")
	}
	participant, err := d.deps.Dialer.Dial(ctx, dialer.DialOptions{
		RoomName:            payload.RoomName,
		CalleeE164:          md.PhoneNumber,
		ParticipantIdentity: "caller",
	})
	if err != nil {
		var dialErr *dialer.DialError
		if errors.As(err, &dialErr) {
			log.Error("outbound dial failed",
				slog.Int("sip_status", int(dialErr.StatusCode)),
				slog.String("sip_status_text", dialErr.Status))
		}
		return err
	}
	log.Info("dialed callee",
		slog.String("participant_id", participant.ParticipantID),
		slog.String("sip_call_id", participant.SIPCallID))
	return nil
}

func (d *Dispatcher) buildTools(log *slog.Logger, payload jobPayload, md job.Metadata, sessRef **session.Session) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(tools.NewTransferCallTool(func(ctx context.Context, transferTo string) error {
		if d.deps.Dialer == nil {
			return fmt.Errorf("transferCall: no dialer configured")
		}
		log.Info("transferring call", slog.String("transfer_to", transferTo))
		return d.deps.Dialer.TransferCall(ctx, payload.RoomName, "caller", transferTo)
	}))
	registry.Register(tools.NewEndCallTool(func(reason string) {
		log.Info("endCall invoked", slog.String("reason", reason))
		sess := *sessRef
		if sess == nil {
			return
		}
		// Let the current turn finish speaking its reply before ending.
		go func() {
			for st := sess.State(); st != session.StateListening && st < session.StateEnding; st = sess.State() {
				time.Sleep(20 * time.Millisecond)
			}
			sess.Shutdown(session.ReasonNormal)
		}()
	}))
	registry.Register(tools.NewAnsweringMachineTool(func(reason string) {
		log.Info("answering machine detected", slog.String("reason", reason))
		if sess := *sessRef; sess != nil {
			sess.Shutdown(session.ReasonNormal)
		}
	}))
	return registry
}

func newSTT(spec job.STTSpec) (stt.STT, error) {
	factory, ok := plugin.Get("stt", spec.Provider)
	if !ok {
		return nil, fmt.Errorf("no stt plugin registered for provider %q", spec.Provider)
	}
	inst, err := factory(map[string]any{"model": spec.Model, "language": spec.Language})
	if err != nil {
		return nil, fmt.Errorf("construct stt provider %q: %w", spec.Provider, err)
	}
	impl, ok := inst.(stt.STT)
	if !ok {
		return nil, fmt.Errorf("stt plugin %q does not implement stt.STT", spec.Provider)
	}
	return impl, nil
}

func newTTS(spec job.TTSSpec) (tts.TTS, error) {
	factory, ok := plugin.Get("tts", spec.Provider)
	if !ok {
		return nil, fmt.Errorf("no tts plugin registered for provider %q", spec.Provider)
	}
	inst, err := factory(map[string]any{"model": spec.Model, "voice": spec.VoiceID})
	if err != nil {
		return nil, fmt.Errorf("construct tts provider %q: %w", spec.Provider, err)
	}
	impl, ok := inst.(tts.TTS)
	if !ok {
		return nil, fmt.Errorf("tts plugin %q does not implement tts.TTS", spec.Provider)
	}
	return impl, nil
}

func newLLM(spec job.LLMSpec) (llm.LLM, error) {
	factory, ok := plugin.Get("llm", spec.Provider)
	if !ok {
		return nil, fmt.Errorf("no llm plugin registered for provider %q", spec.Provider)
	}
	inst, err := factory(map[string]any{"model": spec.Model})
	if err != nil {
		return nil, fmt.Errorf("construct llm provider %q: %w", spec.Provider, err)
	}
	impl, ok := inst.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("llm plugin %q does not implement llm.LLM", spec.Provider)
	}
	return impl, nil
}

func newVAD(spec job.VADSpec) (vad.VAD, error) {
	factory, ok := plugin.Get("vad", spec.Provider)
	if !ok {
		return nil, fmt.Errorf("no vad plugin registered for provider %q", spec.Provider)
	}
	inst, err := factory(map[string]any{"sensitivity": spec.Sensitivity})
	if err != nil {
		return nil, fmt.Errorf("construct vad provider %q: %w", spec.Provider, err)
	}
	impl, ok := inst.(vad.VAD)
	if !ok {
		return nil, fmt.Errorf("vad plugin %q does not implement vad.VAD", spec.Provider)
	}
	return impl, nil
}
