package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Signal and command type constants
const (
	SignalTypePing       = "ping"
	SignalTypePong       = "pong"
	SignalTypeStartJob   = "startJob"
	SignalTypeShutdown   = "shutdown"
	CommandTypeJobStatus = "jobStatus"
)

type Worker struct {
	url           string
	token         string
	wsClient      *WebSocketClient
	logger        *slog.Logger
	in            chan *Signal
	out           chan *Command
	mu            sync.RWMutex
	connected     bool
	backoffAttempt int

	onStartJob func(ctx context.Context, signal *Signal)
}

type Config struct {
	URL   string
	Token string

	// OnStartJob is invoked synchronously from the signal-processing
	// goroutine whenever a startJob signal arrives; it should not
	// block longer than it takes to spawn the job's own goroutine.
	// A nil hook leaves startJob signals logged and otherwise ignored.
	OnStartJob func(ctx context.Context, signal *Signal)
}

func New(config Config, logger *slog.Logger) *Worker {
	return &Worker{
		url:        config.URL,
		token:      config.Token,
		logger:     logger,
		in:         make(chan *Signal, 100),
		out:        make(chan *Command, 100),
		wsClient:   NewWebSocketClient(config.URL, config.Token, logger),
		onStartJob: config.OnStartJob,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker", slog.String("url", w.url))

	// Main worker loop with reconnection
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return w.shutdown()
		default:
			if err := w.connectAndRun(ctx); err != nil {
				w.logger.Error("Worker connection failed", slog.String("error", err.Error()))
				
				// Exponential backoff
				if err := w.backoffDelay(ctx); err != nil {
					return err
				}
				continue
			}
		}
	}
}

func (w *Worker) connectAndRun(ctx context.Context) error {
	w.logger.Info("Connecting to LiveKit server")
	
	if err := w.wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := w.wsClient.Close(); err != nil {
			w.logger.Error("Error closing WebSocket during cleanup", slog.String("error", err.Error()))
		}
	}()

	w.setConnected(true)
	defer w.setConnected(false)

	// Start goroutines for reading and writing
	readCtx, readCancel := context.WithCancel(ctx)
	defer readCancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	// Start signal reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.readSignals(readCtx); err != nil {
			errCh <- fmt.Errorf("read signals: %w", err)
		}
	}()

	// Start command writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.writeCommands(readCtx); err != nil {
			errCh <- fmt.Errorf("write commands: %w", err)
		}
	}()

	// Start signal processor
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processSignals(readCtx)
	}()

	// Wait for error or context cancellation
	select {
	case err := <-errCh:
		readCancel()
		wg.Wait()
		return err
	case <-ctx.Done():
		readCancel()
		wg.Wait()
		return nil
	}
}

func (w *Worker) readSignals(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			signal, err := w.wsClient.ReadSignal(ctx)
			if err != nil {
				return err
			}

			select {
			case w.in <- signal:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *Worker) writeCommands(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-w.out:
			if err := w.wsClient.WriteCommand(ctx, cmd); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) processSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-w.in:
			w.handleSignal(ctx, signal)
		}
	}
}

func (w *Worker) handleSignal(ctx context.Context, signal *Signal) {
	w.logger.Debug("Processing signal", slog.String("type", signal.Type))

	switch signal.Type {
	case SignalTypePing:
		// Respond to ping with pong
		pong := &Command{
			Type: SignalTypePong,
			Data: signal.Data,
		}
		select {
		case w.out <- pong:
		case <-ctx.Done():
		default:
			// Channel is closed or full, skip sending
		}

	case SignalTypeStartJob:
		w.logger.Info("Received start job signal")
		if w.onStartJob != nil {
			w.onStartJob(ctx, signal)
		}

	case SignalTypeShutdown:
		w.logger.Info("Received shutdown signal")
		// Graceful shutdown will be handled by context cancellation

	default:
		w.logger.Warn("Unknown signal type", slog.String("type", signal.Type))
	}
}

func (w *Worker) backoffDelay(ctx context.Context) error {
	w.mu.Lock()
	w.backoffAttempt++
	attempt := w.backoffAttempt
	w.mu.Unlock()
	
	// Exponential backoff: 1s, 2s, 4s, ... up to 30s max, per spec.md §4.1
	delay := time.Duration(math.Min(math.Pow(2, float64(attempt-1)), 30)) * time.Second
	
	w.logger.Info("Reconnecting with backoff",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) setConnected(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	
	if connected && !w.connected {
		// Reset backoff on successful connection
		w.backoffAttempt = 0
		w.logger.Info("Worker connected successfully")
	}
	
	w.connected = connected
}

// SendJobStatus reports a job's outcome to the control plane, per
// spec.md §4.1's "report outcome {jobId, completedAt, reason} to the
// control plane" and §6's JobStatus(jobId, state) event. It never
// blocks the caller: if the outbound queue is full the status is
// dropped and logged, same as handleSignal's pong path.
func (w *Worker) SendJobStatus(jobID, state, reason string) {
	cmd := &Command{
		Type: CommandTypeJobStatus,
		Data: map[string]any{
			"job_id":       jobID,
			"state":        state,
			"reason":       reason,
			"completed_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	select {
	case w.out <- cmd:
	default:
		w.logger.Warn("dropping jobStatus command, out channel full", slog.String("job_id", jobID))
	}
}

func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *Worker) shutdown() error {
	w.logger.Info("Shutting down worker")
	
	// Close out channel to signal command writers to stop
	// Note: in channel is left open - reading goroutines are managed by context cancellation
	close(w.out)
	
	// Close WebSocket connection
	if err := w.wsClient.Close(); err != nil {
		w.logger.Error("Error closing WebSocket", slog.String("error", err.Error()))
		return err
	}
	
	w.logger.Info("Worker shutdown complete")
	return nil
}