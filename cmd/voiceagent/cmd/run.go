// Package cmd holds voiceagent's cobra subcommands. Grounded on
// cmd/cli/cmd's per-subcommand file layout (one New*Cmd constructor per
// file), generalized from pipeline-testing commands to the worker's
// actual run/dial verbs.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/voiceagent/runtime/pkg/config"
	"github.com/voiceagent/runtime/pkg/dialer"
	"github.com/voiceagent/runtime/pkg/dispatcher"
	"github.com/voiceagent/runtime/pkg/logging"
	"github.com/voiceagent/runtime/pkg/metrics"

	_ "github.com/voiceagent/runtime/pkg/plugin/deepgram"
	_ "github.com/voiceagent/runtime/pkg/plugin/openai"
	_ "github.com/voiceagent/runtime/pkg/plugin/silero"
)

// NewRunCmd builds the "run" subcommand: it holds the control-plane
// connection open and runs jobs until interrupted.
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the control plane and run voice-agent jobs",
		RunE: func(c *cobra.Command, args []string) error {
			return runWorker(c.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	reg := prometheus.NewRegistry()
	agg := metrics.NewAggregator(reg)

	var dl *dialer.Dialer
	if cfg.SIPOutboundTrunkID != "" && cfg.LiveKitURL != "" {
		dl, err = dialer.New(dialer.Config{
			URL:             cfg.LiveKitURL,
			APIKey:          cfg.LiveKitAPIKey,
			APISecret:       cfg.LiveKitAPISecret,
			OutboundTrunkID: cfg.SIPOutboundTrunkID,
		})
		if err != nil {
			log.Warn("outbound dialer disabled", "error", err)
		}
	}

	store := config.NewStaticAgentConfigStore(cfg.DefaultAgentConfig())

	d := dispatcher.New(dispatcher.Deps{
		Config:  cfg,
		Store:   store,
		Metrics: agg,
		Dialer:  dl,
		Logger:  log,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	token, err := workerToken(cfg)
	if err != nil {
		return fmt.Errorf("mint worker token: %w", err)
	}

	log.Info("starting voiceagent worker", "worker_url", cfg.WorkerURL)
	return d.Run(ctx, cfg.WorkerURL, token)
}

// workerToken mints the JWT the dispatcher presents on the control-plane
// websocket, grounded on examples/minimal/main.go's generateToken
// helper but scoped as an administrative worker identity rather than a
// single room participant, since a worker accepts jobs across rooms it
// does not yet know the names of.
func workerToken(cfg config.Config) (string, error) {
	if cfg.LiveKitAPIKey == "" || cfg.LiveKitAPISecret == "" {
		return "", fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	at := auth.NewAccessToken(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		RoomAdmin: true,
		RoomCreate: true,
	}
	at.AddGrant(grant).
		SetIdentity("voiceagent-worker").
		SetValidFor(24 * time.Hour)
	return at.ToJWT()
}
