// Package config resolves the process-wide Runtime configuration from
// environment variables, grounded on cmd/cli/main.go's godotenv-then-env
// layering convention and spec.md §6's environment-variable table.
// Config is built once in main and passed by explicit dependency
// injection into the dispatcher and session, per spec.md §9's "Global
// module-level state" design note — nothing in this package mutates
// process globals except loading .env into the process environment,
// which godotenv itself does exactly once at Load.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/voiceagent/runtime/pkg/job"
)

// Config is the fully resolved process configuration.
type Config struct {
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	// WorkerURL is the control-plane websocket endpoint the dispatcher
	// holds open for startJob signals. Defaults to LiveKitURL, since a
	// self-hosted deployment typically terminates both on the same
	// front door.
	WorkerURL string

	// MetricsAddr is the address the Prometheus /metrics endpoint binds
	// to. Empty disables it.
	MetricsAddr string

	SIPOutboundTrunkID string

	VoiceAdaptationEnabled   bool
	VoiceAdaptationRateLimit time.Duration
	VoiceAdaptationMemory    int

	STTModel         string
	STTLanguage      string
	STTEndpointingMs time.Duration

	LLMModel       string
	LLMTemperature float32
	LLMTimeout     time.Duration

	TTSModel   string
	TTSVoiceID string

	DefaultAgentInstructions string

	LogLevel  string
	LogFormat string

	ShutdownGrace time.Duration
}

// Load reads a .env file if present (grounded on cmd/cli/main.go's
// godotenv.Load call; a missing file is not an error) and then layers
// the environment variables spec.md §6 names on top of defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}

	cfg := Config{
		LiveKitURL:       os.Getenv("LIVEKIT_URL"),
		LiveKitAPIKey:    os.Getenv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: os.Getenv("LIVEKIT_API_SECRET"),

		WorkerURL:   envString("WORKER_URL", os.Getenv("LIVEKIT_URL")),
		MetricsAddr: envString("METRICS_ADDR", ""),

		SIPOutboundTrunkID: os.Getenv("SIP_OUTBOUND_TRUNK_ID"),

		VoiceAdaptationEnabled:   envBool("VOICE_ADAPTATION_ENABLED", true),
		VoiceAdaptationRateLimit: envSeconds("VOICE_ADAPTATION_RATE_LIMIT_S", 2*time.Second),
		VoiceAdaptationMemory:    envInt("VOICE_ADAPTATION_MEMORY_LIMIT", 20),

		STTModel:         envString("STT_MODEL", "nova-2"),
		STTLanguage:      envString("STT_LANGUAGE", "en-US"),
		STTEndpointingMs: envMillis("STT_ENDPOINTING_MS", 200*time.Millisecond),

		LLMModel:       envString("LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature: float32(envFloat("LLM_TEMPERATURE", 0.7)),
		LLMTimeout:     envMillis("LLM_TIMEOUT_MS", 30*time.Second),

		TTSModel:   envString("TTS_MODEL", "tts-1"),
		TTSVoiceID: envString("TTS_VOICE_ID", "alloy"),

		DefaultAgentInstructions: envString("DEFAULT_AGENT_INSTRUCTIONS",
			"You are a helpful voice assistant speaking with a caller on the phone. "+
				"Keep responses brief and conversational."),

		LogLevel:  envString("LOG_LEVEL", "info"),
		LogFormat: envString("LOG_FORMAT", "json"),

		ShutdownGrace: envMillis("SHUTDOWN_GRACE_MS", 5000*time.Millisecond),
	}

	return cfg, nil
}

// DefaultAgentConfig builds the bundled AgentConfig this Config implies,
// used as the fallback when a job's agent_config_id does not resolve to
// a stored config (spec.md §3, §4.1).
func (c Config) DefaultAgentConfig() job.AgentConfig {
	cfg := job.DefaultAgentConfig(c.DefaultAgentInstructions)
	cfg.LLM.Model = c.LLMModel
	cfg.LLM.Temperature = c.LLMTemperature
	cfg.LLM.TimeoutMs = int(c.LLMTimeout / time.Millisecond)
	cfg.STT.Model = c.STTModel
	cfg.STT.Language = c.STTLanguage
	cfg.STT.EndpointingMs = int(c.STTEndpointingMs / time.Millisecond)
	cfg.TTS.Model = c.TTSModel
	cfg.TTS.VoiceID = c.TTSVoiceID
	if c.VoiceAdaptationEnabled {
		cfg.VoiceAdaptation = &job.VoiceAdaptationSpec{
			RateLimitSeconds: c.VoiceAdaptationRateLimit.Seconds(),
			MemoryLimit:      c.VoiceAdaptationMemory,
		}
	}
	return cfg
}

// AgentConfigStore resolves a job's agent_config_id into the
// AgentConfig that should drive its session, per spec.md §3. The
// in-memory implementation below is the only one this runtime ships;
// a deployment backed by a real config service implements the same
// interface and is passed into the dispatcher instead.
type AgentConfigStore interface {
	Lookup(id string) (job.AgentConfig, bool)
}

// StaticAgentConfigStore is an in-memory AgentConfigStore seeded at
// construction time, sufficient for a single bundled agent definition
// or a small fixed set of named configs.
type StaticAgentConfigStore struct {
	configs map[string]job.AgentConfig
	def     job.AgentConfig
}

// NewStaticAgentConfigStore builds a store whose fallback (used when
// Lookup's id is empty or unknown) is def.
func NewStaticAgentConfigStore(def job.AgentConfig) *StaticAgentConfigStore {
	return &StaticAgentConfigStore{configs: make(map[string]job.AgentConfig), def: def}
}

// Set registers a named AgentConfig, overwriting any existing entry
// with the same id.
func (s *StaticAgentConfigStore) Set(id string, cfg job.AgentConfig) {
	s.configs[id] = cfg
}

// Lookup returns the config registered under id, or the store's
// default with ok=false if id is empty or unrecognized — callers still
// get a usable AgentConfig either way.
func (s *StaticAgentConfigStore) Lookup(id string) (job.AgentConfig, bool) {
	if id == "" {
		return s.def, false
	}
	cfg, ok := s.configs[id]
	if !ok {
		return s.def, false
	}
	return cfg, true
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envMillis(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func envSeconds(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return time.Duration(f * float64(time.Second))
}
