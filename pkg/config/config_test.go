package config

import (
	"os"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voiceagent/runtime/pkg/job"
)

func TestLoadAppliesDefaults(t *testing.T) {
	is := is.New(t)

	for _, name := range []string{
		"LIVEKIT_URL", "STT_MODEL", "LLM_TEMPERATURE", "VOICE_ADAPTATION_ENABLED",
	} {
		os.Unsetenv(name)
	}

	cfg, err := Load()
	is.NoErr(err)
	is.Equal(cfg.STTModel, "nova-2")
	is.Equal(cfg.LLMModel, "gpt-4o-mini")
	is.Equal(cfg.LLMTimeout, 30*time.Second)
	is.True(cfg.VoiceAdaptationEnabled)
}

func TestLoadHonorsOverrides(t *testing.T) {
	is := is.New(t)

	os.Setenv("STT_MODEL", "whisper-1")
	os.Setenv("VOICE_ADAPTATION_ENABLED", "false")
	os.Setenv("LLM_TIMEOUT_MS", "15000")
	defer os.Unsetenv("STT_MODEL")
	defer os.Unsetenv("VOICE_ADAPTATION_ENABLED")
	defer os.Unsetenv("LLM_TIMEOUT_MS")

	cfg, err := Load()
	is.NoErr(err)
	is.Equal(cfg.STTModel, "whisper-1")
	is.True(!cfg.VoiceAdaptationEnabled)
	is.Equal(cfg.LLMTimeout, 15*time.Second)
}

func TestDefaultAgentConfigReflectsConfig(t *testing.T) {
	is := is.New(t)

	os.Unsetenv("VOICE_ADAPTATION_ENABLED")
	cfg, err := Load()
	is.NoErr(err)

	agentCfg := cfg.DefaultAgentConfig()
	is.Equal(agentCfg.LLM.Model, cfg.LLMModel)
	is.Equal(agentCfg.STT.Language, cfg.STTLanguage)
	is.True(agentCfg.VoiceAdaptation != nil)
}

func TestStaticAgentConfigStoreFallsBackToDefault(t *testing.T) {
	is := is.New(t)

	def := job.DefaultAgentConfig("you are a test agent")
	store := NewStaticAgentConfigStore(def)

	got, ok := store.Lookup("")
	is.True(!ok)
	is.Equal(got.Instructions, def.Instructions)

	got, ok = store.Lookup("unknown")
	is.True(!ok)
	is.Equal(got.Instructions, def.Instructions)

	custom := def
	custom.Instructions = "custom instructions"
	store.Set("custom", custom)

	got, ok = store.Lookup("custom")
	is.True(ok)
	is.Equal(got.Instructions, "custom instructions")
}
