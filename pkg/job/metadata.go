package job

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// e164Pattern is a pragmatic E.164 check: a leading '+' and 8-15 digits.
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// Metadata is the job metadata bound to a Job, parsed from the JSON blob
// the room-server attaches to a job dispatch.
type Metadata struct {
	PhoneNumber   string         `json:"phone_number"`
	TransferTo    string         `json:"transfer_to,omitempty"`
	CustomerName  string         `json:"customer_name,omitempty"`
	AgentConfigID string         `json:"agent_config_id,omitempty"`
	CustomFields  map[string]any `json:"custom_fields,omitempty"`
}

// ParseMetadata decodes and validates a job metadata JSON blob. A
// missing phone_number, or a blob that fails to parse as JSON, is
// reported as an error so the dispatcher can reject the job with
// fatalError without constructing a session.
func ParseMetadata(raw string) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Metadata{}, fmt.Errorf("job metadata is not valid JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// Validate checks the metadata invariants spec.md §6 requires:
// phone_number is required and must look like E.164, and transfer_to,
// when present, must too.
func (m Metadata) Validate() error {
	if m.PhoneNumber == "" {
		return fmt.Errorf("job metadata missing required field phone_number")
	}
	if !e164Pattern.MatchString(m.PhoneNumber) {
		return fmt.Errorf("phone_number %q is not E.164", m.PhoneNumber)
	}
	if m.TransferTo != "" && !e164Pattern.MatchString(m.TransferTo) {
		return fmt.Errorf("transfer_to %q is not E.164", m.TransferTo)
	}
	return nil
}

// LLMSpec selects and tunes the LLM provider for one AgentConfig.
type LLMSpec struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature,omitempty"`
	TimeoutMs   int     `json:"timeout_ms,omitempty"`
}

// STTSpec selects and tunes the STT provider.
type STTSpec struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Language      string `json:"language,omitempty"`
	EndpointingMs int    `json:"endpointing_ms,omitempty"`
}

// TTSSpec selects and tunes the TTS provider.
type TTSSpec struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
}

// VADSpec selects and tunes the VAD provider.
type VADSpec struct {
	Provider    string  `json:"provider"`
	Sensitivity float32 `json:"sensitivity,omitempty"`
}

// VoiceAdaptationSpec tunes the optional Voice Adaptation Engine for one
// AgentConfig. A nil *VoiceAdaptationSpec on AgentConfig disables it.
type VoiceAdaptationSpec struct {
	RateLimitSeconds float64 `json:"rate_limit_seconds,omitempty"`
	MemoryLimit      int     `json:"memory_limit,omitempty"`
}

// ToolSpec names a built-in or per-config tool to advertise to the LLM
// for one AgentConfig. Only the name is configuration-driven; the
// handler implementation is wired up in code (pkg/tools/builtin.go).
type ToolSpec struct {
	Name string `json:"name"`
}

// AgentConfig is the per-job behavior bundle: system prompt, provider
// selection, and the tool set to advertise, per spec.md §3.
type AgentConfig struct {
	Instructions    string                `json:"instructions"`
	LLM             LLMSpec               `json:"llm"`
	STT             STTSpec               `json:"stt"`
	TTS             TTSSpec               `json:"tts"`
	VAD             VADSpec               `json:"vad"`
	VoiceAdaptation *VoiceAdaptationSpec  `json:"voice_adaptation,omitempty"`
	Tools           []ToolSpec            `json:"tools,omitempty"`
}

// DefaultAgentConfig is the bundled fallback configuration used when a
// job's agent_config_id does not resolve to a stored config.
func DefaultAgentConfig(instructions string) AgentConfig {
	return AgentConfig{
		Instructions: instructions,
		LLM:          LLMSpec{Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.7, TimeoutMs: 30000},
		STT:          STTSpec{Provider: "deepgram", Model: "nova-2", Language: "en-US", EndpointingMs: 200},
		TTS:          TTSSpec{Provider: "openai", Model: "tts-1", VoiceID: "alloy"},
		VAD:          VADSpec{Provider: "silero", Sensitivity: 0.5},
		Tools: []ToolSpec{
			{Name: "transferCall"},
			{Name: "endCall"},
			{Name: "detectedAnsweringMachine"},
		},
	}
}

// Merge layers per-job overrides from the job's CustomFields on top of a
// bundled default AgentConfig, returning a new value. Only
// "instructions" is currently recognized as an override key; anything
// else in CustomFields is left for tool handlers to consult directly.
func (c AgentConfig) Merge(md Metadata) AgentConfig {
	merged := c
	if v, ok := md.CustomFields["instructions"].(string); ok && v != "" {
		merged.Instructions = v
	}
	return merged
}
