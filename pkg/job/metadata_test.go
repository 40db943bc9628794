package job

import "testing"

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid minimal",
			raw:  `{"phone_number": "+14155550123"}`,
		},
		{
			name: "valid full",
			raw: `{
				"phone_number": "+14155550123",
				"transfer_to": "+14155550199",
				"customer_name": "Jayden",
				"agent_config_id": "dental-default",
				"custom_fields": {"appointment": "Tuesday 3pm"}
			}`,
		},
		{
			name:    "missing phone number",
			raw:     `{"customer_name": "Jayden"}`,
			wantErr: true,
		},
		{
			name:    "phone number not e164",
			raw:     `{"phone_number": "4155550123"}`,
			wantErr: true,
		},
		{
			name:    "transfer_to not e164",
			raw:     `{"phone_number": "+14155550123", "transfer_to": "555-0199"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			raw:     `{not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMetadata() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAgentConfigMergeAppliesInstructionsOverride(t *testing.T) {
	base := DefaultAgentConfig("be helpful")
	md := Metadata{
		PhoneNumber:  "+14155550123",
		CustomFields: map[string]any{"instructions": "you are a dental receptionist"},
	}

	merged := base.Merge(md)
	if merged.Instructions != "you are a dental receptionist" {
		t.Fatalf("expected overridden instructions, got %q", merged.Instructions)
	}
	if merged.LLM.Provider != base.LLM.Provider {
		t.Fatalf("Merge should not change provider selection")
	}
}

func TestAgentConfigMergeKeepsDefaultWithoutOverride(t *testing.T) {
	base := DefaultAgentConfig("be helpful")
	md := Metadata{PhoneNumber: "+14155550123"}

	merged := base.Merge(md)
	if merged.Instructions != "be helpful" {
		t.Fatalf("expected default instructions preserved, got %q", merged.Instructions)
	}
}

func TestDefaultAgentConfigIncludesBuiltinTools(t *testing.T) {
	cfg := DefaultAgentConfig("hi")
	names := map[string]bool{}
	for _, ts := range cfg.Tools {
		names[ts.Name] = true
	}
	for _, want := range []string{"transferCall", "endCall", "detectedAnsweringMachine"} {
		if !names[want] {
			t.Fatalf("expected default tool set to include %q", want)
		}
	}
}
