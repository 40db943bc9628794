package logging

import (
	"log/slog"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := levelFromString(tt.in); got != tt.want {
			t.Errorf("levelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupInstallsDefaultLogger(t *testing.T) {
	logger := Setup(Options{Level: "debug", Format: "text"})
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	if slog.Default() != logger {
		t.Fatal("expected Setup to install its logger as the package default")
	}
}
