// Package logging configures the process-wide structured logger.
// Grounded on cmd/lk-go/main.go's setupLogger helper, generalized to
// read the LOG_LEVEL/LOG_FORMAT environment variables spec.md §6 names
// (the teacher's CLI used LK_LOG_LEVEL/LK_LOG_FORMAT).
package logging

import (
	"log/slog"
	"os"
)

// Options tunes the logger Setup builds.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Format is "text" or "json". Defaults to "json", matching
	// production use; "text" is meant for local development.
	Format string
}

// Setup builds a slog.Logger from Options, installs it as the package
// default (so every package that calls slog.Default() picks it up
// without explicit injection), and returns it for callers that prefer
// explicit passing.
func Setup(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: levelFromString(opts.Level)}

	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func levelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
