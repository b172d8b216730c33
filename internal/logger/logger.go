package logger

import (
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

// L is the process-wide JSON logger. Packages derive scoped loggers from it via For.
var L = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}))

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// For returns a logger tagged with the component name.
func For(component string) *slog.Logger {
	return L.With("component", component)
}

// Session returns a component logger that also carries the session id.
func Session(component, sessionID string) *slog.Logger {
	return For(component).With("session_id", sessionID)
}
