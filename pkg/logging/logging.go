package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex
)

// Logger returns the process-wide logger, lazily initialised using environment
// variables for format and level:
//   - CRASHGUIDE_LOG_FORMAT: "json" (default) or "text"
//   - CRASHGUIDE_LOG_LEVEL: debug|info|warn|error
//   - CRASHGUIDE_LOG_OUTPUT: "stdout" (default) or "stderr"
func Logger() *slog.Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = newLoggerFromEnv()
	}
	return defaultLogger
}

// SetLogger overrides the global logger; mainly useful for tests.
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// WithComponent attaches a component field to the shared logger.
func WithComponent(component string) *slog.Logger {
	return Logger().With("component", component)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newLoggerFromEnv() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("CRASHGUIDE_LOG_LEVEL"))}

	// The MCP stdio transport owns stdout, so it can be redirected.
	var out io.Writer = os.Stdout
	if strings.EqualFold(os.Getenv("CRASHGUIDE_LOG_OUTPUT"), "stderr") {
		out = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(os.Getenv("CRASHGUIDE_LOG_FORMAT")) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler).With("service", "crashguide")
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
