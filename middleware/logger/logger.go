// Package logger writes one structured log record per turn.
package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/crashguide/middleware"
	"github.com/sweetpotato0/crashguide/pkg/logging"
)

// TurnLogger logs each turn's conversation, outcome and duration.
type TurnLogger struct {
	logger *slog.Logger
}

// NewTurnLogger creates a logging middleware. A nil logger uses the
// process logger.
func NewTurnLogger(logger *slog.Logger) *TurnLogger {
	if logger == nil {
		logger = logging.WithComponent("turn")
	}
	return &TurnLogger{logger: logger}
}

// Name returns the middleware name
func (m *TurnLogger) Name() string {
	return "TurnLogger"
}

// Execute logs after the turn completes.
func (m *TurnLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	start := time.Now()
	err := next(ctx)

	attrs := []any{
		"conversation", ctx.ConversationID,
		"duration", time.Since(start),
	}
	if ctx.Result != nil {
		attrs = append(attrs,
			"dialogue_state", ctx.Result.DialogueState,
			"citations", ctx.Result.Citations,
			"degraded", ctx.Result.Degraded,
		)
	}
	if err != nil {
		m.logger.Warn("turn failed", append(attrs, "error", err)...)
		return err
	}
	m.logger.Info("turn handled", attrs...)
	return nil
}
