package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with per-component context.
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a logger tagged with the owning component.
func NewLogger(component string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("component", component).
		Logger()

	return &Logger{Logger: logger}
}

// WithContext returns a logger carrying the given context.
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// WithRun returns a logger tagged with the scan run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{Logger: l.Logger.With().Str("run_id", runID).Logger()}
}
