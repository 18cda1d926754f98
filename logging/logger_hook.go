package logging

import (
	"log/slog"
)

// LoggerHook creates keyed loggers by wrapping a base logger.
type LoggerHook interface {
	// LoggerFor wraps the base logger so that its records are attributed to key.
	LoggerFor(baseLogger *slog.Logger, key string) *slog.Logger
}

// CapturingLoggerHook creates loggers that capture logs via CapturingHandler.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures logs into collector.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// LoggerFor returns a logger whose records are captured under key and passed
// on to the base logger's handler.
func (p *CapturingLoggerHook) LoggerFor(baseLogger *slog.Logger, key string) *slog.Logger {
	return slog.New(NewCapturingHandler(baseLogger.Handler(), p.collector, key))
}
