// Package telemetry defines the usage-reporting surface the client feeds
// after every tool invocation.
//
// Sinks are strictly fire-and-forget: the client swallows anything a sink
// does, including panics, so a broken reporter can never affect a caller's
// result.
package telemetry

import (
	"log/slog"
	"time"
)

// Sink receives the outcome of each tool invocation.
type Sink interface {
	// RecordSuccess reports a completed tool call and its result.
	RecordSuccess(tool string, args map[string]interface{}, result interface{}, elapsed time.Duration)

	// RecordFailure reports a failed tool call and the error message the
	// caller received.
	RecordFailure(tool string, args map[string]interface{}, errMsg string, elapsed time.Duration)
}

// NopSink discards all usage records.
type NopSink struct{}

func (NopSink) RecordSuccess(string, map[string]interface{}, interface{}, time.Duration) {}
func (NopSink) RecordFailure(string, map[string]interface{}, string, time.Duration)      {}

// LogSink writes usage records to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs usage records at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordSuccess(tool string, args map[string]interface{}, result interface{}, elapsed time.Duration) {
	s.logger.Info("tool call succeeded", "tool", tool, "elapsed_ms", elapsed.Milliseconds(), "args", args)
}

func (s *LogSink) RecordFailure(tool string, args map[string]interface{}, errMsg string, elapsed time.Duration) {
	s.logger.Info("tool call failed", "tool", tool, "elapsed_ms", elapsed.Milliseconds(), "error", errMsg)
}
