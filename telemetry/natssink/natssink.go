// Package natssink publishes usage records to a NATS subject.
//
// Records are published best-effort with no acknowledgement; a publish
// failure is logged and dropped, matching the fire-and-forget contract of
// telemetry.Sink.
package natssink

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject usage records are published to.
const DefaultSubject = "legiswire.usage"

// Record is the JSON document published per tool invocation.
type Record struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Outcome   string                 `json:"outcome"`
	Error     string                 `json:"error,omitempty"`
	ElapsedMS int64                  `json:"elapsedMs"`
	At        time.Time              `json:"at"`
}

// Sink publishes usage records to NATS.
type Sink struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithSubject overrides the publish subject.
func WithSubject(subject string) Option {
	return func(s *Sink) {
		s.subject = subject
	}
}

// WithLogger sets the logger used for dropped records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// New creates a sink publishing to the given connection.
func New(conn *nats.Conn, opts ...Option) *Sink {
	s := &Sink{
		conn:    conn,
		subject: DefaultSubject,
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) RecordSuccess(tool string, args map[string]interface{}, _ interface{}, elapsed time.Duration) {
	s.publish(Record{
		Tool:      tool,
		Arguments: args,
		Outcome:   "success",
		ElapsedMS: elapsed.Milliseconds(),
		At:        time.Now().UTC(),
	})
}

func (s *Sink) RecordFailure(tool string, args map[string]interface{}, errMsg string, elapsed time.Duration) {
	s.publish(Record{
		Tool:      tool,
		Arguments: args,
		Outcome:   "failure",
		Error:     errMsg,
		ElapsedMS: elapsed.Milliseconds(),
		At:        time.Now().UTC(),
	})
}

func (s *Sink) publish(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Debug("usage record dropped", "tool", rec.Tool, "error", err)
		return
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		s.logger.Debug("usage record dropped", "tool", rec.Tool, "error", err)
	}
}
