// Package transport defines the push-channel abstraction used by the
// LegisWire client.
//
// The client's request channel is plain HTTP and lives in the client package;
// what varies is the persistent server-to-client stream that delivers
// responses, notifications, and liveness pings. Stream implementations (SSE,
// WebSocket) decode nothing themselves: they hand raw frames to a handler and
// report stream-level failures to an error handler, leaving classification to
// the client.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
)

// FrameHandler receives one raw frame from the push stream.
type FrameHandler func(frame []byte)

// ErrorHandler is notified when an established stream fails. Errors during
// stream setup are returned from Open directly and never reach the handler.
type ErrorHandler func(err error)

// Stream is a persistent one-way server-push connection.
type Stream interface {
	// Open establishes the stream against the given URL. It returns once the
	// stream is live (the open signal) or with the setup error. A Stream may
	// be reopened after Close.
	Open(ctx context.Context, url string, header http.Header) error

	// Close releases the stream unconditionally. Safe to call when already
	// closed; a close-induced read error is not reported as a failure.
	Close() error

	// SetFrameHandler sets the handler invoked for each inbound frame.
	SetFrameHandler(handler FrameHandler)

	// SetErrorHandler sets the handler invoked on mid-session stream failure.
	SetErrorHandler(handler ErrorHandler)

	// SetLogger sets the structured logger.
	SetLogger(logger *slog.Logger)
}

// BaseStream provides the handler and logger plumbing shared by stream
// implementations.
type BaseStream struct {
	frameHandler FrameHandler
	errorHandler ErrorHandler
	logger       *slog.Logger
}

// SetFrameHandler sets the frame handler.
func (b *BaseStream) SetFrameHandler(handler FrameHandler) {
	b.frameHandler = handler
}

// SetErrorHandler sets the error handler.
func (b *BaseStream) SetErrorHandler(handler ErrorHandler) {
	b.errorHandler = handler
}

// SetLogger sets the structured logger.
func (b *BaseStream) SetLogger(logger *slog.Logger) {
	b.logger = logger
}

// Logger returns the current logger, creating a stderr default if unset.
func (b *BaseStream) Logger() *slog.Logger {
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return b.logger
}

// HandleFrame forwards a frame to the registered handler.
func (b *BaseStream) HandleFrame(frame []byte) error {
	if b.frameHandler == nil {
		return errors.New("no frame handler set")
	}
	b.frameHandler(frame)
	return nil
}

// ReportError forwards a stream failure to the registered handler.
func (b *BaseStream) ReportError(err error) {
	if b.errorHandler != nil {
		b.errorHandler(err)
	}
}
