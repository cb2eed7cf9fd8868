package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/statutehq/legiswire/events"
	"github.com/statutehq/legiswire/telemetry"
	"github.com/statutehq/legiswire/transport"
)

// Option configures a client at construction time.
type Option func(*clientImpl)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientImpl) {
		c.logger = logger
	}
}

// WithRequestTimeout sets the default per-call timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *clientImpl) {
		c.requestTimeout = d
	}
}

// WithConnectionTimeout sets the timeout for the handshake and the stream
// open.
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *clientImpl) {
		c.connectionTimeout = d
	}
}

// WithReconnect configures the reconnection schedule: delays follow
// base * 2^(attempt-1) up to maxAttempts attempts.
func WithReconnect(base time.Duration, maxAttempts int) Option {
	return func(c *clientImpl) {
		c.policy = newReconnectPolicy(base, maxAttempts)
	}
}

// WithTelemetry sets the usage-telemetry sink fed by CallTool.
func WithTelemetry(sink telemetry.Sink) Option {
	return func(c *clientImpl) {
		c.sink = sink
	}
}

// WithTokenProvider sets the bearer-credential provider.
func WithTokenProvider(tp TokenProvider) Option {
	return func(c *clientImpl) {
		c.tokenProvider = tp
	}
}

// WithStaticToken sets a fixed bearer credential.
func WithStaticToken(token string) Option {
	return WithTokenProvider(StaticToken(token))
}

// WithClock injects the clock used for call timeouts, reconnect scheduling,
// and telemetry timing. Tests use a fake clock; the default is the wall
// clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *clientImpl) {
		c.clock = clock
	}
}

// WithStream replaces the push-channel implementation. The default is the SSE
// stream; transport/ws provides a WebSocket alternative.
func WithStream(stream transport.Stream) Option {
	return func(c *clientImpl) {
		c.stream = stream
	}
}

// WithEvents attaches an existing event Subject instead of creating one.
func WithEvents(subject *events.Subject) Option {
	return func(c *clientImpl) {
		c.events = subject
	}
}

// WithHTTPClient sets the HTTP client used for request dispatch.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientImpl) {
		c.httpClient = hc
	}
}

// WithClientInfo sets the identity descriptor sent in the handshake.
func WithClientInfo(name, version string) Option {
	return func(c *clientImpl) {
		c.clientName = name
		c.clientVersion = version
	}
}

// TokenProvider supplies the bearer credential attached to every dispatch and
// to the stream open. Providers may refresh the credential between calls.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider returning a fixed credential.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// RequestOption adjusts a single client method call.
type RequestOption interface {
	apply()
}

// TimeoutOption overrides the per-call timeout for one request.
type TimeoutOption struct {
	Duration time.Duration
}

func (TimeoutOption) apply() {}

// WithRequestTimeoutOption creates a TimeoutOption from a duration.
func WithRequestTimeoutOption(d time.Duration) TimeoutOption {
	return TimeoutOption{Duration: d}
}
