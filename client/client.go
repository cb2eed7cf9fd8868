// Package client implements the LegisWire protocol client.
//
// The client talks to the gateway over two physically separate channels:
// requests go out as individual HTTP POSTs carrying JSON-RPC envelopes, while
// replies, notifications, session metadata, and liveness pings arrive
// asynchronously over a persistent server-push stream. A pending-call
// registry correlates requests with replies across both channels and
// guarantees that every call settles exactly once (by direct reply, by push
// frame, by timeout, or by teardown) and that no caller waits past its
// deadline.
//
// # Basic Usage
//
//	c, err := client.NewClient("https://gateway.legiswire.dev/rpc",
//		client.WithStaticToken(token),
//		client.WithLogger(logger),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := c.Connect(); err != nil {
//		log.Fatal(err)
//	}
//	defer c.Disconnect()
//
//	result, err := c.CallTool("search_bills", map[string]interface{}{
//		"state": "CA",
//		"query": "water rights",
//	})
//
// # Lifecycle
//
// Connect performs the capability handshake, then opens the push stream with
// the session identifier the handshake returned; a stream opened before the
// handshake resolves would be a protocol violation. If the stream later fails
// mid-session, the client retries with exponential backoff up to a ceiling,
// emitting reconnecting events along the way; past the ceiling it emits a
// single connection-failed event and stays closed until Connect is called
// again. Calls in flight when the stream fails are rejected immediately, not
// queued.
//
// # Thread Safety
//
// All methods are safe for concurrent use. State() returns a snapshot; the
// live state is never handed out.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/statutehq/legiswire/events"
	"github.com/statutehq/legiswire/telemetry"
	"github.com/statutehq/legiswire/transport"
	"github.com/statutehq/legiswire/transport/sse"
	"github.com/statutehq/legiswire/wire"
)

const (
	// DefaultRequestTimeout bounds each call's wait for settlement.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultConnectionTimeout bounds the handshake and the stream open.
	DefaultConnectionTimeout = 10 * time.Second
)

// Phase is the client's connection phase.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting"
	PhaseClosed       Phase = "closed"
)

// State is a read-only snapshot of the client's connection state.
type State struct {
	Phase          Phase
	SessionID      string
	Entitlement    *wire.Entitlement
	LastActivityAt time.Time
}

// Client is the public surface of the LegisWire protocol client.
type Client interface {
	// Connect performs the handshake and opens the push stream. It is a
	// no-op when already connecting or connected.
	Connect() error

	// Disconnect tears the client down from any state: it cancels any
	// pending reconnect, closes the push stream, rejects every outstanding
	// call with KindConnectionClosed, and sends a best-effort session
	// teardown to the gateway.
	Disconnect() error

	// State returns a snapshot of the connection state.
	State() State

	// Events returns the subject carrying lifecycle and notification events.
	Events() *events.Subject

	// SetTokenProvider replaces the bearer-credential provider.
	SetTokenProvider(tp TokenProvider)

	// ListTools retrieves all tools, following pagination.
	ListTools(opts ...RequestOption) ([]wire.Tool, error)

	// CallTool invokes a tool and reports timing and outcome to the
	// telemetry sink. A sink failure never affects the returned result.
	CallTool(name string, args map[string]interface{}, opts ...RequestOption) (interface{}, error)

	// ListResources retrieves all resources, following pagination.
	ListResources(opts ...RequestOption) ([]wire.Resource, error)

	// ReadResource reads one resource by URI.
	ReadResource(uri string, opts ...RequestOption) (interface{}, error)

	// ListPrompts retrieves all prompt templates, following pagination.
	ListPrompts(opts ...RequestOption) ([]wire.Prompt, error)

	// GetPrompt renders one prompt template.
	GetPrompt(name string, args map[string]interface{}, opts ...RequestOption) (interface{}, error)
}

type clientImpl struct {
	url        string
	httpClient *http.Client
	stream     transport.Stream
	logger     *slog.Logger
	clock      clockwork.Clock
	events     *events.Subject
	registry   *registry
	policy     *reconnectPolicy
	sink       telemetry.Sink

	clientName        string
	clientVersion     string
	requestTimeout    time.Duration
	connectionTimeout time.Duration

	mu             sync.RWMutex
	phase          Phase
	sessionID      string
	entitlement    *wire.Entitlement
	lastActivity   time.Time
	reconnectTimer clockwork.Timer
	tokenProvider  TokenProvider
}

// NewClient creates a client for the given gateway endpoint. The endpoint is
// unified: POSTs dispatch requests, a GET opens the push stream. The client
// does not connect until Connect is called.
func NewClient(url string, opts ...Option) (Client, error) {
	if url == "" {
		return nil, fmt.Errorf("gateway URL is required")
	}

	c := &clientImpl{
		url:               url,
		httpClient:        &http.Client{},
		logger:            slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		clock:             clockwork.NewRealClock(),
		sink:              telemetry.NopSink{},
		clientName:        "legiswire-go",
		clientVersion:     "0.3.0",
		requestTimeout:    DefaultRequestTimeout,
		connectionTimeout: DefaultConnectionTimeout,
		phase:             PhaseIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.events == nil {
		c.events = events.NewSubject(events.WithLogger(c.logger))
	}
	if c.policy == nil {
		c.policy = newReconnectPolicy(DefaultReconnectBase, DefaultReconnectAttempts)
	}
	if c.stream == nil {
		// The stream client deliberately carries no global timeout.
		c.stream = sse.NewStream(&http.Client{})
	}
	c.registry = newRegistry(c.clock)

	c.stream.SetLogger(c.logger)
	c.stream.SetFrameHandler(c.handleFrame)
	c.stream.SetErrorHandler(c.handleStreamError)

	return c, nil
}

// Connect implements Client.
func (c *clientImpl) Connect() error {
	c.mu.Lock()
	if c.phase == PhaseConnecting || c.phase == PhaseConnected {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseConnecting
	c.mu.Unlock()

	publishEvent(c, events.TopicConnecting, events.ConnectingEvent{URL: c.url})

	sessionID, ent, err := c.establish()
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseIdle
		c.mu.Unlock()
		publishEvent(c, events.TopicError, events.ErrorEvent{Error: err.Error()})
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}

	c.commitConnected(sessionID, ent)
	return nil
}

// establish runs the connect sequence: handshake first, then the stream open
// carrying the handshake's session identifier. The session fields are not
// committed to the client state here; Connect and the reconnect path commit
// them together with the phase transition.
func (c *clientImpl) establish() (string, *wire.Entitlement, error) {
	hs, err := c.initialize()
	if err != nil {
		return "", nil, err
	}

	header := http.Header{}
	header.Set(wire.SessionHeader, hs.SessionID)
	if err := c.applyAuth(header); err != nil {
		return "", nil, err
	}

	ctx, cancel := clockwork.WithTimeout(context.Background(), c.clock, c.connectionTimeout)
	defer cancel()
	if err := c.stream.Open(ctx, c.url, header); err != nil {
		return "", nil, transportErr("failed to open push channel: %v", err)
	}

	return hs.SessionID, hs.Entitlement, nil
}

func (c *clientImpl) commitConnected(sessionID string, ent *wire.Entitlement) {
	c.mu.Lock()
	if c.phase != PhaseConnecting && c.phase != PhaseReconnecting {
		// Disconnect won the race while the handshake was in flight. The
		// freshly opened stream must not outlive the teardown.
		c.mu.Unlock()
		c.stream.Close()
		return
	}
	c.phase = PhaseConnected
	c.sessionID = sessionID
	c.entitlement = ent
	c.lastActivity = c.clock.Now()
	c.policy.reset()
	c.mu.Unlock()

	tier := ""
	if ent != nil {
		tier = ent.Tier
	}
	c.logger.Info("connected to gateway", "url", c.url, "session_id", sessionID, "tier", tier)
	publishEvent(c, events.TopicConnected, events.ConnectedEvent{URL: c.url, SessionID: sessionID, Tier: tier})
}

// Disconnect implements Client. Valid from any state.
func (c *clientImpl) Disconnect() error {
	c.mu.Lock()
	if c.phase == PhaseClosed {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.phase = PhaseClosed
	sessionID := c.sessionID
	c.mu.Unlock()

	c.stream.Close()
	c.registry.drain(ErrConnectionClosed)

	// Teardown is advisory; the gateway expires abandoned sessions on its
	// own, so failures here are swallowed.
	c.teardownSession(sessionID)

	c.logger.Info("disconnected from gateway", "url", c.url)
	publishEvent(c, events.TopicDisconnected, events.DisconnectedEvent{URL: c.url, SessionID: sessionID})
	return nil
}

// State implements Client.
func (c *clientImpl) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := State{
		Phase:          c.phase,
		SessionID:      c.sessionID,
		LastActivityAt: c.lastActivity,
	}
	if c.entitlement != nil {
		ent := *c.entitlement
		st.Entitlement = &ent
	}
	return st
}

// Events implements Client.
func (c *clientImpl) Events() *events.Subject {
	return c.events
}

// SetTokenProvider implements Client.
func (c *clientImpl) SetTokenProvider(tp TokenProvider) {
	c.mu.Lock()
	c.tokenProvider = tp
	c.mu.Unlock()
}

// handleFrame classifies one inbound push-channel frame. Malformed frames are
// reported and dropped; the stream continues.
func (c *clientImpl) handleFrame(raw []byte) {
	frame, err := wire.ParseFrame(raw)
	if err != nil {
		c.logger.Debug("dropping malformed frame", "error", err)
		publishEvent(c, events.TopicError, events.ErrorEvent{
			Error: decodeErr("malformed stream frame: %v", err).Error(),
		})
		return
	}

	c.touch()

	switch frame.Type {
	case wire.FrameConnection:
		c.adoptSession(frame.SessionID)
	case wire.FramePing:
		// Liveness only.
	case wire.FrameResponse:
		c.settleFromMessage(frame.Response)
	case wire.FrameNotification:
		publishEvent(c, events.TopicNotification, events.NotificationEvent{
			Topic:   frame.Topic,
			Payload: frame.Payload,
		})
	}
}

// handleStreamError reacts to a mid-session push-channel failure. Calls in
// flight cannot complete across a dead stream, so they are failed
// immediately rather than queued behind the reconnect.
func (c *clientImpl) handleStreamError(err error) {
	c.mu.RLock()
	phase := c.phase
	c.mu.RUnlock()
	if phase != PhaseConnected && phase != PhaseReconnecting {
		return
	}

	c.logger.Debug("push channel failed", "error", err)
	c.registry.drain(transportErr("push channel failed: %v", err))
	c.scheduleReconnect(err)
}

// scheduleReconnect consumes one reconnect attempt or, past the ceiling,
// finalizes the failure. Once the client is closed, a straggling failure
// signal (a drained reconnect handshake, a late stream error) must not
// restart the schedule.
func (c *clientImpl) scheduleReconnect(cause error) {
	c.mu.Lock()
	if c.phase != PhaseConnected && c.phase != PhaseReconnecting {
		c.mu.Unlock()
		return
	}
	delay, attempt, ok := c.policy.next()
	if !ok {
		attempts := c.policy.maxAttempts
		c.phase = PhaseClosed
		c.reconnectTimer = nil
		c.mu.Unlock()

		c.stream.Close()
		c.registry.drain(ErrConnectionClosed)
		c.logger.Error("reconnect ceiling exhausted, giving up", "attempts", attempts, "error", cause)
		publishEvent(c, events.TopicConnectionFailed, events.ConnectionFailedEvent{
			Attempts: attempts,
			Error:    cause.Error(),
		})
		return
	}
	c.phase = PhaseReconnecting
	c.reconnectTimer = c.clock.AfterFunc(delay, c.attemptReconnect)
	c.mu.Unlock()

	c.logger.Info("push channel lost, reconnecting", "attempt", attempt, "delay", delay)
	publishEvent(c, events.TopicReconnecting, events.ReconnectingEvent{Attempt: attempt, Delay: delay})
}

func (c *clientImpl) attemptReconnect() {
	c.mu.Lock()
	if c.phase != PhaseReconnecting {
		// Disconnect won the race with the timer.
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.mu.Unlock()

	sessionID, ent, err := c.establish()
	if err != nil {
		c.logger.Debug("reconnect attempt failed", "error", err)
		c.scheduleReconnect(err)
		return
	}

	c.commitConnected(sessionID, ent)
}

// dispatch POSTs one serialized envelope to the gateway. A session
// identifier on the response is adopted; it can change when the gateway
// re-homes a session during retries.
func (c *clientImpl) dispatch(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := c.applyAuth(req.Header); err != nil {
		return nil, err
	}
	if sid := c.currentSession(); sid != "" {
		req.Header.Set(wire.SessionHeader, sid)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(wire.SessionHeader); sid != "" {
		c.adoptSession(sid)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dispatch returned status %d: %s", resp.StatusCode, payload)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read dispatch response: %w", err)
	}
	c.touch()
	return payload, nil
}

func (c *clientImpl) applyAuth(header http.Header) error {
	c.mu.RLock()
	tp := c.tokenProvider
	c.mu.RUnlock()
	if tp == nil {
		return nil
	}
	token, err := tp.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain bearer credential: %w", err)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *clientImpl) currentSession() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// adoptSession takes over a session identifier announced mid-session by the
// gateway. During connect the handshake result is authoritative and is
// committed together with the phase flip, so adoption is limited to the
// connected and reconnecting phases; state must never leak out before
// Connect resolves.
func (c *clientImpl) adoptSession(sessionID string) {
	c.mu.Lock()
	if c.phase != PhaseConnected && c.phase != PhaseReconnecting {
		c.mu.Unlock()
		return
	}
	changed := c.sessionID != sessionID
	c.sessionID = sessionID
	c.mu.Unlock()
	if changed {
		c.logger.Debug("adopted session", "session_id", sessionID)
	}
}

func (c *clientImpl) touch() {
	c.mu.Lock()
	c.lastActivity = c.clock.Now()
	c.mu.Unlock()
}

// publishEvent emits a lifecycle event, logging and dropping it if the
// subject cannot accept it.
func publishEvent[T any](c *clientImpl, topic string, evt T) {
	if err := events.Publish(c.events, topic, evt); err != nil {
		c.logger.Debug("event dropped", "topic", topic, "error", err)
	}
}
