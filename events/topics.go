package events

import (
	"encoding/json"
	"time"
)

// Standard topic constants for LegisWire client events.
// These define the public contract for what topics external consumers can
// subscribe to; the hosting application observes the client lifecycle through
// them instead of polling.
const (
	TopicConnecting       = "client.connecting"        // Connect sequence started
	TopicConnected        = "client.connected"         // Handshake done, stream open
	TopicDisconnected     = "client.disconnected"      // Client torn down
	TopicReconnecting     = "client.reconnecting"      // Stream lost, retry scheduled
	TopicConnectionFailed = "client.connection_failed" // Retry ceiling exhausted
	TopicNotification     = "server.notification"      // Out-of-band gateway push
	TopicError            = "client.error"             // Non-fatal client error
)

// ConnectingEvent is emitted when a connect sequence begins.
type ConnectingEvent struct {
	URL string `json:"url"`
}

// ConnectedEvent is emitted once the handshake has resolved and the push
// stream is open. It carries the session identity established by the
// handshake.
type ConnectedEvent struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
	Tier      string `json:"tier,omitempty"`
}

// DisconnectedEvent is emitted after a disconnect completes.
type DisconnectedEvent struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId,omitempty"`
}

// ReconnectingEvent is emitted when a mid-session stream failure schedules a
// reconnect attempt. Attempt numbering starts at 1.
type ReconnectingEvent struct {
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

// ConnectionFailedEvent is emitted exactly once when the reconnect ceiling is
// exhausted. The client is left closed; a caller must invoke Connect to retry.
type ConnectionFailedEvent struct {
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// NotificationEvent carries an out-of-band notification frame pushed by the
// gateway, re-emitted for external listeners.
type NotificationEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorEvent is emitted for non-fatal client errors, such as a malformed
// stream frame that was dropped.
type ErrorEvent struct {
	Error string `json:"error"`
}
