// Package wire implements the JSON-RPC envelope codec used between the
// LegisWire client and the gateway.
//
// Two message grammars share this package. Requests travel to the gateway as
// plain JSON-RPC 2.0 envelopes over HTTP POST. Everything the gateway pushes
// back over the stream channel is wrapped in a frame carrying a "type"
// discriminator: session announcements, liveness pings, call responses, and
// out-of-band notifications.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC protocol version carried on every envelope.
const Version = "2.0"

// SessionHeader is the HTTP header carrying the gateway session identifier.
// It is attached to every dispatch once known and to the stream-open request.
// The gateway may return a fresh value on any dispatch response.
const SessionHeader = "Legiswire-Session-Id"

// Request is an outgoing JSON-RPC request envelope.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// NewRequest builds a request envelope for the given call id and method.
func NewRequest(id int64, method string, params interface{}) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Marshal serializes the request to its wire representation.
func (r *Request) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return data, nil
}

// Fault is the error object of a JSON-RPC error envelope.
type Fault struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface so a Fault can be returned directly.
func (f *Fault) Error() string {
	return fmt.Sprintf("server returned error: %s (code %d)", f.Message, f.Code)
}

// Message is an incoming reply envelope: either a result or a fault,
// correlated to a request by its id.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Fault          `json:"error,omitempty"`
}

// ParseMessage decodes a reply envelope. A payload that carries neither a
// result nor an error is rejected.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse reply envelope: %w", err)
	}
	if msg.Result == nil && msg.Error == nil {
		return nil, errors.New("reply envelope has neither result nor error")
	}
	return &msg, nil
}

// FrameType discriminates the messages arriving on the push channel.
type FrameType string

const (
	// FrameConnection announces or refreshes the session identifier.
	FrameConnection FrameType = "connection"
	// FramePing is a liveness signal with no payload effect.
	FramePing FrameType = "ping"
	// FrameResponse carries a reply envelope for an outstanding call.
	FrameResponse FrameType = "response"
	// FrameNotification carries an out-of-band server notification.
	FrameNotification FrameType = "notification"
)

// Frame is a decoded push-channel message. Only the fields relevant to the
// frame's type are populated; Response is filled in for response frames by
// re-reading the frame body as a reply envelope.
type Frame struct {
	Type      FrameType       `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	Response *Message `json:"-"`
}

// ParseFrame decodes a single push-channel frame. Frames with an unknown or
// missing type discriminator are rejected; the stream itself is expected to
// survive such frames (the caller reports and continues).
func ParseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to parse stream frame: %w", err)
	}

	switch frame.Type {
	case FrameConnection:
		if frame.SessionID == "" {
			return nil, errors.New("connection frame missing sessionId")
		}
	case FramePing:
		// Liveness only.
	case FrameResponse:
		// The response frame body doubles as the reply envelope.
		msg, err := ParseMessage(data)
		if err != nil {
			return nil, fmt.Errorf("response frame: %w", err)
		}
		frame.Response = msg
	case FrameNotification:
		if frame.Topic == "" {
			return nil, errors.New("notification frame missing topic")
		}
	default:
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}

	return &frame, nil
}

// The marshal helpers below produce gateway-compatible frames. They are used
// by the server mode of the SSE transport and by tests.

// MarshalConnectionFrame builds a connection frame for the given session.
func MarshalConnectionFrame(sessionID string) []byte {
	data, _ := json.Marshal(map[string]interface{}{
		"type":      FrameConnection,
		"sessionId": sessionID,
	})
	return data
}

// MarshalPingFrame builds a liveness ping frame.
func MarshalPingFrame() []byte {
	return []byte(`{"type":"ping"}`)
}

// MarshalResponseFrame wraps a reply envelope in a response frame.
func MarshalResponseFrame(msg *Message) ([]byte, error) {
	framed := struct {
		Type FrameType `json:"type"`
		*Message
	}{Type: FrameResponse, Message: msg}
	data, err := json.Marshal(framed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response frame: %w", err)
	}
	return data, nil
}

// MarshalNotificationFrame builds a notification frame for the given topic.
func MarshalNotificationFrame(topic string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(map[string]interface{}{
		"type":    FrameNotification,
		"topic":   topic,
		"payload": payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification frame: %w", err)
	}
	return data, nil
}
