package client

import "fmt"

// Kind classifies client errors. Every rejection a caller receives carries
// exactly one of these.
type Kind string

const (
	// KindCallTimeout marks a call with no settlement within its deadline.
	// Not retried automatically; retry is at the caller's discretion.
	KindCallTimeout Kind = "call_timeout"

	// KindConnectionClosed marks calls failed because the client was torn
	// down while they were outstanding.
	KindConnectionClosed Kind = "connection_closed"

	// KindTransportFailure marks a stream- or dispatch-level failure. Stream
	// failures trigger the reconnection policy and only surface per call when
	// the call was in flight at the time.
	KindTransportFailure Kind = "transport_failure"

	// KindProtocolFault marks an explicit error envelope from the gateway.
	// Never retried automatically.
	KindProtocolFault Kind = "protocol_fault"

	// KindDecodeError marks a malformed payload.
	KindDecodeError Kind = "decode_error"

	// KindNotConnected marks an operation attempted outside the connected
	// phase.
	KindNotConnected Kind = "not_connected"
)

// Error is the client's error type. Code is set for protocol faults only.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches errors by kind, so errors.Is(err, client.ErrCallTimeout) works
// regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel values for use with errors.Is.
var (
	ErrCallTimeout      = &Error{Kind: KindCallTimeout, Message: "call timed out"}
	ErrConnectionClosed = &Error{Kind: KindConnectionClosed, Message: "connection closed"}
	ErrNotConnected     = &Error{Kind: KindNotConnected, Message: "client is not connected"}
)

func transportErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTransportFailure, Message: fmt.Sprintf(format, args...)}
}

func decodeErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDecodeError, Message: fmt.Sprintf(format, args...)}
}
