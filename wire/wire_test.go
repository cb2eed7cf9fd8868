package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMarshal(t *testing.T) {
	req := NewRequest(7, "tools/call", map[string]interface{}{"name": "search_bills"})
	data, err := req.Marshal()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2.0", decoded["jsonrpc"])
	assert.Equal(t, float64(7), decoded["id"])
	assert.Equal(t, "tools/call", decoded["method"])
	assert.NotNil(t, decoded["params"])
}

func TestRequestMarshalOmitsEmptyParams(t *testing.T) {
	req := NewRequest(1, "tools/list", nil)
	data, err := req.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "params")
}

func TestParseMessageResult(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":3,"result":{"tools":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.ID)
	assert.Nil(t, msg.Error)
	assert.JSONEq(t, `{"tools":[]}`, string(msg.Result))
}

func TestParseMessageFault(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":9,"error":{"code":-32601,"message":"method not found"}}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32601, msg.Error.Code)
	assert.Equal(t, "method not found", msg.Error.Message)
}

func TestParseMessageRejectsEmptyEnvelope(t *testing.T) {
	_, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":1}`))
	assert.Error(t, err)
}

func TestParseFrameConnection(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"type":"connection","sessionId":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameConnection, frame.Type)
	assert.Equal(t, "abc", frame.SessionID)
}

func TestParseFrameConnectionRequiresSession(t *testing.T) {
	_, err := ParseFrame([]byte(`{"type":"connection"}`))
	assert.Error(t, err)
}

func TestParseFramePing(t *testing.T) {
	frame, err := ParseFrame(MarshalPingFrame())
	require.NoError(t, err)
	assert.Equal(t, FramePing, frame.Type)
}

func TestParseFrameResponse(t *testing.T) {
	raw, err := MarshalResponseFrame(&Message{
		JSONRPC: Version,
		ID:      42,
		Result:  json.RawMessage(`{"ok":true}`),
	})
	require.NoError(t, err)

	frame, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, FrameResponse, frame.Type)
	require.NotNil(t, frame.Response)
	assert.Equal(t, int64(42), frame.Response.ID)
	assert.JSONEq(t, `{"ok":true}`, string(frame.Response.Result))
}

func TestParseFrameResponseWithFault(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"type":"response","jsonrpc":"2.0","id":5,"error":{"code":402,"message":"call limit exceeded"}}`))
	require.NoError(t, err)
	require.NotNil(t, frame.Response)
	require.NotNil(t, frame.Response.Error)
	assert.Equal(t, 402, frame.Response.Error.Code)
}

func TestParseFrameNotification(t *testing.T) {
	raw, err := MarshalNotificationFrame("bills/updated", map[string]string{"bill": "SB-101"})
	require.NoError(t, err)

	frame, err := ParseFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, FrameNotification, frame.Type)
	assert.Equal(t, "bills/updated", frame.Topic)
	assert.JSONEq(t, `{"bill":"SB-101"}`, string(frame.Payload))
}

func TestParseFrameNotificationRequiresTopic(t *testing.T) {
	_, err := ParseFrame([]byte(`{"type":"notification","payload":{}}`))
	assert.Error(t, err)
}

func TestParseFrameRejectsUnknownType(t *testing.T) {
	_, err := ParseFrame([]byte(`{"type":"shutdown"}`))
	assert.Error(t, err)
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	_, err := ParseFrame([]byte(`this is not json`))
	assert.Error(t, err)
}
