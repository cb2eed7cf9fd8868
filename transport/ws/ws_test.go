package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gws "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statutehq/legiswire/wire"
)

func TestToWebSocketURL(t *testing.T) {
	assert.Equal(t, "ws://gateway.local/rpc", toWebSocketURL("http://gateway.local/rpc"))
	assert.Equal(t, "wss://gateway.local/rpc", toWebSocketURL("https://gateway.local/rpc"))
	assert.Equal(t, "ws://gateway.local/rpc", toWebSocketURL("ws://gateway.local/rpc"))
}

// newWSTestServer upgrades incoming connections and writes whatever is queued
// on the returned channel to the most recent one; a nil entry hangs up.
func newWSTestServer(t *testing.T) (*httptest.Server, chan []byte, chan http.Header) {
	t.Helper()

	out := make(chan []byte, 16)
	headers := make(chan http.Header, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case headers <- r.Header.Clone():
		default:
		}
		conn, _, _, err := gws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for frame := range out {
			if frame == nil {
				return
			}
			if err := wsutil.WriteServerText(conn, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, out, headers
}

func TestStreamReceivesFrames(t *testing.T) {
	srv, out, headers := newWSTestServer(t)

	received := make(chan []byte, 4)
	stream := NewStream()
	stream.SetFrameHandler(func(frame []byte) { received <- frame })
	stream.SetErrorHandler(func(error) {})

	header := http.Header{}
	header.Set(wire.SessionHeader, "sess-ws")
	require.NoError(t, stream.Open(context.Background(), srv.URL, header))
	defer stream.Close()

	got := <-headers
	assert.Equal(t, "sess-ws", got.Get(wire.SessionHeader))

	out <- wire.MarshalConnectionFrame("sess-ws")

	select {
	case raw := <-received:
		frame, err := wire.ParseFrame(raw)
		require.NoError(t, err)
		assert.Equal(t, wire.FrameConnection, frame.Type)
		assert.Equal(t, "sess-ws", frame.SessionID)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestStreamReportsServerClose(t *testing.T) {
	srv, out, _ := newWSTestServer(t)

	errs := make(chan error, 1)
	stream := NewStream()
	stream.SetFrameHandler(func([]byte) {})
	stream.SetErrorHandler(func(err error) { errs <- err })

	require.NoError(t, stream.Open(context.Background(), srv.URL, nil))
	out <- nil // makes the server handler return and drop the connection

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server close not reported")
	}
}

func TestStreamCloseIsQuiet(t *testing.T) {
	srv, _, _ := newWSTestServer(t)

	errs := make(chan error, 1)
	stream := NewStream()
	stream.SetFrameHandler(func([]byte) {})
	stream.SetErrorHandler(func(err error) { errs <- err })

	require.NoError(t, stream.Open(context.Background(), srv.URL, nil))
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case err := <-errs:
		t.Fatalf("close reported as failure: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStreamOpenFailsAgainstDeadEndpoint(t *testing.T) {
	stream := NewStream()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := stream.Open(ctx, "http://127.0.0.1:1/rpc", nil)
	assert.Error(t, err)
}
