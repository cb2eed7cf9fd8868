package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statutehq/legiswire/wire"
)

// collector buffers frames and errors from a stream under test.
type collector struct {
	mu     sync.Mutex
	frames [][]byte
	errs   []error

	frameCh chan []byte
	errCh   chan error
}

func newCollector() *collector {
	return &collector{
		frameCh: make(chan []byte, 16),
		errCh:   make(chan error, 16),
	}
}

func (c *collector) onFrame(frame []byte) {
	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	c.frameCh <- frame
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	c.errCh <- err
}

func (c *collector) nextFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case frame := <-c.frameCh:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func (c *collector) nextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-c.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("no stream error reported")
		return nil
	}
}

func openTestStream(t *testing.T, srv *Server) (*Stream, *collector, string) {
	t.Helper()

	httpSrv := httptest.NewServer(srv)
	t.Cleanup(httpSrv.Close)

	col := newCollector()
	stream := NewStream(&http.Client{})
	stream.SetFrameHandler(col.onFrame)
	stream.SetErrorHandler(col.onError)

	sessionID := "sess-sse-test"
	header := http.Header{}
	header.Set(wire.SessionHeader, sessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, stream.Open(ctx, httpSrv.URL, header))
	t.Cleanup(func() { stream.Close() })

	return stream, col, sessionID
}

func TestStreamReceivesConnectionFrameFirst(t *testing.T) {
	srv := NewServer()
	srv.PingInterval = time.Hour
	_, col, sessionID := openTestStream(t, srv)

	frame, err := wire.ParseFrame(col.nextFrame(t))
	require.NoError(t, err)
	assert.Equal(t, wire.FrameConnection, frame.Type)
	assert.Equal(t, sessionID, frame.SessionID)
}

func TestStreamDeliversPushedFrames(t *testing.T) {
	srv := NewServer()
	srv.PingInterval = time.Hour
	_, col, sessionID := openTestStream(t, srv)

	col.nextFrame(t) // connection frame

	payload, err := wire.MarshalNotificationFrame("bills/updated", map[string]string{"bill": "SB-101"})
	require.NoError(t, err)
	require.NoError(t, srv.Push(sessionID, payload))

	frame, err := wire.ParseFrame(col.nextFrame(t))
	require.NoError(t, err)
	assert.Equal(t, wire.FrameNotification, frame.Type)
	assert.Equal(t, "bills/updated", frame.Topic)
}

func TestStreamDeliversPings(t *testing.T) {
	srv := NewServer()
	srv.PingInterval = 50 * time.Millisecond
	_, col, _ := openTestStream(t, srv)

	col.nextFrame(t) // connection frame

	frame, err := wire.ParseFrame(col.nextFrame(t))
	require.NoError(t, err)
	assert.Equal(t, wire.FramePing, frame.Type)
}

func TestStreamCloseIsQuietAndIdempotent(t *testing.T) {
	srv := NewServer()
	srv.PingInterval = time.Hour
	stream, col, _ := openTestStream(t, srv)

	col.nextFrame(t) // connection frame

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	select {
	case err := <-col.errCh:
		t.Fatalf("close reported as stream failure: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStreamReportsServerDrop(t *testing.T) {
	srv := NewServer()
	srv.PingInterval = time.Hour
	_, col, sessionID := openTestStream(t, srv)

	col.nextFrame(t) // connection frame

	srv.Drop(sessionID)

	err := col.nextError(t)
	assert.Contains(t, err.Error(), "closed by server")
}

func TestStreamReopenAfterFailure(t *testing.T) {
	srv := NewServer()
	srv.PingInterval = time.Hour
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	col := newCollector()
	stream := NewStream(&http.Client{})
	stream.SetFrameHandler(col.onFrame)
	stream.SetErrorHandler(col.onError)

	header := http.Header{}
	header.Set(wire.SessionHeader, "sess-reopen")

	require.NoError(t, stream.Open(context.Background(), httpSrv.URL, header))
	col.nextFrame(t) // connection frame

	srv.Drop("sess-reopen")
	col.nextError(t)

	require.NoError(t, stream.Open(context.Background(), httpSrv.URL, header))
	defer stream.Close()

	frame, err := wire.ParseFrame(col.nextFrame(t))
	require.NoError(t, err)
	assert.Equal(t, wire.FrameConnection, frame.Type)
}

func TestStreamOpenRejectsNonStreamEndpoint(t *testing.T) {
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer httpSrv.Close()

	stream := NewStream(&http.Client{})
	stream.SetFrameHandler(func([]byte) {})

	err := stream.Open(context.Background(), httpSrv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event stream")
}

func TestStreamOpenRejectsErrorStatus(t *testing.T) {
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer httpSrv.Close()

	stream := NewStream(&http.Client{})
	err := stream.Open(context.Background(), httpSrv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestStreamOpenTwiceFails(t *testing.T) {
	srv := NewServer()
	srv.PingInterval = time.Hour
	stream, _, _ := openTestStream(t, srv)

	err := stream.Open(context.Background(), "http://unused.invalid", nil)
	assert.Error(t, err)
}

func TestServerPushToUnknownSession(t *testing.T) {
	srv := NewServer()
	err := srv.Push("no-such-session", wire.MarshalPingFrame())
	assert.Error(t, err)
}
