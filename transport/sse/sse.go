// Package sse provides the Server-Sent Events implementation of the LegisWire
// push channel.
//
// Client mode opens a long-lived GET request against the gateway endpoint and
// parses the event stream into raw frames. Server mode implements the same
// framing from the other side and exists for integration tests and for
// embedding a gateway-compatible broadcaster.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/statutehq/legiswire/transport"
)

// Stream is the client side of the SSE push channel.
type Stream struct {
	transport.BaseStream

	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	opened bool
}

// NewStream creates an SSE stream using the given HTTP client. A nil client
// falls back to http.DefaultClient; callers normally pass a client without a
// global timeout, since the stream is long-lived.
func NewStream(client *http.Client) *Stream {
	if client == nil {
		client = http.DefaultClient
	}
	return &Stream{client: client}
}

// Open establishes the event stream. The supplied context bounds setup only;
// once Open returns nil the stream stays up until it fails or Close is
// called. Failures after a successful Open are reported through the error
// handler, never returned here.
func (s *Stream) Open(ctx context.Context, url string, header http.Header) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return errors.New("stream already open")
	}
	s.mu.Unlock()

	// The stream outlives the setup context, so it gets its own.
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	s.Logger().Debug("opening SSE stream", "url", url)

	type dialResult struct {
		resp *http.Response
		err  error
	}
	done := make(chan dialResult, 1)
	go func() {
		resp, err := s.client.Do(req)
		done <- dialResult{resp, err}
	}()

	var resp *http.Response
	select {
	case res := <-done:
		if res.err != nil {
			cancel()
			return fmt.Errorf("stream request failed: %w", res.err)
		}
		resp = res.resp
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("stream request returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("server did not return an event stream (Content-Type %q)", ct)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.opened = true
	s.mu.Unlock()

	s.Logger().Debug("SSE stream established")

	go s.readLoop(resp.Body)
	return nil
}

// Close releases the stream. It is safe to call when already closed, and the
// read error it induces is swallowed rather than reported as a failure.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false
	s.cancel()
	return nil
}

// closedByUs reports whether the stream was shut down via Close, flipping the
// opened flag if a genuine failure won the race.
func (s *Stream) closedByUs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return true
	}
	s.opened = false
	return false
}

func (s *Stream) readLoop(body io.ReadCloser) {
	defer body.Close()

	reader := bufio.NewReader(body)
	var buf bytes.Buffer
	var eventType string

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if s.closedByUs() {
				s.Logger().Debug("SSE stream closed")
				return
			}
			if err == io.EOF {
				err = errors.New("event stream closed by server")
			}
			s.Logger().Debug("SSE stream failed", "error", err)
			s.ReportError(err)
			return
		}

		line = bytes.TrimSpace(line)

		// Comment lines keep the connection warm, nothing more.
		if bytes.HasPrefix(line, []byte(":")) {
			continue
		}

		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("event:"))))
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			buf.Write(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:"))))
			continue
		}

		// Blank line terminates the event.
		if len(line) == 0 && buf.Len() > 0 {
			if eventType == "message" || eventType == "" {
				frame := make([]byte, buf.Len())
				copy(frame, buf.Bytes())
				if err := s.HandleFrame(frame); err != nil {
					s.Logger().Debug("frame dropped", "error", err)
				}
			}
			buf.Reset()
			eventType = ""
		}
	}
}
