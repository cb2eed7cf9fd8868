// Package ws provides the WebSocket implementation of the LegisWire push
// channel.
//
// The gateway's stream frames are transport-agnostic; this package delivers
// the same frame grammar as the SSE transport over a WebSocket, one frame per
// message. The request channel is unaffected and stays on HTTP.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/statutehq/legiswire/transport"
)

// Stream is the client side of the WebSocket push channel.
type Stream struct {
	transport.BaseStream

	mu     sync.Mutex
	conn   net.Conn
	opened bool
}

// NewStream creates a WebSocket stream.
func NewStream() *Stream {
	return &Stream{}
}

// Open dials the gateway and starts the frame reader. HTTP(S) URLs are
// rewritten to their WebSocket equivalents so the same endpoint configuration
// works for both stream transports.
func (s *Stream) Open(ctx context.Context, url string, header http.Header) error {
	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return errors.New("stream already open")
	}
	s.mu.Unlock()

	wsURL := toWebSocketURL(url)
	s.Logger().Debug("opening WebSocket stream", "url", wsURL)

	dialer := ws.Dialer{
		Header: ws.HandshakeHeaderHTTP(header),
	}
	conn, _, _, err := dialer.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.opened = true
	s.mu.Unlock()

	s.Logger().Debug("WebSocket stream established")

	go s.readLoop(conn)
	return nil
}

// Close releases the connection. Safe to call when already closed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false
	return s.conn.Close()
}

func (s *Stream) closedByUs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return true
	}
	s.opened = false
	return false
}

func (s *Stream) readLoop(conn net.Conn) {
	for {
		frame, op, err := wsutil.ReadServerData(conn)
		if err != nil {
			if s.closedByUs() {
				s.Logger().Debug("WebSocket stream closed")
				return
			}
			conn.Close()
			s.Logger().Debug("WebSocket stream failed", "error", err)
			s.ReportError(err)
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		if err := s.HandleFrame(frame); err != nil {
			s.Logger().Debug("frame dropped", "error", err)
		}
	}
}

func toWebSocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}
