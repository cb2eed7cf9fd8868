package sse

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/statutehq/legiswire/wire"
)

// DefaultPingInterval is how often the server emits liveness pings.
const DefaultPingInterval = 30 * time.Second

// Server is the gateway side of the SSE push channel. Each connected session
// gets its own frame queue; the first event on every stream is a connection
// frame announcing the session identifier.
type Server struct {
	mu           sync.Mutex
	sessions     map[string]chan []byte
	nextEventID  atomic.Int64
	PingInterval time.Duration
	Logger       *slog.Logger
}

// NewServer creates a push-channel server.
func NewServer() *Server {
	return &Server{
		sessions:     make(map[string]chan []byte),
		PingInterval: DefaultPingInterval,
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

// NewSessionID generates a session identifier.
func NewSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// ServeHTTP handles GET requests that establish push streams. The session
// identifier is taken from the session header when the client resumes an
// existing session, otherwise a fresh one is generated.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.Header.Get(wire.SessionHeader)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	ch := make(chan []byte, 16)
	s.mu.Lock()
	if old, exists := s.sessions[sessionID]; exists {
		close(old)
	}
	s.sessions[sessionID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if cur, exists := s.sessions[sessionID]; exists && cur == ch {
			delete(s.sessions, sessionID)
			close(ch)
		}
		s.mu.Unlock()
		s.Logger.Debug("stream closed", "session_id", sessionID)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(wire.SessionHeader, sessionID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	s.Logger.Debug("stream opened", "session_id", sessionID)

	if err := s.writeEvent(w, flusher, wire.MarshalConnectionFrame(sessionID)); err != nil {
		return
	}

	ping := time.NewTicker(s.PingInterval)
	defer ping.Stop()

	for {
		select {
		case frame, open := <-ch:
			if !open {
				return
			}
			if err := s.writeEvent(w, flusher, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := s.writeEvent(w, flusher, wire.MarshalPingFrame()); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, frame []byte) error {
	id := s.nextEventID.Add(1)
	if _, err := fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", id, frame); err != nil {
		s.Logger.Debug("failed to write stream event", "error", err)
		return err
	}
	flusher.Flush()
	return nil
}

// Push queues a frame for one session. It returns an error if the session has
// no open stream.
func (s *Server) Push(sessionID string, frame []byte) error {
	s.mu.Lock()
	ch, exists := s.sessions[sessionID]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("no open stream for session %q", sessionID)
	}
	select {
	case ch <- frame:
		return nil
	default:
		return fmt.Errorf("stream queue full for session %q", sessionID)
	}
}

// Broadcast queues a frame for every open session, dropping it for sessions
// whose queue is full.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	channels := make([]chan []byte, 0, len(s.sessions))
	for _, ch := range s.sessions {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Drop terminates the stream for one session, simulating or forcing a
// server-side disconnect.
func (s *Server) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, exists := s.sessions[sessionID]; exists {
		delete(s.sessions, sessionID)
		close(ch)
	}
}
