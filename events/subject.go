// Package events provides a typed publish/subscribe surface for observing
// the client lifecycle.
//
// A Subject fans events out to subscribers by (topic, event type) pair. The
// generic Subscribe and Publish functions keep the surface type-safe: a
// subscriber for one event type never sees events of another, even on the
// same topic. Delivery of live events is asynchronous; an event loop owned by
// the Subject dispatches to handlers so publishers never block on slow
// consumers.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"time"
)

const publishTimeout = 100 * time.Millisecond

// SubjectOption configures a Subject.
type SubjectOption func(*Subject)

// WithBufferSize sets the capacity of the internal event channel.
func WithBufferSize(n int) SubjectOption {
	return func(s *Subject) {
		s.bufferSize = n
	}
}

// WithReplay enables caching of the last n events per topic. A subscriber
// that opts in receives the cached events synchronously, in order, before any
// live delivery.
func WithReplay(n int) SubjectOption {
	return func(s *Subject) {
		s.replaySize = n
	}
}

// WithLogger sets the logger used for handler errors.
func WithLogger(logger *slog.Logger) SubjectOption {
	return func(s *Subject) {
		s.logger = logger
	}
}

type emission struct {
	topic string
	value interface{}
}

type subscriber struct {
	id      int64
	topic   string
	evtType reflect.Type
	handler func(context.Context, interface{}) error
}

// Subject is a topic-based event bus with typed subscriptions.
type Subject struct {
	mu         sync.Mutex
	subs       map[string][]*subscriber
	cache      map[string][]interface{}
	nextSubID  int64
	bufferSize int
	replaySize int
	logger     *slog.Logger

	ch     chan emission
	done   chan struct{}
	closed bool
}

// NewSubject creates a Subject and starts its event loop.
func NewSubject(opts ...SubjectOption) *Subject {
	s := &Subject{
		subs:       make(map[string][]*subscriber),
		cache:      make(map[string][]interface{}),
		bufferSize: 64,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ch = make(chan emission, s.bufferSize)
	go s.eventLoop()
	return s
}

// Complete stops the Subject's event loop. Events published afterwards are
// dropped with an error.
func Complete(s *Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Subscription identifies an active subscription.
type Subscription struct {
	subject *Subject
	topic   string
	id      int64
}

// Unsubscribe removes the subscription from its Subject.
func (sub *Subscription) Unsubscribe() {
	s := sub.subject
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[sub.topic]
	for i, candidate := range list {
		if candidate.id == sub.id {
			s.subs[sub.topic] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Subscribe registers a handler for events of type T on the given topic.
// Passing replay=true delivers any cached events for the topic synchronously
// before the subscription goes live.
func Subscribe[T any](s *Subject, topic string, handler func(ctx context.Context, evt T) error, replay ...bool) *Subscription {
	var zero T
	sub := &subscriber{
		topic:   topic,
		evtType: reflect.TypeOf(zero),
		handler: func(ctx context.Context, v interface{}) error {
			evt, ok := v.(T)
			if !ok {
				return nil
			}
			return handler(ctx, evt)
		},
	}

	s.mu.Lock()
	s.nextSubID++
	sub.id = s.nextSubID
	s.subs[topic] = append(s.subs[topic], sub)
	var cached []interface{}
	if len(replay) > 0 && replay[0] {
		cached = append(cached, s.cache[topic]...)
	}
	s.mu.Unlock()

	// Replayed events are delivered in publication order before returning.
	for _, v := range cached {
		if reflect.TypeOf(v) != sub.evtType {
			continue
		}
		if err := sub.handler(context.Background(), v); err != nil {
			s.logger.Error("event handler error", "topic", topic, "error", err)
		}
	}

	return &Subscription{subject: s, topic: topic, id: sub.id}
}

// Publish emits an event of type T on the given topic. It returns an error
// only if the Subject is completed or its event channel stays full past a
// short deadline; delivery to handlers is asynchronous.
func Publish[T any](s *Subject, topic string, evt T) error {
	s.mu.Lock()
	if s.closed {
		// The select below races a ready buffered send against the closed
		// done channel, so it cannot be relied on to reject a completed
		// subject on its own.
		s.mu.Unlock()
		return fmt.Errorf("failed to emit event on %q: subject completed", topic)
	}
	if s.replaySize > 0 {
		cached := append(s.cache[topic], evt)
		if len(cached) > s.replaySize {
			cached = cached[len(cached)-s.replaySize:]
		}
		s.cache[topic] = cached
	}
	s.mu.Unlock()

	select {
	case s.ch <- emission{topic: topic, value: evt}:
		return nil
	case <-s.done:
		return fmt.Errorf("failed to emit event on %q: subject completed", topic)
	case <-time.After(publishTimeout):
		return fmt.Errorf("failed to emit event on %q: channel full", topic)
	}
}

func (s *Subject) eventLoop() {
	for {
		select {
		case em := <-s.ch:
			s.dispatch(em)
		case <-s.done:
			return
		}
	}
}

func (s *Subject) dispatch(em emission) {
	s.mu.Lock()
	matched := make([]*subscriber, 0, len(s.subs[em.topic]))
	evtType := reflect.TypeOf(em.value)
	for _, sub := range s.subs[em.topic] {
		if sub.evtType == evtType {
			matched = append(matched, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range matched {
		go func(sub *subscriber) {
			if err := sub.handler(context.Background(), em.value); err != nil {
				s.logger.Error("event handler error", "topic", em.topic, "error", err)
			}
		}(sub)
	}
}
