// Package events fans document and turn lifecycle events out to
// subscribers, feeding the websocket status stream.
package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/interfaces"
)

const subscriberBuffer = 32

// Service is an in-process publish/subscribe hub. Publishing never
// blocks: a subscriber that falls behind loses events rather than
// stalling the pipeline.
type Service struct {
	logger arbor.ILogger

	mu          sync.Mutex
	subscribers map[int]chan interfaces.Event
	nextID      int
	closed      bool
}

// Compile-time assertion
var _ interfaces.EventService = (*Service)(nil)

// NewService creates a new event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger:      logger,
		subscribers: make(map[int]chan interfaces.Event),
	}
}

// Publish delivers the event to all current subscribers
func (s *Service) Publish(event interfaces.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn().
				Int("subscriber", id).
				Str("event_type", string(event.Type)).
				Msg("Dropping event for slow subscriber")
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// removes the subscription and closes its channel.
func (s *Service) Subscribe() (<-chan interfaces.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan interfaces.Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close shuts the hub down and closes all subscriber channels
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}
