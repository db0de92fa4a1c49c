package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/prasenjit/stub-console/internal/apierr"
)

// EventType identifies a store notification
type EventType string

// Event types
const (
	EventState EventType = "state"
	EventError EventType = "error"
)

const subscriberBuffer = 100

// Event is a change notification
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	State     *Snapshot      `json:"state,omitempty"`
	Error     *apierr.Record `json:"error,omitempty"`
}

// Subscribe registers a listener. Events are dropped for a subscriber
// whose buffer is full.
func (s *Store) Subscribe() (string, <-chan *Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := uuid.New().String()
	ch := make(chan *Event, subscriberBuffer)
	s.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscription and closes its channel
func (s *Store) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Subscribers returns the number of active subscriptions
func (s *Store) Subscribers() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscribers)
}

// Close ends every subscription
func (s *Store) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Store) publish(ev *Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.log.Debug().Str("subscriber", id).Str("event", string(ev.Type)).Msg("subscriber full, event dropped")
		}
	}
}

// changed publishes the current state to subscribers
func (s *Store) changed() {
	s.publish(&Event{Type: EventState, State: s.Snapshot()})
}
