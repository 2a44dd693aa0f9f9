package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of store lifecycle events. Delivery is
// credit-limited: each delivered event spends one credit, and when the
// balance reaches zero the broker drops events for this subscriber until
// the consumer replenishes via AddCredits. This keeps a stalled SSE
// connection from backing up the broker.
type Subscriber struct {
	id string
	ch chan *Event

	credits atomic.Int64
	closed  atomic.Bool

	mu     sync.RWMutex
	topics map[string]struct{}
	filter func(*Event) bool
}

// NewSubscriber creates a subscriber with the given channel capacity and
// starting credit balance.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	sub := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	sub.credits.Store(initialCredits)
	return sub
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only event channel.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes the delivery balance.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the current balance.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// SetFilter installs a predicate; only matching events are delivered.
func (s *Subscriber) SetFilter(fn func(*Event) bool) {
	s.mu.Lock()
	s.filter = fn
	s.mu.Unlock()
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of the subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		out = append(out, topic)
	}
	return out
}

// send delivers one event, reporting false when it was dropped: closed
// subscriber, filter mismatch, exhausted credits, or a full buffer. A
// full buffer refunds the spent credit.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}

	s.mu.RLock()
	filter := s.filter
	s.mu.RUnlock()
	if filter != nil && !filter(evt) {
		return false
	}

	for {
		balance := s.credits.Load()
		if balance <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(balance, balance-1) {
			break
		}
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.credits.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
