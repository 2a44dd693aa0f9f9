// Package session models the authenticated-session context threaded
// between the stages of one provisioning job. The original automation kept
// a browser handle as an ambient global; here it is an explicit value owned
// by exactly one job execution at a time.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/storeforge/provision/id"
)

// Session is an opaque bag of credentials and handles produced by one stage
// and required by the next (e.g. an authenticated browser or API session).
// It is accessed by exactly one goroutine at a time within its owning job;
// the mutex only guards against misuse, not intended concurrency.
type Session struct {
	id id.SessionID

	mu      sync.Mutex
	values  map[string]any
	closers []func(context.Context) error
	closed  bool
}

// New creates an empty session.
func New() *Session {
	return &Session{
		id:     id.NewSessionID(),
		values: make(map[string]any),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() id.SessionID { return s.id }

// Set stores a handle under key, replacing any previous value. Handlers may
// mutate or replace handles freely; the orchestrator passes the same
// session to every stage.
func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

// Value returns the handle stored under key.
func (s *Session) Value(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// String returns the string handle stored under key, or "" if absent or of
// another type.
func (s *Session) String(key string) string {
	v, ok := s.Value(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// OnClose registers a teardown function for an external resource held by
// the session (browser quit, API logout). Teardowns run in LIFO order when
// the job reaches a terminal state, on either path.
func (s *Session) OnClose(fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close tears down all registered external resources in LIFO order and
// discards the value bag. Close is idempotent; errors from individual
// teardowns are joined, and every teardown runs regardless of earlier
// failures.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.values = make(map[string]any)
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
