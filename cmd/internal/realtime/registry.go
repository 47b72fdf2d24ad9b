// Package realtime serves live telemetry to dashboard clients over
// WebSocket: the session registry, per-session receive and send workers,
// upgrade validation and the shutdown sequence.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrShuttingDown is returned by Register once DisconnectAll has run.
var ErrShuttingDown = errors.New("realtime: registry is shutting down")

// ErrDuplicateSession is returned when a session is registered twice.
var ErrDuplicateSession = errors.New("realtime: session already registered")

// Registry is the set of live sessions plus the global disconnect flag.
//
// mu guards sessions, disconnectAll and the per-session flags. It is never
// held across socket I/O and never taken while holding a session's send lock.
type Registry struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	disconnectAll bool
	active        int

	// drained is closed when active drops to zero. Created by the first
	// waiter that finds sessions active.
	drained chan struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register adds s. It fails once shutdown has begun.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disconnectAll {
		return ErrShuttingDown
	}
	if _, ok := r.sessions[s.id]; ok {
		return ErrDuplicateSession
	}
	r.sessions[s.id] = s
	r.active++
	return nil
}

// remove drops s from the set. It reports whether s was present.
func (r *Registry) remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.id] != s {
		return false
	}
	delete(r.sessions, s.id)
	return true
}

// finished marks the end of a registered session's teardown.
func (r *Registry) finished() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active--
	if r.active == 0 && r.drained != nil {
		close(r.drained)
		r.drained = nil
	}
}

// Len is the number of sessions currently in the set.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Active is the number of sessions whose teardown has not finished yet.
// It can be larger than Len while sessions are mid teardown.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ShuttingDown reports whether DisconnectAll has run.
func (r *Registry) ShuttingDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnectAll
}

// Broadcast asks every session to push the current snapshot on its next
// wake, regardless of the cadence. It returns the number of sessions woken.
func (r *Registry) Broadcast() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		s.pending = true
		s.signal()
	}
	return len(r.sessions)
}

// DisconnectAll sets the global disconnect flag and wakes every session.
// Send workers observe the flag and close their transport, which ends the
// receive worker and runs the teardown. It returns the number of sessions
// signalled.
func (r *Registry) DisconnectAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disconnectAll = true
	for _, s := range r.sessions {
		s.signal()
	}
	return len(r.sessions)
}

// ForceClose closes the transport of every session still in the set and
// returns how many there were.
func (r *Registry) ForceClose() int {
	r.mu.Lock()
	left := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		left = append(left, s)
	}
	r.mu.Unlock()

	// Close outside the lock: a TLS close writes an alert and can block.
	for _, s := range left {
		s.closeTransport()
	}
	return len(left)
}

// WaitIdle blocks until no session is active, timeout elapses or ctx is done.
// It reports whether the registry drained.
//
// Only call it after DisconnectAll so no Register can race the wait.
func (r *Registry) WaitIdle(ctx context.Context, timeout time.Duration) bool {
	r.mu.Lock()
	if r.active == 0 {
		r.mu.Unlock()
		return true
	}
	if r.drained == nil {
		r.drained = make(chan struct{})
	}
	done := r.drained
	r.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
		return true
	case <-t.C:
	case <-ctx.Done():
	}
	return r.Active() == 0
}
