package management

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/feverhq/feverd/updater"
)

const (
	// Indicates how many status events a session will hold before dropping.
	// A slow or detached reader loses the latest events rather than stalling
	// the coordinator.
	statusWindow = 30
)

// session captures one streaming update-status connection.
type session struct {
	// Session identity, only used to correlate log lines to a connection.
	id uuid.UUID
	// Indicates if the session is streaming or not. Toggled by the client's
	// start/stop streaming events.
	active atomic.Bool
	// Allows the relay to close out the underlying connection when done.
	cancel context.CancelFunc
	// Buffered channel that holds the recent status events.
	listener chan updater.StatusEvent
}

func newSession(size int, cancel context.CancelFunc) *session {
	return &session{
		id:       uuid.New(),
		cancel:   cancel,
		listener: make(chan updater.StatusEvent, size),
	}
}

// Insert attempts to insert the event into the session buffer. When the
// buffer is full the event is discarded; the channel carries state
// transitions, not history, and the next event supersedes what was lost.
func (s *session) Insert(event updater.StatusEvent) {
	if !s.active.Load() {
		return
	}
	select {
	case s.listener <- event:
	default:
		// buffer is full, discard
	}
}

// Start will mark the session as streaming.
func (s *session) Start() {
	s.active.Store(true)
}

// Stop will halt the session.
func (s *session) Stop() {
	s.active.Store(false)
}

// Relay implements updater.StatusPublisher by fanning every status event out
// to the attached sessions. With no session attached events are dropped,
// matching the channel's fire-and-forget contract.
type Relay struct {
	mu       sync.RWMutex
	sessions []*session
}

func NewRelay() *Relay {
	return &Relay{}
}

// Publish delivers the event to every streaming session with capacity.
func (r *Relay) Publish(event updater.StatusEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Insert(event)
	}
}

// Listen registers a new session that will receive status events once the
// client starts streaming.
func (r *Relay) Listen(cancel context.CancelFunc) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := newSession(statusWindow, cancel)
	r.sessions = append(r.sessions, s)
	return s
}

// Close removes a session from the relay and cancels its connection context.
func (r *Relay) Close(session *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	index := -1
	for i, v := range r.sessions {
		if v == session {
			index = i
			break
		}
	}
	if index == -1 {
		// Not found
		return
	}
	copy(r.sessions[index:], r.sessions[index+1:])
	r.sessions = r.sessions[:len(r.sessions)-1]
	session.cancel()
}

// ActiveSessions reports how many attached sessions are currently streaming.
func (r *Relay) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.sessions {
		if s.active.Load() {
			count++
		}
	}
	return count
}
