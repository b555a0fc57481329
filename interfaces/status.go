package interfaces

import (
	"fmt"
	"sync"
)

// SessionStatus is the lifecycle state of a repository session.
type SessionStatus int

const (
	StatusUnstarted SessionStatus = iota
	StatusActive
	StatusDone
)

func (s SessionStatus) String() string {
	switch s {
	case StatusUnstarted:
		return "unstarted"
	case StatusActive:
		return "active"
	case StatusDone:
		return "done"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// SessionState is the single owner of a session's status. Every session
// implementation embeds one so that illegal transitions become typed errors.
// The zero value is an Unstarted state ready for use.
type SessionState struct {
	mu     sync.Mutex
	status SessionStatus
}

// Status returns the current status.
func (s *SessionState) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transition moves from one status to another, failing with
// ErrInvalidTransition if the session is not currently in from.
func (s *SessionState) Transition(op string, from, to SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		return NewSessionError(KindInvalidTransition, op, s.status)
	}
	s.status = to
	return nil
}

// RequireActive fails with ErrInactiveSession unless the session is Active.
func (s *SessionState) RequireActive(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return NewSessionError(KindInactiveSession, op, s.status)
	}
	return nil
}
