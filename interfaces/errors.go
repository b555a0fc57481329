package interfaces

import (
	"errors"
	"fmt"
)

// SessionErrorKind classifies a SessionError.
type SessionErrorKind int

const (
	// KindInactiveSession means an operation was attempted outside Active.
	KindInactiveSession SessionErrorKind = iota + 1
	// KindInvalidTransition means Begin or Finish was called in the wrong state.
	KindInvalidTransition
	// KindNoDelegateConfigured means Store was called with no StoreSink set.
	KindNoDelegateConfigured
)

func (k SessionErrorKind) String() string {
	switch k {
	case KindInactiveSession:
		return "inactive session"
	case KindInvalidTransition:
		return "invalid transition"
	case KindNoDelegateConfigured:
		return "no delegate configured"
	default:
		return fmt.Sprintf("session error kind %d", int(k))
	}
}

// SessionError reports misuse of a repository session's lifecycle. These are
// programming errors; callers should not retry them.
type SessionError struct {
	Kind   SessionErrorKind
	Op     string        // operation that was attempted
	Status SessionStatus // session status at the time
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInactiveSession      = &SessionError{Kind: KindInactiveSession}
	ErrInvalidTransition    = &SessionError{Kind: KindInvalidTransition}
	ErrNoDelegateConfigured = &SessionError{Kind: KindNoDelegateConfigured}
)

func (e *SessionError) Error() string {
	if e.Op == "" {
		return "session: " + e.Kind.String()
	}
	return fmt.Sprintf("session %s: %s (status %s)", e.Op, e.Kind, e.Status)
}

// Is matches any SessionError of the same kind.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	return ok && t.Kind == e.Kind
}

// NewSessionError builds a SessionError for op.
func NewSessionError(kind SessionErrorKind, op string, status SessionStatus) *SessionError {
	return &SessionError{Kind: kind, Op: op, Status: status}
}

// Configuration errors returned by RepositoryConfig.Validate.
var (
	ErrUnknownBackend      = errors.New("unknown repository backend")
	ErrMissingDatabasePath = errors.New("database path is required for the sqlite backend")
	ErrInvalidCollection   = errors.New("collection name is invalid")
)

// ErrRepositoryClosed is returned when a closed repository is used.
var ErrRepositoryClosed = errors.New("repository is closed")

// ErrCollectionMismatch is reported when an envelope is stored into a
// repository serving a different collection.
var ErrCollectionMismatch = errors.New("envelope collection does not match repository")
