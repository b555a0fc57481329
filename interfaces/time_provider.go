package interfaces

import "time"

// TimeProvider abstracts the clock so repositories can be tested
// deterministically. Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// FixedTimeProvider always returns the same instant.
type FixedTimeProvider struct {
	T time.Time
}

// Now returns the fixed instant.
func (p FixedTimeProvider) Now() time.Time { return p.T }
